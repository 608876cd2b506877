package queue

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Imjack1-cyber/SongVote-sub000/internal/ratelimit"
	"github.com/Imjack1-cyber/SongVote-sub000/internal/session"
)

// Suggestion bursts beyond this are dropped per actor.
const (
	suggestLimit  = 10
	suggestWindow = 10 * time.Second
)

type Server struct {
	svc      *Service
	sessions session.Store
	limiter  *ratelimit.Limiter
}

func NewHTTPServer(svc *Service, sessions session.Store, limiter *ratelimit.Limiter) *Server {
	return &Server{svc: svc, sessions: sessions, limiter: limiter}
}

func (s *Server) Router(middlewares ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	for _, mw := range middlewares {
		r.Use(mw)
	}

	r.Get("/sessions/{id}/state", s.handleState)
	r.Post("/sessions/{id}/suggest", s.handleSuggest)
	r.Post("/sessions/{id}/items/{itemId}/approve", s.handleApprove)
	r.Post("/sessions/{id}/items/{itemId}/reject", s.handleReject)
	r.Post("/sessions/{id}/items/{itemId}/remove", s.handleRemove)
	r.Post("/sessions/{id}/items/{itemId}/ban-suggester", s.handleBanSuggester)
	r.Post("/sessions/{id}/song/started", s.handleSongStarted)
	r.Post("/sessions/{id}/song/transition", s.handleSongTransition)
	r.Post("/sessions/{id}/song/back", s.handleSongBack)
	r.Post("/sessions/{id}/force-play", s.handleForcePlay)
	r.Post("/sessions/{id}/clear", s.handleClear)

	return r
}

// handleState serves the full current state; reconnecting viewers always
// re-fetch this rather than resuming from deltas.
// GET /sessions/{id}/state
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := chi.URLParam(r, "id")
	if _, err := s.sessions.GetSession(ctx, sessionID); err != nil {
		if err == session.ErrNotFound {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		log.Printf("songvote: state load session: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	state, err := s.svc.FullState(ctx, sessionID)
	if err != nil {
		log.Printf("songvote: full state: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// POST /sessions/{id}/suggest
func (s *Server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actorID := r.Header.Get("X-User-Id")
	if actorID == "" {
		writeError(w, http.StatusUnauthorized, "missing user context")
		return
	}
	sess, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	if !s.limiter.Allow(ctx, "suggest:"+sess.ID+":"+actorID, suggestLimit, suggestWindow) {
		writeError(w, http.StatusTooManyRequests, "too many suggestions")
		return
	}

	var in TrackInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	entry, err := s.svc.Suggest(ctx, sess, actorID, in)
	if err != nil {
		writeQueueError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// POST /sessions/{id}/items/{itemId}/approve
func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.authorized(w, r, session.CapManageQueue)
	if !ok {
		return
	}
	if err := s.svc.Approve(r.Context(), sess.ID, chi.URLParam(r, "itemId")); err != nil {
		writeQueueError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// POST /sessions/{id}/items/{itemId}/reject
func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.authorized(w, r, session.CapManageQueue)
	if !ok {
		return
	}
	if err := s.svc.Reject(r.Context(), sess.ID, chi.URLParam(r, "itemId")); err != nil {
		writeQueueError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// POST /sessions/{id}/items/{itemId}/remove
func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.authorized(w, r, session.CapManageQueue)
	if !ok {
		return
	}
	if err := s.svc.Remove(r.Context(), sess.ID, chi.URLParam(r, "itemId")); err != nil {
		writeQueueError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// POST /sessions/{id}/items/{itemId}/ban-suggester
func (s *Server) handleBanSuggester(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.authorized(w, r, session.CapManageUsers)
	if !ok {
		return
	}
	if err := s.svc.BanSuggester(r.Context(), sess, chi.URLParam(r, "itemId")); err != nil {
		writeQueueError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// POST /sessions/{id}/song/started
func (s *Server) handleSongStarted(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.authorized(w, r, session.CapControlPlayer)
	if !ok {
		return
	}
	var body struct {
		ItemID string `json:"itemId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ItemID == "" {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	state, err := s.svc.SongStarted(r.Context(), sess, body.ItemID)
	if err != nil {
		writeQueueError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// POST /sessions/{id}/song/transition
func (s *Server) handleSongTransition(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.authorized(w, r, session.CapControlPlayer)
	if !ok {
		return
	}
	// The previous item is whatever is playing server-side; clients only get
	// to pick the next one.
	var body struct {
		NextItemID *string `json:"nextItemId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	state, err := s.svc.SongTransition(r.Context(), sess, body.NextItemID)
	if err != nil {
		writeQueueError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// POST /sessions/{id}/song/back
func (s *Server) handleSongBack(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.authorized(w, r, session.CapControlPlayer)
	if !ok {
		return
	}
	state, err := s.svc.SongBack(r.Context(), sess)
	if err != nil {
		writeQueueError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// POST /sessions/{id}/force-play
func (s *Server) handleForcePlay(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.authorized(w, r, session.CapForcePlay)
	if !ok {
		return
	}
	var in TrackInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	state, err := s.svc.ForcePlay(r.Context(), sess, in)
	if err != nil {
		writeQueueError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// POST /sessions/{id}/clear — host only.
func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actorID := r.Header.Get("X-User-Id")
	sess, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	if actorID == "" || actorID != sess.HostID {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	if err := s.svc.Clear(ctx, sess); err != nil {
		writeQueueError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) loadSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := s.sessions.GetSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if err == session.ErrNotFound {
			writeError(w, http.StatusNotFound, "session not found")
			return nil, false
		}
		log.Printf("songvote: load session: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return nil, false
	}
	return sess, true
}

func (s *Server) authorized(w http.ResponseWriter, r *http.Request, cap session.Capability) (*session.Session, bool) {
	actorID := r.Header.Get("X-User-Id")
	if actorID == "" {
		writeError(w, http.StatusUnauthorized, "missing user context")
		return nil, false
	}
	sess, ok := s.loadSession(w, r)
	if !ok {
		return nil, false
	}
	if !session.Authorize(r.Context(), s.sessions, sess, actorID, cap) {
		writeError(w, http.StatusForbidden, "forbidden")
		return nil, false
	}
	return sess, true
}
