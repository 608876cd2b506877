package session

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/Imjack1-cyber/SongVote-sub000/internal/realtime"
)

type Server struct {
	store Store
	rdb   *redis.Client
}

func NewServer(store Store, rdb *redis.Client) *Server {
	return &Server{store: store, rdb: rdb}
}

func (s *Server) Router(middlewares ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	for _, mw := range middlewares {
		r.Use(mw)
	}

	r.Post("/sessions", s.handleCreateSession)
	r.Get("/sessions/{id}", s.handleGetSession)
	r.Post("/sessions/{id}/guests", s.handleJoinGuest)
	r.Put("/sessions/{id}/guests/{guestId}/permissions", s.handleSetGuestPermissions)
	r.Post("/sessions/{id}/guests/{guestId}/ban", s.handleBanGuest)
	r.Patch("/sessions/{id}/permissions", s.handleSetDefaults)
	r.Get("/sessions/{id}/blacklist", s.handleListBlacklist)
	r.Post("/sessions/{id}/blacklist", s.handleAddBlacklistRule)
	r.Delete("/sessions/{id}/blacklist", s.handleDeleteBlacklistRule)

	return r
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	hostID := r.Header.Get("X-User-Id")
	if hostID == "" {
		writeError(w, http.StatusUnauthorized, "missing user context")
		return
	}

	var body struct {
		Name                string        `json:"name"`
		VotesPerUser        int           `json:"votesPerUser"`
		CycleDelayMinutes   int           `json:"cycleDelayMinutes"`
		RequireVerification bool          `json:"requireVerification"`
		Defaults            PermissionSet `json:"defaults"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if body.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if body.VotesPerUser <= 0 {
		body.VotesPerUser = 3
	}
	if body.CycleDelayMinutes < 0 {
		body.CycleDelayMinutes = 0
	}

	sess := &Session{
		HostID:              hostID,
		Name:                body.Name,
		VotesPerUser:        body.VotesPerUser,
		CycleDelayMinutes:   body.CycleDelayMinutes,
		RequireVerification: body.RequireVerification,
		Defaults:            body.Defaults,
	}
	id, err := s.store.CreateSession(ctx, sess)
	if err != nil {
		log.Printf("songvote: create session: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	sess.ID = id
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, err := s.store.GetSession(ctx, chi.URLParam(r, "id"))
	if err != nil {
		if err == ErrNotFound {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		log.Printf("songvote: get session: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleJoinGuest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	guestID := r.Header.Get("X-User-Id")
	if guestID == "" {
		writeError(w, http.StatusUnauthorized, "missing user context")
		return
	}
	sessionID := chi.URLParam(r, "id")
	if _, err := s.store.GetSession(ctx, sessionID); err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	var body struct {
		Name string `json:"name"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	g := &Guest{SessionID: sessionID, GuestID: guestID, Name: body.Name}
	if err := s.store.UpsertGuest(ctx, g); err != nil {
		log.Printf("songvote: join guest: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *Server) handleSetGuestPermissions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, actorID, ok := s.authorized(w, r, CapManageUsers)
	if !ok {
		return
	}
	guestID := chi.URLParam(r, "guestId")

	var body PermissionOverrides
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if err := s.store.SetGuestOverrides(ctx, sess.ID, guestID, body); err != nil {
		if err == ErrNotFound {
			writeError(w, http.StatusNotFound, "guest not found")
			return
		}
		log.Printf("songvote: set guest permissions: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	s.publishMod(ctx, sess.ID, "guest.permissions_changed", map[string]any{
		"sessionId": sess.ID,
		"guestId":   guestID,
		"by":        actorID,
	})
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleBanGuest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, actorID, ok := s.authorized(w, r, CapManageUsers)
	if !ok {
		return
	}
	guestID := chi.URLParam(r, "guestId")

	if err := s.store.SetGuestBanned(ctx, sess.ID, guestID, true); err != nil {
		log.Printf("songvote: ban guest: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	s.publishMod(ctx, sess.ID, "guest.banned", map[string]any{
		"sessionId": sess.ID,
		"guestId":   guestID,
		"by":        actorID,
	})
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleSetDefaults(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, _, ok := s.authorized(w, r, CapManageUsers)
	if !ok {
		return
	}

	var body PermissionSet
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if err := s.store.UpdateDefaults(ctx, sess.ID, body); err != nil {
		log.Printf("songvote: set defaults: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleListBlacklist(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, _, ok := s.authorized(w, r, CapManageQueue)
	if !ok {
		return
	}
	rules, err := s.store.ListBlacklist(ctx, sess.ID)
	if err != nil {
		log.Printf("songvote: list blacklist: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	writeJSON(w, http.StatusOK, rules)
}

func (s *Server) handleAddBlacklistRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, _, ok := s.authorized(w, r, CapManageQueue)
	if !ok {
		return
	}

	var body struct {
		Kind  string `json:"kind"`
		Value string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if (body.Kind != BlacklistTrack && body.Kind != BlacklistKeyword) || body.Value == "" {
		writeError(w, http.StatusBadRequest, "invalid rule")
		return
	}

	rule := &BlacklistRule{SessionID: sess.ID, Kind: body.Kind, Value: body.Value}
	if err := s.store.AddBlacklistRule(ctx, rule); err != nil {
		log.Printf("songvote: add blacklist rule: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	writeJSON(w, http.StatusCreated, rule)
}

func (s *Server) handleDeleteBlacklistRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, _, ok := s.authorized(w, r, CapManageQueue)
	if !ok {
		return
	}

	var body struct {
		Kind  string `json:"kind"`
		Value string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if err := s.store.DeleteBlacklistRule(ctx, sess.ID, body.Kind, body.Value); err != nil {
		log.Printf("songvote: delete blacklist rule: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// authorized loads the session and runs the capability check. Denials are a
// generic forbidden with no capability detail.
func (s *Server) authorized(w http.ResponseWriter, r *http.Request, cap Capability) (*Session, string, bool) {
	ctx := r.Context()
	actorID := r.Header.Get("X-User-Id")
	if actorID == "" {
		writeError(w, http.StatusUnauthorized, "missing user context")
		return nil, "", false
	}
	sess, err := s.store.GetSession(ctx, chi.URLParam(r, "id"))
	if err != nil {
		if err == ErrNotFound {
			writeError(w, http.StatusNotFound, "session not found")
			return nil, "", false
		}
		log.Printf("songvote: load session: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return nil, "", false
	}
	if !Authorize(ctx, s.store, sess, actorID, cap) {
		writeError(w, http.StatusForbidden, "forbidden")
		return nil, "", false
	}
	return sess, actorID, true
}

func (s *Server) publishMod(ctx context.Context, sessionID, eventType string, payload any) {
	realtime.PublishMod(ctx, s.rdb, sessionID, eventType, payload)
}
