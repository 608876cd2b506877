package playback

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/Imjack1-cyber/SongVote-sub000/internal/ratelimit"
	"github.com/Imjack1-cyber/SongVote-sub000/internal/realtime"
	"github.com/Imjack1-cyber/SongVote-sub000/internal/session"
)

// Transport reports faster than this are a misbehaving client.
const (
	reportLimit  = 5
	reportWindow = 2 * time.Second
)

type Server struct {
	store    *Store
	sessions session.Store
	limiter  *ratelimit.Limiter
	rdb      *redis.Client
}

func NewServer(store *Store, sessions session.Store, limiter *ratelimit.Limiter, rdb *redis.Client) *Server {
	return &Server{store: store, sessions: sessions, limiter: limiter, rdb: rdb}
}

func (s *Server) Router(middlewares ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	for _, mw := range middlewares {
		r.Use(mw)
	}

	r.Post("/sessions/{id}/playback", s.handleReport)
	r.Get("/sessions/{id}/playback", s.handleGetSnapshot)

	return r
}

// handleReport converts a host transport event into a clock-relative snapshot
// and fans it out to the room. POST /sessions/{id}/playback
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actorID := r.Header.Get("X-User-Id")
	if actorID == "" {
		writeError(w, http.StatusUnauthorized, "missing user context")
		return
	}
	sessionID := chi.URLParam(r, "id")

	sess, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		if err == session.ErrNotFound {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		log.Printf("songvote: playback load session: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	if !session.Authorize(ctx, s.sessions, sess, actorID, session.CapControlPlayer) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	if !s.limiter.Allow(ctx, "playback:"+sessionID+":"+actorID, reportLimit, reportWindow) {
		writeError(w, http.StatusTooManyRequests, "too many playback reports")
		return
	}

	var body struct {
		Status          string  `json:"status"`
		TrackID         string  `json:"trackId"`
		PositionSeconds float64 `json:"positionSeconds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if body.TrackID == "" || (body.Status != StatusPlaying && body.Status != StatusPaused) || body.PositionSeconds < 0 {
		writeError(w, http.StatusBadRequest, "invalid report")
		return
	}

	now := time.Now().UnixMilli()
	posMs := int64(body.PositionSeconds * 1000)
	snap := &Snapshot{
		Status:       body.Status,
		TrackID:      body.TrackID,
		CapturedAtMs: now,
	}
	if body.Status == StatusPlaying {
		snap.StartTimeMs = now - posMs
	} else {
		snap.PositionMs = posMs
	}

	if err := s.store.Save(ctx, sessionID, snap); err != nil {
		log.Printf("songvote: save snapshot: %v", err)
		writeError(w, http.StatusInternalServerError, "store error")
		return
	}

	// The redis→hub fanout cannot address individual sockets, so the event
	// reaches the whole room, reporter included; reporterId lets the
	// controlling client drop its own echo.
	realtime.Publish(ctx, s.rdb, sessionID, "playback.sync", map[string]any{
		"sessionId":  sessionID,
		"reporterId": actorID,
		"snapshot":   snap,
	})

	writeJSON(w, http.StatusOK, snap)
}

// handleGetSnapshot serves the current snapshot for reconnecting viewers.
// GET /sessions/{id}/playback
func (s *Server) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := chi.URLParam(r, "id")

	snap, err := s.store.Load(ctx, sessionID)
	if err != nil {
		log.Printf("songvote: load snapshot: %v", err)
		writeError(w, http.StatusInternalServerError, "store error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"snapshot": snap})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
