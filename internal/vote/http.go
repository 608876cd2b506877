package vote

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Imjack1-cyber/SongVote-sub000/internal/session"
)

type Server struct {
	arbiter     *Arbiter
	sessions    session.Store
	broadcaster Broadcaster
}

func NewServer(arbiter *Arbiter, sessions session.Store, broadcaster Broadcaster) *Server {
	return &Server{arbiter: arbiter, sessions: sessions, broadcaster: broadcaster}
}

func (s *Server) Router(middlewares ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	for _, mw := range middlewares {
		r.Use(mw)
	}

	r.Post("/sessions/{id}/votes", s.handleSubmitVotes)
	r.Post("/sessions/{id}/guests/{guestId}/reset-votes", s.handleResetVotes)

	return r
}

// handleSubmitVotes applies a batched vote submission for the calling actor.
// POST /sessions/{id}/votes
func (s *Server) handleSubmitVotes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actorID := r.Header.Get("X-User-Id")
	if actorID == "" {
		writeError(w, http.StatusUnauthorized, "missing user context")
		return
	}

	sess, err := s.sessions.GetSession(ctx, chi.URLParam(r, "id"))
	if err != nil {
		if err == session.ErrNotFound {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		log.Printf("songvote: votes load session: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	// Banned guests vote into the void.
	if actorID != sess.HostID {
		if g, err := s.sessions.GetGuest(ctx, sess.ID, actorID); err == nil && g.Banned {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
	}

	var body struct {
		ItemIDs []string `json:"itemIds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	res, err := s.arbiter.Submit(ctx, sess, actorID, body.ItemIDs)
	if err != nil {
		writeVoteError(w, err)
		return
	}

	s.broadcaster.BroadcastState(ctx, sess.ID)
	writeJSON(w, http.StatusOK, res)
}

// handleResetVotes force-resets an actor's vote history and cooldown.
// POST /sessions/{id}/guests/{guestId}/reset-votes
func (s *Server) handleResetVotes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actorID := r.Header.Get("X-User-Id")
	if actorID == "" {
		writeError(w, http.StatusUnauthorized, "missing user context")
		return
	}
	sess, err := s.sessions.GetSession(ctx, chi.URLParam(r, "id"))
	if err != nil {
		if err == session.ErrNotFound {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		log.Printf("songvote: reset votes load session: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	if !session.Authorize(ctx, s.sessions, sess, actorID, session.CapManageUsers) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	if err := s.arbiter.ResetHistory(ctx, sess.ID, chi.URLParam(r, "guestId")); err != nil {
		log.Printf("songvote: reset vote history: %v", err)
		writeError(w, http.StatusInternalServerError, "store error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func writeVoteError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrLocked) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error": "a vote from you is still processing, try again shortly",
		})
		return
	}
	var ce *CooldownError
	if errors.As(err, &ce) {
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"error":                    "voting is on cooldown",
			"cooldownSecondsRemaining": ce.RemainingSeconds,
		})
		return
	}
	var qe *QuotaError
	if errors.As(err, &qe) {
		remaining := qe.Limit - qe.Used
		if remaining < 0 {
			remaining = 0
		}
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":          "vote quota exceeded",
			"remainingQuota": remaining,
		})
		return
	}
	log.Printf("songvote: submit votes: %v", err)
	writeError(w, http.StatusInternalServerError, "internal error")
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
