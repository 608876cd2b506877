package vote

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Imjack1-cyber/SongVote-sub000/internal/session"
)

// stubSessions serves one fixed session and its guests.
type stubSessions struct {
	sess   *session.Session
	guests map[string]*session.Guest
}

func (s *stubSessions) GetSession(_ context.Context, id string) (*session.Session, error) {
	if s.sess != nil && s.sess.ID == id {
		return s.sess, nil
	}
	return nil, session.ErrNotFound
}

func (s *stubSessions) GetGuest(_ context.Context, _, guestID string) (*session.Guest, error) {
	if g, ok := s.guests[guestID]; ok {
		return g, nil
	}
	return nil, session.ErrNotFound
}

func (s *stubSessions) CreateSession(context.Context, *session.Session) (string, error) { return "", nil }
func (s *stubSessions) UpdateDefaults(context.Context, string, session.PermissionSet) error {
	return nil
}
func (s *stubSessions) UpsertGuest(context.Context, *session.Guest) error { return nil }
func (s *stubSessions) SetGuestBanned(context.Context, string, string, bool) error {
	return nil
}
func (s *stubSessions) SetGuestOverrides(context.Context, string, string, session.PermissionOverrides) error {
	return nil
}
func (s *stubSessions) ListBlacklist(context.Context, string) ([]session.BlacklistRule, error) {
	return nil, nil
}
func (s *stubSessions) AddBlacklistRule(context.Context, *session.BlacklistRule) error { return nil }
func (s *stubSessions) DeleteBlacklistRule(context.Context, string, string, string) error {
	return nil
}

type spyBroadcaster struct {
	sessions []string
}

func (b *spyBroadcaster) BroadcastState(_ context.Context, sessionID string) {
	b.sessions = append(b.sessions, sessionID)
}

func submitReq(sessionID, userID string, body any) *http.Request {
	data, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/sessions/"+sessionID+"/votes", bytes.NewReader(data))
	if userID != "" {
		req.Header.Set("X-User-Id", userID)
	}
	return req
}

func TestHandleSubmitVotes(t *testing.T) {
	newServer := func(t *testing.T, guests map[string]*session.Guest) (*Server, *spyBroadcaster) {
		arb, _, _ := newTestArbiter(t)
		sessions := &stubSessions{sess: testSession(3, 0), guests: guests}
		bc := &spyBroadcaster{}
		return NewServer(arb, sessions, bc), bc
	}

	t.Run("accepts and rebroadcasts", func(t *testing.T) {
		srv, bc := newServer(t, nil)
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, submitReq("s1", "u1", map[string]any{"itemIds": []string{"a", "b"}}))

		assert.Equal(t, http.StatusOK, rec.Code)
		var res Result
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
		assert.ElementsMatch(t, []string{"a", "b"}, res.Accepted)
		assert.Equal(t, []string{"s1"}, bc.sessions)
	})

	t.Run("missing user context", func(t *testing.T) {
		srv, _ := newServer(t, nil)
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, submitReq("s1", "", map[string]any{"itemIds": []string{"a"}}))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("unknown session", func(t *testing.T) {
		srv, _ := newServer(t, nil)
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, submitReq("nope", "u1", map[string]any{"itemIds": []string{"a"}}))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("banned guest is forbidden", func(t *testing.T) {
		srv, bc := newServer(t, map[string]*session.Guest{
			"u1": {GuestID: "u1", SessionID: "s1", Banned: true},
		})
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, submitReq("s1", "u1", map[string]any{"itemIds": []string{"a"}}))
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Empty(t, bc.sessions)
	})

	t.Run("quota overflow maps to 422 with remaining quota", func(t *testing.T) {
		srv, _ := newServer(t, nil)

		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, submitReq("s1", "u1", map[string]any{"itemIds": []string{"a", "b", "c"}}))
		assert.Equal(t, http.StatusOK, rec.Code)

		rec = httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, submitReq("s1", "u1", map[string]any{"itemIds": []string{"d"}}))
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

		var body map[string]any
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.EqualValues(t, 0, body["remainingQuota"])
	})
}

func TestWriteVoteError(t *testing.T) {
	t.Run("lock conflict", func(t *testing.T) {
		rec := httptest.NewRecorder()
		writeVoteError(rec, ErrLocked)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("cooldown carries remaining seconds", func(t *testing.T) {
		rec := httptest.NewRecorder()
		writeVoteError(rec, &CooldownError{RemainingSeconds: 42})
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)

		var body map[string]any
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.EqualValues(t, 42, body["cooldownSecondsRemaining"])
	})

	t.Run("anything else is internal", func(t *testing.T) {
		rec := httptest.NewRecorder()
		writeVoteError(rec, context.DeadlineExceeded)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}
