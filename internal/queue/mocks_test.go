package queue

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/Imjack1-cyber/SongVote-sub000/internal/radio"
	"github.com/Imjack1-cyber/SongVote-sub000/internal/session"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) UpsertTrack(ctx context.Context, in TrackInput) error {
	return m.Called(ctx, in).Error(0)
}

func (m *MockStore) GetTrack(ctx context.Context, id string) (*Track, error) {
	args := m.Called(ctx, id)
	t, _ := args.Get(0).(*Track)
	return t, args.Error(1)
}

func (m *MockStore) InsertItem(ctx context.Context, sessionID, trackID, status string, suggestedBy *string) (*Entry, error) {
	args := m.Called(ctx, sessionID, trackID, status, suggestedBy)
	e, _ := args.Get(0).(*Entry)
	return e, args.Error(1)
}

func (m *MockStore) GetItem(ctx context.Context, itemID string) (*Item, error) {
	args := m.Called(ctx, itemID)
	it, _ := args.Get(0).(*Item)
	return it, args.Error(1)
}

func (m *MockStore) SetItemStatus(ctx context.Context, itemID string, from []string, to string) error {
	return m.Called(ctx, itemID, from, to).Error(0)
}

func (m *MockStore) LiveQueue(ctx context.Context, sessionID string) ([]Entry, error) {
	args := m.Called(ctx, sessionID)
	q, _ := args.Get(0).([]Entry)
	return q, args.Error(1)
}

func (m *MockStore) PendingQueue(ctx context.Context, sessionID string) ([]Entry, error) {
	args := m.Called(ctx, sessionID)
	q, _ := args.Get(0).([]Entry)
	return q, args.Error(1)
}

func (m *MockStore) Current(ctx context.Context, sessionID string) (*Entry, error) {
	args := m.Called(ctx, sessionID)
	e, _ := args.Get(0).(*Entry)
	return e, args.Error(1)
}

func (m *MockStore) Promote(ctx context.Context, sessionID string, nextItemID *string) (string, *Entry, error) {
	args := m.Called(ctx, sessionID, nextItemID)
	e, _ := args.Get(1).(*Entry)
	return args.String(0), e, args.Error(2)
}

func (m *MockStore) InsertPlaying(ctx context.Context, sessionID, trackID string) (*Entry, error) {
	args := m.Called(ctx, sessionID, trackID)
	e, _ := args.Get(0).(*Entry)
	return e, args.Error(1)
}

func (m *MockStore) StepBack(ctx context.Context, sessionID string) (*Entry, error) {
	args := m.Called(ctx, sessionID)
	e, _ := args.Get(0).(*Entry)
	return e, args.Error(1)
}

func (m *MockStore) ForcePlayTrack(ctx context.Context, sessionID string, in TrackInput) (string, *Entry, error) {
	args := m.Called(ctx, sessionID, in)
	e, _ := args.Get(1).(*Entry)
	return args.String(0), e, args.Error(2)
}

func (m *MockStore) IncrementVotes(ctx context.Context, sessionID string, itemIDs []string) error {
	return m.Called(ctx, sessionID, itemIDs).Error(0)
}

func (m *MockStore) DeleteSessionItems(ctx context.Context, sessionID string) error {
	return m.Called(ctx, sessionID).Error(0)
}

func (m *MockStore) PlayedCandidates(ctx context.Context, sessionID string, limit int) ([]radio.Candidate, error) {
	args := m.Called(ctx, sessionID, limit)
	c, _ := args.Get(0).([]radio.Candidate)
	return c, args.Error(1)
}

func (m *MockStore) RecentPlayedTrackIDs(ctx context.Context, sessionID string, n int) ([]string, error) {
	args := m.Called(ctx, sessionID, n)
	ids, _ := args.Get(0).([]string)
	return ids, args.Error(1)
}

type MockSessionStore struct {
	mock.Mock
}

func (m *MockSessionStore) GetSession(ctx context.Context, id string) (*session.Session, error) {
	args := m.Called(ctx, id)
	s, _ := args.Get(0).(*session.Session)
	return s, args.Error(1)
}

func (m *MockSessionStore) CreateSession(ctx context.Context, s *session.Session) (string, error) {
	args := m.Called(ctx, s)
	return args.String(0), args.Error(1)
}

func (m *MockSessionStore) UpdateDefaults(ctx context.Context, id string, defaults session.PermissionSet) error {
	return m.Called(ctx, id, defaults).Error(0)
}

func (m *MockSessionStore) GetGuest(ctx context.Context, sessionID, guestID string) (*session.Guest, error) {
	args := m.Called(ctx, sessionID, guestID)
	g, _ := args.Get(0).(*session.Guest)
	return g, args.Error(1)
}

func (m *MockSessionStore) UpsertGuest(ctx context.Context, g *session.Guest) error {
	return m.Called(ctx, g).Error(0)
}

func (m *MockSessionStore) SetGuestBanned(ctx context.Context, sessionID, guestID string, banned bool) error {
	return m.Called(ctx, sessionID, guestID, banned).Error(0)
}

func (m *MockSessionStore) SetGuestOverrides(ctx context.Context, sessionID, guestID string, o session.PermissionOverrides) error {
	return m.Called(ctx, sessionID, guestID, o).Error(0)
}

func (m *MockSessionStore) ListBlacklist(ctx context.Context, sessionID string) ([]session.BlacklistRule, error) {
	args := m.Called(ctx, sessionID)
	rules, _ := args.Get(0).([]session.BlacklistRule)
	return rules, args.Error(1)
}

func (m *MockSessionStore) AddBlacklistRule(ctx context.Context, r *session.BlacklistRule) error {
	return m.Called(ctx, r).Error(0)
}

func (m *MockSessionStore) DeleteBlacklistRule(ctx context.Context, sessionID, kind, value string) error {
	return m.Called(ctx, sessionID, kind, value).Error(0)
}
