package session

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) GetSession(ctx context.Context, id string) (*Session, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Session), args.Error(1)
}

func (m *MockStore) CreateSession(ctx context.Context, s *Session) (string, error) {
	args := m.Called(ctx, s)
	return args.String(0), args.Error(1)
}

func (m *MockStore) UpdateDefaults(ctx context.Context, id string, defaults PermissionSet) error {
	args := m.Called(ctx, id, defaults)
	return args.Error(0)
}

func (m *MockStore) GetGuest(ctx context.Context, sessionID, guestID string) (*Guest, error) {
	args := m.Called(ctx, sessionID, guestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Guest), args.Error(1)
}

func (m *MockStore) UpsertGuest(ctx context.Context, g *Guest) error {
	args := m.Called(ctx, g)
	return args.Error(0)
}

func (m *MockStore) SetGuestBanned(ctx context.Context, sessionID, guestID string, banned bool) error {
	args := m.Called(ctx, sessionID, guestID, banned)
	return args.Error(0)
}

func (m *MockStore) SetGuestOverrides(ctx context.Context, sessionID, guestID string, o PermissionOverrides) error {
	args := m.Called(ctx, sessionID, guestID, o)
	return args.Error(0)
}

func (m *MockStore) ListBlacklist(ctx context.Context, sessionID string) ([]BlacklistRule, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]BlacklistRule), args.Error(1)
}

func (m *MockStore) AddBlacklistRule(ctx context.Context, r *BlacklistRule) error {
	args := m.Called(ctx, r)
	return args.Error(0)
}

func (m *MockStore) DeleteBlacklistRule(ctx context.Context, sessionID, kind, value string) error {
	args := m.Called(ctx, sessionID, kind, value)
	return args.Error(0)
}
