package playback

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	StatusPlaying = "playing"
	StatusPaused  = "paused"
)

// Snapshot is the clock-relative playback state viewers reconstruct position
// from. While playing it carries the start instant rather than a ticking
// position, so it survives serialization and client clock skew.
type Snapshot struct {
	Status       string `json:"status"`
	TrackID      string `json:"trackId"`
	StartTimeMs  int64  `json:"startTimeMs,omitempty"`
	PositionMs   int64  `json:"positionMs,omitempty"`
	CapturedAtMs int64  `json:"capturedAtMs"`
}

// PositionAt reconstructs the playback position at the given instant.
func PositionAt(snap *Snapshot, nowMs int64) int64 {
	if snap == nil {
		return 0
	}
	if snap.Status == StatusPlaying {
		pos := nowMs - snap.StartTimeMs
		if pos < 0 {
			return 0
		}
		return pos
	}
	return snap.PositionMs
}

// Reseek thresholds: paused drift is more visible to someone staring at a
// frozen frame, so it gets the tighter bound.
const (
	playingDriftMs = 2000
	pausedDriftMs  = 500
)

// Reconcile decides whether a viewer should seek after receiving a snapshot.
// Snapshots for a track the viewer is not on are stale and ignored.
func Reconcile(snap *Snapshot, localTrackID string, localPositionMs, nowMs int64) (seekToMs int64, seek bool) {
	if snap == nil || snap.TrackID != localTrackID {
		return 0, false
	}
	target := PositionAt(snap, nowMs)
	drift := target - localPositionMs
	if drift < 0 {
		drift = -drift
	}
	threshold := int64(playingDriftMs)
	if snap.Status == StatusPaused {
		threshold = pausedDriftMs
	}
	if drift > threshold {
		return target, true
	}
	return 0, false
}

// Store keeps the per-session snapshot in redis, last writer wins.
type Store struct {
	rdb *redis.Client
}

func NewStore(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

func snapshotKey(sessionID string) string {
	return "playback:" + sessionID
}

func (s *Store) Save(ctx context.Context, sessionID string, snap *Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, snapshotKey(sessionID), data, 0).Err()
}

// Load returns nil with no error when the session has no snapshot.
func (s *Store) Load(ctx context.Context, sessionID string) (*Snapshot, error) {
	data, err := s.rdb.Get(ctx, snapshotKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (s *Store) Clear(ctx context.Context, sessionID string) error {
	return s.rdb.Del(ctx, snapshotKey(sessionID)).Err()
}

// PlayingNow builds the snapshot written on a track transition: the track just
// began, position zero.
func PlayingNow(trackID string) *Snapshot {
	now := time.Now().UnixMilli()
	return &Snapshot{
		Status:       StatusPlaying,
		TrackID:      trackID,
		StartTimeMs:  now,
		CapturedAtMs: now,
	}
}
