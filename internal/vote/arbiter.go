package vote

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Imjack1-cyber/SongVote-sub000/internal/session"
)

const (
	maxBatchSize = 50

	// lockTTL bounds the per-actor submission lock; it self-expires so a
	// crashed request cannot wedge an actor.
	lockTTL = 5 * time.Second

	// voteHistoryFallbackTTL caps history retention for sessions that never
	// cycle (cycleDelay=0).
	voteHistoryFallbackTTL = 24 * time.Hour
)

// QueueIncrementer applies the accepted batch to the queue, all or nothing.
type QueueIncrementer interface {
	IncrementVotes(ctx context.Context, sessionID string, itemIDs []string) error
}

// Broadcaster re-broadcasts the session state after an accepted batch.
type Broadcaster interface {
	BroadcastState(ctx context.Context, sessionID string)
}

// ErrLocked means a submission from the same actor is still in flight.
// Surfaced as "try again shortly"; the server never retries on its own.
var ErrLocked = errors.New("vote submission already in progress")

// CooldownError reports an active voting cooldown.
type CooldownError struct {
	RemainingSeconds int
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("voting is on cooldown for %ds", e.RemainingSeconds)
}

// QuotaError reports a batch that would exceed the per-user vote quota.
// No partial admission: the whole batch is rejected.
type QuotaError struct {
	Used  int
	Limit int
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("vote quota exceeded (%d of %d used)", e.Used, e.Limit)
}

type Result struct {
	Accepted        []string `json:"accepted"`
	CooldownSeconds int      `json:"cooldownSeconds"`
}

type Arbiter struct {
	rdb   *redis.Client
	queue QueueIncrementer
}

func NewArbiter(rdb *redis.Client, queue QueueIncrementer) *Arbiter {
	return &Arbiter{rdb: rdb, queue: queue}
}

func lockKey(sessionID, actorID string) string {
	return "votelock:" + sessionID + ":" + actorID
}

func cooldownKey(sessionID, actorID string) string {
	return "votecooldown:" + sessionID + ":" + actorID
}

func historyKey(sessionID, actorID string) string {
	return "votehistory:" + sessionID + ":" + actorID
}

// Submit validates and applies a batch of votes for one actor. Quota math,
// history writes and cooldown start are serialized per (session, actor) by a
// short-lived lock; different actors interleave freely.
func (a *Arbiter) Submit(ctx context.Context, sess *session.Session, actorID string, itemIDs []string) (*Result, error) {
	itemIDs = dedupe(itemIDs)
	if len(itemIDs) == 0 || len(itemIDs) > maxBatchSize {
		return nil, fmt.Errorf("batch size must be 1..%d", maxBatchSize)
	}

	ok, err := a.rdb.SetNX(ctx, lockKey(sess.ID, actorID), "1", lockTTL).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLocked
	}
	defer func() {
		if err := a.rdb.Del(context.WithoutCancel(ctx), lockKey(sess.ID, actorID)).Err(); err != nil {
			log.Printf("songvote: release vote lock: %v", err)
		}
	}()

	if remaining, err := a.cooldownRemaining(ctx, sess.ID, actorID); err != nil {
		return nil, err
	} else if remaining > 0 {
		return nil, &CooldownError{RemainingSeconds: remaining}
	}

	history := historyKey(sess.ID, actorID)
	used, err := a.rdb.SCard(ctx, history).Result()
	if err != nil {
		return nil, err
	}
	if int(used)+len(itemIDs) > sess.VotesPerUser {
		return nil, &QuotaError{Used: int(used), Limit: sess.VotesPerUser}
	}

	// Ids already voted for are an idempotent no-op, not an error.
	novel := make([]string, 0, len(itemIDs))
	for _, id := range itemIDs {
		seen, err := a.rdb.SIsMember(ctx, history, id).Result()
		if err != nil {
			return nil, err
		}
		if !seen {
			novel = append(novel, id)
		}
	}

	cycleDelay := time.Duration(sess.CycleDelayMinutes) * time.Minute

	if len(novel) > 0 {
		if err := a.queue.IncrementVotes(ctx, sess.ID, novel); err != nil {
			return nil, err
		}

		args := make([]interface{}, len(novel))
		for i, id := range novel {
			args[i] = id
		}
		if err := a.rdb.SAdd(ctx, history, args...).Err(); err != nil {
			return nil, err
		}
		historyTTL := cycleDelay
		if historyTTL <= 0 {
			historyTTL = voteHistoryFallbackTTL
		}
		if err := a.rdb.Expire(ctx, history, historyTTL).Err(); err != nil {
			log.Printf("songvote: expire vote history: %v", err)
		}
	}

	res := &Result{Accepted: novel}
	if cycleDelay > 0 {
		if err := a.rdb.Set(ctx, cooldownKey(sess.ID, actorID), "1", cycleDelay).Err(); err != nil {
			return nil, err
		}
		res.CooldownSeconds = int(cycleDelay.Seconds())
	}
	return res, nil
}

// cooldownRemaining returns the remaining cooldown in whole seconds, zero
// when none is active.
func (a *Arbiter) cooldownRemaining(ctx context.Context, sessionID, actorID string) (int, error) {
	ttl, err := a.rdb.TTL(ctx, cooldownKey(sessionID, actorID)).Result()
	if err != nil {
		return 0, err
	}
	if ttl <= 0 {
		return 0, nil
	}
	secs := int(ttl / time.Second)
	if secs == 0 {
		secs = 1
	}
	return secs, nil
}

// ResetHistory force-clears the vote history and cooldown for one actor
// (administrator reset).
func (a *Arbiter) ResetHistory(ctx context.Context, sessionID, actorID string) error {
	return a.rdb.Del(ctx, historyKey(sessionID, actorID), cooldownKey(sessionID, actorID)).Err()
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
