package queue

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Imjack1-cyber/SongVote-sub000/internal/playback"
	"github.com/Imjack1-cyber/SongVote-sub000/internal/radio"
	"github.com/Imjack1-cyber/SongVote-sub000/internal/realtime"
	"github.com/Imjack1-cyber/SongVote-sub000/internal/session"
)

// Selector produces the autoplay continuation when the voted queue runs dry.
type Selector interface {
	Next(ctx context.Context, sessionID, lastTrackID string) (*radio.Candidate, error)
}

// Recorder learns observed track transitions. Best-effort: the service fires
// it asynchronously and only logs failures.
type Recorder interface {
	RecordTransition(ctx context.Context, sourceID, targetID string) error
}

type NopSelector struct{}

func (NopSelector) Next(context.Context, string, string) (*radio.Candidate, error) {
	return nil, nil
}

type NopRecorder struct{}

func (NopRecorder) RecordTransition(context.Context, string, string) error { return nil }

type queueError struct {
	status int
	msg    string
}

func (e *queueError) Error() string { return e.msg }

// State is the full session view broadcast after every transition and served
// to reconnecting clients: no delta continuity, always the whole picture.
type State struct {
	SessionID string             `json:"sessionId"`
	Queue     []Entry            `json:"queue"`
	Pending   []Entry            `json:"pending,omitempty"`
	Current   *Entry             `json:"current"`
	Snapshot  *playback.Snapshot `json:"snapshot"`
}

type Service struct {
	store     Store
	sessions  session.Store
	snapshots *playback.Store
	rdb       *redis.Client
	selector  Selector
	recorder  Recorder
}

func NewService(store Store, sessions session.Store, snapshots *playback.Store, rdb *redis.Client, selector Selector, recorder Recorder) *Service {
	if selector == nil {
		selector = NopSelector{}
	}
	if recorder == nil {
		recorder = NopRecorder{}
	}
	return &Service{
		store:     store,
		sessions:  sessions,
		snapshots: snapshots,
		rdb:       rdb,
		selector:  selector,
		recorder:  recorder,
	}
}

// FullState assembles queue + current + snapshot for one session.
func (svc *Service) FullState(ctx context.Context, sessionID string) (*State, error) {
	queue, err := svc.store.LiveQueue(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	pending, err := svc.store.PendingQueue(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	current, err := svc.store.Current(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	snap, err := svc.snapshots.Load(ctx, sessionID)
	if err != nil {
		log.Printf("songvote: load snapshot for state: %v", err)
		snap = nil
	}
	return &State{
		SessionID: sessionID,
		Queue:     queue,
		Pending:   pending,
		Current:   current,
		Snapshot:  snap,
	}, nil
}

// broadcastState publishes the full state to the session room. Read after
// write, not an incremental diff.
func (svc *Service) broadcastState(ctx context.Context, sessionID string) {
	state, err := svc.FullState(ctx, sessionID)
	if err != nil {
		log.Printf("songvote: broadcast state: %v", err)
		return
	}
	realtime.Publish(ctx, svc.rdb, sessionID, "queue.state", state)
}

// BroadcastState re-broadcasts the session state; used by vote arbitration
// after accepted batches.
func (svc *Service) BroadcastState(ctx context.Context, sessionID string) {
	svc.broadcastState(ctx, sessionID)
}

// Suggest adds a track to the session queue, pending moderation when the
// session requires verification. Blacklisted tracks are rejected up front.
func (svc *Service) Suggest(ctx context.Context, sess *session.Session, actorID string, in TrackInput) (*Entry, error) {
	if in.TrackID == "" || in.Title == "" {
		return nil, &queueError{status: http.StatusBadRequest, msg: "missing track identity"}
	}

	rules, err := svc.sessions.ListBlacklist(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	if blacklisted(rules, in) {
		return nil, &queueError{status: http.StatusUnprocessableEntity, msg: "suggestion rejected"}
	}

	if err := svc.store.UpsertTrack(ctx, in); err != nil {
		return nil, err
	}

	status := StatusLive
	if sess.RequireVerification {
		status = StatusPending
	}
	var suggestedBy *string
	if actorID != "" && actorID != sess.HostID {
		suggestedBy = &actorID
	}
	entry, err := svc.store.InsertItem(ctx, sess.ID, in.TrackID, status, suggestedBy)
	if err != nil {
		return nil, err
	}

	svc.broadcastState(ctx, sess.ID)
	return entry, nil
}

func blacklisted(rules []session.BlacklistRule, in TrackInput) bool {
	haystack := strings.ToLower(in.Title + " " + in.Artist)
	for _, r := range rules {
		switch r.Kind {
		case session.BlacklistTrack:
			if r.Value == in.TrackID {
				return true
			}
		case session.BlacklistKeyword:
			if strings.Contains(haystack, strings.ToLower(r.Value)) {
				return true
			}
		}
	}
	return false
}

// Approve releases a pending suggestion into the voting queue.
func (svc *Service) Approve(ctx context.Context, sessionID, itemID string) error {
	if err := svc.setStatusChecked(ctx, sessionID, itemID, []string{StatusPending}, StatusLive); err != nil {
		return err
	}
	svc.broadcastState(ctx, sessionID)
	return nil
}

// Reject moves a pending or live item to the terminal rejected status.
func (svc *Service) Reject(ctx context.Context, sessionID, itemID string) error {
	if err := svc.setStatusChecked(ctx, sessionID, itemID, []string{StatusPending, StatusLive}, StatusRejected); err != nil {
		return err
	}
	svc.broadcastState(ctx, sessionID)
	return nil
}

func (svc *Service) setStatusChecked(ctx context.Context, sessionID, itemID string, from []string, to string) error {
	item, err := svc.store.GetItem(ctx, itemID)
	if err != nil {
		if err == ErrNotFound {
			return &queueError{status: http.StatusNotFound, msg: "item not found"}
		}
		return err
	}
	if item.SessionID != sessionID {
		return &queueError{status: http.StatusNotFound, msg: "item not found"}
	}
	if err := svc.store.SetItemStatus(ctx, itemID, from, to); err != nil {
		if err == ErrBadTransition {
			return &queueError{status: http.StatusConflict, msg: "item is not in a valid state"}
		}
		return err
	}
	return nil
}

// SongStarted begins playback of a specific item. A stuck playing row left by
// a crashed transition is archived on the way.
func (svc *Service) SongStarted(ctx context.Context, sess *session.Session, itemID string) (*State, error) {
	_, next, err := svc.store.Promote(ctx, sess.ID, &itemID)
	if err != nil {
		if err == ErrNotFound {
			return nil, &queueError{status: http.StatusNotFound, msg: "item not found"}
		}
		return nil, err
	}
	if err := svc.snapshots.Save(ctx, sess.ID, playback.PlayingNow(next.Track.ID)); err != nil {
		log.Printf("songvote: save snapshot: %v", err)
	}
	return svc.finishTransition(ctx, sess.ID)
}

// SongTransition archives the current track and promotes the next. With no
// next item and an empty queue the smart radio takes over; with no candidate
// either, playback stops and the snapshot is cleared.
func (svc *Service) SongTransition(ctx context.Context, sess *session.Session, nextItemID *string) (*State, error) {
	prevTrackID, next, err := svc.store.Promote(ctx, sess.ID, nextItemID)
	if err != nil {
		if err == ErrNotFound {
			return nil, &queueError{status: http.StatusNotFound, msg: "item not found"}
		}
		return nil, err
	}

	if next == nil {
		cand, err := svc.selector.Next(ctx, sess.ID, prevTrackID)
		if err != nil {
			log.Printf("songvote: smart radio: %v", err)
		}
		if cand != nil {
			next, err = svc.store.InsertPlaying(ctx, sess.ID, cand.TrackID)
			if err != nil {
				return nil, err
			}
		}
	}

	if next == nil {
		if err := svc.snapshots.Clear(ctx, sess.ID); err != nil {
			log.Printf("songvote: clear snapshot: %v", err)
		}
		return svc.finishTransition(ctx, sess.ID)
	}

	if err := svc.snapshots.Save(ctx, sess.ID, playback.PlayingNow(next.Track.ID)); err != nil {
		log.Printf("songvote: save snapshot: %v", err)
	}
	svc.recordTransition(prevTrackID, next.Track.ID)
	return svc.finishTransition(ctx, sess.ID)
}

// SongBack replays the most recently played track; the interrupted one
// returns to the vote queue.
func (svc *Service) SongBack(ctx context.Context, sess *session.Session) (*State, error) {
	entry, err := svc.store.StepBack(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, &queueError{status: http.StatusConflict, msg: "no played history"}
	}
	if err := svc.snapshots.Save(ctx, sess.ID, playback.PlayingNow(entry.Track.ID)); err != nil {
		log.Printf("songvote: save snapshot: %v", err)
	}
	return svc.finishTransition(ctx, sess.ID)
}

// ForcePlay plays the given track immediately, bypassing vote ordering.
func (svc *Service) ForcePlay(ctx context.Context, sess *session.Session, in TrackInput) (*State, error) {
	if in.TrackID == "" || in.Title == "" {
		return nil, &queueError{status: http.StatusBadRequest, msg: "missing track identity"}
	}
	prevTrackID, next, err := svc.store.ForcePlayTrack(ctx, sess.ID, in)
	if err != nil {
		return nil, err
	}
	if err := svc.snapshots.Save(ctx, sess.ID, playback.PlayingNow(next.Track.ID)); err != nil {
		log.Printf("songvote: save snapshot: %v", err)
	}
	svc.recordTransition(prevTrackID, next.Track.ID)
	return svc.finishTransition(ctx, sess.ID)
}

// Remove rejects a live or pending item.
func (svc *Service) Remove(ctx context.Context, sessionID, itemID string) error {
	return svc.Reject(ctx, sessionID, itemID)
}

// BanSuggester rejects the item and bans the guest who suggested it.
func (svc *Service) BanSuggester(ctx context.Context, sess *session.Session, itemID string) error {
	item, err := svc.store.GetItem(ctx, itemID)
	if err != nil {
		if err == ErrNotFound {
			return &queueError{status: http.StatusNotFound, msg: "item not found"}
		}
		return err
	}
	if item.SessionID != sess.ID {
		return &queueError{status: http.StatusNotFound, msg: "item not found"}
	}

	if item.SuggestedBy != nil {
		if err := svc.sessions.SetGuestBanned(ctx, sess.ID, *item.SuggestedBy, true); err != nil {
			return err
		}
		realtime.PublishMod(ctx, svc.rdb, sess.ID, "guest.banned", map[string]any{
			"sessionId": sess.ID,
			"guestId":   *item.SuggestedBy,
		})
	}

	if err := svc.store.SetItemStatus(ctx, itemID, []string{StatusPending, StatusLive}, StatusRejected); err != nil && err != ErrBadTransition {
		return err
	}
	svc.broadcastState(ctx, sess.ID)
	return nil
}

// Clear is the hard session reset: every queue item is deleted and the
// playback snapshot removed. Irreversible.
func (svc *Service) Clear(ctx context.Context, sess *session.Session) error {
	if err := svc.store.DeleteSessionItems(ctx, sess.ID); err != nil {
		return err
	}
	if err := svc.snapshots.Clear(ctx, sess.ID); err != nil {
		log.Printf("songvote: clear snapshot: %v", err)
	}
	svc.broadcastState(ctx, sess.ID)
	return nil
}

func (svc *Service) finishTransition(ctx context.Context, sessionID string) (*State, error) {
	state, err := svc.FullState(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	realtime.Publish(ctx, svc.rdb, sessionID, "queue.state", state)
	return state, nil
}

// recordTransition feeds the association graph off the critical path. The
// request context is not reused: the learning write may outlive the request.
func (svc *Service) recordTransition(sourceID, targetID string) {
	if sourceID == "" || targetID == "" || sourceID == targetID {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := svc.recorder.RecordTransition(ctx, sourceID, targetID); err != nil {
			log.Printf("songvote: record transition: %v", err)
		}
	}()
}
