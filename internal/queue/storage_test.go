package queue

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgresStore(mock), mock
}

func entryRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "session_id", "track_id", "status", "vote_count", "suggested_by",
		"created_at", "updated_at",
		"t_id", "title", "artist", "artwork_url", "duration_ms", "play_count",
		"reaction_count", "t_created_at",
	})
}

func addEntryRow(rows *pgxmock.Rows, itemID, trackID, status string, votes int) *pgxmock.Rows {
	now := time.Now()
	return rows.AddRow(
		itemID, "s1", trackID, status, votes, nil,
		now, now,
		trackID, "Track "+trackID, "Band", "", 180000, 1, 0, now,
	)
}

func TestPromote(t *testing.T) {
	ctx := context.Background()

	t.Run("archives every stuck playing row before promoting", func(t *testing.T) {
		store, mock := setupMockStore(t)

		mock.ExpectBegin()
		// Two playing rows: the real current track and one left by a crashed
		// transition. Both must end up played.
		mock.ExpectQuery("SELECT id, track_id FROM queue_items").
			WithArgs("s1", StatusPlaying).
			WillReturnRows(pgxmock.NewRows([]string{"id", "track_id"}).
				AddRow("i1", "t1").
				AddRow("i0", "t0"))
		mock.ExpectExec("UPDATE queue_items SET status").
			WithArgs("i1", StatusPlayed).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectExec("UPDATE queue_items SET status").
			WithArgs("i0", StatusPlayed).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectQuery("SELECT id FROM queue_items").
			WithArgs("s1", StatusLive).
			WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("i2"))
		mock.ExpectExec("UPDATE queue_items SET status").
			WithArgs("i2", "s1", StatusPlaying, StatusLive, StatusPending).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectExec("UPDATE tracks SET play_count").
			WithArgs("i2").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectQuery("FROM queue_items i JOIN tracks t").
			WithArgs("i2").
			WillReturnRows(addEntryRow(entryRows(), "i2", "t2", StatusPlaying, 4))
		mock.ExpectCommit()

		prev, next, err := store.Promote(ctx, "s1", nil)
		assert.NoError(t, err)
		assert.Equal(t, "t1", prev)
		if assert.NotNil(t, next) {
			assert.Equal(t, "i2", next.Item.ID)
			assert.Equal(t, StatusPlaying, next.Status)
		}
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty queue commits the archive and returns nil", func(t *testing.T) {
		store, mock := setupMockStore(t)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, track_id FROM queue_items").
			WithArgs("s1", StatusPlaying).
			WillReturnRows(pgxmock.NewRows([]string{"id", "track_id"}).AddRow("i1", "t1"))
		mock.ExpectExec("UPDATE queue_items SET status").
			WithArgs("i1", StatusPlayed).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectQuery("SELECT id FROM queue_items").
			WithArgs("s1", StatusLive).
			WillReturnRows(pgxmock.NewRows([]string{"id"}))
		mock.ExpectCommit()

		prev, next, err := store.Promote(ctx, "s1", nil)
		assert.NoError(t, err)
		assert.Equal(t, "t1", prev)
		assert.Nil(t, next)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown target rolls back with not found", func(t *testing.T) {
		store, mock := setupMockStore(t)
		missing := "nope"

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, track_id FROM queue_items").
			WithArgs("s1", StatusPlaying).
			WillReturnRows(pgxmock.NewRows([]string{"id", "track_id"}))
		mock.ExpectExec("UPDATE queue_items SET status").
			WithArgs("nope", "s1", StatusPlaying, StatusLive, StatusPending).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mock.ExpectRollback()

		_, next, err := store.Promote(ctx, "s1", &missing)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Nil(t, next)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestStepBackStore(t *testing.T) {
	ctx := context.Background()

	t.Run("replays the last played item and frees the playing one", func(t *testing.T) {
		store, mock := setupMockStore(t)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id FROM queue_items").
			WithArgs("s1", StatusPlayed).
			WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("i0"))
		// Current playing row goes back into the vote queue, not to played.
		mock.ExpectExec("UPDATE queue_items SET status").
			WithArgs("s1", StatusPlaying, StatusLive).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectExec("UPDATE queue_items SET status").
			WithArgs("i0", StatusPlaying).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectQuery("FROM queue_items i JOIN tracks t").
			WithArgs("i0").
			WillReturnRows(addEntryRow(entryRows(), "i0", "t0", StatusPlaying, 2))
		mock.ExpectCommit()

		entry, err := store.StepBack(ctx, "s1")
		assert.NoError(t, err)
		if assert.NotNil(t, entry) {
			assert.Equal(t, "i0", entry.Item.ID)
		}
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no played history returns nil", func(t *testing.T) {
		store, mock := setupMockStore(t)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id FROM queue_items").
			WithArgs("s1", StatusPlayed).
			WillReturnRows(pgxmock.NewRows([]string{"id"}))
		mock.ExpectRollback()

		entry, err := store.StepBack(ctx, "s1")
		assert.NoError(t, err)
		assert.Nil(t, entry)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestForcePlayTrackStore(t *testing.T) {
	ctx := context.Background()
	in := TrackInput{TrackID: "t5", Title: "Now", Artist: "Band"}

	t.Run("promotes a matching live item", func(t *testing.T) {
		store, mock := setupMockStore(t)

		mock.ExpectExec("INSERT INTO tracks").
			WithArgs("t5", "Now", "Band", "", 0).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, track_id FROM queue_items").
			WithArgs("s1", StatusPlaying).
			WillReturnRows(pgxmock.NewRows([]string{"id", "track_id"}).AddRow("i1", "t1"))
		mock.ExpectExec("UPDATE queue_items SET status").
			WithArgs("i1", StatusPlayed).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectQuery("SELECT id FROM queue_items").
			WithArgs("s1", "t5", StatusLive).
			WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("i5"))
		mock.ExpectExec("UPDATE queue_items SET status").
			WithArgs("i5", "s1", StatusPlaying, StatusLive, StatusPending).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectExec("UPDATE tracks SET play_count").
			WithArgs("i5").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectQuery("FROM queue_items i JOIN tracks t").
			WithArgs("i5").
			WillReturnRows(addEntryRow(entryRows(), "i5", "t5", StatusPlaying, 3))
		mock.ExpectCommit()

		prev, entry, err := store.ForcePlayTrack(ctx, "s1", in)
		assert.NoError(t, err)
		assert.Equal(t, "t1", prev)
		if assert.NotNil(t, entry) {
			assert.Equal(t, "i5", entry.Item.ID)
		}
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("creates a playing item with maximal vote weight when none is queued", func(t *testing.T) {
		store, mock := setupMockStore(t)

		mock.ExpectExec("INSERT INTO tracks").
			WithArgs("t5", "Now", "Band", "", 0).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, track_id FROM queue_items").
			WithArgs("s1", StatusPlaying).
			WillReturnRows(pgxmock.NewRows([]string{"id", "track_id"}))
		mock.ExpectQuery("SELECT id FROM queue_items").
			WithArgs("s1", "t5", StatusLive).
			WillReturnRows(pgxmock.NewRows([]string{"id"}))
		mock.ExpectQuery("INSERT INTO queue_items").
			WithArgs("s1", "t5", StatusPlaying, forcePlayVoteWeight).
			WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("i9"))
		mock.ExpectExec("UPDATE tracks SET play_count").
			WithArgs("t5").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectQuery("FROM queue_items i JOIN tracks t").
			WithArgs("i9").
			WillReturnRows(addEntryRow(entryRows(), "i9", "t5", StatusPlaying, forcePlayVoteWeight))
		mock.ExpectCommit()

		prev, entry, err := store.ForcePlayTrack(ctx, "s1", in)
		assert.NoError(t, err)
		assert.Equal(t, "", prev)
		if assert.NotNil(t, entry) {
			assert.Equal(t, "i9", entry.Item.ID)
			assert.Equal(t, forcePlayVoteWeight, entry.VoteCount)
		}
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestIncrementVotesStore(t *testing.T) {
	ctx := context.Background()

	t.Run("applies the whole batch in one transaction", func(t *testing.T) {
		store, mock := setupMockStore(t)

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE queue_items SET vote_count").
			WithArgs("a", "s1", StatusLive).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectExec("UPDATE queue_items SET vote_count").
			WithArgs("b", "s1", StatusLive).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectCommit()

		assert.NoError(t, store.IncrementVotes(ctx, "s1", []string{"a", "b"}))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("a closed item aborts the batch", func(t *testing.T) {
		store, mock := setupMockStore(t)

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE queue_items SET vote_count").
			WithArgs("a", "s1", StatusLive).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		// "b" was already promoted; its vote never lands and neither does "a".
		mock.ExpectExec("UPDATE queue_items SET vote_count").
			WithArgs("b", "s1", StatusLive).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mock.ExpectRollback()

		assert.ErrorIs(t, store.IncrementVotes(ctx, "s1", []string{"a", "b"}), ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
