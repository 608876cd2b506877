package queue

import (
	"context"
	"errors"
	"log"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Imjack1-cyber/SongVote-sub000/internal/radio"
)

// DB is the pgx surface the store needs. It is implemented by *pgxpool.Pool
// and can be mocked for testing.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

type Store interface {
	UpsertTrack(ctx context.Context, in TrackInput) error
	GetTrack(ctx context.Context, id string) (*Track, error)
	InsertItem(ctx context.Context, sessionID, trackID, status string, suggestedBy *string) (*Entry, error)
	GetItem(ctx context.Context, itemID string) (*Item, error)
	SetItemStatus(ctx context.Context, itemID string, from []string, to string) error
	LiveQueue(ctx context.Context, sessionID string) ([]Entry, error)
	PendingQueue(ctx context.Context, sessionID string) ([]Entry, error)
	Current(ctx context.Context, sessionID string) (*Entry, error)
	Promote(ctx context.Context, sessionID string, nextItemID *string) (prevTrackID string, next *Entry, err error)
	InsertPlaying(ctx context.Context, sessionID, trackID string) (*Entry, error)
	StepBack(ctx context.Context, sessionID string) (*Entry, error)
	ForcePlayTrack(ctx context.Context, sessionID string, in TrackInput) (prevTrackID string, next *Entry, err error)
	IncrementVotes(ctx context.Context, sessionID string, itemIDs []string) error
	DeleteSessionItems(ctx context.Context, sessionID string) error
	PlayedCandidates(ctx context.Context, sessionID string, limit int) ([]radio.Candidate, error)
	RecentPlayedTrackIDs(ctx context.Context, sessionID string, n int) ([]string, error)
}

var (
	ErrNotFound      = errors.New("item not found")
	ErrBadTransition = errors.New("invalid status transition")
)

type PostgresStore struct {
	pool DB
}

func NewPostgresStore(pool DB) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func AutoMigrate(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS tracks(
            id TEXT PRIMARY KEY,
            title TEXT NOT NULL,
            artist TEXT NOT NULL,
            artwork_url TEXT NOT NULL DEFAULT '',
            duration_ms INT NOT NULL DEFAULT 0,
            play_count INT NOT NULL DEFAULT 0,
            reaction_count INT NOT NULL DEFAULT 0,
            created_at TIMESTAMPTZ NOT NULL DEFAULT now()
        )
    `)
	if err != nil {
		log.Printf("songvote: migrate tracks: %v", err)
		return err
	}

	if _, err := pool.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS queue_items(
            id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
            session_id uuid NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
            track_id TEXT NOT NULL REFERENCES tracks(id),
            status TEXT NOT NULL DEFAULT 'live',
            vote_count INT NOT NULL DEFAULT 0,
            suggested_by TEXT,
            created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
        )
    `); err != nil {
		return err
	}

	if _, err := pool.Exec(ctx, `
        CREATE INDEX IF NOT EXISTS idx_queue_items_session_status
        ON queue_items(session_id, status)
    `); err != nil {
		log.Printf("songvote: migrate queue index: %v", err)
	}

	return nil
}

func (s *PostgresStore) UpsertTrack(ctx context.Context, in TrackInput) error {
	_, err := s.pool.Exec(ctx, `
        INSERT INTO tracks(id, title, artist, artwork_url, duration_ms)
        VALUES($1,$2,$3,$4,$5)
        ON CONFLICT(id) DO UPDATE
        SET title = EXCLUDED.title, artist = EXCLUDED.artist,
            artwork_url = EXCLUDED.artwork_url, duration_ms = EXCLUDED.duration_ms
    `, in.TrackID, in.Title, in.Artist, in.ArtworkURL, in.DurationMs)
	return err
}

func (s *PostgresStore) GetTrack(ctx context.Context, id string) (*Track, error) {
	var t Track
	err := s.pool.QueryRow(ctx, `
        SELECT id, title, artist, artwork_url, duration_ms, play_count, reaction_count, created_at
        FROM tracks WHERE id=$1
    `, id).Scan(&t.ID, &t.Title, &t.Artist, &t.ArtworkURL, &t.DurationMs,
		&t.PlayCount, &t.ReactionCount, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

const entryColumns = `
    i.id, i.session_id, i.track_id, i.status, i.vote_count, i.suggested_by,
    i.created_at, i.updated_at,
    t.id, t.title, t.artist, t.artwork_url, t.duration_ms, t.play_count,
    t.reaction_count, t.created_at
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	var e Entry
	err := row.Scan(
		&e.Item.ID, &e.SessionID, &e.Item.TrackID, &e.Status, &e.VoteCount, &e.SuggestedBy,
		&e.Item.CreatedAt, &e.UpdatedAt,
		&e.Track.ID, &e.Track.Title, &e.Track.Artist, &e.Track.ArtworkURL,
		&e.Track.DurationMs, &e.Track.PlayCount, &e.Track.ReactionCount, &e.Track.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *PostgresStore) InsertItem(ctx context.Context, sessionID, trackID, status string, suggestedBy *string) (*Entry, error) {
	var id string
	err := s.pool.QueryRow(ctx, `
        INSERT INTO queue_items(session_id, track_id, status, suggested_by)
        VALUES($1,$2,$3,$4)
        RETURNING id
    `, sessionID, trackID, status, suggestedBy).Scan(&id)
	if err != nil {
		return nil, err
	}
	return s.entryByID(ctx, id)
}

func (s *PostgresStore) entryByID(ctx context.Context, itemID string) (*Entry, error) {
	row := s.pool.QueryRow(ctx, `
        SELECT `+entryColumns+`
        FROM queue_items i JOIN tracks t ON t.id = i.track_id
        WHERE i.id=$1
    `, itemID)
	e, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

func (s *PostgresStore) GetItem(ctx context.Context, itemID string) (*Item, error) {
	var it Item
	err := s.pool.QueryRow(ctx, `
        SELECT id, session_id, track_id, status, vote_count, suggested_by, created_at, updated_at
        FROM queue_items WHERE id=$1
    `, itemID).Scan(&it.ID, &it.SessionID, &it.TrackID, &it.Status, &it.VoteCount,
		&it.SuggestedBy, &it.CreatedAt, &it.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &it, nil
}

// SetItemStatus moves an item to a new status, but only from one of the
// allowed source statuses.
func (s *PostgresStore) SetItemStatus(ctx context.Context, itemID string, from []string, to string) error {
	res, err := s.pool.Exec(ctx, `
        UPDATE queue_items SET status=$2, updated_at=now()
        WHERE id=$1 AND status = ANY($3)
    `, itemID, to, from)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		if _, err := s.GetItem(ctx, itemID); err != nil {
			return err
		}
		return ErrBadTransition
	}
	return nil
}

func (s *PostgresStore) LiveQueue(ctx context.Context, sessionID string) ([]Entry, error) {
	return s.queueByStatus(ctx, sessionID, StatusLive)
}

func (s *PostgresStore) PendingQueue(ctx context.Context, sessionID string) ([]Entry, error) {
	return s.queueByStatus(ctx, sessionID, StatusPending)
}

func (s *PostgresStore) queueByStatus(ctx context.Context, sessionID, status string) ([]Entry, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT `+entryColumns+`
        FROM queue_items i JOIN tracks t ON t.id = i.track_id
        WHERE i.session_id=$1 AND i.status=$2
        ORDER BY i.vote_count DESC, i.updated_at ASC
    `, sessionID, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *PostgresStore) Current(ctx context.Context, sessionID string) (*Entry, error) {
	row := s.pool.QueryRow(ctx, `
        SELECT `+entryColumns+`
        FROM queue_items i JOIN tracks t ON t.id = i.track_id
        WHERE i.session_id=$1 AND i.status=$2
        ORDER BY i.updated_at DESC
        LIMIT 1
    `, sessionID, StatusPlaying)
	e, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return e, err
}

// Promote is the transition transaction: every playing row is archived (this
// also self-heals rows stuck from a crashed transition), then the target item
// becomes playing. With a nil nextItemID the top voted live item is promoted;
// next comes back nil when the live queue is empty, evaluated inside the same
// transaction so a racing suggestion either lands before the archive or waits
// a cycle.
func (s *PostgresStore) Promote(ctx context.Context, sessionID string, nextItemID *string) (string, *Entry, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return "", nil, err
	}
	defer tx.Rollback(ctx)

	prevTrackID, err := archivePlaying(ctx, tx, sessionID)
	if err != nil {
		return "", nil, err
	}

	var promoteID string
	if nextItemID != nil {
		promoteID = *nextItemID
	} else {
		err := tx.QueryRow(ctx, `
            SELECT id FROM queue_items
            WHERE session_id=$1 AND status=$2
            ORDER BY vote_count DESC, updated_at ASC
            LIMIT 1
            FOR UPDATE
        `, sessionID, StatusLive).Scan(&promoteID)
		if errors.Is(err, pgx.ErrNoRows) {
			// Queue is empty; caller decides between radio and stop.
			if err := tx.Commit(ctx); err != nil {
				return "", nil, err
			}
			return prevTrackID, nil, nil
		}
		if err != nil {
			return "", nil, err
		}
	}

	next, err := promoteItem(ctx, tx, sessionID, promoteID)
	if err != nil {
		return "", nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return "", nil, err
	}
	return prevTrackID, next, nil
}

func archivePlaying(ctx context.Context, tx pgx.Tx, sessionID string) (string, error) {
	rows, err := tx.Query(ctx, `
        SELECT id, track_id FROM queue_items
        WHERE session_id=$1 AND status=$2
        ORDER BY updated_at DESC
        FOR UPDATE
    `, sessionID, StatusPlaying)
	if err != nil {
		return "", err
	}
	var ids []string
	var prevTrackID string
	for rows.Next() {
		var id, trackID string
		if err := rows.Scan(&id, &trackID); err != nil {
			rows.Close()
			return "", err
		}
		if prevTrackID == "" {
			prevTrackID = trackID
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return "", err
	}

	for _, id := range ids {
		if _, err := tx.Exec(ctx, `
            UPDATE queue_items SET status=$2, updated_at=now() WHERE id=$1
        `, id, StatusPlayed); err != nil {
			return "", err
		}
	}
	return prevTrackID, nil
}

func promoteItem(ctx context.Context, tx pgx.Tx, sessionID, itemID string) (*Entry, error) {
	res, err := tx.Exec(ctx, `
        UPDATE queue_items SET status=$3, updated_at=now()
        WHERE id=$1 AND session_id=$2 AND status IN ($4,$5)
    `, itemID, sessionID, StatusPlaying, StatusLive, StatusPending)
	if err != nil {
		return nil, err
	}
	if res.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	if _, err := tx.Exec(ctx, `
        UPDATE tracks SET play_count = play_count + 1
        WHERE id = (SELECT track_id FROM queue_items WHERE id=$1)
    `, itemID); err != nil {
		return nil, err
	}

	row := tx.QueryRow(ctx, `
        SELECT `+entryColumns+`
        FROM queue_items i JOIN tracks t ON t.id = i.track_id
        WHERE i.id=$1
    `, itemID)
	return scanEntry(row)
}

// InsertPlaying synthesizes a radio continuation item directly in playing
// state: no votes, no suggester.
func (s *PostgresStore) InsertPlaying(ctx context.Context, sessionID, trackID string) (*Entry, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := archivePlaying(ctx, tx, sessionID); err != nil {
		return nil, err
	}

	var id string
	if err := tx.QueryRow(ctx, `
        INSERT INTO queue_items(session_id, track_id, status)
        VALUES($1,$2,$3)
        RETURNING id
    `, sessionID, trackID, StatusPlaying).Scan(&id); err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, `
        UPDATE tracks SET play_count = play_count + 1 WHERE id=$1
    `, trackID); err != nil {
		return nil, err
	}

	row := tx.QueryRow(ctx, `
        SELECT `+entryColumns+`
        FROM queue_items i JOIN tracks t ON t.id = i.track_id
        WHERE i.id=$1
    `, id)
	e, err := scanEntry(row)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

// StepBack replays the most recently played item. The item that was playing
// re-enters the vote queue rather than being discarded.
func (s *PostgresStore) StepBack(ctx context.Context, sessionID string) (*Entry, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var backID string
	err = tx.QueryRow(ctx, `
        SELECT id FROM queue_items
        WHERE session_id=$1 AND status=$2
        ORDER BY updated_at DESC
        LIMIT 1
        FOR UPDATE
    `, sessionID, StatusPlayed).Scan(&backID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, `
        UPDATE queue_items SET status=$3, updated_at=now()
        WHERE session_id=$1 AND status=$2
    `, sessionID, StatusPlaying, StatusLive); err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, `
        UPDATE queue_items SET status=$2, updated_at=now() WHERE id=$1
    `, backID, StatusPlaying); err != nil {
		return nil, err
	}

	row := tx.QueryRow(ctx, `
        SELECT `+entryColumns+`
        FROM queue_items i JOIN tracks t ON t.id = i.track_id
        WHERE i.id=$1
    `, backID)
	e, err := scanEntry(row)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

// ForcePlayTrack bypasses vote ordering: the current playing item is archived
// and a matching live item is promoted, or a fresh item is created playing
// with an artificially maximal vote weight.
func (s *PostgresStore) ForcePlayTrack(ctx context.Context, sessionID string, in TrackInput) (string, *Entry, error) {
	if err := s.UpsertTrack(ctx, in); err != nil {
		return "", nil, err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return "", nil, err
	}
	defer tx.Rollback(ctx)

	prevTrackID, err := archivePlaying(ctx, tx, sessionID)
	if err != nil {
		return "", nil, err
	}

	var itemID string
	err = tx.QueryRow(ctx, `
        SELECT id FROM queue_items
        WHERE session_id=$1 AND track_id=$2 AND status=$3
        ORDER BY updated_at ASC
        LIMIT 1
        FOR UPDATE
    `, sessionID, in.TrackID, StatusLive).Scan(&itemID)
	if errors.Is(err, pgx.ErrNoRows) {
		err = tx.QueryRow(ctx, `
            INSERT INTO queue_items(session_id, track_id, status, vote_count)
            VALUES($1,$2,$3,$4)
            RETURNING id
        `, sessionID, in.TrackID, StatusPlaying, forcePlayVoteWeight).Scan(&itemID)
		if err != nil {
			return "", nil, err
		}
		if _, err := tx.Exec(ctx, `
            UPDATE tracks SET play_count = play_count + 1 WHERE id=$1
        `, in.TrackID); err != nil {
			return "", nil, err
		}
		row := tx.QueryRow(ctx, `
            SELECT `+entryColumns+`
            FROM queue_items i JOIN tracks t ON t.id = i.track_id
            WHERE i.id=$1
        `, itemID)
		e, err := scanEntry(row)
		if err != nil {
			return "", nil, err
		}
		if err := tx.Commit(ctx); err != nil {
			return "", nil, err
		}
		return prevTrackID, e, nil
	}
	if err != nil {
		return "", nil, err
	}

	e, err := promoteItem(ctx, tx, sessionID, itemID)
	if err != nil {
		return "", nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return "", nil, err
	}
	return prevTrackID, e, nil
}

// IncrementVotes applies one vote to each item, all or nothing. Only items
// still open for voting count; a missing or closed item aborts the batch.
func (s *PostgresStore) IncrementVotes(ctx context.Context, sessionID string, itemIDs []string) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, id := range itemIDs {
		res, err := tx.Exec(ctx, `
            UPDATE queue_items SET vote_count = vote_count + 1, updated_at=now()
            WHERE id=$1 AND session_id=$2 AND status=$3
        `, id, sessionID, StatusLive)
		if err != nil {
			return err
		}
		if res.RowsAffected() == 0 {
			return ErrNotFound
		}
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) DeleteSessionItems(ctx context.Context, sessionID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM queue_items WHERE session_id=$1`, sessionID)
	return err
}

// PlayedCandidates feeds the smart radio: distinct tracks this session has
// already played, most played first.
func (s *PostgresStore) PlayedCandidates(ctx context.Context, sessionID string, limit int) ([]radio.Candidate, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT DISTINCT ON (t.id) t.id, t.title, t.artist, t.artwork_url,
               t.duration_ms, t.play_count, t.reaction_count
        FROM queue_items i JOIN tracks t ON t.id = i.track_id
        WHERE i.session_id=$1 AND i.status=$2
        ORDER BY t.id, t.play_count DESC
        LIMIT $3
    `, sessionID, StatusPlayed, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []radio.Candidate
	for rows.Next() {
		var c radio.Candidate
		if err := rows.Scan(&c.TrackID, &c.Title, &c.Artist, &c.ArtworkURL,
			&c.DurationMs, &c.PlayCount, &c.ReactionCount); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) RecentPlayedTrackIDs(ctx context.Context, sessionID string, n int) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT track_id FROM queue_items
        WHERE session_id=$1 AND status=$2
        ORDER BY updated_at DESC
        LIMIT $3
    `, sessionID, StatusPlayed, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
