package session

import (
	"context"
	"errors"
	"log"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store interface {
	GetSession(ctx context.Context, id string) (*Session, error)
	CreateSession(ctx context.Context, s *Session) (string, error)
	UpdateDefaults(ctx context.Context, id string, defaults PermissionSet) error
	GetGuest(ctx context.Context, sessionID, guestID string) (*Guest, error)
	UpsertGuest(ctx context.Context, g *Guest) error
	SetGuestBanned(ctx context.Context, sessionID, guestID string, banned bool) error
	SetGuestOverrides(ctx context.Context, sessionID, guestID string, o PermissionOverrides) error
	ListBlacklist(ctx context.Context, sessionID string) ([]BlacklistRule, error)
	AddBlacklistRule(ctx context.Context, r *BlacklistRule) error
	DeleteBlacklistRule(ctx context.Context, sessionID, kind, value string) error
}

var ErrNotFound = errors.New("not found")

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func AutoMigrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS pgcrypto`); err != nil {
		log.Printf("songvote: migrate pgcrypto: %v", err)
	}
	_, err := pool.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS sessions(
            id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
            host_id TEXT NOT NULL,
            name TEXT NOT NULL,
            votes_per_user INT NOT NULL DEFAULT 3,
            cycle_delay_minutes INT NOT NULL DEFAULT 0,
            require_verification BOOLEAN NOT NULL DEFAULT false,
            default_control_player BOOLEAN NOT NULL DEFAULT false,
            default_force_play BOOLEAN NOT NULL DEFAULT false,
            default_manage_queue BOOLEAN NOT NULL DEFAULT false,
            default_manage_users BOOLEAN NOT NULL DEFAULT false,
            default_print_cards BOOLEAN NOT NULL DEFAULT false,
            created_at TIMESTAMPTZ NOT NULL DEFAULT now()
        )
    `)
	if err != nil {
		log.Printf("songvote: migrate sessions: %v", err)
		return err
	}

	if _, err := pool.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS guests(
            session_id uuid NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
            guest_id TEXT NOT NULL,
            name TEXT NOT NULL DEFAULT '',
            banned BOOLEAN NOT NULL DEFAULT false,
            ov_control_player BOOLEAN,
            ov_force_play BOOLEAN,
            ov_manage_queue BOOLEAN,
            ov_manage_users BOOLEAN,
            ov_print_cards BOOLEAN,
            created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
            PRIMARY KEY(session_id, guest_id)
        )
    `); err != nil {
		return err
	}

	if _, err := pool.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS blacklist_rules(
            session_id uuid NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
            kind TEXT NOT NULL,
            value TEXT NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
            PRIMARY KEY(session_id, kind, value)
        )
    `); err != nil {
		return err
	}

	return nil
}

func (s *PostgresStore) GetSession(ctx context.Context, id string) (*Session, error) {
	var sess Session
	err := s.pool.QueryRow(ctx, `
        SELECT id, host_id, name, votes_per_user, cycle_delay_minutes, require_verification,
               default_control_player, default_force_play, default_manage_queue,
               default_manage_users, default_print_cards, created_at
        FROM sessions WHERE id=$1
    `, id).Scan(
		&sess.ID, &sess.HostID, &sess.Name, &sess.VotesPerUser, &sess.CycleDelayMinutes,
		&sess.RequireVerification,
		&sess.Defaults.ControlPlayer, &sess.Defaults.ForcePlay, &sess.Defaults.ManageQueue,
		&sess.Defaults.ManageUsers, &sess.Defaults.PrintCards, &sess.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &sess, nil
}

func (s *PostgresStore) CreateSession(ctx context.Context, sess *Session) (string, error) {
	id := uuid.NewString()
	_, err := s.pool.Exec(ctx, `
        INSERT INTO sessions(id, host_id, name, votes_per_user, cycle_delay_minutes, require_verification,
                             default_control_player, default_force_play, default_manage_queue,
                             default_manage_users, default_print_cards)
        VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
    `, id, sess.HostID, sess.Name, sess.VotesPerUser, sess.CycleDelayMinutes, sess.RequireVerification,
		sess.Defaults.ControlPlayer, sess.Defaults.ForcePlay, sess.Defaults.ManageQueue,
		sess.Defaults.ManageUsers, sess.Defaults.PrintCards)
	return id, err
}

func (s *PostgresStore) UpdateDefaults(ctx context.Context, id string, d PermissionSet) error {
	res, err := s.pool.Exec(ctx, `
        UPDATE sessions
        SET default_control_player=$2, default_force_play=$3, default_manage_queue=$4,
            default_manage_users=$5, default_print_cards=$6
        WHERE id=$1
    `, id, d.ControlPlayer, d.ForcePlay, d.ManageQueue, d.ManageUsers, d.PrintCards)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) GetGuest(ctx context.Context, sessionID, guestID string) (*Guest, error) {
	var g Guest
	err := s.pool.QueryRow(ctx, `
        SELECT session_id, guest_id, name, banned,
               ov_control_player, ov_force_play, ov_manage_queue, ov_manage_users, ov_print_cards,
               created_at
        FROM guests WHERE session_id=$1 AND guest_id=$2
    `, sessionID, guestID).Scan(
		&g.SessionID, &g.GuestID, &g.Name, &g.Banned,
		&g.Overrides.ControlPlayer, &g.Overrides.ForcePlay, &g.Overrides.ManageQueue,
		&g.Overrides.ManageUsers, &g.Overrides.PrintCards, &g.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &g, nil
}

func (s *PostgresStore) UpsertGuest(ctx context.Context, g *Guest) error {
	_, err := s.pool.Exec(ctx, `
        INSERT INTO guests(session_id, guest_id, name)
        VALUES($1,$2,$3)
        ON CONFLICT(session_id, guest_id) DO UPDATE SET name = EXCLUDED.name
    `, g.SessionID, g.GuestID, g.Name)
	return err
}

func (s *PostgresStore) SetGuestBanned(ctx context.Context, sessionID, guestID string, banned bool) error {
	_, err := s.pool.Exec(ctx, `
        INSERT INTO guests(session_id, guest_id, banned)
        VALUES($1,$2,$3)
        ON CONFLICT(session_id, guest_id) DO UPDATE SET banned = EXCLUDED.banned
    `, sessionID, guestID, banned)
	return err
}

func (s *PostgresStore) SetGuestOverrides(ctx context.Context, sessionID, guestID string, o PermissionOverrides) error {
	res, err := s.pool.Exec(ctx, `
        UPDATE guests
        SET ov_control_player=$3, ov_force_play=$4, ov_manage_queue=$5,
            ov_manage_users=$6, ov_print_cards=$7
        WHERE session_id=$1 AND guest_id=$2
    `, sessionID, guestID, o.ControlPlayer, o.ForcePlay, o.ManageQueue, o.ManageUsers, o.PrintCards)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListBlacklist(ctx context.Context, sessionID string) ([]BlacklistRule, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT session_id, kind, value FROM blacklist_rules WHERE session_id=$1 ORDER BY created_at
    `, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BlacklistRule
	for rows.Next() {
		var r BlacklistRule
		if err := rows.Scan(&r.SessionID, &r.Kind, &r.Value); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) AddBlacklistRule(ctx context.Context, r *BlacklistRule) error {
	_, err := s.pool.Exec(ctx, `
        INSERT INTO blacklist_rules(session_id, kind, value)
        VALUES($1,$2,$3) ON CONFLICT DO NOTHING
    `, r.SessionID, r.Kind, r.Value)
	return err
}

func (s *PostgresStore) DeleteBlacklistRule(ctx context.Context, sessionID, kind, value string) error {
	_, err := s.pool.Exec(ctx, `
        DELETE FROM blacklist_rules WHERE session_id=$1 AND kind=$2 AND value=$3
    `, sessionID, kind, value)
	return err
}
