package radio

import (
	"context"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Graph is the learned song-transition graph: a weighted directed edge per
// observed (source, target) pair. Weights only ever grow.
type Graph struct {
	pool *pgxpool.Pool
}

func NewGraph(pool *pgxpool.Pool) *Graph {
	return &Graph{pool: pool}
}

func AutoMigrate(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS song_associations(
            source_track_id TEXT NOT NULL,
            target_track_id TEXT NOT NULL,
            weight INT NOT NULL DEFAULT 1,
            updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
            PRIMARY KEY(source_track_id, target_track_id)
        )
    `)
	if err != nil {
		log.Printf("songvote: migrate song_associations: %v", err)
	}
	return err
}

// RecordTransition increments the edge source→target, creating it at weight 1.
// No-op unless both ids are present and distinct. Best-effort: callers are
// expected to log and continue on error.
func (g *Graph) RecordTransition(ctx context.Context, sourceID, targetID string) error {
	if sourceID == "" || targetID == "" || sourceID == targetID {
		return nil
	}
	_, err := g.pool.Exec(ctx, `
        INSERT INTO song_associations(source_track_id, target_track_id)
        VALUES($1,$2)
        ON CONFLICT(source_track_id, target_track_id)
        DO UPDATE SET weight = song_associations.weight + 1, updated_at = now()
    `, sourceID, targetID)
	if err != nil {
		return fmt.Errorf("record transition %s->%s: %w", sourceID, targetID, err)
	}
	return nil
}

// AssociatedCandidates returns up to limit outgoing edges from the seed track,
// strongest first, each with the association boost folded into ReactionCount.
func (g *Graph) AssociatedCandidates(ctx context.Context, seedID string, limit int) ([]Candidate, error) {
	rows, err := g.pool.Query(ctx, `
        SELECT t.id, t.title, t.artist, t.artwork_url, t.duration_ms,
               t.play_count, t.reaction_count, a.weight
        FROM song_associations a
        JOIN tracks t ON t.id = a.target_track_id
        WHERE a.source_track_id = $1
        ORDER BY a.weight DESC
        LIMIT $2
    `, seedID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		var c Candidate
		var weight int
		if err := rows.Scan(&c.TrackID, &c.Title, &c.Artist, &c.ArtworkURL,
			&c.DurationMs, &c.PlayCount, &c.ReactionCount, &weight); err != nil {
			return nil, err
		}
		c.ReactionCount = boostedReactionCount(c.ReactionCount, weight)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// boostedReactionCount folds a transition weight into the base reaction count
// so strongly learned transitions dominate the weighted selector.
func boostedReactionCount(base, weight int) int {
	return base + associationBoost*weight
}
