package radio

import (
	"context"
	"log"
	"math/rand"
	"sync"
)

// SelectNext picks the autoplay continuation among candidates. Tracks inside
// the recent-history no-repeat window are excluded first; if that empties the
// pool the cooldown is ignored, availability beats variety. Deterministic
// given the supplied random source.
func SelectNext(candidates []Candidate, recentHistory []string, rnd *rand.Rand) *Candidate {
	if len(candidates) == 0 {
		return nil
	}

	recent := make(map[string]bool, len(recentHistory))
	for _, id := range recentHistory {
		recent[id] = true
	}

	pool := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if !recent[c.TrackID] {
			pool = append(pool, c)
		}
	}
	if len(pool) == 0 {
		pool = candidates
	}
	if len(pool) == 1 {
		return &pool[0]
	}

	weights := make([]float64, len(pool))
	total := 0.0
	for i, c := range pool {
		w := 1.0 + float64(c.PlayCount)*0.05 + float64(c.ReactionCount)*0.15
		if w < 1.0 {
			w = 1.0
		}
		weights[i] = w
		total += w
	}

	draw := rnd.Float64() * total
	acc := 0.0
	for i := range pool {
		acc += weights[i]
		if draw < acc {
			return &pool[i]
		}
	}
	// Rounding can push the draw past the accumulated sum; take the last one.
	return &pool[len(pool)-1]
}

// CandidateSource supplies session-scoped autoplay material: tracks the
// session has already played and the recent-play history window.
type CandidateSource interface {
	PlayedCandidates(ctx context.Context, sessionID string, limit int) ([]Candidate, error)
	RecentPlayedTrackIDs(ctx context.Context, sessionID string, n int) ([]string, error)
}

// AssociationSource yields graph-boosted continuation candidates for a seed
// track.
type AssociationSource interface {
	AssociatedCandidates(ctx context.Context, seedID string, limit int) ([]Candidate, error)
}

// Picker assembles the candidate pool (association edges from the last played
// track plus the session's play history) and runs the weighted draw.
type Picker struct {
	graph  AssociationSource
	source CandidateSource

	mu  sync.Mutex
	rnd *rand.Rand
}

const candidateLimit = 20

func NewPicker(graph AssociationSource, source CandidateSource, rnd *rand.Rand) *Picker {
	return &Picker{graph: graph, source: source, rnd: rnd}
}

// Next returns the continuation track for a session whose queue ran dry, or
// nil when there is no history to draw from. Graph failures degrade to
// history-only selection.
func (p *Picker) Next(ctx context.Context, sessionID, lastTrackID string) (*Candidate, error) {
	var pool []Candidate
	seen := make(map[string]bool)

	if lastTrackID != "" {
		assoc, err := p.graph.AssociatedCandidates(ctx, lastTrackID, candidateLimit)
		if err != nil {
			log.Printf("songvote: associated candidates: %v", err)
		} else {
			for _, c := range assoc {
				if !seen[c.TrackID] {
					seen[c.TrackID] = true
					pool = append(pool, c)
				}
			}
		}
	}

	played, err := p.source.PlayedCandidates(ctx, sessionID, candidateLimit)
	if err != nil {
		return nil, err
	}
	for _, c := range played {
		if !seen[c.TrackID] {
			seen[c.TrackID] = true
			pool = append(pool, c)
		}
	}
	if len(pool) == 0 {
		return nil, nil
	}

	history, err := p.source.RecentPlayedTrackIDs(ctx, sessionID, historyWindow)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	pick := SelectNext(pool, history, p.rnd)
	p.mu.Unlock()
	return pick, nil
}
