package queue

import (
	"time"
)

// Track is the global catalog identity of a song. Counters are aggregate,
// increment-only, and used solely to weight autoplay selection.
type Track struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Artist        string    `json:"artist"`
	ArtworkURL    string    `json:"artworkUrl,omitempty"`
	DurationMs    int       `json:"durationMs"`
	PlayCount     int       `json:"playCount"`
	ReactionCount int       `json:"reactionCount"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Item is one track's participation in one session's queue.
type Item struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"sessionId"`
	TrackID     string    `json:"trackId"`
	Status      string    `json:"status"`
	VoteCount   int       `json:"voteCount"`
	SuggestedBy *string   `json:"suggestedBy,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Entry is the joined item+track view used in queue reads and broadcasts.
type Entry struct {
	Item
	Track Track `json:"track"`
}

// TrackInput is the external track identity carried by a suggestion.
type TrackInput struct {
	TrackID    string `json:"trackId"`
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	ArtworkURL string `json:"artworkUrl"`
	DurationMs int    `json:"durationMs"`
}

const (
	StatusPending  = "pending"
	StatusLive     = "live"
	StatusPlaying  = "playing"
	StatusPlayed   = "played"
	StatusRejected = "rejected"
)

// forcePlayVoteWeight makes a force-played item sort first if it ever returns
// to the voting queue.
const forcePlayVoteWeight = 1 << 20
