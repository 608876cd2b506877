package radio

// Candidate is a track eligible for autoplay continuation. ReactionCount may
// already include the association boost applied by AssociatedCandidates.
type Candidate struct {
	TrackID       string `json:"trackId"`
	Title         string `json:"title"`
	Artist        string `json:"artist"`
	ArtworkURL    string `json:"artworkUrl,omitempty"`
	DurationMs    int    `json:"durationMs"`
	PlayCount     int    `json:"playCount"`
	ReactionCount int    `json:"reactionCount"`
}

// historyWindow is the rolling no-repeat window consulted before selection.
const historyWindow = 15

// associationBoost amplifies learned transition weights over the stored base
// reaction count so strong transitions dominate the weighted draw.
const associationBoost = 2
