package session

import (
	"time"
)

// Session is one host-run voting event with its own queue, guests and config.
type Session struct {
	ID                  string        `json:"id"`
	HostID              string        `json:"hostId"`
	Name                string        `json:"name"`
	VotesPerUser        int           `json:"votesPerUser"`
	CycleDelayMinutes   int           `json:"cycleDelayMinutes"`
	RequireVerification bool          `json:"requireVerification"`
	Defaults            PermissionSet `json:"defaults"`
	CreatedAt           time.Time     `json:"createdAt"`
}

// PermissionSet holds the capabilities a guest may be granted.
type PermissionSet struct {
	ControlPlayer bool `json:"controlPlayer"`
	ForcePlay     bool `json:"forcePlay"`
	ManageQueue   bool `json:"manageQueue"`
	ManageUsers   bool `json:"manageUsers"`
	PrintCards    bool `json:"printCards"`
}

// PermissionOverrides is the per-guest tri-state override: nil means
// "fall back to the session default" for that capability.
type PermissionOverrides struct {
	ControlPlayer *bool `json:"controlPlayer,omitempty"`
	ForcePlay     *bool `json:"forcePlay,omitempty"`
	ManageQueue   *bool `json:"manageQueue,omitempty"`
	ManageUsers   *bool `json:"manageUsers,omitempty"`
	PrintCards    *bool `json:"printCards,omitempty"`
}

type Guest struct {
	SessionID string              `json:"sessionId"`
	GuestID   string              `json:"guestId"`
	Name      string              `json:"name"`
	Banned    bool                `json:"banned"`
	Overrides PermissionOverrides `json:"overrides"`
	CreatedAt time.Time           `json:"createdAt"`
}

// BlacklistRule blocks suggestions. Kind "track" matches the external track id
// exactly; kind "keyword" matches a case-insensitive substring of title+artist.
type BlacklistRule struct {
	SessionID string `json:"sessionId"`
	Kind      string `json:"kind"`
	Value     string `json:"value"`
}

const (
	BlacklistTrack   = "track"
	BlacklistKeyword = "keyword"
)

type Capability string

const (
	CapControlPlayer Capability = "controlPlayer"
	CapForcePlay     Capability = "forcePlay"
	CapManageQueue   Capability = "manageQueue"
	CapManageUsers   Capability = "manageUsers"
	CapPrintCards    Capability = "printCards"
)
