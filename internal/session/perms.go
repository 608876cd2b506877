package session

import (
	"context"
	"errors"
	"log"
)

// Authorize resolves whether an actor may perform a privileged action.
// Resolution order: host grant, per-guest override, session default, deny.
// A banned or unknown guest is denied regardless of overrides, and any
// store failure denies (fail closed).
func Authorize(ctx context.Context, store Store, sess *Session, actorID string, cap Capability) bool {
	if sess == nil || actorID == "" {
		return false
	}
	if actorID == sess.HostID {
		return true
	}

	g, err := store.GetGuest(ctx, sess.ID, actorID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			log.Printf("songvote: authorize guest lookup: %v", err)
		}
		return false
	}
	if g.Banned {
		return false
	}

	if ov := override(g.Overrides, cap); ov != nil {
		return *ov
	}
	return defaultFor(sess.Defaults, cap)
}

func override(o PermissionOverrides, cap Capability) *bool {
	switch cap {
	case CapControlPlayer:
		return o.ControlPlayer
	case CapForcePlay:
		return o.ForcePlay
	case CapManageQueue:
		return o.ManageQueue
	case CapManageUsers:
		return o.ManageUsers
	case CapPrintCards:
		return o.PrintCards
	}
	return nil
}

func defaultFor(d PermissionSet, cap Capability) bool {
	switch cap {
	case CapControlPlayer:
		return d.ControlPlayer
	case CapForcePlay:
		return d.ForcePlay
	case CapManageQueue:
		return d.ManageQueue
	case CapManageUsers:
		return d.ManageUsers
	case CapPrintCards:
		return d.PrintCards
	}
	return false
}
