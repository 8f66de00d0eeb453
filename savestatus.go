package draftstore

import (
	"fmt"
	"time"
)

// SaveStatus is the autosave scheduler's state.
type SaveStatus int

const (
	StatusIdle SaveStatus = iota
	StatusPending
	StatusSaving
	StatusSaved
	StatusError
)

func (s SaveStatus) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusPending:
		return "pending"
	case StatusSaving:
		return "saving"
	case StatusSaved:
		return "saved"
	case StatusError:
		return "error"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// TransitionTo validates a scheduler state change. Pending is re-enterable
// (each new edit while pending just re-arms the debounce), Saving is not:
// a save cycle must finish before the next one starts.
func (s SaveStatus) TransitionTo(next SaveStatus) (SaveStatus, error) {
	switch s {
	case StatusIdle:
		switch next {
		case StatusPending, StatusSaving:
			// Idle to Saving happens when ForceSave short-circuits
			// the debounce.
			return next, nil
		}
	case StatusPending:
		switch next {
		case StatusIdle, StatusPending, StatusSaving, StatusSaved:
			// Pending to Saved is the idempotent no-op save; Pending
			// to Idle happens when the drafts are cleared before the
			// debounce fires.
			return next, nil
		}
	case StatusSaving:
		switch next {
		case StatusSaved, StatusError:
			return next, nil
		}
	case StatusSaved:
		switch next {
		case StatusIdle, StatusPending, StatusSaving:
			return next, nil
		}
	case StatusError:
		switch next {
		case StatusIdle, StatusPending, StatusSaving:
			return next, nil
		}
	}
	return s, fmt.Errorf("invalid save status transition from %v to %v", s, next)
}

// SaveState is a snapshot of the session's durability signals. Local and
// remote durability are independent: a session can be Saved locally while
// the last remote push failed.
type SaveState struct {
	Status      SaveStatus
	LastSavedAt time.Time
	LastError   error

	// Dirty is true while the live content's hash differs from the last
	// draft successfully written to the durable tier.
	Dirty bool

	RemoteRevision string
	RemoteSyncedAt time.Time
	RemoteError    error
}
