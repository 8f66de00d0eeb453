package draftstore

import "errors"

var (
	// ErrDraftTooLarge reports content over Config.MaxDraftSize. The
	// draft is rejected whole rather than truncated.
	ErrDraftTooLarge = errors.New("draft exceeds maximum size")

	// ErrNoDraft means recovery found no usable candidate in any tier
	// or at the document service.
	ErrNoDraft = errors.New("no draft found")

	// ErrSessionClosed is returned by operations on a closed session.
	ErrSessionClosed = errors.New("session is closed")
)
