// Package commandlog records edit commands for a single editing session and
// drives undo/redo over them. The log owns the authoritative text: every
// appended command is validated against and applied to the current content,
// so undo and redo are pure data-structure work that cannot fail.
package commandlog

import (
	"fmt"
	"time"
)

// Kind classifies an edit command.
type Kind int

const (
	KindInsert Kind = iota
	KindDelete
	KindReplace
)

func (k Kind) String() string {
	switch k {
	case KindInsert:
		return "insert"
	case KindDelete:
		return "delete"
	case KindReplace:
		return "replace"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Range is a half-open byte interval into the document as it was before the
// command applied. For an insert, Start == End.
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

func (r Range) length() int {
	return r.End - r.Start
}

// Command is one atomic, invertible edit. Applying After over Range produces
// the next document state; putting Before back at the post-edit range
// inverts it exactly.
type Command struct {
	// ID is assigned by the log on append and increases monotonically.
	// A coalesced burst keeps the ID of its first command.
	ID        uint64    `json:"id"`
	Kind      Kind      `json:"kind"`
	Range     Range     `json:"range"`
	Before    string    `json:"before"`
	After     string    `json:"after"`
	Timestamp time.Time `json:"timestamp"`

	// MergeablePrev marks the command as a continuation of the previous
	// one (e.g. consecutive keystrokes). Continuations of the same kind
	// within the merge window that touch an adjacent range are coalesced
	// into a single log entry.
	MergeablePrev bool `json:"mergeable_with_previous"`
}

// postRange is the interval the command's After text occupies once applied.
func (c Command) postRange() Range {
	return Range{Start: c.Range.Start, End: c.Range.Start + len(c.After)}
}
