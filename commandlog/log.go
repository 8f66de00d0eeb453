package commandlog

import (
	"errors"
	"fmt"
	"time"

	"github.com/chordpad/draftstore/pkg/logger"
)

// ErrInvariant reports a command that does not fit the current content. It
// signals a programming defect in the caller, not a user-facing failure:
// the log resets its history, keeps the content, and continues.
var ErrInvariant = errors.New("command log invariant violation")

const (
	DefaultMaxSize     = 200
	DefaultMergeWindow = 500 * time.Millisecond
)

// Options configures a Log. Zero values pick the defaults above.
type Options struct {
	// MaxSize bounds the history. Once exceeded the oldest entries are
	// dropped, permanently forfeiting undo beyond that point. That loss
	// is the intended trade for bounded memory, not an error.
	MaxSize     int
	MergeWindow time.Duration
	Logger      logger.Logger
}

// Log is the in-memory edit history of one open document plus the current
// text. Entries before the cursor are undoable, entries at and beyond it are
// redoable. Not safe for concurrent use; the owning session serializes
// access.
type Log struct {
	opts     Options
	content  string
	commands []Command
	position int
	nextID   uint64
}

// New creates a Log starting from content.
func New(content string, opts Options) *Log {
	if opts.MaxSize <= 0 {
		opts.MaxSize = DefaultMaxSize
	}
	if opts.MergeWindow <= 0 {
		opts.MergeWindow = DefaultMergeWindow
	}
	return &Log{opts: opts, content: content, nextID: 1}
}

// Content returns the current document text.
func (l *Log) Content() string {
	return l.content
}

// Len returns the number of recorded commands.
func (l *Log) Len() int {
	return len(l.commands)
}

// Position returns the undo cursor: how many commands are applied.
func (l *Log) Position() int {
	return l.position
}

func (l *Log) CanUndo() bool {
	return l.position > 0
}

func (l *Log) CanRedo() bool {
	return l.position < len(l.commands)
}

// LastCommand returns the most recently applied command, if any.
func (l *Log) LastCommand() (Command, bool) {
	if l.position == 0 {
		return Command{}, false
	}
	return l.commands[l.position-1], true
}

// Append validates cmd against the current content, applies it, and records
// it. A redoable tail is discarded. Mergeable continuations within the merge
// window are coalesced into the previous entry so a fast typing burst costs
// one undo step.
//
// An out-of-bounds range or a Before that does not match the text it claims
// to replace returns an error wrapping ErrInvariant; the history is reset
// and the content preserved.
func (l *Log) Append(cmd Command) error {
	if err := l.validate(cmd); err != nil {
		if l.opts.Logger != nil {
			l.opts.Logger.Error("resetting history after invariant violation", "err", err)
		}
		l.Reset(l.content)
		return err
	}

	l.content = l.content[:cmd.Range.Start] + cmd.After + l.content[cmd.Range.End:]

	if l.position == len(l.commands) && cmd.MergeablePrev && l.position > 0 {
		prev := &l.commands[l.position-1]
		if l.merge(prev, cmd) {
			return nil
		}
	}

	// IDs belong to the log; a caller-supplied value is discarded so the
	// sequence stays monotonic.
	cmd.ID = l.nextID
	l.nextID++

	l.commands = append(l.commands[:l.position], cmd)
	l.position = len(l.commands)

	if len(l.commands) > l.opts.MaxSize {
		drop := len(l.commands) - l.opts.MaxSize
		l.commands = append([]Command(nil), l.commands[drop:]...)
		l.position -= drop
	}
	return nil
}

func (l *Log) validate(cmd Command) error {
	r := cmd.Range
	if r.Start < 0 || r.End < r.Start || r.End > len(l.content) {
		return fmt.Errorf("%w: range [%d,%d) outside content of %d bytes", ErrInvariant, r.Start, r.End, len(l.content))
	}
	if r.length() != len(cmd.Before) {
		return fmt.Errorf("%w: range spans %d bytes but before is %d bytes", ErrInvariant, r.length(), len(cmd.Before))
	}
	if l.content[r.Start:r.End] != cmd.Before {
		return fmt.Errorf("%w: before text does not match content at [%d,%d)", ErrInvariant, r.Start, r.End)
	}
	switch cmd.Kind {
	case KindInsert:
		if r.length() != 0 || cmd.After == "" {
			return fmt.Errorf("%w: malformed insert", ErrInvariant)
		}
	case KindDelete:
		if r.length() == 0 || cmd.After != "" {
			return fmt.Errorf("%w: malformed delete", ErrInvariant)
		}
	case KindReplace:
		if r.length() == 0 || cmd.After == "" {
			return fmt.Errorf("%w: malformed replace", ErrInvariant)
		}
	default:
		return fmt.Errorf("%w: unknown kind %v", ErrInvariant, cmd.Kind)
	}
	return nil
}

// merge coalesces cmd into prev when both are the same kind, cmd landed
// within the merge window of prev, and the two ranges are contiguous.
// The window is measured between consecutive commands, so a long burst of
// fast keystrokes stays one entry.
func (l *Log) merge(prev *Command, cmd Command) bool {
	if cmd.Kind != prev.Kind {
		return false
	}
	if cmd.Timestamp.Sub(prev.Timestamp) > l.opts.MergeWindow {
		return false
	}

	switch cmd.Kind {
	case KindInsert:
		// Typing forward: the new insert begins where the previous
		// one ended.
		if cmd.Range.Start != prev.postRange().End {
			return false
		}
		prev.After += cmd.After
	case KindDelete:
		switch {
		case cmd.Range.End == prev.Range.Start:
			// Backspace run: deletions walk backwards.
			prev.Before = cmd.Before + prev.Before
			prev.Range.Start = cmd.Range.Start
			prev.Range.End = prev.Range.Start + len(prev.Before)
		case cmd.Range.Start == prev.Range.Start:
			// Forward-delete run: the range keeps collapsing onto
			// the same offset.
			prev.Before += cmd.Before
			prev.Range.End = prev.Range.Start + len(prev.Before)
		default:
			return false
		}
	case KindReplace:
		if cmd.Range.Start != prev.postRange().End {
			return false
		}
		prev.Before += cmd.Before
		prev.After += cmd.After
		prev.Range.End = prev.Range.Start + len(prev.Before)
	default:
		return false
	}

	prev.Timestamp = cmd.Timestamp
	return true
}

// Undo reverts the most recent applied command. It reports the resulting
// content and whether further undo is possible. With nothing to undo it
// returns the content unchanged.
func (l *Log) Undo() (string, bool) {
	if l.position == 0 {
		return l.content, false
	}
	cmd := l.commands[l.position-1]
	post := cmd.postRange()
	l.content = l.content[:post.Start] + cmd.Before + l.content[post.End:]
	l.position--
	return l.content, l.position > 0
}

// Redo re-applies the next reverted command, reporting the resulting content
// and whether further redo is possible.
func (l *Log) Redo() (string, bool) {
	if l.position == len(l.commands) {
		return l.content, false
	}
	cmd := l.commands[l.position]
	l.content = l.content[:cmd.Range.Start] + cmd.After + l.content[cmd.Range.End:]
	l.position++
	return l.content, l.position < len(l.commands)
}

// Reset drops all history and restarts the log from content.
func (l *Log) Reset(content string) {
	l.content = content
	l.commands = nil
	l.position = 0
}
