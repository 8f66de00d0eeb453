package draftstore

import (
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/chordpad/draftstore/internal/clock"
	"github.com/chordpad/draftstore/pkg/logger"
	"github.com/chordpad/draftstore/remote"
	"github.com/chordpad/draftstore/tier"
)

const (
	DefaultDebounceInterval = time.Second
	DefaultThrottleInterval = 10 * time.Second
	DefaultMaxDraftSize     = 5 << 20
)

// Config configures a Session. Volatile and Durable are required; every
// other field has a usable zero value.
type Config struct {
	// Volatile is the session-scoped tier, written on every debounced
	// save.
	Volatile tier.Store

	// Durable is the installation-wide tier, written at most once per
	// ThrottleInterval.
	Durable tier.Store

	// RemoteID is the document's identity at the document service.
	// Empty means the document has not been created remotely yet and is
	// never pushed.
	RemoteID string

	// Pusher uploads content to the document service. Optional; ignored
	// while RemoteID is empty.
	Pusher remote.Pusher

	// Fetcher supplies the remote recovery candidate. Optional.
	Fetcher remote.Fetcher

	// InitialContent is the canonical starting text used when recovery
	// finds no draft (empty for a brand-new document).
	InitialContent string

	// DebounceInterval is how long the scheduler waits after the last
	// edit before saving. Default 1s.
	DebounceInterval time.Duration

	// ThrottleInterval is the minimum spacing between durable writes and
	// between remote pushes. Default 10s.
	ThrottleInterval time.Duration

	// MaxHistorySize bounds the command log. Default 200 entries.
	MaxHistorySize int

	// MergeWindow is the keystroke-coalescing window. Default 500ms.
	MergeWindow time.Duration

	// MaxDraftSize rejects oversized drafts with ErrDraftTooLarge.
	// Default 5MB.
	MaxDraftSize int64

	// DisableCompression stores drafts raw. Compression is on by
	// default.
	DisableCompression bool

	// Clock drives debounce and throttle timing. Default: the runtime
	// clock. Tests inject a manual clock.
	Clock clock.Clock

	Logger logger.Logger
}

func (c *Config) applyDefaults() {
	if c.DebounceInterval <= 0 {
		c.DebounceInterval = DefaultDebounceInterval
	}
	if c.ThrottleInterval <= 0 {
		c.ThrottleInterval = DefaultThrottleInterval
	}
	if c.MaxDraftSize <= 0 {
		c.MaxDraftSize = DefaultMaxDraftSize
	}
	if c.Clock == nil {
		c.Clock = clock.System()
	}
	if c.Logger == nil {
		c.Logger = logger.New(slog.NewTextHandler(os.Stdout, nil))
	}
}

func (c *Config) validate() error {
	if c.Volatile == nil {
		return errors.New("config: volatile tier is required")
	}
	if c.Durable == nil {
		return errors.New("config: durable tier is required")
	}
	return nil
}
