package draftstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chordpad/draftstore/codec"
	"github.com/chordpad/draftstore/commandlog"
	"github.com/chordpad/draftstore/internal/clock"
	"github.com/chordpad/draftstore/pkg/logger"
	"github.com/chordpad/draftstore/quota"
	"github.com/chordpad/draftstore/tier"
)

// Session is the persistence engine for one open document. It owns the
// command log, schedules autosaves, and writes draft checkpoints through
// the configured tiers. Construct with Open, release with Close.
//
// Session methods are safe for concurrent use, though the expected caller
// is a single editing loop.
type Session struct {
	cfg           Config
	documentID    string
	key           string
	enc           codec.Codec
	volatileQuota *quota.Manager
	durableQuota  *quota.Manager
	log           logger.Logger
	clk           clock.Clock

	mu              sync.Mutex
	hist            *commandlog.Log
	status          SaveStatus
	lastSavedAt     time.Time
	lastErr         error
	lastDurableHash string
	lastDurableAt   time.Time
	lastPushAt      time.Time
	remoteRev       string
	remoteSyncedAt  time.Time
	remoteErr       error
	pendingEdits    bool
	closed          bool

	edits    chan struct{}
	flush    chan chan error
	done     chan struct{}
	loopDone chan struct{}
}

// Open starts an editing session for documentID. It runs recovery across
// both tiers and the document service to pick the starting content, then
// starts the autosave scheduler.
func Open(ctx context.Context, documentID string, cfg Config) (*Session, error) {
	if documentID == "" {
		return nil, errors.New("document id is required")
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	s := &Session{
		cfg:           cfg,
		documentID:    documentID,
		key:           tier.Key(documentID),
		log:           cfg.Logger,
		clk:           cfg.Clock,
		volatileQuota: quota.NewManager(cfg.Volatile, cfg.Logger),
		durableQuota:  quota.NewManager(cfg.Durable, cfg.Logger),
		edits:         make(chan struct{}, 1),
		flush:         make(chan chan error),
		done:          make(chan struct{}),
		loopDone:      make(chan struct{}),
	}
	if cfg.DisableCompression {
		s.enc = codec.Noop()
	} else {
		s.enc = codec.Flate()
	}

	content := cfg.InitialContent
	winner, durable, err := s.resolveDraft(ctx)
	switch {
	case err == nil:
		content = winner.content
		s.log.Info("recovered draft", "doc", documentID, "source", winner.source, "saved_at", winner.at)
	case errors.Is(err, ErrNoDraft):
		s.log.Debug("no draft to recover", "doc", documentID)
	default:
		return nil, err
	}
	if durable != nil {
		// Whatever candidate won, the durable draft's hash is still
		// the last durably persisted state, which is what dirtiness
		// and save idempotence are measured against.
		s.lastDurableHash = durable.hash
		s.lastDurableAt = durable.at
	}

	s.hist = commandlog.New(content, commandlog.Options{
		MaxSize:     cfg.MaxHistorySize,
		MergeWindow: cfg.MergeWindow,
		Logger:      cfg.Logger,
	})

	go s.run()
	return s, nil
}

// DocumentID returns the id this session was opened for.
func (s *Session) DocumentID() string {
	return s.documentID
}

// Content returns the live document text.
func (s *Session) Content() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hist.Content()
}

// Apply records one edit command, applies it to the content, and arms the
// debounced save. An invariant violation resets the history, preserves the
// content, and is returned wrapping commandlog.ErrInvariant.
func (s *Session) Apply(ctx context.Context, cmd commandlog.Command) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if cmd.Timestamp.IsZero() {
		cmd.Timestamp = s.clk.Now()
	}
	err := s.hist.Append(cmd)
	if err == nil {
		s.markPendingLocked()
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.signalEdit()
	return nil
}

// Undo reverts the last command, reporting the new content and whether more
// undo is possible. Undo changes content, so it arms the save cycle too.
func (s *Session) Undo() (string, bool) {
	s.mu.Lock()
	changed := s.hist.CanUndo() && !s.closed
	content, more := s.hist.Content(), s.hist.CanUndo()
	if changed {
		content, more = s.hist.Undo()
		s.markPendingLocked()
	}
	s.mu.Unlock()
	if changed {
		s.signalEdit()
	}
	return content, more
}

// Redo re-applies the next reverted command.
func (s *Session) Redo() (string, bool) {
	s.mu.Lock()
	changed := s.hist.CanRedo() && !s.closed
	content, more := s.hist.Content(), s.hist.CanRedo()
	if changed {
		content, more = s.hist.Redo()
		s.markPendingLocked()
	}
	s.mu.Unlock()
	if changed {
		s.signalEdit()
	}
	return content, more
}

func (s *Session) CanUndo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hist.CanUndo()
}

func (s *Session) CanRedo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hist.CanRedo()
}

// SaveState snapshots the durability signals.
func (s *Session) SaveState() SaveState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SaveState{
		Status:         s.status,
		LastSavedAt:    s.lastSavedAt,
		LastError:      s.lastErr,
		Dirty:          tier.HashContent(s.hist.Content()) != s.lastDurableHash,
		RemoteRevision: s.remoteRev,
		RemoteSyncedAt: s.remoteSyncedAt,
		RemoteError:    s.remoteErr,
	}
}

// ForceSave short-circuits the debounce and runs the save path now. It
// returns once the save cycle completed, with its local outcome.
func (s *Session) ForceSave(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.mu.Unlock()

	reply := make(chan error, 1)
	select {
	case s.flush <- reply:
	case <-s.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Suspend is the "session is about to be hidden or suspended" hook. It runs
// the same synchronous save path as ForceSave; the session stays usable.
func (s *Session) Suspend(ctx context.Context) error {
	return s.ForceSave(ctx)
}

// Close cancels any pending debounce, executes one final synchronous flush,
// and stops the scheduler. The flush result is returned, so a clean
// shutdown reports whether the final save landed. Close is idempotent.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	reply := make(chan error, 1)
	var err error
	select {
	case s.flush <- reply:
		select {
		case err = <-reply:
		case <-ctx.Done():
			err = ctx.Err()
		}
	case <-ctx.Done():
		err = ctx.Err()
	}

	close(s.done)
	<-s.loopDone
	return err
}

// ClearDrafts deletes this document's draft from both tiers and resets the
// save state to idle and not dirty.
func (s *Session) ClearDrafts(ctx context.Context) error {
	if err := s.cfg.Volatile.Delete(ctx, s.key); err != nil {
		return fmt.Errorf("clear volatile draft: %w", err)
	}
	if err := s.cfg.Durable.Delete(ctx, s.key); err != nil {
		return fmt.Errorf("clear durable draft: %w", err)
	}
	s.mu.Lock()
	s.resetSaveStateLocked()
	s.mu.Unlock()
	return nil
}

// ClearAllDrafts deletes every draft from both tiers, across all documents.
// Diagnostics escape hatch.
func (s *Session) ClearAllDrafts(ctx context.Context) error {
	for _, store := range []tier.Store{s.cfg.Volatile, s.cfg.Durable} {
		keys, err := store.Keys(ctx)
		if err != nil {
			return fmt.Errorf("clear all drafts: %w", err)
		}
		for _, key := range keys {
			if err := store.Delete(ctx, key); err != nil {
				return fmt.Errorf("clear all drafts: %w", err)
			}
		}
	}
	s.mu.Lock()
	s.resetSaveStateLocked()
	s.mu.Unlock()
	return nil
}

// resetSaveStateLocked returns the session to idle after its drafts were
// cleared. A save cycle that is mid-flight keeps its Saving status; the
// cycle's own completion transition lands afterwards.
func (s *Session) resetSaveStateLocked() {
	if s.status != StatusIdle {
		s.transitionLocked(StatusIdle)
	}
	s.lastErr = nil
	s.lastDurableHash = tier.HashContent(s.hist.Content())
	s.lastDurableAt = time.Time{}
}

// TierStats is one tier's usage for StorageStats.
type TierStats struct {
	UsedBytes     int64
	CapacityBytes int64
}

// StorageStats reports usage per tier, keyed "volatile" and "durable".
func (s *Session) StorageStats(ctx context.Context) (map[string]TierStats, error) {
	stats := make(map[string]TierStats, 2)
	for name, store := range map[string]tier.Store{
		"volatile": s.cfg.Volatile,
		"durable":  s.cfg.Durable,
	} {
		used, capacity, err := store.Usage(ctx)
		if err != nil {
			return nil, fmt.Errorf("storage stats for %s tier: %w", name, err)
		}
		stats[name] = TierStats{UsedBytes: used, CapacityBytes: capacity}
	}
	return stats, nil
}

// SerializeHistory exports the command log as JSON for debugging. The
// export is never persisted.
func (s *Session) SerializeHistory() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hist.Serialize()
}

// HistoryStats reports command log counters.
func (s *Session) HistoryStats() commandlog.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hist.Stats()
}

func (s *Session) signalEdit() {
	select {
	case s.edits <- struct{}{}:
	default:
	}
}

func (s *Session) markPendingLocked() {
	if s.status == StatusSaving {
		// The running save cycle picks this up and re-enters pending
		// once it completes, instead of overlapping a second write.
		s.pendingEdits = true
		return
	}
	s.transitionLocked(StatusPending)
}

func (s *Session) transitionLocked(next SaveStatus) {
	st, err := s.status.TransitionTo(next)
	if err != nil {
		s.log.Error("save status transition rejected", "doc", s.documentID, "err", err)
		return
	}
	s.status = st
}
