package draftstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chordpad/draftstore/internal/clock"
	"github.com/chordpad/draftstore/quota"
	"github.com/chordpad/draftstore/tier"
)

// run is the session's scheduler loop. Every save for the document goes
// through it, one at a time: a new cycle cannot start its write phase
// before the previous one returned.
func (s *Session) run() {
	defer close(s.loopDone)

	var debounce, cooldown clock.Timer
	timerC := func(t clock.Timer) <-chan time.Time {
		if t == nil {
			return nil
		}
		return t.C()
	}

	for {
		select {
		case <-s.edits:
			if debounce == nil {
				debounce = s.clk.NewTimer(s.cfg.DebounceInterval)
			} else {
				debounce.Reset(s.cfg.DebounceInterval)
			}

		case <-timerC(debounce):
			debounce = nil
			if err := s.runSave(context.Background()); err != nil {
				s.log.Warn("autosave failed", "doc", s.documentID, "err", err)
			}
			cooldown = s.armCooldown(cooldown)

		case reply := <-s.flush:
			if debounce != nil {
				debounce.Stop()
				debounce = nil
			}
			reply <- s.runSave(context.Background())
			cooldown = s.armCooldown(cooldown)

		case <-timerC(cooldown):
			cooldown = nil
			s.mu.Lock()
			if s.status == StatusSaved || s.status == StatusError {
				s.transitionLocked(StatusIdle)
			}
			s.mu.Unlock()

		case <-s.done:
			if debounce != nil {
				debounce.Stop()
			}
			if cooldown != nil {
				cooldown.Stop()
			}
			return
		}
	}
}

func (s *Session) armCooldown(cooldown clock.Timer) clock.Timer {
	if cooldown == nil {
		return s.clk.NewTimer(s.cfg.DebounceInterval)
	}
	cooldown.Reset(s.cfg.DebounceInterval)
	return cooldown
}

// runSave executes one save cycle: idempotence check, encode, volatile
// write, throttled durable write, throttled remote push. The returned error
// reflects local durability only.
func (s *Session) runSave(ctx context.Context) error {
	s.mu.Lock()
	content := s.hist.Content()
	hash := tier.HashContent(content)
	if hash == s.lastDurableHash {
		// Unchanged since the last durable save: zero tier writes.
		if s.status == StatusPending {
			s.transitionLocked(StatusSaved)
			s.lastSavedAt = s.clk.Now()
		}
		s.mu.Unlock()
		return nil
	}
	s.transitionLocked(StatusSaving)
	s.mu.Unlock()

	err := s.saveDrafts(ctx, content, hash)

	s.mu.Lock()
	now := s.clk.Now()
	if err != nil {
		s.transitionLocked(StatusError)
		s.lastErr = err
	} else {
		s.transitionLocked(StatusSaved)
		s.lastSavedAt = now
		s.lastErr = nil
	}
	if s.pendingEdits {
		s.pendingEdits = false
		s.transitionLocked(StatusPending)
		s.signalEdit()
	}
	s.mu.Unlock()
	return err
}

func (s *Session) saveDrafts(ctx context.Context, content, hash string) error {
	if int64(len(content)) > s.cfg.MaxDraftSize {
		return fmt.Errorf("%w: %d bytes over the %d byte limit",
			ErrDraftTooLarge, len(content), s.cfg.MaxDraftSize)
	}

	payload, compressed, err := s.enc.Encode(content)
	if err != nil {
		// Codecs fall back to raw storage themselves; an error here
		// means even that was impossible.
		return fmt.Errorf("encode draft: %w", err)
	}

	now := s.clk.Now()
	draft := &tier.Draft{
		DocumentID:  s.documentID,
		Payload:     payload,
		Compressed:  compressed,
		ContentHash: hash,
		SizeBytes:   int64(len(payload)),
		SavedAt:     now,
	}
	body, err := draft.Encode()
	if err != nil {
		return fmt.Errorf("encode draft: %w", err)
	}

	// Volatile write happens every cycle; it is the cheap same-session
	// recovery net. It runs the same evict-then-retry path as the
	// durable tier, and a persistent failure fails the cycle.
	volErr := s.writeTier(ctx, s.volatileQuota, s.cfg.Volatile, body)
	if volErr != nil {
		volErr = fmt.Errorf("volatile tier: %w", volErr)
		s.log.Warn("volatile tier write failed", "doc", s.documentID, "err", volErr)
	}

	s.mu.Lock()
	durableDue := s.lastDurableAt.IsZero() || now.Sub(s.lastDurableAt) >= s.cfg.ThrottleInterval
	pushDue := s.lastPushAt.IsZero() || now.Sub(s.lastPushAt) >= s.cfg.ThrottleInterval
	s.mu.Unlock()

	var durErr error
	if durableDue {
		durErr = s.writeTier(ctx, s.durableQuota, s.cfg.Durable, body)
		if durErr != nil {
			durErr = fmt.Errorf("durable tier: %w", durErr)
		} else {
			s.mu.Lock()
			s.lastDurableHash = hash
			s.lastDurableAt = now
			s.mu.Unlock()
		}
	}

	if pushDue && s.cfg.RemoteID != "" && s.cfg.Pusher != nil {
		s.pushRemote(ctx, content, now)
	}

	if durErr != nil {
		return durErr
	}
	return volErr
}

// writeTier consults the tier's quota manager, writes, and on a quota
// failure from the tier itself evicts and retries exactly once.
func (s *Session) writeTier(ctx context.Context, mgr *quota.Manager, store tier.Store, body []byte) error {
	size := int64(len(body))
	if err := mgr.EnsureCapacity(ctx, size, s.key); err != nil {
		return err
	}
	err := store.Set(ctx, s.key, body)
	if errors.Is(err, tier.ErrQuotaExceeded) {
		if qerr := mgr.EnsureCapacity(ctx, size, s.key); qerr != nil {
			return qerr
		}
		err = store.Set(ctx, s.key, body)
	}
	return err
}

// pushRemote uploads content to the document service. Its outcome feeds the
// remote signals in SaveState and nothing else; local durability never
// depends on it.
func (s *Session) pushRemote(ctx context.Context, content string, now time.Time) {
	rev, err := s.cfg.Pusher.Push(ctx, s.cfg.RemoteID, content)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastPushAt = now
	if err != nil {
		s.remoteErr = err
		s.log.Warn("remote push failed, content not backed up remotely",
			"doc", s.documentID, "err", err)
		return
	}
	s.remoteErr = nil
	s.remoteRev = rev.ID
	s.remoteSyncedAt = rev.SyncedAt
	if s.remoteSyncedAt.IsZero() {
		s.remoteSyncedAt = now
	}
}
