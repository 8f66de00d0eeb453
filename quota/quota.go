// Package quota enforces the per-tier storage budget by evicting
// least-recently-used drafts. Storage is an installation-wide resource, so
// eviction ranks every document sharing the tier, not just the caller's.
package quota

import (
	"context"
	"fmt"
	"sort"

	"github.com/chordpad/draftstore/pkg/logger"
	"github.com/chordpad/draftstore/tier"
)

// Manager applies the eviction policy to one tier.
type Manager struct {
	store tier.Store
	log   logger.Logger
}

func NewManager(store tier.Store, log logger.Logger) *Manager {
	return &Manager{store: store, log: log}
}

// EnsureCapacity makes room for a write of required bytes. When the tier is
// over budget it evicts drafts in ascending last-accessed order, skipping
// keep (the active document's key), until the write fits. If eviction cannot
// free enough space it returns an error wrapping tier.ErrQuotaExceeded.
func (m *Manager) EnsureCapacity(ctx context.Context, required int64, keep string) error {
	used, capacity, err := m.store.Usage(ctx)
	if err != nil {
		return fmt.Errorf("quota check: %w", err)
	}
	deficit := used + required - capacity
	if deficit <= 0 {
		return nil
	}

	entries, err := m.store.Entries(ctx)
	if err != nil {
		return fmt.Errorf("quota check: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].LastAccessed.Before(entries[j].LastAccessed)
	})

	for _, e := range entries {
		if deficit <= 0 {
			break
		}
		if e.Key == keep {
			continue
		}
		if err := m.store.Delete(ctx, e.Key); err != nil {
			return fmt.Errorf("evict %q: %w", e.Key, err)
		}
		deficit -= e.SizeBytes
		if m.log != nil {
			m.log.Warn("evicted draft to reclaim quota", "key", e.Key, "freed", e.SizeBytes)
		}
	}

	if deficit > 0 {
		return fmt.Errorf("%w: need %d more bytes after eviction", tier.ErrQuotaExceeded, deficit)
	}
	return nil
}

// Stats reports the tier's current usage.
func (m *Manager) Stats(ctx context.Context) (used, capacity int64, err error) {
	return m.store.Usage(ctx)
}
