// Package tier defines the uniform key/value contract both storage tiers
// implement, and the Draft envelope written through it. The volatile tier
// lives and dies with the process; the durable tier survives restarts and
// is shared by every document of the installation.
package tier

import (
	"context"
	"errors"
	"time"
)

// Errors returned by tier implementations.
var (
	ErrNotFound      = errors.New("draft not found")
	ErrQuotaExceeded = errors.New("tier quota exceeded")
	ErrCorrupted     = errors.New("draft corrupted")
)

// Entry describes one stored draft for quota accounting.
type Entry struct {
	Key          string
	SizeBytes    int64
	LastAccessed time.Time
}

// Store is one storage tier. Set may fail with ErrQuotaExceeded; the caller
// owns the evict-then-retry policy. Get refreshes the key's last-accessed
// time so eviction ordering tracks real use.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)

	// Usage reports used and capacity bytes for the tier.
	Usage(ctx context.Context) (used, capacity int64, err error)

	// Entries lists stored drafts with the bookkeeping the quota manager
	// orders eviction by.
	Entries(ctx context.Context) ([]Entry, error)
}

// Key returns the storage key for a document's draft. One draft per
// (tier, document); no cross-document keys exist.
func Key(documentID string) string {
	return "draft:" + documentID
}
