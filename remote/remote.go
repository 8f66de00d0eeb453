// Package remote defines the contract to the document service and a
// websocket client implementing it. The engine treats the remote store as a
// collaborator: push failures degrade the "backed up remotely" signal and
// nothing else.
package remote

import (
	"context"
	"errors"
	"time"
)

// ErrSync marks a push that failed after every retry. Local saving is
// unaffected by it.
var ErrSync = errors.New("remote sync failed")

// Revision is the server-assigned marker for an accepted push.
type Revision struct {
	ID       string    `cbor:"id" json:"id"`
	SyncedAt time.Time `cbor:"synced_at" json:"synced_at"`
}

// Head is the server's last-known state of a document, used as a recovery
// candidate.
type Head struct {
	Content    string    `cbor:"content" json:"content"`
	Revision   string    `cbor:"revision" json:"revision"`
	ModifiedAt time.Time `cbor:"modified_at" json:"modified_at"`
}

// Pusher sends the current content to the document service. The engine
// calls Push at most once per throttle interval per document, and never for
// a document lacking a server identity.
type Pusher interface {
	Push(ctx context.Context, documentID, content string) (Revision, error)
}

// Fetcher retrieves the server's head content for a document. Recovery uses
// it as its third candidate when available.
type Fetcher interface {
	Fetch(ctx context.Context, documentID string) (Head, error)
}
