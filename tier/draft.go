package tier

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Draft is the durable, compressed checkpoint of a document. It is the only
// thing the engine ever persists: command history stays in memory.
type Draft struct {
	DocumentID  string    `cbor:"document_id"`
	Payload     []byte    `cbor:"payload"`
	Compressed  bool      `cbor:"compressed"`
	ContentHash string    `cbor:"content_hash"`
	SizeBytes   int64     `cbor:"size_bytes"`
	SavedAt     time.Time `cbor:"saved_at"`
}

// HashContent returns the hex sha256 of uncompressed content. Drafts carry
// it for integrity checks at recovery and idempotence checks at save.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Encode serializes the draft for tier storage.
func (d *Draft) Encode() ([]byte, error) {
	return cbor.Marshal(d)
}

// DecodeDraft parses a stored draft. Undecodable bytes are reported as
// ErrCorrupted so recovery can discard the candidate.
func DecodeDraft(raw []byte) (*Draft, error) {
	var d Draft
	if err := cbor.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}
	return &d, nil
}

// Verify recomputes the hash of the decompressed content and compares it to
// the stored one.
func (d *Draft) Verify(content string) error {
	if HashContent(content) != d.ContentHash {
		return fmt.Errorf("%w: content hash mismatch for %s", ErrCorrupted, d.DocumentID)
	}
	return nil
}
