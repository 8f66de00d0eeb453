// Package codec compresses document content for draft storage.
package codec

import (
	"bytes"
	"compress/flate"
	"fmt"
	"io"
)

// Codec turns content into a storage payload and back. The compressed flag
// travels with the payload inside the draft so Decode can branch on it.
// Both directions must satisfy the round-trip law: Decode(Encode(x)) == x.
type Codec interface {
	Encode(content string) (payload []byte, compressed bool, err error)
	Decode(payload []byte, compressed bool) (string, error)
}

type flateCodec struct {
	level int
}

// Flate returns the default codec, DEFLATE at best-speed. The save path runs
// it synchronously on every debounce fire, so speed wins over ratio.
//
// Encode never fails: when compression errors out, or produces no saving,
// the raw content is stored with compressed=false.
func Flate() Codec {
	return &flateCodec{level: flate.BestSpeed}
}

func (c *flateCodec) Encode(content string) ([]byte, bool, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, c.level)
	if err != nil {
		return []byte(content), false, nil
	}
	if _, err := io.WriteString(w, content); err != nil {
		return []byte(content), false, nil
	}
	if err := w.Close(); err != nil {
		return []byte(content), false, nil
	}
	if buf.Len() >= len(content) {
		return []byte(content), false, nil
	}
	return buf.Bytes(), true, nil
}

func (c *flateCodec) Decode(payload []byte, compressed bool) (string, error) {
	if !compressed {
		return string(payload), nil
	}
	r := flate.NewReader(bytes.NewReader(payload))
	defer r.Close()
	raw, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("inflate draft payload: %w", err)
	}
	return string(raw), nil
}

type noopCodec struct{}

// Noop returns a codec that stores content verbatim. Used when compression
// is disabled in the engine configuration.
func Noop() Codec {
	return noopCodec{}
}

func (noopCodec) Encode(content string) ([]byte, bool, error) {
	return []byte(content), false, nil
}

func (noopCodec) Decode(payload []byte, compressed bool) (string, error) {
	if compressed {
		return "", fmt.Errorf("noop codec cannot inflate a compressed payload")
	}
	return string(payload), nil
}
