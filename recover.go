package draftstore

import (
	"context"
	"errors"
	"time"

	"github.com/chordpad/draftstore/codec"
	"github.com/chordpad/draftstore/tier"
)

// recoveredDraft is one recovery candidate. Lower rank wins timestamp ties:
// local tiers hold the most recent unsynced edits, so volatile beats
// durable beats remote.
type recoveredDraft struct {
	content string
	hash    string
	at      time.Time
	source  string
	rank    int
}

// resolveDraft gathers up to three candidates: the volatile draft, the
// durable draft, and the document service's head. It returns the winner
// (latest timestamp, ties broken most-local-first) and, separately, the
// valid durable candidate if one existed — the latter seeds the last
// durably-persisted hash regardless of who won.
//
// A candidate whose stored hash does not match its decompressed content is
// corrupted: it is discarded, deleted from its tier, and the next-best
// candidate is used. When nothing usable remains the error is ErrNoDraft
// and the caller starts from the configured initial content.
func (s *Session) resolveDraft(ctx context.Context) (winner, durable *recoveredDraft, err error) {
	var candidates []*recoveredDraft

	if c := s.loadTierCandidate(ctx, s.cfg.Volatile, "volatile", 0); c != nil {
		candidates = append(candidates, c)
	}
	if c := s.loadTierCandidate(ctx, s.cfg.Durable, "durable", 1); c != nil {
		durable = c
		candidates = append(candidates, c)
	}
	if s.cfg.Fetcher != nil && s.cfg.RemoteID != "" {
		head, err := s.cfg.Fetcher.Fetch(ctx, s.cfg.RemoteID)
		if err != nil {
			s.log.Warn("remote recovery candidate unavailable", "doc", s.documentID, "err", err)
		} else {
			candidates = append(candidates, &recoveredDraft{
				content: head.Content,
				hash:    tier.HashContent(head.Content),
				at:      head.ModifiedAt,
				source:  "remote",
				rank:    2,
			})
		}
	}

	for _, c := range candidates {
		if winner == nil {
			winner = c
			continue
		}
		if c.at.After(winner.at) || (c.at.Equal(winner.at) && c.rank < winner.rank) {
			winner = c
		}
	}
	if winner == nil {
		return nil, nil, ErrNoDraft
	}
	return winner, durable, nil
}

func (s *Session) loadTierCandidate(ctx context.Context, store tier.Store, source string, rank int) *recoveredDraft {
	raw, err := store.Get(ctx, s.key)
	if errors.Is(err, tier.ErrNotFound) {
		return nil
	}
	if err != nil {
		s.log.Warn("recovery read failed", "doc", s.documentID, "tier", source, "err", err)
		return nil
	}

	discard := func(reason error) *recoveredDraft {
		s.log.Warn("discarding corrupted draft", "doc", s.documentID, "tier", source, "err", reason)
		if derr := store.Delete(ctx, s.key); derr != nil {
			s.log.Warn("could not delete corrupted draft", "doc", s.documentID, "tier", source, "err", derr)
		}
		return nil
	}

	draft, err := tier.DecodeDraft(raw)
	if err != nil {
		return discard(err)
	}
	// Drafts are self-describing, so decoding always goes through the
	// full codec even when this session writes uncompressed.
	content, err := codec.Flate().Decode(draft.Payload, draft.Compressed)
	if err != nil {
		return discard(err)
	}
	if err := draft.Verify(content); err != nil {
		return discard(err)
	}

	return &recoveredDraft{
		content: content,
		hash:    draft.ContentHash,
		at:      draft.SavedAt,
		source:  source,
		rank:    rank,
	}
}
