package memtier

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chordpad/draftstore/tier"
)

func TestSetGetDelete(t *testing.T) {
	ctx := context.Background()
	s := New(1 << 10)

	require.NoError(t, s.Set(ctx, "draft:a", []byte("hello")))
	got, err := s.Get(ctx, "draft:a")
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), got)

	// Mutating the returned slice must not touch the stored value.
	got[0] = 'X'
	again, err := s.Get(ctx, "draft:a")
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), again)

	require.NoError(t, s.Delete(ctx, "draft:a"))
	_, err = s.Get(ctx, "draft:a")
	require.ErrorIs(t, err, tier.ErrNotFound)
}

func TestSetEnforcesCapacity(t *testing.T) {
	ctx := context.Background()
	s := New(10)

	require.NoError(t, s.Set(ctx, "draft:a", []byte("12345678")))
	err := s.Set(ctx, "draft:b", []byte("123"))
	require.ErrorIs(t, err, tier.ErrQuotaExceeded)

	// Overwriting an existing key counts only the new size.
	require.NoError(t, s.Set(ctx, "draft:a", []byte("1234567890")))
}

func TestUsageAndEntries(t *testing.T) {
	ctx := context.Background()
	s := New(100)
	require.NoError(t, s.Set(ctx, "draft:a", []byte("1234")))
	require.NoError(t, s.Set(ctx, "draft:b", []byte("56")))

	used, capacity, err := s.Usage(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(6), used)
	assert.Equal(t, int64(100), capacity)

	entries, err := s.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	keys, err := s.Keys(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"draft:a", "draft:b"}, keys)
}

func TestGetRefreshesLastAccessed(t *testing.T) {
	ctx := context.Background()
	s := New(100)
	require.NoError(t, s.Set(ctx, "draft:a", []byte("x")))
	require.NoError(t, s.Set(ctx, "draft:b", []byte("y")))

	// Touch a after b was written; a must now be the most recent.
	_, err := s.Get(ctx, "draft:a")
	require.NoError(t, err)

	entries, err := s.Entries(ctx)
	require.NoError(t, err)
	byKey := map[string]tier.Entry{}
	for _, e := range entries {
		byKey[e.Key] = e
	}
	assert.True(t, byKey["draft:a"].LastAccessed.After(byKey["draft:b"].LastAccessed))
}
