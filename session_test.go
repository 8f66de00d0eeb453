package draftstore_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chordpad/draftstore"
	"github.com/chordpad/draftstore/codec"
	"github.com/chordpad/draftstore/commandlog"
	"github.com/chordpad/draftstore/internal/clock"
	"github.com/chordpad/draftstore/remote"
	"github.com/chordpad/draftstore/tier"
	"github.com/chordpad/draftstore/tier/memtier"
)

var start = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type countingStore struct {
	tier.Store
	sets atomic.Int32
}

func (c *countingStore) Set(ctx context.Context, key string, value []byte) error {
	c.sets.Add(1)
	return c.Store.Set(ctx, key, value)
}

type stubPusher struct {
	calls atomic.Int32
	fail  bool
}

func (p *stubPusher) Push(_ context.Context, _, _ string) (remote.Revision, error) {
	p.calls.Add(1)
	if p.fail {
		return remote.Revision{}, remote.ErrSync
	}
	return remote.Revision{ID: "rev-7", SyncedAt: start}, nil
}

type stubFetcher struct {
	head remote.Head
	err  error
}

func (f *stubFetcher) Fetch(_ context.Context, _ string) (remote.Head, error) {
	return f.head, f.err
}

type fixture struct {
	volatile *countingStore
	durable  *countingStore
	clk      *clock.Manual
	cfg      draftstore.Config
}

func newFixture() *fixture {
	f := &fixture{
		volatile: &countingStore{Store: memtier.New(1 << 20)},
		durable:  &countingStore{Store: memtier.New(1 << 20)},
		clk:      clock.NewManual(start),
	}
	f.cfg = draftstore.Config{
		Volatile: f.volatile,
		Durable:  f.durable,
		Clock:    f.clk,
	}
	return f
}

func openSession(t *testing.T, f *fixture, id string) *draftstore.Session {
	t.Helper()
	s, err := draftstore.Open(context.Background(), id, f.cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func insert(offset int, text string, at time.Time) commandlog.Command {
	return commandlog.Command{
		Kind:          commandlog.KindInsert,
		Range:         commandlog.Range{Start: offset, End: offset},
		After:         text,
		Timestamp:     at,
		MergeablePrev: offset > 0,
	}
}

// encodeDraft builds a stored draft body the way the engine writes them.
func encodeDraft(t *testing.T, documentID, content string, savedAt time.Time) []byte {
	t.Helper()
	payload, compressed, err := codec.Flate().Encode(content)
	require.NoError(t, err)
	d := &tier.Draft{
		DocumentID:  documentID,
		Payload:     payload,
		Compressed:  compressed,
		ContentHash: tier.HashContent(content),
		SizeBytes:   int64(len(payload)),
		SavedAt:     savedAt,
	}
	body, err := d.Encode()
	require.NoError(t, err)
	return body
}

func TestOpenStartsFromInitialContent(t *testing.T) {
	f := newFixture()
	f.cfg.InitialContent = "[G]seed"
	s := openSession(t, f, "song-1")

	require.Equal(t, "[G]seed", s.Content())
	state := s.SaveState()
	assert.Equal(t, draftstore.StatusIdle, state.Status)
	assert.True(t, state.Dirty, "nothing durably persisted yet")
}

func TestForceSaveWritesBothTiers(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	s := openSession(t, f, "song-1")

	require.NoError(t, s.Apply(ctx, insert(0, "Amazing grace", start)))
	require.NoError(t, s.ForceSave(ctx))

	assert.Equal(t, int32(1), f.volatile.sets.Load())
	assert.Equal(t, int32(1), f.durable.sets.Load())

	state := s.SaveState()
	assert.Equal(t, draftstore.StatusSaved, state.Status)
	assert.False(t, state.Dirty)
	assert.NoError(t, state.LastError)
}

func TestIdempotentSavePerformsNoWrites(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	s := openSession(t, f, "song-1")

	require.NoError(t, s.Apply(ctx, insert(0, "same text", start)))
	require.NoError(t, s.ForceSave(ctx))
	volSets, durSets := f.volatile.sets.Load(), f.durable.sets.Load()

	require.NoError(t, s.ForceSave(ctx))
	assert.Equal(t, volSets, f.volatile.sets.Load(), "unchanged content must not rewrite the volatile tier")
	assert.Equal(t, durSets, f.durable.sets.Load(), "unchanged content must not rewrite the durable tier")
}

func TestDebouncedSaveFiresAfterQuietPeriod(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	s := openSession(t, f, "song-1")

	require.NoError(t, s.Apply(ctx, insert(0, "typing", start)))
	require.Equal(t, draftstore.StatusPending, s.SaveState().Status)

	// Advance only until the debounce fires; advancing past that point
	// would run the cool-down timer and move Saved on to Idle.
	require.Eventually(t, func() bool {
		if f.volatile.sets.Load() == 0 {
			f.clk.Advance(draftstore.DefaultDebounceInterval)
			return false
		}
		status := s.SaveState().Status
		return status == draftstore.StatusSaved || status == draftstore.StatusIdle
	}, 2*time.Second, 5*time.Millisecond, "debounce fire should write the volatile tier and settle")

	assert.False(t, s.SaveState().Dirty)
}

func TestThrottleGatesDurableWrites(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	s := openSession(t, f, "song-1")

	require.NoError(t, s.Apply(ctx, insert(0, "first", start)))
	require.NoError(t, s.ForceSave(ctx))
	require.Equal(t, int32(1), f.durable.sets.Load())

	// More edits inside the throttle window: volatile keeps up, durable
	// does not, and the session stays dirty against durable state.
	require.NoError(t, s.Apply(ctx, insert(5, " second", start.Add(time.Second))))
	require.NoError(t, s.ForceSave(ctx))
	assert.Equal(t, int32(2), f.volatile.sets.Load())
	assert.Equal(t, int32(1), f.durable.sets.Load())
	state := s.SaveState()
	assert.Equal(t, draftstore.StatusSaved, state.Status)
	assert.True(t, state.Dirty)

	// Once the throttle interval elapses the durable write goes through.
	f.clk.Advance(draftstore.DefaultThrottleInterval)
	require.NoError(t, s.ForceSave(ctx))
	assert.Equal(t, int32(2), f.durable.sets.Load())
	assert.False(t, s.SaveState().Dirty)
}

func TestTypingBurstIsOneUndoStep(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	s := openSession(t, f, "song-1")

	at := start
	for i, ch := range []string{"H", "e", "l", "l", "o"} {
		require.NoError(t, s.Apply(ctx, insert(i, ch, at)))
		at = at.Add(200 * time.Millisecond)
	}
	require.Equal(t, "Hello", s.Content())
	require.Equal(t, 1, s.HistoryStats().Commands)

	content, more := s.Undo()
	assert.Equal(t, "", content)
	assert.False(t, more)
	assert.False(t, s.CanUndo())
	assert.True(t, s.CanRedo())

	content, _ = s.Redo()
	assert.Equal(t, "Hello", content)
}

func TestQuotaExhaustionKeepsLiveContent(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	// Durable tier too small for any draft, with nothing evictable.
	f.cfg.Durable = memtier.New(4)
	s := openSession(t, f, "song-1")

	require.NoError(t, s.Apply(ctx, insert(0, "unsaveable but alive", start)))
	err := s.ForceSave(ctx)
	require.ErrorIs(t, err, tier.ErrQuotaExceeded)

	state := s.SaveState()
	assert.Equal(t, draftstore.StatusError, state.Status)
	assert.ErrorIs(t, state.LastError, tier.ErrQuotaExceeded)
	assert.True(t, state.Dirty)
	assert.Equal(t, "unsaveable but alive", s.Content(), "failure must never touch the live buffer")
}

func TestDurableWriteEvictsColderDrafts(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	durable := memtier.New(600)
	f.cfg.Durable = durable

	// Another document's draft occupies most of the tier.
	require.NoError(t, durable.Set(ctx, tier.Key("cold-song"), make([]byte, 500)))

	s := openSession(t, f, "song-1")
	require.NoError(t, s.Apply(ctx, insert(0, "needs the room", start)))
	require.NoError(t, s.ForceSave(ctx))

	_, err := durable.Get(ctx, tier.Key("cold-song"))
	assert.ErrorIs(t, err, tier.ErrNotFound, "the cold draft should have been evicted")
	_, err = durable.Get(ctx, tier.Key("song-1"))
	assert.NoError(t, err)
}

func TestVolatileWriteEvictsColderDrafts(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	volatile := memtier.New(600)
	f.cfg.Volatile = volatile

	// Another document's draft occupies most of the tier; the per-cycle
	// volatile write has to make room the same way the durable one does.
	require.NoError(t, volatile.Set(ctx, tier.Key("cold-song"), make([]byte, 500)))

	s := openSession(t, f, "song-1")
	require.NoError(t, s.Apply(ctx, insert(0, "needs the room", start)))
	require.NoError(t, s.ForceSave(ctx))

	_, err := volatile.Get(ctx, tier.Key("cold-song"))
	assert.ErrorIs(t, err, tier.ErrNotFound, "the cold draft should have been evicted")
	_, err = volatile.Get(ctx, tier.Key("song-1"))
	assert.NoError(t, err)
	assert.Equal(t, draftstore.StatusSaved, s.SaveState().Status)
}

func TestVolatileQuotaExhaustionFailsTheSave(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	// Volatile tier too small for any draft, with nothing evictable.
	f.cfg.Volatile = memtier.New(4)
	s := openSession(t, f, "song-1")

	require.NoError(t, s.Apply(ctx, insert(0, "kept in memory only", start)))
	err := s.ForceSave(ctx)
	require.ErrorIs(t, err, tier.ErrQuotaExceeded)

	state := s.SaveState()
	assert.Equal(t, draftstore.StatusError, state.Status)
	assert.ErrorIs(t, state.LastError, tier.ErrQuotaExceeded)
	assert.Equal(t, "kept in memory only", s.Content())

	// The durable write in the same cycle still went through.
	_, derr := f.durable.Get(ctx, tier.Key("song-1"))
	assert.NoError(t, derr)
}

func TestRemotePushFailureDoesNotAffectLocalSave(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	pusher := &stubPusher{fail: true}
	f.cfg.RemoteID = "srv-song-1"
	f.cfg.Pusher = pusher
	s := openSession(t, f, "song-1")

	require.NoError(t, s.Apply(ctx, insert(0, "content", start)))
	require.NoError(t, s.ForceSave(ctx))

	state := s.SaveState()
	assert.Equal(t, draftstore.StatusSaved, state.Status)
	assert.False(t, state.Dirty)
	assert.ErrorIs(t, state.RemoteError, remote.ErrSync)
	assert.Empty(t, state.RemoteRevision)
	assert.Equal(t, int32(1), pusher.calls.Load())
}

func TestRemotePushRecordsRevision(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	pusher := &stubPusher{}
	f.cfg.RemoteID = "srv-song-1"
	f.cfg.Pusher = pusher
	s := openSession(t, f, "song-1")

	require.NoError(t, s.Apply(ctx, insert(0, "content", start)))
	require.NoError(t, s.ForceSave(ctx))

	state := s.SaveState()
	assert.NoError(t, state.RemoteError)
	assert.Equal(t, "rev-7", state.RemoteRevision)
	assert.False(t, state.RemoteSyncedAt.IsZero())
}

func TestNewDocumentIsNeverPushed(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	pusher := &stubPusher{}
	f.cfg.Pusher = pusher // no RemoteID: not created remotely yet
	s := openSession(t, f, "song-1")

	require.NoError(t, s.Apply(ctx, insert(0, "local only", start)))
	require.NoError(t, s.ForceSave(ctx))
	assert.Zero(t, pusher.calls.Load())
}

func TestCloseFlushesFinalSave(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	s, err := draftstore.Open(ctx, "song-1", f.cfg)
	require.NoError(t, err)

	require.NoError(t, s.Apply(ctx, insert(0, "do not lose me", start)))
	require.NoError(t, s.Close(ctx))

	raw, err := f.durable.Get(ctx, tier.Key("song-1"))
	require.NoError(t, err)
	d, err := tier.DecodeDraft(raw)
	require.NoError(t, err)
	content, err := codec.Flate().Decode(d.Payload, d.Compressed)
	require.NoError(t, err)
	assert.Equal(t, "do not lose me", content)

	require.ErrorIs(t, s.Apply(ctx, insert(0, "x", start)), draftstore.ErrSessionClosed)
	require.NoError(t, s.Close(ctx), "close is idempotent")
}

func TestMaxDraftSizeRejectsOversizedContent(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.cfg.MaxDraftSize = 8
	s := openSession(t, f, "song-1")

	require.NoError(t, s.Apply(ctx, insert(0, "this is far too big", start)))
	err := s.ForceSave(ctx)
	require.ErrorIs(t, err, draftstore.ErrDraftTooLarge)
	assert.Equal(t, "this is far too big", s.Content())
}

func TestClearDraftsResetsState(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	s := openSession(t, f, "song-1")

	require.NoError(t, s.Apply(ctx, insert(0, "stored", start)))
	require.NoError(t, s.ForceSave(ctx))
	require.NoError(t, s.ClearDrafts(ctx))

	_, err := f.volatile.Get(ctx, tier.Key("song-1"))
	assert.ErrorIs(t, err, tier.ErrNotFound)
	_, err = f.durable.Get(ctx, tier.Key("song-1"))
	assert.ErrorIs(t, err, tier.ErrNotFound)

	state := s.SaveState()
	assert.Equal(t, draftstore.StatusIdle, state.Status)
	assert.False(t, state.Dirty)
}

func TestClearDraftsWhilePendingReturnsToIdle(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	s := openSession(t, f, "song-1")

	require.NoError(t, s.Apply(ctx, insert(0, "not yet saved", start)))
	require.Equal(t, draftstore.StatusPending, s.SaveState().Status)

	require.NoError(t, s.ClearDrafts(ctx))
	state := s.SaveState()
	assert.Equal(t, draftstore.StatusIdle, state.Status)
	assert.False(t, state.Dirty)
	assert.NoError(t, state.LastError)
}

func TestStorageStats(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	s := openSession(t, f, "song-1")

	require.NoError(t, s.Apply(ctx, insert(0, "some content", start)))
	require.NoError(t, s.ForceSave(ctx))

	stats, err := s.StorageStats(ctx)
	require.NoError(t, err)
	require.Contains(t, stats, "volatile")
	require.Contains(t, stats, "durable")
	assert.Positive(t, stats["volatile"].UsedBytes)
	assert.Equal(t, int64(1<<20), stats["durable"].CapacityBytes)
}

func TestSerializeHistory(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	s := openSession(t, f, "song-1")

	require.NoError(t, s.Apply(ctx, insert(0, "exported", start)))
	raw, err := s.SerializeHistory()
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"exported"`)
}

func TestInvariantViolationSurfacesAndPreservesContent(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	s := openSession(t, f, "song-1")

	require.NoError(t, s.Apply(ctx, insert(0, "good", start)))
	err := s.Apply(ctx, commandlog.Command{
		Kind:      commandlog.KindDelete,
		Range:     commandlog.Range{Start: 1, End: 99},
		Before:    "nonsense",
		Timestamp: start.Add(time.Second),
	})
	require.ErrorIs(t, err, commandlog.ErrInvariant)
	assert.Equal(t, "good", s.Content())
	assert.Zero(t, s.HistoryStats().Commands, "history resets after an invariant violation")
}
