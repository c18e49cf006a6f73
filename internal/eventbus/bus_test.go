package eventbus

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/knotvault/knot/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBus(t *testing.T) (*Bus, *store.Store) {
	t.Helper()
	s, err := store.Open(context.Background(), ":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return New(s, Config{}, nil), s
}

func TestDispatchSyncRunsHandlerInline(t *testing.T) {
	b, _ := newTestBus(t)
	var called int32
	b.Register(HookPostCreate, func(ctx context.Context, payload map[string]any) error {
		atomic.AddInt32(&called, 1)
		return nil
	})
	err := b.Dispatch(context.Background(), HookPostCreate, map[string]any{"id": "note_1"}, true)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&called))
}

func TestHandlerErrorNeverPropagatesToCaller(t *testing.T) {
	b, _ := newTestBus(t)
	b.Register(HookPostCreate, func(ctx context.Context, payload map[string]any) error {
		return assert.AnError
	})
	err := b.Dispatch(context.Background(), HookPostCreate, map[string]any{}, true)
	require.NoError(t, err, "a hook failure must never surface to the dispatch caller")
}

func TestHandlerPanicRecovered(t *testing.T) {
	b, _ := newTestBus(t)
	b.Register(HookPostCreate, func(ctx context.Context, payload map[string]any) error {
		panic("boom")
	})
	err := b.Dispatch(context.Background(), HookPostCreate, map[string]any{}, true)
	require.NoError(t, err)
}

func TestDrainRetriesUntilDeadLetter(t *testing.T) {
	b, s := newTestBus(t)
	b.maxRetries = 1
	b.Register(HookPostCreate, func(ctx context.Context, payload map[string]any) error {
		return assert.AnError
	})
	require.NoError(t, b.Dispatch(context.Background(), HookPostCreate, map[string]any{}, true))

	require.NoError(t, b.Drain(context.Background()))

	entries, err := s.PendingOrFailed(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries, "after exhausting retries the entry must be dead_letter, not pending/failed")
}

func TestAsyncDispatchEventuallyCompletes(t *testing.T) {
	b, s := newTestBus(t)
	var called int32
	b.Register(HookPostCreate, func(ctx context.Context, payload map[string]any) error {
		atomic.AddInt32(&called, 1)
		return nil
	})
	require.NoError(t, b.Dispatch(context.Background(), HookPostCreate, map[string]any{}, false))
	require.NoError(t, b.Drain(context.Background()))

	entries, err := s.PendingOrFailed(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Equal(t, int32(1), atomic.LoadInt32(&called))
}
