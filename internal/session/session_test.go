package session

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knotvault/knot/internal/apperr"
	"github.com/knotvault/knot/internal/config"
	"github.com/knotvault/knot/internal/eventbus"
	"github.com/knotvault/knot/internal/graph"
	"github.com/knotvault/knot/internal/query"
	"github.com/knotvault/knot/internal/reweave"
	"github.com/knotvault/knot/internal/store"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	root := t.TempDir()
	s, err := store.Open(context.Background(), filepath.Join(root, "index.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	g := graph.New(s, nil)
	bus := eventbus.New(s, eventbus.Config{}, nil)
	cfg := config.Defaults()
	rw := reweave.New(root, s, g, bus, cfg, nil)
	q := query.New(root, s, g, cfg, nil)

	return New(root, s, g, bus, rw, q, nil, cfg, nil)
}

func TestStartRejectsSecondOpenSession(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, _, err := e.Start(ctx, "first topic")
	require.NoError(t, err)

	_, _, err = e.Start(ctx, "second topic")
	require.Error(t, err)
	assert.Equal(t, apperr.ActiveSessionExists, apperr.CodeOf(err))
}

func TestLogEntryRequiresActiveSession(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.LogEntry(ctx, LogEntryInput{Message: "no session open"})
	require.Error(t, err)
	assert.Equal(t, apperr.NoActiveSession, apperr.CodeOf(err))

	_, _, err = e.Start(ctx, "investigating flaky test")
	require.NoError(t, err)

	res, err := e.LogEntry(ctx, LogEntryInput{Message: "found root cause", Cost: 0.5})
	require.NoError(t, err)
	assert.NotEmpty(t, res.EntryID)
}

func TestCloseClosesSessionAndAllowsReopen(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	start, _, err := e.Start(ctx, "refactor pass")
	require.NoError(t, err)

	_, err = e.LogEntry(ctx, LogEntryInput{Message: "step one"})
	require.NoError(t, err)

	res, _, err := e.Close(ctx, "done for now")
	require.NoError(t, err)
	assert.Equal(t, start.SessionID, res.SessionID)
	assert.True(t, res.Stats.MetricsMaterialized)

	_, _, err = e.Start(ctx, "unrelated")
	require.NoError(t, err)
	_, _, err = e.Close(ctx, "")
	require.NoError(t, err)

	reopenRes, err := e.Reopen(ctx, start.SessionID)
	require.NoError(t, err)
	assert.Equal(t, start.SessionID, reopenRes.SessionID)
}

func TestReopenRejectsNonClosedSession(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	start, _, err := e.Start(ctx, "open one")
	require.NoError(t, err)

	_, err = e.Reopen(ctx, start.SessionID)
	require.Error(t, err)
}

func TestCostReportsOverBudget(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, _, err := e.Start(ctx, "cost tracking")
	require.NoError(t, err)
	_, err = e.LogEntry(ctx, LogEntryInput{Message: "expensive step", Cost: 5})
	require.NoError(t, err)

	budget := 1.0
	res, err := e.Cost(ctx, "", &budget)
	require.NoError(t, err)
	assert.Equal(t, 5.0, res.TotalCost)
	assert.True(t, res.OverBudget)
}

func countSessionEntries(items []ContextItem) int {
	n := 0
	for _, it := range items {
		if it.Title == "log entry" {
			n++
		}
	}
	return n
}

func TestContextCheckpointTruncatesSessionLog(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, _, err := e.Start(ctx, "checkpoint test")
	require.NoError(t, err)

	_, err = e.LogEntry(ctx, LogEntryInput{Message: "before checkpoint, entry one"})
	require.NoError(t, err)
	_, err = e.LogEntry(ctx, LogEntryInput{Message: "before checkpoint, entry two"})
	require.NoError(t, err)
	_, err = e.LogEntry(ctx, LogEntryInput{Message: "the checkpoint itself", Pin: true})
	require.NoError(t, err)
	_, err = e.LogEntry(ctx, LogEntryInput{Message: "after checkpoint, entry one"})
	require.NoError(t, err)

	withCheckpoints, err := e.Context(ctx, ContextOptions{Budget: 2000})
	require.NoError(t, err)
	assert.Equal(t, 1, countSessionEntries(withCheckpoints.Layers[1].Items),
		"only entries after the latest pinned checkpoint should surface")

	full, err := e.Context(ctx, ContextOptions{Budget: 2000, IgnoreCheckpoints: true})
	require.NoError(t, err)
	assert.Equal(t, 4, countSessionEntries(full.Layers[1].Items),
		"ignore_checkpoints reads the whole session log from the start")
}

func TestContextAlwaysIncludesIdentityAndSessionLayers(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, _, err := e.Start(ctx, "context test")
	require.NoError(t, err)
	_, err = e.LogEntry(ctx, LogEntryInput{Message: "entry for context"})
	require.NoError(t, err)

	res, err := e.Context(ctx, ContextOptions{Budget: 2000})
	require.NoError(t, err)
	require.Len(t, res.Layers, 5)
	assert.Equal(t, "identity", res.Layers[0].Name)
	assert.NotEmpty(t, res.Layers[0].Items)
	assert.Equal(t, "session", res.Layers[1].Name)
	assert.NotEmpty(t, res.Layers[1].Items)
	assert.Equal(t, "normal", res.Pressure)
}
