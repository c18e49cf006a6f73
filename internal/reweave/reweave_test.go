package reweave

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knotvault/knot/internal/config"
	"github.com/knotvault/knot/internal/content"
	"github.com/knotvault/knot/internal/eventbus"
	"github.com/knotvault/knot/internal/graph"
	"github.com/knotvault/knot/internal/store"
	"github.com/knotvault/knot/internal/templates"
	"github.com/knotvault/knot/internal/vaultcore"
)

type testEnv struct {
	vault *vaultcore.Vault
	rw    *Engine
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	root := t.TempDir()
	s, err := store.Open(context.Background(), filepath.Join(root, "index.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	g := graph.New(s, nil)
	bus := eventbus.New(s, eventbus.Config{}, nil)
	tmpl := templates.NewFileRenderer(filepath.Join(root, "templates"))
	cfg := config.Defaults()

	v := vaultcore.Open(root, cfg, s, g, bus, tmpl, nil)
	rw := New(root, s, g, bus, cfg, nil)
	return testEnv{vault: v, rw: rw}
}

func TestDryRunScoresWithoutWriting(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a, _, err := env.vault.Create(ctx, vaultcore.CreateInput{
		Type: content.TypeNote, Title: "Database Indexing Strategies", Topic: "storage",
	})
	require.NoError(t, err)
	_, _, err = env.vault.Create(ctx, vaultcore.CreateInput{
		Type: content.TypeNote, Title: "Database Indexing Tradeoffs", Topic: "storage",
	})
	require.NoError(t, err)

	res, err := env.rw.Reweave(ctx, a.ID, Options{Mode: ModeDryRun, Threshold: floatPtr(0)})
	require.NoError(t, err)
	assert.True(t, res.DryRun)

	edges, err := env.vault.Store.OutgoingEdges(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, edges)
}

func TestApplyCreatesEdgesAndFrontmatterLinks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a, _, err := env.vault.Create(ctx, vaultcore.CreateInput{
		Type: content.TypeNote, Title: "Caching Layers", Topic: "perf", Tags: []string{"topic/perf"},
	})
	require.NoError(t, err)
	b, _, err := env.vault.Create(ctx, vaultcore.CreateInput{
		Type: content.TypeNote, Title: "Cache Invalidation", Topic: "perf", Tags: []string{"topic/perf"},
	})
	require.NoError(t, err)

	res, err := env.rw.Reweave(ctx, a.ID, Options{Mode: ModeDefault, Threshold: floatPtr(0)})
	require.NoError(t, err)
	require.Greater(t, res.Count, 0)

	edges, err := env.vault.Store.OutgoingEdges(ctx, a.ID)
	require.NoError(t, err)
	found := false
	for _, e := range edges {
		if e.TargetID == b.ID {
			found = true
		}
	}
	assert.True(t, found)

	path, err := findNoteFile(env.vault.Root, a.ID)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), b.ID)
}

func TestPruneRemovesBelowThresholdEdges(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a, _, err := env.vault.Create(ctx, vaultcore.CreateInput{Type: content.TypeNote, Title: "Orphan Source"})
	require.NoError(t, err)
	b, _, err := env.vault.Create(ctx, vaultcore.CreateInput{Type: content.TypeNote, Title: "Unrelated Target"})
	require.NoError(t, err)

	_, _, err = env.vault.Update(ctx, a.ID, content.ChangeSet{"links": map[string][]string{"relates": {b.ID}}})
	require.NoError(t, err)

	res, err := env.rw.Reweave(ctx, a.ID, Options{Mode: ModePrune, Threshold: floatPtr(0.99)})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count)

	edges, err := env.vault.Store.OutgoingEdges(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, edges)
}

func TestUndoReversesLatestBatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a, _, err := env.vault.Create(ctx, vaultcore.CreateInput{
		Type: content.TypeNote, Title: "Event Sourcing Basics", Topic: "arch",
	})
	require.NoError(t, err)
	b, _, err := env.vault.Create(ctx, vaultcore.CreateInput{
		Type: content.TypeNote, Title: "Event Sourcing Pitfalls", Topic: "arch",
	})
	require.NoError(t, err)

	_, err = env.rw.Reweave(ctx, a.ID, Options{Mode: ModeDefault, Threshold: floatPtr(0)})
	require.NoError(t, err)

	edgesBefore, err := env.vault.Store.OutgoingEdges(ctx, a.ID)
	require.NoError(t, err)
	require.NotEmpty(t, edgesBefore)

	res, err := env.rw.Reweave(ctx, "", Options{Mode: ModeUndo})
	require.NoError(t, err)
	assert.Greater(t, res.Count, 0)

	edgesAfter, err := env.vault.Store.OutgoingEdges(ctx, a.ID)
	require.NoError(t, err)
	for _, e := range edgesAfter {
		assert.NotEqual(t, b.ID, e.TargetID)
	}
}

func TestUndoWithNoHistoryFails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, err := env.rw.Reweave(ctx, "", Options{Mode: ModeUndo})
	require.Error(t, err)
}

func TestScoreResultBlocksWhenAlreadyAtCapacity(t *testing.T) {
	env := newTestEnv(t)
	env.rw.cfg.Reweave.MaxLinksPerNote = 1
	ctx := context.Background()

	a, _, err := env.vault.Create(ctx, vaultcore.CreateInput{
		Type: content.TypeNote, Title: "Capacity Source", Topic: "cap",
	})
	require.NoError(t, err)
	b, _, err := env.vault.Create(ctx, vaultcore.CreateInput{
		Type: content.TypeNote, Title: "Capacity Existing Link", Topic: "cap",
	})
	require.NoError(t, err)
	_, _, err = env.vault.Create(ctx, vaultcore.CreateInput{
		Type: content.TypeNote, Title: "Capacity Candidate", Topic: "cap",
	})
	require.NoError(t, err)

	_, _, err = env.vault.Update(ctx, a.ID, content.ChangeSet{"links": map[string][]string{"relates": {b.ID}}})
	require.NoError(t, err)

	res, err := env.rw.Reweave(ctx, a.ID, Options{Mode: ModeDryRun, Threshold: floatPtr(0)})
	require.NoError(t, err)
	assert.Empty(t, res.Suggestions)
	assert.Equal(t, 0, res.Count)
}

func floatPtr(f float64) *float64 { return &f }

func findNoteFile(root, id string) (string, error) {
	var found string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		if filepath.Base(path) == id+".md" {
			found = path
		}
		return nil
	})
	return found, err
}
