package query

import (
	"context"
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

func newTestEngine(t *testing.T) (*vaultcore.Vault, *Engine) {
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
	return v, New(root, s, g, cfg, nil)
}

func TestSearchRelevanceRanksByBM25(t *testing.T) {
	v, q := newTestEngine(t)
	ctx := context.Background()

	_, _, err := v.Create(ctx, vaultcore.CreateInput{Type: content.TypeNote, Title: "Postgres Connection Pooling"})
	require.NoError(t, err)
	_, _, err = v.Create(ctx, vaultcore.CreateInput{Type: content.TypeNote, Title: "Redis Caching Patterns"})
	require.NoError(t, err)

	res, err := q.Search(ctx, "postgres", SearchOptions{RankBy: RankRelevance})
	require.NoError(t, err)
	require.NotEmpty(t, res.Hits)
	assert.Contains(t, res.Hits[0].Title, "Postgres")
}

func TestSearchGraphWarnsWithoutMaterializedMetrics(t *testing.T) {
	v, q := newTestEngine(t)
	ctx := context.Background()
	_, _, err := v.Create(ctx, vaultcore.CreateInput{Type: content.TypeNote, Title: "Unranked Note"})
	require.NoError(t, err)

	res, err := q.Search(ctx, "unranked", SearchOptions{RankBy: RankGraph})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Warning)
}

func TestSearchSemanticFallsBackWithoutCapability(t *testing.T) {
	v, q := newTestEngine(t)
	ctx := context.Background()
	_, _, err := v.Create(ctx, vaultcore.CreateInput{Type: content.TypeNote, Title: "Vector Search Basics"})
	require.NoError(t, err)

	res, err := q.Search(ctx, "vector", SearchOptions{RankBy: RankSemantic})
	require.NoError(t, err)
	assert.Equal(t, RankSemantic, res.RankBy)
	assert.NotEmpty(t, res.Warning)
}

func TestGetReturnsBodyAndEdges(t *testing.T) {
	v, q := newTestEngine(t)
	ctx := context.Background()
	a, _, err := v.Create(ctx, vaultcore.CreateInput{Type: content.TypeNote, Title: "Node A"})
	require.NoError(t, err)
	b, _, err := v.Create(ctx, vaultcore.CreateInput{Type: content.TypeNote, Title: "Node B"})
	require.NoError(t, err)
	_, _, err = v.Update(ctx, a.ID, content.ChangeSet{"links": map[string][]string{"relates": {b.ID}}})
	require.NoError(t, err)

	res, err := q.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, res.Body)
	require.Len(t, res.Outgoing, 1)
	assert.Equal(t, b.ID, res.Outgoing[0].TargetID)

	bRes, err := q.Get(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, bRes.Incoming, 1)
	assert.Equal(t, a.ID, bRes.Incoming[0].SourceID)
}

func TestWorkQueueOrdersByWeight(t *testing.T) {
	v, q := newTestEngine(t)
	ctx := context.Background()

	low := 1
	high := 5
	_, _, err := v.Create(ctx, vaultcore.CreateInput{Type: content.TypeTask, Title: "Low priority", Priority: &low, Impact: &low, Effort: &high})
	require.NoError(t, err)
	_, _, err = v.Create(ctx, vaultcore.CreateInput{Type: content.TypeTask, Title: "High priority", Priority: &high, Impact: &high, Effort: &low})
	require.NoError(t, err)

	wq, err := q.WorkQueue(ctx, "")
	require.NoError(t, err)
	require.Len(t, wq.Inbox, 2)
	assert.Equal(t, "High priority", wq.Inbox[0].Title)
}

func TestDecisionSupportFiltersByStatus(t *testing.T) {
	v, q := newTestEngine(t)
	ctx := context.Background()
	d, _, err := v.Create(ctx, vaultcore.CreateInput{Type: content.TypeNote, Subtype: content.SubtypeDecision, Title: "Pick a queue", Topic: "infra"})
	require.NoError(t, err)
	_, _, err = v.Update(ctx, d.ID, content.ChangeSet{"status": "accepted"})
	require.NoError(t, err)

	decisions, err := q.DecisionSupport(ctx, "infra", "")
	require.NoError(t, err)
	require.Len(t, decisions, 1)
	assert.Equal(t, d.ID, decisions[0].ID)
}
