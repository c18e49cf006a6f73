package graph

import (
	"context"
	"testing"
	"time"

	"github.com/knotvault/knot/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) (*Engine, *store.Store) {
	t.Helper()
	s, err := store.Open(context.Background(), ":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return New(s, nil), s
}

func insertChain(t *testing.T, ctx context.Context, s *store.Store, ids ...string) {
	t.Helper()
	now := time.Now()
	err := s.Transaction(ctx, func(tx *store.Tx) error {
		for _, id := range ids {
			if err := tx.InsertNode(ctx, &store.NodeRow{ID: id, Type: "note", Title: id, Created: now, Modified: now}); err != nil {
				return err
			}
		}
		for i := 0; i < len(ids)-1; i++ {
			if err := tx.InsertEdge(ctx, store.Edge{SourceID: ids[i], TargetID: ids[i+1], EdgeType: "relates", Created: now}); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func TestPathSameNode(t *testing.T) {
	e, s := newTestEngine(t)
	ctx := context.Background()
	insertChain(t, ctx, s, "a")
	path, err := e.Path(ctx, "a", "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, path)
}

func TestPathAndNoPath(t *testing.T) {
	e, s := newTestEngine(t)
	ctx := context.Background()
	insertChain(t, ctx, s, "a", "b", "c")
	now := time.Now()
	require.NoError(t, s.Transaction(ctx, func(tx *store.Tx) error {
		return tx.InsertNode(ctx, &store.NodeRow{ID: "isolated", Type: "note", Title: "isolated", Created: now, Modified: now})
	}))

	path, err := e.Path(ctx, "a", "c")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, path)

	_, err = e.Path(ctx, "a", "isolated")
	require.Error(t, err)
}

func TestRelatedIsolatedNodeReturnsEmpty(t *testing.T) {
	e, s := newTestEngine(t)
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, s.Transaction(ctx, func(tx *store.Tx) error {
		return tx.InsertNode(ctx, &store.NodeRow{ID: "solo", Type: "note", Title: "solo", Created: now, Modified: now})
	}))
	hits, err := e.Related(ctx, "solo", 5, 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestRankEmptyGraph(t *testing.T) {
	e, _ := newTestEngine(t)
	hits, err := e.Rank(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestThemesNoEdgesOneCommunityPerNode(t *testing.T) {
	e, s := newTestEngine(t)
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, s.Transaction(ctx, func(tx *store.Tx) error {
		for _, id := range []string{"a", "b", "c"} {
			if err := tx.InsertNode(ctx, &store.NodeRow{ID: id, Type: "note", Title: id, Created: now, Modified: now}); err != nil {
				return err
			}
		}
		return nil
	}))
	communities, warning, err := e.Themes(ctx)
	require.NoError(t, err)
	assert.Len(t, communities, 3)
	assert.NotEmpty(t, warning)
}

func TestMaterializeMetricsSetsPageRank(t *testing.T) {
	e, s := newTestEngine(t)
	ctx := context.Background()
	insertChain(t, ctx, s, "a", "b", "c")

	_, err := e.MaterializeMetrics(ctx)
	require.NoError(t, err)

	n, err := s.FetchNode(ctx, "b")
	require.NoError(t, err)
	require.NotNil(t, n.PageRank)
	require.NotNil(t, n.DegreeIn)
	require.NotNil(t, n.DegreeOut)
}
