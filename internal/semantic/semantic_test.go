package semantic

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestStore opens a Store backed by the vec0 extension. The extension
// is a cgo native library; if it isn't available in the current build
// environment, Open returns apperr.SemanticUnavailable and the test skips
// rather than failing, the same "optional native dependency" stance
// spec.md §6 takes toward the capability itself.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "vectors.db")
	s, err := Open(dbPath, NewLocalEmbedder(32), nil)
	if err != nil {
		t.Skipf("sqlite-vec extension unavailable: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestUpsertSearchDeleteRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, "note_aaaa", "the graph engine materializes pagerank"))
	require.NoError(t, s.Upsert(ctx, "note_bbbb", "bananas are a good source of potassium"))

	hits, err := s.Search(ctx, "pagerank materialization", 5)
	require.NoError(t, err)
	require.Contains(t, hits, "note_aaaa")
	require.Contains(t, hits, "note_bbbb")
	assert.Greater(t, hits["note_aaaa"], hits["note_bbbb"])

	require.NoError(t, s.Delete(ctx, "note_aaaa"))
	hits, err = s.Search(ctx, "pagerank materialization", 5)
	require.NoError(t, err)
	assert.NotContains(t, hits, "note_aaaa")
}

func TestLocalEmbedderIsDeterministic(t *testing.T) {
	e := NewLocalEmbedder(64)
	ctx := context.Background()

	v1, err := e.Embed(ctx, "reweave scoring uses lexical, tag, graph, topic signals")
	require.NoError(t, err)
	v2, err := e.Embed(ctx, "reweave scoring uses lexical, tag, graph, topic signals")
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
	assert.Len(t, v1, 64)
}

func TestLocalEmbedderSimilarTextIsCloser(t *testing.T) {
	e := NewLocalEmbedder(128)
	ctx := context.Background()

	a, _ := e.Embed(ctx, "the graph engine materializes pagerank and betweenness")
	b, _ := e.Embed(ctx, "the graph engine materializes pagerank and degree")
	c, _ := e.Embed(ctx, "bananas are a good source of potassium")

	assert.Greater(t, cosine(a, b), cosine(a, c))
}

func TestRowidForIsStable(t *testing.T) {
	assert.Equal(t, rowidFor("note_aaaa"), rowidFor("note_aaaa"))
	assert.NotEqual(t, rowidFor("note_aaaa"), rowidFor("note_bbbb"))
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
