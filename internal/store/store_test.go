package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/knotvault/knot/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), ":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleNode(id, title string) *NodeRow {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return &NodeRow{
		ID: id, Type: "note", Title: title, Status: "draft",
		Created: now, Modified: now,
	}
}

func TestInsertFetchNode(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	err := s.Transaction(ctx, func(tx *Tx) error {
		return tx.InsertNode(ctx, sampleNode("note_1", "Hello"))
	})
	require.NoError(t, err)

	n, err := s.FetchNode(ctx, "note_1")
	require.NoError(t, err)
	assert.Equal(t, "Hello", n.Title)
	assert.Equal(t, "draft", n.Status)
}

// TestFetchNodeRoundTripsTagsAndAliases uses go-cmp for a structural diff
// of the fetched row against the expected shape instead of field-by-field
// assert.Equal calls, since Tags/Aliases ordering comes back sorted but the
// insertion order here is deliberately scrambled.
func TestFetchNodeRoundTripsTagsAndAliases(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	err := s.Transaction(ctx, func(tx *Tx) error {
		if err := tx.InsertNode(ctx, sampleNode("note_cmp", "Comparable")); err != nil {
			return err
		}
		if err := tx.IndexTags(ctx, "note_cmp", []string{"z/last", "a/first"}, now); err != nil {
			return err
		}
		return tx.IndexAliases(ctx, "note_cmp", []string{"zeta", "alpha"})
	})
	require.NoError(t, err)

	got, err := s.FetchNode(ctx, "note_cmp")
	require.NoError(t, err)

	want := &NodeRow{
		ID: "note_cmp", Type: "note", Title: "Comparable", Status: "draft",
		Created: now, Modified: now,
		Tags: []string{"a/first", "z/last"}, Aliases: []string{"alpha", "zeta"},
	}
	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty(), cmpopts.SortSlices(func(a, b string) bool { return a < b })); diff != "" {
		t.Errorf("fetched node row mismatch (-want +got):\n%s", diff)
	}
}

func TestFetchNodeNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.FetchNode(context.Background(), "note_missing")
	require.Error(t, err)
}

func TestTransactionRollsBackOnError(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	sentinel := apperr.New(apperr.ValidationFailed, "boom")
	err := s.Transaction(ctx, func(tx *Tx) error {
		if err := tx.InsertNode(ctx, sampleNode("note_2", "X")); err != nil {
			return err
		}
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	_, err = s.FetchNode(ctx, "note_2")
	require.Error(t, err, "rolled-back insert must not be visible")
}

func TestCounterIncrements(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var first, second int64
	err := s.Transaction(ctx, func(tx *Tx) error {
		var err error
		first, err = tx.NextCounter(ctx, "TASK")
		return err
	})
	require.NoError(t, err)
	err = s.Transaction(ctx, func(tx *Tx) error {
		var err error
		second, err = tx.NextCounter(ctx, "TASK")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), first)
	assert.Equal(t, int64(2), second)
}

func TestIndexTagsAndAllTagSets(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	err := s.Transaction(ctx, func(tx *Tx) error {
		if err := tx.InsertNode(ctx, sampleNode("note_3", "Tagged")); err != nil {
			return err
		}
		return tx.IndexTags(ctx, "note_3", []string{"project/alpha", "x"}, now)
	})
	require.NoError(t, err)

	tags, err := s.TagsFor(ctx, "note_3")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"project/alpha", "x"}, tags)

	all, err := s.AllTagSets(ctx)
	require.NoError(t, err)
	assert.True(t, all["note_3"]["x"])
}

func TestIndexLinksFrontmatterAndWikilinks(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	err := s.Transaction(ctx, func(tx *Tx) error {
		if err := tx.InsertNode(ctx, sampleNode("note_a", "A")); err != nil {
			return err
		}
		return tx.InsertNode(ctx, sampleNode("note_b", "B"))
	})
	require.NoError(t, err)

	err = s.Transaction(ctx, func(tx *Tx) error {
		links := map[string][]string{"relates": {"note_b"}}
		return tx.IndexLinks(ctx, "note_a", links, "See [[B]] and [[Unknown]].", now, s.ResolveTitle)
	})
	require.NoError(t, err)

	out, err := s.OutgoingEdges(ctx, "note_a")
	require.NoError(t, err)
	require.Len(t, out, 1, "frontmatter link and wikilink to the same target dedupe; unknown wikilink drops silently")
	assert.Equal(t, "note_b", out[0].TargetID)
}

func TestFTSSearchEmptyQueryFails(t *testing.T) {
	s := openTestStore(t)
	_, err := s.FTSSearch(context.Background(), "", 10, 0)
	require.Error(t, err)
	assert.Equal(t, apperr.EmptyQuery, apperr.CodeOf(err))
}

func TestFTSSearchRanks(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	err := s.Transaction(ctx, func(tx *Tx) error {
		if err := tx.InsertNode(ctx, sampleNode("note_x", "Graph Theory")); err != nil {
			return err
		}
		if err := tx.UpsertFTS(ctx, "note_x", "Graph Theory", "notes on graphs and pagerank"); err != nil {
			return err
		}
		if err := tx.InsertNode(ctx, sampleNode("note_y", "Cooking")); err != nil {
			return err
		}
		return tx.UpsertFTS(ctx, "note_y", "Cooking", "recipes for dinner")
	})
	require.NoError(t, err)

	hits, err := s.FTSSearch(ctx, "graph pagerank", 10, 0)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "note_x", hits[0].ID)
}

func TestMarkDirtyAndClear(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	err := s.Transaction(ctx, func(tx *Tx) error {
		return tx.MarkDirty(ctx, "note_1", now)
	})
	require.NoError(t, err)

	dirty, err := s.DirtyNodes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"note_1"}, dirty)

	require.NoError(t, s.ClearDirty(ctx))
	dirty, err = s.DirtyNodes(ctx)
	require.NoError(t, err)
	assert.Empty(t, dirty)
}

func TestEventWALLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	err := s.Transaction(ctx, func(tx *Tx) error {
		return tx.AppendEvent(ctx, EventWALEntry{ID: "evt_1", HookName: "post_create", Payload: "{}", Created: now})
	})
	require.NoError(t, err)

	pending, err := s.PendingOrFailed(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, EventPending, pending[0].Status)

	require.NoError(t, s.MarkEventStatus(ctx, "evt_1", EventCompleted, 0, "", &now))
	pending, err = s.PendingOrFailed(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
