package integrity

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knotvault/knot/internal/config"
	"github.com/knotvault/knot/internal/frontmatter"
	"github.com/knotvault/knot/internal/graph"
	"github.com/knotvault/knot/internal/store"
)

func newTestEngine(t *testing.T) (*Engine, *store.Store, string) {
	t.Helper()
	root := t.TempDir()
	dbPath := filepath.Join(root, "index.db")
	s, err := store.Open(context.Background(), dbPath, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	g := graph.New(s, nil)
	cfg := config.Defaults()
	return New(root, dbPath, s, g, nil, cfg, nil), s, root
}

func writeNoteFile(t *testing.T, root, id, title string, links map[string][]string, body string) {
	t.Helper()
	fm := &frontmatter.Frontmatter{ID: id, Type: "note", Title: title, Created: time.Now().UTC(), Links: links}
	raw, err := frontmatter.Emit(fm, body)
	require.NoError(t, err)
	path := filepath.Join(root, "notes", id+".md")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, raw, 0o644))
}

func insertNoteRow(t *testing.T, ctx context.Context, s *store.Store, id, title string) {
	t.Helper()
	now := time.Now().UTC()
	err := s.Transaction(ctx, func(tx *store.Tx) error {
		return tx.InsertNode(ctx, &store.NodeRow{ID: id, Type: "note", Title: title, Created: now, Modified: now})
	})
	require.NoError(t, err)
}

func TestCheckFindsFileMissingForNodeRow(t *testing.T) {
	e, s, _ := newTestEngine(t)
	ctx := context.Background()

	insertNoteRow(t, ctx, s, "note_aaaaaaaaaaaaaaaa", "Orphan Row")

	res, err := e.Check(ctx)
	require.NoError(t, err)
	assert.False(t, res.Healthy)
	assert.Greater(t, res.ErrorCount, 0)
}

func TestCheckFindsFileWithNoNodeRow(t *testing.T) {
	e, _, root := newTestEngine(t)
	ctx := context.Background()

	writeNoteFile(t, root, "note_bbbbbbbbbbbbbbbb", "Untracked File", nil, "body text")

	res, err := e.Check(ctx)
	require.NoError(t, err)
	assert.Greater(t, res.WarningCount, 0)
}

func TestCheckHealthyOnEmptyVault(t *testing.T) {
	e, _, _ := newTestEngine(t)
	res, err := e.Check(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Healthy)
	assert.Equal(t, 0, res.ErrorCount)
}

func TestFixSafeRemovesOrphanRows(t *testing.T) {
	e, s, _ := newTestEngine(t)
	ctx := context.Background()

	insertNoteRow(t, ctx, s, "note_cccccccccccccccc", "Orphan Row")

	res, err := e.Fix(ctx, FixSafe)
	require.NoError(t, err)
	assert.Equal(t, 1, res.OrphanRowsRemoved)
	assert.FileExists(t, res.BackupPath)

	_, err = s.FetchNode(ctx, "note_cccccccccccccccc")
	require.Error(t, err)
}

func TestRebuildReconstructsFromFiles(t *testing.T) {
	e, s, root := newTestEngine(t)
	ctx := context.Background()

	writeNoteFile(t, root, "note_dddddddddddddddd", "Source Note",
		map[string][]string{"relates": {"note_eeeeeeeeeeeeeeee"}}, "body one")
	writeNoteFile(t, root, "note_eeeeeeeeeeeeeeee", "Target Note", nil, "body two")

	res, err := e.Rebuild(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.NodesRebuilt)
	assert.Equal(t, 2, res.EdgesRebuilt)

	n, err := s.FetchNode(ctx, "note_dddddddddddddddd")
	require.NoError(t, err)
	assert.Equal(t, "Source Note", n.Title)

	edges, err := s.OutgoingEdges(ctx, "note_dddddddddddddddd")
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, "note_eeeeeeeeeeeeeeee", edges[0].TargetID)
}

func TestRollbackFailsWithoutBackups(t *testing.T) {
	e, _, _ := newTestEngine(t)
	_, err := e.Rollback(context.Background())
	require.Error(t, err)
}

func TestRollbackRestoresLatestBackup(t *testing.T) {
	e, s, _ := newTestEngine(t)
	ctx := context.Background()

	insertNoteRow(t, ctx, s, "note_ffffffffffffffff", "Before Backup")
	_, err := e.backupIndex()
	require.NoError(t, err)
	require.NoError(t, s.Close())

	res, err := e.Rollback(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, res.RestoredFrom)
}
