package vaultcore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knotvault/knot/internal/apperr"
	"github.com/knotvault/knot/internal/config"
	"github.com/knotvault/knot/internal/content"
	"github.com/knotvault/knot/internal/eventbus"
	"github.com/knotvault/knot/internal/graph"
	"github.com/knotvault/knot/internal/store"
	"github.com/knotvault/knot/internal/templates"
)

func newTestVault(t *testing.T) *Vault {
	t.Helper()
	root := t.TempDir()
	s, err := store.Open(context.Background(), filepath.Join(root, "index.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	g := graph.New(s, nil)
	bus := eventbus.New(s, eventbus.Config{}, nil)
	tmpl := templates.NewFileRenderer(filepath.Join(root, "templates"))

	return Open(root, config.Defaults(), s, g, bus, tmpl, nil)
}

func TestCreateNoteWritesFileAndIndex(t *testing.T) {
	v := newTestVault(t)
	node, warnings, err := v.Create(context.Background(), CreateInput{
		Type: content.TypeNote, Title: "My First Note", Tags: []string{"project/knot"},
	})
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, "draft", node.Status)

	path, err := findNoteFile(v.Root, node.ID)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "My First Note")

	fetched, err := v.Store.FetchNode(context.Background(), node.ID)
	require.NoError(t, err)
	assert.Equal(t, "draft", fetched.Status)
	assert.Contains(t, fetched.Tags, "project/knot")
}

func TestCreateDuplicateTitleCollides(t *testing.T) {
	v := newTestVault(t)
	ctx := context.Background()
	_, _, err := v.Create(ctx, CreateInput{Type: content.TypeNote, Title: "Same Title"})
	require.NoError(t, err)

	_, _, err = v.Create(ctx, CreateInput{Type: content.TypeNote, Title: "Same Title"})
	require.Error(t, err)
	assert.Equal(t, apperr.IdCollision, apperr.CodeOf(err))
}

func TestCreateTaskUsesSequentialCounterID(t *testing.T) {
	v := newTestVault(t)
	ctx := context.Background()
	first, _, err := v.Create(ctx, CreateInput{Type: content.TypeTask, Title: "Task One"})
	require.NoError(t, err)
	second, _, err := v.Create(ctx, CreateInput{Type: content.TypeTask, Title: "Task Two"})
	require.NoError(t, err)
	assert.Equal(t, "TASK-0001", first.ID)
	assert.Equal(t, "TASK-0002", second.ID)
}

func TestUpdateNoteStatusTracksOutgoingLinks(t *testing.T) {
	v := newTestVault(t)
	ctx := context.Background()

	a, _, err := v.Create(ctx, CreateInput{Type: content.TypeNote, Title: "Note A"})
	require.NoError(t, err)
	b, _, err := v.Create(ctx, CreateInput{Type: content.TypeNote, Title: "Note B"})
	require.NoError(t, err)
	c, _, err := v.Create(ctx, CreateInput{Type: content.TypeNote, Title: "Note C"})
	require.NoError(t, err)
	d, _, err := v.Create(ctx, CreateInput{Type: content.TypeNote, Title: "Note D"})
	require.NoError(t, err)

	updated, _, err := v.Update(ctx, a.ID, content.ChangeSet{
		"links": map[string][]string{"relates": {b.ID}},
	})
	require.NoError(t, err)
	assert.Equal(t, "linked", updated.Status)

	updated, _, err = v.Update(ctx, a.ID, content.ChangeSet{
		"links": map[string][]string{"relates": {b.ID, c.ID, d.ID}},
	})
	require.NoError(t, err)
	assert.Equal(t, "connected", updated.Status)

	updated, _, err = v.Update(ctx, a.ID, content.ChangeSet{
		"links": map[string][]string{"relates": {b.ID}},
	})
	require.NoError(t, err)
	assert.Equal(t, "linked", updated.Status)
}

func TestUpdateNoChangesRejected(t *testing.T) {
	v := newTestVault(t)
	ctx := context.Background()
	n, _, err := v.Create(ctx, CreateInput{Type: content.TypeNote, Title: "Idle Note"})
	require.NoError(t, err)

	_, _, err = v.Update(ctx, n.ID, content.ChangeSet{})
	require.Error(t, err)
	assert.Equal(t, apperr.NoChanges, apperr.CodeOf(err))
}

func TestUpdateBodyProtectedOnMaturity(t *testing.T) {
	v := newTestVault(t)
	ctx := context.Background()
	n, _, err := v.Create(ctx, CreateInput{Type: content.TypeNote, Title: "Seedling", Maturity: content.MaturitySeed})
	require.NoError(t, err)

	_, warnings, err := v.Update(ctx, n.ID, content.ChangeSet{"body": "replaced body text", "topic": "gardening"})
	require.NoError(t, err)
	require.NotEmpty(t, warnings)
	assert.Contains(t, warnings[0], "body is protected")

	path, err := findNoteFile(v.Root, n.ID)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "replaced body text")
}

func TestDecisionImmutableAfterAccepted(t *testing.T) {
	v := newTestVault(t)
	ctx := context.Background()
	d, _, err := v.Create(ctx, CreateInput{Type: content.TypeNote, Subtype: content.SubtypeDecision, Title: "Pick a database"})
	require.NoError(t, err)

	_, _, err = v.Update(ctx, d.ID, content.ChangeSet{"status": "accepted"})
	require.NoError(t, err)

	_, _, err = v.Update(ctx, d.ID, content.ChangeSet{"title": "Renamed decision"})
	require.Error(t, err)
	assert.Equal(t, apperr.ValidationFailed, apperr.CodeOf(err))
}

func TestUpdateNotesAppendsBodySection(t *testing.T) {
	v := newTestVault(t)
	ctx := context.Background()
	d, _, err := v.Create(ctx, CreateInput{Type: content.TypeNote, Subtype: content.SubtypeDecision, Title: "Pick a cache"})
	require.NoError(t, err)

	_, warnings, err := v.Update(ctx, d.ID, content.ChangeSet{"notes": "still weighing redis vs memcached"})
	require.NoError(t, err)
	assert.Empty(t, warnings)

	path, err := findNoteFile(v.Root, d.ID)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "## Notes")
	assert.Contains(t, string(data), "still weighing redis vs memcached")

	fetched, err := v.Store.FetchNode(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, "proposed", fetched.Status, "notes iteration leaves status unchanged")

	_, _, err = v.Update(ctx, d.ID, content.ChangeSet{"notes": "decided: redis, lower latency under load"})
	require.NoError(t, err)
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "still weighing redis vs memcached")
	assert.Contains(t, string(data), "decided: redis, lower latency under load")
}

func TestUpdateNotesRejectedAfterAcceptance(t *testing.T) {
	v := newTestVault(t)
	ctx := context.Background()
	d, _, err := v.Create(ctx, CreateInput{Type: content.TypeNote, Subtype: content.SubtypeDecision, Title: "Pick a queue"})
	require.NoError(t, err)

	_, _, err = v.Update(ctx, d.ID, content.ChangeSet{"status": "accepted"})
	require.NoError(t, err)

	_, _, err = v.Update(ctx, d.ID, content.ChangeSet{"notes": "too late to iterate"})
	require.Error(t, err)
	assert.Equal(t, apperr.ValidationFailed, apperr.CodeOf(err))
}

func TestUpdateAliasesAndTopicPersist(t *testing.T) {
	v := newTestVault(t)
	ctx := context.Background()
	n, _, err := v.Create(ctx, CreateInput{Type: content.TypeNote, Title: "Distributed Consensus"})
	require.NoError(t, err)

	updated, _, err := v.Update(ctx, n.ID, content.ChangeSet{
		"aliases": []string{"raft", "paxos-alternative"},
		"topic":   "distributed-systems",
	})
	require.NoError(t, err)
	assert.Equal(t, "distributed-systems", updated.Topic)
	assert.ElementsMatch(t, []string{"raft", "paxos-alternative"}, updated.Aliases)

	fetched, err := v.Store.FetchNode(ctx, n.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"raft", "paxos-alternative"}, fetched.Aliases)
}

func TestUpdateAcceptedDecisionAliasesTopicAllowed(t *testing.T) {
	v := newTestVault(t)
	ctx := context.Background()
	d, _, err := v.Create(ctx, CreateInput{Type: content.TypeNote, Subtype: content.SubtypeDecision, Title: "Pick a message bus"})
	require.NoError(t, err)

	_, _, err = v.Update(ctx, d.ID, content.ChangeSet{"status": "accepted"})
	require.NoError(t, err)

	_, _, err = v.Update(ctx, d.ID, content.ChangeSet{
		"aliases": []string{"mq-decision"},
		"topic":   "infra",
	})
	require.NoError(t, err)

	fetched, err := v.Store.FetchNode(ctx, d.ID)
	require.NoError(t, err)
	assert.Contains(t, fetched.Aliases, "mq-decision")
	assert.Equal(t, "infra", fetched.Topic)
}

func TestArchiveDispatchesPostClose(t *testing.T) {
	v := newTestVault(t)
	ctx := context.Background()
	n, _, err := v.Create(ctx, CreateInput{Type: content.TypeTask, Title: "To be archived"})
	require.NoError(t, err)

	updated, _, err := v.Archive(ctx, n.ID)
	require.NoError(t, err)
	assert.True(t, updated.Archived)

	var dispatched int
	require.NoError(t, v.Store.DB().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM event_wal WHERE hook_name = ?`, eventbus.HookPostClose).Scan(&dispatched))
	assert.Equal(t, 1, dispatched, "archive appends one post_close event to the WAL")
}

func findNoteFile(root, id string) (string, error) {
	var found string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		if filepath.Base(path) == id+".md" {
			found = path
		}
		return nil
	})
	return found, err
}
