package ids

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashIDDeterministic(t *testing.T) {
	a, err := HashID(KindNote, "My Great Idea")
	require.NoError(t, err)
	b, err := HashID(KindNote, "  my   great idea  ")
	require.NoError(t, err)
	assert.Equal(t, a, b, "normalization should make whitespace/case-insensitive titles collide")
	assert.Regexp(t, `^note_[0-9a-f]{16}$`, a)
}

func TestHashIDPrefixDiffersByKind(t *testing.T) {
	note, err := HashID(KindNote, "Same Title")
	require.NoError(t, err)
	ref, err := HashID(KindReference, "Same Title")
	require.NoError(t, err)
	assert.NotEqual(t, note, ref)
	assert.Regexp(t, `^ref_[0-9a-f]{16}$`, ref)
}

func TestHashIDRejectsCounterKinds(t *testing.T) {
	_, err := HashID(KindTask, "whatever")
	require.Error(t, err)
}

func TestCounterIDPadding(t *testing.T) {
	id, err := CounterID(KindTask, 7)
	require.NoError(t, err)
	assert.Equal(t, "TASK-0007", id)

	id, err = CounterID(KindLog, 12345)
	require.NoError(t, err)
	assert.Equal(t, "LOG-12345", id, "counters beyond 9999 widen rather than truncate")
}

func TestPathScheme(t *testing.T) {
	p, err := Path(KindNote, "note_deadbeefcafe0001", "")
	require.NoError(t, err)
	assert.Equal(t, "notes/note_deadbeefcafe0001.md", p)

	p, err = Path(KindNote, "note_deadbeefcafe0001", "projects/alpha")
	require.NoError(t, err)
	assert.Equal(t, "notes/projects/alpha/note_deadbeefcafe0001.md", p)

	p, err = Path(KindTask, "TASK-0001", "")
	require.NoError(t, err)
	assert.Equal(t, "ops/tasks/TASK-0001.md", p)

	p, err = Path(KindLog, "LOG-0001", "")
	require.NoError(t, err)
	assert.Equal(t, "ops/logs/LOG-0001.jsonl", p)
}

func TestSpace(t *testing.T) {
	assert.Equal(t, "notes", Space(KindNote))
	assert.Equal(t, "notes", Space(KindReference))
	assert.Equal(t, "ops", Space(KindTask))
	assert.Equal(t, "ops", Space(KindLog))
}
