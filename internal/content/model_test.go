package content

import (
	"testing"

	"github.com/knotvault/knot/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryLookupFallsBackToBareType(t *testing.T) {
	r := NewRegistry()

	m, err := r.Lookup(TypeNote, SubtypeDecision)
	require.NoError(t, err)
	assert.Equal(t, "note:decision", m.Key())

	m, err = r.Lookup(TypeNote, SubtypeKnowledge)
	require.NoError(t, err)
	assert.Equal(t, "note", m.Key(), "knowledge has no dedicated model, falls back to plain note")
}

func TestRegistryLookupUnknownType(t *testing.T) {
	r := NewRegistry()
	_, err := r.Lookup(Type("bogus"), "")
	require.Error(t, err)
	assert.Equal(t, apperr.UnknownType, apperr.CodeOf(err))
}

func TestNoteValidateCreateWarnsWithoutKeyPoints(t *testing.T) {
	m := noteModel{}
	warnings, err := m.ValidateCreate(CreateInput{Type: TypeNote, Subtype: SubtypeKnowledge, Title: "Idea"})
	require.NoError(t, err)
	assert.Len(t, warnings, 1)

	warnings, err = m.ValidateCreate(CreateInput{Type: TypeNote, Subtype: SubtypeKnowledge, Title: "Idea", KeyPoints: []string{"a"}})
	require.NoError(t, err)
	assert.Empty(t, warnings)
}

func TestNoteValidateCreateRejectsEmptyTitle(t *testing.T) {
	m := noteModel{}
	_, err := m.ValidateCreate(CreateInput{Type: TypeNote})
	require.Error(t, err)
	assert.Equal(t, apperr.ValidationFailed, apperr.CodeOf(err))
}

func TestNoteStatusIsNotDirectlySettable(t *testing.T) {
	m := noteModel{}
	node := &Node{ID: "note_1", Status: "draft"}
	_, err := m.ValidateUpdate(node, ChangeSet{"status": "connected"})
	require.Error(t, err)
	assert.Equal(t, apperr.ValidationFailed, apperr.CodeOf(err))
}

func TestDecisionImmutableAfterAccepted(t *testing.T) {
	m := decisionModel{}
	node := &Node{ID: "note_2", Status: "accepted"}

	_, err := m.ValidateUpdate(node, ChangeSet{"title": "New Title"})
	require.Error(t, err)
	assert.Equal(t, apperr.ValidationFailed, apperr.CodeOf(err))

	// "notes" is not in spec.md §4.3's post-acceptance allowlist: free-text
	// iteration is only available before acceptance.
	_, err = m.ValidateUpdate(node, ChangeSet{"notes": "addendum after review"})
	require.Error(t, err)
	assert.Equal(t, apperr.ValidationFailed, apperr.CodeOf(err))
}

func TestDecisionAcceptedAllowlistMatchesSpec(t *testing.T) {
	m := decisionModel{}
	node := &Node{ID: "note_2b", Status: "accepted"}

	for _, field := range []string{"superseded_by", "modified", "tags", "aliases", "topic"} {
		_, err := m.ValidateUpdate(node, ChangeSet{field: "x"})
		assert.NoError(t, err, "field %q should be allowed post-acceptance", field)
	}
	_, err := m.ValidateUpdate(node, ChangeSet{"status": "superseded"})
	assert.NoError(t, err, "status may still move accepted -> superseded")

	_, err = m.ValidateUpdate(node, ChangeSet{"url": "https://example.com"})
	require.Error(t, err, "url is not in the post-acceptance allowlist")
	assert.Equal(t, apperr.ValidationFailed, apperr.CodeOf(err))
}

func TestDecisionNotesIterationBeforeAcceptance(t *testing.T) {
	m := decisionModel{}
	node := &Node{ID: "note_2c", Status: "proposed"}
	_, err := m.ValidateUpdate(node, ChangeSet{"notes": "needs more discussion before we accept"})
	require.NoError(t, err)
}

func TestDecisionTransitionOrder(t *testing.T) {
	m := decisionModel{}
	node := &Node{ID: "note_3", Status: "proposed"}

	_, err := m.ValidateUpdate(node, ChangeSet{"status": "superseded"})
	require.Error(t, err, "cannot skip accepted")
	assert.Equal(t, apperr.InvalidTransition, apperr.CodeOf(err))

	_, err = m.ValidateUpdate(node, ChangeSet{"status": "accepted"})
	require.NoError(t, err)
}

func TestTaskTransitions(t *testing.T) {
	m := taskModel{}
	node := &Node{ID: "TASK-0001", Status: "done"}
	_, err := m.ValidateUpdate(node, ChangeSet{"status": "active"})
	require.Error(t, err, "done is terminal")

	node = &Node{ID: "TASK-0002", Status: "inbox"}
	_, err = m.ValidateUpdate(node, ChangeSet{"status": "active"})
	require.NoError(t, err)
}

func TestTaskValidatePriorityRange(t *testing.T) {
	m := taskModel{}
	bad := 5
	_, err := m.ValidateCreate(CreateInput{Title: "x", Priority: &bad})
	require.Error(t, err)
}

func TestLogTogglesOpenClosed(t *testing.T) {
	m := logModel{}
	node := &Node{ID: "LOG-0001", Status: "open"}
	_, err := m.ValidateUpdate(node, ChangeSet{"status": "closed"})
	require.NoError(t, err)

	node.Status = "closed"
	_, err = m.ValidateUpdate(node, ChangeSet{"status": "open"})
	require.NoError(t, err)
}

func TestImmutableFieldsRejectedOnEveryModel(t *testing.T) {
	for _, m := range builtins() {
		node := &Node{ID: "x", Status: ""}
		_, err := m.ValidateUpdate(node, ChangeSet{"id": "y"})
		require.Error(t, err, m.Key())
		assert.Equal(t, apperr.ValidationFailed, apperr.CodeOf(err))
	}
}
