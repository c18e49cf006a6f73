package frontmatter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEmitRoundTrip(t *testing.T) {
	fm := &Frontmatter{
		ID:      "note_0000000000000001",
		Type:    "note",
		Title:   "Example",
		Created: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Tags:    []string{"x/y", "project/alpha"},
		Links:   map[string][]string{"relates": {"note_0000000000000002"}},
	}

	raw, err := Emit(fm, "Body text with a [[Wikilink]].\n")
	require.NoError(t, err)

	parsed, body, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, fm.ID, parsed.ID)
	assert.Equal(t, fm.Tags, parsed.Tags)
	assert.Equal(t, fm.Links, parsed.Links)
	assert.Contains(t, body, "Wikilink")
}

func TestParseMissingRequiredKeys(t *testing.T) {
	raw := []byte("---\ntitle: No ID\n---\nbody\n")
	_, _, err := Parse(raw)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "id")
}

func TestParseRejectsDeepNesting(t *testing.T) {
	raw := []byte(`---
id: note_1
type: note
title: T
created: 2026-01-01T00:00:00Z
links:
  relates:
    nested: true
---
body
`)
	_, _, err := Parse(raw)
	require.Error(t, err)
}

func TestParseNoClosingFence(t *testing.T) {
	_, _, err := Parse([]byte("---\nid: x\n"))
	require.Error(t, err)
}

func TestExtractWikilinks(t *testing.T) {
	body := "See [[Project Alpha]] and [[Project Alpha]] again, also [[Beta|shown as beta]]."
	links := ExtractWikilinks(body)
	assert.Equal(t, []string{"Project Alpha", "Beta"}, links)
}

func TestExtractWikilinksEmpty(t *testing.T) {
	assert.Empty(t, ExtractWikilinks("no links here"))
}
