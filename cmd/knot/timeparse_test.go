package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSinceEmpty(t *testing.T) {
	got, err := parseSince("")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestParseSinceRFC3339(t *testing.T) {
	got, err := parseSince("2026-01-15T00:00:00Z")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Equal(time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)))
}

func TestParseSinceNaturalLanguage(t *testing.T) {
	got, err := parseSince("3 days ago")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Before(time.Now()))
}

func TestParseSinceUnintelligible(t *testing.T) {
	_, err := parseSince("zzz not a time zzz")
	assert.Error(t, err)
}

func TestFilterFlagsToListFilter(t *testing.T) {
	f := filterFlags{Type: "note", Tag: "foo"}
	lf, err := f.toListFilter()
	require.NoError(t, err)
	assert.Equal(t, "note", lf.Type)
	assert.Equal(t, "foo", lf.Tag)
	assert.Nil(t, lf.Since)
}
