package plugin

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knotvault/knot/internal/content"
	"github.com/knotvault/knot/internal/eventbus"
	"github.com/knotvault/knot/internal/store"
)

const hookPlugin = `package main

func RegisterHooks() map[string]func(map[string]interface{}) error {
	return map[string]func(map[string]interface{}) error{
		"post_create": func(payload map[string]interface{}) error {
			return nil
		},
	}
}
`

const modelPlugin = `package main

func RegisterContentModels() map[string]map[string]interface{} {
	return map[string]map[string]interface{}{
		"note:protocol": {
			"initial_status": "draft",
			"transitions": map[string]interface{}{
				"draft": []interface{}{"active"},
			},
		},
	}
}
`

const brokenPlugin = `package main

func RegisterHooks() string {
	this does not parse
}
`

func writePlugin(t *testing.T, dir, name, src string) {
	t.Helper()
	pluginsDir := filepath.Join(dir, StateDirName, "plugins")
	require.NoError(t, os.MkdirAll(pluginsDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(pluginsDir, name), []byte(src), 0o644))
}

func newTestBus(t *testing.T) *eventbus.Bus {
	t.Helper()
	s, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "index.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return eventbus.New(s, eventbus.Config{}, nil)
}

func TestDiscoverEmptyWhenNoPluginsDir(t *testing.T) {
	l := New(t.TempDir(), nil, nil, nil)
	files, err := l.Discover()
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestLoadAllRegistersHook(t *testing.T) {
	root := t.TempDir()
	writePlugin(t, root, "hooks.go", hookPlugin)

	bus := newTestBus(t)
	l := New(root, bus, nil, nil)

	report, err := l.LoadAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, report.Loaded, 1)
	assert.Empty(t, report.Warnings)

	require.NoError(t, bus.Dispatch(context.Background(), "post_create", map[string]any{"id": "note_x"}, true))
}

func TestLoadAllRegistersContentModel(t *testing.T) {
	root := t.TempDir()
	writePlugin(t, root, "models.go", modelPlugin)

	models := content.NewRegistry()
	l := New(root, nil, models, nil)

	report, err := l.LoadAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, report.Loaded, 1)

	m, err := models.Lookup(content.TypeNote, "protocol")
	require.NoError(t, err)
	assert.Equal(t, "note:protocol", m.Key())
	tr := m.Transitions()
	assert.Equal(t, "draft", tr.Initial)
	assert.True(t, tr.CanTransition("draft", "active"))
	assert.False(t, tr.CanTransition("draft", "archived"))
}

func TestLoadAllDowngradesBrokenPluginToWarning(t *testing.T) {
	root := t.TempDir()
	writePlugin(t, root, "broken.go", brokenPlugin)

	l := New(root, nil, nil, nil)
	report, err := l.LoadAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Loaded)
	require.Len(t, report.Warnings, 1)
}

func TestLoadAllSkipsNonGoFiles(t *testing.T) {
	root := t.TempDir()
	pluginsDir := filepath.Join(root, StateDirName, "plugins")
	require.NoError(t, os.MkdirAll(pluginsDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(pluginsDir, "README.md"), []byte("not a plugin"), 0o644))

	l := New(root, nil, nil, nil)
	report, err := l.LoadAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Loaded)
	assert.Empty(t, report.Warnings)
}
