package templates

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderPackagedDefault(t *testing.T) {
	r := NewFileRenderer("")
	out, err := r.Render("task.md.tmpl", map[string]any{"title": "Ship it"})
	require.NoError(t, err)
	assert.Contains(t, out, "Ship it")
}

func TestRenderVaultLocalOverridesDefault(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "task.md.tmpl"), []byte("CUSTOM: {{.title}}"), 0o644))

	r := NewFileRenderer(dir)
	out, err := r.Render("task.md.tmpl", map[string]any{"title": "Ship it"})
	require.NoError(t, err)
	assert.Equal(t, "CUSTOM: Ship it", out)
}

func TestRenderUnknownTemplateFails(t *testing.T) {
	r := NewFileRenderer("")
	_, err := r.Render("nonexistent.md.tmpl", nil)
	require.Error(t, err)
}

func TestAssistedRendererFallsBackWithoutAPIKey(t *testing.T) {
	r := NewAssistedRenderer(NewFileRenderer(""), "", nil)
	out, err := r.Render("self_identity.md.tmpl", map[string]any{"vault_name": "test-vault"})
	require.NoError(t, err)
	assert.Contains(t, out, "test-vault")
}
