package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "knot.toml"))
	require.NoError(t, err)
	assert.Equal(t, 0.6, cfg.Reweave.MinScoreThreshold)
	assert.True(t, cfg.Reweave.Enabled)
}

func TestLoadParsesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "knot.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[vault]
name = "my-vault"

[reweave]
min_score_threshold = 0.75
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "my-vault", cfg.Vault.Name)
	assert.Equal(t, 0.75, cfg.Reweave.MinScoreThreshold)
}

func TestValidateWeightsRejectsBadSum(t *testing.T) {
	cfg := Defaults()
	cfg.Reweave.LexicalWeight = 0.9
	err := cfg.ValidateWeights()
	require.Error(t, err)
}

func TestEnvOverlayOverridesReweaveEnabled(t *testing.T) {
	t.Setenv("KNOT_REWEAVE_ENABLED", "false")
	cfg, err := Load(filepath.Join(t.TempDir(), "knot.toml"))
	require.NoError(t, err)
	assert.False(t, cfg.Reweave.Enabled)
}
