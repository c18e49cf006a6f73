// Package config implements the ambient vault configuration surface
// (spec.md §6, SPEC_FULL.md §1.3): a human-editable TOML file parsed with
// github.com/BurntSushi/toml, overlaid with KNOT_-prefixed environment
// variables read through github.com/spf13/viper, merged once at
// vaultcore.Open time into a single frozen Config value. Nothing downstream
// re-reads the file or viper directly, replacing the teacher's dynamic
// internal/config object with the single frozen value type spec.md §9
// calls for.
package config

import (
	"os"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"

	"github.com/knotvault/knot/internal/apperr"
)

// Config is the complete, immutable vault configuration (spec.md §6
// "Configuration surface"). Zero values are valid defaults; Load always
// returns a fully-populated value.
type Config struct {
	Vault struct {
		Name   string `toml:"name"`
		Client string `toml:"client"`
	} `toml:"vault"`

	Agent struct {
		Tone    string `toml:"tone"`
		Context struct {
			DefaultBudget  int `toml:"default_budget"`
			Layer2MaxNotes int `toml:"layer_2_max_notes"`
			Layer3MaxHops  int `toml:"layer_3_max_hops"`
		} `toml:"context"`
	} `toml:"agent"`

	Reweave struct {
		Enabled           bool    `toml:"enabled"`
		MinScoreThreshold float64 `toml:"min_score_threshold"`
		MaxLinksPerNote   int     `toml:"max_links_per_note"`
		LexicalWeight     float64 `toml:"lexical_weight"`
		TagWeight         float64 `toml:"tag_weight"`
		GraphWeight       float64 `toml:"graph_weight"`
		TopicWeight       float64 `toml:"topic_weight"`
	} `toml:"reweave"`

	Garden struct {
		SeedAgeWarningDays         int `toml:"seed_age_warning_days"`
		EvergreenMinKeyPoints      int `toml:"evergreen_min_key_points"`
		EvergreenMinBidirectional  int `toml:"evergreen_min_bidirectional_links"`
	} `toml:"garden"`

	Search struct {
		HalfLifeDays    float64 `toml:"half_life_days"`
		SemanticEnabled bool    `toml:"semantic_enabled"`
		EmbeddingModel  string  `toml:"embedding_model"`
		EmbeddingDim    int     `toml:"embedding_dim"`
		SemanticWeight  float64 `toml:"semantic_weight"`
	} `toml:"search"`

	Session struct {
		CloseReweave           bool    `toml:"close_reweave"`
		CloseOrphanSweep       bool    `toml:"close_orphan_sweep"`
		CloseIntegrityCheck    bool    `toml:"close_integrity_check"`
		OrphanReweaveThreshold float64 `toml:"orphan_reweave_threshold"`
	} `toml:"session"`

	Check struct {
		BackupRetentionDays          int `toml:"backup_retention_days"`
		BackupMaxCount               int `toml:"backup_max_count"`
		DisconnectedComponentMinSize int `toml:"disconnected_component_min_size"`
	} `toml:"check"`
}

// Defaults returns the out-of-the-box configuration (spec.md §4.6 weight
// defaults, §4.9/§4.10 defaults).
func Defaults() Config {
	var c Config
	c.Vault.Name = "knot"
	c.Agent.Context.DefaultBudget = 8000
	c.Agent.Context.Layer2MaxNotes = 20
	c.Agent.Context.Layer3MaxHops = 2
	c.Reweave.Enabled = true
	c.Reweave.MinScoreThreshold = 0.6
	c.Reweave.MaxLinksPerNote = 8
	c.Reweave.LexicalWeight = 0.35
	c.Reweave.TagWeight = 0.25
	c.Reweave.GraphWeight = 0.25
	c.Reweave.TopicWeight = 0.15
	c.Garden.SeedAgeWarningDays = 30
	c.Garden.EvergreenMinKeyPoints = 3
	c.Garden.EvergreenMinBidirectional = 2
	c.Search.HalfLifeDays = 30
	c.Search.SemanticWeight = 0.5
	c.Search.EmbeddingModel = "local-hashed-bow"
	c.Search.EmbeddingDim = 256
	c.Session.CloseReweave = true
	c.Session.CloseOrphanSweep = true
	c.Session.CloseIntegrityCheck = true
	c.Session.OrphanReweaveThreshold = 0.4
	c.Check.BackupRetentionDays = 30
	c.Check.BackupMaxCount = 10
	c.Check.DisconnectedComponentMinSize = 3
	return c
}

// ValidateWeights checks that the four reweave signal weights sum to 1
// (spec.md §4.6 "Weights are configurable but must sum to 1").
func (c Config) ValidateWeights() error {
	sum := c.Reweave.LexicalWeight + c.Reweave.TagWeight + c.Reweave.GraphWeight + c.Reweave.TopicWeight
	if sum < 0.999 || sum > 1.001 {
		return apperr.Newf(apperr.ValidationFailed, "reweave signal weights must sum to 1, got %f", sum)
	}
	return nil
}

// Load reads path (if present) over the defaults, then overlays any
// KNOT_-prefixed environment variables via viper.AutomaticEnv(), returning
// one frozen value. A missing file is not an error; a malformed one is.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, apperr.Wrap(apperr.InvalidFormat, "parse vault config", err)
		}
	} else if !os.IsNotExist(err) {
		return Config{}, apperr.Wrap(apperr.StorageRecoverable, "stat vault config", err)
	}

	v := viper.New()
	v.SetEnvPrefix("KNOT")
	v.AutomaticEnv()
	applyEnvOverlay(v, &cfg)

	if err := cfg.ValidateWeights(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnvOverlay binds the small set of env-overridable scalars the way
// the teacher's internal/config reads BD_/BEADS_-prefixed vars: explicit
// per-key binds rather than reflective struct tagging, since only a few
// keys are meant to be env-overridable operationally (name, client, tone,
// the reweave gate).
func applyEnvOverlay(v *viper.Viper, cfg *Config) {
	if v.IsSet("VAULT_NAME") {
		cfg.Vault.Name = v.GetString("VAULT_NAME")
	}
	if v.IsSet("VAULT_CLIENT") {
		cfg.Vault.Client = v.GetString("VAULT_CLIENT")
	}
	if v.IsSet("AGENT_TONE") {
		cfg.Agent.Tone = v.GetString("AGENT_TONE")
	}
	if v.IsSet("REWEAVE_ENABLED") {
		cfg.Reweave.Enabled = v.GetBool("REWEAVE_ENABLED")
	}
}
