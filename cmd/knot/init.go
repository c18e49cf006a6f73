package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/knotvault/knot/internal/apperr"
	"github.com/knotvault/knot/internal/config"
	"github.com/knotvault/knot/internal/eventbus"
	"github.com/knotvault/knot/internal/plugin"
)

var (
	initName   string
	initClient string
	initTone   string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "initialize a new vault",
	Run: func(cmd *cobra.Command, args []string) {
		run("init", func(ctx context.Context) (any, []string, error) {
			return doInit(ctx, rootFlag, initName, initClient, initTone)
		})
	},
}

func init() {
	initCmd.Flags().StringVar(&initName, "name", "knot", "vault name")
	initCmd.Flags().StringVar(&initClient, "client", "", "agent client identifier")
	initCmd.Flags().StringVar(&initTone, "tone", "", "agent tone preference")
}

// doInit scaffolds a vault's directory layout (spec.md §3 File paths:
// notes/, ops/tasks/, ops/logs/, plus the .knot/ state directory this
// repo's plugin package already names), writes a default knot.toml, opens
// the index store (applying its schema), and dispatches post_init.
func doInit(ctx context.Context, root, name, client, tone string) (any, []string, error) {
	state := stateDir(root)
	if _, err := os.Stat(state); err == nil {
		return nil, nil, apperr.New(apperr.VaultExists, "vault already initialized at "+root)
	}

	dirs := []string{
		filepath.Join(root, "notes"),
		filepath.Join(root, "ops", "tasks"),
		filepath.Join(root, "ops", "logs"),
		filepath.Join(state, "plugins"),
		filepath.Join(state, "backups"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, nil, apperr.Wrap(apperr.StorageFatal, "create vault directory", err)
		}
	}

	cfg := config.Defaults()
	cfg.Vault.Name = name
	cfg.Vault.Client = client
	cfg.Agent.Tone = tone
	if err := writeDefaultConfig(root, cfg); err != nil {
		return nil, nil, err
	}

	a, err := openApp(ctx, root, logger())
	if err != nil {
		return nil, nil, apperr.Wrap(apperr.StorageFatal, "open fresh vault", err)
	}
	defer a.Close()

	var warnings []string
	if a.pluginReport != nil {
		warnings = append(warnings, a.pluginReport.Warnings...)
	}

	payload := map[string]any{"vault_name": name, "client": client, "tone": tone}
	if dErr := a.bus.Dispatch(ctx, eventbus.HookPostInit, payload, syncFlag); dErr != nil {
		warnings = append(warnings, "post_init dispatch failed: "+dErr.Error())
	}

	return map[string]any{
		"root":            root,
		"name":            name,
		"state_dir":       plugin.StateDirName,
		"extensions_loaded": len(a.pluginReport.Loaded),
	}, warnings, nil
}

func writeDefaultConfig(root string, cfg config.Config) error {
	path := filepath.Join(root, configFileName)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return apperr.Wrap(apperr.StorageFatal, "encode default config", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return apperr.Wrap(apperr.StorageFatal, "write default config", err)
	}
	return nil
}
