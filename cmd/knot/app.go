// Command knot is the thin CLI pass-through named in SPEC_FULL.md §2
// ("CLI surface (thin pass-through only)", grounded in the teacher's
// cmd/bd): every subcommand below does nothing but parse flags, call one
// public operation on a wired-up app, and render the resulting
// result.Envelope. All real engineering lives in the internal/ packages.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/knotvault/knot/internal/config"
	"github.com/knotvault/knot/internal/content"
	"github.com/knotvault/knot/internal/eventbus"
	"github.com/knotvault/knot/internal/graph"
	"github.com/knotvault/knot/internal/integrity"
	"github.com/knotvault/knot/internal/plugin"
	"github.com/knotvault/knot/internal/query"
	"github.com/knotvault/knot/internal/reweave"
	"github.com/knotvault/knot/internal/semantic"
	"github.com/knotvault/knot/internal/session"
	"github.com/knotvault/knot/internal/store"
	"github.com/knotvault/knot/internal/templates"
	"github.com/knotvault/knot/internal/vaultcore"
)

// configFileName is the vault's human-editable config file (SPEC_FULL.md
// §1.3 "<vault>/knot.toml").
const configFileName = "knot.toml"

// indexDBName and vectorsDBName live under plugin.StateDirName
// (<vault>/.knot/), alongside the plugins directory extensions are
// discovered from.
const (
	indexDBName   = "index.db"
	vectorsDBName = "vectors.db"
)

// app bundles every engine collaborator a command needs. It is assembled
// once per invocation by openApp and torn down by its Close.
type app struct {
	root    string
	cfg     config.Config
	store   *store.Store
	graph   *graph.Engine
	bus     *eventbus.Bus
	vault   *vaultcore.Vault
	reweave *reweave.Engine
	query   *query.Engine
	session *session.Engine
	check   *integrity.Engine
	plugins *plugin.Loader
	semantic *semantic.Store
	log     *zap.Logger

	pluginReport *plugin.Report
}

func stateDir(root string) string {
	return filepath.Join(root, plugin.StateDirName)
}

// openApp wires up every L-layer over an existing vault directory: loads
// config, opens the index store, builds the graph/bus/template/reweave/
// query/session/integrity engines, builds one content.Registry shared by
// every layer, loads local extensions into it, and finally overwrites
// vaultcore.Vault's Models and Reweave fields post-Open, since Open itself
// always builds its own fresh registry and leaves Reweave nil.
func openApp(ctx context.Context, root string, log *zap.Logger) (*app, error) {
	if log == nil {
		log = zap.NewNop()
	}
	cfg, err := config.Load(filepath.Join(root, configFileName))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	s, err := store.Open(ctx, filepath.Join(stateDir(root), indexDBName), log)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}

	g := graph.New(s, log)
	bus := eventbus.New(s, eventbus.Config{}, log)

	var renderer templates.Renderer = templates.NewFileRenderer(root)
	if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
		renderer = templates.NewAssistedRenderer(renderer, apiKey, log)
	}

	models := content.NewRegistry()

	// vec is kept as a concrete *semantic.Store (for Close) while only
	// assigned into the query.SemanticSearcher interface var when
	// non-nil, avoiding the typed-nil-interface trap a bare assignment
	// of a nil *semantic.Store would create.
	vec := openSemanticStore(root, cfg, log)
	var searcher query.SemanticSearcher
	if vec != nil {
		searcher = vec
	}

	rw := reweave.New(root, s, g, bus, cfg, log)
	q := query.New(root, s, g, cfg, searcher)
	chk := integrity.New(root, filepath.Join(stateDir(root), indexDBName), s, g, models, cfg, log)
	sess := session.New(root, s, g, bus, rw, q, chk, cfg, log)

	v := vaultcore.Open(root, cfg, s, g, bus, renderer, log)
	v.Models = models
	v.Reweave = rw

	loader := plugin.New(root, bus, models, log)
	report, err := loader.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load extensions: %w", err)
	}

	return &app{
		root: root, cfg: cfg, store: s, graph: g, bus: bus,
		vault: v, reweave: rw, query: q, session: sess, check: chk,
		plugins: loader, semantic: vec, log: log, pluginReport: report,
	}, nil
}

func (a *app) Close() error {
	if a.semantic != nil {
		_ = a.semantic.Close()
	}
	return a.store.Close()
}

// openSemanticStore opens the optional vector index up front, returning
// nil when disabled or unavailable (spec.md §6 capability contract:
// search() degrades silently rather than failing vault open).
func openSemanticStore(root string, cfg config.Config, log *zap.Logger) *semantic.Store {
	if !cfg.Search.SemanticEnabled {
		return nil
	}
	sv, err := semantic.OpenFromConfig(filepath.Join(stateDir(root), vectorsDBName), cfg, log)
	if err != nil {
		log.Warn("semantic search unavailable", zap.Error(err))
		return nil
	}
	return sv
}
