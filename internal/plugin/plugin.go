// Package plugin implements the L14 extension interface of spec.md §6/§4.14:
// local extensions discovered from <vault>/<state-dir>/plugins/*.go, loaded
// with github.com/traefik/yaegi so no compiled .so is required, grounded in
// codenerd's internal/autopoiesis/yaegi_executor.go (interp.New + stdlib.Symbols,
// i.Eval("main.X") to retrieve an entrypoint by name). An extension registers
// hook handlers and, optionally, declarative content-model descriptors; any
// failure during discovery, evaluation, or invocation is downgraded to a
// warning and never reaches the caller (spec.md invariant 6).
package plugin

import (
	"go.uber.org/zap"

	"github.com/knotvault/knot/internal/content"
	"github.com/knotvault/knot/internal/eventbus"
)

// StateDirName is the vault-relative directory extensions are discovered
// under (spec.md §6 "<vault>/<state-dir>/plugins/*.<ext>").
const StateDirName = ".knot"

// HookFunc is the signature an extension's exported RegisterHooks map value
// must satisfy. It is expressed only in universal types (map, string,
// interface{}, error) so yaegi's interpreted code can produce a value of
// this exact function type without any custom symbol export, the same
// restriction codenerd's YaegiExecutor applies to its RunTool contract.
type HookFunc func(payload map[string]interface{}) error

// Loader discovers and loads local extensions into a running vault.
type Loader struct {
	root   string
	bus    *eventbus.Bus
	models *content.Registry
	log    *zap.Logger
}

// New constructs a Loader rooted at a vault directory. bus and models are
// the collaborators extensions register into; either may be nil to load
// extensions in a dry-run/inspection mode.
func New(root string, bus *eventbus.Bus, models *content.Registry, log *zap.Logger) *Loader {
	if log == nil {
		log = zap.NewNop()
	}
	return &Loader{root: root, bus: bus, models: models, log: log}
}

// Report summarizes one LoadAll call (spec.md §4.12 warnings surface: these
// feed the public operation's warnings list, never its error field).
type Report struct {
	Loaded   []string `json:"loaded"`
	Warnings []string `json:"warnings"`
}
