package integrity

import (
	"context"

	"go.uber.org/zap"

	"github.com/knotvault/knot/internal/config"
	"github.com/knotvault/knot/internal/content"
	"github.com/knotvault/knot/internal/graph"
	"github.com/knotvault/knot/internal/store"
)

// Engine runs the four scan passes and the fix/rebuild/rollback
// operations over one vault's store and file tree.
type Engine struct {
	root   string
	dbPath string
	store  *store.Store
	graph  *graph.Engine
	models *content.Registry
	cfg    config.Config
	log    *zap.Logger
}

// New constructs an integrity engine rooted at root. dbPath is the index
// store's on-disk file, used by backup/rollback; it is the same path the
// caller passed to store.Open.
func New(root, dbPath string, s *store.Store, g *graph.Engine, models *content.Registry, cfg config.Config, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	if models == nil {
		models = content.NewRegistry()
	}
	return &Engine{root: root, dbPath: dbPath, store: s, graph: g, models: models, cfg: cfg, log: log}
}

// Scan satisfies the narrow session.Integrity collaborator interface: it
// runs the full four-category check and reduces it to counts.
func (e *Engine) Scan(ctx context.Context) (errorCount, warningCount int, err error) {
	res, err := e.Check(ctx)
	if err != nil {
		return 0, 0, err
	}
	return res.ErrorCount, res.WarningCount, nil
}
