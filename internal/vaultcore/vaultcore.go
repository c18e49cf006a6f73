package vaultcore

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/knotvault/knot/internal/config"
	"github.com/knotvault/knot/internal/content"
	"github.com/knotvault/knot/internal/eventbus"
	"github.com/knotvault/knot/internal/graph"
	"github.com/knotvault/knot/internal/store"
	"github.com/knotvault/knot/internal/templates"
)

// Reweaver is the optional tail collaborator a create() call hands newly
// created notes and references to (spec.md §4.4 step 6). It is satisfied
// by internal/reweave.Engine; vaultcore depends only on this narrow
// interface so the two packages don't form an import cycle (reweave itself
// depends on vaultcore's store/graph setup).
type Reweaver interface {
	OnCreate(ctx context.Context, id string) (warnings []string, err error)
}

// Vault is the assembled runtime: the index store, the graph engine, the
// event bus, the template renderer, the content model registry, and the
// frozen configuration, rooted at one on-disk vault directory. It is the
// single object the CLI and any extension surface operate through.
type Vault struct {
	Root   string
	Config config.Config

	Store     *store.Store
	Graph     *graph.Engine
	Bus       *eventbus.Bus
	Templates templates.Renderer
	Models    *content.Registry
	Reweave   Reweaver // nil until internal/reweave.Engine is wired in

	log *zap.Logger
}

// Open assembles a Vault over an already-open index store. Callers build
// the store, graph engine, bus and template renderer separately (each has
// its own lifecycle / optional AI wiring) and hand them here; Open itself
// performs no I/O.
func Open(root string, cfg config.Config, s *store.Store, g *graph.Engine, b *eventbus.Bus, tmpl templates.Renderer, log *zap.Logger) *Vault {
	if log == nil {
		log = zap.NewNop()
	}
	return &Vault{
		Root:      root,
		Config:    cfg,
		Store:     s,
		Graph:     g,
		Bus:       b,
		Templates: tmpl,
		Models:    content.NewRegistry(),
		log:       log,
	}
}

// computeNoteStatus implements spec.md §3's machine-computed note status:
// 0 outgoing edges -> draft, 1-2 -> linked, >=3 -> connected.
func computeNoteStatus(outgoingEdges int) string {
	switch {
	case outgoingEdges == 0:
		return "draft"
	case outgoingEdges <= 2:
		return "linked"
	default:
		return "connected"
	}
}

// nowFunc is indirected so tests can pin a deterministic clock.
var nowFunc = func() time.Time { return time.Now().UTC() }

func toNodeRow(n *store.NodeRow) *content.Node {
	return &content.Node{
		ID: n.ID, Type: content.Type(n.Type), Subtype: n.Subtype, Title: n.Title,
		Status: n.Status, Maturity: content.Maturity(n.Maturity), Topic: n.Topic,
		Archived: n.Archived, Created: n.Created, Modified: n.Modified,
		SupersededBy: n.SupersededBy, Tags: n.Tags, PageRank: n.PageRank,
		DegreeIn: n.DegreeIn, DegreeOut: n.DegreeOut, Betweenness: n.Betweenness,
		ClusterID: n.ClusterID, Priority: n.Priority, Impact: n.Impact, Effort: n.Effort,
		URL: n.URL, Aliases: n.Aliases, Session: n.Session, ContentHash: n.ContentHash,
	}
}
