// Package semantic implements the optional vector search capability named
// in spec.md §6 and SPEC_FULL.md §2 ("sqlite-vec-go-bindings + go-sqlite3,
// cgo side-connection"): a nearest-neighbor index over node embeddings,
// satisfying internal/query.SemanticSearcher. It is grounded in
// theRebelliousNerd-codenerd's internal/store (vec_index virtual table,
// cosine distance query shape, float32-blob encoding) and its
// internal/embedding package's swappable embedding-engine interface,
// narrowed here to the one concrete embedder the corpus's dependency set
// can actually back without reaching outside it (see DESIGN.md).
//
// The main index store (internal/store) stays on modernc.org/sqlite, which
// has no FFI surface for loadable extensions; sqlite-vec requires SQLite's
// native extension-loading mechanism, which only github.com/mattn/go-sqlite3
// (cgo) provides. So this package opens its own side connection to a
// dedicated vectors.db file next to the main index, exactly as codenerd's
// vector store keeps a separate *sql.DB for vec0 rather than sharing the
// primary connection.
package semantic

import (
	"context"
	"database/sql"
	"fmt"

	vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/knotvault/knot/internal/apperr"
	"github.com/knotvault/knot/internal/config"
)

func init() {
	vec.Auto()
}

// Embedder turns text into a fixed-dimension vector. Store works with any
// implementation; NewLocalEmbedder is the only one this module ships.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// Store is a vec0-backed nearest-neighbor index over node ids.
type Store struct {
	db       *sql.DB
	embedder Embedder
	dim      int
	log      *zap.Logger
}

// Open opens (creating if absent) the vector side-database at dbPath and
// ensures its vec0 virtual table exists for embedder's dimensionality.
func Open(dbPath string, embedder Embedder, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, apperr.Wrap(apperr.SemanticUnavailable, "open vector store", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db, embedder: embedder, dim: embedder.Dimensions(), log: log}
	if err := s.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema() error {
	stmt := fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS vec_nodes USING vec0(embedding float[%d], node_id TEXT)`,
		s.dim)
	if _, err := s.db.Exec(stmt); err != nil {
		return apperr.Wrap(apperr.SemanticUnavailable, "create vec_nodes table (sqlite-vec may be unavailable)", err)
	}
	return nil
}

// Close releases the side connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// OpenFromConfig opens a Store at the vault's vectors.db path (conventionally
// <root>/.knot/vectors.db, alongside the main index and backups) using a
// LocalEmbedder sized by cfg.Search.EmbeddingDim, returning
// apperr.SemanticUnavailable (never a panic or a fatal exit) when
// cfg.Search.SemanticEnabled is false or the vec0 extension can't load, so
// query.Engine's callers can treat it as "feature absent" rather than
// "vault broken" (spec.md §6 capability contract).
func OpenFromConfig(dbPath string, cfg config.Config, log *zap.Logger) (*Store, error) {
	if !cfg.Search.SemanticEnabled {
		return nil, apperr.New(apperr.SemanticUnavailable, "semantic search disabled in config")
	}
	dim := cfg.Search.EmbeddingDim
	if dim <= 0 {
		dim = 256
	}
	return Open(dbPath, NewLocalEmbedder(dim), log)
}
