// Package store implements the L2 index store of spec.md §4.2: a SQLite
// (modernc.org/sqlite, pure Go) index over relational node/edge/tag tables
// plus an FTS5 virtual table, rebuildable at any time from the vault's
// Markdown files. Open and Transaction report their own failures as
// apperr.Error values; other methods return infrastructure errors wrapped
// with the failing operation's name (sql.ErrNoRows surfaces as ErrNotFound),
// and callers translate them, per SPEC_FULL.md §1.2.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/knotvault/knot/internal/apperr"
	"github.com/knotvault/knot/internal/store/migrations"
	"go.uber.org/zap"
)

// ErrNotFound is the sentinel used internally before translation to
// apperr.NotFound at the public boundary, following the teacher's
// wrapDBError(sql.ErrNoRows) convention in internal/storage/sqlite/errors.go.
var ErrNotFound = errors.New("store: not found")

// Store owns one SQLite connection pool over the vault's index file.
type Store struct {
	db  *sql.DB
	log *zap.Logger
}

// Open creates or opens the index at path, enabling WAL journaling and
// foreign-key/busy-timeout pragmas, then applies the baseline schema and any
// pending migrations up to head.
func Open(ctx context.Context, path string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, apperr.Wrap(apperr.StorageFatal, "open index", err)
	}
	// A single writer at a time is the concurrency model (spec.md §5); one
	// connection avoids SQLITE_BUSY storms under our own transaction
	// discipline, matching the teacher's :memory:/MaxOpenConns(1) practice.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode=WAL`); err != nil {
		return nil, apperr.Wrap(apperr.StorageFatal, "set journal_mode", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, apperr.Wrap(apperr.MigrationFailed, "apply baseline schema", err)
	}
	if err := migrations.Run(db); err != nil {
		return nil, apperr.Wrap(apperr.MigrationFailed, "apply migrations", err)
	}
	log.Debug("index opened", zap.String("path", path))
	return &Store{db: db, log: log}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the raw handle for components (integrity, session) that scan
// outside the Tx abstraction; integrity's Rebuild also clears tables
// through it.
func (s *Store) DB() *sql.DB { return s.db }

// Tx is a scoped write handle. Callers must call Commit or Rollback exactly
// once; Store.Transaction handles this for the common case.
type Tx struct {
	tx *sql.Tx
}

// Transaction runs fn under a single write transaction, committing on a nil
// return and rolling back otherwise. All writes within one public operation
// must share one Tx per spec.md §4.2.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Tx) error) (err error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Wrap(apperr.StorageRecoverable, "begin transaction", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
	}()
	if err := fn(&Tx{tx: sqlTx}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			return apperr.Wrap(apperr.StorageFatal, "rollback after error", errors.Join(err, rbErr))
		}
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return apperr.Wrap(apperr.StorageRecoverable, "commit transaction", err)
	}
	return nil
}

func wrapStorage(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// NodeRow is the flat relational projection of content.Node plus the
// subtype/maturity/session bookkeeping columns.
type NodeRow struct {
	ID           string
	Type         string
	Subtype      string
	Title        string
	Status       string
	Maturity     string
	Topic        string
	Archived     bool
	Created      time.Time
	Modified     time.Time
	SupersededBy string
	URL          string
	Session      string
	ContentHash  string
	Priority     *int
	Impact       *int
	Effort       *int
	PageRank     *float64
	DegreeIn     *int
	DegreeOut    *int
	Betweenness  *float64
	ClusterID    *int
	Aliases      []string
	Tags         []string
}

const nodeColumns = `id, type, subtype, title, status, maturity, topic, archived, created, modified,
	superseded_by, url, session, content_hash, priority, impact, effort,
	pagerank, degree_in, degree_out, betweenness, cluster_id`

func scanNodeRow(scan func(dest ...any) error) (*NodeRow, error) {
	var n NodeRow
	var archived int
	var created, modified string
	if err := scan(&n.ID, &n.Type, &n.Subtype, &n.Title, &n.Status, &n.Maturity, &n.Topic, &archived,
		&created, &modified, &n.SupersededBy, &n.URL, &n.Session, &n.ContentHash,
		&n.Priority, &n.Impact, &n.Effort, &n.PageRank, &n.DegreeIn, &n.DegreeOut, &n.Betweenness, &n.ClusterID); err != nil {
		return nil, err
	}
	n.Archived = archived != 0
	var err error
	if n.Created, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return nil, fmt.Errorf("parse created: %w", err)
	}
	if n.Modified, err = time.Parse(time.RFC3339Nano, modified); err != nil {
		return nil, fmt.Errorf("parse modified: %w", err)
	}
	return &n, nil
}

// InsertNode inserts a new node row. Callers must have already checked for
// an id collision; InsertNode fails with a raw unique-constraint error
// otherwise, which vaultcore.Create reports as apperr.StorageFatal.
func (tx *Tx) InsertNode(ctx context.Context, n *NodeRow) error {
	_, err := tx.tx.ExecContext(ctx, `
		INSERT INTO nodes (`+nodeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.Type, n.Subtype, n.Title, n.Status, n.Maturity, n.Topic, boolToInt(n.Archived),
		n.Created.Format(time.RFC3339Nano), n.Modified.Format(time.RFC3339Nano),
		n.SupersededBy, n.URL, n.Session, n.ContentHash, n.Priority, n.Impact, n.Effort,
		n.PageRank, n.DegreeIn, n.DegreeOut, n.Betweenness, n.ClusterID)
	return wrapStorage("insert node", err)
}

// UpdateNode replaces the full row for n.ID.
func (tx *Tx) UpdateNode(ctx context.Context, n *NodeRow) error {
	res, err := tx.tx.ExecContext(ctx, `
		UPDATE nodes SET type=?, subtype=?, title=?, status=?, maturity=?, topic=?, archived=?,
			created=?, modified=?, superseded_by=?, url=?, session=?, content_hash=?,
			priority=?, impact=?, effort=?, pagerank=?, degree_in=?, degree_out=?, betweenness=?, cluster_id=?
		WHERE id=?`,
		n.Type, n.Subtype, n.Title, n.Status, n.Maturity, n.Topic, boolToInt(n.Archived),
		n.Created.Format(time.RFC3339Nano), n.Modified.Format(time.RFC3339Nano),
		n.SupersededBy, n.URL, n.Session, n.ContentHash, n.Priority, n.Impact, n.Effort,
		n.PageRank, n.DegreeIn, n.DegreeOut, n.Betweenness, n.ClusterID, n.ID)
	if err != nil {
		return wrapStorage("update node", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return wrapStorage("update node rows affected", err)
	}
	if affected == 0 {
		return fmt.Errorf("update node %s: %w", n.ID, ErrNotFound)
	}
	return nil
}

// DeleteNode removes a node row and cascades to its edges, tags, aliases,
// and FTS row. Called only from integrity's fix path.
func (tx *Tx) DeleteNode(ctx context.Context, id string) error {
	stmts := []string{
		`DELETE FROM nodes WHERE id=?`,
		`DELETE FROM edges WHERE source_id=? OR target_id=?`,
		`DELETE FROM node_tags WHERE node_id=?`,
		`DELETE FROM aliases WHERE node_id=?`,
		`DELETE FROM fts WHERE id=?`,
		`DELETE FROM dirty_nodes WHERE node_id=?`,
	}
	args := [][]any{{id}, {id, id}, {id}, {id}, {id}, {id}}
	for i, stmt := range stmts {
		if _, err := tx.tx.ExecContext(ctx, stmt, args[i]...); err != nil {
			return wrapStorage("delete node cascade", err)
		}
	}
	return nil
}

// FetchNode reads one node row by id, together with its tags and aliases.
func (s *Store) FetchNode(ctx context.Context, id string) (*NodeRow, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+nodeColumns+` FROM nodes WHERE id=?`, id)
	n, err := scanNodeRow(row.Scan)
	if err != nil {
		return nil, wrapStorage("fetch node", err)
	}
	n.Tags, err = s.TagsFor(ctx, id)
	if err != nil {
		return nil, err
	}
	n.Aliases, err = s.AliasesFor(ctx, id)
	if err != nil {
		return nil, err
	}
	return n, nil
}

// FetchNodeTx is FetchNode against the in-flight transaction, used by
// pipeline stages that must see their own uncommitted writes.
func (tx *Tx) FetchNodeTx(ctx context.Context, id string) (*NodeRow, error) {
	row := tx.tx.QueryRowContext(ctx, `SELECT `+nodeColumns+` FROM nodes WHERE id=?`, id)
	n, err := scanNodeRow(row.Scan)
	if err != nil {
		return nil, wrapStorage("fetch node", err)
	}
	return n, nil
}

// AliasesFor returns the known aliases for a node id.
func (s *Store) AliasesFor(ctx context.Context, id string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT alias FROM aliases WHERE node_id=? ORDER BY alias`, id)
	if err != nil {
		return nil, wrapStorage("fetch aliases", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return nil, wrapStorage("scan alias", err)
		}
		out = append(out, a)
	}
	return out, wrapStorage("iterate aliases", rows.Err())
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
