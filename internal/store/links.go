package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/knotvault/knot/internal/frontmatter"
)

// Edge is the directed relation row of spec.md §3.
type Edge struct {
	SourceID      string
	TargetID      string
	EdgeType      string
	Created       time.Time
	Bidirectional bool
}

// titleResolver looks up a node id by exact (case-sensitive) title match,
// used to resolve wikilink tokens.
type titleResolver func(ctx context.Context, title string) (id string, ok bool, err error)

// ResolveTitle implements titleResolver against the live nodes table.
func (s *Store) ResolveTitle(ctx context.Context, title string) (string, bool, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM nodes WHERE title=? LIMIT 1`, title).Scan(&id)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, wrapStorage("resolve title", err)
	}
	return id, true, nil
}

// IndexLinks recomputes a node's outgoing edges from frontmatter links plus
// body wikilinks (spec.md §4.2 index_links): deletes prior outgoing edges
// for id, then inserts the union of both sources. Unresolved wikilinks are
// dropped silently, as required.
func (tx *Tx) IndexLinks(ctx context.Context, id string, links map[string][]string, body string, now time.Time, resolve titleResolver) error {
	if _, err := tx.tx.ExecContext(ctx, `DELETE FROM edges WHERE source_id=?`, id); err != nil {
		return wrapStorage("clear outgoing edges", err)
	}

	seen := make(map[string]bool)
	insert := func(target, edgeType string) error {
		k := edgeType + "\x00" + target
		if target == "" || target == id || seen[k] {
			return nil
		}
		seen[k] = true
		_, err := tx.tx.ExecContext(ctx, `
			INSERT INTO edges (source_id, target_id, edge_type, created, bidirectional)
			VALUES (?, ?, ?, ?, 0)
			ON CONFLICT(source_id, target_id, edge_type) DO NOTHING`,
			id, target, edgeType, now.Format(time.RFC3339Nano))
		return wrapStorage("insert edge", err)
	}

	for kind, targets := range links {
		for _, t := range targets {
			if err := insert(t, kind); err != nil {
				return err
			}
		}
	}

	for _, title := range frontmatter.ExtractWikilinks(body) {
		target, ok, err := resolve(ctx, title)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := insert(target, "relates"); err != nil {
			return err
		}
	}
	return nil
}

// OutgoingEdges returns all outgoing edges for id.
func (s *Store) OutgoingEdges(ctx context.Context, id string) ([]Edge, error) {
	return s.queryEdges(ctx, `SELECT source_id, target_id, edge_type, created, bidirectional FROM edges WHERE source_id=?`, id)
}

// IncomingEdges returns all incoming edges (backlinks) for id.
func (s *Store) IncomingEdges(ctx context.Context, id string) ([]Edge, error) {
	return s.queryEdges(ctx, `SELECT source_id, target_id, edge_type, created, bidirectional FROM edges WHERE target_id=?`, id)
}

// AllEdges returns the full edge table, used by the graph engine to build
// its in-memory adjacency snapshot.
func (s *Store) AllEdges(ctx context.Context) ([]Edge, error) {
	return s.queryEdges(ctx, `SELECT source_id, target_id, edge_type, created, bidirectional FROM edges`)
}

// OutgoingEdgesTx is OutgoingEdges against the in-flight transaction: the
// update pipeline's propagate stage must observe the edge set its own
// index stage just wrote, and with a single-connection pool a query
// through the Store's db handle while this Tx is open would block on the
// connection the Tx is holding.
func (tx *Tx) OutgoingEdgesTx(ctx context.Context, id string) ([]Edge, error) {
	return queryEdgesWith(ctx, tx.tx, `SELECT source_id, target_id, edge_type, created, bidirectional FROM edges WHERE source_id=?`, id)
}

func (s *Store) queryEdges(ctx context.Context, q string, args ...any) ([]Edge, error) {
	return queryEdgesWith(ctx, s.db, q, args...)
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryEdgesWith(ctx context.Context, q queryer, query string, args ...any) ([]Edge, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapStorage("query edges", err)
	}
	defer rows.Close()
	var out []Edge
	for rows.Next() {
		var e Edge
		var created string
		var bidir int
		if err := rows.Scan(&e.SourceID, &e.TargetID, &e.EdgeType, &created, &bidir); err != nil {
			return nil, wrapStorage("scan edge", err)
		}
		e.Created, _ = time.Parse(time.RFC3339Nano, created)
		e.Bidirectional = bidir != 0
		out = append(out, e)
	}
	return out, wrapStorage("iterate edges", rows.Err())
}

// OutgoingEdgeCount is used by the Note status machine (spec.md §4.3).
func (s *Store) OutgoingEdgeCount(ctx context.Context, id string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM edges WHERE source_id=?`, id).Scan(&n)
	return n, wrapStorage("count outgoing edges", err)
}

// InsertEdge adds a single edge row, used by the reweave engine.
func (tx *Tx) InsertEdge(ctx context.Context, e Edge) error {
	_, err := tx.tx.ExecContext(ctx, `
		INSERT INTO edges (source_id, target_id, edge_type, created, bidirectional)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(source_id, target_id, edge_type) DO NOTHING`,
		e.SourceID, e.TargetID, e.EdgeType, e.Created.Format(time.RFC3339Nano), boolToInt(e.Bidirectional))
	return wrapStorage("insert edge", err)
}

// DeleteEdge removes one directed edge.
func (tx *Tx) DeleteEdge(ctx context.Context, sourceID, targetID, edgeType string) error {
	_, err := tx.tx.ExecContext(ctx, `DELETE FROM edges WHERE source_id=? AND target_id=? AND edge_type=?`, sourceID, targetID, edgeType)
	return wrapStorage("delete edge", err)
}

// SetBidirectional flags an edge as mutual, used by materialize_metrics.
func (tx *Tx) SetBidirectional(ctx context.Context, sourceID, targetID, edgeType string, bidi bool) error {
	_, err := tx.tx.ExecContext(ctx, `UPDATE edges SET bidirectional=? WHERE source_id=? AND target_id=? AND edge_type=?`,
		boolToInt(bidi), sourceID, targetID, edgeType)
	return wrapStorage("set bidirectional", err)
}
