package store

import (
	"context"
	"time"
)

// MarkDirty records id in the dirty set since the last
// materialize_metrics run (SPEC_FULL.md §4 supplemented feature 2,
// grounded in the teacher's dirty_issues table).
func (tx *Tx) MarkDirty(ctx context.Context, id string, now time.Time) error {
	_, err := tx.tx.ExecContext(ctx, `
		INSERT INTO dirty_nodes (node_id, marked) VALUES (?, ?)
		ON CONFLICT(node_id) DO UPDATE SET marked = excluded.marked`, id, now.Format(time.RFC3339Nano))
	return wrapStorage("mark dirty", err)
}

// DirtyNodes returns the ids touched since the last clear, oldest first.
func (s *Store) DirtyNodes(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT node_id FROM dirty_nodes ORDER BY marked`)
	if err != nil {
		return nil, wrapStorage("fetch dirty nodes", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, wrapStorage("scan dirty node", err)
		}
		out = append(out, id)
	}
	return out, wrapStorage("iterate dirty nodes", rows.Err())
}

// ClearDirty empties the dirty set, called after a full-graph metrics
// materialization pass completes.
func (s *Store) ClearDirty(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM dirty_nodes`)
	return wrapStorage("clear dirty nodes", err)
}
