package store

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// ListFilter composes the AND-ed filter set of spec.md §4.10 list/search.
type ListFilter struct {
	Type             string
	Subtype          string
	Status           string
	Tag              string
	Topic            string
	Maturity         string
	Space            string
	Since            *time.Time
	IncludeArchived  bool
}

func (f ListFilter) build() (where string, args []any) {
	var clauses []string
	if f.Type != "" {
		clauses = append(clauses, "n.type = ?")
		args = append(args, f.Type)
	}
	if f.Subtype != "" {
		clauses = append(clauses, "n.subtype = ?")
		args = append(args, f.Subtype)
	}
	if f.Status != "" {
		clauses = append(clauses, "n.status = ?")
		args = append(args, f.Status)
	}
	if f.Topic != "" {
		clauses = append(clauses, "n.topic = ?")
		args = append(args, f.Topic)
	}
	if f.Maturity != "" {
		clauses = append(clauses, "n.maturity = ?")
		args = append(args, f.Maturity)
	}
	if f.Since != nil {
		clauses = append(clauses, "n.created >= ?")
		args = append(args, f.Since.Format(time.RFC3339Nano))
	}
	if !f.IncludeArchived {
		clauses = append(clauses, "n.archived = 0")
	}
	if f.Tag != "" {
		clauses = append(clauses, "n.id IN (SELECT node_id FROM node_tags WHERE tag = ?)")
		args = append(args, f.Tag)
	}
	if f.Space != "" {
		switch f.Space {
		case "notes":
			clauses = append(clauses, "n.type IN ('note', 'reference')")
		case "ops":
			clauses = append(clauses, "n.type IN ('task', 'log')")
		}
	}
	if len(clauses) == 0 {
		return "1=1", nil
	}
	return strings.Join(clauses, " AND "), args
}

// ListNodes returns nodes matching filter, ordered and limited by the
// caller's sort key (sort is applied by internal/query, which knows the
// priority/impact/effort weighting; this returns unsorted candidate rows
// for anything beyond the simple cases below).
func (s *Store) ListNodes(ctx context.Context, f ListFilter, orderBy string, limit int) ([]*NodeRow, error) {
	where, args := f.build()
	if orderBy == "" {
		orderBy = "n.created DESC"
	}
	q := fmt.Sprintf(`SELECT %s FROM nodes n WHERE %s ORDER BY %s`, prefixedNodeColumns("n"), where, orderBy)
	if limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, wrapStorage("list nodes", err)
	}
	defer rows.Close()
	var out []*NodeRow
	for rows.Next() {
		n, err := scanNodeRow(rows.Scan)
		if err != nil {
			return nil, wrapStorage("scan listed node", err)
		}
		out = append(out, n)
	}
	return out, wrapStorage("iterate listed nodes", rows.Err())
}

// AllNodeIDs returns every node id, used by graph materialization and
// integrity scans that need a full key set.
func (s *Store) AllNodeIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM nodes`)
	if err != nil {
		return nil, wrapStorage("fetch all node ids", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, wrapStorage("scan node id", err)
		}
		out = append(out, id)
	}
	return out, wrapStorage("iterate node ids", rows.Err())
}

func prefixedNodeColumns(alias string) string {
	cols := strings.Split(nodeColumns, ",")
	for i, c := range cols {
		cols[i] = alias + "." + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}
