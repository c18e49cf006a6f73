package store

import (
	"context"
	"strings"
	"time"
)

// ClassifyTag splits a tag of the form "domain/scope" into its two parts;
// a tag without a slash is its own domain with an empty scope.
func ClassifyTag(tag string) (domain, scope string) {
	if i := strings.IndexByte(tag, '/'); i >= 0 {
		return tag[:i], tag[i+1:]
	}
	return tag, ""
}

// TagsFor returns the sorted tag set of a node.
func (s *Store) TagsFor(ctx context.Context, id string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT tag FROM node_tags WHERE node_id=? ORDER BY tag`, id)
	if err != nil {
		return nil, wrapStorage("fetch tags", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, wrapStorage("scan tag", err)
		}
		out = append(out, t)
	}
	return out, wrapStorage("iterate tags", rows.Err())
}

// IndexTags replaces a node's full tag membership and registers any new
// tags in the registry with a first-seen timestamp (spec.md §4.2
// index_tags).
func (tx *Tx) IndexTags(ctx context.Context, id string, tags []string, now time.Time) error {
	if _, err := tx.tx.ExecContext(ctx, `DELETE FROM node_tags WHERE node_id=?`, id); err != nil {
		return wrapStorage("clear node tags", err)
	}
	for _, tag := range tags {
		domain, scope := ClassifyTag(tag)
		if _, err := tx.tx.ExecContext(ctx, `
			INSERT INTO tags (tag, domain, scope, first_seen) VALUES (?, ?, ?, ?)
			ON CONFLICT(tag) DO NOTHING`, tag, domain, scope, now.Format(time.RFC3339Nano)); err != nil {
			return wrapStorage("register tag", err)
		}
		if _, err := tx.tx.ExecContext(ctx, `
			INSERT INTO node_tags (node_id, tag) VALUES (?, ?)
			ON CONFLICT(node_id, tag) DO NOTHING`, id, tag); err != nil {
			return wrapStorage("insert node tag", err)
		}
	}
	return nil
}

// AllTagSets returns every non-archived node's tag set, used by the
// reweave engine's Jaccard signal.
func (s *Store) AllTagSets(ctx context.Context) (map[string]map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT nt.node_id, nt.tag FROM node_tags nt
		JOIN nodes n ON n.id = nt.node_id
		WHERE n.archived = 0`)
	if err != nil {
		return nil, wrapStorage("fetch all tag sets", err)
	}
	defer rows.Close()
	out := make(map[string]map[string]bool)
	for rows.Next() {
		var id, tag string
		if err := rows.Scan(&id, &tag); err != nil {
			return nil, wrapStorage("scan tag set row", err)
		}
		if out[id] == nil {
			out[id] = make(map[string]bool)
		}
		out[id][tag] = true
	}
	return out, wrapStorage("iterate tag sets", rows.Err())
}
