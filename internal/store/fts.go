package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/knotvault/knot/internal/apperr"
)

// UpsertFTS replaces the FTS row for id with the given title/body.
func (tx *Tx) UpsertFTS(ctx context.Context, id, title, body string) error {
	if _, err := tx.tx.ExecContext(ctx, `DELETE FROM fts WHERE id=?`, id); err != nil {
		return wrapStorage("delete fts before upsert", err)
	}
	if _, err := tx.tx.ExecContext(ctx, `INSERT INTO fts (id, title, body) VALUES (?, ?, ?)`, id, title, body); err != nil {
		return wrapStorage("upsert fts", err)
	}
	return nil
}

// DeleteFTS removes the FTS row for id, used on node deletion.
func (tx *Tx) DeleteFTS(ctx context.Context, id string) error {
	_, err := tx.tx.ExecContext(ctx, `DELETE FROM fts WHERE id=?`, id)
	return wrapStorage("delete fts", err)
}

// SearchHit is one FTS match with its BM25 score (lower is better in
// SQLite's native bm25(); callers that want "higher is better" negate it).
type SearchHit struct {
	ID    string
	Title string
	BM25  float64
}

// quoteFTSQuery neutralizes FTS5 operator characters by OR-joining quoted
// tokens, per spec.md §4.6 signal 1 ("tokens are OR-joined and quoted to
// neutralize FTS operator characters").
func quoteFTSQuery(query string) string {
	fields := strings.Fields(query)
	quoted := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.ReplaceAll(f, `"`, `""`)
		quoted = append(quoted, fmt.Sprintf(`"%s"`, f))
	}
	return strings.Join(quoted, " OR ")
}

// FTSSearch runs a BM25-ranked full text query. An empty or whitespace-only
// query is rejected here with apperr.EmptyQuery; storage failures are
// returned as wrapped infrastructure errors.
func (s *Store) FTSSearch(ctx context.Context, query string, limit, offset int) ([]SearchHit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, apperr.New(apperr.EmptyQuery, "search query must not be empty")
	}
	q := quoteFTSQuery(query)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, bm25(fts) AS rank
		FROM fts
		WHERE fts MATCH ?
		ORDER BY rank
		LIMIT ? OFFSET ?`, q, limit, offset)
	if err != nil {
		return nil, wrapStorage("fts search", err)
	}
	defer rows.Close()
	var out []SearchHit
	for rows.Next() {
		var h SearchHit
		if err := rows.Scan(&h.ID, &h.Title, &h.BM25); err != nil {
			return nil, wrapStorage("scan fts hit", err)
		}
		out = append(out, h)
	}
	return out, wrapStorage("iterate fts hits", rows.Err())
}

// BM25Against scores one arbitrary title+body pair against the corpus: used
// by the reweave engine's lexical signal, which needs the BM25 rank of a
// target's own tokens against every candidate row rather than a stored
// query. It materializes the target text as the query.
func (s *Store) BM25Against(ctx context.Context, targetTitle, targetBody string, excludeID string) (map[string]float64, error) {
	text := targetTitle + " " + targetBody
	q := quoteFTSQuery(text)
	if q == "" {
		return map[string]float64{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, bm25(fts) AS rank FROM fts WHERE fts MATCH ? AND id != ?`, q, excludeID)
	if err != nil {
		return nil, wrapStorage("bm25 against corpus", err)
	}
	defer rows.Close()
	out := make(map[string]float64)
	for rows.Next() {
		var id string
		var rank float64
		if err := rows.Scan(&id, &rank); err != nil {
			return nil, wrapStorage("scan bm25 row", err)
		}
		out[id] = rank
	}
	return out, wrapStorage("iterate bm25 rows", rows.Err())
}
