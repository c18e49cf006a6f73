package semantic

import (
	"bytes"
	"context"
	"encoding/binary"
	"hash/fnv"
	"math"

	"github.com/knotvault/knot/internal/apperr"
)

// Upsert embeds text and (re)inserts it under id, keyed by a stable
// hash-derived rowid so the same id always replaces its own row (vec0
// virtual tables are rowid tables; hashing the id avoids needing a second
// mapping table, mirrored from the rowid-keyed INSERT OR REPLACE pattern
// codenerd's vector store uses against its own vec_index table).
func (s *Store) Upsert(ctx context.Context, id, text string) error {
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return apperr.Wrap(apperr.SemanticUnavailable, "embed text", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO vec_nodes(rowid, embedding, node_id) VALUES (?, ?, ?)`,
		rowidFor(id), encodeFloat32(vec), id)
	if err != nil {
		return apperr.Wrap(apperr.SemanticUnavailable, "upsert vector", err)
	}
	return nil
}

// Delete removes id's embedding, if present.
func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM vec_nodes WHERE rowid = ?`, rowidFor(id))
	if err != nil {
		return apperr.Wrap(apperr.SemanticUnavailable, "delete vector", err)
	}
	return nil
}

// Search satisfies internal/query.SemanticSearcher: embeds query, runs a
// cosine-distance nearest-neighbor scan, and returns id -> similarity
// (1 - distance, so higher is better, matching the rest of the ranking
// surface's "higher score wins" convention).
func (s *Store) Search(ctx context.Context, query string, limit int) (map[string]float64, error) {
	if limit <= 0 {
		limit = 20
	}
	qvec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, apperr.Wrap(apperr.SemanticUnavailable, "embed query", err)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT node_id, vec_distance_cosine(embedding, ?) AS distance
		FROM vec_nodes
		ORDER BY distance ASC
		LIMIT ?`, encodeFloat32(qvec), limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.SemanticUnavailable, "knn search", err)
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var id string
		var distance float64
		if err := rows.Scan(&id, &distance); err != nil {
			return nil, apperr.Wrap(apperr.SemanticUnavailable, "scan knn row", err)
		}
		out[id] = 1 - distance
	}
	return out, rows.Err()
}

// encodeFloat32 little-endian encodes a vector the way sqlite-vec expects
// its BLOB parameters (theRebelliousNerd-codenerd's encodeFloat32SliceToBlob).
func encodeFloat32(vec []float32) []byte {
	buf := &bytes.Buffer{}
	buf.Grow(len(vec) * 4)
	_ = binary.Write(buf, binary.LittleEndian, vec)
	return buf.Bytes()
}

// rowidFor derives a stable, mostly-unique int64 rowid from a node id
// string so repeated upserts of the same id replace rather than duplicate.
func rowidFor(id string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(id))
	v := int64(h.Sum64() & math.MaxInt64)
	if v == 0 {
		v = 1
	}
	return v
}
