package store

import (
	"context"
	"database/sql"
	"time"
)

// ReweaveLogEntry is one audit row written by the reweave engine
// (spec.md §3 Reweave-log entry).
type ReweaveLogEntry struct {
	ID       string
	BatchTS  time.Time
	SourceID string
	TargetID string
	Action   string // "add" or "prune"
	Score    float64
	Undone   bool
}

// AppendReweaveLog inserts one reweave-log row.
func (tx *Tx) AppendReweaveLog(ctx context.Context, e ReweaveLogEntry) error {
	_, err := tx.tx.ExecContext(ctx, `
		INSERT INTO reweave_log (id, batch_ts, source_id, target_id, action, score, undone)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.BatchTS.Format(time.RFC3339Nano), e.SourceID, e.TargetID, e.Action, e.Score, boolToInt(e.Undone))
	return wrapStorage("append reweave log", err)
}

// LatestBatch returns the batch_ts of the most recent non-undone reweave
// batch, or zero time + false if there is no history.
func (s *Store) LatestBatch(ctx context.Context) (time.Time, bool, error) {
	var ts string
	err := s.db.QueryRowContext(ctx, `
		SELECT batch_ts FROM reweave_log WHERE undone = 0 ORDER BY batch_ts DESC LIMIT 1`).Scan(&ts)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, wrapStorage("fetch latest batch", err)
	}
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}

// EntriesForBatch returns all non-undone entries for a batch timestamp.
func (s *Store) EntriesForBatch(ctx context.Context, batchTS time.Time) ([]ReweaveLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, batch_ts, source_id, target_id, action, score, undone
		FROM reweave_log WHERE batch_ts = ? AND undone = 0`, batchTS.Format(time.RFC3339Nano))
	if err != nil {
		return nil, wrapStorage("fetch batch entries", err)
	}
	defer rows.Close()
	return scanReweaveRows(rows)
}

// EntryByID returns a single reweave-log entry, used for explicit
// log_id-targeted undo.
func (s *Store) EntryByID(ctx context.Context, id string) (*ReweaveLogEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, batch_ts, source_id, target_id, action, score, undone
		FROM reweave_log WHERE id = ?`, id)
	var e ReweaveLogEntry
	var ts string
	var undone int
	if err := row.Scan(&e.ID, &ts, &e.SourceID, &e.TargetID, &e.Action, &e.Score, &undone); err != nil {
		return nil, wrapStorage("fetch reweave entry", err)
	}
	e.BatchTS, _ = time.Parse(time.RFC3339Nano, ts)
	e.Undone = undone != 0
	return &e, nil
}

// MarkUndone flags a reweave-log entry as undone so it is never replayed.
func (tx *Tx) MarkUndone(ctx context.Context, id string) error {
	_, err := tx.tx.ExecContext(ctx, `UPDATE reweave_log SET undone = 1 WHERE id = ?`, id)
	return wrapStorage("mark reweave entry undone", err)
}

func scanReweaveRows(rows interface {
	Next() bool
	Scan(...any) error
	Err() error
}) ([]ReweaveLogEntry, error) {
	var out []ReweaveLogEntry
	for rows.Next() {
		var e ReweaveLogEntry
		var ts string
		var undone int
		if err := rows.Scan(&e.ID, &ts, &e.SourceID, &e.TargetID, &e.Action, &e.Score, &undone); err != nil {
			return nil, wrapStorage("scan reweave entry", err)
		}
		e.BatchTS, _ = time.Parse(time.RFC3339Nano, ts)
		e.Undone = undone != 0
		out = append(out, e)
	}
	return out, wrapStorage("iterate reweave entries", rows.Err())
}
