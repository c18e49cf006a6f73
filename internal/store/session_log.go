package store

import (
	"context"
	"database/sql"
	"time"
)

// SessionLogRow mirrors one JSONL record into the DB (spec.md §3
// Session-log entry).
type SessionLogRow struct {
	EntryID    string
	SessionID  string
	Timestamp  time.Time
	Message    string
	Pin        bool
	Cost       float64
	Detail     string // raw JSON
	References string // raw JSON array of ids
	Metadata   string // raw JSON
}

// AppendSessionLog inserts one session-log row. Callers must append in
// monotonic timestamp order (spec.md §5).
func (tx *Tx) AppendSessionLog(ctx context.Context, r SessionLogRow) error {
	_, err := tx.tx.ExecContext(ctx, `
		INSERT INTO session_log (entry_id, session_id, timestamp, message, pin, cost, detail, "references", metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.EntryID, r.SessionID, r.Timestamp.Format(time.RFC3339Nano), r.Message, boolToInt(r.Pin), r.Cost, r.Detail, r.References, r.Metadata)
	return wrapStorage("append session log", err)
}

// SessionLogEntries returns all log rows for a session in timestamp order,
// optionally starting from a checkpoint id (exclusive) when since != "".
func (s *Store) SessionLogEntries(ctx context.Context, sessionID, sinceEntryID string) ([]SessionLogRow, error) {
	var rows interface {
		Next() bool
		Scan(...any) error
		Err() error
		Close() error
	}
	var err error
	if sinceEntryID == "" {
		rows, err = s.db.QueryContext(ctx, `
			SELECT entry_id, session_id, timestamp, message, pin, cost, detail, "references", metadata
			FROM session_log WHERE session_id=? ORDER BY timestamp`, sessionID)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT entry_id, session_id, timestamp, message, pin, cost, detail, "references", metadata
			FROM session_log
			WHERE session_id=? AND timestamp > (SELECT timestamp FROM session_log WHERE entry_id=?)
			ORDER BY timestamp`, sessionID, sinceEntryID)
	}
	if err != nil {
		return nil, wrapStorage("fetch session log", err)
	}
	defer rows.Close()

	var out []SessionLogRow
	for rows.Next() {
		var r SessionLogRow
		var ts string
		var pin int
		if err := rows.Scan(&r.EntryID, &r.SessionID, &ts, &r.Message, &pin, &r.Cost, &r.Detail, &r.References, &r.Metadata); err != nil {
			return nil, wrapStorage("scan session log row", err)
		}
		r.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		r.Pin = pin != 0
		out = append(out, r)
	}
	return out, wrapStorage("iterate session log", rows.Err())
}

// LatestCheckpoint returns the entry id of the most recent pinned
// ("checkpoint") log row for a session, ok=false if none has been pinned
// yet. Used by context() to read forward from the latest checkpoint rather
// than the session start (spec.md §4.8).
func (s *Store) LatestCheckpoint(ctx context.Context, sessionID string) (string, bool, error) {
	var entryID string
	err := s.db.QueryRowContext(ctx, `
		SELECT entry_id FROM session_log
		WHERE session_id=? AND pin=1
		ORDER BY timestamp DESC LIMIT 1`, sessionID).Scan(&entryID)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, wrapStorage("fetch latest checkpoint", err)
	}
	return entryID, true, nil
}

// SessionCost sums the cost column for a session.
func (s *Store) SessionCost(ctx context.Context, sessionID string) (float64, error) {
	var total float64
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(cost), 0) FROM session_log WHERE session_id=?`, sessionID).Scan(&total)
	return total, wrapStorage("sum session cost", err)
}
