package store

import (
	"context"
	"time"
)

// Event WAL statuses (spec.md §3 Event-WAL entry).
const (
	EventPending    = "pending"
	EventCompleted  = "completed"
	EventFailed     = "failed"
	EventDeadLetter = "dead_letter"
)

// EventWALEntry is one durable hook-dispatch record.
type EventWALEntry struct {
	ID        string
	HookName  string
	Payload   string // raw JSON
	Status    string
	Retries   int
	Error     string
	SessionID string
	Created   time.Time
	Completed *time.Time
}

// AppendEvent inserts a pending WAL row, step 1 of dispatch (spec.md §4.9).
func (tx *Tx) AppendEvent(ctx context.Context, e EventWALEntry) error {
	_, err := tx.tx.ExecContext(ctx, `
		INSERT INTO event_wal (id, hook_name, payload, status, retries, error, session_id, created, completed)
		VALUES (?, ?, ?, ?, 0, '', ?, ?, '')`,
		e.ID, e.HookName, e.Payload, EventPending, e.SessionID, e.Created.Format(time.RFC3339Nano))
	return wrapStorage("append event wal", err)
}

// MarkEventStatus updates status/retries/error/completed for one entry.
// This is the event WAL's only non-append mutation and is idempotent per
// spec.md §5 ("updates to the status column... are idempotent").
func (s *Store) MarkEventStatus(ctx context.Context, id, status string, retries int, errMsg string, completed *time.Time) error {
	var completedStr string
	if completed != nil {
		completedStr = completed.Format(time.RFC3339Nano)
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE event_wal SET status=?, retries=?, error=?, completed=? WHERE id=?`,
		status, retries, errMsg, completedStr, id)
	return wrapStorage("mark event status", err)
}

// PendingOrFailed returns entries eligible for a drain() retry pass.
func (s *Store) PendingOrFailed(ctx context.Context) ([]EventWALEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, hook_name, payload, status, retries, error, session_id, created, completed
		FROM event_wal WHERE status IN (?, ?) ORDER BY created`, EventPending, EventFailed)
	if err != nil {
		return nil, wrapStorage("fetch pending/failed events", err)
	}
	defer rows.Close()
	return scanEventRows(rows)
}

// EventsForSession returns every WAL entry carrying the given session id,
// oldest first (SPEC_FULL.md §4 supplemented feature 3). drain() and
// session close do not call it; neither reports per-session counts.
func (s *Store) EventsForSession(ctx context.Context, sessionID string) ([]EventWALEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, hook_name, payload, status, retries, error, session_id, created, completed
		FROM event_wal WHERE session_id=? ORDER BY created`, sessionID)
	if err != nil {
		return nil, wrapStorage("fetch session events", err)
	}
	defer rows.Close()
	return scanEventRows(rows)
}

func scanEventRows(rows interface {
	Next() bool
	Scan(...any) error
	Err() error
}) ([]EventWALEntry, error) {
	var out []EventWALEntry
	for rows.Next() {
		var e EventWALEntry
		var created, completed string
		if err := rows.Scan(&e.ID, &e.HookName, &e.Payload, &e.Status, &e.Retries, &e.Error, &e.SessionID, &created, &completed); err != nil {
			return nil, wrapStorage("scan event row", err)
		}
		e.Created, _ = time.Parse(time.RFC3339Nano, created)
		if completed != "" {
			t, _ := time.Parse(time.RFC3339Nano, completed)
			e.Completed = &t
		}
		out = append(out, e)
	}
	return out, wrapStorage("iterate event rows", rows.Err())
}
