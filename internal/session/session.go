// Package session implements the L11 session subsystem of spec.md §4.8: a
// single-active-session invariant over append-only JSONL work sessions,
// with a fixed, individually-toggleable enrichment pipeline run at close
// and a token-budgeted, layered context assembly for agent consumption.
//
// Session logs never go through vaultcore.Create: spec.md §6 fixes
// ops/logs/<id>.jsonl as an append-only JSON-lines file rather than a
// frontmatter Markdown document, so this package owns its own JSONL
// records and the log node's row directly, the way the teacher's
// cmd/bd/close.go composes a fixed sequence of independently-flagged
// post-close steps (--no-auto, --suggest-next, --compact-spec, ...)
// rather than delegating to one generic per-content-type pipeline.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/knotvault/knot/internal/apperr"
	"github.com/knotvault/knot/internal/config"
	"github.com/knotvault/knot/internal/eventbus"
	"github.com/knotvault/knot/internal/graph"
	"github.com/knotvault/knot/internal/ids"
	"github.com/knotvault/knot/internal/query"
	"github.com/knotvault/knot/internal/reweave"
	"github.com/knotvault/knot/internal/store"
)

// Integrity is the narrow collaborator Close's step 4 consults (spec.md
// §4.11 read-only scan). It is satisfied by internal/integrity.Engine;
// session depends only on this interface and does not import the
// integrity package, mirroring vaultcore.Reweaver.
type Integrity interface {
	Scan(ctx context.Context) (errorCount, warningCount int, err error)
}

// Engine is the session subsystem's runtime, wired over the same store,
// graph, and bus every other L-layer shares, plus the reweave and query
// engines it calls into during close() and context().
type Engine struct {
	root      string
	store     *store.Store
	graph     *graph.Engine
	bus       *eventbus.Bus
	reweave   *reweave.Engine
	query     *query.Engine
	integrity Integrity // nil until internal/integrity.Engine is wired in
	cfg       config.Config
	log       *zap.Logger
}

// New constructs a session Engine rooted at root.
func New(root string, s *store.Store, g *graph.Engine, bus *eventbus.Bus, rw *reweave.Engine, q *query.Engine, integrity Integrity, cfg config.Config, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{root: root, store: s, graph: g, bus: bus, reweave: rw, query: q, integrity: integrity, cfg: cfg, log: log}
}

// record is one JSONL line of a session log file.
type record struct {
	Type       string         `json:"type"`
	SessionID  string         `json:"session_id"`
	Timestamp  time.Time      `json:"timestamp"`
	Topic      string         `json:"topic,omitempty"`
	Summary    string         `json:"summary,omitempty"`
	EntryID    string         `json:"entry_id,omitempty"`
	Message    string         `json:"message,omitempty"`
	Pin        bool           `json:"pin,omitempty"`
	Cost       float64        `json:"cost,omitempty"`
	Detail     map[string]any `json:"detail,omitempty"`
	References []string       `json:"references,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// StartResult is the data payload of a successful start().
type StartResult struct {
	SessionID string    `json:"session_id"`
	Topic     string    `json:"topic,omitempty"`
	Started   time.Time `json:"started"`
}

// Start opens a new session. Only one session may be open at a time
// (spec.md §4.8 invariant).
func (e *Engine) Start(ctx context.Context, topic string) (*StartResult, []string, error) {
	var warnings []string

	active, err := e.findActiveSession(ctx)
	if err != nil {
		return nil, nil, err
	}
	if active != nil {
		return nil, nil, apperr.Newf(apperr.ActiveSessionExists, "session %s is already open", active.ID).
			WithDetail(map[string]any{"session_id": active.ID})
	}

	now := time.Now().UTC()
	var id, path string
	err = e.store.Transaction(ctx, func(tx *store.Tx) error {
		n, cErr := tx.NextCounter(ctx, "log")
		if cErr != nil {
			return cErr
		}
		var idErr error
		id, idErr = ids.CounterID(ids.KindLog, n)
		if idErr != nil {
			return apperr.Wrap(apperr.ValidationFailed, "format session id", idErr)
		}
		relPath, pErr := ids.Path(ids.KindLog, id, "")
		if pErr != nil {
			return apperr.Wrap(apperr.ValidationFailed, "compute session log path", pErr)
		}
		path = filepath.Join(e.root, relPath)

		title := topic
		if title == "" {
			title = "session " + id
		}

		data, mErr := json.Marshal(record{Type: "start", SessionID: id, Timestamp: now, Topic: topic})
		if mErr != nil {
			return apperr.Wrap(apperr.StorageFatal, "marshal session start record", mErr)
		}
		if wErr := writeFileAtomic(path, append(data, '\n')); wErr != nil {
			return wErr
		}

		row := &store.NodeRow{ID: id, Type: "log", Title: title, Status: "open", Topic: topic, Created: now, Modified: now, Session: id}
		if iErr := tx.InsertNode(ctx, row); iErr != nil {
			if rmErr := os.Remove(path); rmErr != nil {
				e.log.Warn("failed to remove session log file after insert failure", zap.Error(rmErr))
			}
			return apperr.Wrap(apperr.StorageFatal, "insert session log node", iErr)
		}
		if iErr := tx.UpsertFTS(ctx, id, title, ""); iErr != nil {
			return iErr
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	e.graph.Invalidate()
	if dErr := e.bus.Dispatch(ctx, eventbus.HookPostSessionStart, map[string]any{"session_id": id}, false); dErr != nil {
		warnings = append(warnings, fmt.Sprintf("post_session_start dispatch failed: %v", dErr))
	}
	return &StartResult{SessionID: id, Topic: topic, Started: now}, warnings, nil
}

// LogEntryInput is the input to LogEntry.
type LogEntryInput struct {
	Message    string
	Pin        bool
	Cost       float64
	Detail     map[string]any
	References []string
	Metadata   map[string]any
}

// LogEntryResult is the data payload of a successful log_entry().
type LogEntryResult struct {
	EntryID   string    `json:"entry_id"`
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`
}

// LogEntry appends one entry to the active session's log. Requires a
// session to be open (spec.md §4.8).
func (e *Engine) LogEntry(ctx context.Context, in LogEntryInput) (*LogEntryResult, error) {
	active, err := e.findActiveSession(ctx)
	if err != nil {
		return nil, err
	}
	if active == nil {
		return nil, apperr.New(apperr.NoActiveSession, "no session is open")
	}

	now := time.Now().UTC()
	entryID := fmt.Sprintf("evt_%s_%d", active.ID, now.UnixNano())

	rec := record{
		Type: "log", SessionID: active.ID, Timestamp: now, EntryID: entryID,
		Message: in.Message, Pin: in.Pin, Cost: in.Cost,
		Detail: in.Detail, References: in.References, Metadata: in.Metadata,
	}
	data, mErr := json.Marshal(rec)
	if mErr != nil {
		return nil, apperr.Wrap(apperr.StorageFatal, "marshal log entry", mErr)
	}
	if err := appendJSONLine(e.logPath(active.ID), data); err != nil {
		return nil, err
	}

	detailJSON, refsJSON, metaJSON := "{}", "[]", "{}"
	if b, jErr := json.Marshal(in.Detail); jErr == nil && in.Detail != nil {
		detailJSON = string(b)
	}
	if b, jErr := json.Marshal(in.References); jErr == nil && in.References != nil {
		refsJSON = string(b)
	}
	if b, jErr := json.Marshal(in.Metadata); jErr == nil && in.Metadata != nil {
		metaJSON = string(b)
	}

	err = e.store.Transaction(ctx, func(tx *store.Tx) error {
		return tx.AppendSessionLog(ctx, store.SessionLogRow{
			EntryID: entryID, SessionID: active.ID, Timestamp: now,
			Message: in.Message, Pin: in.Pin, Cost: in.Cost,
			Detail: detailJSON, References: refsJSON, Metadata: metaJSON,
		})
	})
	if err != nil {
		return nil, err
	}

	return &LogEntryResult{EntryID: entryID, SessionID: active.ID, Timestamp: now}, nil
}

// CloseStats reports what each enrichment step of close() did.
type CloseStats struct {
	ReweaveCount        int  `json:"reweave_count"`
	OrphansSwept        int  `json:"orphans_swept"`
	IssuesFound         int  `json:"issues_found"`
	MetricsMaterialized bool `json:"metrics_materialized"`
	Drained             bool `json:"drained"`
}

// CloseResult is the data payload of a successful close().
type CloseResult struct {
	SessionID string     `json:"session_id"`
	Stats     CloseStats `json:"stats"`
}

// Close runs the fixed six-step enrichment pipeline of spec.md §4.8 and
// marks the active session closed. Steps 2-4 are individually gated by
// config.Session; steps 5-6 (materialize metrics, drain) always run,
// matching the fixed config.Session surface (no gate exists for them).
func (e *Engine) Close(ctx context.Context, summary string) (*CloseResult, []string, error) {
	var warnings []string

	active, err := e.findActiveSession(ctx)
	if err != nil {
		return nil, nil, err
	}
	if active == nil {
		return nil, nil, apperr.New(apperr.NoActiveSession, "no session is open")
	}

	now := time.Now().UTC()
	closeData, mErr := json.Marshal(record{Type: "close", SessionID: active.ID, Timestamp: now, Summary: summary})
	if mErr != nil {
		return nil, nil, apperr.Wrap(apperr.StorageFatal, "marshal session close record", mErr)
	}
	if err := appendJSONLine(e.logPath(active.ID), closeData); err != nil {
		return nil, nil, err
	}

	row := *active
	row.Status = "closed"
	row.Modified = now
	if err := e.store.Transaction(ctx, func(tx *store.Tx) error { return tx.UpdateNode(ctx, &row) }); err != nil {
		return nil, nil, err
	}
	e.graph.Invalidate()

	var stats CloseStats

	touched, tErr := e.touchedNodes(ctx, active.ID)
	if tErr != nil {
		warnings = append(warnings, fmt.Sprintf("failed to load session-touched nodes: %v", tErr))
	}

	if e.cfg.Session.CloseReweave && e.reweave != nil {
		for _, id := range touched {
			res, rErr := e.reweave.Reweave(ctx, id, reweave.Options{Mode: reweave.ModeDefault})
			if rErr != nil {
				warnings = append(warnings, fmt.Sprintf("cross-session reweave failed for %s: %v", id, rErr))
				continue
			}
			stats.ReweaveCount += res.Count
		}
	}

	if e.cfg.Session.CloseOrphanSweep && e.reweave != nil {
		threshold := e.cfg.Session.OrphanReweaveThreshold
		for _, id := range touched {
			edges, eErr := e.store.OutgoingEdges(ctx, id)
			if eErr != nil {
				warnings = append(warnings, fmt.Sprintf("orphan sweep: failed to load edges for %s: %v", id, eErr))
				continue
			}
			if len(edges) > 0 {
				continue
			}
			res, rErr := e.reweave.Reweave(ctx, id, reweave.Options{Mode: reweave.ModeDefault, Threshold: &threshold})
			if rErr != nil {
				warnings = append(warnings, fmt.Sprintf("orphan sweep failed for %s: %v", id, rErr))
				continue
			}
			stats.OrphansSwept += res.Count
		}
	}

	if e.cfg.Session.CloseIntegrityCheck && e.integrity != nil {
		errCount, warnCount, iErr := e.integrity.Scan(ctx)
		if iErr != nil {
			warnings = append(warnings, fmt.Sprintf("integrity check failed: %v", iErr))
		} else {
			stats.IssuesFound = errCount + warnCount
		}
	}

	if e.graph != nil {
		if _, mErr := e.graph.MaterializeMetrics(ctx); mErr != nil {
			warnings = append(warnings, fmt.Sprintf("materialize metrics failed: %v", mErr))
		} else {
			stats.MetricsMaterialized = true
		}
	}

	if e.bus != nil {
		if dErr := e.bus.Drain(ctx); dErr != nil {
			warnings = append(warnings, fmt.Sprintf("drain event wal failed: %v", dErr))
		} else {
			stats.Drained = true
		}
	}

	payload := map[string]any{
		"session_id": active.ID,
		"stats": map[string]any{
			"reweave_count": stats.ReweaveCount,
			"orphans_swept": stats.OrphansSwept,
			"issues_found":  stats.IssuesFound,
		},
	}
	if dErr := e.bus.Dispatch(ctx, eventbus.HookPostSessionClose, payload, false); dErr != nil {
		warnings = append(warnings, fmt.Sprintf("post_session_close dispatch failed: %v", dErr))
	}

	return &CloseResult{SessionID: active.ID, Stats: stats}, warnings, nil
}

// ReopenResult is the data payload of a successful reopen().
type ReopenResult struct {
	SessionID string    `json:"session_id"`
	Reopened  time.Time `json:"reopened"`
}

// Reopen reopens a previously closed session. The target must be closed
// and no other session may currently be open (spec.md §4.8).
func (e *Engine) Reopen(ctx context.Context, id string) (*ReopenResult, error) {
	active, err := e.findActiveSession(ctx)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, apperr.Newf(apperr.ActiveSessionExists, "session %s is already open", active.ID)
	}

	target, err := e.store.FetchNode(ctx, id)
	if err != nil {
		return nil, apperr.Wrap(apperr.NotFound, "fetch session to reopen", err)
	}
	if target.Type != "log" {
		return nil, apperr.Newf(apperr.UnknownType, "%s is not a session log", id)
	}
	if target.Status != "closed" {
		return nil, apperr.Newf(apperr.InvalidTransition, "session %s is not closed", id)
	}

	now := time.Now().UTC()
	data, mErr := json.Marshal(record{Type: "reopen", SessionID: id, Timestamp: now})
	if mErr != nil {
		return nil, apperr.Wrap(apperr.StorageFatal, "marshal reopen record", mErr)
	}
	if err := appendJSONLine(e.logPath(id), data); err != nil {
		return nil, err
	}

	row := *target
	row.Status = "open"
	row.Modified = now
	if err := e.store.Transaction(ctx, func(tx *store.Tx) error { return tx.UpdateNode(ctx, &row) }); err != nil {
		return nil, err
	}
	e.graph.Invalidate()
	return &ReopenResult{SessionID: id, Reopened: now}, nil
}

// CostResult is the data payload of cost().
type CostResult struct {
	SessionID  string   `json:"session_id"`
	TotalCost  float64  `json:"total_cost"`
	Budget     *float64 `json:"budget,omitempty"`
	Remaining  *float64 `json:"remaining,omitempty"`
	OverBudget bool     `json:"over_budget,omitempty"`
}

// Cost sums the cost column across a session's log rows. In report mode
// (reportBudget != nil) it adds budget/remaining/over_budget, but never
// fails just because the session is over budget — it is a report, not a
// gate (spec.md §4.8).
func (e *Engine) Cost(ctx context.Context, sessionID string, reportBudget *float64) (*CostResult, error) {
	if sessionID == "" {
		active, err := e.findActiveSession(ctx)
		if err != nil {
			return nil, err
		}
		if active == nil {
			return nil, apperr.New(apperr.NoActiveSession, "no session is open")
		}
		sessionID = active.ID
	}
	total, err := e.store.SessionCost(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	res := &CostResult{SessionID: sessionID, TotalCost: total}
	if reportBudget != nil {
		remaining := *reportBudget - total
		res.Budget = reportBudget
		res.Remaining = &remaining
		res.OverBudget = total > *reportBudget
	}
	return res, nil
}

func (e *Engine) findActiveSession(ctx context.Context) (*store.NodeRow, error) {
	rows, err := e.store.ListNodes(ctx, store.ListFilter{Type: "log", Status: "open"}, "", 2)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// touchedNodes returns every node id stamped with sessionID, the set
// cross-session reweave and the orphan sweep operate over. This is a raw
// scan over store.DB() rather than ListFilter (which has no Session facet),
// the raw handle the store package exposes for scans outside the Tx
// abstraction.
func (e *Engine) touchedNodes(ctx context.Context, sessionID string) ([]string, error) {
	rows, err := e.store.DB().QueryContext(ctx, `SELECT id FROM nodes WHERE session = ?`, sessionID)
	if err != nil {
		return nil, apperr.Wrap(apperr.StorageRecoverable, "query session-touched nodes", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if sErr := rows.Scan(&id); sErr != nil {
			return nil, apperr.Wrap(apperr.StorageRecoverable, "scan session-touched node id", sErr)
		}
		out = append(out, id)
	}
	if iErr := rows.Err(); iErr != nil {
		return nil, apperr.Wrap(apperr.StorageRecoverable, "iterate session-touched nodes", iErr)
	}
	return out, nil
}

func (e *Engine) logPath(id string) string {
	p, _ := ids.Path(ids.KindLog, id, "")
	return filepath.Join(e.root, p)
}

// appendJSONLine appends one JSON record plus a trailing newline to path,
// rewriting the whole file atomically rather than using a raw os.OpenFile
// append, so readers never observe a torn line (spec.md §5).
func appendJSONLine(path string, line []byte) error {
	existing, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return apperr.Wrap(apperr.StorageFatal, "read session log file", err)
	}
	buf := make([]byte, 0, len(existing)+len(line)+1)
	buf = append(buf, existing...)
	buf = append(buf, line...)
	buf = append(buf, '\n')
	return writeFileAtomic(path, buf)
}

// writeFileAtomic is session's own copy of the temp-file-then-rename
// pattern (also duplicated in vaultcore, reweave, and integrity): each package
// keeps it local rather than import an unexported helper from another
// package, avoiding any cross-package coupling for a small primitive.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return apperr.Wrap(apperr.StorageFatal, "create parent directory", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return apperr.Wrap(apperr.StorageFatal, "create temp file", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()
	if _, err := tmp.Write(data); err != nil {
		return apperr.Wrap(apperr.StorageFatal, "write temp file", err)
	}
	if err := tmp.Close(); err != nil {
		return apperr.Wrap(apperr.StorageFatal, "close temp file", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return apperr.Wrap(apperr.StorageFatal, "replace file", err)
	}
	return nil
}

// identityText is Layer 0 of context(): the vault's self/identity.md and
// self/methodology.md when present on disk, else a short fallback built
// from config so Layer 0 is always available even before those
// self-documents have been generated.
func (e *Engine) identityText() string {
	var parts []string
	for _, name := range []string{"identity.md", "methodology.md"} {
		data, err := os.ReadFile(filepath.Join(e.root, "self", name))
		if err == nil {
			parts = append(parts, string(data))
		}
	}
	if len(parts) == 0 {
		return fmt.Sprintf("%s (%s) — agent tone: %s", e.cfg.Vault.Name, e.cfg.Vault.Client, e.cfg.Agent.Tone)
	}
	return strings.Join(parts, "\n\n")
}
