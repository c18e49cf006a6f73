package integrity

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/knotvault/knot/internal/apperr"
	"github.com/knotvault/knot/internal/frontmatter"
	"github.com/knotvault/knot/internal/store"
)

// RebuildResult reports what rebuild() reconstructed.
type RebuildResult struct {
	BackupPath          string `json:"backup_path"`
	NodesRebuilt        int    `json:"nodes_rebuilt"`
	EdgesRebuilt        int    `json:"edges_rebuilt"`
	MetricsMaterialized bool   `json:"metrics_materialized"`
}

type fileNode struct {
	id      string
	typ     string
	subtype string
	title   string
	status  string
	maturity string
	topic    string
	tags     []string
	links    map[string][]string
	body     string
	created  string
	session  string
}

// Rebuild destructively reconstructs the index from the vault's files
// (spec.md §4.11 rebuild): clears nodes/edges/tags/FTS, walks the
// filesystem to reinsert every node (pass 1), then reindexes every edge
// (pass 2), recomputes sequential counters from the maximum id seen, and
// materializes metrics. A backup is taken first so rollback() can recover
// the prior index if the rebuild is unwanted.
func (e *Engine) Rebuild(ctx context.Context) (*RebuildResult, error) {
	backupPath, err := e.backupIndex()
	if err != nil {
		return nil, err
	}
	res := &RebuildResult{BackupPath: backupPath}

	for _, stmt := range []string{
		`DELETE FROM edges`, `DELETE FROM node_tags`, `DELETE FROM tags`,
		`DELETE FROM aliases`, `DELETE FROM fts`, `DELETE FROM nodes`,
	} {
		if _, derr := e.store.DB().ExecContext(ctx, stmt); derr != nil {
			return nil, apperr.Wrap(apperr.StorageFatal, "clear derived table", derr)
		}
	}

	files, err := e.collectFileNodes()
	if err != nil {
		return nil, err
	}

	now := nowUTC()
	var maxTask, maxLog int64
	err = e.store.Transaction(ctx, func(tx *store.Tx) error {
		for _, fn := range files {
			row := &store.NodeRow{
				ID: fn.id, Type: fn.typ, Subtype: fn.subtype, Title: fn.title,
				Status: fn.status, Maturity: fn.maturity, Topic: fn.topic,
				Created: now, Modified: now, Session: fn.session, Tags: fn.tags,
			}
			if cErr := parseCreatedInto(row, fn.created); cErr == nil {
				row.Modified = row.Created
			}
			if iErr := tx.InsertNode(ctx, row); iErr != nil {
				return iErr
			}
			if tErr := tx.IndexTags(ctx, fn.id, fn.tags, now); tErr != nil {
				return tErr
			}
			if fErr := tx.UpsertFTS(ctx, fn.id, fn.title, fn.body); fErr != nil {
				return fErr
			}
			res.NodesRebuilt++
			if n, ok := counterSuffix(fn.id, "TASK-"); ok && n > maxTask {
				maxTask = n
			}
			if n, ok := counterSuffix(fn.id, "LOG-"); ok && n > maxLog {
				maxLog = n
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	resolve := e.store.ResolveTitle
	err = e.store.Transaction(ctx, func(tx *store.Tx) error {
		for _, fn := range files {
			if fn.typ == "log" {
				continue
			}
			if lErr := tx.IndexLinks(ctx, fn.id, fn.links, fn.body, now, resolve); lErr != nil {
				return lErr
			}
			res.EdgesRebuilt++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = e.store.Transaction(ctx, func(tx *store.Tx) error {
		if maxTask > 0 {
			if fErr := tx.SetCounterFloor(ctx, "task", maxTask); fErr != nil {
				return fErr
			}
		}
		if maxLog > 0 {
			if fErr := tx.SetCounterFloor(ctx, "log", maxLog); fErr != nil {
				return fErr
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if e.graph != nil {
		e.graph.Invalidate()
		if _, mErr := e.graph.MaterializeMetrics(ctx); mErr == nil {
			res.MetricsMaterialized = true
		}
	}
	return res, nil
}

// collectFileNodes walks notes/ and ops/, parsing Markdown frontmatter
// notes/references/tasks in one way and JSONL log files in another, per
// spec.md §4.11 "Log files are parsed differently from notes".
func (e *Engine) collectFileNodes() ([]fileNode, error) {
	var out []fileNode

	notesDir := filepath.Join(e.root, "notes")
	walkErr := filepath.Walk(notesDir, func(path string, info os.FileInfo, werr error) error {
		if werr != nil {
			if os.IsNotExist(werr) {
				return nil
			}
			return werr
		}
		if info.IsDir() || filepath.Ext(path) != ".md" {
			return nil
		}
		fn, perr := parseMarkdownFileNode(path, notesDir)
		if perr != nil {
			return nil
		}
		out = append(out, fn)
		return nil
	})
	if walkErr != nil {
		return nil, apperr.Wrap(apperr.StorageRecoverable, "walk notes", walkErr)
	}

	tasksDir := filepath.Join(e.root, "ops", "tasks")
	walkErr = filepath.Walk(tasksDir, func(path string, info os.FileInfo, werr error) error {
		if werr != nil {
			if os.IsNotExist(werr) {
				return nil
			}
			return werr
		}
		if info.IsDir() || filepath.Ext(path) != ".md" {
			return nil
		}
		fn, perr := parseMarkdownFileNode(path, "")
		if perr != nil {
			return nil
		}
		out = append(out, fn)
		return nil
	})
	if walkErr != nil {
		return nil, apperr.Wrap(apperr.StorageRecoverable, "walk tasks", walkErr)
	}

	logsDir := filepath.Join(e.root, "ops", "logs")
	walkErr = filepath.Walk(logsDir, func(path string, info os.FileInfo, werr error) error {
		if werr != nil {
			if os.IsNotExist(werr) {
				return nil
			}
			return werr
		}
		if info.IsDir() || filepath.Ext(path) != ".jsonl" {
			return nil
		}
		fn, perr := parseLogFileNode(path)
		if perr != nil {
			return nil
		}
		out = append(out, fn)
		return nil
	})
	if walkErr != nil {
		return nil, apperr.Wrap(apperr.StorageRecoverable, "walk logs", walkErr)
	}

	return out, nil
}

// parseMarkdownFileNode parses a note, reference, or task file. notesDir
// is the "notes" root to derive a topic subdirectory relative to; pass ""
// for task files, which never carry a topic.
func parseMarkdownFileNode(path, notesDir string) (fileNode, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fileNode{}, err
	}
	fm, body, err := frontmatter.Parse(raw)
	if err != nil {
		return fileNode{}, err
	}
	topic := ""
	if notesDir != "" {
		if rel, rerr := filepath.Rel(notesDir, filepath.Dir(path)); rerr == nil && rel != "." {
			topic = rel
		}
	}
	return fileNode{
		id: fm.ID, typ: fm.Type, subtype: fm.Subtype, title: fm.Title,
		status: fm.Status, maturity: fm.Maturity, topic: topic,
		tags: fm.Tags, links: fm.Links, body: body,
		created: fm.Created.Format("2006-01-02T15:04:05.999999999Z07:00"),
		session: fm.Session,
	}, nil
}

// logRecord mirrors the subset of session.record fields rebuild needs to
// reconstruct a log node from its JSONL file without importing the
// session package; keeping integrity free of a dependency on session
// mirrors the narrow-interface style used elsewhere.
type logRecord struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Timestamp string `json:"timestamp"`
	Topic     string `json:"topic,omitempty"`
}

func parseLogFileNode(path string) (fileNode, error) {
	f, err := os.Open(path)
	if err != nil {
		return fileNode{}, err
	}
	defer f.Close()

	fn := fileNode{status: "open", typ: "log"}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	first := true
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var r logRecord
		if jerr := json.Unmarshal(line, &r); jerr != nil {
			continue
		}
		if first {
			fn.id = r.SessionID
			fn.session = r.SessionID
			fn.title = r.Topic
			if fn.title == "" {
				fn.title = r.SessionID
			}
			fn.created = r.Timestamp
			first = false
		}
		if r.Type == "close" {
			fn.status = "closed"
		}
		if r.Type == "reopen" {
			fn.status = "open"
		}
	}
	if fn.id == "" {
		fn.id = idFromLogFilename(path)
		fn.title = fn.id
	}
	return fn, nil
}

func parseCreatedInto(row *store.NodeRow, raw string) error {
	t, err := parseTimeFlexible(raw)
	if err != nil {
		return err
	}
	row.Created = t
	return nil
}

func counterSuffix(id, prefix string) (int64, bool) {
	if !strings.HasPrefix(id, prefix) {
		return 0, false
	}
	n, err := strconv.ParseInt(strings.TrimPrefix(id, prefix), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func parseTimeFlexible(raw string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, apperr.Newf(apperr.InvalidFormat, "unparseable timestamp: %s", raw)
}
