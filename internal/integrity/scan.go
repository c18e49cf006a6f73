package integrity

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/knotvault/knot/internal/apperr"
	"github.com/knotvault/knot/internal/frontmatter"
	"github.com/knotvault/knot/internal/ids"
)

var idFormatRe = regexp.MustCompile(`^([a-z]+_[0-9a-f]{16}|[A-Z]+-[0-9]{4,})$`)

// Check runs the four read-only scan passes of spec.md §4.11 and returns
// the combined issue list.
func (e *Engine) Check(ctx context.Context) (*ScanResult, error) {
	var issues []Issue

	consistency, err := e.scanConsistency(ctx)
	if err != nil {
		return nil, err
	}
	issues = append(issues, consistency...)

	schema, err := e.scanSchema(ctx)
	if err != nil {
		return nil, err
	}
	issues = append(issues, schema...)

	graphHealth, err := e.scanGraphHealth(ctx)
	if err != nil {
		return nil, err
	}
	issues = append(issues, graphHealth...)

	structural, err := e.scanStructural(ctx)
	if err != nil {
		return nil, err
	}
	issues = append(issues, structural...)

	res := newScanResult(issues)
	return &res, nil
}

// scanConsistency finds node rows whose files are missing, files whose
// nodes are missing, and FTS rows missing their node.
func (e *Engine) scanConsistency(ctx context.Context) ([]Issue, error) {
	var issues []Issue

	rows, err := e.store.ListNodes(ctx, storeListFilterAll(), "n.id", 0)
	if err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(rows))
	for _, n := range rows {
		known[n.ID] = true
		path, perr := ids.Path(kindOf(n.Type), n.ID, n.Topic)
		if perr != nil {
			issues = append(issues, Issue{
				Severity: SeverityError, Category: CategoryConsistency,
				Message: "node has no derivable file path: " + n.ID,
				Detail:  map[string]any{"id": n.ID, "type": n.Type},
			})
			continue
		}
		if _, statErr := os.Stat(filepath.Join(e.root, path)); os.IsNotExist(statErr) {
			issues = append(issues, Issue{
				Severity: SeverityError, Category: CategoryConsistency,
				Message:      "node row has no backing file: " + n.ID,
				Detail:       map[string]any{"id": n.ID, "path": path},
				SuggestedFix: "fix(safe): remove orphan row",
			})
		}
	}

	onDisk, err := e.walkContentFiles()
	if err != nil {
		return nil, err
	}
	for id, path := range onDisk {
		if !known[id] {
			issues = append(issues, Issue{
				Severity: SeverityWarning, Category: CategoryConsistency,
				Message:      "file has no matching node row: " + path,
				Detail:       map[string]any{"id": id, "path": path},
				SuggestedFix: "rebuild()",
			})
		}
	}

	ftsIDs, err := e.queryStrings(ctx, `SELECT id FROM fts`)
	if err != nil {
		return nil, err
	}
	for _, id := range ftsIDs {
		if !known[id] {
			issues = append(issues, Issue{
				Severity: SeverityWarning, Category: CategoryConsistency,
				Message:      "FTS row missing its node: " + id,
				Detail:       map[string]any{"id": id},
				SuggestedFix: "fix(safe): reattach missing FTS entries",
			})
		}
	}
	return issues, nil
}

// scanSchema finds malformed IDs and orphaned edges.
func (e *Engine) scanSchema(ctx context.Context) ([]Issue, error) {
	var issues []Issue

	allIDs, err := e.store.AllNodeIDs(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.StorageRecoverable, "load node ids", err)
	}
	for _, id := range allIDs {
		if !idFormatRe.MatchString(id) {
			issues = append(issues, Issue{
				Severity: SeverityError, Category: CategorySchema,
				Message: "malformed id: " + id,
				Detail:  map[string]any{"id": id},
			})
		}
	}

	known := make(map[string]bool, len(allIDs))
	for _, id := range allIDs {
		known[id] = true
	}
	edges, err := e.store.AllEdges(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.StorageRecoverable, "load edges", err)
	}
	for _, ed := range edges {
		if !known[ed.SourceID] || !known[ed.TargetID] {
			issues = append(issues, Issue{
				Severity: SeverityError, Category: CategorySchema,
				Message:      "edge references a non-existent node",
				Detail:       map[string]any{"source": ed.SourceID, "target": ed.TargetID, "edge_type": ed.EdgeType},
				SuggestedFix: "fix(aggressive): reindex all edges",
			})
		}
	}
	return issues, nil
}

// scanGraphHealth flags fragmentation above config threshold and broken
// or cyclic supersession chains.
func (e *Engine) scanGraphHealth(ctx context.Context) ([]Issue, error) {
	var issues []Issue

	rows, err := e.store.ListNodes(ctx, storeListFilterAll(), "n.id", 0)
	if err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(rows))
	for _, n := range rows {
		known[n.ID] = true
	}

	for _, n := range rows {
		if n.SupersededBy == "" {
			continue
		}
		if !known[n.SupersededBy] {
			issues = append(issues, Issue{
				Severity: SeverityError, Category: CategoryGraph,
				Message: "broken supersession chain: " + n.ID + " -> " + n.SupersededBy,
				Detail:  map[string]any{"id": n.ID, "superseded_by": n.SupersededBy},
			})
			continue
		}
		seen := map[string]bool{n.ID: true}
		cur := n.SupersededBy
		for i := 0; i < len(rows)+1; i++ {
			if seen[cur] {
				issues = append(issues, Issue{
					Severity: SeverityError, Category: CategoryGraph,
					Message: "cyclic supersession chain starting at " + n.ID,
					Detail:  map[string]any{"id": n.ID},
				})
				break
			}
			seen[cur] = true
			next := findSupersededBy(rows, cur)
			if next == "" {
				break
			}
			cur = next
		}
	}

	edges, err := e.store.AllEdges(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.StorageRecoverable, "load edges", err)
	}
	adj := make(map[string][]string, len(rows))
	for _, ed := range edges {
		adj[ed.SourceID] = append(adj[ed.SourceID], ed.TargetID)
		adj[ed.TargetID] = append(adj[ed.TargetID], ed.SourceID)
	}
	components := connectedComponents(rows, adj)
	minSize := e.cfg.Check.DisconnectedComponentMinSize
	if minSize <= 0 {
		minSize = 3
	}
	if len(components) > 1 {
		largest := 0
		for _, c := range components {
			if len(c) > largest {
				largest = len(c)
			}
		}
		for _, c := range components {
			if len(c) == largest || len(c) < minSize {
				continue
			}
			issues = append(issues, Issue{
				Severity: SeverityWarning, Category: CategoryGraph,
				Message: "disconnected component of size above threshold",
				Detail:  map[string]any{"members": c, "size": len(c)},
			})
		}
	}
	return issues, nil
}

// scanStructural finds unresolved wikilink targets and duplicate tags by
// re-reading each node's file directly (the edges table silently drops
// unresolved wikilinks at index time, so it cannot answer this question).
func (e *Engine) scanStructural(ctx context.Context) ([]Issue, error) {
	var issues []Issue

	rows, err := e.store.ListNodes(ctx, storeListFilterAll(), "n.id", 0)
	if err != nil {
		return nil, err
	}

	titles, err := e.titleIndex(ctx)
	if err != nil {
		return nil, err
	}

	for _, n := range rows {
		path, perr := ids.Path(kindOf(n.Type), n.ID, n.Topic)
		if perr != nil {
			continue
		}
		raw, rerr := os.ReadFile(filepath.Join(e.root, path))
		if rerr != nil {
			continue
		}
		seen := make(map[string]int)
		for _, tag := range n.Tags {
			seen[strings.ToLower(tag)]++
		}
		for tag, count := range seen {
			if count > 1 {
				issues = append(issues, Issue{
					Severity: SeverityWarning, Category: CategoryStructural,
					Message: "duplicate tag on " + n.ID + ": " + tag,
					Detail:  map[string]any{"id": n.ID, "tag": tag},
				})
			}
		}

		if n.Type == "log" {
			continue // logs are JSONL records, not wikilink bodies
		}
		_, body, perr2 := frontmatter.Parse(raw)
		if perr2 != nil {
			issues = append(issues, Issue{
				Severity: SeverityError, Category: CategoryStructural,
				Message: "frontmatter/body parse failure: " + n.ID,
				Detail:  map[string]any{"id": n.ID, "error": perr2.Error()},
			})
			continue
		}
		for _, title := range frontmatter.ExtractWikilinks(body) {
			if _, ok := titles[strings.ToLower(title)]; !ok {
				issues = append(issues, Issue{
					Severity: SeverityWarning, Category: CategoryStructural,
					Message: "unresolved wikilink in " + n.ID + ": [[" + title + "]]",
					Detail:  map[string]any{"id": n.ID, "target_title": title},
				})
			}
		}
	}
	return issues, nil
}
