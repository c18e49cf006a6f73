// Package reweave implements the L9 reweave engine of spec.md §4.6: a
// four-signal candidate scorer (lexical, tag overlap, graph proximity,
// topic match) that materializes accepted candidates as edges, frontmatter
// links, and (for non-garden notes) body wikilinks.
//
// The threshold-then-sort shape is grounded in the teacher's
// internal/spec.FindDuplicates (Jaccard similarity against a configurable
// threshold, descending sort, stable tie-break by id) generalized from a
// single Jaccard signal to a weighted blend of four.
package reweave

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/knotvault/knot/internal/apperr"
	"github.com/knotvault/knot/internal/config"
	"github.com/knotvault/knot/internal/content"
	"github.com/knotvault/knot/internal/eventbus"
	"github.com/knotvault/knot/internal/frontmatter"
	"github.com/knotvault/knot/internal/graph"
	"github.com/knotvault/knot/internal/ids"
	"github.com/knotvault/knot/internal/store"
)

// Mode selects which of the four reweave behaviors spec.md §4.6 describes
// to run for a given target.
type Mode string

const (
	ModeDefault Mode = "default"
	ModeDryRun  Mode = "dry_run"
	ModePrune   Mode = "prune"
	ModeUndo    Mode = "undo"
)

// Signals is the per-candidate breakdown behind a composite score, exposed
// in dry-run responses.
type Signals struct {
	Lexical        float64 `json:"lexical"`
	TagOverlap     float64 `json:"tag_overlap"`
	GraphProximity float64 `json:"graph_proximity"`
	Topic          float64 `json:"topic"`
}

// Candidate is one scored related-node suggestion.
type Candidate struct {
	ID      string  `json:"id"`
	Title   string  `json:"title"`
	Score   float64 `json:"score"`
	Signals Signals `json:"signals,omitempty"`
}

// ConnectedEdge is one applied or pruned edge, reported back to the caller.
type ConnectedEdge struct {
	ID    string  `json:"id"`
	Title string  `json:"title"`
	Score float64 `json:"score"`
}

// Options configures a single Reweave call.
type Options struct {
	Mode      Mode
	Threshold *float64 // per-call override of config.Reweave.MinScoreThreshold
	BatchTS   *time.Time
	LogID     string
}

// Result is the shaped response of spec.md §4.6, fields populated
// according to Mode.
type Result struct {
	TargetID    string          `json:"target_id,omitempty"`
	Connected   []ConnectedEdge `json:"connected,omitempty"`
	Suggestions []Candidate     `json:"suggestions,omitempty"`
	Pruned      []ConnectedEdge `json:"pruned,omitempty"`
	Undone      []string        `json:"undone,omitempty"`
	DryRun      bool            `json:"dry_run,omitempty"`
	Count       int             `json:"count"`
}

// Engine scores and applies reweave suggestions for notes and references.
type Engine struct {
	root  string
	store *store.Store
	graph *graph.Engine
	bus   *eventbus.Bus
	cfg   config.Config
	log   *zap.Logger
}

// New constructs a reweave engine rooted at root, scoring with cfg's
// weight/threshold defaults.
func New(root string, s *store.Store, g *graph.Engine, bus *eventbus.Bus, cfg config.Config, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{root: root, store: s, graph: g, bus: bus, cfg: cfg, log: log}
}

// OnCreate implements vaultcore.Reweaver: it runs a default-mode reweave
// for a freshly created note/reference, returning any non-fatal warnings.
func (e *Engine) OnCreate(ctx context.Context, id string) ([]string, error) {
	if !e.cfg.Reweave.Enabled {
		return nil, nil
	}
	res, err := e.Reweave(ctx, id, Options{Mode: ModeDefault})
	if err != nil {
		return nil, err
	}
	if res.Count == 0 {
		return nil, nil
	}
	return []string{fmt.Sprintf("reweave connected %d node(s) to %s", res.Count, id)}, nil
}

// Reweave is the entry point for all four modes.
func (e *Engine) Reweave(ctx context.Context, targetID string, opts Options) (*Result, error) {
	switch opts.Mode {
	case ModeUndo:
		return e.undo(ctx, opts)
	case ModePrune:
		return e.prune(ctx, targetID, opts)
	case ModeDryRun:
		return e.scoreResult(ctx, targetID, opts, true)
	default:
		return e.apply(ctx, targetID, opts)
	}
}

func (e *Engine) threshold(opts Options) float64 {
	if opts.Threshold != nil {
		return *opts.Threshold
	}
	return e.cfg.Reweave.MinScoreThreshold
}

// scoreResult computes and thresholds candidates without writing anything;
// used directly by dry-run and as the scoring step inside apply.
func (e *Engine) scoreResult(ctx context.Context, targetID string, opts Options, dryRun bool) (*Result, error) {
	target, err := e.store.FetchNode(ctx, targetID)
	if err != nil {
		return nil, apperr.Wrap(apperr.NotFound, "fetch reweave target", err)
	}
	candidates, err := e.score(ctx, targetID, target)
	if err != nil {
		return nil, err
	}

	thresh := e.threshold(opts)
	capacity := e.cfg.Reweave.MaxLinksPerNote
	if capacity > 0 {
		outgoing, oErr := e.store.OutgoingEdgeCount(ctx, targetID)
		if oErr != nil {
			return nil, oErr
		}
		capacity -= outgoing
	}

	var kept []Candidate
	for _, c := range candidates {
		if c.Score < thresh {
			continue
		}
		if capacity <= 0 {
			break
		}
		kept = append(kept, c)
		if len(kept) >= capacity {
			break
		}
	}

	return &Result{TargetID: targetID, Suggestions: kept, DryRun: dryRun, Count: len(kept)}, nil
}

// score computes raw candidates for targetID against every other
// non-archived node, excluding the target itself and its current outgoing
// links. Each signal is normalized to [0,1] before blending.
func (e *Engine) score(ctx context.Context, targetID string, target *store.NodeRow) ([]Candidate, error) {
	targetBody, err := e.readBody(target)
	if err != nil {
		return nil, err
	}

	existingOut, err := e.store.OutgoingEdges(ctx, targetID)
	if err != nil {
		return nil, err
	}
	linked := make(map[string]bool, len(existingOut))
	for _, ed := range existingOut {
		linked[ed.TargetID] = true
	}

	rows, err := e.store.ListNodes(ctx, store.ListFilter{IncludeArchived: false}, "", 0)
	if err != nil {
		return nil, err
	}

	lexicalRanks, err := e.store.BM25Against(ctx, target.Title, targetBody, targetID)
	if err != nil {
		return nil, err
	}
	tagSets, err := e.store.AllTagSets(ctx)
	if err != nil {
		return nil, err
	}
	targetTags := tagSets[targetID]

	r := e.cfg.Reweave
	var out []Candidate
	for _, row := range rows {
		if row.ID == targetID || linked[row.ID] {
			continue
		}
		if row.Type != string(content.TypeNote) && row.Type != string(content.TypeReference) {
			continue
		}

		lexical := normalizeBM25(lexicalRanks[row.ID])
		tagScore := jaccard(targetTags, tagSets[row.ID])

		length, pErr := e.graph.ShortestPathLength(ctx, targetID, row.ID)
		if pErr != nil {
			return nil, pErr
		}
		graphScore := 0.0
		if length > 0 {
			graphScore = 1.0 / float64(length)
		}

		topicScore := 0.0
		if target.Topic != "" && target.Topic == row.Topic {
			topicScore = 1.0
		}

		composite := r.LexicalWeight*lexical + r.TagWeight*tagScore + r.GraphWeight*graphScore + r.TopicWeight*topicScore
		out = append(out, Candidate{
			ID: row.ID, Title: row.Title, Score: composite,
			Signals: Signals{Lexical: lexical, TagOverlap: tagScore, GraphProximity: graphScore, Topic: topicScore},
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// apply scores, thresholds, and materializes accepted candidates: an edge,
// a frontmatter links.relates entry, and — for non-garden notes — a body
// wikilink in a canonical "## Related" section. Each accepted candidate
// writes a reweave-log entry with action=add.
func (e *Engine) apply(ctx context.Context, targetID string, opts Options) (*Result, error) {
	scored, err := e.scoreResult(ctx, targetID, opts, false)
	if err != nil {
		return nil, err
	}
	if len(scored.Suggestions) == 0 {
		return &Result{TargetID: targetID, Count: 0}, nil
	}

	target, err := e.store.FetchNode(ctx, targetID)
	if err != nil {
		return nil, apperr.Wrap(apperr.NotFound, "fetch reweave target", err)
	}
	kind := kindFor(target.Type)
	relPath, err := ids.Path(kind, targetID, target.Topic)
	if err != nil {
		return nil, apperr.Wrap(apperr.ValidationFailed, "compute reweave target path", err)
	}
	fullPath := filepath.Join(e.root, relPath)

	raw, err := os.ReadFile(fullPath)
	if err != nil {
		return nil, apperr.Wrap(apperr.StorageFatal, "read reweave target file", err)
	}
	fm, body, err := frontmatter.Parse(raw)
	if err != nil {
		return nil, apperr.Wrap(apperr.StorageFatal, "parse reweave target file", err)
	}

	now := time.Now().UTC()
	batch := now
	if opts.BatchTS != nil {
		batch = *opts.BatchTS
	}

	connected := make([]ConnectedEdge, 0, len(scored.Suggestions))
	affected := make([]string, 0, len(scored.Suggestions))

	if fm.Links == nil {
		fm.Links = map[string][]string{}
	}
	relates := fm.Links["relates"]

	err = e.store.Transaction(ctx, func(tx *store.Tx) error {
		for _, c := range scored.Suggestions {
			if err := tx.InsertEdge(ctx, store.Edge{
				SourceID: targetID, TargetID: c.ID, EdgeType: "relates", Created: now,
			}); err != nil {
				return err
			}
			if !containsStr(relates, c.ID) {
				relates = append(relates, c.ID)
			}
			if err := tx.AppendReweaveLog(ctx, store.ReweaveLogEntry{
				ID: reweaveLogID(targetID, c.ID, batch), BatchTS: batch,
				SourceID: targetID, TargetID: c.ID, Action: "add", Score: c.Score,
			}); err != nil {
				return err
			}
			connected = append(connected, ConnectedEdge{ID: c.ID, Title: c.Title, Score: c.Score})
			affected = append(affected, c.ID)
		}
		fm.Links["relates"] = relates
		fm.Modified = &now

		if target.Maturity == "" {
			body = appendRelatedLinks(body, scored.Suggestions)
		}

		data, eErr := frontmatter.Emit(fm, body)
		if eErr != nil {
			return apperr.Wrap(apperr.StorageFatal, "emit reweave frontmatter", eErr)
		}
		if wErr := writeFileAtomic(fullPath, data); wErr != nil {
			return wErr
		}
		sum := sha256.Sum256(data)
		target.ContentHash = hex.EncodeToString(sum[:])
		target.Modified = now
		if uErr := tx.UpdateNode(ctx, target); uErr != nil {
			return apperr.Wrap(apperr.StorageFatal, "update node after reweave", uErr)
		}
		if iErr := tx.IndexLinks(ctx, targetID, fm.Links, body, now, e.store.ResolveTitle); iErr != nil {
			return iErr
		}
		if fErr := tx.UpsertFTS(ctx, targetID, fm.Title, body); fErr != nil {
			return fErr
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.graph.Invalidate()
	if e.bus != nil {
		_ = e.bus.Dispatch(ctx, eventbus.HookPostReweave, map[string]any{
			"source_id": targetID, "affected_ids": affected, "links_added": len(connected),
		}, false)
	}

	return &Result{TargetID: targetID, Connected: connected, Count: len(connected)}, nil
}

// prune re-scores a node's existing outgoing edges and removes those that
// fall below threshold, writing action=prune log entries. Body wikilink
// removal only happens for non-garden notes; frontmatter links are always
// updated.
func (e *Engine) prune(ctx context.Context, targetID string, opts Options) (*Result, error) {
	target, err := e.store.FetchNode(ctx, targetID)
	if err != nil {
		return nil, apperr.Wrap(apperr.NotFound, "fetch reweave target", err)
	}
	targetBody, err := e.readBody(target)
	if err != nil {
		return nil, err
	}
	existing, err := e.store.OutgoingEdges(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if len(existing) == 0 {
		return &Result{TargetID: targetID, Count: 0}, nil
	}

	lexicalRanks, err := e.store.BM25Against(ctx, target.Title, targetBody, targetID)
	if err != nil {
		return nil, err
	}
	tagSets, err := e.store.AllTagSets(ctx)
	if err != nil {
		return nil, err
	}
	targetTags := tagSets[targetID]
	r := e.cfg.Reweave
	thresh := e.threshold(opts)

	kind := kindFor(target.Type)
	relPath, err := ids.Path(kind, targetID, target.Topic)
	if err != nil {
		return nil, apperr.Wrap(apperr.ValidationFailed, "compute reweave target path", err)
	}
	fullPath := filepath.Join(e.root, relPath)
	raw, err := os.ReadFile(fullPath)
	if err != nil {
		return nil, apperr.Wrap(apperr.StorageFatal, "read reweave target file", err)
	}
	fm, body, err := frontmatter.Parse(raw)
	if err != nil {
		return nil, apperr.Wrap(apperr.StorageFatal, "parse reweave target file", err)
	}

	now := time.Now().UTC()
	batch := now
	if opts.BatchTS != nil {
		batch = *opts.BatchTS
	}

	var pruned []ConnectedEdge
	keep := map[string]bool{}
	for _, ed := range existing {
		if ed.EdgeType != "relates" {
			keep[ed.TargetID] = true
			continue
		}
		cand, cErr := e.store.FetchNode(ctx, ed.TargetID)
		if cErr != nil {
			keep[ed.TargetID] = true
			continue
		}
		length, pErr := e.graph.ShortestPathLength(ctx, targetID, ed.TargetID)
		if pErr != nil {
			return nil, pErr
		}
		graphScore := 0.0
		if length > 0 {
			graphScore = 1.0 / float64(length)
		}
		topicScore := 0.0
		if target.Topic != "" && target.Topic == cand.Topic {
			topicScore = 1.0
		}
		lexical := normalizeBM25(lexicalRanks[ed.TargetID])
		tagScore := jaccard(targetTags, tagSets[ed.TargetID])
		score := r.LexicalWeight*lexical + r.TagWeight*tagScore + r.GraphWeight*graphScore + r.TopicWeight*topicScore

		if score >= thresh {
			keep[ed.TargetID] = true
			continue
		}
		pruned = append(pruned, ConnectedEdge{ID: ed.TargetID, Title: cand.Title, Score: score})
	}
	if len(pruned) == 0 {
		return &Result{TargetID: targetID, Count: 0}, nil
	}

	var relates []string
	for _, id := range fm.Links["relates"] {
		if keep[id] {
			relates = append(relates, id)
		}
	}
	if fm.Links == nil {
		fm.Links = map[string][]string{}
	}
	fm.Links["relates"] = relates
	fm.Modified = &now

	if target.Maturity == "" {
		body = removeRelatedLinks(body, pruned)
	}

	err = e.store.Transaction(ctx, func(tx *store.Tx) error {
		for _, p := range pruned {
			if dErr := tx.DeleteEdge(ctx, targetID, p.ID, "relates"); dErr != nil {
				return dErr
			}
			if lErr := tx.AppendReweaveLog(ctx, store.ReweaveLogEntry{
				ID: reweaveLogID(targetID, p.ID, batch), BatchTS: batch,
				SourceID: targetID, TargetID: p.ID, Action: "prune", Score: p.Score,
			}); lErr != nil {
				return lErr
			}
		}
		data, eErr := frontmatter.Emit(fm, body)
		if eErr != nil {
			return apperr.Wrap(apperr.StorageFatal, "emit reweave frontmatter", eErr)
		}
		if wErr := writeFileAtomic(fullPath, data); wErr != nil {
			return wErr
		}
		sum := sha256.Sum256(data)
		target.ContentHash = hex.EncodeToString(sum[:])
		target.Modified = now
		if uErr := tx.UpdateNode(ctx, target); uErr != nil {
			return apperr.Wrap(apperr.StorageFatal, "update node after prune", uErr)
		}
		if iErr := tx.IndexLinks(ctx, targetID, fm.Links, body, now, e.store.ResolveTitle); iErr != nil {
			return iErr
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.graph.Invalidate()
	return &Result{TargetID: targetID, Pruned: pruned, Count: len(pruned)}, nil
}

// undo reverses a batch (or a single log entry) of reweave-log actions:
// added edges are removed, pruned edges are restored. Body wikilinks are
// never automatically touched, since body prose is human domain.
func (e *Engine) undo(ctx context.Context, opts Options) (*Result, error) {
	var entries []store.ReweaveLogEntry
	if opts.LogID != "" {
		entry, err := e.store.EntryByID(ctx, opts.LogID)
		if err != nil {
			return nil, apperr.Wrap(apperr.NotFound, "fetch reweave log entry", err)
		}
		if entry.Undone {
			return nil, apperr.New(apperr.NoHistory, "reweave log entry already undone")
		}
		entries = []store.ReweaveLogEntry{*entry}
	} else {
		batch := time.Time{}
		if opts.BatchTS != nil {
			batch = *opts.BatchTS
		} else {
			latest, ok, err := e.store.LatestBatch(ctx)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, apperr.New(apperr.NoHistory, "no reweave history to undo")
			}
			batch = latest
		}
		es, err := e.store.EntriesForBatch(ctx, batch)
		if err != nil {
			return nil, err
		}
		if len(es) == 0 {
			return nil, apperr.New(apperr.NoHistory, "no reweave history for batch")
		}
		entries = es
	}

	now := time.Now().UTC()
	touched := map[string]bool{}
	var undoneIDs []string

	err := e.store.Transaction(ctx, func(tx *store.Tx) error {
		for _, entry := range entries {
			switch entry.Action {
			case "add":
				if dErr := tx.DeleteEdge(ctx, entry.SourceID, entry.TargetID, "relates"); dErr != nil {
					return dErr
				}
			case "prune":
				if iErr := tx.InsertEdge(ctx, store.Edge{
					SourceID: entry.SourceID, TargetID: entry.TargetID, EdgeType: "relates", Created: now,
				}); iErr != nil {
					return iErr
				}
			}
			if mErr := tx.MarkUndone(ctx, entry.ID); mErr != nil {
				return mErr
			}
			touched[entry.SourceID] = true
			undoneIDs = append(undoneIDs, entry.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for sourceID := range touched {
		if rErr := e.rewriteFrontmatterLinks(ctx, sourceID); rErr != nil {
			e.log.Warn("failed to rewrite frontmatter links after reweave undo", zap.String("id", sourceID), zap.Error(rErr))
		}
	}

	e.graph.Invalidate()
	return &Result{Undone: undoneIDs, Count: len(undoneIDs)}, nil
}

// rewriteFrontmatterLinks resyncs a node's frontmatter links.relates with
// its current outgoing "relates" edges after an undo changed the edge set.
func (e *Engine) rewriteFrontmatterLinks(ctx context.Context, id string) error {
	node, err := e.store.FetchNode(ctx, id)
	if err != nil {
		return err
	}
	kind := kindFor(node.Type)
	relPath, err := ids.Path(kind, id, node.Topic)
	if err != nil {
		return err
	}
	fullPath := filepath.Join(e.root, relPath)
	raw, err := os.ReadFile(fullPath)
	if err != nil {
		return err
	}
	fm, body, err := frontmatter.Parse(raw)
	if err != nil {
		return err
	}

	outgoing, err := e.store.OutgoingEdges(ctx, id)
	if err != nil {
		return err
	}
	var relates []string
	for _, ed := range outgoing {
		if ed.EdgeType == "relates" {
			relates = append(relates, ed.TargetID)
		}
	}
	if fm.Links == nil {
		fm.Links = map[string][]string{}
	}
	fm.Links["relates"] = relates
	now := time.Now().UTC()
	fm.Modified = &now

	data, err := frontmatter.Emit(fm, body)
	if err != nil {
		return err
	}
	return writeFileAtomic(fullPath, data)
}

func kindFor(t string) ids.Kind {
	switch content.Type(t) {
	case content.TypeNote:
		return ids.KindNote
	case content.TypeReference:
		return ids.KindReference
	case content.TypeTask:
		return ids.KindTask
	case content.TypeLog:
		return ids.KindLog
	default:
		return ids.Kind(t)
	}
}

func (e *Engine) readBody(n *store.NodeRow) (string, error) {
	kind := kindFor(n.Type)
	relPath, err := ids.Path(kind, n.ID, n.Topic)
	if err != nil {
		return "", apperr.Wrap(apperr.ValidationFailed, "compute body path", err)
	}
	raw, err := os.ReadFile(filepath.Join(e.root, relPath))
	if err != nil {
		return "", apperr.Wrap(apperr.StorageFatal, "read node body", err)
	}
	_, body, err := frontmatter.Parse(raw)
	if err != nil {
		return "", apperr.Wrap(apperr.StorageFatal, "parse node body", err)
	}
	return body, nil
}

// writeFileAtomic mirrors vaultcore's temp-file-then-rename write, kept as
// its own small copy here so reweave has no import-cycle-risking
// dependency on vaultcore (vaultcore declares the Reweaver interface that
// Engine satisfies by duck typing; neither package imports the other).
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

const relatedSectionHeading = "## Related"

// appendRelatedLinks adds a canonical "## Related" section (creating it if
// absent) listing each accepted candidate as a wikilink, skipping any
// candidate already linked in that section.
func appendRelatedLinks(body string, candidates []Candidate) string {
	heading, lines := splitRelatedSection(body)
	if !strings.Contains(body, relatedSectionHeading) {
		heading = body
	}
	existing := map[string]bool{}
	for _, l := range lines {
		existing[strings.TrimSpace(l)] = true
	}
	for _, c := range candidates {
		entry := fmt.Sprintf("- [[%s]]", c.Title)
		if !existing[entry] {
			lines = append(lines, entry)
			existing[entry] = true
		}
	}
	return rejoinRelatedSection(heading, lines)
}

// removeRelatedLinks drops wikilink entries for pruned candidates from the
// canonical "## Related" section, leaving everything else untouched.
func removeRelatedLinks(body string, pruned []ConnectedEdge) string {
	heading, lines := splitRelatedSection(body)
	if heading == "" {
		return body
	}
	drop := map[string]bool{}
	for _, p := range pruned {
		drop[fmt.Sprintf("- [[%s]]", p.Title)] = true
	}
	var kept []string
	for _, l := range lines {
		if !drop[strings.TrimSpace(l)] {
			kept = append(kept, l)
		}
	}
	return rejoinRelatedSection(heading, kept)
}

// splitRelatedSection locates the "## Related" heading, returning the body
// text before the heading as prefix and the section's non-blank lines, up
// to the next "##" heading, as lines. If the heading is absent, prefix is
// "" and lines is nil; removeRelatedLinks then returns the body unmodified,
// while appendRelatedLinks uses the whole body as the prefix.
func splitRelatedSection(body string) (prefix string, lines []string) {
	idx := strings.Index(body, relatedSectionHeading)
	if idx < 0 {
		return "", nil
	}
	rest := body[idx+len(relatedSectionHeading):]
	for _, l := range strings.Split(rest, "\n") {
		trimmed := strings.TrimSpace(l)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "##") {
			break
		}
		lines = append(lines, trimmed)
	}
	return body[:idx], lines
}

func rejoinRelatedSection(prefix string, lines []string) string {
	if prefix == "" {
		prefix = strings.TrimRight("", "\n")
	}
	var b strings.Builder
	b.WriteString(strings.TrimRight(prefix, "\n"))
	b.WriteString("\n\n")
	b.WriteString(relatedSectionHeading)
	b.WriteString("\n")
	for _, l := range lines {
		b.WriteString(l)
		b.WriteString("\n")
	}
	return b.String()
}

func reweaveLogID(source, target string, batch time.Time) string {
	return fmt.Sprintf("rw_%s_%s_%d", source, target, batch.UnixNano())
}

func containsStr(ss []string, v string) bool {
	for _, s := range ss {
		if s == v {
			return true
		}
	}
	return false
}

// normalizeBM25 maps SQLite FTS5's native bm25() (more negative is a
// better match, 0 absent from the result set entirely) into [0,1].
func normalizeBM25(rank float64) float64 {
	if rank == 0 {
		return 0
	}
	r := -rank
	if r < 0 {
		r = 0
	}
	return r / (1 + r)
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for k := range a {
		if b[k] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
