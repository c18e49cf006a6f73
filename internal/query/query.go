// Package query implements the L10 query engine of spec.md §4.10: ranked
// search over the FTS index, a single-node get, a filtered list, the
// priority-weighted work queue, and decision support.
//
// Ranking blends follow the teacher's internal/storage/sqlite/ready.go and
// queries_search.go precedent of composing SQL aggregation with a thin Go
// layer for anything a single query can't express (weighted sort keys,
// score blending) rather than reaching for a query-building library.
package query

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/knotvault/knot/internal/apperr"
	"github.com/knotvault/knot/internal/config"
	"github.com/knotvault/knot/internal/content"
	"github.com/knotvault/knot/internal/frontmatter"
	"github.com/knotvault/knot/internal/graph"
	"github.com/knotvault/knot/internal/ids"
	"github.com/knotvault/knot/internal/store"
)

// RankBy selects a search's scoring strategy.
type RankBy string

const (
	RankRelevance RankBy = "relevance"
	RankRecency   RankBy = "recency"
	RankGraph     RankBy = "graph"
	RankSemantic  RankBy = "semantic"
	RankHybrid    RankBy = "hybrid"
)

// SemanticSearcher is the optional capability contract of spec.md §6: a
// vector-backed nearest-neighbor search over node ids. Engine works
// without one; when present it backs RankSemantic/RankHybrid.
type SemanticSearcher interface {
	Search(ctx context.Context, query string, limit int) (map[string]float64, error)
}

// Hit is one search result.
type Hit struct {
	ID    string  `json:"id"`
	Title string  `json:"title"`
	Score float64 `json:"score"`
}

// SearchResult is the shaped response of search(), including the warning
// spec.md §4.10 requires when a ranking mode degrades to plain BM25.
type SearchResult struct {
	Hits    []Hit    `json:"hits"`
	Warning string   `json:"warning,omitempty"`
	RankBy  RankBy   `json:"rank_by"`
}

// Engine answers read-only questions over the index store and graph
// snapshot.
type Engine struct {
	root     string
	store    *store.Store
	graph    *graph.Engine
	cfg      config.Config
	semantic SemanticSearcher
}

// New constructs a query engine. semantic may be nil.
func New(root string, s *store.Store, g *graph.Engine, cfg config.Config, semantic SemanticSearcher) *Engine {
	return &Engine{root: root, store: s, graph: g, cfg: cfg, semantic: semantic}
}

// SearchOptions configures one search() call.
type SearchOptions struct {
	RankBy RankBy
	Filter store.ListFilter
	Limit  int
}

// Search runs a ranked, filtered full text query (spec.md §4.10).
func (e *Engine) Search(ctx context.Context, query string, opts SearchOptions) (*SearchResult, error) {
	rankBy := opts.RankBy
	if rankBy == "" {
		rankBy = RankRelevance
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	hits, err := e.store.FTSSearch(ctx, query, 0, 0)
	if err != nil {
		return nil, err
	}
	allowed, err := e.filterAllowedIDs(ctx, opts.Filter)
	if err != nil {
		return nil, err
	}

	switch rankBy {
	case RankRelevance:
		return e.rankRelevance(hits, allowed, limit), nil
	case RankRecency:
		return e.rankRecency(ctx, hits, allowed, limit)
	case RankGraph:
		return e.rankGraph(ctx, hits, allowed, limit)
	case RankSemantic:
		if e.semantic == nil {
			res := e.rankRelevance(hits, allowed, limit)
			res.Warning = "semantic search unavailable, degraded to relevance ranking"
			res.RankBy = RankSemantic
			return res, nil
		}
		return e.rankSemantic(ctx, query, hits, allowed, limit)
	case RankHybrid:
		return e.rankHybrid(ctx, query, hits, allowed, limit)
	default:
		return e.rankRelevance(hits, allowed, limit), nil
	}
}

func (e *Engine) filterAllowedIDs(ctx context.Context, f store.ListFilter) (map[string]bool, error) {
	rows, err := e.store.ListNodes(ctx, f, "", 0)
	if err != nil {
		return nil, err
	}
	allowed := make(map[string]bool, len(rows))
	for _, r := range rows {
		allowed[r.ID] = true
	}
	return allowed, nil
}

func (e *Engine) rankRelevance(hits []store.SearchHit, allowed map[string]bool, limit int) *SearchResult {
	out := make([]Hit, 0, len(hits))
	for _, h := range hits {
		if allowed != nil && !allowed[h.ID] {
			continue
		}
		out = append(out, Hit{ID: h.ID, Title: h.Title, Score: -h.BM25})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return &SearchResult{Hits: out, RankBy: RankRelevance}
}

// rankRecency multiplies BM25 by an exponential recency decay,
// half_life_days configurable (spec.md §4.10).
func (e *Engine) rankRecency(ctx context.Context, hits []store.SearchHit, allowed map[string]bool, limit int) (*SearchResult, error) {
	halfLife := e.cfg.Search.HalfLifeDays
	if halfLife <= 0 {
		halfLife = 30
	}
	now := time.Now().UTC()
	out := make([]Hit, 0, len(hits))
	for _, h := range hits {
		if allowed != nil && !allowed[h.ID] {
			continue
		}
		node, err := e.store.FetchNode(ctx, h.ID)
		if err != nil {
			continue
		}
		days := now.Sub(node.Modified).Hours() / 24
		decay := math.Exp(-math.Ln2 * days / halfLife)
		out = append(out, Hit{ID: h.ID, Title: h.Title, Score: -h.BM25 * decay})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return &SearchResult{Hits: out, RankBy: RankRecency}, nil
}

// rankGraph multiplies BM25 by (1 + PageRank); falls back with a warning
// if metrics have never been materialized (spec.md §4.10).
func (e *Engine) rankGraph(ctx context.Context, hits []store.SearchHit, allowed map[string]bool, limit int) (*SearchResult, error) {
	anyRank := false
	out := make([]Hit, 0, len(hits))
	for _, h := range hits {
		if allowed != nil && !allowed[h.ID] {
			continue
		}
		node, err := e.store.FetchNode(ctx, h.ID)
		if err != nil {
			continue
		}
		pr := 0.0
		if node.PageRank != nil {
			pr = *node.PageRank
			if pr != 0 {
				anyRank = true
			}
		}
		out = append(out, Hit{ID: h.ID, Title: h.Title, Score: -h.BM25 * (1 + pr)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	res := &SearchResult{Hits: out, RankBy: RankGraph}
	if !anyRank {
		res.Warning = "graph metrics have not been materialized, scores are pure BM25"
	}
	return res, nil
}

func (e *Engine) rankSemantic(ctx context.Context, query string, hits []store.SearchHit, allowed map[string]bool, limit int) (*SearchResult, error) {
	scores, err := e.semantic.Search(ctx, query, 0)
	if err != nil {
		return nil, apperr.Wrap(apperr.SemanticUnavailable, "semantic search", err)
	}
	titles := make(map[string]string, len(hits))
	for _, h := range hits {
		titles[h.ID] = h.Title
	}
	out := make([]Hit, 0, len(scores))
	for id, score := range scores {
		if allowed != nil && !allowed[id] {
			continue
		}
		out = append(out, Hit{ID: id, Title: titles[id], Score: score})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return &SearchResult{Hits: out, RankBy: RankSemantic}, nil
}

// rankHybrid min-max normalizes both BM25 and semantic scores and blends
// them by search.semantic_weight (spec.md §4.10).
func (e *Engine) rankHybrid(ctx context.Context, query string, hits []store.SearchHit, allowed map[string]bool, limit int) (*SearchResult, error) {
	if e.semantic == nil {
		res := e.rankRelevance(hits, allowed, limit)
		res.Warning = "semantic search unavailable, degraded to relevance ranking"
		res.RankBy = RankHybrid
		return res, nil
	}
	semScores, err := e.semantic.Search(ctx, query, 0)
	if err != nil {
		return nil, apperr.Wrap(apperr.SemanticUnavailable, "semantic search", err)
	}

	bm25 := make(map[string]float64, len(hits))
	titles := make(map[string]string, len(hits))
	for _, h := range hits {
		bm25[h.ID] = -h.BM25
		titles[h.ID] = h.Title
	}
	bMin, bMax := minMax(bm25)
	sMin, sMax := minMax(semScores)

	weight := e.cfg.Search.SemanticWeight
	if weight == 0 {
		weight = 0.5
	}

	ids := unionKeys(bm25, semScores)
	out := make([]Hit, 0, len(ids))
	for id := range ids {
		if allowed != nil && !allowed[id] {
			continue
		}
		bNorm := normalize(bm25[id], bMin, bMax)
		sNorm := normalize(semScores[id], sMin, sMax)
		score := (1-weight)*bNorm + weight*sNorm
		title := titles[id]
		if title == "" {
			if node, err := e.store.FetchNode(ctx, id); err == nil {
				title = node.Title
			}
		}
		out = append(out, Hit{ID: id, Title: title, Score: score})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return &SearchResult{Hits: out, RankBy: RankHybrid}, nil
}

func minMax(m map[string]float64) (min, max float64) {
	first := true
	for _, v := range m {
		if first {
			min, max = v, v
			first = false
			continue
		}
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}

func normalize(v, min, max float64) float64 {
	if max == min {
		return 0
	}
	return (v - min) / (max - min)
}

func unionKeys(a, b map[string]float64) map[string]bool {
	out := make(map[string]bool, len(a)+len(b))
	for k := range a {
		out[k] = true
	}
	for k := range b {
		out[k] = true
	}
	return out
}

// GetResult is the shaped response of get(): the node row, its body read
// from disk, and both edge directions.
type GetResult struct {
	Node     *store.NodeRow
	Body     string
	Outgoing []store.Edge
	Incoming []store.Edge
}

// Get returns a node's full detail (spec.md §4.10 get()).
func (e *Engine) Get(ctx context.Context, id string) (*GetResult, error) {
	node, err := e.store.FetchNode(ctx, id)
	if err != nil {
		return nil, apperr.Wrap(apperr.NotFound, "fetch node", err)
	}
	kind := kindFor(node.Type)
	relPath, err := ids.Path(kind, id, node.Topic)
	if err != nil {
		return nil, apperr.Wrap(apperr.ValidationFailed, "compute path", err)
	}
	raw, err := os.ReadFile(filepath.Join(e.root, relPath))
	if err != nil {
		return nil, apperr.Wrap(apperr.StorageFatal, "read node file", err)
	}
	_, body, err := frontmatter.Parse(raw)
	if err != nil {
		return nil, apperr.Wrap(apperr.StorageFatal, "parse node file", err)
	}
	out, err := e.store.OutgoingEdges(ctx, id)
	if err != nil {
		return nil, err
	}
	in, err := e.store.IncomingEdges(ctx, id)
	if err != nil {
		return nil, err
	}
	return &GetResult{Node: node, Body: body, Outgoing: out, Incoming: in}, nil
}

// ListSort selects list()'s ordering.
type ListSort string

const (
	SortRecency ListSort = "recency"
	SortTitle   ListSort = "title"
	SortType    ListSort = "type"
	SortPriority ListSort = "priority"
)

// List returns nodes matching filter, sorted and capped (spec.md §4.10
// list()).
func (e *Engine) List(ctx context.Context, f store.ListFilter, sortBy ListSort, limit int) ([]*store.NodeRow, error) {
	orderBy := ""
	switch sortBy {
	case SortTitle:
		orderBy = "n.title ASC"
	case SortType:
		orderBy = "n.type ASC, n.created DESC"
	case SortPriority:
		orderBy = "n.priority DESC, n.created DESC"
	default:
		orderBy = "n.created DESC"
	}
	return e.store.ListNodes(ctx, f, orderBy, limit)
}

// WorkQueue buckets tasks into inbox/active/blocked and sorts each bucket
// descending by priority*2 + impact*1.5 + (4-effort) (spec.md §4.10
// work_queue()).
type WorkQueue struct {
	Inbox  []*store.NodeRow `json:"inbox"`
	Active []*store.NodeRow `json:"active"`
	Blocked []*store.NodeRow `json:"blocked"`
}

func (e *Engine) WorkQueue(ctx context.Context, space string) (*WorkQueue, error) {
	f := store.ListFilter{Type: string(content.TypeTask), Space: space}
	tasks, err := e.store.ListNodes(ctx, f, "", 0)
	if err != nil {
		return nil, err
	}
	wq := &WorkQueue{}
	for _, t := range tasks {
		switch t.Status {
		case "inbox":
			wq.Inbox = append(wq.Inbox, t)
		case "active":
			wq.Active = append(wq.Active, t)
		case "blocked":
			wq.Blocked = append(wq.Blocked, t)
		}
	}
	sortByWeight(wq.Inbox)
	sortByWeight(wq.Active)
	sortByWeight(wq.Blocked)
	return wq, nil
}

func sortByWeight(rows []*store.NodeRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		return taskWeight(rows[i]) > taskWeight(rows[j])
	})
}

func taskWeight(n *store.NodeRow) float64 {
	priority := intOr(n.Priority, 0)
	impact := intOr(n.Impact, 0)
	effort := intOr(n.Effort, 0)
	return float64(priority)*2 + float64(impact)*1.5 + float64(4-effort)
}

func intOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

// DecisionSupport surfaces accepted/superseded decisions relevant to a
// topic or space, for an agent weighing a new choice (spec.md §4.10
// decision_support()).
func (e *Engine) DecisionSupport(ctx context.Context, topic, space string) ([]*store.NodeRow, error) {
	f := store.ListFilter{Type: string(content.TypeNote), Subtype: content.SubtypeDecision, Topic: topic, Space: space}
	rows, err := e.store.ListNodes(ctx, f, "n.created DESC", 0)
	if err != nil {
		return nil, err
	}
	var out []*store.NodeRow
	for _, r := range rows {
		if r.Status == "accepted" || r.Status == "superseded" {
			out = append(out, r)
		}
	}
	return out, nil
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
