package session

import (
	"context"
	"fmt"

	"github.com/knotvault/knot/internal/query"
	"github.com/knotvault/knot/internal/store"
)

// ContextOptions is the input to Context.
type ContextOptions struct {
	Topic             string
	Budget            int
	IgnoreCheckpoints bool
}

// ContextItem is one entry surfaced by a context layer.
type ContextItem struct {
	ID      string `json:"id,omitempty"`
	Title   string `json:"title"`
	Excerpt string `json:"excerpt,omitempty"`
}

// Layer is one of the five token-bounded sections of a context() payload.
type Layer struct {
	Name   string        `json:"name"`
	Tokens int           `json:"tokens"`
	Items  []ContextItem `json:"items"`
}

// ContextResult is the data payload of context().
type ContextResult struct {
	Layers      []Layer `json:"layers"`
	TotalTokens int     `json:"total_tokens"`
	Budget      int     `json:"budget"`
	Remaining   int     `json:"remaining"`
	Pressure    string  `json:"pressure"`
}

// Context assembles the five-layer, token-budgeted agent context payload
// of spec.md §4.8: Layer 0 (identity+methodology, always), Layer 1 (active
// session + recent decisions + work-queue summary + session log, always),
// Layer 2 (topic-matched, budget-bound), Layer 3 (graph-adjacent to Layer
// 2, budget-bound), Layer 4 (background, whatever budget remains).
//
// No tokenizer library appears anywhere in the example corpus, so token
// counts are approximated at one token per four characters throughout,
// the same heuristic ratio commonly used for English prose when no exact
// encoder is available; see estimateTokens.
func (e *Engine) Context(ctx context.Context, in ContextOptions) (*ContextResult, error) {
	budget := in.Budget
	if budget <= 0 {
		budget = e.cfg.Agent.Context.DefaultBudget
	}
	remaining := budget

	l0Text := e.identityText()
	l0 := Layer{Name: "identity", Tokens: estimateTokens(l0Text), Items: []ContextItem{{Title: "identity", Excerpt: l0Text}}}
	remaining -= l0.Tokens

	l1Items, l1Tokens, err := e.layer1(ctx, in.IgnoreCheckpoints)
	if err != nil {
		return nil, err
	}
	l1 := Layer{Name: "session", Tokens: l1Tokens, Items: l1Items}
	remaining -= l1Tokens

	l2Items, l2Tokens := e.layer2(ctx, in.Topic, remaining)
	l2 := Layer{Name: "topic", Tokens: l2Tokens, Items: l2Items}
	remaining -= l2Tokens

	l3Items, l3Tokens := e.layer3(ctx, l2Items, remaining)
	l3 := Layer{Name: "graph", Tokens: l3Tokens, Items: l3Items}
	remaining -= l3Tokens

	l4Items, l4Tokens := e.layer4(ctx, remaining)
	l4 := Layer{Name: "background", Tokens: l4Tokens, Items: l4Items}
	remaining -= l4Tokens

	total := budget - remaining
	return &ContextResult{
		Layers:      []Layer{l0, l1, l2, l3, l4},
		TotalTokens: total,
		Budget:      budget,
		Remaining:   remaining,
		Pressure:    pressureFor(remaining, budget),
	}, nil
}

func pressureFor(remaining, budget int) string {
	if budget <= 0 {
		return "normal"
	}
	if remaining < 0 {
		return "exceeded"
	}
	if float64(remaining)/float64(budget) <= 0.15 {
		return "caution"
	}
	return "normal"
}

// layer1 is always included regardless of remaining budget: the active
// session, recent decisions, a work-queue summary, and the session's log
// entries. Without ignore_checkpoints, only log entries written after the
// latest pinned ("checkpoint") entry are read, the pinned entry itself
// excluded, rather than from the session start (spec.md §4.8);
// ignoreCheckpoints forces the full history.
func (e *Engine) layer1(ctx context.Context, ignoreCheckpoints bool) ([]ContextItem, int, error) {
	var items []ContextItem

	active, err := e.findActiveSession(ctx)
	if err != nil {
		return nil, 0, err
	}
	if active != nil {
		items = append(items, ContextItem{
			ID: active.ID, Title: "active session: " + active.Title,
			Excerpt: fmt.Sprintf("topic=%s status=%s", active.Topic, active.Status),
		})

		sinceEntryID := ""
		if !ignoreCheckpoints {
			checkpoint, ok, cErr := e.store.LatestCheckpoint(ctx, active.ID)
			if cErr != nil {
				return nil, 0, cErr
			}
			if ok {
				sinceEntryID = checkpoint
			}
		}

		entries, eErr := e.store.SessionLogEntries(ctx, active.ID, sinceEntryID)
		if eErr != nil {
			return nil, 0, eErr
		}
		for _, entry := range entries {
			items = append(items, ContextItem{ID: entry.EntryID, Title: "log entry", Excerpt: entry.Message})
		}
	}

	decisions, dErr := e.store.ListNodes(ctx, store.ListFilter{Type: "note", Subtype: "decision"}, "n.modified DESC", 5)
	if dErr != nil {
		return nil, 0, dErr
	}
	for _, d := range decisions {
		items = append(items, ContextItem{ID: d.ID, Title: "decision: " + d.Title, Excerpt: d.Status})
	}

	if e.query != nil {
		wq, wErr := e.query.WorkQueue(ctx, "")
		if wErr != nil {
			return nil, 0, wErr
		}
		summary := fmt.Sprintf("inbox=%d active=%d blocked=%d", len(wq.Inbox), len(wq.Active), len(wq.Blocked))
		items = append(items, ContextItem{Title: "work queue", Excerpt: summary})
	}

	tokens := 0
	for _, it := range items {
		tokens += estimateTokens(it.Title + it.Excerpt)
	}
	return items, tokens, nil
}

// layer2 is the topic-matched bag: relevance-ranked search results capped
// at both config.Agent.Context.Layer2MaxNotes and the remaining budget.
func (e *Engine) layer2(ctx context.Context, topic string, budget int) ([]ContextItem, int) {
	if topic == "" || e.query == nil || budget <= 0 {
		return nil, 0
	}
	maxNotes := e.cfg.Agent.Context.Layer2MaxNotes
	if maxNotes <= 0 {
		maxNotes = 20
	}
	res, err := e.query.Search(ctx, topic, query.SearchOptions{RankBy: query.RankRelevance, Limit: maxNotes})
	if err != nil {
		return nil, 0
	}
	var items []ContextItem
	tokens := 0
	for _, hit := range res.Hits {
		t := estimateTokens(hit.Title)
		if tokens+t > budget {
			break
		}
		items = append(items, ContextItem{ID: hit.ID, Title: hit.Title})
		tokens += t
	}
	return items, tokens
}

// layer3 walks outward from every Layer 2 item up to
// config.Agent.Context.Layer3MaxHops via the graph engine's spreading
// activation, stopping as soon as the remaining budget is exhausted.
func (e *Engine) layer3(ctx context.Context, l2 []ContextItem, budget int) ([]ContextItem, int) {
	if len(l2) == 0 || budget <= 0 || e.graph == nil {
		return nil, 0
	}
	hops := e.cfg.Agent.Context.Layer3MaxHops
	if hops <= 0 {
		hops = 2
	}
	seen := make(map[string]bool, len(l2))
	for _, it := range l2 {
		seen[it.ID] = true
	}

	var items []ContextItem
	tokens := 0
	for _, it := range l2 {
		related, err := e.graph.Related(ctx, it.ID, hops, 5)
		if err != nil {
			continue
		}
		for _, r := range related {
			if seen[r.ID] {
				continue
			}
			seen[r.ID] = true
			node, nErr := e.store.FetchNode(ctx, r.ID)
			if nErr != nil {
				continue
			}
			t := estimateTokens(node.Title)
			if tokens+t > budget {
				return items, tokens
			}
			items = append(items, ContextItem{ID: node.ID, Title: node.Title})
			tokens += t
		}
	}
	return items, tokens
}

// layer4 is background fill: most recently modified nodes, then
// structural gaps (§4.7 Gaps), spending whatever budget remains.
func (e *Engine) layer4(ctx context.Context, budget int) ([]ContextItem, int) {
	if budget <= 0 {
		return nil, 0
	}
	var items []ContextItem
	tokens := 0

	recent, err := e.store.ListNodes(ctx, store.ListFilter{}, "n.modified DESC", 5)
	if err == nil {
		for _, n := range recent {
			t := estimateTokens(n.Title)
			if tokens+t > budget {
				return items, tokens
			}
			items = append(items, ContextItem{ID: n.ID, Title: "recent: " + n.Title})
			tokens += t
		}
	}

	if e.graph != nil {
		gaps, gErr := e.graph.Gaps(ctx, 3)
		if gErr == nil {
			for _, g := range gaps {
				t := estimateTokens(g.ID)
				if tokens+t > budget {
					return items, tokens
				}
				items = append(items, ContextItem{ID: g.ID, Title: "structural gap"})
				tokens += t
			}
		}
	}
	return items, tokens
}

// estimateTokens approximates token count at one token per four
// characters, the common heuristic used when no tokenizer library is
// available (no corpus example vendors tiktoken or a comparable encoder).
func estimateTokens(s string) int {
	if s == "" {
		return 0
	}
	return (len(s) + 3) / 4
}
