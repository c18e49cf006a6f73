package graph

import (
	"context"
	"math"
	"sort"
)

// BetweennessHit is one betweenness-centrality result (directed, per
// spec.md §9 Open Questions: "this spec picks... directed for
// betweenness/bridge").
type BetweennessHit struct {
	ID    string
	Score float64
}

// Bridges computes directed betweenness centrality via Brandes' algorithm,
// run once per source over the directed adjacency.
func (e *Engine) Bridges(ctx context.Context, top int) ([]BetweennessHit, error) {
	snap, err := e.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	centrality := make(map[string]float64, len(snap.nodes))
	for _, id := range snap.nodes {
		centrality[id] = 0
	}
	for _, s := range snap.nodes {
		brandesSingleSource(s, snap, centrality)
	}
	out := make([]BetweennessHit, 0, len(snap.nodes))
	for _, id := range snap.nodes {
		out = append(out, BetweennessHit{ID: id, Score: centrality[id]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if top > 0 && len(out) > top {
		out = out[:top]
	}
	return out, nil
}

// brandesSingleSource accumulates dependency scores for one BFS source s
// into centrality, following Brandes (2001) for unweighted directed graphs.
func brandesSingleSource(s string, snap *Snapshot, centrality map[string]float64) {
	stack := []string{}
	pred := make(map[string][]string)
	sigma := make(map[string]float64)
	dist := make(map[string]int)
	for _, id := range snap.nodes {
		sigma[id] = 0
		dist[id] = -1
	}
	sigma[s] = 1
	dist[s] = 0
	queue := []string{s}
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		stack = append(stack, v)
		for _, ed := range snap.out[v] {
			w := ed.target
			if dist[w] < 0 {
				dist[w] = dist[v] + 1
				queue = append(queue, w)
			}
			if dist[w] == dist[v]+1 {
				sigma[w] += sigma[v]
				pred[w] = append(pred[w], v)
			}
		}
	}
	delta := make(map[string]float64)
	for i := len(stack) - 1; i >= 0; i-- {
		w := stack[i]
		for _, v := range pred[w] {
			if sigma[w] == 0 {
				continue
			}
			delta[v] += (sigma[v] / sigma[w]) * (1 + delta[w])
		}
		if w != s {
			centrality[w] += delta[w]
		}
	}
}

// GapHit is one constraint (Burt) centrality result; low constraint marks
// a structural-hole bridging node, i.e. a "gap" in spec.md terms.
type GapHit struct {
	ID    string
	Score float64
}

// Gaps computes Burt's constraint on the undirected view, filtering out
// isolated and degree-1 nodes whose constraint is undefined (NaN/Inf).
func (e *Engine) Gaps(ctx context.Context, top int) ([]GapHit, error) {
	snap, err := e.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]GapHit, 0, len(snap.nodes))
	for _, i := range snap.nodes {
		neighbors := uniq(snap.undirAdj[i])
		if len(neighbors) < 2 {
			continue
		}
		var constraint float64
		for _, j := range neighbors {
			pij := proportion(i, j, snap)
			var indirect float64
			for _, q := range neighbors {
				if q == j {
					continue
				}
				indirect += proportion(i, q, snap) * proportion(q, j, snap)
			}
			c := pij + indirect
			constraint += c * c
		}
		if math.IsNaN(constraint) || math.IsInf(constraint, 0) {
			continue
		}
		out = append(out, GapHit{ID: i, Score: constraint})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score < out[j].Score })
	if top > 0 && len(out) > top {
		out = out[:top]
	}
	return out, nil
}

// proportion is the fraction of i's relational investment given to j:
// 1/degree(i) normalized across i's neighbor set (unweighted approximation
// of Burt's p_ij).
func proportion(i, j string, snap *Snapshot) float64 {
	neighbors := uniq(snap.undirAdj[i])
	if len(neighbors) == 0 {
		return 0
	}
	for _, n := range neighbors {
		if n == j {
			return 1.0 / float64(len(neighbors))
		}
	}
	return 0
}

func uniq(ss []string) []string {
	seen := make(map[string]bool, len(ss))
	out := make([]string, 0, len(ss))
	for _, s := range ss {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
