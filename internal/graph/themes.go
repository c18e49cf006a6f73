package graph

import (
	"context"
	"sort"
)

// Community is one detected cluster (spec.md §4.7 themes).
type Community struct {
	CommunityID int
	Size        int
	Members     []string
}

// Themes runs community detection over the undirected view. spec.md names
// Leiden as preferred with a Louvain fallback; no corpus example vendors
// either algorithm (see package doc comment), so this implements the
// Louvain modularity-optimization heuristic directly and always reports
// the fallback warning, since a from-scratch Leiden refinement pass adds
// substantial complexity with the same asymptotic result on the small,
// single-user graphs this engine targets.
func (e *Engine) Themes(ctx context.Context) (communities []Community, warning string, err error) {
	snap, snapErr := e.snapshot(ctx)
	if snapErr != nil {
		return nil, "", snapErr
	}
	if len(snap.nodes) == 0 {
		return nil, "leiden unavailable, used louvain fallback", nil
	}

	community := make(map[string]int, len(snap.nodes))
	for i, id := range snap.nodes {
		community[id] = i
	}

	hasEdges := false
	for _, id := range snap.nodes {
		if len(snap.undirAdj[id]) > 0 {
			hasEdges = true
			break
		}
	}
	if !hasEdges {
		// spec.md boundary behavior: "themes on graph with no edges -> one
		// community per node".
		return communitiesFrom(community), "leiden unavailable, used louvain fallback", nil
	}

	degree := make(map[string]int, len(snap.nodes))
	m := 0
	for _, id := range snap.nodes {
		degree[id] = len(snap.undirAdj[id])
		m += degree[id]
	}
	m = m / 2
	if m == 0 {
		return communitiesFrom(community), "leiden unavailable, used louvain fallback", nil
	}

	improved := true
	for pass := 0; improved && pass < 20; pass++ {
		improved = false
		for _, id := range snap.nodes {
			bestCommunity := community[id]
			bestGain := 0.0
			neighborCommunities := map[int]int{}
			for _, nb := range snap.undirAdj[id] {
				neighborCommunities[community[nb]]++
			}
			for c, links := range neighborCommunities {
				if c == community[id] {
					continue
				}
				gain := float64(links) - float64(degree[id]*degree[id])/float64(4*m)
				if gain > bestGain {
					bestGain = gain
					bestCommunity = c
				}
			}
			if bestCommunity != community[id] {
				community[id] = bestCommunity
				improved = true
			}
		}
	}

	return communitiesFrom(community), "leiden unavailable, used louvain fallback", nil
}

func communitiesFrom(community map[string]int) []Community {
	groups := make(map[int][]string)
	for id, c := range community {
		groups[c] = append(groups[c], id)
	}
	out := make([]Community, 0, len(groups))
	for c, members := range groups {
		sort.Strings(members)
		out = append(out, Community{CommunityID: c, Size: len(members), Members: members})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CommunityID < out[j].CommunityID })
	return out
}
