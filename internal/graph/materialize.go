package graph

import (
	"context"

	"github.com/knotvault/knot/internal/apperr"
	"github.com/knotvault/knot/internal/store"
)

// Metrics is the per-node materialized result of MaterializeMetrics.
type Metrics struct {
	PageRank    float64
	DegreeIn    int
	DegreeOut   int
	Betweenness float64
	ClusterID   int
}

// MaterializeMetrics computes and persists pagerank, degree_in, degree_out,
// betweenness, and cluster_id on every node, and flags bidirectional edges
// (spec.md §4.7). It always runs full-graph; there is no incremental mode.
// SPEC_FULL.md §4's dirty-set table is not read here, only cleared after a
// successful run.
func (e *Engine) MaterializeMetrics(ctx context.Context) (map[string]Metrics, error) {
	snap, err := e.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	ranks, err := e.Rank(ctx, 0)
	if err != nil {
		return nil, err
	}
	rankByID := make(map[string]float64, len(ranks))
	for _, r := range ranks {
		rankByID[r.ID] = r.Score
	}

	betweenness, err := e.Bridges(ctx, 0)
	if err != nil {
		return nil, err
	}
	betweennessByID := make(map[string]float64, len(betweenness))
	for _, b := range betweenness {
		betweennessByID[b.ID] = b.Score
	}

	communities, _, err := e.Themes(ctx)
	if err != nil {
		return nil, err
	}
	clusterByID := make(map[string]int, len(snap.nodes))
	for _, c := range communities {
		for _, m := range c.Members {
			clusterByID[m] = c.CommunityID
		}
	}

	degreeOut := make(map[string]int, len(snap.nodes))
	degreeIn := make(map[string]int, len(snap.nodes))
	mutualSeen := make(map[string]bool)
	err = e.store.Transaction(ctx, func(tx *store.Tx) error {
		for _, id := range snap.nodes {
			degreeOut[id] = len(snap.out[id])
		}
		for _, id := range snap.nodes {
			for _, ed := range snap.out[id] {
				degreeIn[ed.target]++
				key := id + "\x00" + ed.target + "\x00" + ed.etype
				rkey := ed.target + "\x00" + id + "\x00" + ed.etype
				if mutualSeen[rkey] {
					continue
				}
				isMutual := false
				for _, back := range snap.out[ed.target] {
					if back.target == id && back.etype == ed.etype {
						isMutual = true
						break
					}
				}
				if isMutual {
					mutualSeen[key] = true
					if err := tx.SetBidirectional(ctx, id, ed.target, ed.etype, true); err != nil {
						return err
					}
				}
			}
		}

		out := make(map[string]Metrics, len(snap.nodes))
		for _, id := range snap.nodes {
			m := Metrics{
				PageRank:    rankByID[id],
				DegreeIn:    degreeIn[id],
				DegreeOut:   degreeOut[id],
				Betweenness: betweennessByID[id],
				ClusterID:   clusterByID[id],
			}
			out[id] = m
			n, err := tx.FetchNodeTx(ctx, id)
			if err != nil {
				return err
			}
			n.PageRank = &m.PageRank
			n.DegreeIn = &m.DegreeIn
			n.DegreeOut = &m.DegreeOut
			n.Betweenness = &m.Betweenness
			n.ClusterID = &m.ClusterID
			if err := tx.UpdateNode(ctx, n); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.StorageRecoverable, "materialize metrics", err)
	}

	result := make(map[string]Metrics, len(snap.nodes))
	for _, id := range snap.nodes {
		result[id] = Metrics{
			PageRank:    rankByID[id],
			DegreeIn:    degreeIn[id],
			DegreeOut:   degreeOut[id],
			Betweenness: betweennessByID[id],
			ClusterID:   clusterByID[id],
		}
	}
	e.Invalidate()
	if err := e.store.ClearDirty(ctx); err != nil {
		return nil, err
	}
	return result, nil
}
