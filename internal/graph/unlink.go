package graph

import (
	"context"
	"regexp"

	"github.com/knotvault/knot/internal/apperr"
	"github.com/knotvault/knot/internal/store"
)

// UnlinkResult reports what unlink changed, for the caller to compose a
// warning if body protection suppressed the wikilink removal.
type UnlinkResult struct {
	EdgesRemoved    int
	BodyProtected   bool
	NewBody         string
	BodyChanged     bool
}

// Unlink removes the edge(s) between src and dst, and (unless the source
// has a maturity set) the corresponding body wikiliks on the source
// (spec.md §4.7 unlink). The caller supplies the source node's current body
// and maturity so this stays a pure function over store state plus text.
func (e *Engine) Unlink(ctx context.Context, srcID, dstID string, both bool, srcTitle, dstTitle, srcBody, srcMaturity string) (*UnlinkResult, error) {
	res := &UnlinkResult{}
	err := e.store.Transaction(ctx, func(tx *store.Tx) error {
		edges, err := e.store.OutgoingEdges(ctx, srcID)
		if err != nil {
			return err
		}
		for _, ed := range edges {
			if ed.TargetID == dstID {
				if err := tx.DeleteEdge(ctx, srcID, dstID, ed.EdgeType); err != nil {
					return err
				}
				res.EdgesRemoved++
			}
		}
		if both {
			back, err := e.store.OutgoingEdges(ctx, dstID)
			if err != nil {
				return err
			}
			for _, ed := range back {
				if ed.TargetID == srcID {
					if err := tx.DeleteEdge(ctx, dstID, srcID, ed.EdgeType); err != nil {
						return err
					}
					res.EdgesRemoved++
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.StorageRecoverable, "unlink", err)
	}
	e.Invalidate()

	if srcMaturity != "" {
		res.BodyProtected = true
		return res, nil
	}
	newBody := removeWikilink(srcBody, dstTitle)
	if newBody != srcBody {
		res.NewBody = newBody
		res.BodyChanged = true
	}
	return res, nil
}

var extraSpaces = regexp.MustCompile(`[ \t]{2,}`)

func removeWikilink(body, title string) string {
	re := regexp.MustCompile(`\[\[` + regexp.QuoteMeta(title) + `(\|[^\[\]]*?)?\]\]`)
	out := re.ReplaceAllString(body, "")
	return extraSpaces.ReplaceAllString(out, " ")
}
