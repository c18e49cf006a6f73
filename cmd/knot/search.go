package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/knotvault/knot/internal/query"
	"github.com/knotvault/knot/internal/store"
)

var (
	searchRankBy   string
	searchLimit    int
	commonFilter   filterFlags
)

// filterFlags holds the store.ListFilter flag bindings shared by search,
// list, and decisions.
type filterFlags struct {
	Type, Subtype, Status, Tag, Topic, Maturity, Space, Since string
	IncludeArchived                                           bool
}

func (f filterFlags) toListFilter() (store.ListFilter, error) {
	since, err := parseSince(f.Since)
	if err != nil {
		return store.ListFilter{}, err
	}
	return store.ListFilter{
		Type: f.Type, Subtype: f.Subtype, Status: f.Status, Tag: f.Tag,
		Topic: f.Topic, Maturity: f.Maturity, Space: f.Space,
		Since: since, IncludeArchived: f.IncludeArchived,
	}, nil
}

func addFilterFlags(cmd *cobra.Command, f *filterFlags) {
	cmd.Flags().StringVar(&f.Type, "type", "", "filter by type")
	cmd.Flags().StringVar(&f.Subtype, "subtype", "", "filter by subtype")
	cmd.Flags().StringVar(&f.Status, "status", "", "filter by status")
	cmd.Flags().StringVar(&f.Tag, "tag", "", "filter by tag")
	cmd.Flags().StringVar(&f.Topic, "topic", "", "filter by topic")
	cmd.Flags().StringVar(&f.Maturity, "maturity", "", "filter by maturity")
	cmd.Flags().StringVar(&f.Space, "space", "", "filter by space (notes, ops/tasks, ...)")
	cmd.Flags().StringVar(&f.Since, "since", "", "filter by modified time (RFC3339 or natural language)")
	cmd.Flags().BoolVar(&f.IncludeArchived, "include-archived", false, "include archived nodes")
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "ranked full-text search",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		q := args[0]
		run("search", func(ctx context.Context) (any, []string, error) {
			a := openOrExit(ctx)
			defer a.Close()
			filter, err := commonFilter.toListFilter()
			if err != nil {
				return nil, nil, err
			}
			res, err := a.query.Search(ctx, q, query.SearchOptions{
				RankBy: query.RankBy(searchRankBy), Filter: filter, Limit: searchLimit,
			})
			if err != nil {
				return nil, nil, err
			}
			var warnings []string
			if res.Warning != "" {
				warnings = append(warnings, res.Warning)
			}
			return res, warnings, nil
		})
	},
}

func init() {
	searchCmd.Flags().StringVar(&searchRankBy, "rank-by", "relevance", "relevance, recency, graph, semantic, or hybrid")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 50, "maximum results")
	addFilterFlags(searchCmd, &commonFilter)
}
