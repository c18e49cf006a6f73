package main

import (
	"context"

	"github.com/spf13/cobra"
)

var (
	relatedDepth, relatedTop int
	rankTop                  int
	bridgesTop, gapsTop      int
)

var relatedCmd = &cobra.Command{
	Use:   "related <id>",
	Short: "BFS spreading-activation related nodes",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := args[0]
		run("related", func(ctx context.Context) (any, []string, error) {
			a := openOrExit(ctx)
			defer a.Close()
			hits, err := a.graph.Related(ctx, id, relatedDepth, relatedTop)
			return hits, nil, err
		})
	},
}

var rankCmd = &cobra.Command{
	Use:   "rank",
	Short: "PageRank over the directed graph",
	Run: func(cmd *cobra.Command, args []string) {
		run("rank", func(ctx context.Context) (any, []string, error) {
			a := openOrExit(ctx)
			defer a.Close()
			hits, err := a.graph.Rank(ctx, rankTop)
			return hits, nil, err
		})
	},
}

var pathCmd = &cobra.Command{
	Use:   "path <src> <dst>",
	Short: "shortest undirected path between two nodes",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		src, dst := args[0], args[1]
		run("path", func(ctx context.Context) (any, []string, error) {
			a := openOrExit(ctx)
			defer a.Close()
			p, err := a.graph.Path(ctx, src, dst)
			return p, nil, err
		})
	},
}

var bridgesCmd = &cobra.Command{
	Use:   "bridges",
	Short: "directed betweenness centrality (bridging nodes)",
	Run: func(cmd *cobra.Command, args []string) {
		run("bridges", func(ctx context.Context) (any, []string, error) {
			a := openOrExit(ctx)
			defer a.Close()
			hits, err := a.graph.Bridges(ctx, bridgesTop)
			return hits, nil, err
		})
	},
}

var gapsCmd = &cobra.Command{
	Use:   "gaps",
	Short: "structural-hole (low constraint) candidate nodes",
	Run: func(cmd *cobra.Command, args []string) {
		run("gaps", func(ctx context.Context) (any, []string, error) {
			a := openOrExit(ctx)
			defer a.Close()
			hits, err := a.graph.Gaps(ctx, gapsTop)
			return hits, nil, err
		})
	},
}

var themesCmd = &cobra.Command{
	Use:   "themes",
	Short: "community detection over the undirected graph",
	Run: func(cmd *cobra.Command, args []string) {
		run("themes", func(ctx context.Context) (any, []string, error) {
			a := openOrExit(ctx)
			defer a.Close()
			communities, warning, err := a.graph.Themes(ctx)
			var warnings []string
			if warning != "" {
				warnings = append(warnings, warning)
			}
			return communities, warnings, err
		})
	},
}

var materializeCmd = &cobra.Command{
	Use:   "materialize",
	Short: "recompute and persist pagerank/degree/betweenness/cluster_id for every node",
	Run: func(cmd *cobra.Command, args []string) {
		run("materialize_metrics", func(ctx context.Context) (any, []string, error) {
			a := openOrExit(ctx)
			defer a.Close()
			metrics, err := a.graph.MaterializeMetrics(ctx)
			return metrics, nil, err
		})
	},
}

func init() {
	relatedCmd.Flags().IntVar(&relatedDepth, "depth", 2, "BFS hop limit (1-5)")
	relatedCmd.Flags().IntVar(&relatedTop, "top", 20, "maximum results")
	rankCmd.Flags().IntVar(&rankTop, "top", 20, "maximum results")
	bridgesCmd.Flags().IntVar(&bridgesTop, "top", 20, "maximum results")
	gapsCmd.Flags().IntVar(&gapsTop, "top", 20, "maximum results")
	rootCmd.AddCommand(materializeCmd)
}
