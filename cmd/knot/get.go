package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/knotvault/knot/internal/query"
)

var getCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "fetch a node's full detail, including body",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := args[0]
		run("get", func(ctx context.Context) (any, []string, error) {
			a := openOrExit(ctx)
			defer a.Close()
			res, err := a.query.Get(ctx, id)
			return res, nil, err
		})
	},
}

var (
	listSort  string
	listLimit int
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "list nodes matching a filter",
	Run: func(cmd *cobra.Command, args []string) {
		run("list", func(ctx context.Context) (any, []string, error) {
			a := openOrExit(ctx)
			defer a.Close()
			filter, err := commonFilter.toListFilter()
			if err != nil {
				return nil, nil, err
			}
			rows, err := a.query.List(ctx, filter, query.ListSort(listSort), listLimit)
			return rows, nil, err
		})
	},
}

var workqueueSpace string

var workqueueCmd = &cobra.Command{
	Use:   "workqueue",
	Short: "bucketed, priority-weighted task queue",
	Run: func(cmd *cobra.Command, args []string) {
		run("workqueue", func(ctx context.Context) (any, []string, error) {
			a := openOrExit(ctx)
			defer a.Close()
			wq, err := a.query.WorkQueue(ctx, workqueueSpace)
			return wq, nil, err
		})
	},
}

var (
	decisionsTopic string
	decisionsSpace string
)

var decisionsCmd = &cobra.Command{
	Use:   "decisions",
	Short: "accepted/superseded decisions relevant to a topic",
	Run: func(cmd *cobra.Command, args []string) {
		run("decision_support", func(ctx context.Context) (any, []string, error) {
			a := openOrExit(ctx)
			defer a.Close()
			rows, err := a.query.DecisionSupport(ctx, decisionsTopic, decisionsSpace)
			return rows, nil, err
		})
	},
}

func init() {
	listCmd.Flags().StringVar(&listSort, "sort", "recency", "recency, title, type, or priority")
	listCmd.Flags().IntVar(&listLimit, "limit", 0, "maximum results (0 = unlimited)")
	addFilterFlags(listCmd, &commonFilter)

	workqueueCmd.Flags().StringVar(&workqueueSpace, "space", "", "restrict to a space")

	decisionsCmd.Flags().StringVar(&decisionsTopic, "topic", "", "topic to match")
	decisionsCmd.Flags().StringVar(&decisionsSpace, "space", "", "space to match")
}
