package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/knotvault/knot/internal/session"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "manage the single active work session",
}

var sessionStartTopic string

var sessionStartCmd = &cobra.Command{
	Use:   "start",
	Short: "open a new session",
	Run: func(cmd *cobra.Command, args []string) {
		run("session_start", func(ctx context.Context) (any, []string, error) {
			a := openOrExit(ctx)
			defer a.Close()
			return a.session.Start(ctx, sessionStartTopic)
		})
	},
}

var (
	sessionLogMessage    string
	sessionLogPin        bool
	sessionLogCost       float64
	sessionLogReferences []string
)

var sessionLogCmd = &cobra.Command{
	Use:   "log",
	Short: "append an entry to the active session's log",
	Run: func(cmd *cobra.Command, args []string) {
		run("session_log_entry", func(ctx context.Context) (any, []string, error) {
			a := openOrExit(ctx)
			defer a.Close()
			res, err := a.session.LogEntry(ctx, session.LogEntryInput{
				Message:    sessionLogMessage,
				Pin:        sessionLogPin,
				Cost:       sessionLogCost,
				References: sessionLogReferences,
			})
			return res, nil, err
		})
	},
}

var sessionCloseSummary string

var sessionCloseCmd = &cobra.Command{
	Use:   "close",
	Short: "run the close enrichment pipeline and mark the active session closed",
	Run: func(cmd *cobra.Command, args []string) {
		run("session_close", func(ctx context.Context) (any, []string, error) {
			a := openOrExit(ctx)
			defer a.Close()
			return a.session.Close(ctx, sessionCloseSummary)
		})
	},
}

var sessionReopenCmd = &cobra.Command{
	Use:   "reopen <id>",
	Short: "reopen a previously closed session",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := args[0]
		run("session_reopen", func(ctx context.Context) (any, []string, error) {
			a := openOrExit(ctx)
			defer a.Close()
			res, err := a.session.Reopen(ctx, id)
			return res, nil, err
		})
	},
}

var (
	sessionCostID     string
	sessionCostBudget float64
)

var sessionCostCmd = &cobra.Command{
	Use:   "cost",
	Short: "report total cost for a session, optionally against a budget",
	Run: func(cmd *cobra.Command, args []string) {
		run("session_cost", func(ctx context.Context) (any, []string, error) {
			a := openOrExit(ctx)
			defer a.Close()
			var budget *float64
			if cmd.Flags().Changed("budget") {
				budget = &sessionCostBudget
			}
			res, err := a.session.Cost(ctx, sessionCostID, budget)
			return res, nil, err
		})
	},
}

var (
	sessionContextTopic             string
	sessionContextBudget            int
	sessionContextIgnoreCheckpoints bool
)

var sessionContextCmd = &cobra.Command{
	Use:   "context",
	Short: "assemble the five-layer, token-budgeted agent context payload",
	Run: func(cmd *cobra.Command, args []string) {
		run("session_context", func(ctx context.Context) (any, []string, error) {
			a := openOrExit(ctx)
			defer a.Close()
			res, err := a.session.Context(ctx, session.ContextOptions{
				Topic:             sessionContextTopic,
				Budget:            sessionContextBudget,
				IgnoreCheckpoints: sessionContextIgnoreCheckpoints,
			})
			return res, nil, err
		})
	},
}

func init() {
	sessionStartCmd.Flags().StringVar(&sessionStartTopic, "topic", "", "session topic")

	sessionLogCmd.Flags().StringVar(&sessionLogMessage, "message", "", "log entry message")
	sessionLogCmd.Flags().BoolVar(&sessionLogPin, "pin", false, "pin this entry for context assembly")
	sessionLogCmd.Flags().Float64Var(&sessionLogCost, "cost", 0, "cost to attribute to this entry")
	sessionLogCmd.Flags().StringSliceVar(&sessionLogReferences, "ref", nil, "referenced node ids")

	sessionCloseCmd.Flags().StringVar(&sessionCloseSummary, "summary", "", "session summary")

	sessionCostCmd.Flags().StringVar(&sessionCostID, "id", "", "session id (defaults to the active session)")
	sessionCostCmd.Flags().Float64Var(&sessionCostBudget, "budget", 0, "report remaining/over-budget against this budget")

	sessionContextCmd.Flags().StringVar(&sessionContextTopic, "topic", "", "topic to bias layers 2/3 toward")
	sessionContextCmd.Flags().IntVar(&sessionContextBudget, "budget", 0, "token budget (0 = config default)")
	sessionContextCmd.Flags().BoolVar(&sessionContextIgnoreCheckpoints, "ignore-checkpoints", false, "ignore pinned checkpoint entries")

	sessionCmd.AddCommand(sessionStartCmd, sessionLogCmd, sessionCloseCmd, sessionReopenCmd, sessionCostCmd, sessionContextCmd)
}
