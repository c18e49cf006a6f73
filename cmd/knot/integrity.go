package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/knotvault/knot/internal/integrity"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "read-only consistency and schema scan",
	Run: func(cmd *cobra.Command, args []string) {
		run("check", func(ctx context.Context) (any, []string, error) {
			a := openOrExit(ctx)
			defer a.Close()
			res, err := a.check.Check(ctx)
			return res, nil, err
		})
	},
}

var fixLevel string

var fixCmd = &cobra.Command{
	Use:   "fix",
	Short: "repair index-derivable issues found by check (backs up the index first)",
	Run: func(cmd *cobra.Command, args []string) {
		run("fix", func(ctx context.Context) (any, []string, error) {
			a := openOrExit(ctx)
			defer a.Close()
			res, err := a.check.Fix(ctx, integrity.FixLevel(fixLevel))
			return res, nil, err
		})
	},
}

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "rebuild the entire index from the files on disk (backs up the index first)",
	Run: func(cmd *cobra.Command, args []string) {
		run("rebuild", func(ctx context.Context) (any, []string, error) {
			a := openOrExit(ctx)
			defer a.Close()
			res, err := a.check.Rebuild(ctx)
			return res, nil, err
		})
	},
}

var rollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "restore the index from its latest timestamped backup",
	Run: func(cmd *cobra.Command, args []string) {
		run("rollback", func(ctx context.Context) (any, []string, error) {
			a := openOrExit(ctx)
			// Rollback replaces the index file out from under any live
			// connection, so the store must be closed first; the process
			// exits after rendering the result, so no reopen is needed here.
			if a.semantic != nil {
				_ = a.semantic.Close()
			}
			if err := a.store.Close(); err != nil {
				return nil, nil, err
			}
			res, err := a.check.Rollback(ctx)
			return res, nil, err
		})
	},
}

func init() {
	fixCmd.Flags().StringVar(&fixLevel, "level", string(integrity.FixSafe), "safe or aggressive")
}
