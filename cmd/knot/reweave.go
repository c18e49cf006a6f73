package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/knotvault/knot/internal/apperr"
	"github.com/knotvault/knot/internal/reweave"
)

var (
	reweaveMode      string
	reweaveThreshold float64
	reweaveLogID     string
)

var reweaveCmd = &cobra.Command{
	Use:   "reweave [<id>]",
	Short: "score, apply, prune, or undo auto-link suggestions for a node",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var id string
		if len(args) == 1 {
			id = args[0]
		}
		mode := reweave.Mode(reweaveMode)
		opts := reweave.Options{Mode: mode, LogID: reweaveLogID}
		if cmd.Flags().Changed("threshold") {
			opts.Threshold = &reweaveThreshold
		}
		run("reweave", func(ctx context.Context) (any, []string, error) {
			a := openOrExit(ctx)
			defer a.Close()
			if mode == reweave.ModeUndo {
				if reweaveLogID == "" {
					return nil, nil, apperr.New(apperr.InvalidFormat, "--log-id is required for mode=undo")
				}
			} else if id == "" {
				return nil, nil, apperr.New(apperr.InvalidFormat, "a target id is required unless mode=undo")
			}
			res, err := a.reweave.Reweave(ctx, id, opts)
			return res, nil, err
		})
	},
}

func init() {
	reweaveCmd.Flags().StringVar(&reweaveMode, "mode", "default", "default, dry_run, prune, or undo")
	reweaveCmd.Flags().Float64Var(&reweaveThreshold, "threshold", 0, "per-call score threshold override")
	reweaveCmd.Flags().StringVar(&reweaveLogID, "log-id", "", "reweave log entry id (required for mode=undo)")
}
