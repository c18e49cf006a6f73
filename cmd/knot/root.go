package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/knotvault/knot/internal/obs"
)

var (
	rootFlag    string
	jsonOutput  bool
	quietFlag   bool
	verboseFlag bool
	syncFlag    bool
)

func logger() *zap.Logger {
	if verboseFlag {
		return obs.NewDevelopment()
	}
	return obs.NewProduction()
}

var rootCmd = &cobra.Command{
	Use:   "knot",
	Short: "knot - local knowledge-management engine",
	Long:  "A local, single-user knowledge-management engine over a directory of Markdown files with a derived SQLite index, reweave-based auto-linking, and agent context assembly.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootFlag, "root", ".", "vault root directory")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "render results as JSON")
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "suppress non-essential output")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "enable verbose logging and telemetry capture")
	rootCmd.PersistentFlags().BoolVar(&syncFlag, "sync", false, "dispatch hooks synchronously for this invocation (spec.md §4.9)")

	rootCmd.AddCommand(initCmd, createCmd, updateCmd, archiveCmd, supersedeCmd)
	rootCmd.AddCommand(searchCmd, getCmd, listCmd, workqueueCmd, decisionsCmd)
	rootCmd.AddCommand(relatedCmd, rankCmd, pathCmd, bridgesCmd, gapsCmd, themesCmd, unlinkCmd, reweaveCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(checkCmd, fixCmd, rebuildCmd, rollbackCmd)
	rootCmd.AddCommand(watchCmd)
}
