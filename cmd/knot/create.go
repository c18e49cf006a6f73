package main

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/knotvault/knot/internal/content"
	"github.com/knotvault/knot/internal/vaultcore"
)

var createIn vaultcore.CreateInput
var createTagsCSV, createKeyPointsCSV string
var createPriority, createImpact, createEffort int

var createCmd = &cobra.Command{
	Use:   "create <type> <title>",
	Short: "create a new node (note, reference, task, or log)",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		createIn.Type = content.Type(args[0])
		createIn.Title = args[1]
		if createTagsCSV != "" {
			createIn.Tags = strings.Split(createTagsCSV, ",")
		}
		if createKeyPointsCSV != "" {
			createIn.KeyPoints = strings.Split(createKeyPointsCSV, ",")
		}
		if createPriority >= 0 {
			createIn.Priority = &createPriority
		}
		if createImpact >= 0 {
			createIn.Impact = &createImpact
		}
		if createEffort >= 0 {
			createIn.Effort = &createEffort
		}
		run("create", func(ctx context.Context) (any, []string, error) {
			a := openOrExit(ctx)
			defer a.Close()
			node, warnings, err := a.vault.Create(ctx, createIn)
			return node, warnings, err
		})
	},
}

func init() {
	createCmd.Flags().StringVar(&createIn.Subtype, "subtype", "", "content subtype (e.g. decision, knowledge)")
	createCmd.Flags().StringVar(&createTagsCSV, "tags", "", "comma-separated tags")
	createCmd.Flags().StringVar(&createIn.Topic, "topic", "", "topic subdirectory")
	createCmd.Flags().StringVar(&createIn.URL, "url", "", "source URL (references)")
	createCmd.Flags().StringVar((*string)(&createIn.Maturity), "maturity", "", "garden maturity (seed, budding, evergreen)")
	createCmd.Flags().StringVar(&createIn.Session, "session", "", "session id to log this create under")
	createCmd.Flags().StringVar(&createKeyPointsCSV, "key-points", "", "comma-separated key points")
	createCmd.Flags().IntVar(&createPriority, "priority", -1, "priority (tasks)")
	createCmd.Flags().IntVar(&createImpact, "impact", -1, "impact (tasks)")
	createCmd.Flags().IntVar(&createEffort, "effort", -1, "effort (tasks)")
}
