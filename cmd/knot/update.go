package main

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/knotvault/knot/internal/content"
)

var (
	updateTitle, updateStatus, updateMaturity, updateTopic, updateURL string
	updateTagsCSV, updateAliasesCSV, updateNotes                     string
)

var updateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "update fields on an existing node",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := args[0]
		changes := content.ChangeSet{}
		if cmd.Flags().Changed("title") {
			changes["title"] = updateTitle
		}
		if cmd.Flags().Changed("status") {
			changes["status"] = updateStatus
		}
		if cmd.Flags().Changed("maturity") {
			changes["maturity"] = updateMaturity
		}
		if cmd.Flags().Changed("topic") {
			changes["topic"] = updateTopic
		}
		if cmd.Flags().Changed("url") {
			changes["url"] = updateURL
		}
		if cmd.Flags().Changed("tags") {
			changes["tags"] = strings.Split(updateTagsCSV, ",")
		}
		if cmd.Flags().Changed("aliases") {
			changes["aliases"] = strings.Split(updateAliasesCSV, ",")
		}
		if cmd.Flags().Changed("notes") {
			changes["notes"] = updateNotes
		}
		run("update", func(ctx context.Context) (any, []string, error) {
			a := openOrExit(ctx)
			defer a.Close()
			return a.vault.Update(ctx, id, changes)
		})
	},
}

var archiveCmd = &cobra.Command{
	Use:   "archive <id>",
	Short: "archive a node",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := args[0]
		run("archive", func(ctx context.Context) (any, []string, error) {
			a := openOrExit(ctx)
			defer a.Close()
			return a.vault.Archive(ctx, id)
		})
	},
}

var supersedeCmd = &cobra.Command{
	Use:   "supersede <old-id> <new-id>",
	Short: "mark a node superseded by another",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		oldID, newID := args[0], args[1]
		run("supersede", func(ctx context.Context) (any, []string, error) {
			a := openOrExit(ctx)
			defer a.Close()
			return a.vault.Supersede(ctx, oldID, newID)
		})
	},
}

func init() {
	updateCmd.Flags().StringVar(&updateTitle, "title", "", "new title")
	updateCmd.Flags().StringVar(&updateStatus, "status", "", "new status")
	updateCmd.Flags().StringVar(&updateMaturity, "maturity", "", "new maturity")
	updateCmd.Flags().StringVar(&updateTopic, "topic", "", "new topic")
	updateCmd.Flags().StringVar(&updateURL, "url", "", "new URL")
	updateCmd.Flags().StringVar(&updateTagsCSV, "tags", "", "comma-separated replacement tags")
	updateCmd.Flags().StringVar(&updateAliasesCSV, "aliases", "", "comma-separated replacement aliases")
	updateCmd.Flags().StringVar(&updateNotes, "notes", "", "free-text note appended to the body (decision iteration before acceptance)")
}
