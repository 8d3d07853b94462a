package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/codai-ecosystem/codai/router"
)

// formatHistory renders history entries one per line.
func formatHistory(entries []router.HistoryEntry) string {
	if len(entries) == 0 {
		return "No history recorded.\n"
	}

	var b strings.Builder
	for _, e := range entries {
		who := e.Role
		if e.Agent != "" && e.Role != "user" {
			who = e.Role + "/" + e.Agent
		}
		fmt.Fprintf(&b, "%s  %-20s %s\n", e.Timestamp.Format(time.RFC3339), who, strings.ReplaceAll(e.Content, "\n", " "))
	}
	return b.String()
}

// newHistoryCmd creates the "codai history" subcommand.
func newHistoryCmd(flags *globalFlags) *cobra.Command {
	var (
		conversationID string
		asJSON         bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the conversation history recorded in the graph",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, _, closeApp, err := openApp(cmd.Context(), cmd, flags)
			if err != nil {
				return err
			}
			defer closeApp()

			entries := app.ExportHistory(conversationID)
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}

			fmt.Fprint(cmd.OutOrStdout(), formatHistory(entries))
			return nil
		},
	}

	cmd.Flags().StringVar(&conversationID, "conversation", "", "conversation id (all conversations when empty)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print entries as JSON")

	return cmd
}
