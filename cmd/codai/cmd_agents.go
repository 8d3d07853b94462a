package main

import (
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/codai-ecosystem/codai/core"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	badStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// formatAgentsTable renders agent statuses sorted by id.
func formatAgentsTable(statuses map[string]core.AgentStatus) string {
	if len(statuses) == 0 {
		return "No agents registered.\n"
	}

	ids := make([]string, 0, len(statuses))
	for id := range statuses {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	cell := func(s lipgloss.Style, width int, v string) string { return s.Width(width).Render(v) }

	var b strings.Builder
	b.WriteString(cell(headerStyle, 12, "AGENT"))
	b.WriteString(cell(headerStyle, 11, "AVAILABLE"))
	b.WriteString(cell(headerStyle, 11, "COMPLETED"))
	b.WriteString(headerStyle.Render("CAPABILITIES"))
	b.WriteString("\n")

	for _, id := range ids {
		st := statuses[id]

		avail := cell(okStyle, 11, "yes")
		switch {
		case !st.IsEnabled:
			avail = cell(badStyle, 11, "disabled")
		case !st.IsHealthy:
			avail = cell(badStyle, 11, "unhealthy")
		}

		b.WriteString(cell(lipgloss.NewStyle(), 12, id))
		b.WriteString(avail)
		b.WriteString(cell(lipgloss.NewStyle(), 11, fmt.Sprint(st.TotalTasksCompleted)))
		b.WriteString(mutedStyle.Render(strings.Join(st.Capabilities, ", ")))
		b.WriteString("\n")
	}

	return b.String()
}

// newAgentsCmd creates the "codai agents" subcommand.
func newAgentsCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "agents",
		Short: "List registered agents and their status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, _, closeApp, err := openApp(cmd.Context(), cmd, flags)
			if err != nil {
				return err
			}
			defer closeApp()

			fmt.Fprint(cmd.OutOrStdout(), formatAgentsTable(app.ListAgentStatuses()))
			return nil
		},
	}
}
