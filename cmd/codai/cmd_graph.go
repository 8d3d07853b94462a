package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// newGraphCmd creates the "codai graph" command group.
func newGraphCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Inspect and transfer the knowledge graph",
	}

	cmd.AddCommand(newGraphExportCmd(flags), newGraphImportCmd(flags), newGraphStatsCmd(flags))

	return cmd
}

func newGraphExportCmd(flags *globalFlags) *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the graph snapshot as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, _, closeApp, err := openApp(cmd.Context(), cmd, flags)
			if err != nil {
				return err
			}
			defer closeApp()

			data, err := app.ExportGraph()
			if err != nil {
				return fmt.Errorf("graph export: %w", err)
			}

			if outPath == "" {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return err
			}

			return os.WriteFile(outPath, data, 0o644)
		},
	}

	cmd.Flags().StringVarP(&outPath, "out", "o", "", "write to file instead of stdout")

	return cmd
}

func newGraphImportCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Replace the graph with a JSON snapshot",
		Long:  "Replaces the stored graph with the snapshot in <file>. Only useful with\na persistent storage driver.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			app, _, closeApp, err := openApp(cmd.Context(), cmd, flags)
			if err != nil {
				return err
			}
			defer closeApp()

			if err := app.ImportGraph(cmd.Context(), data); err != nil {
				return fmt.Errorf("graph import: %w", err)
			}

			st := app.Graph().Stats()
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d nodes and %d edges.\n", st.Nodes, st.Edges)
			return nil
		},
	}
}

func newGraphStatsCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print node and edge counts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, _, closeApp, err := openApp(cmd.Context(), cmd, flags)
			if err != nil {
				return err
			}
			defer closeApp()

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(app.Graph().Stats())
		},
	}
}
