package main

import (
	"fmt"

	"github.com/aretw0/stepflow/internal/presentation/graph"
	"github.com/spf13/cobra"
)

var graphCmd = &cobra.Command{
	Use:   "graph <workflow>",
	Short: "Export the workflow as a Mermaid diagram",
	Long: `Prints a Mermaid flowchart of the compiled graph. With --trace the nodes
visited by a stored run are highlighted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		graphs, err := app.LoadWorkflows(args[0])
		if err != nil {
			return err
		}
		name, _ := cmd.Flags().GetString("graph")
		g, err := pickGraph(graphs, name)
		if err != nil {
			return err
		}

		var overlay *graph.Overlay
		if runID, _ := cmd.Flags().GetString("trace"); runID != "" {
			rec, err := app.Sessions.Load(cmd.Context(), runID)
			if err != nil {
				return err
			}
			if rec.Graph != g.Name() {
				return fmt.Errorf("run %s belongs to graph %q, not %q", runID, rec.Graph, g.Name())
			}
			overlay = graph.OverlayFromRecord(rec)
		}

		fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(g, overlay))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().String("graph", "", "Graph to render when the path holds several workflows")
	graphCmd.Flags().String("trace", "", "Highlight the path taken by a stored run")
}
