package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate <path>...",
	Short: "Compile workflows and report problems",
	Long: `Compiles every workflow document under the given paths. Compilation checks
step references, edge targets, routing ambiguity, reachability of the end
marker and merge conflicts. Non-fatal findings are printed as warnings.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		out := cmd.OutOrStdout()
		failed := false
		for _, path := range args {
			graphs, err := app.LoadWorkflows(path)
			if err != nil {
				fmt.Fprintf(out, "✗ %s\n  %v\n", path, err)
				failed = true
				continue
			}
			for _, g := range graphs {
				fmt.Fprintf(out, "✓ %s (%d nodes, entry %s)\n", g.Name(), len(g.Nodes()), g.Entry())
				for _, w := range g.Warnings() {
					fmt.Fprintf(out, "  warning: %s\n", w)
				}
			}
		}
		if failed {
			return errReported
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
