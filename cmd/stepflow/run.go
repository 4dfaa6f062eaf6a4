package main

import (
	"fmt"
	"maps"
	"time"

	"github.com/aretw0/stepflow/internal/cli"
	"github.com/aretw0/stepflow/internal/presentation/tui"
	"github.com/aretw0/stepflow/pkg/graph"
	"github.com/aretw0/stepflow/pkg/runner"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run <workflow>",
	Short: "Execute a workflow",
	Long: `Loads a workflow document (or a directory of them, together with --graph),
runs it to completion and prints the final state and the execution trace.

Initial state comes from --input (JSON or YAML, "-" for stdin) and --set
key=value pairs, which win over the input file.`,
	Args: cobra.ExactArgs(1),
	RunE: runWorkflow,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("graph", "", "Graph to run when the path holds several workflows")
	runCmd.Flags().StringP("input", "i", "", "Initial state file (JSON or YAML, - for stdin)")
	runCmd.Flags().StringArrayP("set", "s", nil, "Initial field value as key=value (repeatable)")
	runCmd.Flags().Int("max-steps", 0, "Maximum step invocations (overrides run.max_steps)")
	runCmd.Flags().Duration("timeout", 0, "Run deadline (overrides run.timeout)")
	runCmd.Flags().String("run-id", "", "Run identifier (generated when empty)")
	runCmd.Flags().Bool("json", false, "Print the run record as JSON")
}

func runWorkflow(cmd *cobra.Command, args []string) error {
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

	initial := map[string]any{}
	if path, _ := cmd.Flags().GetString("input"); path != "" {
		values, err := cli.ReadInput(path)
		if err != nil {
			return err
		}
		maps.Copy(initial, values)
	}
	sets, _ := cmd.Flags().GetStringArray("set")
	values, err := cli.ParseSets(sets)
	if err != nil {
		return err
	}
	maps.Copy(initial, values)

	opts := app.RunOptions()
	if cmd.Flags().Changed("max-steps") {
		opts.MaxSteps, _ = cmd.Flags().GetInt("max-steps")
	}
	if cmd.Flags().Changed("timeout") {
		opts.Timeout, _ = cmd.Flags().GetDuration("timeout")
	}
	opts.RunID, _ = cmd.Flags().GetString("run-id")

	signals := runner.NewSignalManager(cmd.Context())
	defer signals.Stop()

	report, runErr := app.Run(signals.Context(), g, initial, opts)
	if report == nil || report.Record == nil {
		return runErr
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		if err := printJSON(cmd, report.Record); err != nil {
			return err
		}
	} else {
		tui.NewPrinter(cmd.OutOrStdout()).Report(report.Record)
	}

	if signals.Interrupted() {
		fmt.Fprintf(cmd.ErrOrStderr(), "\ninterrupted after %s\n", time.Since(report.Record.StartedAt).Round(time.Millisecond))
	}
	if runErr != nil {
		return errReported
	}
	return nil
}

func pickGraph(graphs []*graph.Compiled, name string) (*graph.Compiled, error) {
	if name == "" {
		if len(graphs) > 1 {
			names := make([]string, len(graphs))
			for i, g := range graphs {
				names[i] = g.Name()
			}
			return nil, fmt.Errorf("%d workflows found, choose one with --graph (%v)", len(graphs), names)
		}
		return graphs[0], nil
	}
	for _, g := range graphs {
		if g.Name() == name {
			return g, nil
		}
	}
	return nil, fmt.Errorf("graph %q not found", name)
}
