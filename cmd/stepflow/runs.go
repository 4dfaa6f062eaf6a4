package main

import (
	"encoding/json"
	"fmt"

	"github.com/aretw0/stepflow/internal/presentation/tui"
	"github.com/aretw0/stepflow/pkg/domain"
	"github.com/spf13/cobra"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect stored runs",
	Long: `List, show and remove run records. Records survive the process only with
a persistent store (store.kind file or redis).`,
}

var runsLsCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List stored runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		records, err := app.Sessions.Records(cmd.Context())
		if err != nil {
			return err
		}
		if name, _ := cmd.Flags().GetString("graph"); name != "" {
			filtered := records[:0]
			for _, rec := range records {
				if rec.Graph == name {
					filtered = append(filtered, rec)
				}
			}
			records = filtered
		}
		if len(records) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No runs found.")
			return nil
		}
		return tui.NewPrinter(cmd.OutOrStdout()).Markdown(tui.RunsMarkdown(records))
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show the state and trace of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		rec, err := app.Sessions.Load(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return printJSON(cmd, rec)
		}
		tui.NewPrinter(cmd.OutOrStdout()).Report(rec)
		return nil
	},
}

var runsRmCmd = &cobra.Command{
	Use:   "rm <run-id>...",
	Short: "Remove one or more runs",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		failed := false
		for _, id := range args {
			if err := app.Sessions.Delete(cmd.Context(), id); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Error removing '%s': %v\n", id, err)
				failed = true
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed run '%s'\n", id)
		}
		if failed {
			return errReported
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.AddCommand(runsLsCmd, runsShowCmd, runsRmCmd)

	runsLsCmd.Flags().String("graph", "", "Only list runs of this graph")
	runsShowCmd.Flags().Bool("json", false, "Print the record as JSON")
}

func printJSON(cmd *cobra.Command, rec *domain.RunRecord) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(rec)
}
