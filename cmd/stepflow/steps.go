package main

import (
	"slices"

	"github.com/aretw0/stepflow/internal/presentation/tui"
	"github.com/spf13/cobra"
)

var stepsCmd = &cobra.Command{
	Use:   "steps",
	Short: "List the registered steps and routers",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		category, _ := cmd.Flags().GetString("category")
		entries := slices.Collect(app.Engine.Registry().List(category))
		return tui.NewPrinter(cmd.OutOrStdout()).Markdown(tui.StepsMarkdown(entries))
	},
}

func init() {
	rootCmd.AddCommand(stepsCmd)
	stepsCmd.Flags().String("category", "", "Only list entries of this category")
}
