package main

import (
	"errors"
	"fmt"

	mcpadapter "github.com/aretw0/stepflow/pkg/adapters/mcp"
	"github.com/aretw0/stepflow/pkg/runner"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp [path]...",
	Short: "Serve workflows as Model Context Protocol tools",
	Long: `Exposes the loaded workflows to MCP clients. Tools: list_graphs,
describe_graph, list_steps, run_graph and get_run.

The stdio transport reserves stdout for the protocol; logs go to stderr.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		paths, err := workflowPaths(app.Config.Workflows, args)
		if err != nil {
			return err
		}
		graphs, err := app.LoadWorkflows(paths...)
		if err != nil {
			return err
		}

		srv := mcpadapter.NewServer(app.Engine, app.Runner,
			mcpadapter.WithSessions(app.Sessions),
			mcpadapter.WithRunDefaults(app.RunOptions()),
			mcpadapter.WithLogger(app.Logger),
		)

		transport, _ := cmd.Flags().GetString("transport")
		app.Logger.Info("serving MCP", "transport", transport, "graphs", len(graphs))

		switch transport {
		case "stdio":
			return srv.ServeStdio()
		case "sse":
			addr, _ := cmd.Flags().GetString("addr")
			baseURL, _ := cmd.Flags().GetString("base-url")
			if baseURL == "" {
				baseURL = "http://localhost" + addr
			}
			signals := runner.NewSignalManager(cmd.Context())
			defer signals.Stop()
			return srv.ServeSSE(signals.Context(), addr, baseURL)
		default:
			return fmt.Errorf("unknown transport %q (want stdio or sse)", transport)
		}
	},
}

// workflowPaths falls back to the configured workflows directory.
func workflowPaths(configured string, args []string) ([]string, error) {
	switch {
	case len(args) > 0:
		return args, nil
	case configured != "":
		return []string{configured}, nil
	}
	return nil, errors.New("no workflows given and workflows is not configured")
}

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().StringP("transport", "t", "stdio", "Transport: stdio or sse")
	mcpCmd.Flags().StringP("addr", "a", ":8081", "Address to listen on (sse)")
	mcpCmd.Flags().String("base-url", "", "Public base URL advertised to SSE clients")
}
