package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aretw0/stepflow"
	"github.com/aretw0/stepflow/internal/presentation/tui"
	httpadapter "github.com/aretw0/stepflow/pkg/adapters/http"
	"github.com/aretw0/stepflow/pkg/runner"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve [path]...",
	Short: "Start the HTTP service",
	Long: `Loads the given workflows (or the configured workflows directory) and serves
them over HTTP: graph inspection, run submission, run history, live step
events and Prometheus metrics.`,
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

		addr := app.Config.Server.Addr
		if cmd.Flags().Changed("addr") {
			addr, _ = cmd.Flags().GetString("addr")
		}

		opts := []httpadapter.Option{
			httpadapter.WithSessions(app.Sessions),
			httpadapter.WithRunDefaults(app.RunOptions()),
			httpadapter.WithLogger(app.Logger),
		}
		if app.Config.Server.Metrics {
			opts = append(opts, httpadapter.WithGatherer(app.Metrics))
		}
		srv := &http.Server{
			Addr:              addr,
			Handler:           httpadapter.NewHandler(app.Engine, app.Runner, opts...),
			ReadHeaderTimeout: 10 * time.Second,
		}

		printer := tui.NewPrinter(cmd.ErrOrStderr())
		printer.Banner(stepflow.Version)
		app.Logger.Info("serving workflows", "addr", addr, "graphs", len(graphs))

		signals := runner.NewSignalManager(cmd.Context())
		defer signals.Stop()

		serverErrors := make(chan error, 1)
		go func() {
			serverErrors <- srv.ListenAndServe()
		}()

		select {
		case err := <-serverErrors:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("server error: %w", err)
		case <-signals.Context().Done():
			app.Logger.Info("shutting down")
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				app.Logger.Error("graceful shutdown did not complete", "timeout", shutdownTimeout, "err", err)
				return srv.Close()
			}
			app.Logger.Info("server stopped")
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("addr", "a", ":8080", "Address to listen on (overrides server.addr)")
}
