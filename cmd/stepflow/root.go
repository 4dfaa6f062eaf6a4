package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/aretw0/stepflow/internal/cli"
	"github.com/aretw0/stepflow/internal/config"
	"github.com/spf13/cobra"
)

// errReported is returned by commands that already printed their failure.
var errReported = errors.New("reported")

var rootCmd = &cobra.Command{
	Use:   "stepflow",
	Short: "Stepflow runs declarative workflow graphs",
	Long: `Stepflow compiles workflow documents into validated graphs of named steps
and executes them with typed state, bounded loops and a full execution trace.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Config file (defaults to ./stepflow.yaml when present)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level override (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("store", "", "Run store override (memory, file, redis)")
}

// loadConfig reads the config file named by --config and applies flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		if _, err := os.Stat("stepflow.yaml"); err == nil {
			path = "stepflow.yaml"
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Log.Level = level
	}
	if store, _ := cmd.Flags().GetString("store"); store != "" {
		cfg.Store.Kind = store
	}
	return cfg, cfg.Validate()
}

// newApp builds the application for one command invocation. Callers must Close it.
func newApp(cmd *cobra.Command) (*cli.App, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger, err := cli.NewLogger(cfg.Log)
	if err != nil {
		return nil, err
	}
	return cli.NewApp(cfg, logger)
}
