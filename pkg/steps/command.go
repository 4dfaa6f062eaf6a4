package steps

import (
	"context"
	"errors"
	"fmt"

	"github.com/aretw0/stepflow/pkg/domain"
	"github.com/aretw0/stepflow/pkg/registry"
	"github.com/aretw0/stepflow/pkg/trace"
)

// CommandRunner executes allow-listed commands by name.
type CommandRunner interface {
	Run(ctx context.Context, name string, args map[string]any) (any, error)
}

// RunCommand executes an allow-listed command with the listed state fields as
// arguments and writes its output to one field. Unset argument fields are skipped.
// The node must declare the output field in its writes.
//
//	config: {command: name, args: [field, ...], output: "output"}
func RunCommand(runner CommandRunner) registry.StepFunc {
	return func(ctx context.Context, state domain.View, cfg registry.Config) (domain.Update, error) {
		if runner == nil {
			return nil, fmt.Errorf("run_command: %w: command runner", ErrMissingDependency)
		}
		opts := struct {
			Command string   `mapstructure:"command"`
			Args    []string `mapstructure:"args"`
			Output  string   `mapstructure:"output"`
		}{Output: "output"}
		if err := cfg.Decode(&opts); err != nil {
			return nil, err
		}
		if opts.Command == "" {
			return nil, errors.New("run_command: command is required")
		}

		args := make(map[string]any, len(opts.Args))
		for _, name := range opts.Args {
			if v, ok := state.Lookup(name); ok {
				args[name] = v
			}
		}
		out, err := runner.Run(ctx, opts.Command, args)
		if err != nil {
			return nil, err
		}
		trace.Report(ctx, "command", opts.Command)
		return domain.Update{opts.Output: out}, nil
	}
}
