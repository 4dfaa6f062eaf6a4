// Package process runs allow-listed local programs on behalf of workflow steps.
package process

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sort"
	"strings"

	"github.com/aretw0/stepflow/pkg/domain"
)

// ArgPrefix prefixes the environment variables carrying step arguments.
const ArgPrefix = "STEPFLOW_ARG_"

// Runner executes registered commands only. Arguments never reach the command
// line; they are passed as STEPFLOW_ARG_<NAME> environment variables.
type Runner struct {
	commands map[string]Command
	baseDir  string
}

// RunnerOption configures the runner.
type RunnerOption func(*Runner)

// WithCommands populates the allow-list.
func WithCommands(commands map[string]Command) RunnerOption {
	return func(r *Runner) {
		for name, c := range commands {
			c.Name = name
			r.commands[name] = c
		}
	}
}

// WithBaseDir sets the working directory of executed processes.
func WithBaseDir(dir string) RunnerOption {
	return func(r *Runner) {
		r.baseDir = dir
	}
}

// NewRunner creates a runner with an empty allow-list.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		commands: make(map[string]Command),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a trusted command to the allow-list.
func (r *Runner) Register(name string, command string, args ...string) {
	r.commands[name] = Command{Name: name, Command: command, Args: args}
}

// Names returns the registered command names in sorted order.
func (r *Runner) Names() []string {
	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run executes the named command and returns its output. Output that parses
// as a JSON object or array is returned decoded; anything else is returned as
// trimmed text. A non-zero exit is an error carrying stderr.
func (r *Runner) Run(ctx context.Context, name string, args map[string]any) (any, error) {
	c, ok := r.commands[name]
	if !ok {
		return nil, &domain.NotFoundError{Kind: "command", Name: name, Available: r.Names()}
	}

	cmd := exec.CommandContext(ctx, c.Command, c.Args...)
	cmd.Dir = r.baseDir
	cmd.Env = cmd.Environ()
	for k, v := range c.Environment {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	for k, v := range args {
		cmd.Env = append(cmd.Env, ArgPrefix+strings.ToUpper(k)+"="+envValue(v))
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("command %q: %w: %s", name, err, msg)
		}
		return nil, fmt.Errorf("command %q: %w", name, err)
	}
	return parseOutput(stdout.String()), nil
}

// envValue renders scalars as text and everything else as JSON.
func envValue(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case int, int64, float64, bool:
		return fmt.Sprint(v)
	}
	if data, err := json.Marshal(v); err == nil {
		return string(data)
	}
	return fmt.Sprint(v)
}

func parseOutput(out string) any {
	trimmed := strings.TrimSpace(out)
	if (strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}")) ||
		(strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]")) {
		var decoded any
		if err := json.Unmarshal([]byte(trimmed), &decoded); err == nil {
			return decoded
		}
	}
	return trimmed
}
