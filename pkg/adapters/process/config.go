package process

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Command is an allow-listed local program the run_command step may execute.
type Command struct {
	Name        string            `yaml:"name" json:"name"`
	Command     string            `yaml:"command" json:"command"`
	Args        []string          `yaml:"args" json:"args"`
	Environment map[string]string `yaml:"env" json:"env"`
	Description string            `yaml:"description" json:"description"`
}

// ConfigFile is the layout of a commands file.
type ConfigFile struct {
	Commands []Command `yaml:"commands" json:"commands"`
}

// LoadCommands reads a commands file (YAML, or JSON by extension) keyed by command name.
func LoadCommands(path string) (map[string]Command, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read commands: %w", err)
	}

	var cfg ConfigFile
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		err = json.Unmarshal(data, &cfg)
	} else {
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}

	commands := make(map[string]Command, len(cfg.Commands))
	for i, c := range cfg.Commands {
		if c.Name == "" || c.Command == "" {
			return nil, fmt.Errorf("commands[%d]: name and command are required", i)
		}
		if _, dup := commands[c.Name]; dup {
			return nil, fmt.Errorf("commands[%d]: duplicate name %q", i, c.Name)
		}
		commands[c.Name] = c
	}
	return commands, nil
}
