package workflow

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aretw0/stepflow/pkg/domain"
	"github.com/aretw0/stepflow/pkg/graph"
	"github.com/aretw0/stepflow/pkg/registry"
	"github.com/aretw0/stepflow/pkg/schema"
	"gopkg.in/yaml.v3"
)

// Document is the declarative form of a graph. JSON documents are accepted
// as well, since JSON is valid YAML.
type Document struct {
	Name        string     `yaml:"name" json:"name"`
	Description string     `yaml:"description,omitempty" json:"description,omitempty"`
	Entry       string     `yaml:"entry" json:"entry"`
	Fields      FieldSpecs `yaml:"fields" json:"fields"`
	Nodes       NodeSpecs  `yaml:"nodes" json:"nodes"`
}

// FieldSpec declares one state field.
type FieldSpec struct {
	Name        string `yaml:"-" json:"name"`
	Type        string `yaml:"type" json:"type"`
	Merge       string `yaml:"merge,omitempty" json:"merge,omitempty"`
	Default     any    `yaml:"default,omitempty" json:"default,omitempty"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// NodeSpec declares one node and its outgoing edge.
type NodeSpec struct {
	Name        string         `yaml:"-" json:"name"`
	Step        string         `yaml:"step" json:"step"`
	Description string         `yaml:"description,omitempty" json:"description,omitempty"`
	Config      map[string]any `yaml:"config,omitempty" json:"config,omitempty"`
	Writes      []string       `yaml:"writes,omitempty" json:"writes,omitempty"`
	Timeout     string         `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	Next        string         `yaml:"next,omitempty" json:"next,omitempty"`
	Terminal    bool           `yaml:"terminal,omitempty" json:"terminal,omitempty"`
	Route       *RouteSpec     `yaml:"route,omitempty" json:"route,omitempty"`
}

// RouteSpec is a conditional edge: router step plus label to target map.
type RouteSpec struct {
	Router string            `yaml:"router" json:"router"`
	Config map[string]any    `yaml:"config,omitempty" json:"config,omitempty"`
	Labels map[string]string `yaml:"labels" json:"labels"`
}

// FieldSpecs keeps declaration order of the `fields` mapping.
type FieldSpecs []FieldSpec

func (f *FieldSpecs) UnmarshalYAML(value *yaml.Node) error {
	return decodeOrdered(value, "fields", func(name string, node *yaml.Node) error {
		var spec FieldSpec
		if err := node.Decode(&spec); err != nil {
			return err
		}
		spec.Name = name
		*f = append(*f, spec)
		return nil
	})
}

// NodeSpecs keeps declaration order of the `nodes` mapping.
type NodeSpecs []NodeSpec

func (n *NodeSpecs) UnmarshalYAML(value *yaml.Node) error {
	return decodeOrdered(value, "nodes", func(name string, node *yaml.Node) error {
		var spec NodeSpec
		if err := node.Decode(&spec); err != nil {
			return err
		}
		spec.Name = name
		*n = append(*n, spec)
		return nil
	})
}

func decodeOrdered(value *yaml.Node, what string, each func(name string, node *yaml.Node) error) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: %s must be a mapping of name to definition", value.Line, what)
	}
	for i := 0; i+1 < len(value.Content); i += 2 {
		key, body := value.Content[i], value.Content[i+1]
		if err := each(key.Value, body); err != nil {
			return fmt.Errorf("%s %q: %w", what, key.Value, err)
		}
	}
	return nil
}

// Parse decodes a YAML or JSON document. Unknown keys are rejected.
func Parse(data []byte) (*Document, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty workflow document")
		}
		return nil, fmt.Errorf("failed to parse workflow: %w", err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Load reads and parses a document file.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow: %w", err)
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if doc.Name == "" {
		doc.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return doc, nil
}

// LoadDir loads every .yaml, .yml and .json file in dir, sorted by file name.
func LoadDir(dir string) ([]*Document, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow directory: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml", ".json":
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	docs := make([]*Document, 0, len(names))
	for _, name := range names {
		doc, err := Load(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Validate checks the document shape. Graph semantics are checked by Compile.
func (d *Document) Validate() error {
	var errs []error
	if d.Entry == "" {
		errs = append(errs, fmt.Errorf("entry is required"))
	}
	if len(d.Nodes) == 0 {
		errs = append(errs, fmt.Errorf("at least one node is required"))
	}
	for _, n := range d.Nodes {
		if n.Step == "" {
			errs = append(errs, fmt.Errorf("node %q: step is required", n.Name))
		}
		exits := 0
		if n.Next != "" {
			exits++
		}
		if n.Terminal {
			exits++
		}
		if n.Route != nil {
			exits++
			if n.Route.Router == "" {
				errs = append(errs, fmt.Errorf("node %q: route.router is required", n.Name))
			}
		}
		if exits > 1 {
			errs = append(errs, fmt.Errorf("node %q: next, terminal and route are mutually exclusive", n.Name))
		}
		if n.Timeout != "" {
			if _, err := time.ParseDuration(n.Timeout); err != nil {
				errs = append(errs, fmt.Errorf("node %q: invalid timeout: %w", n.Name, err))
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid workflow %q: %w", d.Name, errors.Join(errs...))
	}
	return nil
}

// Schema builds the state schema from the field declarations.
func (d *Document) Schema() (*domain.Schema, error) {
	fields := make([]domain.Field, 0, len(d.Fields))
	for _, f := range d.Fields {
		typ := schema.Any()
		if f.Type != "" {
			t, err := schema.ParseType(f.Type)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", f.Name, err)
			}
			typ = t
		}
		policy, err := domain.LookupPolicy(f.Merge)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
		fields = append(fields, domain.Field{Name: f.Name, Type: typ, Policy: policy, Default: f.Default})
	}
	return domain.NewSchema(fields...)
}

// Definition converts the document into a graph definition ready to compile.
func (d *Document) Definition() (*graph.Definition, error) {
	s, err := d.Schema()
	if err != nil {
		return nil, fmt.Errorf("workflow %q: %w", d.Name, err)
	}

	def := graph.New(d.Name, s)
	for _, n := range d.Nodes {
		opts := []graph.NodeOption{
			graph.WithConfig(registry.Config(n.Config)),
			graph.WithDescription(n.Description),
		}
		if n.Writes != nil {
			opts = append(opts, graph.WithWrites(n.Writes...))
		}
		if n.Timeout != "" {
			timeout, err := time.ParseDuration(n.Timeout)
			if err != nil {
				return nil, fmt.Errorf("node %q: invalid timeout: %w", n.Name, err)
			}
			opts = append(opts, graph.WithTimeout(timeout))
		}
		def.AddNode(n.Name, n.Step, opts...)

		switch {
		case n.Terminal:
			def.MarkTerminal(n.Name)
		case n.Next != "":
			def.AddEdge(n.Name, n.Next)
		case n.Route != nil:
			def.AddConditionalEdge(n.Name, n.Route.Router, n.Route.Labels,
				graph.WithRouterConfig(registry.Config(n.Route.Config)))
		}
	}
	def.SetEntry(d.Entry)
	return def, nil
}

// Compile is Definition followed by graph compilation.
func (d *Document) Compile(reg graph.Resolver, opts ...graph.CompileOption) (*graph.Compiled, error) {
	def, err := d.Definition()
	if err != nil {
		return nil, err
	}
	return def.Compile(reg, opts...)
}
