package dsl

import (
	"errors"
	"fmt"

	"github.com/aretw0/stepflow/pkg/domain"
	"github.com/aretw0/stepflow/pkg/graph"
	"github.com/aretw0/stepflow/pkg/schema"
)

// End is the terminal marker accepted by Go and When.
const End = domain.End

// Builder manages the graph construction.
type Builder struct {
	name   string
	entry  string
	fields []*FieldBuilder
	nodes  []*NodeBuilder
	index  map[string]*NodeBuilder
}

// New creates a new graph builder.
func New(name string) *Builder {
	return &Builder{
		name:  name,
		index: make(map[string]*NodeBuilder),
	}
}

// Field declares a state field. Fields keep declaration order.
func (b *Builder) Field(name string, typ schema.Type) *FieldBuilder {
	f := &FieldBuilder{field: domain.Field{Name: name, Type: typ}}
	b.fields = append(b.fields, f)
	return f
}

// Entry overrides the entry node. It defaults to the first node added.
func (b *Builder) Entry(name string) *Builder {
	b.entry = name
	return b
}

// Add creates a new node in the graph.
// If the node already exists, it returns the existing builder.
func (b *Builder) Add(name string) *NodeBuilder {
	if nb, ok := b.index[name]; ok {
		return nb
	}
	nb := &NodeBuilder{node: graph.Node{Name: name}, builder: b}
	b.index[name] = nb
	b.nodes = append(b.nodes, nb)
	return nb
}

// Build assembles the graph definition. Structural validation happens when
// the definition is compiled.
func (b *Builder) Build() (*graph.Definition, error) {
	fields := make([]domain.Field, len(b.fields))
	for i, f := range b.fields {
		fields[i] = f.field
	}
	s, err := domain.NewSchema(fields...)
	if err != nil {
		return nil, fmt.Errorf("graph %q schema: %w", b.name, err)
	}

	var errs []error
	def := graph.New(b.name, s)
	for _, nb := range b.nodes {
		if nb.node.Step == "" {
			errs = append(errs, fmt.Errorf("node %q has no step", nb.node.Name))
			continue
		}
		def.AddNode(nb.node.Name, nb.node.Step, nb.options()...)
	}
	for _, nb := range b.nodes {
		if nb.next != "" {
			def.AddEdge(nb.node.Name, nb.next)
		}
		if nb.branch != nil {
			def.AddConditionalEdge(nb.node.Name, nb.branch.Router, nb.branch.Routes,
				graph.WithRouterConfig(nb.branch.Config))
		}
		if nb.terminal {
			def.MarkTerminal(nb.node.Name)
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	entry := b.entry
	if entry == "" && len(b.nodes) > 0 {
		entry = b.nodes[0].node.Name
	}
	if entry != "" {
		def.SetEntry(entry)
	}
	return def, nil
}

// MustBuild is Build that panics on error.
func (b *Builder) MustBuild() *graph.Definition {
	def, err := b.Build()
	if err != nil {
		panic(err)
	}
	return def
}

// FieldBuilder configures a declared field.
type FieldBuilder struct {
	field domain.Field
}

// Merge sets the merge policy. Fields default to replace.
func (f *FieldBuilder) Merge(p domain.MergePolicy) *FieldBuilder {
	f.field.Policy = p
	return f
}

// Default sets the value the field starts with.
func (f *FieldBuilder) Default(v any) *FieldBuilder {
	f.field.Default = v
	return f
}
