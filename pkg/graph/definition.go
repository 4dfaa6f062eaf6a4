package graph

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/aretw0/stepflow/pkg/domain"
	"github.com/aretw0/stepflow/pkg/registry"
)

// Node binds a node name to a registered step.
type Node struct {
	Name        string
	Step        string
	Config      registry.Config
	Writes      []string // Added to the step's declared writes.
	Description string
	Timeout     time.Duration // Overrides the run-level step timeout when positive.
}

// Branch is a conditional edge: a router step and its label to target map.
type Branch struct {
	Router string
	Config registry.Config
	Routes map[string]string
}

// NodeOption configures a node at declaration.
type NodeOption func(*Node)

// WithConfig sets the per-node step configuration.
func WithConfig(cfg registry.Config) NodeOption {
	return func(n *Node) { n.Config = cfg.Clone() }
}

// WithWrites declares fields this node writes in addition to the step's own declaration.
func WithWrites(fields ...string) NodeOption {
	return func(n *Node) {
		if n.Writes == nil {
			n.Writes = []string{}
		}
		n.Writes = append(n.Writes, fields...)
	}
}

// WithDescription documents the node for listings and diagrams.
func WithDescription(text string) NodeOption {
	return func(n *Node) { n.Description = text }
}

// WithTimeout bounds a single invocation of this node.
func WithTimeout(d time.Duration) NodeOption {
	return func(n *Node) { n.Timeout = d }
}

// BranchOption configures a conditional edge.
type BranchOption func(*Branch)

// WithRouterConfig sets the configuration handed to the router.
func WithRouterConfig(cfg registry.Config) BranchOption {
	return func(b *Branch) { b.Config = cfg.Clone() }
}

// Definition is the mutable description of a workflow graph.
// Builder calls never fail: structural mistakes are recorded and reported by Compile.
type Definition struct {
	name     string
	schema   *domain.Schema
	nodes    map[string]*Node
	order    []string
	entry    string
	edges    map[string]string
	branches map[string]*Branch
	problems []error
}

// New starts a graph definition over a state schema.
func New(name string, schema *domain.Schema) *Definition {
	return &Definition{
		name:     name,
		schema:   schema,
		nodes:    make(map[string]*Node),
		edges:    make(map[string]string),
		branches: make(map[string]*Branch),
	}
}

// Name returns the graph name.
func (d *Definition) Name() string { return d.name }

// Schema returns the state schema.
func (d *Definition) Schema() *domain.Schema { return d.schema }

// AddNode declares a node bound to a registered step name.
func (d *Definition) AddNode(name, step string, opts ...NodeOption) *Definition {
	switch {
	case name == "":
		d.problems = append(d.problems, &domain.InvalidGraphError{Reason: "node name cannot be empty"})
		return d
	case name == domain.End:
		d.problems = append(d.problems, &domain.InvalidGraphError{Node: name, Reason: "name is reserved for the terminal marker"})
		return d
	}
	if _, exists := d.nodes[name]; exists {
		d.problems = append(d.problems, &domain.DuplicateNameError{Kind: "node", Name: name})
		return d
	}
	n := &Node{Name: name, Step: step}
	for _, opt := range opts {
		opt(n)
	}
	d.nodes[name] = n
	d.order = append(d.order, name)
	return d
}

// AddEdge declares an unconditional edge. A node has at most one.
func (d *Definition) AddEdge(from, to string) *Definition {
	if prev, exists := d.edges[from]; exists {
		d.problems = append(d.problems, &domain.InvalidGraphError{
			Node:   from,
			Reason: fmt.Sprintf("second unconditional edge to %q (already goes to %q)", to, prev),
		})
		return d
	}
	d.edges[from] = to
	return d
}

// AddConditionalEdge attaches a router to a node. After the node's update merges,
// the router's label selects the next node from routes.
func (d *Definition) AddConditionalEdge(from, router string, routes map[string]string, opts ...BranchOption) *Definition {
	if _, exists := d.branches[from]; exists {
		d.problems = append(d.problems, &domain.InvalidGraphError{Node: from, Reason: "second conditional edge"})
		return d
	}
	b := &Branch{Router: router, Routes: maps.Clone(routes)}
	if b.Routes == nil {
		b.Routes = map[string]string{}
	}
	for _, opt := range opts {
		opt(b)
	}
	d.branches[from] = b
	return d
}

// SetEntry names the first node of every run. It may be called once.
func (d *Definition) SetEntry(name string) *Definition {
	if d.entry != "" {
		d.problems = append(d.problems, &domain.InvalidGraphError{
			Node:   name,
			Reason: fmt.Sprintf("entry already set to %q", d.entry),
		})
		return d
	}
	d.entry = name
	return d
}

// MarkTerminal is AddEdge(name, domain.End).
func (d *Definition) MarkTerminal(name string) *Definition {
	return d.AddEdge(name, domain.End)
}

// Nodes returns the declared nodes in declaration order.
func (d *Definition) Nodes() []Node {
	out := make([]Node, 0, len(d.order))
	for _, name := range d.order {
		n := *d.nodes[name]
		n.Writes = slices.Clone(n.Writes)
		out = append(out, n)
	}
	return out
}
