package dsl

import (
	"maps"
	"time"

	"github.com/aretw0/stepflow/pkg/graph"
	"github.com/aretw0/stepflow/pkg/registry"
)

// NodeBuilder provides a fluent API for configuring a node.
type NodeBuilder struct {
	node     graph.Node
	next     string
	branch   *graph.Branch
	terminal bool
	builder  *Builder
}

// Do binds the node to a registered step.
func (n *NodeBuilder) Do(step string, cfg registry.Config) *NodeBuilder {
	n.node.Step = step
	n.node.Config = cfg.Clone()
	return n
}

// Writes declares fields the node writes in addition to the step's declaration.
func (n *NodeBuilder) Writes(fields ...string) *NodeBuilder {
	n.node.Writes = append(n.node.Writes, fields...)
	return n
}

// Describe documents the node.
func (n *NodeBuilder) Describe(text string) *NodeBuilder {
	n.node.Description = text
	return n
}

// Timeout bounds a single invocation of the node.
func (n *NodeBuilder) Timeout(d time.Duration) *NodeBuilder {
	n.node.Timeout = d
	return n
}

// Go adds the unconditional edge to target.
func (n *NodeBuilder) Go(target string) *NodeBuilder {
	n.next = target
	return n
}

// Route attaches a router. Labels are mapped with When.
func (n *NodeBuilder) Route(router string, cfg registry.Config) *NodeBuilder {
	n.branch = &graph.Branch{Router: router, Config: cfg.Clone(), Routes: map[string]string{}}
	return n
}

// When maps a router label to a target. It starts a router-less branch when
// Route was not called, which compilation rejects.
func (n *NodeBuilder) When(label, target string) *NodeBuilder {
	if n.branch == nil {
		n.branch = &graph.Branch{Routes: map[string]string{}}
	}
	n.branch.Routes[label] = target
	return n
}

// Terminal marks the node as finishing the run.
func (n *NodeBuilder) Terminal() *NodeBuilder {
	n.terminal = true
	return n
}

// Add continues with another node of the same builder.
func (n *NodeBuilder) Add(name string) *NodeBuilder {
	return n.builder.Add(name)
}

// Build returns the node declaration and a copy of its branch, if any.
func (n *NodeBuilder) Build() (graph.Node, *graph.Branch) {
	if n.branch == nil {
		return n.node, nil
	}
	b := *n.branch
	b.Routes = maps.Clone(n.branch.Routes)
	return n.node, &b
}

func (n *NodeBuilder) options() []graph.NodeOption {
	opts := []graph.NodeOption{graph.WithConfig(n.node.Config)}
	if len(n.node.Writes) > 0 {
		opts = append(opts, graph.WithWrites(n.node.Writes...))
	}
	if n.node.Description != "" {
		opts = append(opts, graph.WithDescription(n.node.Description))
	}
	if n.node.Timeout > 0 {
		opts = append(opts, graph.WithTimeout(n.node.Timeout))
	}
	return opts
}
