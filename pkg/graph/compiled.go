package graph

import (
	"slices"
	"sort"
	"time"

	"github.com/aretw0/stepflow/pkg/domain"
	"github.com/aretw0/stepflow/pkg/registry"
)

// CompiledNode is a validated node with its step resolved.
type CompiledNode struct {
	Name        string
	Step        string
	Fn          registry.StepFunc
	Config      registry.Config
	Writes      []string // Nil means the step may write any field.
	Description string
	Timeout     time.Duration
	Next        string          // Unconditional successor, if any.
	Branch      *CompiledBranch // Conditional edge, if any.
}

// CompiledBranch is a validated conditional edge with its router resolved.
type CompiledBranch struct {
	Router string
	Fn     registry.RouterFunc
	Config registry.Config
	Routes map[string]string
}

// Labels returns the mapped labels in sorted order.
func (b *CompiledBranch) Labels() []string {
	labels := make([]string, 0, len(b.Routes))
	for l := range b.Routes {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return labels
}

// Successors returns the distinct targets of the node in sorted order.
func (n *CompiledNode) Successors() []string {
	set := map[string]struct{}{}
	if n.Next != "" {
		set[n.Next] = struct{}{}
	}
	if n.Branch != nil {
		for _, target := range n.Branch.Routes {
			set[target] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// CanWrite reports whether field is among the node's declared writes.
func (n *CompiledNode) CanWrite(field string) bool {
	return n.Writes == nil || slices.Contains(n.Writes, field)
}

// Compiled is an immutable, validated graph ready for execution.
// It is safe to share between concurrent executions.
type Compiled struct {
	name     string
	entry    string
	schema   *domain.Schema
	nodes    map[string]*CompiledNode
	names    []string
	warnings []string
}

// Name returns the graph name.
func (c *Compiled) Name() string { return c.name }

// Entry returns the entry node name.
func (c *Compiled) Entry() string { return c.entry }

// Schema returns the state schema.
func (c *Compiled) Schema() *domain.Schema { return c.schema }

// Node returns the named node.
func (c *Compiled) Node(name string) (*CompiledNode, bool) {
	n, ok := c.nodes[name]
	return n, ok
}

// Nodes returns node names in sorted order.
func (c *Compiled) Nodes() []string { return slices.Clone(c.names) }

// Warnings returns the non-fatal findings of compilation.
func (c *Compiled) Warnings() []string { return slices.Clone(c.warnings) }
