package graph

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sort"

	"github.com/aretw0/stepflow/pkg/domain"
	"github.com/aretw0/stepflow/pkg/registry"
)

// Resolver looks up steps and routers by name. *registry.Registry satisfies it.
type Resolver interface {
	Lookup(name string) (registry.Entry, error)
}

// CompileOption configures compilation.
type CompileOption func(*compileOptions)

type compileOptions struct {
	logger *slog.Logger
}

// WithLogger logs compilation warnings.
func WithLogger(logger *slog.Logger) CompileOption {
	return func(o *compileOptions) { o.logger = logger }
}

// Compile validates the definition against the registry and freezes it.
// All problems found are returned together, in a deterministic order.
func (d *Definition) Compile(reg Resolver, opts ...CompileOption) (*Compiled, error) {
	o := &compileOptions{}
	for _, opt := range opts {
		opt(o)
	}

	c := &compileContext{def: d, reg: reg}
	c.checkEntry()
	c.resolveNodes()
	c.checkRouting()
	c.checkWrites()
	c.checkReachability()

	if len(c.errs) > 0 {
		return nil, errors.Join(c.errs...)
	}

	compiled := &Compiled{
		name:     d.name,
		entry:    d.entry,
		schema:   d.schema,
		nodes:    c.nodes,
		names:    slices.Sorted(maps.Keys(c.nodes)),
		warnings: c.warnings,
	}
	if o.logger != nil {
		for _, w := range compiled.warnings {
			o.logger.Warn("graph compiled with warning", "graph", d.name, "warning", w)
		}
	}
	return compiled, nil
}

type compileContext struct {
	def      *Definition
	reg      Resolver
	nodes    map[string]*CompiledNode
	errs     []error
	warnings []string
	entryOK  bool
}

func (c *compileContext) fail(err error) { c.errs = append(c.errs, err) }

func (c *compileContext) sortedNodeNames() []string {
	return slices.Sorted(maps.Keys(c.def.nodes))
}

// Rule 1: exactly one entry, naming a declared node.
func (c *compileContext) checkEntry() {
	if c.def.schema == nil {
		c.fail(&domain.InvalidGraphError{Reason: "no state schema"})
	}
	for _, p := range c.def.problems {
		c.fail(p)
	}
	switch {
	case c.def.entry == "":
		c.fail(&domain.InvalidGraphError{Reason: "no entry node set"})
	case c.def.nodes[c.def.entry] == nil:
		c.fail(&domain.InvalidGraphError{Node: c.def.entry, Reason: "entry node is not declared"})
	default:
		c.entryOK = true
	}
}

// Rule 2: every reference resolves.
func (c *compileContext) resolveNodes() {
	c.nodes = make(map[string]*CompiledNode, len(c.def.nodes))

	for _, name := range c.sortedNodeNames() {
		n := c.def.nodes[name]
		cn := &CompiledNode{
			Name:        n.Name,
			Step:        n.Step,
			Config:      n.Config.Clone(),
			Description: n.Description,
			Timeout:     n.Timeout,
		}
		entry, err := c.reg.Lookup(n.Step)
		switch {
		case err != nil:
			c.fail(fmt.Errorf("node %q: %w", name, err))
		case entry.Kind != registry.KindStep:
			c.fail(&domain.InvalidGraphError{Node: name, Reason: fmt.Sprintf("%q is a %s, not a step", n.Step, entry.Kind)})
		default:
			cn.Fn = entry.Step
			if entry.Writes != nil || n.Writes != nil {
				cn.Writes = mergeWrites(entry.Writes, n.Writes)
			}
		}
		c.nodes[name] = cn
	}

	for _, from := range slices.Sorted(maps.Keys(c.def.edges)) {
		to := c.def.edges[from]
		cn, ok := c.nodes[from]
		if !ok {
			c.fail(&domain.InvalidGraphError{Node: from, Reason: "edge source is not declared"})
			continue
		}
		if !c.isTarget(to) {
			c.fail(&domain.InvalidGraphError{Node: from, Reason: fmt.Sprintf("edge target %q is not declared", to)})
			continue
		}
		cn.Next = to
	}

	for _, from := range slices.Sorted(maps.Keys(c.def.branches)) {
		b := c.def.branches[from]
		cn, ok := c.nodes[from]
		if !ok {
			c.fail(&domain.InvalidGraphError{Node: from, Reason: "conditional edge source is not declared"})
			continue
		}
		cb := &CompiledBranch{Router: b.Router, Config: b.Config.Clone(), Routes: maps.Clone(b.Routes)}

		entry, err := c.reg.Lookup(b.Router)
		switch {
		case err != nil:
			c.fail(fmt.Errorf("node %q router: %w", from, err))
		case entry.Kind != registry.KindRouter:
			c.fail(&domain.InvalidGraphError{Node: from, Reason: fmt.Sprintf("%q is a %s, not a router", b.Router, entry.Kind)})
		default:
			cb.Fn = entry.Router
			for _, label := range entry.Labels {
				if _, mapped := b.Routes[label]; !mapped {
					c.fail(&domain.InvalidGraphError{Node: from, Reason: fmt.Sprintf("router %q label %q is not mapped", b.Router, label)})
				}
			}
			if len(entry.Labels) > 0 {
				for _, label := range slices.Sorted(maps.Keys(b.Routes)) {
					if !slices.Contains(entry.Labels, label) {
						c.warnings = append(c.warnings, fmt.Sprintf("node %q maps label %q that router %q never returns", from, label, b.Router))
					}
				}
			}
		}
		if len(b.Routes) == 0 {
			c.fail(&domain.InvalidGraphError{Node: from, Reason: "conditional edge has no routes"})
		}
		for _, label := range slices.Sorted(maps.Keys(b.Routes)) {
			if target := b.Routes[label]; !c.isTarget(target) {
				c.fail(&domain.InvalidGraphError{Node: from, Reason: fmt.Sprintf("label %q targets undeclared node %q", label, target)})
			}
		}
		cn.Branch = cb
	}
}

func (c *compileContext) isTarget(name string) bool {
	if name == domain.End {
		return true
	}
	_, ok := c.def.nodes[name]
	return ok
}

func mergeWrites(a, b []string) []string {
	set := make(map[string]struct{}, len(a)+len(b))
	for _, f := range a {
		set[f] = struct{}{}
	}
	for _, f := range b {
		set[f] = struct{}{}
	}
	return append([]string{}, slices.Sorted(maps.Keys(set))...)
}

// Rule 3: a node routes one way only.
func (c *compileContext) checkRouting() {
	for _, name := range c.sortedNodeNames() {
		_, hasEdge := c.def.edges[name]
		_, hasBranch := c.def.branches[name]
		if hasEdge && hasBranch {
			c.fail(&domain.AmbiguousRoutingError{Node: name})
		}
	}
}

// Rule 4: declared writes exist, and order-sensitive custom reducers have a
// single writer on any entry to terminal walk. A node without declared writes
// counts as a writer of every field.
func (c *compileContext) checkWrites() {
	if c.def.schema == nil {
		return
	}
	writers := make(map[string][]string)
	for _, name := range c.sortedNodeNames() {
		cn := c.nodes[name]
		if cn.Writes == nil && cn.Fn != nil {
			// Undeclared writes are unrestricted: the node may write any field.
			for _, field := range c.def.schema.Names() {
				writers[field] = append(writers[field], name)
			}
			continue
		}
		for _, field := range cn.Writes {
			if !c.def.schema.Has(field) {
				c.fail(fmt.Errorf("node %q writes: %w", name,
					&domain.NotFoundError{Kind: "field", Name: field, Available: c.def.schema.Names()}))
				continue
			}
			writers[field] = append(writers[field], name)
		}
	}
	if !c.entryOK {
		return
	}

	fromEntry := c.reach(c.def.entry)
	for _, f := range c.def.schema.Fields() {
		if f.Policy.Kind() != domain.PolicyCustom || f.Policy.IsCommutative() {
			continue
		}
		ws := writers[f.Name]
		if pair := c.conflictingPair(ws, fromEntry); pair != nil {
			c.fail(&domain.MergeConflictError{Field: f.Name, Policy: f.Policy.Name(), Writers: pair})
		}
	}
}

// conflictingPair finds two distinct writers u, v with entry ->* u ->+ v ->* End.
func (c *compileContext) conflictingPair(writers []string, fromEntry map[string]bool) []string {
	for _, u := range writers {
		if !fromEntry[u] {
			continue
		}
		fromU := c.reach(u)
		for _, v := range writers {
			if u == v || !fromU[v] {
				continue
			}
			if c.reach(v)[domain.End] {
				pair := []string{u, v}
				sort.Strings(pair)
				return pair
			}
		}
	}
	return nil
}

// Rule 5: the entry reaches End; other dead regions are warnings.
func (c *compileContext) checkReachability() {
	if !c.entryOK {
		return
	}
	fromEntry := c.reach(c.def.entry)
	if !fromEntry[domain.End] {
		c.fail(&domain.NoTerminalPathError{Entry: c.def.entry})
	}
	for _, name := range c.sortedNodeNames() {
		if !fromEntry[name] {
			c.warnings = append(c.warnings, fmt.Sprintf("node %q is unreachable from entry %q", name, c.def.entry))
			continue
		}
		if !c.reach(name)[domain.End] {
			c.warnings = append(c.warnings, fmt.Sprintf("node %q has no path to %s", name, domain.End))
		}
	}
}

// reach returns every node reachable from start, start included, by breadth-first crawl.
func (c *compileContext) reach(start string) map[string]bool {
	visited := map[string]bool{}
	queue := []string{start}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if visited[current] {
			continue
		}
		visited[current] = true

		for _, next := range c.successors(current) {
			if !visited[next] {
				queue = append(queue, next)
			}
		}
	}
	return visited
}

func (c *compileContext) successors(name string) []string {
	var out []string
	if to, ok := c.def.edges[name]; ok && c.isTarget(to) {
		out = append(out, to)
	}
	if b, ok := c.def.branches[name]; ok {
		for _, label := range slices.Sorted(maps.Keys(b.Routes)) {
			if to := b.Routes[label]; c.isTarget(to) {
				out = append(out, to)
			}
		}
	}
	return out
}
