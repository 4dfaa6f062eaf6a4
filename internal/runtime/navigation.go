package runtime

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/aretw0/stepflow/pkg/domain"
	"github.com/aretw0/stepflow/pkg/graph"
)

// resolveNext picks the successor of node against the merged state.
// Priority: unconditional edge, then router, else the node is a dead end.
func (r *run) resolveNext(ctx context.Context, node *graph.CompiledNode, state *domain.State) (label, next string, err error) {
	if node.Next != "" {
		return "", node.Next, nil
	}
	if node.Branch == nil {
		return "", "", &domain.DeadEndError{Node: node.Name}
	}

	b := node.Branch
	label, err = r.route(ctx, node, state)
	if err != nil {
		return "", "", err
	}
	target, ok := b.Routes[label]
	if !ok {
		return label, "", &domain.UnknownRouteLabelError{
			Node:   node.Name,
			Router: b.Router,
			Label:  label,
			Known:  b.Labels(),
		}
	}
	return label, target, nil
}

func (r *run) route(ctx context.Context, node *graph.CompiledNode, state *domain.State) (label string, err error) {
	b := node.Branch
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("router panicked", "node", node.Name, "router", b.Router, "panic", p, "stack", string(debug.Stack()))
			err = &domain.StepExecutionError{Node: node.Name, Step: b.Router, Cause: fmt.Errorf("panic: %v", p)}
		}
	}()

	label, err = b.Fn(ctx, state, b.Config.Clone())
	if err != nil {
		return "", &domain.StepExecutionError{Node: node.Name, Step: b.Router, Cause: err}
	}
	return label, nil
}
