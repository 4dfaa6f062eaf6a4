package runtime

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"slices"

	"github.com/aretw0/stepflow/pkg/domain"
	"github.com/aretw0/stepflow/pkg/graph"
	"github.com/aretw0/stepflow/pkg/trace"
)

// step invokes one node, merges its update, records it and resolves the next node.
func (r *run) step(ctx context.Context, node *graph.CompiledNode) (string, error) {
	before := r.result.State
	r.result.Steps++

	rec := domain.StepRecord{
		Seq:   r.result.Steps,
		Graph: r.result.Graph,
		Node:  node.Name,
		Step:  node.Step,
		Start: r.exec.now(),
		Input: before.Snapshot(),
	}
	r.notifyStarted(ctx, rec)

	metrics := &trace.Metrics{}
	update, err := r.invoke(trace.WithMetrics(ctx, metrics), node, before)

	after := before
	if err == nil {
		after, err = r.apply(node, before, update)
	}

	var next string
	if err == nil {
		r.result.State = after
		rec.Changes = domain.Diff(before, after)
		rec.Route, next, err = r.resolveNext(ctx, node, after)
		rec.Next = next
	}

	rec.Duration = r.exec.now().Sub(rec.Start)
	rec.Metrics = metrics.Values()
	rec.Outcome = domain.OutcomeSuccess
	if err != nil {
		rec.Outcome = domain.OutcomeError
		rec.Error = err.Error()
	}
	r.result.Trace.Append(rec)
	r.notifyFinished(ctx, rec)

	r.logger.DebugContext(ctx, "step finished",
		"seq", rec.Seq, "node", rec.Node, "step", rec.Step,
		"outcome", rec.Outcome, "next", rec.Next, "duration", rec.Duration)
	return next, err
}

// invoke calls the step body under the effective step timeout. The body runs
// to completion; an expired timeout turns its result into a failure.
func (r *run) invoke(ctx context.Context, node *graph.CompiledNode, state *domain.State) (update domain.Update, err error) {
	timeout := r.opts.StepTimeout
	if node.Timeout > 0 {
		timeout = node.Timeout
	}
	stepCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("step panicked", "node", node.Name, "step", node.Step, "panic", p, "stack", string(debug.Stack()))
			update = nil
			err = &domain.StepExecutionError{Node: node.Name, Step: node.Step, Cause: fmt.Errorf("panic: %v", p)}
		}
	}()

	update, err = node.Fn(stepCtx, state, node.Config.Clone())
	if err == nil && timeout > 0 && ctx.Err() == nil && errors.Is(stepCtx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("step timeout of %s exceeded: %w", timeout, context.DeadlineExceeded)
	}
	if err != nil {
		return nil, &domain.StepExecutionError{Node: node.Name, Step: node.Step, Cause: err}
	}
	return update, nil
}

// apply enforces declared writes and merges the update.
func (r *run) apply(node *graph.CompiledNode, state *domain.State, update domain.Update) (*domain.State, error) {
	if node.Writes != nil {
		for _, field := range update.Fields() {
			if !slices.Contains(node.Writes, field) {
				return nil, &domain.StepExecutionError{
					Node:  node.Name,
					Step:  node.Step,
					Cause: fmt.Errorf("%w: field %q (declared: %v)", domain.ErrUndeclaredWrite, field, node.Writes),
				}
			}
		}
	}
	next, err := state.Merge(update)
	if err != nil {
		return nil, &domain.StepExecutionError{Node: node.Name, Step: node.Step, Cause: err}
	}
	return next, nil
}
