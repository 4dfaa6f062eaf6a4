/*
Package stepflow runs declarative workflow graphs over a typed, mergeable state.

A workflow is a directed graph of nodes. Each node invokes a named step from a
registry; the step reads the current state and returns a partial update, which
is merged into the state under each field's merge policy. Edges are either
unconditional or chosen by a router that maps the merged state to a label.
Graphs are validated when compiled, so a compiled graph always has a resolved
step for every node and a path from its entry to the terminal marker.

# Usage

	eng, err := stepflow.New(stepflow.WithBuiltinSteps(steps.Deps{}))
	if err != nil {
		log.Fatal(err)
	}

	g, err := eng.Load("workflows/counter.yaml")
	if err != nil {
		log.Fatal(err)
	}

	res, err := eng.Execute(ctx, g, nil, stepflow.RunOptions{MaxSteps: 50})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(res.Status, res.State.Snapshot())

Graphs can also be built in code with pkg/graph or the fluent pkg/dsl builder.
Every invocation is recorded in the run's trace and reported to observers
(see pkg/observability).
*/
package stepflow
