package stepflow_test

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/aretw0/stepflow"
	"github.com/aretw0/stepflow/pkg/domain"
	"github.com/aretw0/stepflow/pkg/graph"
	"github.com/aretw0/stepflow/pkg/registry"
	"github.com/aretw0/stepflow/pkg/schema"
	"github.com/aretw0/stepflow/pkg/steps"
)

// ExampleEngine_Execute builds the counter graph in code: a node increments a
// sum-merged field and a router loops back until the count reaches three.
func ExampleEngine_Execute() {
	eng, err := stepflow.New(stepflow.WithBuiltinSteps(steps.Deps{}))
	if err != nil {
		log.Fatal(err)
	}

	fields := domain.MustSchema(
		domain.Field{Name: "count", Type: schema.Int(), Policy: domain.Sum(), Default: 0},
	)
	def := graph.New("counter", fields).
		AddNode("tick", "increment", graph.WithConfig(registry.Config{"field": "count"})).
		AddConditionalEdge("tick", "threshold", map[string]string{
			"again": "tick",
			"done":  stepflow.End,
		}, graph.WithRouterConfig(registry.Config{
			"field": "count", "threshold": 3, "above": "done", "below": "again",
		})).
		SetEntry("tick")

	g, err := eng.Add(def)
	if err != nil {
		log.Fatal(err)
	}

	res, err := eng.Execute(context.Background(), g, nil, stepflow.RunOptions{MaxSteps: 10})
	if err != nil {
		log.Fatal(err)
	}

	count, _ := res.State.Get("count")
	fmt.Println("status:", res.Status)
	fmt.Println("count:", count)
	fmt.Println("path:", res.Trace.Path())
	// Output:
	// status: completed
	// count: 3
	// path: [tick tick tick]
}

// ExampleEngine_Run shows the step limit stopping a loop that never reaches
// its exit condition.
func ExampleEngine_Run() {
	eng, err := stepflow.New(stepflow.WithBuiltinSteps(steps.Deps{}))
	if err != nil {
		log.Fatal(err)
	}

	fields := domain.MustSchema(
		domain.Field{Name: "count", Type: schema.Int(), Policy: domain.Sum(), Default: 0},
	)
	def := graph.New("spin", fields).
		AddNode("loop", "increment", graph.WithConfig(registry.Config{"field": "count"})).
		AddConditionalEdge("loop", "threshold", map[string]string{
			"above": stepflow.End,
			"below": "loop",
		}, graph.WithRouterConfig(registry.Config{"field": "count", "threshold": 100})).
		SetEntry("loop")
	if _, err := eng.Add(def); err != nil {
		log.Fatal(err)
	}

	res, err := eng.Run(context.Background(), "spin", nil, stepflow.RunOptions{MaxSteps: 5})
	fmt.Println("status:", res.Status)
	fmt.Println("steps:", res.Steps)
	fmt.Println("limit hit:", errors.Is(err, domain.ErrStepLimitExceeded))
	// Output:
	// status: failed
	// steps: 5
	// limit hit: true
}
