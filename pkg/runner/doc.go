/*
Package runner wraps graph execution with a retry policy and run persistence.

A Runner executes a compiled graph through an Executor (usually *stepflow.Engine).
Failed attempts are retried with exponential backoff when the failure is a step
error; graph errors, step limits, deadlines and cancellation are final. Every
run is saved as a domain.RunRecord through a session.Manager when one is
configured: once as running when it starts, and once with its final status,
state, trace and attempt count.

# Usage

	r := runner.New(engine,
		runner.WithSessions(session.NewManager(store)),
		runner.WithMaxAttempts(3),
	)

	report, err := r.Run(ctx, g, initial, stepflow.RunOptions{MaxSteps: 100})
	if err != nil {
		log.Printf("run %s: %v", report.Record.ID, err)
	}
*/
package runner
