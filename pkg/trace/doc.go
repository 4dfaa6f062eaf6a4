// Package trace records what an execution did: one StepRecord per step invocation,
// observers notified around each invocation, and metrics reported by steps.
package trace
