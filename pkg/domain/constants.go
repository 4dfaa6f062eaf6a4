package domain

// End is the terminal marker. Edges and route labels that target End finish the run.
const End = "__end__"

// ExecutionStatus defines the lifecycle of one execution.
type ExecutionStatus string

const (
	StatusPending   ExecutionStatus = "pending"   // Not yet started
	StatusRunning   ExecutionStatus = "running"   // Steps being invoked
	StatusCompleted ExecutionStatus = "completed" // Terminal marker reached
	StatusFailed    ExecutionStatus = "failed"    // Unrecovered error
	StatusCancelled ExecutionStatus = "cancelled" // External cancellation honored
)

// IsFinal reports whether no further transition can happen from this status.
func (s ExecutionStatus) IsFinal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}
