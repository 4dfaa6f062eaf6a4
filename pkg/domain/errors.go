package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors. Every typed error below matches exactly one of them with errors.Is.
var (
	ErrDuplicateName     = errors.New("duplicate name")
	ErrNotFound          = errors.New("not found")
	ErrFieldUnset        = errors.New("field unset")
	ErrInvalidGraph      = errors.New("invalid graph")
	ErrAmbiguousRouting  = errors.New("ambiguous routing")
	ErrMergeConflict     = errors.New("merge conflict")
	ErrNoTerminalPath    = errors.New("no terminal path")
	ErrDeadEnd           = errors.New("dead end")
	ErrUnknownRouteLabel = errors.New("unknown route label")
	ErrStepLimitExceeded = errors.New("step limit exceeded")
	ErrDeadlineExceeded  = errors.New("deadline exceeded")
	ErrStepExecution     = errors.New("step execution failed")
	ErrUndeclaredWrite   = errors.New("undeclared write")
	ErrCancelled         = errors.New("execution cancelled")
)

// ErrRunNotFound is returned when a run ID cannot be found in a store.
var ErrRunNotFound = errors.New("run not found")

// DuplicateNameError is returned when a name is registered or declared twice.
type DuplicateNameError struct {
	Kind string // "step", "node", "field"
	Name string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("%s %q is already registered", e.Kind, e.Name)
}

func (e *DuplicateNameError) Is(target error) bool { return target == ErrDuplicateName }

// NotFoundError is returned when a lookup misses. Available lists what exists.
type NotFoundError struct {
	Kind      string
	Name      string
	Available []string
}

func (e *NotFoundError) Error() string {
	if len(e.Available) == 0 {
		return fmt.Sprintf("%s %q not registered", e.Kind, e.Name)
	}
	return fmt.Sprintf("%s %q not registered (available: %s)", e.Kind, e.Name, strings.Join(e.Available, ", "))
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// InvalidGraphError reports a structural problem found while compiling a graph.
type InvalidGraphError struct {
	Node   string
	Reason string
}

func (e *InvalidGraphError) Error() string {
	if e.Node == "" {
		return "invalid graph: " + e.Reason
	}
	return fmt.Sprintf("invalid graph: node %q: %s", e.Node, e.Reason)
}

func (e *InvalidGraphError) Is(target error) bool { return target == ErrInvalidGraph }

// AmbiguousRoutingError is returned when a node has both an unconditional and a conditional edge.
type AmbiguousRoutingError struct {
	Node string
}

func (e *AmbiguousRoutingError) Error() string {
	return fmt.Sprintf("node %q has both an unconditional and a conditional edge", e.Node)
}

func (e *AmbiguousRoutingError) Is(target error) bool { return target == ErrAmbiguousRouting }

// MergeConflictError is returned when more than one node on a path writes a field
// whose custom merge policy is not commutative.
type MergeConflictError struct {
	Field   string
	Policy  string
	Writers []string
}

func (e *MergeConflictError) Error() string {
	return fmt.Sprintf("field %q (merge %s) is written by %s on the same path; declare the policy commutative or keep a single writer",
		e.Field, e.Policy, strings.Join(e.Writers, " and "))
}

func (e *MergeConflictError) Is(target error) bool { return target == ErrMergeConflict }

// NoTerminalPathError is returned when the entry node cannot reach the terminal marker.
type NoTerminalPathError struct {
	Entry string
}

func (e *NoTerminalPathError) Error() string {
	return fmt.Sprintf("entry node %q has no path to %s", e.Entry, End)
}

func (e *NoTerminalPathError) Is(target error) bool { return target == ErrNoTerminalPath }

// DeadEndError is returned at run time when a node has no way forward.
type DeadEndError struct {
	Node string
}

func (e *DeadEndError) Error() string {
	return fmt.Sprintf("node %q has no outgoing edge", e.Node)
}

func (e *DeadEndError) Is(target error) bool { return target == ErrDeadEnd }

// UnknownRouteLabelError is returned when a router produces a label missing from its map.
type UnknownRouteLabelError struct {
	Node   string
	Router string
	Label  string
	Known  []string
}

func (e *UnknownRouteLabelError) Error() string {
	return fmt.Sprintf("router %q on node %q returned unknown label %q (known: %s)",
		e.Router, e.Node, e.Label, strings.Join(e.Known, ", "))
}

func (e *UnknownRouteLabelError) Is(target error) bool { return target == ErrUnknownRouteLabel }

// StepLimitExceededError is returned when a run needs more invocations than allowed.
type StepLimitExceededError struct {
	Limit int
}

func (e *StepLimitExceededError) Error() string {
	return fmt.Sprintf("step limit of %d invocations exceeded", e.Limit)
}

func (e *StepLimitExceededError) Is(target error) bool { return target == ErrStepLimitExceeded }

// DeadlineExceededError is returned when the run-level deadline passes between steps.
type DeadlineExceededError struct {
	Deadline time.Time
	Elapsed  time.Duration
}

func (e *DeadlineExceededError) Error() string {
	return fmt.Sprintf("run deadline exceeded after %s", e.Elapsed.Round(time.Millisecond))
}

func (e *DeadlineExceededError) Is(target error) bool { return target == ErrDeadlineExceeded }

// StepExecutionError wraps any failure raised by a step body.
type StepExecutionError struct {
	Node  string
	Step  string
	Cause error
}

func (e *StepExecutionError) Error() string {
	return fmt.Sprintf("step %q failed on node %q: %v", e.Step, e.Node, e.Cause)
}

func (e *StepExecutionError) Is(target error) bool { return target == ErrStepExecution }

func (e *StepExecutionError) Unwrap() error { return e.Cause }

// ExecutionError is the error returned by a run that did not complete.
// It carries the node being executed, the state at failure time and the typed cause.
type ExecutionError struct {
	Graph  string
	Status ExecutionStatus
	Node   string
	Steps  int
	State  *State
	Err    error
}

func (e *ExecutionError) Error() string {
	if e.Node == "" {
		return fmt.Sprintf("graph %q %s after %d steps: %v", e.Graph, e.Status, e.Steps, e.Err)
	}
	return fmt.Sprintf("graph %q %s at node %q after %d steps: %v", e.Graph, e.Status, e.Node, e.Steps, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }
