// Package runtime implements the executor: the state machine that walks a
// compiled graph, invoking one step at a time, merging updates, routing and
// recording every invocation in the trace.
package runtime
