// Package cli wires configuration, storage, the engine and the runner for the
// stepflow command. Commands in cmd/stepflow stay thin and call into App.
package cli
