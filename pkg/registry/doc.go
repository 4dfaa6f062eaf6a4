// Package registry is the keyed, thread-safe store of named steps and routers
// that graphs bind to by name.
//
// Built-in steps are registered explicitly at program start (see package steps);
// nothing registers itself from init.
package registry
