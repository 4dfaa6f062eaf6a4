// Package steps provides the built-in step library: state helpers, research
// steps backed by pluggable services, and routers. Call Register to add them
// to a registry.
package steps
