// Package http exposes the graph catalog, run execution and run history over HTTP.
//
// Routes:
//
//	GET  /health
//	GET  /info
//	GET  /steps?category=
//	GET  /graphs
//	GET  /graphs/{name}
//	POST /graphs/{name}/runs
//	GET  /runs
//	GET  /runs/{id}
//	GET  /runs/{id}/events   (server-sent step events)
//	GET  /metrics            (when a Prometheus gatherer is configured)
package http
