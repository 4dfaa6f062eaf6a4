/*
Package observability provides trace observers for watching step invocations.

Each observer implements trace.Observer and can be passed to the executor with
runtime.WithObservers or per run through RunOptions.Observers:

  - Aggregator keeps in-memory statistics (durations, success rate, slowest steps).
  - PrometheusObserver exports invocation counters and duration histograms.
  - LogObserver writes one structured log line per step event.

Use Multi to combine several of them into one observer.
*/
package observability
