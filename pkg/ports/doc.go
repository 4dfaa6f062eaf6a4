/*
Package ports defines the driven ports (interfaces) of stepflow.

These interfaces decouple the run orchestration from external implementations,
so finished runs can be kept in memory, on disk or in Redis without the
runner or the HTTP service knowing which.

# Key Interfaces

  - RunStore: persists and loads run records (state, trace, status).
  - DistributedLocker: coordinates access to one run ID across replicas.
*/
package ports
