/*
Package domain contains the core data model of the stepflow engine.

It defines the typed, mergeable State Container that steps read and update,
the merge policies that decide how a partial update is combined into a field,
the records produced by an execution, and the error taxonomy shared by the
registry, the compiler and the executor. The package is pure: no I/O, no
persistence, no logging.

# Key Entities

  - Schema: the ordered, immutable declaration of state fields (type, merge policy, default).
  - State: a copy-on-write snapshot of field values; Merge returns a new State.
  - MergePolicy: replace, append or a custom (optionally commutative) reducer.
  - StepRecord / RunRecord: what one step invocation and one run looked like.
*/
package domain
