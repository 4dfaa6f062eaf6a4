/*
Package graph declares workflow graphs and compiles them into validated,
immutable form.

A Definition names nodes bound to registered steps, unconditional edges,
conditional edges driven by routers, an entry node and terminal markers.
Compile checks, in order:

 1. the entry is set exactly once and names a declared node;
 2. every step, router and edge target resolves;
 3. no node has both an unconditional and a conditional edge;
 4. declared writes name schema fields, and order-sensitive reducers are not
    written by two different nodes on one path;
 5. the entry can reach domain.End.

Unreachable nodes and nodes that cannot terminate are reported as warnings.
*/
package graph
