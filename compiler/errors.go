package compiler

import "errors"

// ErrCycle is returned if a Snapshot's active nodes and edges do not form a
// DAG. This should be unreachable in practice: graph.Editor.AddEdge already
// rejects any edge that would close a cycle, so a cycle surviving into a
// Snapshot indicates an editor invariant was violated.
var ErrCycle = errors.New("compiler: active subgraph is not acyclic")

// ErrArenaExhausted is returned if the sizing pass under-counted an arena's
// peak concurrent usage, so the binding pass ran out of free blocks. This
// is a compiler bug, not a runtime condition — both passes walk nodes in
// the same order and perform the same acquire/release steps, so they must
// agree.
var ErrArenaExhausted = errors.New("compiler: arena undersized by the sizing pass")
