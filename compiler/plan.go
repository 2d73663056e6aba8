// Package compiler turns a graph.Snapshot into a Plan: a topologically
// ordered, buffer-assigned, ready-to-run structure the renderer executes
// without allocating (§4.4, §4.6).
//
// Grounded on original_source/crates/graph/src/alloc.rs (the liveness-based
// buffer assignment) and crates/graph/src/render/single_threaded.rs
// (State::assign_buffers, the binding pass this package's Compile
// combines with alloc.rs's sizing pass).
package compiler

import (
	"code.hybscloud.com/tesi/buffer"
	"code.hybscloud.com/tesi/graph"
	"code.hybscloud.com/tesi/processor"
)

// Node is one scheduled node's ready-to-run state: its processor, its
// already-bound input/output buffers, and the static in-degree the
// renderer resets its per-tick counter from.
type Node struct {
	ID           graph.NodeID
	Proc         processor.Processor // nil for the root input/output nodes
	Ports        []processor.Port
	AudioInputs  []*buffer.Audio
	AudioOutputs []*buffer.Audio
	EventInputs  []*buffer.Event
	EventOutputs []*buffer.Event
	// Successors lists every node index (into Plan.Order) that has at
	// least one edge from this node, deduplicated — the worker-pool
	// scheduler decrements each successor's remaining-input counter once
	// per producer node (not once per edge), using Plan.Order position,
	// not graph.NodeID, as the index space it schedules over.
	Successors []int
	// NumIncoming is the static in-degree: the count of distinct producer
	// nodes feeding this node's connected input ports (matching the
	// dedup in Successors — two edges from the same producer still count
	// as one completion), the value the renderer resets each node's
	// remaining-input counter to at the start of every tick.
	NumIncoming int
	StartNeeded bool // Starter.Start has not yet fired for this node
}

// Plan is the execution plan: immutable once Compile returns it. A new
// commit produces an entirely new Plan; the old one is retired once the
// audio thread has moved off it (handled by internal/swap.TripleBuffer).
type Plan struct {
	Order        []Node // topological order; the roots sit at RootInput/RootOutput, not necessarily first and last
	IndexByID    map[graph.NodeID]int
	RootInput    int // index into Order
	RootOutput   int
	AudioArena   *buffer.AudioArena
	EventArena   *buffer.EventArena
	NumWorkers   int
	MaxNumFrames int
	SampleRate   float64
}
