package graph

import "code.hybscloud.com/tesi/processor"

// NodeSnapshot is a read-only view of one node's current topology, taken
// for the Compiler to build a Plan from. It is not updated after it is
// taken — the Compiler always works from one consistent snapshot of a
// commit.
type NodeSnapshot struct {
	ID       NodeID
	Ports    []processor.Port
	Proc     processor.Processor // nil for the root input/output nodes
	Incoming []EdgeID            // per input port, -1 if unconnected
	Outgoing [][]EdgeID          // per output port
	Active   bool
	Started  bool
}

// EdgeSnapshot is a read-only view of one edge.
type EdgeSnapshot struct {
	ID         EdgeID
	SourceNode NodeID
	OutputPort int
	SinkNode   NodeID
	InputPort  int
}

// Snapshot is the Compiler's input: every live node and edge as of one
// moment, plus the root node identities.
type Snapshot struct {
	Nodes      []NodeSnapshot
	Edges      []EdgeSnapshot
	RootInput  NodeID
	RootOutput NodeID
	Options    Options
}

// Snapshot captures the graph's current topology for the Compiler. Taken
// under the editor's lock so it reflects one consistent commit.
func (e *Editor) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := Snapshot{
		RootInput:  e.rootInput,
		RootOutput: e.rootOutput,
		Options:    e.opts,
	}
	for id, slot := range e.nodes {
		if slot == nil || !slot.alive {
			continue
		}
		snap.Nodes = append(snap.Nodes, NodeSnapshot{
			ID:       NodeID(id),
			Ports:    slot.ports,
			Proc:     slot.proc,
			Incoming: append([]EdgeID(nil), slot.incoming...),
			Outgoing: copyEdgeLists(slot.outgoing),
			Active:   slot.active,
			Started:  slot.started,
		})
	}
	for id, slot := range e.edges {
		if slot == nil || !slot.alive {
			continue
		}
		snap.Edges = append(snap.Edges, EdgeSnapshot{
			ID:         EdgeID(id),
			SourceNode: slot.sourceNode,
			OutputPort: slot.outputPort,
			SinkNode:   slot.sinkNode,
			InputPort:  slot.inputPort,
		})
	}
	return snap
}

func copyEdgeLists(src [][]EdgeID) [][]EdgeID {
	out := make([][]EdgeID, len(src))
	for i, s := range src {
		out[i] = append([]EdgeID(nil), s...)
	}
	return out
}

// MarkStarted records that Starter.Start has fired for node id, so a
// future Snapshot reports Started true and the Compiler does not fire it
// again.
func (e *Editor) MarkStarted(id NodeID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if slot := e.nodes[id]; slot != nil {
		slot.started = true
	}
}

// MarkActive sets node id's active flag directly, bypassing the renderer's
// deferred messages. Every node starts out active when AddNode creates it;
// a node marked inactive is left out of the next compiled Plan.
func (e *Editor) MarkActive(id NodeID, active bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if slot := e.nodes[id]; slot != nil {
		slot.active = active
	}
}
