package graph

import (
	"log/slog"
	"sync"

	"code.hybscloud.com/tesi/internal/ringq"
	"code.hybscloud.com/tesi/processor"
)

// Options configures an Editor (§4.5). It is a plain struct, not a
// file/env config loader: the engine's only configuration surface.
type Options struct {
	NumInputChannels  int
	NumOutputChannels int
	NumWorkers        int
	MaxNumFrames      int
	SampleRate        float64
	// Logger receives edit-thread diagnostics (nodes and edges added or
	// removed, deferred messages applied by CommitChanges). Nil disables
	// logging; there is never any logging on the audio path regardless of
	// this setting.
	Logger *slog.Logger
}

// Editor is the control-thread graph-edit surface: CRUD on nodes and
// edges, cycle detection on every edge add, ref-counted handles.
//
// Grounded on original_source/crates/graph/src/graph.rs's Graph/Inner.
type Editor struct {
	mu sync.Mutex

	opts Options
	log  *slog.Logger

	nodes     []*nodeSlot
	freeNodes []NodeID

	edges     []*edgeSlot
	freeEdges []EdgeID

	inbox *ringq.RingChannel[Message]

	rootInput  NodeID
	rootOutput NodeID
}

// NewEditor returns an Editor configured by opts. Two nodes are created
// automatically: the root input node (one audio output port carrying
// NumInputChannels channels, nothing else — representing the driver's
// input buffer) and the root output node (one audio input port carrying
// NumOutputChannels channels — the driver's output buffer), matching the
// original Graph::new's input_node/output_node. Neither carries a
// Processor; the Renderer copies the caller-supplied driver samples into
// and out of their bound blocks rather than calling Process on them.
func NewEditor(opts Options) *Editor {
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	e := &Editor{
		opts:  opts,
		log:   log,
		inbox: ringq.New[Message](256),
	}
	e.rootInput = e.AddNode(nil, []processor.Port{
		processor.AudioPort("out", processor.DirectionOutput, opts.NumInputChannels),
	}).id
	e.rootOutput = e.AddNode(nil, []processor.Port{
		processor.AudioPort("in", processor.DirectionInput, opts.NumOutputChannels),
	}).id
	return e
}

// RootInput returns a handle to the graph's root input node.
func (e *Editor) RootInput() NodeHandle { return NodeHandle{editor: e, id: e.rootInput} }

// RootOutput returns a handle to the graph's root output node.
func (e *Editor) RootOutput() NodeHandle { return NodeHandle{editor: e, id: e.rootOutput} }

// Options returns the Options the Editor was constructed with.
func (e *Editor) Options() Options { return e.opts }

// Inbox returns the RingChannel the renderer posts deferred messages into.
// Exposed so a Renderer can be wired to the same Editor it was compiled
// from.
func (e *Editor) Inbox() *ringq.RingChannel[Message] {
	return e.inbox
}

// AddNode creates a node with the given port declarations backed by proc,
// and returns a handle with one reference.
func (e *Editor) AddNode(proc processor.Processor, ports []processor.Port) NodeHandle {
	e.mu.Lock()
	defer e.mu.Unlock()

	slot := &nodeSlot{
		alive:  true,
		ports:  append([]processor.Port(nil), ports...),
		proc:   proc,
		active: true,
	}
	slot.refCount.StoreRelease(1)

	numIn, numOut := 0, 0
	for _, p := range ports {
		if p.Direction == processor.DirectionInput {
			numIn++
		} else {
			numOut++
		}
	}
	slot.incoming = make([]EdgeID, numIn)
	for i := range slot.incoming {
		slot.incoming[i] = -1
	}
	slot.outgoing = make([][]EdgeID, numOut)

	if proc != nil {
		proc.Initialize(e.opts.SampleRate, e.opts.MaxNumFrames)
	}

	var id NodeID
	if n := len(e.freeNodes); n > 0 {
		id = e.freeNodes[n-1]
		e.freeNodes = e.freeNodes[:n-1]
		e.nodes[id] = slot
	} else {
		id = NodeID(len(e.nodes))
		e.nodes = append(e.nodes, slot)
	}

	e.log.Debug("node added", "id", id, "ports", len(ports))
	return NodeHandle{editor: e, id: id}
}

// handleFor returns a non-owning handle to an already-alive node, used
// internally where the caller already holds a reference transitively
// (e.g. through an edge).
func (e *Editor) handleFor(id NodeID) NodeHandle {
	return NodeHandle{editor: e, id: id}
}

func (e *Editor) releaseNode(id NodeID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	slot := e.nodes[id]
	if slot == nil || !slot.alive {
		return
	}
	// Every connected edge also holds a reference; once only those remain,
	// no handle is left and the node goes, together with its edges.
	edges := 0
	for _, in := range slot.incoming {
		if in >= 0 {
			edges++
		}
	}
	for _, outs := range slot.outgoing {
		edges += len(outs)
	}
	if slot.refCount.AddAcqRel(-1) > int64(edges) {
		return
	}
	e.removeNodeLocked(id)
}

// removeNodeLocked removes a node and every edge touching it. Caller must
// hold e.mu.
func (e *Editor) removeNodeLocked(id NodeID) {
	slot := e.nodes[id]
	if slot == nil || !slot.alive {
		return
	}
	slot.alive = false
	for _, in := range slot.incoming {
		if in >= 0 {
			e.disconnectLocked(in)
		}
	}
	for _, outs := range slot.outgoing {
		for _, eid := range append([]EdgeID(nil), outs...) {
			e.disconnectLocked(eid)
		}
	}
	e.nodes[id] = nil
	e.freeNodes = append(e.freeNodes, id)
	e.log.Debug("node removed", "id", id)
}

// AddEdge connects source's output port to sink's input port. It fails
// transactionally (no partial state) with InvalidPort, InvalidPortType,
// AlreadyConnected, CycleDetected, Graph, or Lifetime per spec.md §7.
func (e *Editor) AddEdge(source NodeHandle, outputPort int, sink NodeHandle, inputPort int) (EdgeHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if source.editor != e || sink.editor != e {
		return EdgeHandle{}, newError(KindGraph, "handles belong to a different editor")
	}
	srcSlot := e.nodes[source.id]
	sinkSlot := e.nodes[sink.id]
	if srcSlot == nil || !srcSlot.alive || sinkSlot == nil || !sinkSlot.alive {
		return EdgeHandle{}, newError(KindLifetime, "node no longer exists")
	}

	outIdx, ok := portIndex(srcSlot.ports, processor.DirectionOutput, outputPort)
	if !ok {
		return EdgeHandle{}, newError(KindInvalidPort, "source output port out of range")
	}
	inIdx, ok := portIndex(sinkSlot.ports, processor.DirectionInput, inputPort)
	if !ok {
		return EdgeHandle{}, newError(KindInvalidPort, "sink input port out of range")
	}
	if !processor.Compatible(srcSlot.ports[outIdx], sinkSlot.ports[inIdx]) {
		return EdgeHandle{}, newError(KindInvalidPortType, "incompatible port kinds or channel counts")
	}
	if sinkSlot.incoming[inputPort] >= 0 {
		return EdgeHandle{}, newError(KindAlreadyConnected, "sink input port already has an edge")
	}
	if e.reachableLocked(sink.id, source.id) {
		return EdgeHandle{}, newError(KindCycleDetected, "edge would close a cycle")
	}

	slot := &edgeSlot{
		alive:      true,
		sourceNode: source.id,
		outputPort: outputPort,
		sinkNode:   sink.id,
		inputPort:  inputPort,
	}
	var id EdgeID
	if n := len(e.freeEdges); n > 0 {
		id = e.freeEdges[n-1]
		e.freeEdges = e.freeEdges[:n-1]
		e.edges[id] = slot
	} else {
		id = EdgeID(len(e.edges))
		e.edges = append(e.edges, slot)
	}

	srcSlot.refCount.AddAcqRel(1)
	sinkSlot.refCount.AddAcqRel(1)
	srcSlot.outgoing[outputPort] = append(srcSlot.outgoing[outputPort], id)
	sinkSlot.incoming[inputPort] = id

	e.log.Debug("edge added", "id", id, "source", source.id, "sink", sink.id)
	return EdgeHandle{editor: e, id: id}, nil
}

// portIndex maps a zero-based index within one direction's ports (the
// public numbering: "output port 0" means the first output-direction
// port) to its slot in the combined ports slice.
func portIndex(ports []processor.Port, dir processor.Direction, n int) (int, bool) {
	count := 0
	for i, p := range ports {
		if p.Direction != dir {
			continue
		}
		if count == n {
			return i, true
		}
		count++
	}
	return 0, false
}

func (e *Editor) releaseEdge(id EdgeID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.disconnectLocked(id)
}

// disconnectLocked removes an edge, decrementing both endpoints'
// reference counts (which may cascade into removing a node whose last
// edge this was). Caller must hold e.mu.
func (e *Editor) disconnectLocked(id EdgeID) {
	slot := e.edges[id]
	if slot == nil || !slot.alive {
		return
	}
	slot.alive = false
	e.edges[id] = nil
	e.freeEdges = append(e.freeEdges, id)

	if src := e.nodes[slot.sourceNode]; src != nil {
		outs := src.outgoing[slot.outputPort]
		for i, eid := range outs {
			if eid == id {
				src.outgoing[slot.outputPort] = append(outs[:i], outs[i+1:]...)
				break
			}
		}
	}
	if sink := e.nodes[slot.sinkNode]; sink != nil {
		sink.incoming[slot.inputPort] = -1
	}

	if src := e.nodes[slot.sourceNode]; src != nil && src.refCount.AddAcqRel(-1) <= 0 {
		e.removeNodeLocked(slot.sourceNode)
	}
	if sink := e.nodes[slot.sinkNode]; sink != nil && sink.refCount.AddAcqRel(-1) <= 0 {
		e.removeNodeLocked(slot.sinkNode)
	}
}

// reachableLocked reports whether a forward walk of outgoing edges from
// "from" can reach "to" — used to reject an edge that would close a
// cycle. Caller must hold e.mu.
func (e *Editor) reachableLocked(from, to NodeID) bool {
	if from == to {
		return true
	}
	visited := make(map[NodeID]bool)
	stack := []NodeID{from}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[n] {
			continue
		}
		visited[n] = true
		slot := e.nodes[n]
		if slot == nil {
			continue
		}
		for _, outs := range slot.outgoing {
			for _, eid := range outs {
				edge := e.edges[eid]
				if edge == nil {
					continue
				}
				if edge.sinkNode == to {
					return true
				}
				if !visited[edge.sinkNode] {
					stack = append(stack, edge.sinkNode)
				}
			}
		}
	}
	return false
}

// postMessage makes one attempt to post msg into the deferred-message
// channel and drops it if the channel is full (the edit thread has not
// drained it yet), the same policy as the renderer's own postMessage: it
// never spins, so a caller on the audio thread is never stalled.
func (e *Editor) postMessage(msg Message) {
	txn, ok := e.inbox.Write(1)
	if !ok || len(txn.Slice) != 1 {
		return
	}
	txn.Slice[0] = msg
	txn.Commit()
}

// CommitChanges drains every deferred message the renderer has posted
// since the last call and applies it: RemoveNode marks the node inactive
// (so the next Compile leaves it out of the Plan), ReactivateNode marks it
// active again, and LatencyChanged is only logged (see SPEC_FULL.md Open
// Question (a)).
func (e *Editor) CommitChanges() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for {
		txn, ok := e.inbox.Read()
		if !ok || len(txn.Slice) == 0 {
			return
		}
		for _, msg := range txn.Slice {
			e.applyMessageLocked(msg)
		}
		txn.Commit()
	}
}

func (e *Editor) applyMessageLocked(msg Message) {
	switch msg.Kind {
	case MessageNop:
	case MessageRemoveNode:
		if slot := e.nodes[msg.NodeID]; slot != nil {
			slot.active = false
		}
		e.log.Info("node deactivated", "id", msg.NodeID)
	case MessageReactivateNode:
		if slot := e.nodes[msg.NodeID]; slot != nil {
			slot.active = true
		}
		e.log.Info("node reactivated", "id", msg.NodeID)
	case MessageLatencyChanged:
		e.log.Info("node latency changed", "id", msg.NodeID, "samples", msg.Samples)
	}
}
