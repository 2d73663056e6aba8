package graph

// EdgeID identifies an edge's slot within an Editor.
type EdgeID int

type edgeSlot struct {
	alive      bool
	sourceNode NodeID
	outputPort int
	sinkNode   NodeID
	inputPort  int
}

// EdgeHandle is a reference to an edge. Edges carry no reference count of
// their own: Release on any handle to the edge disconnects it.
type EdgeHandle struct {
	editor *Editor
	id     EdgeID
}

// ID returns the handle's edge identity.
func (h EdgeHandle) ID() EdgeID { return h.id }

// Source returns the edge's source node and output port index.
func (h EdgeHandle) Source() (NodeHandle, int) {
	h.editor.mu.Lock()
	defer h.editor.mu.Unlock()
	e := h.editor.edges[h.id]
	return h.editor.handleFor(e.sourceNode), e.outputPort
}

// Sink returns the edge's sink node and input port index.
func (h EdgeHandle) Sink() (NodeHandle, int) {
	h.editor.mu.Lock()
	defer h.editor.mu.Unlock()
	e := h.editor.edges[h.id]
	return h.editor.handleFor(e.sinkNode), e.inputPort
}

// Release disconnects this edge.
func (h EdgeHandle) Release() {
	h.editor.releaseEdge(h.id)
}
