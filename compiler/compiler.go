package compiler

import (
	"sort"

	"code.hybscloud.com/tesi/buffer"
	"code.hybscloud.com/tesi/graph"
	"code.hybscloud.com/tesi/processor"
)

// Event ports carry no size declaration of their own (processor.Port only
// records NumChannels for audio), so every event buffer in a Plan is sized
// uniformly from these constants. A processor needing more room packs
// larger, fewer events per tick rather than raising these.
const (
	defaultEventCapacityBytes = 4096
	defaultMaxEventEntries    = 256
	defaultEventEntrySize     = 32
)

// portCategory records where one absolute port index lands within the
// Context slice (AudioInputs, AudioOutputs, EventInputs, or EventOutputs)
// that its Kind and Direction select.
type portCategory struct {
	kind      processor.Kind
	direction processor.Direction
	relIndex  int
}

// portLayout is the precomputed shape of one node's Ports: the
// direction-relative numbering graph.Editor.AddEdge's outputPort/inputPort
// parameters use (all kinds mixed, in declaration order), and each port's
// category.
type portLayout struct {
	dirRelToAbs [2][]int // indexed by processor.Direction
	categories  []portCategory
}

func buildPortLayout(ports []processor.Port) portLayout {
	l := portLayout{categories: make([]portCategory, len(ports))}
	var audioInN, audioOutN, eventInN, eventOutN int
	for abs, p := range ports {
		l.dirRelToAbs[p.Direction] = append(l.dirRelToAbs[p.Direction], abs)
		switch {
		case p.Kind == processor.KindAudio && p.Direction == processor.DirectionInput:
			l.categories[abs] = portCategory{p.Kind, p.Direction, audioInN}
			audioInN++
		case p.Kind == processor.KindAudio && p.Direction == processor.DirectionOutput:
			l.categories[abs] = portCategory{p.Kind, p.Direction, audioOutN}
			audioOutN++
		case p.Kind == processor.KindEvent && p.Direction == processor.DirectionInput:
			l.categories[abs] = portCategory{p.Kind, p.Direction, eventInN}
			eventInN++
		default:
			l.categories[abs] = portCategory{p.Kind, p.Direction, eventOutN}
			eventOutN++
		}
	}
	return l
}

// portRef names one port on one node, addressed by the node's position
// within the topological Order and the port's absolute index within that
// node's Ports.
type portRef struct {
	node int
	port int
}

// compileGraph is the order-indexed view of a Snapshot's active subgraph
// the two liveness passes (sizeLiveness, bindLiveness) walk identically.
type compileGraph struct {
	order     []graph.NodeSnapshot
	layouts   []portLayout
	indexByID map[graph.NodeID]int
	// producerOf maps a connected input port to the output port that feeds
	// it; an unconnected input has no entry.
	producerOf map[portRef]portRef
	// consumers maps an output port to every connected input reading it;
	// an unconnected (dangling) output has no entry.
	consumers map[portRef][]portRef
}

// topologicalOrder runs Kahn's algorithm over the Snapshot's active nodes
// and edges (inactive nodes and any edge touching one are excluded
// entirely — a deactivated node is simply not scheduled). Ties are broken
// by NodeID so Compile is deterministic given the same Snapshot.
func topologicalOrder(snap graph.Snapshot) ([]graph.NodeSnapshot, map[graph.NodeID]int, error) {
	byID := make(map[graph.NodeID]graph.NodeSnapshot, len(snap.Nodes))
	active := make(map[graph.NodeID]bool, len(snap.Nodes))
	for _, n := range snap.Nodes {
		byID[n.ID] = n
		if n.Active {
			active[n.ID] = true
		}
	}

	indegree := make(map[graph.NodeID]int, len(active))
	adj := make(map[graph.NodeID][]graph.NodeID, len(active))
	for id := range active {
		indegree[id] = 0
	}
	for _, e := range snap.Edges {
		if !active[e.SourceNode] || !active[e.SinkNode] {
			continue
		}
		adj[e.SourceNode] = append(adj[e.SourceNode], e.SinkNode)
		indegree[e.SinkNode]++
	}

	var ready []graph.NodeID
	for id := range active {
		if indegree[id] == 0 {
			ready = append(ready, id)
		}
	}

	order := make([]graph.NodeSnapshot, 0, len(active))
	indexByID := make(map[graph.NodeID]int, len(active))
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return ready[i] < ready[j] })
		id := ready[0]
		ready = ready[1:]
		indexByID[id] = len(order)
		order = append(order, byID[id])
		for _, succ := range adj[id] {
			indegree[succ]--
			if indegree[succ] == 0 {
				ready = append(ready, succ)
			}
		}
	}
	if len(order) != len(active) {
		return nil, nil, ErrCycle
	}
	return order, indexByID, nil
}

func buildCompileGraph(snap graph.Snapshot) (*compileGraph, error) {
	order, indexByID, err := topologicalOrder(snap)
	if err != nil {
		return nil, err
	}

	cg := &compileGraph{
		order:      order,
		layouts:    make([]portLayout, len(order)),
		indexByID:  indexByID,
		producerOf: make(map[portRef]portRef),
		consumers:  make(map[portRef][]portRef),
	}
	for i, n := range order {
		cg.layouts[i] = buildPortLayout(n.Ports)
	}

	for _, e := range snap.Edges {
		srcIdx, srcOK := indexByID[e.SourceNode]
		sinkIdx, sinkOK := indexByID[e.SinkNode]
		if !srcOK || !sinkOK {
			continue // one endpoint is inactive; edge is excluded from this Plan
		}
		srcAbs := cg.layouts[srcIdx].dirRelToAbs[processor.DirectionOutput][e.OutputPort]
		sinkAbs := cg.layouts[sinkIdx].dirRelToAbs[processor.DirectionInput][e.InputPort]
		out := portRef{srcIdx, srcAbs}
		in := portRef{sinkIdx, sinkAbs}
		cg.producerOf[in] = out
		cg.consumers[out] = append(cg.consumers[out], in)
	}
	return cg, nil
}

// Compile builds a Plan from a graph Snapshot (§4.6): a topological
// schedule of every active node, with every output and every connected
// input bound to an arena-backed buffer via the liveness-based assignment
// of §4.4. An unconnected audio input is left unbound and marked
// constant-value 0; an unconnected event input gets its own standalone
// buffer outside the arena.
//
// Grounded on original_source/crates/graph/src/alloc.rs's compile function
// (the sizing pass) combined with crates/graph/src/render/single_threaded.rs's
// State::assign_buffers (the binding pass) — kept here as two explicit
// passes over the same walk rather than the original's single allocator
// simulation, so the arena is sized correctly before any real buffer is
// acquired.
func Compile(snap graph.Snapshot) (*Plan, error) {
	cg, err := buildCompileGraph(snap)
	if err != nil {
		return nil, err
	}

	audioPeak, audioBreadth, eventPeak, eventBreadth := sizeLiveness(cg)

	workers := snap.Options.NumWorkers
	if workers == 0 {
		workers = 1 // the sequential fallback still runs as one worker: the audio thread itself
	}
	audioArena := buffer.NewAudioArena(audioPeak+audioBreadth*workers, snap.Options.MaxNumFrames)
	eventArena := buffer.NewEventArena(eventPeak+eventBreadth*workers, defaultEventCapacityBytes, defaultMaxEventEntries, defaultEventEntrySize)

	nodes, err := bindLiveness(cg, audioArena, eventArena, snap.Options.MaxNumFrames)
	if err != nil {
		return nil, err
	}

	return &Plan{
		Order:        nodes,
		IndexByID:    cg.indexByID,
		RootInput:    cg.indexByID[snap.RootInput],
		RootOutput:   cg.indexByID[snap.RootOutput],
		AudioArena:   audioArena,
		EventArena:   eventArena,
		NumWorkers:   snap.Options.NumWorkers,
		MaxNumFrames: snap.Options.MaxNumFrames,
		SampleRate:   snap.Options.SampleRate,
	}, nil
}
