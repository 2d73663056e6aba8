package compiler

import (
	"code.hybscloud.com/tesi/buffer"
	"code.hybscloud.com/tesi/processor"
)

// sizeLiveness dry-runs the acquire/release order bindLiveness performs
// for real, to compute each arena's required block count: the peak number
// of concurrently live blocks, and the widest single node's acquisition
// (the per-worker scratch reservation the worker-pool renderer needs,
// §4.8). Walking the same order twice — once to size, once to bind — keeps
// the binding pass simple: by the time it runs, the arena is already known
// to be large enough.
func sizeLiveness(cg *compileGraph) (audioPeak, audioBreadth, eventPeak, eventBreadth int) {
	audioLive, eventLive := 0, 0
	audioPending := make(map[portRef]int)
	eventPending := make(map[portRef]int)

	for nodeIdx, n := range cg.order {
		stepAudio, stepEvent := 0, 0

		// acquire outputs: every output needs a real block to write into,
		// whether or not anything reads it (a dangling output still has a
		// Process call writing through it every tick).
		for abs, p := range n.Ports {
			if p.Direction != processor.DirectionOutput {
				continue
			}
			ref := portRef{nodeIdx, abs}
			consumers := cg.consumers[ref]
			switch p.Kind {
			case processor.KindAudio:
				stepAudio += p.NumChannels
				if len(consumers) == 0 {
					continue // released again below, in the same step
				}
				audioPending[ref] = len(consumers)
			case processor.KindEvent:
				stepEvent++
				if len(consumers) == 0 {
					continue
				}
				eventPending[ref] = len(consumers)
			}
		}
		audioLive += stepAudio
		eventLive += stepEvent
		if audioLive > audioPeak {
			audioPeak = audioLive
		}
		if eventLive > eventPeak {
			eventPeak = eventLive
		}
		if stepAudio > audioBreadth {
			audioBreadth = stepAudio
		}
		if stepEvent > eventBreadth {
			eventBreadth = stepEvent
		}

		// release this node's own dangling outputs immediately: nothing
		// will ever decrement their pending count to zero since they were
		// never given one.
		for abs, p := range n.Ports {
			if p.Direction != processor.DirectionOutput {
				continue
			}
			ref := portRef{nodeIdx, abs}
			if len(cg.consumers[ref]) > 0 {
				continue
			}
			switch p.Kind {
			case processor.KindAudio:
				audioLive -= p.NumChannels
			case processor.KindEvent:
				eventLive--
			}
		}

		// release inputs whose producer has now been read by every
		// connected consumer (this node may be the last one).
		for abs, p := range n.Ports {
			if p.Direction != processor.DirectionInput {
				continue
			}
			producer, connected := cg.producerOf[portRef{nodeIdx, abs}]
			if !connected {
				continue
			}
			switch p.Kind {
			case processor.KindAudio:
				audioPending[producer]--
				if audioPending[producer] == 0 {
					audioLive -= cg.order[producer.node].Ports[producer.port].NumChannels
				}
			case processor.KindEvent:
				eventPending[producer]--
				if eventPending[producer] == 0 {
					eventLive--
				}
			}
		}
	}
	return audioPeak, audioBreadth, eventPeak, eventBreadth
}

// bindLiveness performs the real acquire/propagate/release pass sizeLiveness
// dry-ran, producing one Node per scheduled node with every port bound to
// an arena block — a producer's output and every connected consumer's
// input slot end up pointing at the same physical block (buffer.Audio's
// AssignTo / buffer.EventArena's shared index), never a sample copy.
func bindLiveness(cg *compileGraph, audioArena *buffer.AudioArena, eventArena *buffer.EventArena, maxFrames int) ([]Node, error) {
	nodes := make([]Node, len(cg.order))
	eventOutIdx := make(map[portRef]uint32)

	for i, n := range cg.order {
		layout := cg.layouts[i]
		var audioInN, audioOutN, eventInN, eventOutN int
		for _, c := range layout.categories {
			switch {
			case c.kind == processor.KindAudio && c.direction == processor.DirectionInput:
				audioInN++
			case c.kind == processor.KindAudio && c.direction == processor.DirectionOutput:
				audioOutN++
			case c.kind == processor.KindEvent && c.direction == processor.DirectionInput:
				eventInN++
			case c.kind == processor.KindEvent && c.direction == processor.DirectionOutput:
				eventOutN++
			}
		}
		nodes[i] = Node{
			ID:           n.ID,
			Proc:         n.Proc,
			Ports:        n.Ports,
			AudioInputs:  make([]*buffer.Audio, audioInN),
			AudioOutputs: make([]*buffer.Audio, audioOutN),
			EventInputs:  make([]*buffer.Event, eventInN),
			EventOutputs: make([]*buffer.Event, eventOutN),
			StartNeeded:  !n.Started,
		}
		for abs, p := range n.Ports {
			cat := layout.categories[abs]
			switch {
			case p.Kind == processor.KindAudio && p.Direction == processor.DirectionInput:
				a := buffer.NewAudio(p.NumChannels)
				a.SetNumFrames(maxFrames)
				nodes[i].AudioInputs[cat.relIndex] = a
			case p.Kind == processor.KindAudio && p.Direction == processor.DirectionOutput:
				a := buffer.NewAudio(p.NumChannels)
				a.SetNumFrames(maxFrames)
				nodes[i].AudioOutputs[cat.relIndex] = a
			}
		}
	}

	// static successor lists and in-degrees, for the worker-pool scheduler.
	seen := make([]map[int]bool, len(cg.order))
	for i := range seen {
		seen[i] = make(map[int]bool)
	}
	for ref, cs := range cg.consumers {
		for _, c := range cs {
			if !seen[ref.node][c.node] {
				seen[ref.node][c.node] = true
				nodes[ref.node].Successors = append(nodes[ref.node].Successors, c.node)
			}
		}
	}
	// NumIncoming must count distinct producer NODES, not connected input
	// ports: runWorkers' complete() decrements a successor once per
	// producer (Successors is itself deduplicated per node above), so two
	// edges from the same producer into the same consumer must only count
	// as one completion, or the consumer's counter never reaches zero.
	for i, n := range cg.order {
		producers := make(map[int]bool)
		for abs, p := range n.Ports {
			if p.Direction != processor.DirectionInput {
				continue
			}
			if producer, connected := cg.producerOf[portRef{i, abs}]; connected {
				producers[producer.node] = true
			}
		}
		nodes[i].NumIncoming = len(producers)
	}

	audioPending := make(map[portRef]int)
	eventPending := make(map[portRef]int)

	// releaseBlocks returns a's blocks to the free list while leaving a
	// itself bound: the Plan keeps every output pointing at its block for
	// rendering, only the arena's bookkeeping marks the block reusable.
	releaseBlocks := func(a *buffer.Audio) {
		tmp := buffer.NewAudio(a.NumChannels())
		a.AssignTo(tmp)
		audioArena.Release(tmp)
	}

	for nodeIdx, n := range cg.order {
		layout := cg.layouts[nodeIdx]

		for abs, p := range n.Ports {
			if p.Direction != processor.DirectionOutput {
				continue
			}
			cat := layout.categories[abs]
			ref := portRef{nodeIdx, abs}
			consumers := cg.consumers[ref]

			switch p.Kind {
			case processor.KindAudio:
				out := nodes[nodeIdx].AudioOutputs[cat.relIndex]
				if !audioArena.Acquire(out) {
					return nil, ErrArenaExhausted
				}
				if len(consumers) == 0 {
					releaseBlocks(out)
					continue
				}
				audioPending[ref] = len(consumers)
				for _, c := range consumers {
					cCat := cg.layouts[c.node].categories[c.port]
					out.AssignTo(nodes[c.node].AudioInputs[cCat.relIndex])
				}
			case processor.KindEvent:
				buf, idx, ok := eventArena.Acquire()
				if !ok {
					return nil, ErrArenaExhausted
				}
				nodes[nodeIdx].EventOutputs[cat.relIndex] = buf
				eventOutIdx[ref] = idx
				if len(consumers) == 0 {
					eventArena.Release(idx)
					continue
				}
				eventPending[ref] = len(consumers)
				for _, c := range consumers {
					cCat := cg.layouts[c.node].categories[c.port]
					nodes[c.node].EventInputs[cCat.relIndex] = buf
				}
			}
		}

		for abs, p := range n.Ports {
			if p.Direction != processor.DirectionInput {
				continue
			}
			producer, connected := cg.producerOf[portRef{nodeIdx, abs}]
			if !connected {
				continue
			}
			switch p.Kind {
			case processor.KindAudio:
				audioPending[producer]--
				if audioPending[producer] == 0 {
					pCat := cg.layouts[producer.node].categories[producer.port]
					releaseBlocks(nodes[producer.node].AudioOutputs[pCat.relIndex])
				}
			case processor.KindEvent:
				eventPending[producer]--
				if eventPending[producer] == 0 {
					eventArena.Release(eventOutIdx[producer])
				}
			}
		}
	}

	// An unconnected input port was never bound by any producer above: an
	// audio input falls back to the constant-value silence fast path, an
	// event input gets a standalone, never-shared empty buffer, so a
	// Processor can always read its declared ports without a nil check.
	for i := range nodes {
		for _, a := range nodes[i].AudioInputs {
			if !a.Bound() {
				a.SetConstantValue(0)
			}
		}
		for j, e := range nodes[i].EventInputs {
			if e == nil {
				nodes[i].EventInputs[j] = buffer.NewEvent(defaultEventCapacityBytes, defaultMaxEventEntries, defaultEventEntrySize)
			}
		}
	}

	return nodes, nil
}
