// Package render executes a compiled Plan against real driver buffers,
// once per audio callback (§4.7, §4.8).
//
// Grounded on original_source/crates/graph/src/render/single_threaded.rs
// (the sequential path) and crates/graph/src/renderer.rs (the worker-pool
// path); both share the Plan a compiler.Compile call produces, so neither
// renderer re-derives buffer bindings or schedule order itself.
package render

import (
	"log/slog"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/tesi/compiler"
	"code.hybscloud.com/tesi/graph"
	"code.hybscloud.com/tesi/internal/ringq"
	"code.hybscloud.com/tesi/internal/rt"
	"code.hybscloud.com/tesi/internal/swap"
	"code.hybscloud.com/tesi/processor"
)

// boundPlan pairs a Plan with the per-tick and cross-tick mutable
// scheduling state neither Plan itself nor the renderer's edit-thread-only
// fields can hold: each node's remaining-input counter (worker-pool path
// only, reset from Plan's static NumIncoming at the top of every tick; the
// sequential path ignores it — Plan.Order is already a valid topological
// walk on its own), and each node's in-plan active flag, which persists
// across ticks between commits.
//
// active starts all true when a Plan is first published. A node whose
// Process call reports Finished with no TailFrames is deactivated
// in-place (§4.7 bullet 4, original's single_threaded.rs:77-85): future
// ticks skip calling Process on it entirely and its bound outputs stay at
// the zeroed/constant value applied at the moment of deactivation, until
// the next Commit drops it from the Plan for good. Only this Renderer
// mutates active, and only index i of a node it is actively processing —
// never two goroutines touch the same index — so a plain []bool needs no
// atomics.
type boundPlan struct {
	plan      *compiler.Plan
	remaining []atomix.Int64
	active    []bool
}

// Renderer owns the currently published Plan and drives it against driver
// buffers every tick. One Renderer is built over one graph.Editor; Commit
// installs a freshly compiled Plan, RenderTick runs one block.
type Renderer struct {
	editor *graph.Editor
	log    *slog.Logger
	fatal  *rt.Fatal

	current *swap.TripleBuffer[*boundPlan]

	// prevOrder is the previous Plan's node set, kept only on the commit
	// path (never touched by RenderTick) to fire Stopper.Stop on nodes
	// dropped from a new Plan.
	prevOrder []compiler.Node

	// tailRemaining tracks, in frames, how much longer a Finished node with
	// non-nil TailFrames must keep running before it is deactivated
	// (SPEC_FULL.md Open Question (b)).
	tailRemaining map[graph.NodeID]uint32
}

// New builds a Renderer with an initial Plan compiled from editor's current
// topology. log may be nil to discard diagnostics.
func New(editor *graph.Editor, log *slog.Logger) (*Renderer, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	r := &Renderer{
		editor:        editor,
		log:           log,
		fatal:         &rt.Fatal{},
		tailRemaining: make(map[graph.NodeID]uint32),
	}
	if err := r.Commit(); err != nil {
		return nil, err
	}
	return r, nil
}

// Commit recompiles the editor's current topology and publishes the result
// as the Plan RenderTick reads next. Safe to call only from the edit
// thread — never from within RenderTick or a Processor's Process/Reset.
//
// Fires Starter.Start for every node newly included in the new Plan (and
// records it via graph.Editor.MarkStarted so it never fires twice), and
// Stopper.Stop for every node present in the previous Plan but absent from
// the new one.
func (r *Renderer) Commit() error {
	snap := r.editor.Snapshot()
	plan, err := compiler.Compile(snap)
	if err != nil {
		return err
	}

	newByID := make(map[graph.NodeID]bool, len(plan.Order))
	for i := range plan.Order {
		n := &plan.Order[i]
		newByID[n.ID] = true
		if n.StartNeeded {
			if starter, ok := n.Proc.(interface{ Start() }); ok {
				starter.Start()
			}
			r.editor.MarkStarted(n.ID)
		}
	}
	for _, n := range r.prevOrder {
		if newByID[n.ID] {
			continue
		}
		if stopper, ok := n.Proc.(interface{ Stop() }); ok {
			stopper.Stop()
		}
		delete(r.tailRemaining, n.ID)
	}
	r.prevOrder = plan.Order

	active := make([]bool, len(plan.Order))
	for i := range active {
		active[i] = true
	}
	bp := &boundPlan{plan: plan, remaining: make([]atomix.Int64, len(plan.Order)), active: active}
	if r.current == nil {
		r.current = swap.New[*boundPlan](bp)
	} else {
		r.current.Write(bp)
	}
	r.log.Debug("plan committed", "nodes", len(plan.Order), "workers", plan.NumWorkers)
	return nil
}

// Reset calls Stopper.Stop on every node in the currently published Plan
// and clears all tail-frame tracking, without changing the Plan itself —
// used when the host transport stops and restarts rather than on a normal
// topology edit.
func (r *Renderer) Reset() {
	guard := r.current.Read()
	defer guard.Release()
	bp := *guard.Value()
	for i := range bp.plan.Order {
		n := &bp.plan.Order[i]
		if stopper, ok := n.Proc.(interface{ Stop() }); ok {
			stopper.Stop()
		}
		if n.Proc != nil {
			n.Proc.Reset()
		}
	}
	r.tailRemaining = make(map[graph.NodeID]uint32)
}

// postMessage makes one attempt to enqueue a deferred message into the
// editor's inbox and drops it if the ring is momentarily full, rather than
// retrying — the audio thread must never spin unboundedly (§5). Mirrors
// the original's post_message (single_threaded.rs), which returns
// immediately when write yields None, and graph.Editor's own unexported
// postMessage, duplicated here since render only has the public
// RingChannel handle from Editor.Inbox().
func postMessage(inbox *ringq.RingChannel[graph.Message], msg graph.Message) {
	txn, ok := inbox.Write(1)
	if !ok || len(txn.Slice) != 1 {
		return
	}
	txn.Slice[0] = msg
	txn.Commit()
}

// zeroNodeOutputs clears a deactivated node's bound outputs so downstream
// consumers read silence/empty instead of its last real tick's data: audio
// outputs fall back to the constant-value fast path, event outputs are
// reset to empty.
func zeroNodeOutputs(node *compiler.Node) {
	for _, a := range node.AudioOutputs {
		a.SetConstantValue(0)
	}
	for _, e := range node.EventOutputs {
		e.Reset()
	}
}

// finishNode applies a Process result's completion semantics (§4.7): a
// plain Finished deactivates the node in-place immediately (bp.active[i]
// set false, outputs zeroed, RemoveNode posted once) so later ticks this
// commit period skip it entirely; Finished carrying TailFrames instead
// counts down by numFrames each subsequent tick, leaving the node active
// and processing until the tail is exhausted.
func (r *Renderer) finishNode(bp *boundPlan, i int, inbox *ringq.RingChannel[graph.Message], processed processor.Processed, numFrames int) {
	node := &bp.plan.Order[i]
	id := node.ID
	if processed.Status == processor.Continue {
		delete(r.tailRemaining, id)
		return
	}
	if processed.TailFrames == nil {
		delete(r.tailRemaining, id)
		bp.active[i] = false
		zeroNodeOutputs(node)
		postMessage(inbox, graph.Message{Kind: graph.MessageRemoveNode, NodeID: id})
		return
	}
	remaining, tracking := r.tailRemaining[id]
	if !tracking {
		remaining = *processed.TailFrames
	}
	if remaining <= uint32(numFrames) {
		delete(r.tailRemaining, id)
		bp.active[i] = false
		zeroNodeOutputs(node)
		postMessage(inbox, graph.Message{Kind: graph.MessageRemoveNode, NodeID: id})
		return
	}
	r.tailRemaining[id] = remaining - uint32(numFrames)
}
