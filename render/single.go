package render

import (
	"code.hybscloud.com/tesi/compiler"
	"code.hybscloud.com/tesi/graph"
	"code.hybscloud.com/tesi/internal/ringq"
	"code.hybscloud.com/tesi/internal/rt"
	"code.hybscloud.com/tesi/processor"
)

// RenderTick runs one audio block: binds hostInput into the root input
// node's output, runs the Plan (sequentially, or across NumWorkers workers
// plus the calling thread, per the published Plan), then copies the root
// output node's input into hostOutput. hostInput and hostOutput are
// channel-major ([channel][frame]) slices sized to the Editor's configured
// channel counts; numFrames must not exceed the Plan's MaxNumFrames.
//
// Grounded on original_source/crates/graph/src/render/single_threaded.rs's
// per-tick process_node loop for the NumWorkers == 0 path.
func (r *Renderer) RenderTick(hostInput, hostOutput [][]float32, numFrames int) {
	guard := r.current.Read()
	defer guard.Release()
	bp := *guard.Value()
	plan := bp.plan
	inbox := r.editor.Inbox()

	if !r.bindHostInput(&plan.Order[plan.RootInput], hostInput, numFrames) {
		return
	}

	if plan.NumWorkers <= 0 {
		r.runSequential(bp, inbox, numFrames)
	} else {
		r.runWorkers(bp, inbox, numFrames)
	}

	r.readHostOutput(&plan.Order[plan.RootOutput], hostOutput, numFrames)
}

// FatalMessages returns the real-time-safe invariant-violation reporter the
// audio path writes to. The host should poll this off the audio thread
// (e.g. once per UI tick) rather than from within RenderTick.
func (r *Renderer) FatalMessages() *rt.Fatal {
	return r.fatal
}

// bindHostInput copies the host-owned input samples into the root input
// node's single audio output port. A real copy, not a pointer rebind: the
// host buffer's lifetime is the callback's, shorter than the Plan's bound
// arena block, so the node's own block is kept and filled every tick
// instead of being swapped for the host's pointer.
//
// Reports through internal/rt.Fatal rather than panicking or indexing out
// of range if the host gave fewer channels than the Plan was compiled for
// — a real-time-safe way to surface a host/Plan mismatch that must not
// bring down the audio callback.
func (r *Renderer) bindHostInput(root *compiler.Node, hostInput [][]float32, numFrames int) bool {
	if len(root.AudioOutputs) == 0 {
		return true
	}
	out := root.AudioOutputs[0]
	if len(hostInput) < out.NumChannels() {
		r.fatal.Report("render: host input has fewer channels than the compiled Plan")
		return false
	}
	for ch := 0; ch < out.NumChannels(); ch++ {
		copy(out.Channel(ch)[:numFrames], hostInput[ch][:numFrames])
	}
	return true
}

// readHostOutput copies the root output node's bound input samples into
// the host-owned output buffer.
func (r *Renderer) readHostOutput(root *compiler.Node, hostOutput [][]float32, numFrames int) {
	if len(root.AudioInputs) == 0 {
		return
	}
	in := root.AudioInputs[0]
	if len(hostOutput) < in.NumChannels() {
		r.fatal.Report("render: host output has fewer channels than the compiled Plan")
		return
	}
	for ch := 0; ch < in.NumChannels(); ch++ {
		if v, ok := in.ConstantValue(); ok {
			dst := hostOutput[ch][:numFrames]
			for i := range dst {
				dst[i] = v
			}
			continue
		}
		copy(hostOutput[ch][:numFrames], in.Channel(ch)[:numFrames])
	}
}

// runSequential walks Plan.Order once, in order. Plan.Order is already a
// valid topological schedule, so a plain forward walk satisfies every
// node's data dependencies without a ready-queue.
func (r *Renderer) runSequential(bp *boundPlan, inbox *ringq.RingChannel[graph.Message], numFrames int) {
	plan := bp.plan
	for i := range plan.Order {
		node := &plan.Order[i]
		if node.Proc == nil {
			continue // root input/output: filled from / copied to the driver buffers, never processed
		}
		if !bp.active[i] {
			continue // deactivated by a prior tick's Finished result this commit period
		}
		r.processNode(bp, i, plan.SampleRate, inbox, numFrames)
	}
}

// processNode runs one node's Process call and applies its completion
// result. Shared between the sequential and worker-pool paths.
func (r *Renderer) processNode(bp *boundPlan, i int, sampleRate float64, inbox *ringq.RingChannel[graph.Message], numFrames int) {
	node := &bp.plan.Order[i]
	for _, e := range node.EventOutputs {
		e.Reset()
	}
	ctx := processor.Context{
		SampleRate:   sampleRate,
		NumFrames:    numFrames,
		AudioInputs:  node.AudioInputs,
		AudioOutputs: node.AudioOutputs,
		EventInputs:  node.EventInputs,
		EventOutputs: node.EventOutputs,
	}
	processed := node.Proc.Process(&ctx)
	r.finishNode(bp, i, inbox, processed, numFrames)
}
