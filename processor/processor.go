package processor

import "code.hybscloud.com/tesi/buffer"

// Context carries the per-tick inputs and outputs a Processor reads and
// writes during Process. The renderer builds a fresh Context for every
// Process call over the buffers the Plan bound for the node; Process must
// not retain it past the call.
type Context struct {
	SampleRate   float64
	NumFrames    int
	AudioInputs  []*buffer.Audio
	AudioOutputs []*buffer.Audio
	EventInputs  []*buffer.Event
	EventOutputs []*buffer.Event
}

// Status is the real-time process loop's only decision input: whether a
// node has more to produce, or is done and may be deactivated (§4.7).
type Status int

const (
	Continue Status = iota
	Finished
)

// Processed is the result of one Process call.
type Processed struct {
	Status Status
	// TailFrames, set only alongside Finished, reports that the processor
	// continues to need TailFrames additional frames (e.g. a reverb or
	// delay's trailing silence) before it may actually be deactivated; the
	// renderer counts them down by each tick's frame count. Nil means
	// deactivate immediately. See SPEC_FULL.md
	// Open Question (b).
	TailFrames *uint32
}

// Processor is the contract a graph node's processing unit implements.
//
// Initialize runs once, off the audio thread, and may allocate. Process
// and Reset run on the audio thread and must not allocate, lock, or block.
//
// Grounded on original_source/crates/graph/src/proc.rs's lean Processor
// trait — not the richer editor/activate/GUI-capable trait in
// crates/processor/src/processor.rs, which is out of scope.
type Processor interface {
	Initialize(sampleRate float64, maxNumFrames int)
	Process(ctx *Context) Processed
	Reset()
}

// Starter is an optional extension a Processor may implement to receive a
// one-time notification when render.Renderer.Commit first publishes a Plan
// that includes its node. Restores the original's start() lifecycle hook
// (SPEC_FULL.md Supplemented Feature 4).
type Starter interface {
	Start()
}

// Stopper is an optional extension a Processor may implement to receive a
// notification when its node is dropped from a Plan, or when the
// Renderer is Reset. Restores the original's stop() lifecycle hook.
type Stopper interface {
	Stop()
}
