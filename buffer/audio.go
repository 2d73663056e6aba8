// Package buffer implements the audio and event buffers the render path
// passes between nodes, and the fixed-slab arenas that hand out and
// reclaim them without allocating (§3, §4.3).
//
// Grounded on original_source/crates/buffer/src/audio.rs and
// crates/buffer/src/event.rs.
package buffer

import (
	"math"

	"code.hybscloud.com/tesi/internal/rt"
)

// noConstantValue is the sentinel marking an AudioBuffer as not
// constant-valued: a signaling NaN bit pattern distinct from any value a
// processor would legitimately produce, matching the original's
// NO_CONSTANT_VALUE sentinel.
const noConstantValue = math.Float32frombits(0x7fa00000)

// Audio is a multi-channel block of audio samples. Channel data lives in
// an Arena's slab; Audio itself stores only the pointers (as block
// indices into the arena) plus bookkeeping, so reassigning a channel
// (pointer propagation to a successor node's input, per §4.4) is a cheap
// index copy, never a sample copy.
type Audio struct {
	numChannels int
	numFrames   int
	constant    float32 // noConstantValue unless SetConstantValue was called
	channels    []channelBinding
}

// channelBinding pairs the data pointer a processor reads/writes through
// with the arena block index needed to return it to the free list in O(1)
// on Release.
type channelBinding struct {
	data  *[]float32
	index uint32
}

// NewAudio returns an Audio with numChannels channel slots, all unbound
// (nil) and not constant-valued.
func NewAudio(numChannels int) *Audio {
	return &Audio{
		numChannels: numChannels,
		constant:    noConstantValue,
		channels:    make([]channelBinding, numChannels),
	}
}

// NumChannels reports the number of channel slots.
func (a *Audio) NumChannels() int { return a.numChannels }

// NumFrames reports the configured block length in frames.
func (a *Audio) NumFrames() int { return a.numFrames }

// SetNumFrames sets the block length in frames. Called once per Plan, not
// per tick.
func (a *Audio) SetNumFrames(n int) { a.numFrames = n }

// Bound reports whether every channel slot currently points at a block.
func (a *Audio) Bound() bool {
	for _, c := range a.channels {
		if c.data == nil {
			return false
		}
	}
	return true
}

// Channel returns the sample slice bound to channel index ch, or nil if
// unbound.
func (a *Audio) Channel(ch int) []float32 {
	if a.channels[ch].data == nil {
		return nil
	}
	return (*a.channels[ch].data)[:a.numFrames]
}

// bind points channel ch at block (arena slab index blockIdx).
func (a *Audio) bind(ch int, block *[]float32, blockIdx uint32) {
	a.channels[ch] = channelBinding{data: block, index: blockIdx}
}

// unbind clears channel ch's binding, returning the block index it held
// and whether it was bound at all.
func (a *Audio) unbind(ch int) (idx uint32, wasBound bool) {
	b := a.channels[ch]
	a.channels[ch] = channelBinding{}
	if b.data == nil {
		return 0, false
	}
	return b.index, true
}

// AssignTo copies this Audio's channel pointers into other — a pointer
// rebind, not a sample copy. Used for propagating a producer's output
// pointers into a successor's input slots during buffer assignment (§4.4);
// the root nodes' blocks are filled from and copied to the host buffers
// instead (render.Renderer.RenderTick).
func (a *Audio) AssignTo(other *Audio) {
	copy(other.channels, a.channels)
}

// SetConstantValue marks every channel of this buffer as holding a single
// repeated sample value without materializing it — the fast path for
// silence or a constant DC signal. value must not be NaN.
func (a *Audio) SetConstantValue(value float32) {
	a.constant = value
}

// ClearConstantValue clears the constant-value fast path; channels must be
// read sample-by-sample again.
func (a *Audio) ClearConstantValue() {
	a.constant = noConstantValue
}

// ConstantValue returns the constant value and true if this buffer is
// currently constant-valued.
func (a *Audio) ConstantValue() (float32, bool) {
	if math.Float32bits(a.constant) == math.Float32bits(noConstantValue) {
		return 0, false
	}
	return a.constant, true
}

// Clear zeroes every bound channel's samples.
func (a *Audio) Clear() {
	for _, c := range a.channels {
		if c.data == nil {
			continue
		}
		s := (*c.data)[:a.numFrames]
		for i := range s {
			s[i] = 0
		}
	}
}

// AudioArena is a fixed slab of single-channel blocks handed out to Audio
// buffers and reclaimed through a free list, so acquire/release never
// allocates. Every Acquire/Release call happens during compiler.Compile's
// liveness pass, synchronously on the edit thread — never from a render
// worker — so the free list is a plain fixed-capacity rt.Stack, the same
// structure the original uses for its compile-time block allocator, rather
// than a concurrent queue defending against a race that cannot occur here.
type AudioArena struct {
	blocks    [][]float32
	freeList  *rt.Stack[uint32]
	maxFrames int
}

// NewAudioArena allocates numBlocks channel-sized blocks of maxFrames
// samples each, all initially free.
func NewAudioArena(numBlocks, maxFrames int) *AudioArena {
	a := &AudioArena{
		blocks:    make([][]float32, numBlocks),
		freeList:  rt.NewStack[uint32](numBlocks),
		maxFrames: maxFrames,
	}
	for i := range a.blocks {
		a.blocks[i] = make([]float32, maxFrames)
	}
	a.Reset()
	return a
}

// Reset returns every block to the free list, discarding any current
// bindings. Called once at Plan construction, never on the audio path.
func (a *AudioArena) Reset() {
	a.freeList = rt.NewStack[uint32](len(a.blocks))
	for i := range a.blocks {
		a.freeList.Push(uint32(i))
	}
}

// Acquire binds every unbound channel of audio to a free block. It returns
// false if the arena has fewer free blocks than audio needs unbound,
// having bound as many as it could — false is a compiled-invariant
// violation (§7), which compiler.Compile reports as ErrArenaExhausted
// rather than retrying.
func (a *AudioArena) Acquire(audio *Audio) bool {
	for ch := 0; ch < audio.NumChannels(); ch++ {
		if audio.channels[ch].data != nil {
			continue
		}
		idx, ok := a.freeList.Pop()
		if !ok {
			return false
		}
		audio.bind(ch, &a.blocks[idx], idx)
	}
	return true
}

// Release returns every bound channel of audio to the free list and clears
// its bindings.
func (a *AudioArena) Release(audio *Audio) {
	for ch := 0; ch < audio.NumChannels(); ch++ {
		idx, wasBound := audio.unbind(ch)
		if !wasBound {
			continue
		}
		a.freeList.Push(idx)
	}
}
