// Package swap implements the lock-free handover the edit thread uses to
// publish a new Plan to the audio thread without ever blocking either
// side on the other (§4.2).
//
// Grounded on original_source/crates/util/src/swappable.rs's single-slot
// CAS handover, generalized to three slots — the variant the Rust graph
// crate actually uses for this specific handover (it names a triple_buffer
// crate directly in graph.rs) rather than its own single-slot swappable.
// Three slots let the writer publish a new value while the reader still
// holds a guard on the slot it most recently read, which a single slot
// cannot do without the writer spinning on the reader.
//
// Built on atomix.Uint64 packing (slot index, generation) into one word
// rather than a pointer-CAS type, since only Uint64/Int64/Bool/Uint128
// atomix methods are in confirmed use anywhere in this module's lineage.
package swap

import "code.hybscloud.com/atomix"

const numSlots = 3

// TripleBuffer hands a *T from one writer goroutine to one reader
// goroutine. The writer is never blocked by a reader holding a guard: it
// always has at least one free slot to write into, bounded by the reader
// holding at most one slot at a time.
type TripleBuffer[T any] struct {
	slots   [numSlots]T
	// state packs the index (2 bits) of the most recently published slot
	// plus a generation counter (rest of the word) so the writer can tell
	// whether the reader has consumed its last publish.
	state atomix.Uint64
	// readerHeld marks which slot index, if any, the reader currently holds a
	// guard on; numSlots means "none".
	readerHeld atomix.Uint64
}

// New returns a TripleBuffer with all three slots initialized to initial.
func New[T any](initial T) *TripleBuffer[T] {
	tb := &TripleBuffer[T]{}
	for i := range tb.slots {
		tb.slots[i] = initial
	}
	tb.readerHeld.StoreRelease(numSlots)
	return tb
}

// Write publishes value as the newest value, picking any slot that is not
// the one the reader currently holds.
func (tb *TripleBuffer[T]) Write(value T) {
	held := tb.readerHeld.LoadAcquire()
	published := tb.state.LoadAcquire() & 0x3
	for i := uint64(0); i < numSlots; i++ {
		if i != held && i != published {
			tb.slots[i] = value
			gen := tb.state.LoadAcquire() >> 2
			tb.state.StoreRelease(i | ((gen + 1) << 2))
			return
		}
	}
	// Unreachable for numSlots == 3 with at most one slot held by the
	// reader and one currently published: there is always a third free
	// slot. Fall back to overwriting the published slot rather than
	// panicking, since losing the very latest unread value is preferable
	// to a fatal error on the edit thread.
	tb.slots[published] = value
	gen := tb.state.LoadAcquire() >> 2
	tb.state.StoreRelease(published | ((gen + 1) << 2))
}

// Guard exposes the most recently published value for the reader's
// duration of use. Release must be called exactly once, typically via
// defer, before the next Read.
type Guard[T any] struct {
	tb   *TripleBuffer[T]
	slot uint64
}

// Value returns a pointer to the guarded slot's value, valid until Release.
func (g Guard[T]) Value() *T {
	return &g.tb.slots[g.slot]
}

// Read claims the most recently published slot for the reader. It never
// blocks: if the reader still holds a previous guard, Read panics, since
// that indicates a caller bug (the audio thread must Release before
// Read-ing again within one tick).
func (tb *TripleBuffer[T]) Read() Guard[T] {
	if tb.readerHeld.LoadAcquire() != numSlots {
		panic("swap: Read called while a previous Guard is still held")
	}
	slot := tb.state.LoadAcquire() & 0x3
	tb.readerHeld.StoreRelease(slot)
	return Guard[T]{tb: tb, slot: slot}
}

// Release returns the guard's slot so the writer may reuse it.
func (g Guard[T]) Release() {
	g.tb.readerHeld.StoreRelease(numSlots)
}
