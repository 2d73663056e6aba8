// Package rt holds the handful of real-time-safe helpers every audio-path
// package needs: a fixed-capacity stack backing buffer.AudioArena's and
// buffer.EventArena's free lists (acquire/release only ever run from
// compiler.Compile's liveness pass on the edit thread, so a plain LIFO is
// enough — no render worker ever touches an arena), and a fatal-error
// reporter that never allocates or blocks, for the one case the render
// path cannot recover from — a compiled invariant broken at render time.
package rt

import "code.hybscloud.com/atomix"

// Stack is a fixed-capacity LIFO. Push past capacity panics: the capacity
// is always sized by the compiler ahead of time from a known peak, so
// overflow means a compiled invariant was violated, not that growth is
// needed.
type Stack[T any] struct {
	items []T
}

// NewStack returns a Stack pre-sized to hold up to capacity items.
func NewStack[T any](capacity int) *Stack[T] {
	return &Stack[T]{items: make([]T, 0, capacity)}
}

// Push adds v to the top of the stack.
func (s *Stack[T]) Push(v T) {
	if len(s.items) == cap(s.items) {
		panic("rt: stack push exceeds reserved capacity")
	}
	s.items = append(s.items, v)
}

// Pop removes and returns the top of the stack. ok is false if empty.
func (s *Stack[T]) Pop() (v T, ok bool) {
	if len(s.items) == 0 {
		return v, false
	}
	n := len(s.items) - 1
	v = s.items[n]
	s.items = s.items[:n]
	return v, true
}

// Len reports the number of items currently on the stack.
func (s *Stack[T]) Len() int { return len(s.items) }

const fatalRingSize = 64
const fatalMsgSize = 120

// Fatal reports a violated compiled invariant on the audio path. It never
// allocates, locks, or blocks: it copies the (possibly truncated) message
// into the next slot of a preallocated ring and raises a flag a supervisor
// can poll from the edit thread. It is the Go counterpart of the
// original's no-op rt_error hook, given actual behavior since this engine
// has nowhere else to surface a broken invariant from the audio thread.
type Fatal struct {
	messages [fatalRingSize][fatalMsgSize]byte
	lengths  [fatalRingSize]atomix.Uint64
	cursor   atomix.Uint64
	flagged  atomix.Bool
}

// Report records msg and marks the reporter as flagged. Safe to call from
// the audio thread.
func (f *Fatal) Report(msg string) {
	slot := f.cursor.AddAcqRel(1) - 1
	idx := slot % fatalRingSize
	n := copy(f.messages[idx][:], msg)
	f.lengths[idx].StoreRelease(uint64(n))
	f.flagged.StoreRelease(true)
}

// Flagged reports whether Report has ever been called.
func (f *Fatal) Flagged() bool {
	return f.flagged.LoadAcquire()
}

// Last returns the most recently reported message, or "" if none has been
// reported yet. Intended for the edit thread to poll, never the audio
// thread.
func (f *Fatal) Last() string {
	slot := f.cursor.LoadAcquire()
	if slot == 0 {
		return ""
	}
	idx := (slot - 1) % fatalRingSize
	n := f.lengths[idx].LoadAcquire()
	return string(f.messages[idx][:n])
}
