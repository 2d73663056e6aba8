// Package ringq implements RingChannel: a single-producer single-consumer
// bounded queue of batched, contiguous transactions, used for the
// renderer-to-editor deferred message channel (messages posted by the
// audio thread, drained by the edit thread on the next commit).
//
// Unlike internal/lfq's element-at-a-time MPMC, a RingChannel hands out a
// contiguous slice view of up to N records at a time: Write reserves up to
// count free slots and returns a Txn over them; Read exposes up to the
// current occupied prefix. Neither blocks: Write returns ok=false when
// there is no free room, and Read on an empty ring returns a zero-length
// slice (ok=false only once the ring is empty and closed), so the audio
// thread never stalls posting a message and the edit thread never stalls
// draining one.
//
// Grounded on original_source/crates/fifo/src/lib.rs.
package ringq

import "code.hybscloud.com/atomix"

// RingChannel is a bounded ring of fixed-size records of type T, capacity
// slots, shared between exactly one writer goroutine and one reader
// goroutine.
type RingChannel[T any] struct {
	_      [64]byte
	head   atomix.Uint64 // writer-owned cursor, total records ever committed-written
	_      [64 - 8]byte
	tail   atomix.Uint64 // reader-owned cursor, total records ever committed-read
	_      [64 - 8]byte
	data   []T
	cap    uint64
	mask   uint64
	closed atomix.Bool
}

// New returns a RingChannel with capacity rounded up to the next power of
// two (minimum 2).
func New[T any](capacity int) *RingChannel[T] {
	n := uint64(2)
	for int(n) < capacity {
		n <<= 1
	}
	return &RingChannel[T]{
		data: make([]T, n),
		cap:  n,
		mask: n - 1,
	}
}

// Close marks the channel as closed by its writer. After Close, Read
// continues to return any remaining buffered records, then reports ok=false
// once drained — mirroring the original's "sender dropped" condition.
func (r *RingChannel[T]) Close() {
	r.closed.StoreRelease(true)
}

// WriteTxn is a contiguous, mutable view into the ring returned by Write.
type WriteTxn[T any] struct {
	ring   *RingChannel[T]
	start  uint64
	Slice  []T
}

// Write reserves up to count contiguous free slots for the writer. It
// returns ok=false if the ring has no free contiguous room at all (the
// caller should retry, typically with a bounded spin, never a block).
func (r *RingChannel[T]) Write(count int) (txn WriteTxn[T], ok bool) {
	head := r.head.LoadRelaxed()
	tail := r.tail.LoadAcquire()
	used := head - tail
	free := r.cap - used
	if free == 0 {
		return WriteTxn[T]{}, false
	}
	start := head & r.mask
	contiguous := r.cap - start
	length := free
	if contiguous < length {
		length = contiguous
	}
	if uint64(count) < length {
		length = uint64(count)
	}
	if length == 0 {
		return WriteTxn[T]{}, false
	}
	return WriteTxn[T]{ring: r, start: head, Slice: r.data[start : start+length]}, true
}

// Commit advances the writer cursor by the full length of the transaction.
func (t WriteTxn[T]) Commit() {
	t.ring.head.AddAcqRel(uint64(len(t.Slice)))
}

// CommitN advances the writer cursor by n, n <= len(t.Slice), for a caller
// that only filled part of the reserved slice.
func (t WriteTxn[T]) CommitN(n int) {
	t.ring.head.AddAcqRel(uint64(n))
}

// ReadTxn is a contiguous, immutable view into the ring returned by Read.
type ReadTxn[T any] struct {
	ring  *RingChannel[T]
	Slice []T
}

// Read exposes the current contiguous occupied prefix. ok is false only
// when the ring is empty and Close has been called — mirroring the
// original's "None only when length==0 and the peer producer dropped".
// An empty ring whose writer is still open returns ok=true with a
// zero-length slice, letting the caller distinguish "nothing yet" from
// "never again".
func (r *RingChannel[T]) Read() (txn ReadTxn[T], ok bool) {
	tail := r.tail.LoadRelaxed()
	head := r.head.LoadAcquire()
	used := head - tail
	start := tail & r.mask
	contiguous := r.cap - start
	length := used
	if contiguous < length {
		length = contiguous
	}
	if length == 0 && r.closed.LoadAcquire() {
		return ReadTxn[T]{}, false
	}
	return ReadTxn[T]{ring: r, Slice: r.data[start : start+length]}, true
}

// Commit advances the reader cursor by the full length of the transaction.
func (t ReadTxn[T]) Commit() {
	t.ring.tail.AddAcqRel(uint64(len(t.Slice)))
}

// CommitN advances the reader cursor by n, n <= len(t.Slice), for a caller
// that only consumed a prefix of the exposed slice.
func (t ReadTxn[T]) CommitN(n int) {
	t.ring.tail.AddAcqRel(uint64(n))
}
