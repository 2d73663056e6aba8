// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package lfq

// Queue is the combined producer-consumer interface for a bounded FIFO.
//
// Both operations are non-blocking: they return ErrWouldBlock when they
// cannot proceed (full on Enqueue, empty on Dequeue) rather than blocking
// the caller, which is what makes the type usable from a real-time render
// thread.
//
// The interface intentionally excludes length: an accurate count in a
// lock-free queue requires cross-core synchronization the algorithm is
// built to avoid.
type Queue[T any] interface {
	Producer[T]
	Consumer[T]
	Cap() int
}

// Producer is the interface for enqueueing elements.
//
// The element is passed by pointer to avoid copying large structs; the
// queue stores a copy, so the original may be modified after Enqueue
// returns.
type Producer[T any] interface {
	// Enqueue adds an element to the queue.
	// Returns nil on success, ErrWouldBlock if the queue is full.
	Enqueue(elem *T) error
}

// Consumer is the interface for dequeueing elements.
type Consumer[T any] interface {
	// Dequeue removes and returns an element.
	// Returns (zero-value, ErrWouldBlock) if the queue is empty.
	Dequeue() (T, error)
}

// Drainer signals that no more enqueues will occur.
//
// [MPMC] implements this interface. Call Drain after the last producer has
// stopped so consumers can empty the queue without the livelock-prevention
// threshold holding back items that are still there.
type Drainer interface {
	Drain()
}
