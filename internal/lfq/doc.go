// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package lfq provides the lock-free bounded queue that backs the render
// graph's cross-core handoff: the worker-pool ready queue (node indices
// whose remaining-input counter has reached zero). The buffer arenas' free
// lists do not use it; they are rt.Stack values.
//
// The queue is [MPMC], an FAA-based SCQ (Scalable
// Circular Queue, Nikolaev, DISC 2019) bounded queue. FAA (fetch-and-add)
// trades 2n physical slots for capacity n against never retrying a CAS loop
// on the shared index counters; on the render thread, where a worker cannot
// be allowed to spin indefinitely behind a stalled peer, that headroom
// matters more than the extra memory.
//
// # Basic usage
//
//	ready := lfq.NewMPMC[int](64)
//
//	idx := 3
//	if err := ready.Enqueue(&idx); lfq.IsWouldBlock(err) {
//	    // queue full: caller backs off
//	}
//
//	idx, err := ready.Dequeue()
//	if lfq.IsWouldBlock(err) {
//	    // queue empty: worker parks or spins
//	}
//
// Capacity rounds up to the next power of 2 and must be at least 2.
// Enqueue/Dequeue never block; they return [ErrWouldBlock] instead, so a
// caller on the audio thread can fall back to its own wait strategy ([spin.Wait]
// or a park transition) rather than stalling.
//
// # Graceful shutdown
//
// Call [MPMC.Drain] once no further producers will enqueue (e.g. the
// renderer has been told to stop) so that consumers can empty the queue
// without tripping the livelock-prevention threshold:
//
//	if d, ok := any(q).(lfq.Drainer); ok {
//	    d.Drain()
//	}
//
// # Race detection
//
// Go's race detector tracks explicit synchronization (mutex, channel,
// WaitGroup) but not the acquire-release orderings [MPMC] establishes
// through [code.hybscloud.com/atomix]. Concurrency tests that would trip
// false positives skip themselves at runtime when [RaceEnabled] is true
// ([RaceEnabled] itself is set by the race/!race build-tag pair).
package lfq
