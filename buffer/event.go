package buffer

import "code.hybscloud.com/tesi/internal/rt"

// EventEntry records one packed event's location within an Event buffer's
// byte storage, kept sorted by (Offset, Length, Time) so that iteration
// yields events in time order without a separate sort pass.
type EventEntry struct {
	Offset uint32 // byte offset into the buffer's storage
	Length uint32 // byte length of the packed event
	Time   uint32 // frame offset within the current block
}

// Event is a fixed-capacity buffer of packed, fixed-size control events
// (e.g. note-on/off, MIDI-style messages), kept sorted by time.
//
// Grounded on original_source/crates/buffer/src/event.rs.
type Event struct {
	storage  []byte
	entries  []EventEntry
	size     int // packed size in bytes of one event, fixed for this buffer
}

// NewEvent returns an Event with room for up to capacity bytes of packed
// event payloads and up to maxEntries entries.
func NewEvent(capacityBytes, maxEntries, eventSize int) *Event {
	return &Event{
		storage: make([]byte, capacityBytes),
		entries: make([]EventEntry, 0, maxEntries),
		size:    eventSize,
	}
}

// Len returns the end byte-offset of the last entry, i.e. how many bytes
// of storage are currently occupied.
func (e *Event) Len() uint32 {
	if len(e.entries) == 0 {
		return 0
	}
	last := e.entries[len(e.entries)-1]
	return last.Offset + last.Length
}

// Reset discards all entries without touching the underlying storage
// capacity.
func (e *Event) Reset() {
	e.entries = e.entries[:0]
}

// Insert packs raw (already-encoded) event bytes at the correct sorted
// position for time, shifting later entries' bytes and records to make
// room. It returns the byte offset the event was written at, and the
// number of bytes actually written (which may be less than len(data) if
// capacity ran out — the caller must not treat a short write as success).
//
// Grounded on original_source/crates/buffer/src/event.rs's Event::insert:
// find insertion point via a reverse scan for the last entry with an
// earlier time, shift bytes with an overlap-safe copy, then shift the
// trailing Entry records.
func (e *Event) Insert(time uint32, data []byte) (offset uint32, written int) {
	index := 0
	insertOffset := uint32(0)
	for i := len(e.entries) - 1; i >= 0; i-- {
		if e.entries[i].Time < time {
			index = i + 1
			insertOffset = e.entries[i].Offset + e.entries[i].Length
			break
		}
	}

	length := len(data)
	if remaining := len(e.storage) - int(e.Len()); length > remaining {
		length = remaining
	}
	if length <= 0 {
		return insertOffset, 0
	}

	tailLen := int(e.Len()) - int(insertOffset)
	if tailLen > 0 {
		copy(e.storage[int(insertOffset)+length:int(insertOffset)+length+tailLen], e.storage[insertOffset:insertOffset+uint32(tailLen)])
	}
	copy(e.storage[insertOffset:int(insertOffset)+length], data[:length])

	e.entries = append(e.entries, EventEntry{})
	copy(e.entries[index+1:], e.entries[index:len(e.entries)-1])
	e.entries[index] = EventEntry{Offset: insertOffset, Length: uint32(length), Time: time}
	for j := index + 1; j < len(e.entries); j++ {
		e.entries[j].Offset += uint32(length)
	}

	return insertOffset, length
}

// Entries returns the current sorted entry records. The returned slice
// aliases the buffer's internal storage and is only valid until the next
// Insert or Reset.
func (e *Event) Entries() []EventEntry {
	return e.entries
}

// Payload returns the raw packed bytes for entry.
func (e *Event) Payload(entry EventEntry) []byte {
	return e.storage[entry.Offset : entry.Offset+entry.Length]
}

// EventArena is a fixed slab of Event buffers handed out and reclaimed
// through a free list, one per event port in the Plan. Like AudioArena,
// Acquire/Release only ever run from compiler.Compile's liveness pass on
// the edit thread, so a plain rt.Stack is the right free-list shape — no
// render worker ever touches it.
type EventArena struct {
	buffers  []*Event
	freeList *rt.Stack[uint32]
}

// NewEventArena allocates numBuffers Event buffers, each capacityBytes
// bytes with room for maxEntries entries of eventSize bytes, all initially
// free.
func NewEventArena(numBuffers, capacityBytes, maxEntries, eventSize int) *EventArena {
	a := &EventArena{
		buffers:  make([]*Event, numBuffers),
		freeList: rt.NewStack[uint32](numBuffers),
	}
	for i := range a.buffers {
		a.buffers[i] = NewEvent(capacityBytes, maxEntries, eventSize)
	}
	a.Reset()
	return a
}

// Reset returns every buffer to the free list, resetting its contents.
func (a *EventArena) Reset() {
	a.freeList = rt.NewStack[uint32](len(a.buffers))
	for i, buf := range a.buffers {
		buf.Reset()
		a.freeList.Push(uint32(i))
	}
}

// Acquire pops one free buffer and returns it bound with its arena index,
// or nil, false if the arena is exhausted — a compiled-invariant violation,
// which compiler.Compile reports as ErrArenaExhausted rather than retrying.
func (a *EventArena) Acquire() (buf *Event, idx uint32, ok bool) {
	idx, ok = a.freeList.Pop()
	if !ok {
		return nil, 0, false
	}
	return a.buffers[idx], idx, true
}

// Release returns buffer idx to the free list.
func (a *EventArena) Release(idx uint32) {
	a.buffers[idx].Reset()
	a.freeList.Push(idx)
}
