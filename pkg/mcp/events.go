package mcp

import "sync"

// EventRecord is one buffered SSE event.
type EventRecord struct {
	ID      int64
	Event   string
	Payload []byte
}

// EventBuffer assigns per-session monotonic SSE event ids and keeps a
// bounded replay ring so clients can resume with Last-Event-ID.
type EventBuffer struct {
	mu       sync.Mutex
	counters map[string]int64
	buffers  map[string][]EventRecord
	size     int
}

// NewEventBuffer creates a buffer holding at most size events per
// session (default 100).
func NewEventBuffer(size int) *EventBuffer {
	if size <= 0 {
		size = 100
	}
	return &EventBuffer{
		counters: map[string]int64{},
		buffers:  map[string][]EventRecord{},
		size:     size,
	}
}

// NextID increments and returns the session's event counter.
func (b *EventBuffer) NextID(sessionID string) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.counters[sessionID]++
	return b.counters[sessionID]
}

// Buffer appends an event, dropping the oldest when the ring is full.
func (b *EventBuffer) Buffer(sessionID string, eventID int64, event string, payload []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	buf := append(b.buffers[sessionID], EventRecord{ID: eventID, Event: event, Payload: payload})
	if len(buf) > b.size {
		buf = buf[len(buf)-b.size:]
	}
	b.buffers[sessionID] = buf
}

// After returns buffered events with id strictly greater than
// lastEventID, in order. Empty when nothing newer is resident.
func (b *EventBuffer) After(sessionID string, lastEventID int64) []EventRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []EventRecord
	for _, rec := range b.buffers[sessionID] {
		if rec.ID > lastEventID {
			out = append(out, rec)
		}
	}
	return out
}

// Drop discards all state for the session.
func (b *EventBuffer) Drop(sessionID string) {
	b.mu.Lock()
	delete(b.counters, sessionID)
	delete(b.buffers, sessionID)
	b.mu.Unlock()
}
