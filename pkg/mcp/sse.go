package mcp

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// SSE event types on the /mcp stream.
const (
	// SSEEventMessage carries a final JSON-RPC response.
	SSEEventMessage = "message"
	// SSEEventServerRequest carries a request the server is asking the
	// client to answer (sampling, elicitation, roots).
	SSEEventServerRequest = "server_request"
	// SSEEventError carries a JSON-RPC error envelope.
	SSEEventError = "error"
)

// writeSSEEvent frames one event. Lines are CRLF-terminated and the
// event ends with a blank line.
func writeSSEEvent(w io.Writer, id int64, event string, data []byte) {
	fmt.Fprintf(w, "id: %d\r\n", id)
	fmt.Fprintf(w, "event: %s\r\n", event)
	fmt.Fprintf(w, "data: %s\r\n\r\n", data)
}

// writeSSEComment frames a comment line. Comments keep proxies from
// timing the connection out without confusing SSE clients.
func writeSSEComment(w io.Writer, text string) {
	fmt.Fprintf(w, ": %s\r\n\r\n", text)
}

// streamHub owns the per-session queues feeding open SSE streams.
// Each queue is single-producer/single-consumer: the POST handler (or
// the task notifier) enqueues, the GET stream forwards. A session has
// at most one persistent stream; attaching again replaces the old
// queue.
type streamHub struct {
	mu     sync.Mutex
	queues map[string]chan *Message
}

func newStreamHub() *streamHub {
	return &streamHub{queues: map[string]chan *Message{}}
}

// attach registers a queue for the session's persistent stream.
func (h *streamHub) attach(sessionID string) chan *Message {
	ch := make(chan *Message, 32)
	h.mu.Lock()
	if old, ok := h.queues[sessionID]; ok {
		close(old)
	}
	h.queues[sessionID] = ch
	h.mu.Unlock()
	return ch
}

// detach removes the queue if it is still the session's current one.
func (h *streamHub) detach(sessionID string, ch chan *Message) {
	h.mu.Lock()
	if h.queues[sessionID] == ch {
		delete(h.queues, sessionID)
	}
	h.mu.Unlock()
}

// sender returns a ClientSender enqueueing onto the session's stream,
// or nil when no stream is open.
func (h *streamHub) sender(sessionID string) ClientSender {
	h.mu.Lock()
	ch, ok := h.queues[sessionID]
	h.mu.Unlock()
	if !ok {
		return nil
	}
	return func(ctx context.Context, msg *Message) error {
		select {
		case ch <- msg:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// broadcast enqueues a message onto every open stream, dropping it for
// streams whose queue is full.
func (h *streamHub) broadcast(msg *Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.queues {
		select {
		case ch <- msg:
		default:
		}
	}
}

// drop closes and removes the session's queue, aborting its stream.
func (h *streamHub) drop(sessionID string) {
	h.mu.Lock()
	if ch, ok := h.queues[sessionID]; ok {
		close(ch)
		delete(h.queues, sessionID)
	}
	h.mu.Unlock()
}
