package router

import "sync"

// History is a fixed-capacity ring of the most recent domain messages,
// kept for replay/inspection by the UI. Writes happen on the manager's
// event loop; Snapshot is safe from any goroutine.
type History struct {
	mu    sync.Mutex
	buf   []Message
	head  int // next write position
	count int
	total int64
}

// NewHistory creates a ring holding the last capacity messages.
func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = 1
	}
	return &History{
		buf: make([]Message, capacity),
	}
}

// Add records a message, evicting the oldest entry when full.
func (h *History) Add(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.buf[h.head] = msg
	h.head = (h.head + 1) % len(h.buf)
	if h.count < len(h.buf) {
		h.count++
	}
	h.total++
}

// Snapshot returns the retained messages, oldest first.
func (h *History) Snapshot() []Message {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Message, 0, h.count)
	start := h.head - h.count
	if start < 0 {
		start += len(h.buf)
	}
	for i := 0; i < h.count; i++ {
		out = append(out, h.buf[(start+i)%len(h.buf)])
	}
	return out
}

// Len returns the number of retained messages.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// Cap returns the ring capacity.
func (h *History) Cap() int {
	return len(h.buf)
}

// Total returns the number of messages ever recorded, including evicted ones.
func (h *History) Total() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.total
}
