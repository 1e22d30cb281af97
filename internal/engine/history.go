package engine

import "github.com/roach88/omnilink/internal/ir"

// DefaultHistorySize is the number of events retained by default.
const DefaultHistorySize = 200

// history is a fixed-capacity FIFO ring of events.
// Not safe for concurrent use; the engine guards it with its lock.
type history struct {
	buf   []ir.Event
	start int // index of the oldest event
	n     int
}

func newHistory(capacity int) *history {
	if capacity < 0 {
		capacity = 0
	}
	return &history{buf: make([]ir.Event, capacity)}
}

// push appends ev, evicting the oldest event when full.
func (h *history) push(ev ir.Event) {
	if len(h.buf) == 0 {
		return
	}
	if h.n < len(h.buf) {
		h.buf[(h.start+h.n)%len(h.buf)] = ev
		h.n++
		return
	}
	h.buf[h.start] = ev
	h.start = (h.start + 1) % len(h.buf)
}

// snapshot returns the retained events, oldest first.
func (h *history) snapshot() []ir.Event {
	out := make([]ir.Event, h.n)
	for i := 0; i < h.n; i++ {
		out[i] = h.buf[(h.start+i)%len(h.buf)]
	}
	return out
}

func (h *history) len() int {
	return h.n
}
