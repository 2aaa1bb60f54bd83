package mqtt

import (
	"sync"

	"github.com/rs/zerolog"
)

// ringBuffer is a fixed-capacity FIFO of inbound messages.
// Not safe for concurrent use; callers synchronize.
type ringBuffer struct {
	buf      []Message
	capacity int
	head     int // next write position
	count    int
	overflow bool // true if any message was dropped since the buffer last emptied

	// keep marks messages that are evicted only when nothing else can be.
	keep func(Message) bool
}

func newRingBuffer(capacity int, keep func(Message) bool) *ringBuffer {
	return &ringBuffer{
		buf:      make([]Message, capacity),
		capacity: capacity,
		keep:     keep,
	}
}

// push appends msg. When full it first evicts the oldest entry not marked by
// keep, falling back to the oldest entry. Reports whether a message was dropped.
func (r *ringBuffer) push(msg Message) bool {
	dropped := false
	if r.count == r.capacity {
		r.evict()
		r.overflow = true
		dropped = true
	}
	r.buf[r.head] = msg
	r.head = (r.head + 1) % r.capacity
	r.count++
	return dropped
}

// evict removes one entry from a full buffer, closing the gap.
func (r *ringBuffer) evict() {
	victim := 0
	if r.keep != nil {
		for i := 0; i < r.count; i++ {
			if !r.keep(r.buf[r.index(i)]) {
				victim = i
				break
			}
		}
	}
	for i := victim; i < r.count-1; i++ {
		r.buf[r.index(i)] = r.buf[r.index(i+1)]
	}
	r.head = (r.head - 1 + r.capacity) % r.capacity
	r.buf[r.head] = Message{}
	r.count--
}

// index maps the i-th oldest entry to its slot.
func (r *ringBuffer) index(i int) int {
	return (r.head - r.count + i + 2*r.capacity) % r.capacity
}

// pop removes and returns the oldest entry.
func (r *ringBuffer) pop() (Message, bool) {
	if r.count == 0 {
		return Message{}, false
	}
	i := r.index(0)
	msg := r.buf[i]
	r.buf[i] = Message{}
	r.count--
	if r.count == 0 {
		r.overflow = false
	}
	return msg, true
}

func (r *ringBuffer) len() int {
	return r.count
}

// mailbox hands messages from broker callbacks to the event loop.
type mailbox struct {
	mu    sync.Mutex
	buf   *ringBuffer
	ready chan struct{}
	log   zerolog.Logger
}

func newMailbox(capacity int, keep func(Message) bool, log zerolog.Logger) *mailbox {
	return &mailbox{
		buf:   newRingBuffer(capacity, keep),
		ready: make(chan struct{}, 1),
		log:   log,
	}
}

func (m *mailbox) put(msg Message) {
	m.mu.Lock()
	first := !m.buf.overflow
	dropped := m.buf.push(msg)
	m.mu.Unlock()

	if dropped && first {
		m.log.Warn().Int("capacity", m.buf.capacity).Msg("command buffer full, dropping oldest droppable message")
	}
	m.signal()
}

func (m *mailbox) take() (Message, bool) {
	m.mu.Lock()
	msg, ok := m.buf.pop()
	more := m.buf.len() > 0
	m.mu.Unlock()

	if more {
		m.signal()
	}
	return msg, ok
}

func (m *mailbox) pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.buf.len()
}

func (m *mailbox) signal() {
	select {
	case m.ready <- struct{}{}:
	default:
	}
}
