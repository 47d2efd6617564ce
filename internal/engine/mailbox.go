package engine

import (
	"sync"

	"github.com/roach88/scriptd/internal/script"
)

// mailbox is one instance's ordered queue of pending events.
//
// It is unbounded: world collaborators never block on a busy script.
// Enqueue is safe from any goroutine; only the owning instance goroutine
// dequeues.
//
// The signal channel has a buffer of one and coalesces wakeups. Close closes
// it so a waiting dequeuer always wakes.
type mailbox struct {
	mu     sync.Mutex
	events []script.Event
	closed bool
	signal chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{
		events: make([]script.Event, 0, 8),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue appends ev. Returns false once the mailbox is closed.
func (m *mailbox) Enqueue(ev script.Event) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false
	}
	m.events = append(m.events, ev)
	m.wake()
	return true
}

// EnqueueUnlessPending appends ev only if no event of the same kind is
// already queued. Timer events use it so a slow handler does not build up
// a backlog of ticks. Returns false if closed; a skipped duplicate counts
// as accepted.
func (m *mailbox) EnqueueUnlessPending(ev script.Event) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false
	}
	for _, queued := range m.events {
		if queued.Kind == ev.Kind {
			return true
		}
	}
	m.events = append(m.events, ev)
	m.wake()
	return true
}

// wake signals availability without blocking. Caller holds mu.
func (m *mailbox) wake() {
	select {
	case m.signal <- struct{}{}:
	default:
	}
}

// TryDequeue removes the front event without blocking.
func (m *mailbox) TryDequeue() (script.Event, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.events) == 0 {
		return script.Event{}, false
	}
	ev := m.events[0]
	// Clear the slot so the backing array does not pin argument values.
	m.events[0] = script.Event{}
	if len(m.events) == 1 {
		m.events = m.events[:0]
	} else {
		m.events = m.events[1:]
	}
	return ev, true
}

// Next blocks until an event is available or stop is closed.
// A closed stop channel wins over queued events: once a stop is requested
// no further handler starts. A closed, drained mailbox also returns false.
func (m *mailbox) Next(stop <-chan struct{}) (script.Event, bool) {
	for {
		select {
		case <-stop:
			return script.Event{}, false
		default:
		}

		if ev, ok := m.TryDequeue(); ok {
			return ev, true
		}

		select {
		case <-stop:
			return script.Event{}, false
		case _, ok := <-m.signal:
			if !ok && m.Len() == 0 {
				return script.Event{}, false
			}
		}
	}
}

// Len returns the number of queued events.
func (m *mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

// Close refuses further events and wakes any waiter. Idempotent.
func (m *mailbox) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.closed = true
	close(m.signal)
}
