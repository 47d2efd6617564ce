package testutil

import (
	"strings"
	"sync"
	"time"

	"github.com/roach88/scriptd/internal/engine"
	"github.com/roach88/scriptd/internal/script"
)

// maxLinesPerScript caps retained messages for each speaker. Looping
// scripts say a line per iteration; past the cap only the count grows.
// Waiters still see every message as it arrives.
const maxLinesPerScript = 1024

// ChatLog records chat said by scripts for later inspection.
//
// Thread-safety: Sink may be called from any number of script goroutines.
type ChatLog struct {
	mu      sync.Mutex
	lines   map[script.ID][]engine.ChatMessage
	total   int
	waiters map[*chatWaiter]struct{}
}

// chatWaiter is one pending WaitFor. Sink hands it the first matching
// message and unregisters it.
type chatWaiter struct {
	id     script.ID
	substr string
	found  chan engine.ChatMessage
}

func (w *chatWaiter) matches(msg engine.ChatMessage) bool {
	return (w.id.IsNil() || msg.Script == w.id) && strings.Contains(msg.Message, w.substr)
}

// NewChatLog creates an empty log.
func NewChatLog() *ChatLog {
	return &ChatLog{
		lines:   make(map[script.ID][]engine.ChatMessage),
		waiters: make(map[*chatWaiter]struct{}),
	}
}

// Sink returns the engine.ChatSink feeding this log.
func (c *ChatLog) Sink() engine.ChatSink {
	return func(msg engine.ChatMessage) {
		c.mu.Lock()
		defer c.mu.Unlock()

		c.total++
		if lines := c.lines[msg.Script]; len(lines) < maxLinesPerScript {
			c.lines[msg.Script] = append(lines, msg)
		}
		for w := range c.waiters {
			if w.matches(msg) {
				w.found <- msg
				delete(c.waiters, w)
			}
		}
	}
}

// Total returns how many messages arrived, retained or not.
func (c *ChatLog) Total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

// Messages returns the text of retained messages from id, in arrival order.
func (c *ChatLog) Messages(id script.ID) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	lines := c.lines[id]
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		out = append(out, l.Message)
	}
	return out
}

// WaitFor blocks until id has said a message containing substr, or the
// timeout elapses. Matching the zero ID accepts any speaker.
func (c *ChatLog) WaitFor(id script.ID, substr string, timeout time.Duration) (engine.ChatMessage, bool) {
	w := &chatWaiter{id: id, substr: substr, found: make(chan engine.ChatMessage, 1)}

	c.mu.Lock()
	if msg, ok := c.retained(w); ok {
		c.mu.Unlock()
		return msg, true
	}
	c.waiters[w] = struct{}{}
	c.mu.Unlock()

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	select {
	case msg := <-w.found:
		return msg, true
	case <-deadline.C:
	}

	c.mu.Lock()
	delete(c.waiters, w)
	c.mu.Unlock()

	// Sink may have matched between the deadline and the delete.
	select {
	case msg := <-w.found:
		return msg, true
	default:
		return engine.ChatMessage{}, false
	}
}

// retained searches messages already kept. Caller holds c.mu.
func (c *ChatLog) retained(w *chatWaiter) (engine.ChatMessage, bool) {
	if !w.id.IsNil() {
		for _, l := range c.lines[w.id] {
			if w.matches(l) {
				return l, true
			}
		}
		return engine.ChatMessage{}, false
	}
	for _, lines := range c.lines {
		for _, l := range lines {
			if w.matches(l) {
				return l, true
			}
		}
	}
	return engine.ChatMessage{}, false
}
