package engine

import "sync/atomic"

// Clock stamps enqueued events with a strictly increasing sequence number.
//
// One clock is shared by every instance of a Manager, so seq values order
// events globally even though delivery order is only guaranteed per script.
// Safe for concurrent use: world collaborators enqueue from any goroutine.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock whose first Next returns 1.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock that resumes after start, e.g. from the last
// seq recorded in a journal.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last issued sequence number.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
