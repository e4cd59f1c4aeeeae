package host

import "sync/atomic"

// Clock stamps emitted events with a strictly increasing sequence.
//
// Remote replicas compare these stamps with the sequence returned by a
// bootstrap read to drop events the read already reflects.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock starting at start.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next advances the clock and returns the new sequence.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last sequence handed out.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
