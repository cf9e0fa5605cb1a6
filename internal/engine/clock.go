package engine

import "sync/atomic"

// Clock is a monotonic logical clock for trace ordering.
//
// Every traced event is stamped with a strictly increasing seq from this
// clock. Wall-clock time is never used for ordering, so replaying the same
// commands yields the same sequence numbers.
//
// Clock is safe for concurrent use, although only the writer goroutine
// normally calls Next.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock whose next seq is start+1.
// Used to continue a recorded run.
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
