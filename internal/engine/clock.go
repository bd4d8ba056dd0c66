package engine

import "sync/atomic"

// Clock is the monotonic logical clock of an evaluation run.
//
// A mechanism keeps one clock for event arrivals and one for emitted
// matches, so re-running the same input assigns the same seqs and match
// IDs no matter what the wall clock says.
//
// Clock is safe for concurrent use; parallel shards share one clock.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock starting at start. Used to continue the seq
// range of an earlier run.
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

// Observe moves the clock forward to at least seq, so stamps issued
// afterwards never collide with seqs that came with the input.
func (c *Clock) Observe(seq int64) {
	for {
		cur := c.seq.Load()
		if seq <= cur || c.seq.CompareAndSwap(cur, seq) {
			return
		}
	}
}
