package flux

import "sync/atomic"

// Clock hands out strictly increasing int64 values.
//
// An Engine owns one clock and stamps each Action's seq from it when the
// action is built, so the journal and trace can order actions without wall
// time. A History owns a second clock for snapshot keys. Sweep, reset,
// commit and replay rebuild the snapshot list but keep drawing from that
// same clock, so a key never refers to two different snapshots.
//
// Next may be called from any goroutine.
type Clock struct {
	last atomic.Int64
}

// NewClock returns a clock whose first Next is 1.
func NewClock() *Clock {
	return new(Clock)
}

// NewClockAt returns a clock whose first Next is start+1.
func NewClockAt(start int64) *Clock {
	c := new(Clock)
	c.last.Store(start)
	return c
}

// Next advances the clock and returns the new value.
func (c *Clock) Next() int64 {
	return c.last.Add(1)
}

// Current is the value most recently returned by Next, or the start value.
func (c *Clock) Current() int64 {
	return c.last.Load()
}
