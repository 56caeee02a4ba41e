package store

import "sync/atomic"

// Clock hands out the seq stamped on registry events and workspace rows.
// It is logical, not wall time: seq only orders events within one database.
type Clock struct {
	seq atomic.Int64
}

// NewClockAt creates a clock whose next value is last+1. Open passes the
// highest seq already in the event log.
func NewClockAt(last int64) *Clock {
	c := &Clock{}
	c.seq.Store(last)
	return c
}

// Next advances the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last value handed out.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
