package engine

import (
	"sync/atomic"
	"time"
)

// Clock stamps the transactions the engine produces with modified_on.
//
// A logical clock (NewClock, NewClockAt) counts 1, 2, 3, ... and is used by
// tests and scenario replays. A wall clock (NewWallClock) returns Unix
// milliseconds, bumped by one whenever the wall time has not advanced, so
// stamps stay strictly increasing.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
type Clock struct {
	seq atomic.Int64
	now func() int64
}

// NewClock creates a logical clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a logical clock starting at a specific value.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// NewWallClock creates a clock following wall time in milliseconds.
func NewWallClock() *Clock {
	return &Clock{now: func() int64 { return time.Now().UnixMilli() }}
}

// Next returns the next stamp. Each call returns a unique, increasing value.
func (c *Clock) Next() int64 {
	if c.now == nil {
		return c.seq.Add(1)
	}
	for {
		prev := c.seq.Load()
		next := c.now()
		if next <= prev {
			next = prev + 1
		}
		if c.seq.CompareAndSwap(prev, next) {
			return next
		}
	}
}

// Current returns the last stamp without advancing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
