package testutil

import "sync"

// DeterministicClock stamps modified_on values in tests: start+1, start+2, ...
//
// Scenario files pin the start so golden snapshots do not depend on wall
// time. It implements ir.Clock.
type DeterministicClock struct {
	mu  sync.Mutex
	now int64
}

// NewDeterministicClock returns a clock whose first stamp is 1.
func NewDeterministicClock() *DeterministicClock {
	return &DeterministicClock{}
}

// NewDeterministicClockAt returns a clock whose first stamp is start+1.
func NewDeterministicClockAt(start int64) *DeterministicClock {
	return &DeterministicClock{now: start}
}

// Next advances by one and returns the new stamp.
func (c *DeterministicClock) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now++
	return c.now
}

// Current returns the last stamp handed out.
func (c *DeterministicClock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance skips d stamps, simulating time passing between two user edits.
func (c *DeterministicClock) Advance(d int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += d
}
