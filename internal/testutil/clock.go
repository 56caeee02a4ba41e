package testutil

import "sync"

// StepClock numbers the steps of a test scenario.
//
// Each scenario run starts from zero so two runs of the same scenario
// produce identical step numbers in their traces.
//
// Thread-safety: All methods are safe for concurrent use.
type StepClock struct {
	mu   sync.Mutex
	step int64
}

// NewStepClock creates a clock whose first Next returns 1.
func NewStepClock() *StepClock {
	return &StepClock{}
}

// Next advances the clock and returns the new step number.
func (c *StepClock) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.step++
	return c.step
}

// Current returns the last step number handed out.
func (c *StepClock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.step
}

// Reset rewinds the clock so the next call to Next returns 1.
func (c *StepClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.step = 0
}
