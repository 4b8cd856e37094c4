package connection

import "time"

// RetryState tracks the reconnection backoff.
//
// Delay is what the next failure will wait before retrying. It doubles each
// time a scheduled retry fires and is clamped to max; Reset restores the
// initial value after a successful open.
type RetryState struct {
	Delay   time.Duration
	Attempt int

	initial time.Duration
	max     time.Duration
}

// NewRetryState creates a RetryState starting at initial and capped at max.
// A max below initial is raised to initial.
func NewRetryState(initial, max time.Duration) RetryState {
	if max < initial {
		max = initial
	}
	return RetryState{
		Delay:   initial,
		initial: initial,
		max:     max,
	}
}

// Advance records a fired retry and doubles the delay for the next failure.
func (r *RetryState) Advance() {
	r.Attempt++
	next := r.Delay * 2
	if next > r.max || next < r.Delay { // overflow guard
		next = r.max
	}
	r.Delay = next
}

// Reset restores the initial delay and clears the attempt counter.
func (r *RetryState) Reset() {
	r.Delay = r.initial
	r.Attempt = 0
}
