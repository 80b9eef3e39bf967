// Package timer provides the tick-driven countdown used by every state
// machine in the gateway. A Timer never fires on its own: the owner advances
// it with Clock(ms) once per loop iteration and checks HasExpired.
package timer

import "time"

// Timer is a countdown in milliseconds. The zero value is a stopped timer
// with no timeout.
type Timer struct {
	timeout time.Duration
	elapsed time.Duration
	running bool
}

// New returns a stopped timer with the given default timeout.
func New(timeout time.Duration) *Timer {
	return &Timer{timeout: timeout}
}

// Start (re)starts the timer with its current timeout.
func (t *Timer) Start() {
	if t.timeout > 0 {
		t.elapsed = 0
		t.running = true
	}
}

// StartWith changes the timeout and restarts the timer.
func (t *Timer) StartWith(timeout time.Duration) {
	t.timeout = timeout
	t.Start()
}

// SetTimeout changes the timeout without touching the running state.
func (t *Timer) SetTimeout(timeout time.Duration) {
	t.timeout = timeout
}

// Timeout returns the configured timeout.
func (t *Timer) Timeout() time.Duration {
	return t.timeout
}

// Stop halts the timer; HasExpired reports false until the next Start.
func (t *Timer) Stop() {
	t.elapsed = 0
	t.running = false
}

// Clock advances a running timer by ms milliseconds.
func (t *Timer) Clock(ms uint) {
	if t.running {
		t.elapsed += time.Duration(ms) * time.Millisecond
	}
}

// IsRunning reports whether the timer has been started and not stopped.
func (t *Timer) IsRunning() bool {
	return t.running
}

// HasExpired reports whether a running timer has reached its timeout.
func (t *Timer) HasExpired() bool {
	return t.running && t.elapsed >= t.timeout
}

// Elapsed returns the time counted since the last Start.
func (t *Timer) Elapsed() time.Duration {
	return t.elapsed
}

// Remaining returns the time left before expiry, zero when stopped or expired.
func (t *Timer) Remaining() time.Duration {
	if !t.running || t.elapsed >= t.timeout {
		return 0
	}
	return t.timeout - t.elapsed
}
