package acd

import "time"

// EventLoop is the external collaborator providing monotonic time,
// one-shot timer scheduling, and readable-fd notification. A session
// never spawns its own goroutines or blocks; every state transition
// happens inside a callback this interface invokes.
type EventLoop interface {
	// Now returns the current time. Sessions compare this against
	// defendWindow, so it must be monotonic.
	Now() time.Time

	// AddTimer schedules fn to run once after d. priority is forwarded
	// verbatim to the loop's scheduler, with no interpretation by the
	// session.
	AddTimer(d time.Duration, priority int, fn func()) (TimerHandle, error)

	// AddReader registers fn to run whenever fd becomes readable.
	// priority is forwarded verbatim.
	AddReader(fd int, priority int, fn func()) (IOHandle, error)
}

// TimerHandle cancels a scheduled timer. Cancel is idempotent; once it
// returns, fn is guaranteed not to run (even if the deadline already
// passed and the loop hadn't yet dispatched it).
type TimerHandle interface {
	Cancel()
}

// IOHandle cancels a readability subscription. Cancel is idempotent.
type IOHandle interface {
	Cancel()
}
