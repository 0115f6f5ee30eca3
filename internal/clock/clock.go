package clock

import "time"

// Timer is a pending callback created by AfterFunc
type Timer interface {
	// Stop prevents the callback from firing. It reports whether the call stopped the timer.
	Stop() bool
}

// Clock provides the current time and deferred callbacks
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Timer
}

// Real is the wall clock
type Real struct{}

// Now returns time.Now
func (Real) Now() time.Time {
	return time.Now()
}

// AfterFunc runs fn in its own goroutine after d
func (Real) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}
