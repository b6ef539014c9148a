// Package clock abstracts time so the scheduler can be driven deterministically in tests.
package clock

import "time"

type Timer interface {
	// Stop prevents the timer from firing. It reports false if the timer already fired.
	Stop() bool
}

type Clock interface {
	Now() time.Time
	// AfterFunc calls f in its own goroutine once d has elapsed.
	AfterFunc(d time.Duration, f func()) Timer
}

type Real struct{}

func (Real) Now() time.Time { return time.Now() }

func (Real) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
