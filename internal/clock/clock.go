package clock

import "time"

// Clock is the subset of the time package the orchestrator schedules with.
type Clock interface {
	Now() time.Time
	// AfterFunc calls f on its own goroutine (or during Advance for a fake) once d has elapsed.
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer cancels a callback registered with AfterFunc.
type Timer interface {
	// Stop prevents the callback from firing and reports whether it was still pending.
	Stop() bool
}

// Real returns a [Clock] backed by the time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
