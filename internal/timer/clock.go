package timer

import "time"

// Clock abstracts the wall clock so the scheduler, fades and the schedule
// compiler can be driven deterministically in tests.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// AfterFunc calls f once d has elapsed. The returned Stopper cancels
	// the pending call.
	AfterFunc(d time.Duration, f func()) Stopper
}

// Stopper cancels a pending AfterFunc call. Stop reports whether the call
// was prevented.
type Stopper interface {
	Stop() bool
}

// realClock delegates to the time package.
type realClock struct{}

// Real returns a Clock backed by the system time.
func Real() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) AfterFunc(d time.Duration, f func()) Stopper {
	return time.AfterFunc(d, f)
}
