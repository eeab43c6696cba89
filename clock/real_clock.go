package clock

import "time"

// RealClock is the Clock backed by the actual wall clock, used everywhere
// outside tests.
type RealClock struct{}

func (RealClock) Now() time.Time {
	return time.Now()
}

func (RealClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}
