// Package clock provides the time source every component that needs
// fake-clock-driven tests depends on instead of calling time.Now/time.After
// directly: the scheduler's slow-busy demotion timer. The connection
// manager does not use it; it reads time.Now itself.
package clock

import "time"

// Clock abstracts time.Now/time.After so tests can substitute a
// SimulatedClock for a real one.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

var (
	_ Clock = RealClock{}
	_ Clock = (*SimulatedClock)(nil)
)
