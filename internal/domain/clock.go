package domain

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// clock is a package-level time source so tests can freeze run timestamps via SetClock.
var clock = clockwork.NewRealClock()

// SetClock swaps the time source used for run manifests. Pass nil to reset to real time.
func SetClock(c clockwork.Clock) {
	if c == nil {
		clock = clockwork.NewRealClock()
		return
	}
	clock = c
}

// Now returns the current time from the configured clock, in UTC.
func Now() time.Time {
	return clock.Now().UTC()
}
