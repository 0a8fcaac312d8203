package loop

import "time"

// Clock provides the wall-clock samples a Loop turns into delta-time.
// Tests substitute a manual clock.
type Clock interface {
	Now() time.Time
}

// SystemClock is the default Clock.
var SystemClock Clock = systemClock{}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}
