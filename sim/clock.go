package sim

import "time"

// Clock supplies event timestamps.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

// RealClock is the wall clock in UTC.
var RealClock Clock = realClock{}
