package core

import "time"

// Clock supplies the current time to the services. The system clock hands
// out time.Now values, whose embedded monotonic reading makes Sub-based
// elapsed computation safe against wall-clock adjustment.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func SystemClock() Clock { return systemClock{} }
