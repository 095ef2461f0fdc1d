package core

import "time"

// Features gates each service's public operations. A disabled component
// fails with ErrFeatureDisabled instead of executing.
type Features struct {
	TimeTracking   bool
	Subtasks       bool
	Templates      bool
	AdvancedSearch bool
}

func AllFeatures() Features {
	return Features{
		TimeTracking:   true,
		Subtasks:       true,
		Templates:      true,
		AdvancedSearch: true,
	}
}

// TimerSettings tunes the periodic sweep. A zero AutoStopAfter disables
// auto-stop; LongSessionThreshold only flags, never stops.
type TimerSettings struct {
	AutoStopAfter        time.Duration
	LongSessionThreshold time.Duration
}
