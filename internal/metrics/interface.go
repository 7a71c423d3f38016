// Package metrics records installation activity.
package metrics

import (
	"time"
)

// Outcome labels.
const (
	OutcomeInstalled = "installed"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
)

// Recorder defines the interface for recording metrics
type Recorder interface {
	// RecordInstall records one artifact install attempt and its outcome
	RecordInstall(artifact, strategy, outcome string, duration time.Duration)

	// RecordRun records a whole installation run
	RecordRun(success bool, duration time.Duration)

	// IncInFlight increments the number of artifacts being installed
	IncInFlight()

	// DecInFlight decrements the number of artifacts being installed
	DecInFlight()
}

// Noop discards everything.
type Noop struct{}

func (Noop) RecordInstall(string, string, string, time.Duration) {}
func (Noop) RecordRun(bool, time.Duration)                       {}
func (Noop) IncInFlight()                                        {}
func (Noop) DecInFlight()                                        {}
