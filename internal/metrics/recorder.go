// Package metrics provides metrics recording for intake turns.
package metrics

import (
	"time"
)

// Turn outcomes reported to ObserveTurn.
const (
	OutcomeAdvanced  = "advanced"  // answer accepted, moved to the next step
	OutcomeReview    = "review"    // moved to review with a snapshot
	OutcomeEdit      = "edit"      // entered edit mode for a field
	OutcomeReask     = "reask"     // current prompt repeated, nothing changed
	OutcomeInvalid   = "invalid"   // validation failed
	OutcomeCompleted = "completed" // intake finished this turn
	OutcomeTerminal  = "terminal"  // message received after completion
	OutcomeRetry     = "retry"     // store failure, caller asked to retry
)

// Recorder defines the interface for recording intake metrics.
type Recorder interface {
	// ObserveTurn records one processed message. step is the step the session
	// was at when the message arrived.
	ObserveTurn(step, outcome string, duration time.Duration)

	// IncIntent counts a detected special intent.
	IncIntent(intent string)
}

// NoopRecorder implements Recorder with no-op behavior for when metrics are disabled.
type NoopRecorder struct{}

// Nop returns a no-op metrics recorder that discards all metrics.
func Nop() Recorder {
	return &NoopRecorder{}
}

// ObserveTurn does nothing in the no-op recorder.
func (n *NoopRecorder) ObserveTurn(_, _ string, _ time.Duration) {}

// IncIntent does nothing in the no-op recorder.
func (n *NoopRecorder) IncIntent(_ string) {}
