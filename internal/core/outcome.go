package core

import (
	"fmt"
	"time"
)

// Action is a lifecycle action.
type Action int

const (
	// ActionStart runs the storage engine's startup script.
	ActionStart Action = iota
	// ActionStop runs the storage engine's stop script.
	ActionStop
)

// String returns "start" or "stop".
func (a Action) String() string {
	switch a {
	case ActionStart:
		return "start"
	case ActionStop:
		return "stop"
	default:
		return fmt.Sprintf("Action(%d)", int(a))
	}
}

// Outcome is the terminal state of one lifecycle action.
type Outcome int

const (
	// OutcomeSucceeded: the command exited with code 0 and liveness was
	// updated.
	OutcomeSucceeded Outcome = iota
	// OutcomeFailed: the command exited with a non-zero code.
	OutcomeFailed
	// OutcomeIndeterminate: the command was still running when the wait
	// ended. Expected for a start command that runs the server itself.
	OutcomeIndeterminate
	// OutcomeErrored: the exit status could not be read.
	OutcomeErrored
	// OutcomeSpawnFailed: no command was started. This is the only outcome
	// that produces an error from Start and Stop.
	OutcomeSpawnFailed
)

// String returns the label used in logs, metrics and the journal.
func (o Outcome) String() string {
	switch o {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeFailed:
		return "failed"
	case OutcomeIndeterminate:
		return "indeterminate"
	case OutcomeErrored:
		return "errored"
	case OutcomeSpawnFailed:
		return "spawn_failed"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Result describes one finished lifecycle action.
type Result struct {
	ID         string
	Action     Action
	Argv       []string
	Outcome    Outcome
	ExitCode   *int   // nil unless an exit was observed
	Output     string // empty unless an exit was observed
	Err        error  // cause for every outcome but succeeded and failed
	StartedAt  time.Time
	FinishedAt time.Time
}
