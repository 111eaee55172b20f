package enginectl

import (
	"context"

	"github.com/giantswarm/enginectl/internal/command"
	"github.com/giantswarm/enginectl/internal/core"
	"github.com/giantswarm/enginectl/internal/journal"
)

// Controller starts and stops the storage engine.
//
// Start and Stop are synchronous: each blocks for at most the grace period
// plus the output drain timeout (and, for Stop, the settle timeout). They may
// be called from any goroutine, but concurrent calls are not serialized
// unless WithLockFile is used, and repeated calls are not deduplicated.
type Controller interface {
	// Start runs the startup command. A zero exit marks the engine alive.
	//
	// Returns an error only if the command could not be spawned, wrapping
	// ErrEmptyCommand, ErrLockUnavailable or the exec error. A non-zero
	// exit or a command still running after the grace period is logged and
	// returns nil.
	//
	// Canceling ctx ends the wait early; the command's status is then
	// treated as unknown and liveness is left unchanged.
	Start(ctx context.Context) error

	// Stop runs the stop command. A zero exit marks the engine not alive.
	// Error semantics match Start. The stop command is never re-issued.
	Stop(ctx context.Context) error

	// History returns up to limit journaled actions, newest first. It
	// returns nil when no journal is configured (WithJournal). A
	// non-positive limit means DefaultHistoryLimit.
	History(ctx context.Context, limit int) ([]HistoryEntry, error)

	// Close releases the journal. The Controller must not be used after
	// Close.
	Close() error
}

// CommandSource supplies the start and stop command lines. Each is read on
// every call and split on whitespace; quoting is not interpreted.
type CommandSource = core.CommandSource

// LivenessState receives the believed liveness of the storage engine.
// SetAlive is called only after a command exited with code 0.
type LivenessState = core.LivenessState

// Liveness is a LivenessState safe for concurrent reads. The zero value
// reports not alive.
type Liveness = core.Liveness

// HistoryEntry is one journaled lifecycle action.
type HistoryEntry = journal.Entry

// PrivilegeCheck reports whether commands can run without escalation.
type PrivilegeCheck = command.PrivilegeCheck

// Escalation returns the tokens prefixed to every command, given the
// result of the PrivilegeCheck.
type Escalation = command.Escalation

// RunsAs returns a PrivilegeCheck that compares the current user's login
// name with account.
func RunsAs(account string) PrivilegeCheck {
	requireNonEmpty("privileged user", account)
	return command.RunsAs(account)
}

// SudoEscalation returns an Escalation that prefixes "<tool> -n -E" when not
// privileged. Panics if tool is empty.
func SudoEscalation(tool string) Escalation {
	requireNonEmpty("escalation tool", tool)
	return command.Sudo(tool)
}
