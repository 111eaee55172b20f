package enginectl

import (
	"github.com/giantswarm/enginectl/internal/command"
	"github.com/giantswarm/enginectl/internal/core"
	"github.com/giantswarm/enginectl/internal/journal"
)

// Sentinel errors for error inspection with errors.Is.
// These are immutable constants safe for use in wrapped error chain comparison.
const (
	// ErrEmptyCommand is returned by Start or Stop when the configured
	// command line contains no tokens. Nothing is spawned.
	ErrEmptyCommand = command.ErrEmptyCommand

	// ErrLockUnavailable is returned by Start or Stop when a lock file is
	// configured (WithLockFile) and another holder kept it past the lock
	// timeout. Nothing is spawned.
	ErrLockUnavailable = core.ErrLockUnavailable

	// ErrJournalClosed is returned by History after Close.
	ErrJournalClosed = journal.ErrClosed
)
