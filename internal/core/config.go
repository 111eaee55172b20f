package core

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"k8s.io/utils/clock"

	"github.com/giantswarm/enginectl/internal/command"
)

// ControllerConfig holds configuration for a Controller. All fields are
// read-only after NewController.
type ControllerConfig struct {
	// GracePeriod bounds how long Start and Stop wait for the spawned
	// command to exit before its status is treated as unknown.
	GracePeriod time.Duration

	// StopSettleTimeout extends the wait of Stop when the stop command is
	// still running after GracePeriod. Zero disables the extension.
	StopSettleTimeout time.Duration

	// OutputDrainTimeout bounds how long output collection waits for the
	// output pipe to close after the command exited.
	OutputDrainTimeout time.Duration

	// WorkDir is the working directory of spawned commands.
	WorkDir string

	// OutputDir, when set, makes spawned commands write their merged output
	// to a file in this directory instead of a pipe. A command left running
	// past the grace period can then outlive the agent without losing its
	// stdout. Empty uses a pipe.
	OutputDir string

	// PrivilegedUser is the account that needs no escalation. Ignored when
	// PrivilegeCheck is set.
	PrivilegedUser string

	// EscalationTool is the sudo-compatible program prefixed to commands
	// when not privileged. Ignored when Escalation is set.
	EscalationTool string

	// PrivilegeCheck overrides the PrivilegedUser comparison.
	PrivilegeCheck command.PrivilegeCheck

	// Escalation overrides the EscalationTool prefix.
	Escalation command.Escalation

	// Clock measures the grace period. Nil uses the real clock.
	Clock clock.Clock

	// MetricsRegisterer receives the lifecycle collectors. Nil disables
	// registration; the collectors still exist but are not exported.
	MetricsRegisterer prometheus.Registerer

	// JournalPath is the SQLite file lifecycle actions are recorded in.
	// Empty disables the journal.
	JournalPath string

	// LockPath is the file locked around every action to serialize
	// controllers across processes. Empty disables locking.
	LockPath string

	// LockTimeout bounds how long an action waits for LockPath.
	LockTimeout time.Duration

	// Logger overrides the package-level logger for this controller.
	Logger *slog.Logger
}

// Validate checks all ControllerConfig invariants and reports every
// violation at once.
func (c ControllerConfig) Validate() error {
	var errs []error

	if c.GracePeriod <= 0 {
		errs = append(errs, fmt.Errorf("grace period must be greater than 0, got %s", c.GracePeriod))
	}
	if c.StopSettleTimeout < 0 {
		errs = append(errs, fmt.Errorf("stop settle timeout must not be negative, got %s", c.StopSettleTimeout))
	}
	if c.OutputDrainTimeout <= 0 {
		errs = append(errs, fmt.Errorf("output drain timeout must be greater than 0, got %s", c.OutputDrainTimeout))
	}
	if c.WorkDir == "" {
		errs = append(errs, errors.New("work directory must not be empty"))
	} else if !filepath.IsAbs(c.WorkDir) {
		errs = append(errs, fmt.Errorf("work directory must be absolute, got %q", c.WorkDir))
	}
	if c.OutputDir != "" && !filepath.IsAbs(c.OutputDir) {
		errs = append(errs, fmt.Errorf("output directory must be absolute, got %q", c.OutputDir))
	}
	if c.PrivilegeCheck == nil && c.PrivilegedUser == "" {
		errs = append(errs, errors.New("privileged user must not be empty"))
	}
	if c.Escalation == nil && c.EscalationTool == "" {
		errs = append(errs, errors.New("escalation tool must not be empty"))
	}
	if c.LockPath != "" && c.LockTimeout <= 0 {
		errs = append(errs, fmt.Errorf("lock timeout must be greater than 0 when a lock file is set, got %s", c.LockTimeout))
	}

	return errors.Join(errs...)
}
