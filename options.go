package enginectl

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"k8s.io/utils/clock"
)

// requirePositive panics if v <= 0 with a descriptive message.
func requirePositive[T int | time.Duration](name string, v T) {
	if v <= 0 {
		panic(fmt.Sprintf("enginectl: %s must be greater than 0, got %v", name, v))
	}
}

// requireNonEmpty panics if s is empty with a descriptive message.
func requireNonEmpty(name, s string) {
	if s == "" {
		panic(fmt.Sprintf("enginectl: %s must not be empty", name))
	}
}

// requireNonNil panics if v is nil with a descriptive message.
func requireNonNil[T any](name string, v *T) {
	if v == nil {
		panic(fmt.Sprintf("enginectl: %s must not be nil", name))
	}
}

// Option configures a Controller during construction via NewController.
//
// Several With* functions panic on invalid input (non-positive durations,
// empty paths, nil strategies). Option values are typically constants or
// package-level variables, so an invalid value is a programmer error; the
// pattern mirrors [regexp.MustCompile].
type Option func(*controllerConfig)

// WithGracePeriod sets how long Start and Stop wait for the spawned command
// to exit. A command that exits sooner ends the wait immediately.
//
// Default: 5 seconds.
//
// Panics if d <= 0.
func WithGracePeriod(d time.Duration) Option {
	requirePositive("grace period", d)
	return func(c *controllerConfig) {
		c.GracePeriod = d
	}
}

// WithStopSettleTimeout extends the wait of Stop when the stop command is
// still running after the grace period. The command is polled for exit, not
// re-issued. Zero disables the extension.
//
// Default: 0.
//
// Panics if d < 0.
func WithStopSettleTimeout(d time.Duration) Option {
	if d < 0 {
		panic(fmt.Sprintf("enginectl: stop settle timeout must not be negative, got %v", d))
	}
	return func(c *controllerConfig) {
		c.StopSettleTimeout = d
	}
}

// WithOutputDrainTimeout bounds how long output collection waits for the
// command's output to reach end-of-file after it exited. On timeout the
// partial output is logged.
//
// Default: 2 seconds.
//
// Panics if d <= 0.
func WithOutputDrainTimeout(d time.Duration) Option {
	requirePositive("output drain timeout", d)
	return func(c *controllerConfig) {
		c.OutputDrainTimeout = d
	}
}

// WithWorkDir sets the working directory of spawned commands.
//
// Default: "/".
//
// Panics if dir is empty or relative.
func WithWorkDir(dir string) Option {
	requireNonEmpty("work directory", dir)
	if !filepath.IsAbs(dir) {
		panic(fmt.Sprintf("enginectl: work directory must be absolute, got %q", dir))
	}
	return func(c *controllerConfig) {
		c.WorkDir = dir
	}
}

// WithOutputDir makes spawned commands write their merged output to a file
// in dir instead of a pipe. A start command still running after the grace
// period then keeps a valid stdout after the calling process exits, and its
// output file is logged. The directory is created on first use.
//
// Default: "" (output through a pipe).
//
// Panics if dir is empty or relative.
func WithOutputDir(dir string) Option {
	requireNonEmpty("output directory", dir)
	if !filepath.IsAbs(dir) {
		panic(fmt.Sprintf("enginectl: output directory must be absolute, got %q", dir))
	}
	return func(c *controllerConfig) {
		c.OutputDir = dir
	}
}

// WithPrivilegedUser sets the account whose commands run without
// escalation. Ignored when WithPrivilegeCheck is used.
//
// Default: "root".
//
// Panics if name is empty.
func WithPrivilegedUser(name string) Option {
	requireNonEmpty("privileged user", name)
	return func(c *controllerConfig) {
		c.PrivilegedUser = name
	}
}

// WithEscalationTool sets the sudo-compatible program used when not
// privileged. It is invoked as "<tool> -n -E <command...>", so it must not
// prompt and must preserve the environment. Ignored when WithEscalation is
// used.
//
// Default: "/usr/bin/sudo".
//
// Panics if path is empty.
func WithEscalationTool(path string) Option {
	requireNonEmpty("escalation tool", path)
	return func(c *controllerConfig) {
		c.EscalationTool = path
	}
}

// WithPrivilegeCheck replaces the current-user comparison. An error from
// check is logged and treated as not privileged.
//
// Panics if check is nil.
func WithPrivilegeCheck(check PrivilegeCheck) Option {
	if check == nil {
		panic("enginectl: privilege check must not be nil")
	}
	return func(c *controllerConfig) {
		c.PrivilegeCheck = check
	}
}

// WithEscalation replaces the sudo prefix strategy.
//
// Panics if escalate is nil.
func WithEscalation(escalate Escalation) Option {
	if escalate == nil {
		panic("enginectl: escalation must not be nil")
	}
	return func(c *controllerConfig) {
		c.Escalation = escalate
	}
}

// WithClock sets the clock that measures the grace period.
//
// Panics if clk is nil.
func WithClock(clk clock.Clock) Option {
	if clk == nil {
		panic("enginectl: clock must not be nil")
	}
	return func(c *controllerConfig) {
		c.Clock = clk
	}
}

// WithMetricsRegisterer registers the lifecycle metrics with reg:
// enginectl_lifecycle_actions_total, enginectl_lifecycle_action_duration_seconds
// and enginectl_storage_alive.
//
// Panics if reg is nil.
func WithMetricsRegisterer(reg prometheus.Registerer) Option {
	if reg == nil {
		panic("enginectl: metrics registerer must not be nil")
	}
	return func(c *controllerConfig) {
		c.MetricsRegisterer = reg
	}
}

// WithJournal records every action in the SQLite database at path, created
// on first use. Journal failures are logged and never fail Start or Stop.
//
// Panics if path is empty.
func WithJournal(path string) Option {
	requireNonEmpty("journal path", path)
	return func(c *controllerConfig) {
		c.JournalPath = path
	}
}

// WithLockFile holds an exclusive lock on path for the duration of every
// Start and Stop, serializing controllers in different processes. An action
// that cannot take the lock within timeout returns ErrLockUnavailable.
//
// Panics if path is empty or timeout <= 0.
func WithLockFile(path string, timeout time.Duration) Option {
	requireNonEmpty("lock file path", path)
	requirePositive("lock timeout", timeout)
	return func(c *controllerConfig) {
		c.LockPath = path
		c.LockTimeout = timeout
	}
}

// WithLogger sets the logger of this Controller, overriding SetLogger.
//
// Panics if l is nil.
func WithLogger(l *slog.Logger) Option {
	requireNonNil("logger", l)
	return func(c *controllerConfig) {
		c.Logger = l
	}
}
