package enginectl

import "time"

// Default configuration values for NewController.
// These constants are exported so callers can reference the defaults
// when building custom configurations relative to them (e.g.,
// 2 * DefaultGracePeriod).
const (
	// DefaultGracePeriod is how long Start and Stop wait for the spawned
	// command to exit before treating its status as unknown.
	DefaultGracePeriod = 5 * time.Second

	// DefaultStopSettleTimeout disables the extended wait for a stop command
	// that is still running after the grace period.
	DefaultStopSettleTimeout time.Duration = 0

	// DefaultOutputDrainTimeout bounds output collection after the command
	// exited. It only matters when the command left a child holding its
	// output open, such as a server that daemonized without closing stdout.
	DefaultOutputDrainTimeout = 2 * time.Second

	// DefaultWorkDir is the working directory of spawned commands.
	DefaultWorkDir = "/"

	// DefaultPrivilegedUser is the account whose commands run without
	// escalation.
	DefaultPrivilegedUser = "root"

	// DefaultEscalationTool is prefixed, with "-n -E", to commands run by
	// any other account.
	DefaultEscalationTool = "/usr/bin/sudo"

	// DefaultLockTimeout is how long an action waits for the lock file
	// configured with WithLockFile when no timeout is given.
	DefaultLockTimeout = 30 * time.Second

	// DefaultHistoryLimit is the number of journal entries History returns
	// for a non-positive limit.
	DefaultHistoryLimit = 20
)
