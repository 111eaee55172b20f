// Package enginectl starts and stops a locally running storage engine (a
// cache or key-value server) on behalf of a supervising agent.
//
// A Controller runs the engine's configured start or stop command once per
// call, escalating through sudo when the agent is not running as root. It
// waits a bounded grace period for the command to exit, logs the command's
// combined output and updates a shared liveness flag when the exit code was
// zero. It does not supervise the engine: there is no health check and no
// restart after the call returns.
//
// # Basic Usage
//
//	import "github.com/giantswarm/enginectl"
//
//	var alive enginectl.Liveness
//	ctrl := enginectl.NewController(scripts, &alive)
//	defer ctrl.Close()
//
//	if err := ctrl.Start(ctx); err != nil {
//	    // The start command could not be launched at all.
//	    log.Fatal(err)
//	}
//	if alive.Alive() {
//	    // The start command exited with code 0.
//	}
//
// # Outcomes
//
// Start and Stop return an error only when no command was spawned: an empty
// command line, a program that cannot be executed or an unavailable lock
// file. Every other outcome is reported through the logger:
//
//   - exit code 0: liveness is updated and the output is logged
//   - non-zero exit: liveness is untouched and the output is logged
//   - still running after the grace period: liveness is untouched. For a
//     start command that runs the server in the foreground this is the
//     expected steady state.
//
// # Grace Period
//
// The grace period (WithGracePeriod, default 5s) is an upper bound: a
// command that exits early ends the wait immediately.
package enginectl
