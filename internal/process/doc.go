// Package process spawns short-lived storage engine commands and observes
// them for a bounded time.
//
// Spawn starts a command with stdout and stderr merged into one pipe, begins
// draining that pipe immediately and reaps the child with a single cmd.Wait
// goroutine. With Request.OutputDir the output goes to a file the child owns
// instead, so it can outlive the caller. Handle.WaitExit waits up to a timeout and reports either the
// exit code or ErrNotTerminated. Handle.Output collects what the command
// wrote; Handle.Detach gives up on the output without blocking the child.
package process
