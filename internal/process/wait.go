package process

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/utils/clock"

	"github.com/giantswarm/enginectl/internal/sentinel"
)

// ErrNotTerminated is returned by WaitExit and Settle when the command is
// still running at the deadline. For a long-running server this is the
// normal outcome of a start command.
const ErrNotTerminated = sentinel.Error("process has not terminated")

// settlePollInterval is how often Settle checks whether the command exited.
const settlePollInterval = 50 * time.Millisecond

// Status is the observed termination state of a command.
type Status struct {
	// Code is the exit code. It is -1 when the command was killed by a
	// signal.
	Code int
}

// Success reports whether the command exited with code 0.
func (s Status) Success() bool {
	return s.Code == 0
}

// WaitExit waits up to timeout for the command to exit, measuring time on
// clk (a nil clk uses the real clock). A non-positive timeout checks the
// current state without waiting.
//
// Exactly one of these holds on return:
//   - the command exited: the Status is valid and err is nil;
//   - the command is still running at the deadline, or ctx ended first:
//     err wraps ErrNotTerminated;
//   - cmd.Wait failed for a reason other than the exit status: err
//     describes it.
//
// Once an exit has been observed, later calls return the same Status.
func (h *Handle) WaitExit(ctx context.Context, clk clock.Clock, timeout time.Duration) (Status, error) {
	if h.status != nil {
		return *h.status, nil
	}
	// An exit that already happened wins over an ended ctx or an elapsed
	// timer, so check for it before anything else can be selected.
	if st, ok, err := h.pollExit(); ok {
		return st, err
	}
	if timeout <= 0 {
		return Status{}, fmt.Errorf("%s: %w", h.name, ErrNotTerminated)
	}
	if clk == nil {
		clk = clock.RealClock{}
	}

	t := clk.NewTimer(timeout)
	defer t.Stop()

	select {
	case err := <-h.waitDone:
		return h.observe(err)
	case <-t.C():
		if st, ok, err := h.pollExit(); ok {
			return st, err
		}
		return Status{}, fmt.Errorf("%s after %s: %w", h.name, timeout, ErrNotTerminated)
	case <-ctx.Done():
		if st, ok, err := h.pollExit(); ok {
			return st, err
		}
		return Status{}, fmt.Errorf("%s: %w: %w", h.name, ErrNotTerminated, ctx.Err())
	}
}

// pollExit observes the exit if the reaper has already reported it. ok is
// false when the command is still running.
func (h *Handle) pollExit() (st Status, ok bool, err error) {
	select {
	case waitErr := <-h.waitDone:
		st, err = h.observe(waitErr)
		return st, true, err
	default:
		return Status{}, false, nil
	}
}

// Settle polls for up to timeout for a command that WaitExit reported as
// still running. It returns the same results as WaitExit.
func (h *Handle) Settle(ctx context.Context, timeout time.Duration) (Status, error) {
	if h.status != nil {
		return *h.status, nil
	}
	err := wait.PollUntilContextTimeout(ctx, settlePollInterval, timeout, true,
		func(context.Context) (bool, error) {
			select {
			case <-h.exited:
				return true, nil
			default:
				return false, nil
			}
		})
	if err != nil {
		if wait.Interrupted(err) {
			return Status{}, fmt.Errorf("%s after settling %s: %w", h.name, timeout, ErrNotTerminated)
		}
		return Status{}, fmt.Errorf("settle %s: %w", h.name, err)
	}
	// exited is closed only after waitDone was written.
	return h.observe(<-h.waitDone)
}

// observe converts the cmd.Wait result into a Status and caches it.
func (h *Handle) observe(waitErr error) (Status, error) {
	st, err := exitStatus(waitErr)
	if err != nil {
		return Status{}, fmt.Errorf("%s: %w", h.name, err)
	}
	h.status = &st
	return st, nil
}

// exitStatus interprets an error returned by cmd.Wait. A nil error is exit
// code 0 and an *exec.ExitError carries the code; anything else means the
// status could not be determined.
func exitStatus(waitErr error) (Status, error) {
	if waitErr == nil {
		return Status{Code: 0}, nil
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		return Status{Code: exitErr.ExitCode()}, nil
	}
	return Status{}, fmt.Errorf("wait: %w", waitErr)
}

// drainDone reads from done with timeout as a hard upper bound.
// Returns true and the received error if done delivered in time, or false
// and a nil error if the timeout elapsed.
func drainDone(done <-chan error, timeout time.Duration) (bool, error) {
	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case err := <-done:
		return true, err
	case <-t.C:
		return false, nil
	}
}
