package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"k8s.io/utils/clock"

	"github.com/giantswarm/enginectl/internal/command"
	"github.com/giantswarm/enginectl/internal/journal"
	"github.com/giantswarm/enginectl/internal/lockfile"
	"github.com/giantswarm/enginectl/internal/metrics"
	"github.com/giantswarm/enginectl/internal/process"
	"github.com/giantswarm/enginectl/internal/sentinel"
)

// ErrLockUnavailable is returned by Start and Stop when the lifecycle lock
// could not be acquired before the lock timeout.
const ErrLockUnavailable = sentinel.Error("lifecycle lock unavailable")

// CommandSource supplies the raw start and stop command lines. Both are
// read on every call, so changes take effect on the next Start or Stop.
type CommandSource interface {
	StartupScript() string
	StopScript() string
}

// LivenessState receives the storage engine's believed liveness. The
// controller calls SetAlive only after observing a zero exit code.
type LivenessState interface {
	SetAlive(alive bool)
}

// Controller runs the storage engine's start and stop commands.
//
// Start and Stop are synchronous and may be called from any goroutine.
// Concurrent calls are not serialized unless a lock file is configured.
type Controller struct {
	cfg      ControllerConfig
	source   CommandSource
	state    LivenessState
	clock    clock.Clock
	isRoot   command.PrivilegeCheck
	escalate command.Escalation
	metrics  *metrics.Recorder
	journal  *journal.Journal // nil when disabled
}

// NewController creates a Controller. It performs no I/O.
// Panics if source or state is nil or cfg is invalid.
func NewController(source CommandSource, state LivenessState, cfg ControllerConfig) *Controller {
	if source == nil {
		panic("enginectl: command source must not be nil")
	}
	if state == nil {
		panic("enginectl: liveness state must not be nil")
	}
	if err := cfg.Validate(); err != nil {
		panic("enginectl: invalid controller config: " + err.Error())
	}

	c := &Controller{
		cfg:      cfg,
		source:   source,
		state:    state,
		clock:    cfg.Clock,
		isRoot:   cfg.PrivilegeCheck,
		escalate: cfg.Escalation,
		metrics:  metrics.New(cfg.MetricsRegisterer),
	}
	if c.clock == nil {
		c.clock = clock.RealClock{}
	}
	if c.isRoot == nil {
		c.isRoot = command.RunsAs(cfg.PrivilegedUser)
	}
	if c.escalate == nil {
		c.escalate = command.Sudo(cfg.EscalationTool)
	}
	if cfg.JournalPath != "" {
		c.journal = journal.New(cfg.JournalPath, c.logger)
	}
	return c
}

// logger returns the configured logger, or the package logger at the time
// of the call so SetLogger applies to controllers that already exist.
func (c *Controller) logger() *slog.Logger {
	if c.cfg.Logger != nil {
		return c.cfg.Logger
	}
	return Logger()
}

// Start runs the startup script and waits up to the grace period for it to
// exit. A zero exit marks the engine alive. Only failures to launch the
// command are returned; every other outcome is logged.
func (c *Controller) Start(ctx context.Context) error {
	_, err := c.run(ctx, ActionStart)
	return err
}

// Stop runs the stop script and waits up to the grace period for it to exit.
// A zero exit marks the engine not alive. Error semantics match Start.
func (c *Controller) Stop(ctx context.Context) error {
	_, err := c.run(ctx, ActionStop)
	return err
}

// Journal returns the lifecycle journal, or nil when none is configured.
func (c *Controller) Journal() *journal.Journal {
	return c.journal
}

// Close releases the journal. The controller must not be used afterwards.
func (c *Controller) Close() error {
	if c.journal == nil {
		return nil
	}
	return c.journal.Close()
}

func (c *Controller) run(ctx context.Context, action Action) (Result, error) {
	res := Result{
		ID:        uuid.NewString(),
		Action:    action,
		StartedAt: c.clock.Now(),
	}
	log := c.logger().With("action", action.String(), "action_id", res.ID)

	switch action {
	case ActionStart:
		log.Info("Starting storage process")
	case ActionStop:
		log.Info("Stopping storage process")
	}

	err := c.execute(ctx, action, &res, log)
	if err != nil {
		res.Outcome = OutcomeSpawnFailed
		res.Err = err
	}
	res.FinishedAt = c.clock.Now()
	c.record(ctx, res, log)

	return res, err
}

// execute fills res for every path that spawned a process. A returned error
// means nothing was spawned.
func (c *Controller) execute(ctx context.Context, action Action, res *Result, log *slog.Logger) error {
	if c.cfg.LockPath != "" {
		lockCtx, cancel := context.WithTimeout(ctx, c.cfg.LockTimeout)
		defer cancel()

		lock, err := lockfile.Acquire(lockCtx, c.cfg.LockPath, log)
		if err != nil {
			log.Error("Unable to acquire lifecycle lock", "lock_file", c.cfg.LockPath, "error", err)
			return fmt.Errorf("%s storage process: %w: %w", action, ErrLockUnavailable, err)
		}
		defer lock.Release()
	}

	spec, err := c.buildCommand(action, log)
	if err != nil {
		log.Error("Unable to build storage command", "error", err)
		return fmt.Errorf("%s storage process: %w", action, err)
	}
	res.Argv = spec.Argv

	h, err := process.Spawn(process.Request{
		Argv:      spec.Argv,
		Dir:       c.cfg.WorkDir,
		OutputDir: c.cfg.OutputDir,
	}, log)
	if err != nil {
		log.Error("Unable to spawn storage command", "command", spec.String(), "error", err)
		return fmt.Errorf("%s storage process: %w", action, err)
	}

	status, err := h.WaitExit(ctx, c.clock, c.cfg.GracePeriod)
	if action == ActionStop && errors.Is(err, process.ErrNotTerminated) &&
		c.cfg.StopSettleTimeout > 0 && ctx.Err() == nil {
		log.Info("Stop command still running after grace period, waiting for it to settle",
			"grace_period", c.cfg.GracePeriod, "settle_timeout", c.cfg.StopSettleTimeout)
		status, err = h.Settle(ctx, c.cfg.StopSettleTimeout)
	}
	if err != nil {
		h.Detach()
		c.absorbWaitError(action, res, err, h, log)
		return nil
	}

	code := status.Code
	res.ExitCode = &code

	switch action {
	case ActionStart:
		c.finishStart(ctx, h, status, res, log)
	case ActionStop:
		c.finishStop(ctx, h, status, res, log)
	}
	return nil
}

func (c *Controller) buildCommand(action Action, log *slog.Logger) (command.Spec, error) {
	var raw string
	switch action {
	case ActionStart:
		raw = c.source.StartupScript()
	case ActionStop:
		raw = c.source.StopScript()
	}

	privileged, err := c.isRoot()
	if err != nil {
		log.Warn("Could not determine executing user, assuming unprivileged", "error", err)
		privileged = false
	}

	spec, err := command.Build(raw, privileged, c.escalate)
	if err != nil {
		return command.Spec{}, err
	}
	log.Debug("built storage command", "command", spec.String(), "privileged", privileged)
	return spec, nil
}

// absorbWaitError handles the paths where no exit code was observed. Output
// is not collected: the command (or a child it forked) may keep writing for
// as long as the engine runs. With an output directory the file it writes to
// is logged instead.
func (c *Controller) absorbWaitError(action Action, res *Result, err error, h *process.Handle, log *slog.Logger) {
	res.Err = err
	if path := h.OutputPath(); path != "" {
		log = log.With("output_file", path)
	}

	if errors.Is(err, process.ErrNotTerminated) {
		res.Outcome = OutcomeIndeterminate
		switch action {
		case ActionStart:
			log.Warn("Start command still running after grace period, status unknown",
				"grace_period", c.cfg.GracePeriod, "error", err)
		case ActionStop:
			log.Warn("Could not shut down storage process correctly", "error", err)
		}
		return
	}

	res.Outcome = OutcomeErrored
	switch action {
	case ActionStart:
		log.Warn("Could not read start command status", "error", err)
	case ActionStop:
		log.Warn("Could not shut down storage process correctly", "error", err)
	}
}

func (c *Controller) finishStart(ctx context.Context, h *process.Handle, status process.Status, res *Result, log *slog.Logger) {
	if status.Success() {
		c.setAlive(true)
		res.Outcome = OutcomeSucceeded
		log.Info("Storage process has been started")
	} else {
		res.Outcome = OutcomeFailed
		log.Error("Unable to start storage process", "exit_code", status.Code)
	}
	res.Output = c.logOutput(ctx, h, slog.LevelInfo, log)
}

func (c *Controller) finishStop(ctx context.Context, h *process.Handle, status process.Status, res *Result, log *slog.Logger) {
	if status.Success() {
		c.setAlive(false)
		res.Outcome = OutcomeSucceeded
		log.Info("Storage process has been stopped")
		res.Output = c.logOutput(ctx, h, slog.LevelDebug, log)
		return
	}
	res.Outcome = OutcomeFailed
	log.Error("Unable to stop storage process", "exit_code", status.Code)
	res.Output = c.logOutput(ctx, h, slog.LevelInfo, log)
}

// logOutput collects the command's output and logs it at level. A read
// failure is logged and whatever was captured is still returned.
func (c *Controller) logOutput(ctx context.Context, h *process.Handle, level slog.Level, log *slog.Logger) string {
	out, err := h.Output(c.cfg.OutputDrainTimeout)
	if err != nil {
		log.Warn("Unable to read storage command output", "error", err)
	}
	log.Log(ctx, level, "Storage command output", "output", out)
	return out
}

func (c *Controller) setAlive(alive bool) {
	c.state.SetAlive(alive)
	c.metrics.SetAlive(alive)
}

// record exports res to metrics and the journal. Journal failures are logged
// and otherwise ignored.
func (c *Controller) record(ctx context.Context, res Result, log *slog.Logger) {
	c.metrics.ObserveAction(res.Action.String(), res.Outcome.String(), res.FinishedAt.Sub(res.StartedAt))

	if c.journal == nil {
		return
	}
	entry := journal.Entry{
		ID:         res.ID,
		Action:     res.Action.String(),
		Argv:       res.Argv,
		StartedAt:  res.StartedAt,
		FinishedAt: res.FinishedAt,
		Outcome:    res.Outcome.String(),
		ExitCode:   res.ExitCode,
		Output:     res.Output,
	}
	if res.Err != nil {
		entry.Error = res.Err.Error()
	}
	if err := c.journal.Record(context.WithoutCancel(ctx), entry); err != nil {
		log.Warn("Unable to record lifecycle action", "journal", c.journal.Path(), "error", err)
	}
}
