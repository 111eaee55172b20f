package core

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"golang.org/x/sync/errgroup"

	"github.com/giantswarm/enginectl/internal/command"
	"github.com/giantswarm/enginectl/internal/lockfile"
	"github.com/giantswarm/enginectl/internal/process"
)

// staticSource returns fixed command lines.
type staticSource struct {
	start string
	stop  string
}

func (s staticSource) StartupScript() string { return s.start }
func (s staticSource) StopScript() string    { return s.stop }

// recordingState remembers every SetAlive call.
type recordingState struct {
	mu    sync.Mutex
	calls []bool
}

func (r *recordingState) SetAlive(alive bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, alive)
}

func (r *recordingState) Calls() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.calls)
}

// syncBuffer is a bytes.Buffer safe for the concurrent writes of a handler.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// writeScript creates an executable shell script in dir and returns its path.
func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil { //nolint:gosec // test script must be executable
		t.Fatalf("write script %s: %v", name, err)
	}
	return path
}

type harness struct {
	ctrl  *Controller
	state *recordingState
	logs  *syncBuffer
}

// newHarness builds a controller running as the privileged user, so commands
// are spawned without escalation unless modify says otherwise.
func newHarness(t *testing.T, source CommandSource, modify func(c *ControllerConfig)) *harness {
	t.Helper()

	logs := &syncBuffer{}
	cfg := validControllerConfig()
	cfg.PrivilegeCheck = command.Always(true)
	cfg.Logger = slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	if modify != nil {
		modify(&cfg)
	}

	h := &harness{
		state: &recordingState{},
		logs:  logs,
	}
	h.ctrl = NewController(source, h.state, cfg)
	t.Cleanup(func() {
		if err := h.ctrl.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return h
}

func TestController_Start(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		body        string
		grace       time.Duration
		wantOutcome Outcome
		wantCalls   []bool
		wantCode    *int
		wantLog     string
		wantOutput  string
	}{
		"zero exit marks alive": {
			body:        "echo ready\nexit 0",
			grace:       5 * time.Second,
			wantOutcome: OutcomeSucceeded,
			wantCalls:   []bool{true},
			wantCode:    ptr(0),
			wantLog:     "Storage process has been started",
			wantOutput:  "ready\n",
		},
		"non-zero exit leaves state": {
			body:        "echo 'port in use' >&2\nexit 2",
			grace:       5 * time.Second,
			wantOutcome: OutcomeFailed,
			wantCode:    ptr(2),
			wantLog:     "exit_code=2",
			wantOutput:  "port in use\n",
		},
		"still running is indeterminate": {
			body:        "echo serving\nexec sleep 2",
			grace:       100 * time.Millisecond,
			wantOutcome: OutcomeIndeterminate,
			wantLog:     "status unknown",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			script := writeScript(t, t.TempDir(), "start.sh", tc.body)
			h := newHarness(t, staticSource{start: script}, func(c *ControllerConfig) {
				c.GracePeriod = tc.grace
			})

			res, err := h.ctrl.run(context.Background(), ActionStart)
			if err != nil {
				t.Fatalf("run: %v", err)
			}
			if res.Outcome != tc.wantOutcome {
				t.Errorf("outcome = %s, want %s", res.Outcome, tc.wantOutcome)
			}
			if got := h.state.Calls(); !slices.Equal(got, tc.wantCalls) {
				t.Errorf("SetAlive calls = %v, want %v", got, tc.wantCalls)
			}
			if !equalCode(res.ExitCode, tc.wantCode) {
				t.Errorf("exit code = %v, want %v", deref(res.ExitCode), deref(tc.wantCode))
			}
			if res.Output != tc.wantOutput {
				t.Errorf("output = %q, want %q", res.Output, tc.wantOutput)
			}
			if logs := h.logs.String(); !strings.Contains(logs, tc.wantLog) {
				t.Errorf("logs missing %q:\n%s", tc.wantLog, logs)
			}
		})
	}
}

func TestController_Stop(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		body        string
		grace       time.Duration
		settle      time.Duration
		wantOutcome Outcome
		wantCalls   []bool
		wantLog     string
	}{
		"zero exit marks not alive": {
			body:        "exit 0",
			grace:       5 * time.Second,
			wantOutcome: OutcomeSucceeded,
			wantCalls:   []bool{false},
			wantLog:     "Storage process has been stopped",
		},
		"non-zero exit dumps output": {
			body:        "echo 'no such process'\nexit 1",
			grace:       5 * time.Second,
			wantOutcome: OutcomeFailed,
			wantLog:     "no such process",
		},
		"still running is indeterminate": {
			body:        "exec sleep 2",
			grace:       100 * time.Millisecond,
			wantOutcome: OutcomeIndeterminate,
			wantLog:     "Could not shut down storage process correctly",
		},
		"settle timeout observes late exit": {
			body:        "sleep 0.3\nexit 0",
			grace:       50 * time.Millisecond,
			settle:      5 * time.Second,
			wantOutcome: OutcomeSucceeded,
			wantCalls:   []bool{false},
			wantLog:     "waiting for it to settle",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			script := writeScript(t, t.TempDir(), "stop.sh", tc.body)
			h := newHarness(t, staticSource{stop: script}, func(c *ControllerConfig) {
				c.GracePeriod = tc.grace
				c.StopSettleTimeout = tc.settle
			})

			res, err := h.ctrl.run(context.Background(), ActionStop)
			if err != nil {
				t.Fatalf("run: %v", err)
			}
			if res.Outcome != tc.wantOutcome {
				t.Errorf("outcome = %s, want %s", res.Outcome, tc.wantOutcome)
			}
			if got := h.state.Calls(); !slices.Equal(got, tc.wantCalls) {
				t.Errorf("SetAlive calls = %v, want %v", got, tc.wantCalls)
			}
			if logs := h.logs.String(); !strings.Contains(logs, tc.wantLog) {
				t.Errorf("logs missing %q:\n%s", tc.wantLog, logs)
			}
		})
	}
}

func TestController_SpawnFailurePropagates(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		source  staticSource
		action  Action
		wantErr error
	}{
		"empty start script": {
			source:  staticSource{start: "   \t "},
			action:  ActionStart,
			wantErr: command.ErrEmptyCommand,
		},
		"empty stop script": {
			source:  staticSource{},
			action:  ActionStop,
			wantErr: command.ErrEmptyCommand,
		},
		"missing binary": {
			source: staticSource{start: "/nonexistent/enginectl-test-binary --daemonize"},
			action: ActionStart,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t, tc.source, nil)

			var err error
			switch tc.action {
			case ActionStart:
				err = h.ctrl.Start(context.Background())
			case ActionStop:
				err = h.ctrl.Stop(context.Background())
			}
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Errorf("error = %v, want errors.Is %v", err, tc.wantErr)
			}
			if calls := h.state.Calls(); len(calls) != 0 {
				t.Errorf("SetAlive called %v after spawn failure", calls)
			}
		})
	}
}

// TestController_UnprivilegedDaemonizeScenario starts an engine through a
// stand-in escalation tool that checks its flags before exec'ing the engine.
func TestController_UnprivilegedDaemonizeScenario(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	argsFile := filepath.Join(dir, "sudo.args")
	sudo := writeScript(t, dir, "sudo",
		`printf '%s\n' "$@" > "`+argsFile+`"
[ "$1" = "-n" ] && [ "$2" = "-E" ] || exit 90
shift 2
exec "$@"`)
	engine := writeScript(t, dir, "engine", "sleep 1\nexit 0")

	h := newHarness(t, staticSource{start: engine + " --daemonize"}, func(c *ControllerConfig) {
		c.PrivilegeCheck = command.Always(false)
		c.Escalation = command.Sudo(sudo)
	})

	if err := h.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if got := h.state.Calls(); !slices.Equal(got, []bool{true}) {
		t.Errorf("SetAlive calls = %v, want [true]", got)
	}
	if logs := h.logs.String(); !strings.Contains(logs, "Storage process has been started") {
		t.Errorf("logs missing start message:\n%s", logs)
	}

	raw, err := os.ReadFile(argsFile)
	if err != nil {
		t.Fatalf("read escalation args: %v", err)
	}
	want := "-n\n-E\n" + engine + "\n--daemonize\n"
	if string(raw) != want {
		t.Errorf("escalation args = %q, want %q", raw, want)
	}
}

func TestController_PrivilegeCheckErrorAssumesUnprivileged(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	marker := filepath.Join(dir, "escalated")
	sudo := writeScript(t, dir, "sudo", `touch "`+marker+`"
shift 2
exec "$@"`)
	engine := writeScript(t, dir, "engine", "exit 0")

	h := newHarness(t, staticSource{start: engine}, func(c *ControllerConfig) {
		c.PrivilegeCheck = func() (bool, error) { return false, errors.New("no passwd entry") }
		c.Escalation = command.Sudo(sudo)
	})

	if err := h.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := os.Stat(marker); err != nil {
		t.Errorf("escalation tool was not used: %v", err)
	}
	if logs := h.logs.String(); !strings.Contains(logs, "assuming unprivileged") {
		t.Errorf("logs missing privilege warning:\n%s", logs)
	}
}

func TestController_CapturesLargeOutput(t *testing.T) {
	t.Parallel()

	// Ten bursts of 1000 bytes so the reader sees many partial reads.
	script := writeScript(t, t.TempDir(), "start.sh", `i=0
while [ $i -lt 10 ]; do
	head -c 1000 /dev/zero | tr '\0' 'q'
	i=$((i+1))
done
exit 0`)
	h := newHarness(t, staticSource{start: script}, nil)

	res, err := h.ctrl.run(context.Background(), ActionStart)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(res.Output) != 10000 {
		t.Fatalf("captured %d bytes, want 10000", len(res.Output))
	}
	if strings.Trim(res.Output, "q") != "" {
		t.Error("captured output is not the exact byte stream")
	}
}

func TestController_RunsInWorkDir(t *testing.T) {
	t.Parallel()

	script := writeScript(t, t.TempDir(), "start.sh", "pwd")
	h := newHarness(t, staticSource{start: script}, nil)

	res, err := h.ctrl.run(context.Background(), ActionStart)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Output != "/\n" {
		t.Errorf("pwd output = %q, want %q", res.Output, "/\n")
	}
}

func TestController_CanceledContextIsIndeterminate(t *testing.T) {
	t.Parallel()

	script := writeScript(t, t.TempDir(), "start.sh", "exec sleep 2")
	h := newHarness(t, staticSource{start: script}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	res, err := h.ctrl.run(ctx, ActionStart)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Outcome != OutcomeIndeterminate {
		t.Errorf("outcome = %s, want %s", res.Outcome, OutcomeIndeterminate)
	}
	if !errors.Is(res.Err, process.ErrNotTerminated) {
		t.Errorf("Err = %v, want ErrNotTerminated", res.Err)
	}
	if calls := h.state.Calls(); len(calls) != 0 {
		t.Errorf("SetAlive called %v on canceled wait", calls)
	}
}

// TestController_PackageLoggerSwappedAfterConstruction does not run in
// parallel because it replaces the package-level logger.
func TestController_PackageLoggerSwappedAfterConstruction(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "start.sh", "exit 0")

	cfg := validControllerConfig()
	cfg.PrivilegeCheck = command.Always(true)
	cfg.JournalPath = filepath.Join(dir, "journal.db")
	ctrl := NewController(staticSource{start: script}, &recordingState{}, cfg)
	t.Cleanup(func() { _ = ctrl.Close() })

	logs := &syncBuffer{}
	SetLogger(slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { SetLogger(nil) })

	if err := ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	for _, want := range []string{"Starting storage process", "Storage process has been started", "opened lifecycle journal"} {
		if !strings.Contains(logs.String(), want) {
			t.Errorf("logs missing %q:\n%s", want, logs.String())
		}
	}
}

func TestController_StartOutputStreamStillOpen(t *testing.T) {
	t.Parallel()

	// The script exits 0 at once but leaves a background child holding
	// the inherited stdout.
	script := writeScript(t, t.TempDir(), "start.sh", "sleep 2 &\necho forked\nexit 0")
	h := newHarness(t, staticSource{start: script}, func(c *ControllerConfig) {
		c.OutputDrainTimeout = 200 * time.Millisecond
	})

	res, err := h.ctrl.run(context.Background(), ActionStart)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Outcome != OutcomeSucceeded {
		t.Errorf("outcome = %s, want %s", res.Outcome, OutcomeSucceeded)
	}
	if got := h.state.Calls(); !slices.Equal(got, []bool{true}) {
		t.Errorf("SetAlive calls = %v, want [true]", got)
	}
	if res.Output != "forked\n" {
		t.Errorf("output = %q, want %q", res.Output, "forked\n")
	}
	logs := h.logs.String()
	if !strings.Contains(logs, `level=WARN msg="Unable to read storage command output"`) {
		t.Errorf("logs missing read warning:\n%s", logs)
	}
	if !strings.Contains(logs, process.ErrStreamOpen.Error()) {
		t.Errorf("logs missing %q:\n%s", process.ErrStreamOpen.Error(), logs)
	}
}

func TestController_OutputDirKeepsDetachedCommandWriting(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	outDir := filepath.Join(dir, "output")
	marker := filepath.Join(dir, "marker")
	script := writeScript(t, dir, "start.sh",
		"echo serving\nsleep 0.5\necho still serving\necho alive > "+marker)
	h := newHarness(t, staticSource{start: script}, func(c *ControllerConfig) {
		c.GracePeriod = 100 * time.Millisecond
		c.OutputDir = outDir
	})

	res, err := h.ctrl.run(context.Background(), ActionStart)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Outcome != OutcomeIndeterminate {
		t.Fatalf("outcome = %s, want %s", res.Outcome, OutcomeIndeterminate)
	}
	if !strings.Contains(h.logs.String(), "output_file="+outDir) {
		t.Errorf("logs missing output_file:\n%s", h.logs.String())
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err := os.Stat(marker); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("detached command never finished")
		}
		time.Sleep(20 * time.Millisecond)
	}

	files, err := filepath.Glob(filepath.Join(outDir, "start.sh-*.log"))
	if err != nil || len(files) != 1 {
		t.Fatalf("output files = %v (%v), want exactly one", files, err)
	}
	data, err := os.ReadFile(files[0])
	if err != nil {
		t.Fatalf("read output file: %v", err)
	}
	if string(data) != "serving\nstill serving\n" {
		t.Errorf("output file = %q, want both lines", data)
	}
}

func TestController_LockHeld(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	lockPath := filepath.Join(dir, "enginectl.lock")
	marker := filepath.Join(dir, "ran")
	script := writeScript(t, dir, "start.sh", `touch "`+marker+`"`)

	held, err := lockfile.Acquire(context.Background(), lockPath, nil)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer held.Release()

	h := newHarness(t, staticSource{start: script}, func(c *ControllerConfig) {
		c.LockPath = lockPath
		c.LockTimeout = 100 * time.Millisecond
	})

	err = h.ctrl.Start(context.Background())
	if !errors.Is(err, ErrLockUnavailable) {
		t.Fatalf("Start error = %v, want ErrLockUnavailable", err)
	}
	if _, statErr := os.Stat(marker); !os.IsNotExist(statErr) {
		t.Errorf("command ran while lock was held (stat: %v)", statErr)
	}

	held.Release()
	if err := h.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start after release: %v", err)
	}
	if _, err := os.Stat(marker); err != nil {
		t.Errorf("command did not run after lock release: %v", err)
	}
}

func TestController_JournalAndMetrics(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	start := writeScript(t, dir, "start.sh", "echo up")
	stop := writeScript(t, dir, "stop.sh", "exit 3")
	reg := prometheus.NewPedanticRegistry()

	h := newHarness(t, staticSource{start: start, stop: stop}, func(c *ControllerConfig) {
		c.JournalPath = filepath.Join(dir, "journal.db")
		c.MetricsRegisterer = reg
	})
	ctx := context.Background()

	if err := h.ctrl.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := h.ctrl.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	entries, err := h.ctrl.Journal().Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("journal has %d entries, want 2", len(entries))
	}
	// Newest first.
	if entries[0].Action != "stop" || entries[0].Outcome != "failed" {
		t.Errorf("entries[0] = %s/%s, want stop/failed", entries[0].Action, entries[0].Outcome)
	}
	if entries[0].ExitCode == nil || *entries[0].ExitCode != 3 {
		t.Errorf("entries[0].ExitCode = %v, want 3", deref(entries[0].ExitCode))
	}
	if entries[1].Action != "start" || entries[1].Outcome != "succeeded" || entries[1].Output != "up\n" {
		t.Errorf("entries[1] = %+v, want succeeded start with output", entries[1])
	}

	n, err := testutil.GatherAndCount(reg, "enginectl_lifecycle_actions_total")
	if err != nil {
		t.Fatalf("GatherAndCount: %v", err)
	}
	if n != 2 {
		t.Errorf("actions_total series = %d, want 2", n)
	}
	// Start set the gauge; the failed stop left it untouched.
	const wantAlive = `
# HELP enginectl_storage_alive 1 if the storage engine is believed to be running, 0 otherwise.
# TYPE enginectl_storage_alive gauge
enginectl_storage_alive 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(wantAlive), "enginectl_storage_alive"); err != nil {
		t.Error(err)
	}
}

func TestController_ConcurrentCalls(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	start := writeScript(t, dir, "start.sh", "exit 0")
	stop := writeScript(t, dir, "stop.sh", "exit 0")
	h := newHarness(t, staticSource{start: start, stop: stop}, nil)

	var g errgroup.Group
	for i := range 8 {
		g.Go(func() error {
			if i%2 == 0 {
				return h.ctrl.Start(context.Background())
			}
			return h.ctrl.Stop(context.Background())
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent calls: %v", err)
	}
	if n := len(h.state.Calls()); n != 8 {
		t.Errorf("SetAlive called %d times, want 8", n)
	}
}

func TestNewController_Panics(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		source CommandSource
		state  LivenessState
		cfg    ControllerConfig
	}{
		"nil source":     {state: &Liveness{}, cfg: validControllerConfig()},
		"nil state":      {source: staticSource{}, cfg: validControllerConfig()},
		"invalid config": {source: staticSource{}, state: &Liveness{}},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			defer func() {
				if recover() == nil {
					t.Fatal("expected panic")
				}
			}()
			NewController(tc.source, tc.state, tc.cfg)
		})
	}
}

func ptr(v int) *int { return &v }

func equalCode(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func deref(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}
