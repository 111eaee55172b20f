package process

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/giantswarm/enginectl/internal/fileutil"
	"github.com/giantswarm/enginectl/internal/sentinel"
)

// DefaultDir is the working directory used when Request.Dir is empty.
const DefaultDir = "/"

// ErrEmptyArgv is returned by Spawn when the request has no program.
const ErrEmptyArgv = sentinel.Error("argv must not be empty")

// Request describes one command execution.
type Request struct {
	// Argv is the program followed by its arguments. Argv[0] is resolved
	// through PATH when it contains no path separator.
	Argv []string
	// Dir is the working directory. Empty means DefaultDir.
	Dir string
	// Env is the child environment. Nil inherits the agent's environment.
	Env []string
	// OutputDir, when set, sends the merged output to a new file in this
	// directory instead of a pipe. The file stays writable after the caller
	// exits, so a command that outlives the caller never writes into a
	// pipe without a reader.
	OutputDir string
}

// Handle is a spawned command. It is owned by the goroutine that called
// Spawn; methods other than Pid must not be called concurrently.
type Handle struct {
	cmd        *exec.Cmd
	name       string
	group      errgroup.Group  // reaper, plus the pipe drain in pipe mode
	waitDone   <-chan error    // receives the single cmd.Wait result
	exited     <-chan struct{} // closed after waitDone has been written
	output     *capture        // nil in file mode
	outputPath string          // empty in pipe mode
	status     *Status         // set once an exit has been observed
	log        *slog.Logger
}

// Spawn starts req with stdout and stderr merged into a single pipe, or into
// a file when req.OutputDir is set.
//
// A pipe is drained from the moment the process starts, so a chatty child
// never blocks on a full pipe buffer while the caller is waiting. Exactly one
// goroutine calls cmd.Wait; it also reaps children the caller stops watching.
//
// An error from Spawn means no process was created.
func Spawn(req Request, logger *slog.Logger) (*Handle, error) {
	if len(req.Argv) == 0 {
		return nil, ErrEmptyArgv
	}
	if logger == nil {
		logger = slog.Default()
	}
	dir := req.Dir
	if dir == "" {
		dir = DefaultDir
	}
	name := filepath.Base(req.Argv[0])

	var r, w *os.File
	var err error
	if req.OutputDir != "" {
		w, err = createOutputFile(req.OutputDir, name)
	} else {
		r, w, err = os.Pipe()
	}
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(req.Argv[0], req.Argv[1:]...)
	cmd.Dir = dir
	cmd.Env = req.Env
	cmd.Stdout = w
	cmd.Stderr = w
	configureSysProcAttr(cmd)

	if err := cmd.Start(); err != nil {
		if r != nil {
			_ = r.Close()
		}
		_ = w.Close()
		if req.OutputDir != "" {
			_ = os.Remove(w.Name())
		}
		return nil, fmt.Errorf("start %s: %w", req.Argv[0], err)
	}

	// The child owns its copy of the write end now. Dropping ours lets a
	// pipe reader see EOF once every process holding the pipe has exited.
	if err := w.Close(); err != nil {
		logger.Debug("close parent copy of output", "error", err)
	}

	h := &Handle{
		cmd:  cmd,
		name: name,
		log:  logger,
	}

	// settled receives the group result once the reaper and, in pipe mode,
	// the drain have both returned.
	settled := make(chan error, 1)
	if r != nil {
		h.output = newCapture(settled)
	} else {
		h.outputPath = w.Name()
	}

	done := make(chan error, 1)
	exited := make(chan struct{})
	h.group.Go(func() error {
		done <- cmd.Wait()
		close(exited)
		return nil
	})
	if r != nil {
		h.group.Go(func() error {
			defer func() {
				if err := r.Close(); err != nil {
					logger.Debug("close output pipe", "error", err)
				}
			}()
			return copyStream(h.output, r)
		})
	}
	go func() {
		settled <- h.group.Wait()
	}()
	h.waitDone = done
	h.exited = exited

	logger.Debug("spawned command", "program", req.Argv[0], "pid", cmd.Process.Pid, "dir", dir, "output_file", h.outputPath)
	return h, nil
}

// createOutputFile creates a fresh output file for program in dir.
func createOutputFile(dir, program string) (*os.File, error) {
	if err := fileutil.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("prepare output directory: %w", err)
	}
	f, err := os.CreateTemp(dir, program+"-*.log")
	if err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}
	return f, nil
}

// Pid returns the operating system process id of the command.
func (h *Handle) Pid() int {
	return h.cmd.Process.Pid
}

// OutputPath returns the file receiving the command's output, or "" when
// output goes through a pipe.
func (h *Handle) OutputPath() string {
	return h.outputPath
}

// Exited returns a channel closed when the command has exited.
func (h *Handle) Exited() <-chan struct{} {
	return h.exited
}
