package process

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/giantswarm/enginectl/internal/sentinel"
)

// readBufferSize is the size of the fixed buffer used for each read from a
// command's output stream.
const readBufferSize = 512

// ErrStreamOpen is returned by Handle.Output when the output pipe did not
// reach EOF in time. This happens when a daemonizing command leaves a
// background child holding the inherited stdout.
const ErrStreamOpen = sentinel.Error("output stream still open")

// ReadStream reads r to EOF and returns everything read as text. On a read
// error the bytes read so far are returned together with the error.
func ReadStream(r io.Reader) (string, error) {
	var buf bytes.Buffer
	err := copyStream(&buf, r)
	return buf.String(), err
}

// copyStream copies src to dst through a readBufferSize buffer until EOF.
func copyStream(dst io.Writer, src io.Reader) error {
	buf := make([]byte, readBufferSize)
	for {
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return fmt.Errorf("buffer output: %w", werr)
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// capture buffers a command's merged output pipe as the Handle's drain
// goroutine copies it in.
//
// done receives the Handle's errgroup result, which settles only after both
// the reaper and the drain have returned. The drain closes the read end at
// EOF or on a read error, so the descriptor is released as soon as the last
// writer is gone, whether or not anyone collects the output.
type capture struct {
	done <-chan error

	mu       sync.Mutex
	buf      bytes.Buffer
	detached bool
	finished bool
	readErr  error
}

func newCapture(done <-chan error) *capture {
	return &capture{done: done}
}

// Write implements io.Writer for the drain goroutine. After detach the data
// is discarded.
func (c *capture) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.detached {
		return len(p), nil
	}
	return c.buf.Write(p)
}

// collect waits up to timeout for the drain to finish and returns the
// captured text. If the stream is still open after timeout, the partial text
// is returned with ErrStreamOpen and the capture is detached.
func (c *capture) collect(timeout time.Duration) (string, error) {
	c.mu.Lock()
	finished, readErr := c.finished, c.readErr
	c.mu.Unlock()

	if !finished {
		ok, err := drainDone(c.done, timeout)
		if !ok {
			out := c.snapshot()
			c.detach()
			return out, fmt.Errorf("after %s: %w", timeout, ErrStreamOpen)
		}
		c.mu.Lock()
		c.finished, c.readErr = true, err
		c.mu.Unlock()
		readErr = err
	}

	out := c.snapshot()
	if readErr != nil {
		return out, fmt.Errorf("read output stream: %w", readErr)
	}
	return out, nil
}

func (c *capture) snapshot() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.String()
}

// detach drops buffered output and makes the drain discard whatever else
// arrives. The drain keeps running until EOF so the child never blocks.
func (c *capture) detach() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.detached = true
	c.buf.Reset()
}

// Output returns everything the command wrote to stdout and stderr. Call it
// only after WaitExit reported an exit.
//
// In pipe mode it waits up to timeout for the reaper and the pipe drain to
// finish, which normally happens right after the command exits. In file mode
// it reads the output file and removes it.
//
// A non-nil error never discards output: the text read so far is returned
// alongside ErrStreamOpen or the underlying read error.
func (h *Handle) Output(timeout time.Duration) (string, error) {
	if h.outputPath == "" {
		return h.output.collect(timeout)
	}
	return h.readOutputFile()
}

func (h *Handle) readOutputFile() (string, error) {
	f, err := os.Open(h.outputPath)
	if err != nil {
		return "", fmt.Errorf("open output file: %w", err)
	}
	out, readErr := ReadStream(f)
	if err := f.Close(); err != nil {
		h.log.Debug("close output file", "path", h.outputPath, "error", err)
	}
	if readErr != nil {
		return out, fmt.Errorf("read output file: %w", readErr)
	}
	if err := os.Remove(h.outputPath); err != nil {
		h.log.Debug("remove output file", "path", h.outputPath, "error", err)
	}
	return out, nil
}

// Detach abandons the command's output without waiting. Use it when the
// command is still running. A pipe keeps being drained to nowhere and is
// closed once the command (and anything it forked) exits. An output file is
// left in place for the command to keep writing to.
func (h *Handle) Detach() {
	if h.outputPath != "" {
		return
	}
	h.output.detach()
}
