// Package relay intercepts process output for the duration of a run and
// forwards each write as a discrete event, without dropping the original
// write. Interception is a scoped install/restore pair; restoration puts
// back the exact original handles so nothing leaks into the next run.
package relay

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/log"
)

// Stream identifiers attached to forwarded lines.
const (
	StreamStdout = "stdout"
	StreamStderr = "stderr"
	StreamLog    = "log"
)

// Sink receives every intercepted line. Implementations must be safe for
// concurrent use; stdout, stderr and the logger forward independently.
type Sink interface {
	Line(stream, line string)
}

// Relay owns one interception of os.Stdout, os.Stderr and the root
// logger. A Relay can be installed at most once at a time.
type Relay struct {
	sink Sink

	mu          sync.Mutex
	installed   bool
	origStdout  *os.File
	origStderr  *os.File
	stdoutPipeW *os.File
	stderrPipeW *os.File
	prevHandler slog.Handler
	wg          sync.WaitGroup
}

// New returns a Relay forwarding to sink.
func New(sink Sink) *Relay {
	return &Relay{sink: sink}
}

// Install swaps os.Stdout and os.Stderr for pipes and tees the root log
// handler. Every write is copied verbatim to the original handle and
// forwarded to the sink with one trailing newline stripped; embedded
// newlines stay inside the single event.
func (r *Relay) Install() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.installed {
		return fmt.Errorf("output relay already installed")
	}

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		stdoutR.Close()
		stdoutW.Close()
		return fmt.Errorf("creating stderr pipe: %w", err)
	}

	r.origStdout = os.Stdout
	r.origStderr = os.Stderr
	r.stdoutPipeW = stdoutW
	r.stderrPipeW = stderrW
	os.Stdout = stdoutW
	os.Stderr = stderrW

	r.wg.Add(2)
	go r.pump(stdoutR, r.origStdout, StreamStdout)
	go r.pump(stderrR, r.origStderr, StreamStderr)

	// The previous handler holds the real output handle it was created
	// with, so log records keep reaching the terminal directly and are
	// not captured a second time through the stdout pipe.
	prev := log.Root().Handler()
	r.prevHandler = prev
	log.SetDefault(log.NewLogger(&teeHandler{next: prev, sink: r.sink}))

	r.installed = true
	return nil
}

// pump copies write-sized chunks from the pipe to the original handle and
// forwards each chunk as one event.
func (r *Relay) pump(src, dst *os.File, stream string) {
	defer r.wg.Done()
	defer src.Close()

	buf := make([]byte, 64*1024)
	for {
		n, err := src.Read(buf)
		if n > 0 {
			chunk := string(buf[:n])
			// If the original handle is gone we still forward events.
			_, _ = dst.WriteString(chunk)
			r.sink.Line(stream, strings.TrimSuffix(chunk, "\n"))
		}
		if err != nil {
			return
		}
	}
}

// Restore puts back the exact original stdout/stderr handles and log
// handler, then drains the pipes. Restore on an uninstalled Relay is a
// no-op, so it is safe on every exit path.
func (r *Relay) Restore() {
	r.mu.Lock()
	if !r.installed {
		r.mu.Unlock()
		return
	}

	os.Stdout = r.origStdout
	os.Stderr = r.origStderr
	log.SetDefault(log.NewLogger(r.prevHandler))

	stdoutW, stderrW := r.stdoutPipeW, r.stderrPipeW
	r.installed = false
	r.stdoutPipeW = nil
	r.stderrPipeW = nil
	r.mu.Unlock()

	// Closing the write ends lets the pumps hit EOF after forwarding
	// whatever is still buffered.
	stdoutW.Close()
	stderrW.Close()
	r.wg.Wait()
}

// teeHandler forwards every record to the sink as a formatted line before
// handing it to the real handler.
type teeHandler struct {
	next slog.Handler
	sink Sink
}

func (h *teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *teeHandler) Handle(ctx context.Context, rec slog.Record) error {
	var b strings.Builder
	b.WriteString(rec.Message)
	rec.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(&b, " %s=%v", a.Key, a.Value.Any())
		return true
	})
	h.sink.Line(StreamLog, b.String())
	return h.next.Handle(ctx, rec)
}

func (h *teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &teeHandler{next: h.next.WithAttrs(attrs), sink: h.sink}
}

func (h *teeHandler) WithGroup(name string) slog.Handler {
	return &teeHandler{next: h.next.WithGroup(name), sink: h.sink}
}
