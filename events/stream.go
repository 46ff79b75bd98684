package events

import (
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
)

// Sender is one outbound event channel for a run.
type Sender interface {
	// Send delivers one event. Implementations swallow nothing: a write
	// failure is returned so the caller can decide whether to keep
	// trying, but senders mark themselves dead after the first failure.
	Send(ev Event) error
	// Dead reports whether the peer is known to be gone.
	Dead() bool
}

// Stream is an SSE connection to one run client.
type Stream struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	dead    atomic.Bool
}

// NewStream prepares w for server-sent events and flushes the headers.
// It fails when the underlying writer cannot flush, since an unflushable
// stream would buffer events until the run ends.
func NewStream(w http.ResponseWriter) (*Stream, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support flushing")
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &Stream{w: w, flusher: flusher}, nil
}

// Send writes one event frame and flushes it to the peer.
func (s *Stream) Send(ev Event) error {
	if s.dead.Load() {
		return fmt.Errorf("stream peer is gone")
	}

	data, err := ev.Encode()
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		s.dead.Store(true)
		return fmt.Errorf("writing event: %w", err)
	}
	s.flusher.Flush()
	return nil
}

// Dead reports whether a previous write to the peer failed.
func (s *Stream) Dead() bool {
	return s.dead.Load()
}

// MarkDead records that the peer disconnected without waiting for a
// failed write, e.g. when the request context is canceled.
func (s *Stream) MarkDead() {
	s.dead.Store(true)
}

// WriterSender emits events as one JSON document per line. It backs the
// one-shot CLI mode where there is no HTTP peer.
type WriterSender struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterSender returns a Sender writing to w.
func NewWriterSender(w io.Writer) *WriterSender {
	return &WriterSender{w: w}
}

// Send writes the event as a single JSON line.
func (s *WriterSender) Send(ev Event) error {
	data, err := ev.Encode()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = fmt.Fprintf(s.w, "%s\n", data)
	return err
}

// Dead always reports false; a local writer has no peer to lose.
func (s *WriterSender) Dead() bool {
	return false
}
