package events

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamSend(t *testing.T) {
	rec := httptest.NewRecorder()
	s, err := NewStream(rec)
	require.NoError(t, err)

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))

	require.NoError(t, s.Send(Start("all suites", false)))
	require.NoError(t, s.Send(Done(0)))

	body := rec.Body.String()
	frames := strings.Split(strings.TrimSuffix(body, "\n\n"), "\n\n")
	require.Len(t, frames, 2)
	assert.True(t, strings.HasPrefix(frames[0], "data: "))
	assert.Contains(t, frames[0], `"type":"start"`)
	assert.Contains(t, frames[1], `"type":"done"`)
}

// unflushableWriter can't stream; NewStream must refuse it.
type unflushableWriter struct {
	h http.Header
}

func (w *unflushableWriter) Header() http.Header         { return w.h }
func (w *unflushableWriter) Write(p []byte) (int, error) { return len(p), nil }
func (w *unflushableWriter) WriteHeader(int)             {}

func TestNewStreamRequiresFlusher(t *testing.T) {
	_, err := NewStream(&unflushableWriter{h: make(http.Header)})
	require.Error(t, err)
}

// failingWriter fails every write after headers were sent.
type failingWriter struct {
	h http.Header
}

func (w *failingWriter) Header() http.Header         { return w.h }
func (w *failingWriter) Write(p []byte) (int, error) { return 0, assert.AnError }
func (w *failingWriter) WriteHeader(int)             {}
func (w *failingWriter) Flush()                      {}

func TestStreamMarksDeadOnWriteFailure(t *testing.T) {
	s, err := NewStream(&failingWriter{h: make(http.Header)})
	require.NoError(t, err)

	require.Error(t, s.Send(Heartbeat()))
	assert.True(t, s.Dead())

	// Subsequent sends fail fast without touching the writer.
	require.Error(t, s.Send(Heartbeat()))
}

func TestStreamMarkDead(t *testing.T) {
	rec := httptest.NewRecorder()
	s, err := NewStream(rec)
	require.NoError(t, err)

	s.MarkDead()
	assert.True(t, s.Dead())
	require.Error(t, s.Send(Heartbeat()))
}

func TestWriterSender(t *testing.T) {
	var buf bytes.Buffer
	s := NewWriterSender(&buf)

	require.NoError(t, s.Send(Start("all suites", false)))
	require.NoError(t, s.Send(Done(2)))
	assert.False(t, s.Dead())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"type":"start"`)
	assert.Contains(t, lines[1], `"failures":2`)
}
