package events

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSender collects events and can simulate a dead peer.
type recordingSender struct {
	mu     sync.Mutex
	events []Event
	fail   bool
}

func (s *recordingSender) Send(ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return assert.AnError
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *recordingSender) Dead() bool { return s.fail }

func (s *recordingSender) recorded() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func TestConnRegistryMembership(t *testing.T) {
	r := NewConnRegistry()
	a := &recordingSender{}
	b := &recordingSender{}

	r.Add(a)
	r.Add(b)
	assert.Equal(t, 2, r.Len())

	r.Remove(a)
	assert.Equal(t, 1, r.Len())

	// Removing twice is harmless.
	r.Remove(a)
	assert.Equal(t, 1, r.Len())
}

func TestBroadcastAndClear(t *testing.T) {
	r := NewConnRegistry()
	alive := &recordingSender{}
	dead := &recordingSender{fail: true}
	r.Add(alive)
	r.Add(dead)

	r.BroadcastAndClear(Shutdown("daemon stopping"))

	// The dead peer's write error is swallowed, the live peer got the
	// notice, and the registry is empty afterwards.
	events := alive.recorded()
	require.Len(t, events, 1)
	assert.Equal(t, TypeShutdown, events[0].Type)
	assert.Equal(t, "daemon stopping", events[0].Reason)
	assert.Equal(t, 0, r.Len())
}
