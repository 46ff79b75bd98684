package events

import "sync"

// ConnRegistry tracks all open streaming connections. Membership only: a
// connection is added when its headers are sent and removed when its run's
// terminal event has gone out or the connection is otherwise closed. The
// shutdown coordinator uses the registry for the one broadcast it makes.
type ConnRegistry struct {
	mu    sync.Mutex
	conns map[Sender]struct{}
}

// NewConnRegistry returns an empty registry.
func NewConnRegistry() *ConnRegistry {
	return &ConnRegistry{conns: make(map[Sender]struct{})}
}

// Add registers a live connection.
func (r *ConnRegistry) Add(s Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[s] = struct{}{}
}

// Remove deregisters a connection. Removing an absent connection is a
// no-op.
func (r *ConnRegistry) Remove(s Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, s)
}

// Len returns the number of live connections.
func (r *ConnRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// BroadcastAndClear best-effort sends ev to a snapshot of the current
// connections, swallowing write errors from already-dead peers, then
// empties the registry. Used exactly once, at shutdown.
func (r *ConnRegistry) BroadcastAndClear(ev Event) {
	r.mu.Lock()
	snapshot := make([]Sender, 0, len(r.conns))
	for s := range r.conns {
		snapshot = append(snapshot, s)
	}
	r.conns = make(map[Sender]struct{})
	r.mu.Unlock()

	for _, s := range snapshot {
		_ = s.Send(ev)
	}
}
