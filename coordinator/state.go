package coordinator

import "sync"

// State is the process-wide run state. Exactly three values; transitions
// go Idle→Running→Idle during normal operation, and any state can latch
// one-way into ShuttingDown.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateShuttingDown
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateShuttingDown:
		return "shutting_down"
	default:
		return "unknown"
	}
}

// RunState enforces the single-flight invariant and the shutdown latch.
// All mutation goes through transition methods; there is no raw field
// access, so the three-state invariant is held in one place.
type RunState struct {
	mu       sync.Mutex
	state    State
	peerGone bool
}

// NewRunState returns a state machine in Idle.
func NewRunState() *RunState {
	return &RunState{}
}

// TryBegin attempts the Idle→Running transition. It returns the state
// observed and whether the transition happened; when it did not, the
// caller uses the observed state to pick the rejection it reports.
func (r *RunState) TryBegin() (State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateIdle {
		return r.state, false
	}
	r.state = StateRunning
	r.peerGone = false
	return StateRunning, true
}

// Finish performs Running→Idle and clears the per-run peer flag. If a
// shutdown latched mid-run the state stays ShuttingDown.
func (r *RunState) Finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateRunning {
		r.state = StateIdle
	}
	r.peerGone = false
}

// BeginShutdown latches the terminal state. It reports true only for the
// first caller, so concurrent signals collapse to one handling.
func (r *RunState) BeginShutdown() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateShuttingDown {
		return false
	}
	r.state = StateShuttingDown
	return true
}

// Current returns the observed state.
func (r *RunState) Current() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Running reports whether a run is in flight.
func (r *RunState) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state == StateRunning
}

// MarkPeerGone records that the current run's client disconnected. The
// flag is scoped to the run; Finish clears it.
func (r *RunState) MarkPeerGone() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peerGone = true
}

// PeerGone reports the per-run disconnect flag.
func (r *RunState) PeerGone() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.peerGone
}
