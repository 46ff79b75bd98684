// Package coordinator owns the single-flight run state machine. It
// sequences one run end to end: resolve the effective name filter, reset
// the registry's transient state, configure the engine, intercept output,
// execute, clean up persisted test data, restore, and emit the terminal
// event. Concurrent run requests are rejected, never queued.
package coordinator

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/acarl005/stripansi"
	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-testd/events"
	"github.com/ethereum-optimism/infra/op-testd/metrics"
	"github.com/ethereum-optimism/infra/op-testd/registry"
	"github.com/ethereum-optimism/infra/op-testd/relay"
	"github.com/ethereum-optimism/infra/op-testd/runner"
	"github.com/ethereum-optimism/infra/op-testd/store"
)

// EnvSnapshotUpdate is set for the duration of a run requested with the
// snapshot-update flag. The prior value, including "unset", is restored
// afterwards on every exit path.
const EnvSnapshotUpdate = "OP_TESTD_UPDATE_SNAPSHOTS"

const defaultHeartbeatInterval = 10 * time.Second

// RunRequest describes one requested run. It lives from the incoming
// HTTP request until the run's terminal event is emitted.
type RunRequest struct {
	NamePattern    string
	FilePattern    string
	Invert         bool
	Reporter       runner.ReporterKind
	Bail           bool
	SnapshotUpdate bool
}

// Config wires the coordinator's collaborators.
type Config struct {
	Log               log.Logger
	Registry          *registry.Registry
	Runner            runner.TestRunner
	Cleaner           store.Cleaner
	HeartbeatInterval time.Duration
}

// Coordinator executes runs one at a time.
type Coordinator struct {
	cfg   Config
	log   log.Logger
	state *RunState
	conns *events.ConnRegistry
}

// New validates cfg and returns a coordinator sharing the given state and
// connection registry with the rest of the daemon.
func New(cfg Config, state *RunState, conns *events.ConnRegistry) (*Coordinator, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if cfg.Runner == nil {
		return nil, fmt.Errorf("test runner is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
	}
	if cfg.Cleaner == nil {
		cfg.Cleaner = store.NoopCleaner{}
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = defaultHeartbeatInterval
	}
	if state == nil {
		state = NewRunState()
	}
	if conns == nil {
		conns = events.NewConnRegistry()
	}
	return &Coordinator{cfg: cfg, log: cfg.Log, state: state, conns: conns}, nil
}

// State exposes the shared run state for health reporting and shutdown.
func (c *Coordinator) State() *RunState {
	return c.state
}

// Connections exposes the shared connection registry.
func (c *Coordinator) Connections() *events.ConnRegistry {
	return c.conns
}

// Execute runs one request to completion, streaming progress to conn,
// and returns the run's failure count. ctx bounds the engine's hard
// lifetime (the daemon's context, not the peer connection): a
// disconnecting peer only stops event emission, the run itself always
// completes and cleanup always executes.
func (c *Coordinator) Execute(ctx context.Context, req RunRequest, conn events.Sender) int {
	cur, ok := c.state.TryBegin()
	if !ok {
		switch cur {
		case StateShuttingDown:
			metrics.RecordRejectedRequest("shutting_down")
			c.send(conn, events.Shutdown("daemon is shutting down"))
		default:
			metrics.RecordRejectedRequest("busy")
			c.send(conn, events.Error("a test run is already in progress"))
		}
		return 0
	}

	c.conns.Add(conn)

	// Resolve the effective name filter before anything is mutated. A
	// file filter that selects nothing fails the run fast: the engine
	// is never invoked and the outcome is a completed run with one
	// failure, not a silent skip.
	var escapedTitles []string
	if req.FilePattern != "" {
		escapedTitles = c.cfg.Registry.SuitesForFile(req.FilePattern)
		if len(escapedTitles) == 0 {
			c.failFast(conn, fmt.Sprintf("no tests found for file %q", req.FilePattern))
			return 1
		}
	}
	filter, err := registry.NewFilter(req.NamePattern, escapedTitles)
	if err != nil {
		c.failFast(conn, fmt.Sprintf("invalid name filter: %v", err))
		return 1
	}

	reporter := req.Reporter
	if reporter == "" {
		reporter = runner.ReporterSpec
	}

	c.cfg.Runner.ResetTransientState()
	c.cfg.Runner.SetFilter(filter)
	c.cfg.Runner.SetInvert(req.Invert)
	c.cfg.Runner.SetBail(req.Bail)
	var reporterBuf bytes.Buffer
	c.cfg.Runner.SelectReporter(reporter, &reporterBuf)

	c.send(conn, events.Start(filter.Description(), req.Invert))

	out := relay.New(&eventSink{coord: c, conn: conn})
	if err := out.Install(); err != nil {
		c.log.Error("failed to install output relay", "err", err)
	}
	stopHeartbeat := c.startHeartbeat(conn)
	restoreEnv := scopedEnv(EnvSnapshotUpdate, req.SnapshotUpdate)

	started := time.Now()
	failures, runErr := c.cfg.Runner.Run(ctx)
	if runErr != nil {
		// The engine failed to deliver a count at all. One failure,
		// logged distinctly so it is not mistaken for an assertion
		// failure.
		failures = 1
		c.log.Error("test engine malfunction, reporting one failure", "err", runErr)
	}

	c.cleanup(ctx)

	out.Restore()
	restoreEnv()
	stopHeartbeat()

	peerGone := conn.Dead() || c.state.PeerGone()
	c.state.Finish()
	c.conns.Remove(conn)

	if peerGone {
		c.log.Info("peer disconnected mid-run, skipping terminal events",
			"failures", failures, "duration", time.Since(started))
	} else {
		if reporter == runner.ReporterJSON {
			payload := strings.TrimSpace(stripansi.Strip(reporterBuf.String()))
			c.send(conn, events.JSONPayload(payload))
		}
		c.send(conn, events.Done(failures))
	}

	result := "pass"
	if failures > 0 {
		result = "fail"
	}
	metrics.RecordRun(result, failures, time.Since(started))
	return failures
}

// failFast reports a filter-resolution failure as a completed run with
// one failure and returns the coordinator to Idle.
func (c *Coordinator) failFast(conn events.Sender, message string) {
	c.log.Warn("run rejected before execution", "reason", message)
	c.send(conn, events.Error(message))
	c.state.Finish()
	c.conns.Remove(conn)
	c.send(conn, events.Done(1))
	metrics.RecordRun("no_tests", 1, 0)
}

// send delivers one event, swallowing peer-gone errors; they flag the
// connection dead and never reach the run's control flow.
func (c *Coordinator) send(conn events.Sender, ev events.Event) {
	if conn.Dead() {
		return
	}
	if err := conn.Send(ev); err != nil {
		metrics.RecordStreamWriteError()
		c.state.MarkPeerGone()
		c.log.Debug("stream write failed", "type", string(ev.Type), "err", err)
		return
	}
	metrics.RecordEvent(string(ev.Type))
}

// startHeartbeat emits a heartbeat on a fixed interval until stopped. A
// failed heartbeat write stops the heartbeat for this connection but
// never aborts the run. The returned stop function waits for the
// goroutine to exit, so no heartbeat can land after the terminal event.
func (c *Coordinator) startHeartbeat(conn events.Sender) func() {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(c.cfg.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				// A tick racing the stop signal must not produce a
				// heartbeat once stop has been requested.
				select {
				case <-done:
					return
				default:
				}
				if conn.Dead() {
					return
				}
				if err := conn.Send(events.Heartbeat()); err != nil {
					metrics.RecordStreamWriteError()
					c.state.MarkPeerGone()
					return
				}
				metrics.RecordEvent(string(events.TypeHeartbeat))
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			wg.Wait()
		})
	}
}

// cleanup clears all persisted test data created during the run. Best
// effort: failures are logged and counted, never propagated to the run's
// reported result.
func (c *Coordinator) cleanup(ctx context.Context) {
	collections, err := c.cfg.Cleaner.ListCollections(ctx)
	if err != nil {
		metrics.RecordCleanupFailure()
		c.log.Error("listing collections for post-run cleanup failed", "err", err)
		return
	}
	for _, col := range collections {
		if strings.HasPrefix(col.Name, "system.") {
			continue
		}
		if err := c.cfg.Cleaner.DeleteEntries(ctx, col.Name); err != nil {
			metrics.RecordCleanupFailure()
			c.log.Error("post-run cleanup failed", "collection", col.Name, "err", err)
		}
	}
}

// scopedEnv applies the snapshot-update toggle and returns a restore
// function putting back the exact prior value, including "unset".
func scopedEnv(key string, set bool) func() {
	if !set {
		return func() {}
	}
	prev, had := os.LookupEnv(key)
	os.Setenv(key, "1")
	return func() {
		if had {
			os.Setenv(key, prev)
		} else {
			os.Unsetenv(key)
		}
	}
}

// eventSink adapts the coordinator's send path to the relay's Sink.
type eventSink struct {
	coord *Coordinator
	conn  events.Sender
}

func (s *eventSink) Line(stream, line string) {
	s.coord.send(s.conn, events.LogLine(stream, line))
}
