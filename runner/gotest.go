package runner

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/acarl005/stripansi"
	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"

	"github.com/ethereum-optimism/infra/op-testd/registry"
)

// Config holds configuration for the go test backed runner.
type Config struct {
	Log      log.Logger
	Registry *registry.Registry
	WorkDir  string // directory the test command runs in
	GoBinary string // path to the Go binary
	Package  string // package pattern passed to go test
}

// GoTestRunner implements TestRunner by mapping leaf suite titles to Go
// test functions and shelling out to go test. Suite selection (filter and
// inversion) is evaluated in-process against the registry's
// fully-qualified titles; go test only ever receives the literal names of
// the selected tests.
type GoTestRunner struct {
	cfg Config
	log log.Logger

	mu          sync.Mutex
	filter      *registry.Filter
	invert      bool
	bail        bool
	reporter    ReporterKind
	reporterOut io.Writer
}

// NewGoTestRunner validates cfg and returns a runner.
func NewGoTestRunner(cfg Config) (*GoTestRunner, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
	}
	if cfg.GoBinary == "" {
		cfg.GoBinary = "go"
	}
	if cfg.Package == "" {
		cfg.Package = "./..."
	}
	return &GoTestRunner{
		cfg:      cfg,
		log:      cfg.Log,
		reporter: ReporterSpec,
	}, nil
}

func (r *GoTestRunner) SetFilter(f *registry.Filter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.filter = f
}

func (r *GoTestRunner) SetInvert(invert bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invert = invert
}

func (r *GoTestRunner) SetBail(bail bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bail = bail
}

func (r *GoTestRunner) SelectReporter(kind ReporterKind, output io.Writer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reporter = kind
	r.reporterOut = output
}

func (r *GoTestRunner) ResetTransientState() {
	r.cfg.Registry.ResetTransientState()
}

// selectedTests returns the leaf names of every suite whose
// fully-qualified title satisfies the filter, with inversion applied.
// The result is deduplicated and ordered.
func (r *GoTestRunner) selectedTests(filter *registry.Filter, invert bool) []string {
	seen := make(map[string]bool)
	var names []string
	for _, qualified := range r.cfg.Registry.QualifiedTitles() {
		if filter.Matches(qualified) == invert {
			continue
		}
		leaf := registry.LeafName(qualified)
		if !seen[leaf] {
			seen[leaf] = true
			names = append(names, leaf)
		}
	}
	sort.Strings(names)
	return names
}

// Run executes the selected tests and returns the failure count. Test
// output is written to os.Stdout (intercepted by the relay during a run)
// unless the json reporter is selected, in which case a consolidated
// report goes to the reporter output instead.
func (r *GoTestRunner) Run(ctx context.Context) (int, error) {
	r.mu.Lock()
	filter := r.filter
	invert := r.invert
	bail := r.bail
	reporter := r.reporter
	reporterOut := r.reporterOut
	r.mu.Unlock()

	runID := uuid.New().String()
	selected := r.selectedTests(filter, invert)
	r.log.Info("starting test run", "run_id", runID, "selected", len(selected), "invert", invert, "bail", bail)

	if len(selected) == 0 {
		r.log.Warn("no tests selected by filter", "run_id", runID)
		if reporter == ReporterJSON && reporterOut != nil {
			return 0, writeReport(reporterOut, newReport(runID, nil))
		}
		return 0, nil
	}

	cmd := exec.CommandContext(ctx, r.cfg.GoBinary, r.buildTestArgs(selected, bail)...)
	cmd.Dir = r.cfg.WorkDir
	cmd.Env = os.Environ()

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return 0, fmt.Errorf("creating stdout pipe: %w", err)
	}
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("starting %s: %w", r.cfg.GoBinary, err)
	}

	collector := newCollector(runID, reporter == ReporterJSON)
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		event, perr := parseTestEvent(line)
		if perr != nil {
			// Non-JSON lines (vet failures, build output) pass through.
			collector.sawOutput = true
			if reporter != ReporterJSON {
				fmt.Fprintln(os.Stdout, string(line))
			}
			continue
		}
		collector.observe(event)
		if reporter != ReporterJSON && event.Action == ActionOutput {
			fmt.Fprint(os.Stdout, event.Output)
		}
	}
	scanErr := scanner.Err()
	waitErr := cmd.Wait()

	if scanErr != nil {
		return 0, fmt.Errorf("reading test output: %w", scanErr)
	}

	failures := collector.failureCount()
	if waitErr != nil && !collector.sawEvents {
		// The command died without producing test events; that is a
		// tooling malfunction, not a test failure.
		return 0, fmt.Errorf("%s test produced no results: %w", r.cfg.GoBinary, waitErr)
	}

	if reporter == ReporterJSON && reporterOut != nil {
		if err := writeReport(reporterOut, collector.report()); err != nil {
			return failures, fmt.Errorf("writing json report: %w", err)
		}
	} else {
		writeSummaryTable(os.Stdout, collector.report())
	}

	r.log.Info("test run complete", "run_id", runID, "failures", failures)
	return failures, nil
}

func (r *GoTestRunner) buildTestArgs(selected []string, bail bool) []string {
	quoted := make([]string, len(selected))
	for i, name := range selected {
		quoted[i] = regexp.QuoteMeta(name)
	}
	args := []string{
		"test",
		r.cfg.Package,
		"-json",
		"-count=1",
		"-run", "^(" + strings.Join(quoted, "|") + ")$",
	}
	if bail {
		args = append(args, "-failfast")
	}
	return args
}

// collector aggregates test2json events into per-test results.
type collector struct {
	runID       string
	keepOutput  bool
	sawEvents   bool
	sawOutput   bool
	tests       map[string]*reportTest
	order       []string
	packageFail bool
}

func newCollector(runID string, keepOutput bool) *collector {
	return &collector{
		runID:      runID,
		keepOutput: keepOutput,
		tests:      make(map[string]*reportTest),
	}
}

func (c *collector) observe(event TestEvent) {
	c.sawEvents = true

	if event.Test == "" {
		if event.Action == ActionFail {
			c.packageFail = true
		}
		return
	}
	if !isTopLevel(event.Test) {
		return
	}

	t, ok := c.tests[event.Test]
	if !ok {
		t = &reportTest{Title: event.Test}
		c.tests[event.Test] = t
		c.order = append(c.order, event.Test)
	}

	switch event.Action {
	case ActionPass, ActionFail, ActionSkip:
		t.Status = event.Action
		t.Duration = event.Elapsed
	case ActionOutput:
		if c.keepOutput {
			t.Output += stripansi.Strip(event.Output)
		}
	}
}

// failureCount is the number of failed top-level tests; a package-level
// failure with no attributable test counts as one.
func (c *collector) failureCount() int {
	failures := 0
	for _, t := range c.tests {
		if t.Status == ActionFail {
			failures++
		}
	}
	if failures == 0 && c.packageFail {
		failures = 1
	}
	return failures
}

func (c *collector) report() report {
	rep := newReport(c.runID, nil)
	for _, name := range c.order {
		t := *c.tests[name]
		rep.Tests = append(rep.Tests, t)
		rep.Stats.Tests++
		switch t.Status {
		case ActionPass:
			rep.Stats.Passes++
		case ActionFail:
			rep.Stats.Failures++
			rep.Failures = append(rep.Failures, t)
		case ActionSkip:
			rep.Stats.Skipped++
		}
		rep.Stats.Duration += t.Duration
	}
	if rep.Stats.Failures == 0 && c.packageFail {
		rep.Stats.Failures = 1
	}
	return rep
}

// report is the consolidated machine-readable run summary.
type report struct {
	RunID    string       `json:"runId"`
	Stats    reportStats  `json:"stats"`
	Tests    []reportTest `json:"tests"`
	Failures []reportTest `json:"failures"`
}

type reportStats struct {
	Tests    int     `json:"tests"`
	Passes   int     `json:"passes"`
	Failures int     `json:"failures"`
	Skipped  int     `json:"skipped"`
	Duration float64 `json:"duration"`
}

type reportTest struct {
	Title    string  `json:"title"`
	Status   string  `json:"status"`
	Duration float64 `json:"duration"`
	Output   string  `json:"output,omitempty"`
}

func newReport(runID string, tests []reportTest) report {
	return report{RunID: runID, Tests: tests, Failures: []reportTest{}}
}

func writeReport(w io.Writer, rep report) error {
	if rep.Tests == nil {
		rep.Tests = []reportTest{}
	}
	return json.NewEncoder(w).Encode(rep)
}
