package runner

import (
	"encoding/json"
	"strings"
	"time"
)

// Go test2json (TestEvent) action constants.
// See https://cs.opensource.google/go/go/+/master:src/cmd/test2json/main.go
const (
	ActionRun    = "run"
	ActionPass   = "pass"
	ActionFail   = "fail"
	ActionSkip   = "skip"
	ActionOutput = "output"
)

// TestEvent represents a single event from go test -json output.
type TestEvent struct {
	Time    time.Time // Time the event occurred
	Action  string    // The action taken (run, pause, cont, pass, fail, skip, output)
	Package string    // The package being tested
	Test    string    // The test function name (may be empty for package events)
	Output  string    // Output text (may be empty)
	Elapsed float64   // Elapsed time in seconds for the specific action
}

func parseTestEvent(line []byte) (TestEvent, error) {
	var event TestEvent
	err := json.Unmarshal(line, &event)
	return event, err
}

// isTopLevel reports whether the event names a top-level test rather than
// a subtest.
func isTopLevel(testName string) bool {
	return testName != "" && !strings.Contains(testName, "/")
}
