package runner

import (
	"encoding/json"
	"strings"
	"time"
)

// Go test2json (TestEvent) action constants
const (
	ActionStart  = "start"
	ActionRun    = "run"
	ActionPause  = "pause"
	ActionCont   = "cont"
	ActionPass   = "pass"
	ActionFail   = "fail"
	ActionSkip   = "skip"
	ActionBench  = "bench"
	ActionOutput = "output"
)

// TestEvent represents a single event from the test2json stream
type TestEvent struct {
	Time    time.Time // encodes as an RFC3339-format string
	Action  string    // The action taken (run, pause, cont, pass, fail, skip, output)
	Package string    // The package being tested
	Test    string    // The test name, empty for package-level events
	Elapsed float64   // seconds
	Output  string
}

func parseTestEvent(line []byte) (TestEvent, error) {
	var event TestEvent
	if err := json.Unmarshal(line, &event); err != nil {
		return event, err
	}
	return event, nil
}

// topLevelName returns the top-level test function of a (sub)test name
func topLevelName(test string) string {
	if i := strings.IndexByte(test, '/'); i >= 0 {
		return test[:i]
	}
	return test
}

func isSubTest(test string) bool {
	return strings.Contains(test, "/")
}

func isTerminalAction(action string) bool {
	return action == ActionPass || action == ActionFail || action == ActionSkip
}

// panicMarkers identify output lines produced by a test that crashed rather than failed
var panicMarkers = []string{
	"panic: ",
	"[recovered]",
	"fatal error: ",
}

func containsPanicMarker(output string) bool {
	for _, marker := range panicMarkers {
		if strings.Contains(output, marker) {
			return true
		}
	}
	return false
}
