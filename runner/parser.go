package runner

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/acarl005/stripansi"

	"github.com/paraita/dspot/types"
)

// EventParser turns the test2json stream of one class into outcomes, one per
// top-level test function. It is fed line by line while the binary runs, so
// outcomes reach the sink in the order the tests finish.
type EventParser struct {
	class string

	tests map[string]*testState
	order []string // top-level tests in the order they started

	// a failed test is held back until the next unrelated event, since the
	// panic trace of a crashing test is printed after its fail event
	pending *pendingOutcome

	packageOutput *tailBuffer
	packageDone   bool
	blamed        int // failed or errored outcomes emitted so far
	emitted       int
}

type testState struct {
	start       time.Time
	output      *tailBuffer
	subOutput   map[string]*tailBuffer
	subFailures []error
	panicked    bool
	done        bool
}

type pendingOutcome struct {
	outcome types.ExecutionOutcome
	state   *testState
}

// NewEventParser creates a parser for the events of one class
func NewEventParser(class string) *EventParser {
	return &EventParser{
		class:         class,
		tests:         make(map[string]*testState),
		packageOutput: newTailBuffer(defaultOutputTailBytes),
	}
}

// Handle consumes one event and returns the outcomes it completes
func (p *EventParser) Handle(event TestEvent) []types.ExecutionOutcome {
	var out []types.ExecutionOutcome
	if p.pending != nil {
		if event.Action == ActionOutput && (event.Test == "" || topLevelName(event.Test) == p.pending.outcome.Method) {
			p.absorbTrailingOutput(event)
			return nil
		}
		out = append(out, p.flushPending())
	}

	switch {
	case event.Test == "":
		p.processPackageEvent(event)
	case isSubTest(event.Test):
		p.processSubTestEvent(event)
	default:
		if o := p.processTestEvent(event); o != nil {
			out = append(out, *o)
		}
	}
	return out
}

// Finish is called once the process exited. It flushes the held back outcome
// and blames runErr on the tests that never reported a result. When the
// process failed without any test taking the blame, the class itself gets an
// errored outcome.
func (p *EventParser) Finish(runErr error, stderr string) []types.ExecutionOutcome {
	var out []types.ExecutionOutcome
	if p.pending != nil {
		out = append(out, p.flushPending())
	}

	for _, name := range p.order {
		st := p.tests[name]
		if st.done {
			continue
		}
		st.done = true
		output := st.output.Text()
		cause := runErr
		if cause == nil {
			cause = errors.New("test binary exited before the test finished")
		}
		out = append(out, p.emit(types.ExecutionOutcome{
			ID:       types.OutcomeID(p.class, name),
			Class:    p.class,
			Method:   name,
			Status:   types.OutcomeErrored,
			Output:   output,
			Failure: &types.FailureDetail{
				Message: "test did not report a result",
				Cause:   errors.Join(append(st.subFailures, cause)...),
			},
		}))
	}

	if runErr != nil && p.blamed == 0 {
		output := strings.TrimSpace(p.packageOutput.Text() + "\n" + stripansi.Strip(stderr))
		out = append(out, p.emit(types.ExecutionOutcome{
			ID:     types.OutcomeID(p.class, ""),
			Class:  p.class,
			Status: types.OutcomeErrored,
			Output: output,
			Failure: &types.FailureDetail{
				Message: classFailureMessage(runErr, output),
				Cause:   runErr,
			},
		}))
	}
	return out
}

// Flush releases the held back failure, if any. It is used when no further
// event can arrive in time to upgrade it, such as when the budget expires
// while the binary is still running.
func (p *EventParser) Flush() []types.ExecutionOutcome {
	if p.pending == nil {
		return nil
	}
	return []types.ExecutionOutcome{p.flushPending()}
}

// Emitted returns the number of outcomes produced so far
func (p *EventParser) Emitted() int {
	return p.emitted
}

func (p *EventParser) emit(o types.ExecutionOutcome) types.ExecutionOutcome {
	p.emitted++
	if o.Status.IsFailure() {
		p.blamed++
	}
	return o
}

func (p *EventParser) state(name string, at time.Time) *testState {
	st, ok := p.tests[name]
	if !ok {
		st = &testState{
			start:     at,
			output:    newTailBuffer(defaultOutputTailBytes),
			subOutput: make(map[string]*tailBuffer),
		}
		p.tests[name] = st
		p.order = append(p.order, name)
	}
	return st
}

func (p *EventParser) processPackageEvent(event TestEvent) {
	switch event.Action {
	case ActionOutput:
		_, _ = p.packageOutput.WriteString(stripansi.Strip(event.Output))
	case ActionPass, ActionFail, ActionSkip:
		p.packageDone = true
	}
}

func (p *EventParser) processTestEvent(event TestEvent) *types.ExecutionOutcome {
	st := p.state(event.Test, event.Time)
	if st.done {
		return nil
	}

	switch {
	case event.Action == ActionStart || event.Action == ActionRun:
		if !event.Time.IsZero() {
			st.start = event.Time
		}
	case event.Action == ActionOutput:
		p.appendOutput(st, event.Output)
	case isTerminalAction(event.Action):
		st.done = true
		o := p.buildOutcome(event, st)
		if o.Status.IsFailure() {
			p.pending = &pendingOutcome{outcome: o, state: st}
			return nil
		}
		o = p.emit(o)
		return &o
	}
	return nil
}

func (p *EventParser) processSubTestEvent(event TestEvent) {
	st := p.state(topLevelName(event.Test), event.Time)
	sub, ok := st.subOutput[event.Test]
	if !ok {
		sub = newTailBuffer(defaultOutputTailBytes)
		st.subOutput[event.Test] = sub
	}

	switch event.Action {
	case ActionOutput:
		p.appendOutput(st, event.Output)
		_, _ = sub.WriteString(stripansi.Strip(event.Output))
	case ActionFail:
		st.subFailures = append(st.subFailures, &types.FailureDetail{
			Message: fmt.Sprintf("subtest %s failed", event.Test),
			Cause:   messageError(keyMessage(sub.String())),
		})
	}
}

func (p *EventParser) appendOutput(st *testState, output string) {
	output = stripansi.Strip(output)
	_, _ = st.output.WriteString(output)
	if containsPanicMarker(output) {
		st.panicked = true
	}
}

func (p *EventParser) absorbTrailingOutput(event TestEvent) {
	output := stripansi.Strip(event.Output)
	if event.Test == "" {
		_, _ = p.packageOutput.WriteString(output)
	}
	p.appendOutput(p.pending.state, output)
}

func (p *EventParser) flushPending() types.ExecutionOutcome {
	pending := p.pending
	p.pending = nil

	o := pending.outcome
	o.Output = pending.state.output.Text()
	if pending.state.panicked {
		o.Status = types.OutcomeErrored
	}
	o.Failure.Message = keyMessage(o.Output)
	return p.emit(o)
}

func (p *EventParser) buildOutcome(event TestEvent, st *testState) types.ExecutionOutcome {
	o := types.ExecutionOutcome{
		ID:       types.OutcomeID(p.class, event.Test),
		Class:    p.class,
		Method:   event.Test,
		Duration: testDuration(st.start, event),
	}
	switch event.Action {
	case ActionPass:
		o.Status = types.OutcomePassed
	case ActionSkip:
		o.Status = types.OutcomeSkipped
	case ActionFail:
		o.Status = types.OutcomeFailed
		if st.panicked {
			o.Status = types.OutcomeErrored
		}
		o.Output = st.output.Text()
		o.Failure = &types.FailureDetail{
			Message: keyMessage(o.Output),
			Cause:   errors.Join(st.subFailures...),
		}
	}
	return o
}

func testDuration(start time.Time, end TestEvent) time.Duration {
	if end.Elapsed > 0 {
		return time.Duration(end.Elapsed * float64(time.Second))
	}
	if start.IsZero() || end.Time.IsZero() {
		return 0
	}
	if d := end.Time.Sub(start); d > 0 {
		return d
	}
	return 0
}

// framing lines are printed by the testing package itself and say nothing
// about why a test failed
var framingPrefixes = []string{"=== RUN", "=== PAUSE", "=== CONT", "=== NAME", "--- FAIL", "--- PASS", "--- SKIP", "FAIL", "PASS", "ok "}

func isFramingLine(line string) bool {
	for _, prefix := range framingPrefixes {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}

// keyMessage picks the most telling line of a failing test's output
func keyMessage(output string) string {
	var lines []string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !isFramingLine(line) {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return "test failed"
	}

	// Panics first, then testify assertions, then t.Error style locations
	for _, marker := range []string{"panic:", "fatal error:", "Error:", "_test.go:"} {
		for _, line := range lines {
			if idx := strings.Index(line, marker); idx != -1 {
				if marker == "Error:" {
					if msg := strings.TrimSpace(line[idx+len(marker):]); msg != "" {
						return msg
					}
				}
				return line
			}
		}
	}
	return lines[0]
}

func classFailureMessage(runErr error, output string) string {
	if msg := keyMessage(output); msg != "test failed" {
		return msg
	}
	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		return fmt.Sprintf("test binary exited with code %d", exitErr.ExitCode())
	}
	return fmt.Sprintf("test binary could not be run: %v", runErr)
}

func messageError(msg string) error {
	if msg == "" {
		return nil
	}
	return errors.New(msg)
}
