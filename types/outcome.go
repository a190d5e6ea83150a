package types

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// TestArtifactRef is the qualified name of a compiled test binary, either an
// import path ("example.com/mod/pkg") or a binary name ("pkg.test")
type TestArtifactRef string

// ExecutionRequest describes which binaries to run and, optionally, which test
// functions to restrict them to. An empty Methods list runs everything.
type ExecutionRequest struct {
	Classes []TestArtifactRef `yaml:"classes" json:"classes"`
	Methods []string          `yaml:"methods,omitempty" json:"methods,omitempty"`
}

// MethodSet returns the deduplicated method filter, preserving first occurrence order
func (r ExecutionRequest) MethodSet() []string {
	return DedupMethods(r.Methods)
}

// DedupMethods removes empty and duplicate method names, preserving order
func DedupMethods(methods []string) []string {
	seen := make(map[string]struct{}, len(methods))
	out := make([]string, 0, len(methods))
	for _, m := range methods {
		m = strings.TrimSpace(m)
		if m == "" {
			continue
		}
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}

// FailureDetail carries the message of a failed or errored test together with
// the chain of causes (subtest failures, process errors) that led to it
type FailureDetail struct {
	Message string
	Cause   error
}

func (f *FailureDetail) Error() string {
	if f.Cause == nil {
		return f.Message
	}
	if f.Message == "" {
		return f.Cause.Error()
	}
	return fmt.Sprintf("%s: %v", f.Message, f.Cause)
}

// Unwrap exposes the cause chain to errors.Is / errors.As
func (f *FailureDetail) Unwrap() error {
	return f.Cause
}

// ExecutionOutcome is the result of a single test leaf
type ExecutionOutcome struct {
	ID       string // "<class>::<method>"
	Class    string
	Method   string
	Status   OutcomeStatus
	Failure  *FailureDetail
	Duration time.Duration
	Output   string // captured output, only kept for failing tests
}

// OutcomeID builds the identity used to key outcomes of a class
func OutcomeID(class, method string) string {
	if method == "" {
		return class
	}
	return class + "::" + method
}

// OutcomeCounts tracks outcome statistics by status
type OutcomeCounts struct {
	Total   int
	Passed  int
	Failed  int
	Errored int
	Skipped int
}

// Add records one outcome status
func (c *OutcomeCounts) Add(status OutcomeStatus) {
	c.Total++
	switch status {
	case OutcomePassed:
		c.Passed++
	case OutcomeFailed:
		c.Failed++
	case OutcomeErrored:
		c.Errored++
	case OutcomeSkipped:
		c.Skipped++
	}
}

// ExecutionReport is the aggregate returned to callers. It is not modified
// after being returned.
type ExecutionReport struct {
	RunID    string
	Status   RunStatus
	Classes  []TestArtifactRef
	Methods  []string
	Planned  int                // tests selected by the plan
	Outcomes []ExecutionOutcome // in the order they were observed
	Counts   OutcomeCounts
	Budget   time.Duration
	Duration time.Duration
}

// HasFailures reports whether any outcome failed or errored
func (r *ExecutionReport) HasFailures() bool {
	return r.Counts.Failed > 0 || r.Counts.Errored > 0
}

// Passing returns the method names whose outcome passed
func (r *ExecutionReport) Passing() []string {
	return r.methodsWith(func(s OutcomeStatus) bool { return s == OutcomePassed })
}

// Failing returns the method names whose outcome failed or errored
func (r *ExecutionReport) Failing() []string {
	return r.methodsWith(OutcomeStatus.IsFailure)
}

func (r *ExecutionReport) methodsWith(match func(OutcomeStatus) bool) []string {
	var out []string
	for _, o := range r.Outcomes {
		if o.Method != "" && match(o.Status) {
			out = append(out, o.Method)
		}
	}
	return out
}

// Outcome looks up the outcome of a class method
func (r *ExecutionReport) Outcome(class, method string) (ExecutionOutcome, bool) {
	id := OutcomeID(class, method)
	for _, o := range r.Outcomes {
		if o.ID == id {
			return o, true
		}
	}
	return ExecutionOutcome{}, false
}

// formatDuration formats the duration to seconds with 1 decimal place
func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}

// String returns a formatted string representation of the report
func (r *ExecutionReport) String() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Execution Report %s [%s] (%s, budget %s):\n",
		r.RunID, r.Status, formatDuration(r.Duration), formatDuration(r.Budget)))
	b.WriteString(fmt.Sprintf("Planned: %d, ", r.Planned))
	b.WriteString(fmt.Sprintf("Total: %d, Passed: %d, Failed: %d, Errored: %d, Skipped: %d\n",
		r.Counts.Total, r.Counts.Passed, r.Counts.Failed, r.Counts.Errored, r.Counts.Skipped))

	byClass := make(map[string][]ExecutionOutcome)
	for _, o := range r.Outcomes {
		byClass[o.Class] = append(byClass[o.Class], o)
	}
	classes := make([]string, 0, len(byClass))
	for class := range byClass {
		classes = append(classes, class)
	}
	sort.Strings(classes)

	for _, class := range classes {
		b.WriteString(fmt.Sprintf("\nClass: %s\n", class))
		outcomes := byClass[class]
		for i, o := range outcomes {
			prefix := "├──"
			if i == len(outcomes)-1 {
				prefix = "└──"
			}
			b.WriteString(fmt.Sprintf("%s Test: %s (%s) [status=%s]\n",
				prefix, o.Method, formatDuration(o.Duration), o.Status))
			if o.Failure != nil {
				b.WriteString(fmt.Sprintf("│       └── Error: %s\n", o.Failure.Error()))
			}
		}
	}
	return b.String()
}
