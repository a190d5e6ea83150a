package dspot

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/paraita/dspot/types"
)

func reportWith(outcomes ...types.ExecutionOutcome) *types.ExecutionReport {
	r := &types.ExecutionReport{Status: types.RunStatusCompleted, Outcomes: outcomes}
	for _, o := range outcomes {
		r.Counts.Add(o.Status)
	}
	return r
}

func TestPrintResultsTable(t *testing.T) {
	passed := types.ExecutionOutcome{ID: "a.test::TestA", Class: "a.test", Method: "TestA", Status: types.OutcomePassed, Duration: time.Second}
	failed := types.ExecutionOutcome{
		ID: "a.test::TestB", Class: "a.test", Method: "TestB", Status: types.OutcomeFailed,
		Failure: &types.FailureDetail{Message: "want 2, got 3"},
	}
	results := []*JobResult{{
		ID:     "job-1",
		Status: types.RunStatusCompleted,
		Report: reportWith(passed, failed),
		Kept:   []types.SelectionCandidate{{Name: "TestA", Class: "a.test"}},
	}}

	var buf bytes.Buffer
	printResultsTable(&buf, results, 1500*time.Millisecond)
	out := buf.String()

	assert.Contains(t, out, "Amplification Results (1.5s)")
	assert.Contains(t, out, "job-1")
	assert.Contains(t, out, "TestA")
	assert.Contains(t, out, "want 2, got 3")
	assert.Contains(t, out, "TOTAL")
}

func TestPrintSummary(t *testing.T) {
	ok := &JobResult{ID: "ok", Status: types.RunStatusCompleted, Candidates: 2, Report: reportWith(
		types.ExecutionOutcome{Method: "TestA", Status: types.OutcomePassed},
	), Kept: make([]types.SelectionCandidate, 1)}
	failing := &JobResult{ID: "failing", Status: types.RunStatusCompleted, Candidates: 1, Report: reportWith(
		types.ExecutionOutcome{Method: "TestB", Status: types.OutcomeFailed},
	)}
	timedOut := &JobResult{ID: "slow", Status: types.RunStatusTimedOut}

	tests := []struct {
		name    string
		results []*JobResult
		want    string
	}{
		{"all passing", []*JobResult{ok}, "1 jobs, 2 candidates, 1 kept"},
		{"failing variants", []*JobResult{ok, failing}, "1 with failing variants"},
		{"incomplete", []*JobResult{ok, failing, timedOut}, "1 incomplete"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			printSummary(&buf, tt.results)
			assert.Contains(t, buf.String(), tt.want)
		})
	}
}

func TestOverallStatus(t *testing.T) {
	passing := &JobResult{Status: types.RunStatusCompleted, Report: reportWith(types.ExecutionOutcome{Status: types.OutcomePassed})}
	empty := &JobResult{Status: types.RunStatusCompleted, Report: reportWith()}
	failing := &JobResult{Status: types.RunStatusCompleted, Report: reportWith(types.ExecutionOutcome{Status: types.OutcomeErrored})}

	assert.Equal(t, types.OutcomePassed, overallStatus([]*JobResult{passing, empty}))
	assert.Equal(t, types.OutcomeSkipped, overallStatus([]*JobResult{empty}))
	assert.Equal(t, types.OutcomeFailed, overallStatus([]*JobResult{passing, failing}))
	assert.Equal(t, types.OutcomeFailed, overallStatus([]*JobResult{{Error: "boom"}}))
}

func TestJobStatusString(t *testing.T) {
	assert.Equal(t, "✗ error", jobStatusString(&JobResult{Error: "bad selector"}))
	assert.Equal(t, "✗ timed-out", jobStatusString(&JobResult{Status: types.RunStatusTimedOut}))
	assert.Equal(t, "✗ load-failed", jobStatusString(&JobResult{Status: types.RunStatusLoadFailed, Error: "missing"}))
	assert.Equal(t, "✓ pass", jobStatusString(&JobResult{Status: types.RunStatusCompleted}))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "0.0s", formatDuration(0))
	assert.Equal(t, "2.3s", formatDuration(2340*time.Millisecond))
}
