package dspot

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"time"

	"github.com/paraita/dspot/metrics"
	"github.com/paraita/dspot/registry"
	"github.com/paraita/dspot/runner"
	"github.com/paraita/dspot/selection"
	"github.com/paraita/dspot/testlist"
	"github.com/paraita/dspot/types"
)

// Job is one amplification request: run the variants, drop the failing ones
// and let a selection strategy choose which of the survivors to keep.
type Job struct {
	ID        string
	Request   types.ExecutionRequest
	Package   string // source package candidates are read from, empty to use the report
	Match     string // optional expression restricting candidate names
	Selector  string
	Selection selection.Options
}

// JobResult is the outcome of a Job
type JobResult struct {
	ID         string                     `json:"id"`
	RunID      string                     `json:"run_id"`
	Status     types.RunStatus            `json:"status"`
	Selector   string                     `json:"selector"`
	Candidates int                        `json:"candidates"`
	Kept       []types.SelectionCandidate `json:"kept"`
	Duration   time.Duration              `json:"duration"`
	Error      string                     `json:"error,omitempty"`
	Report     *types.ExecutionReport     `json:"-"`
}

// Failed reports whether any variant of the job failed or errored
func (r *JobResult) Failed() bool {
	return r.Report != nil && r.Report.HasFailures()
}

// Incomplete reports whether the job could not observe all of its variants
func (r *JobResult) Incomplete() bool {
	return r.Error != "" || r.Status != types.RunStatusCompleted
}

// jobFromConfig builds the single job described by the command line
func jobFromConfig(cfg *Config) Job {
	return Job{
		ID:        "default",
		Request:   types.ExecutionRequest{Classes: cfg.Classes, Methods: cfg.Methods},
		Package:   cfg.Package,
		Match:     cfg.Match,
		Selector:  cfg.Selector,
		Selection: cfg.Selection,
	}
}

// jobFromRequest builds a job from a batch request. Unset selection
// parameters fall back to the command line.
func jobFromRequest(req registry.Request, cfg *Config) Job {
	job := Job{
		ID:        req.ID,
		Request:   req.ExecutionRequest(),
		Package:   req.Package,
		Match:     req.Match,
		Selector:  req.Selector,
		Selection: cfg.Selection,
	}
	if job.Selector == "" {
		job.Selector = cfg.Selector
	}
	if req.Seed != nil {
		job.Selection.Seed = *req.Seed
	}
	if req.Ratio != 0 {
		job.Selection.Ratio = req.Ratio
	}
	if req.Threshold != nil {
		job.Selection.Threshold = req.Threshold
	}
	return job
}

// runJob executes a job against the engine. Errors that prevent the job
// from producing a report are recorded on the result rather than returned,
// so one broken request does not abort a batch.
func runJob(ctx context.Context, engine *runner.Engine, sourceDir string, job Job) *JobResult {
	start := time.Now()
	result := &JobResult{ID: job.ID, Selector: job.Selector}
	defer func() { result.Duration = time.Since(start) }()

	selector, err := selection.New(job.Selector, job.Selection)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	var match *regexp.Regexp
	if job.Match != "" {
		if match, err = regexp.Compile(job.Match); err != nil {
			result.Error = fmt.Sprintf("invalid match expression: %v", err)
			return result
		}
	}

	req := job.Request
	var candidates []types.SelectionCandidate
	if job.Package != "" {
		candidates, err = discoverCandidates(job, sourceDir, match)
		if err != nil {
			result.Error = err.Error()
			return result
		}
		if len(candidates) == 0 {
			result.Status = types.RunStatusCompleted
			return result
		}
		req.Methods = candidateNames(candidates)
	}

	report, err := engine.Run(ctx, req)
	result.Report = report
	if report != nil {
		result.RunID = report.RunID
		result.Status = report.Status
	}
	if err != nil {
		result.Error = err.Error()
		return result
	}

	if job.Package == "" {
		candidates = candidatesFromReport(report, match)
	}
	result.Candidates = len(candidates)
	result.Kept = selection.Passing{Report: report, Next: selector}.Select(candidates)
	metrics.RecordSelection(job.Selector, len(candidates), len(result.Kept))
	return result
}

// discoverCandidates reads the test functions of the job's package. The
// candidates are attributed to the binary that runs them so they can be
// matched against its outcomes.
func discoverCandidates(job Job, sourceDir string, match *regexp.Regexp) ([]types.SelectionCandidate, error) {
	found, err := testlist.FindCandidates(job.Package, sourceDir, match)
	if err != nil {
		return nil, fmt.Errorf("failed to discover candidates in %s: %w", job.Package, err)
	}
	class := string(job.Request.Classes[0])
	candidates := make([]types.SelectionCandidate, 0, len(found))
	for _, c := range found {
		if len(job.Request.Methods) > 0 && !slices.Contains(job.Request.Methods, c.Name) {
			continue
		}
		c.Class = class
		candidates = append(candidates, c)
	}
	return candidates, nil
}

// candidatesFromReport turns every test the report observed into a
// candidate without a body
func candidatesFromReport(report *types.ExecutionReport, match *regexp.Regexp) []types.SelectionCandidate {
	var candidates []types.SelectionCandidate
	seen := make(map[string]bool)
	for _, o := range report.Outcomes {
		if o.Method == "" || seen[o.ID] {
			continue
		}
		if match != nil && !match.MatchString(o.Method) {
			continue
		}
		seen[o.ID] = true
		candidates = append(candidates, types.SelectionCandidate{Name: o.Method, Class: o.Class})
	}
	return candidates
}

func candidateNames(candidates []types.SelectionCandidate) []string {
	names := make([]string, len(candidates))
	for i, c := range candidates {
		names[i] = c.Name
	}
	return names
}
