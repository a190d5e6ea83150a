package dspot

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/paraita/dspot/types"
)

// printResultsTable prints one row per job followed by the variants it ran
func printResultsTable(w io.Writer, results []*JobResult, total time.Duration) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(fmt.Sprintf("Amplification Results (%s)", formatDuration(total)))

	t.AppendHeader(table.Row{
		"Type", "ID", "Duration", "Tests", "Passed", "Failed", "Kept", "Status", "Error",
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Type", AutoMerge: true},
		{Name: "ID", WidthMax: 60, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Tests", Align: text.AlignRight},
		{Name: "Passed", Align: text.AlignRight},
		{Name: "Failed", Align: text.AlignRight},
		{Name: "Kept", Align: text.AlignRight},
		{Name: "Error", WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
	})

	var counts types.OutcomeCounts
	var kept int
	for _, r := range results {
		var c types.OutcomeCounts
		if r.Report != nil {
			c = r.Report.Counts
		}
		counts.Total += c.Total
		counts.Passed += c.Passed
		counts.Failed += c.Failed + c.Errored
		kept += len(r.Kept)

		t.AppendRow(table.Row{
			"Job",
			r.ID,
			formatDuration(r.Duration),
			c.Total,
			c.Passed,
			c.Failed + c.Errored,
			len(r.Kept),
			jobStatusString(r),
			r.Error,
		})

		if r.Report != nil {
			keptSet := make(map[string]bool, len(r.Kept))
			for _, k := range r.Kept {
				keptSet[k.Key()] = true
			}
			for _, o := range r.Report.Outcomes {
				var msg string
				if o.Failure != nil {
					msg = o.Failure.Message
				}
				t.AppendRow(table.Row{
					"Test",
					fmt.Sprintf("%s %s", treePrefix, displayName(o)),
					formatDuration(o.Duration),
					1,
					boolToInt(o.Status == types.OutcomePassed),
					boolToInt(o.Status.IsFailure()),
					boolToInt(keptSet[o.ID]),
					getResultString(o.Status),
					msg,
				})
			}
		}
		t.AppendSeparator()
	}

	status := overallStatus(results)
	switch status {
	case types.OutcomePassed:
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	case types.OutcomeSkipped:
		t.SetStyle(table.StyleColoredBlackOnYellowWhite)
	default:
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	}

	t.AppendFooter(table.Row{
		"TOTAL",
		"",
		formatDuration(total),
		counts.Total,
		counts.Passed,
		counts.Failed,
		kept,
		getResultString(status),
		"",
	})

	t.Render()
}

const treePrefix = "└──"

func displayName(o types.ExecutionOutcome) string {
	if o.Method == "" {
		return o.Class + " (binary)"
	}
	return o.Method
}

// printSummary prints a single colored line per batch
func printSummary(w io.Writer, results []*JobResult) {
	var candidates, kept, incomplete, failing int
	for _, r := range results {
		candidates += r.Candidates
		kept += len(r.Kept)
		if r.Incomplete() {
			incomplete++
		} else if r.Failed() {
			failing++
		}
	}
	line := fmt.Sprintf("%d jobs, %d candidates, %d kept", len(results), candidates, kept)
	switch {
	case incomplete > 0:
		_, _ = fmt.Fprintln(w, color.RedString("✗ %s, %d incomplete", line, incomplete))
	case failing > 0:
		_, _ = fmt.Fprintln(w, color.YellowString("! %s, %d with failing variants", line, failing))
	default:
		_, _ = fmt.Fprintln(w, color.GreenString("✓ %s", line))
	}
}

// overallStatus folds the jobs into one status for styling: passed when
// every job completed without failures, skipped when nothing ran.
func overallStatus(results []*JobResult) types.OutcomeStatus {
	ran := false
	for _, r := range results {
		if r.Incomplete() || r.Failed() {
			return types.OutcomeFailed
		}
		if r.Report != nil && r.Report.Counts.Total > 0 {
			ran = true
		}
	}
	if !ran {
		return types.OutcomeSkipped
	}
	return types.OutcomePassed
}

func jobStatusString(r *JobResult) string {
	switch {
	case r.Error != "" && r.Status == "":
		return "✗ error"
	case r.Status == types.RunStatusTimedOut:
		return "✗ timed-out"
	case r.Status == types.RunStatusLoadFailed:
		return "✗ load-failed"
	case r.Failed():
		return "✗ fail"
	default:
		return "✓ pass"
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// getResultString returns a string representing the test result
func getResultString(status types.OutcomeStatus) string {
	switch status {
	case types.OutcomePassed:
		return "✓ pass"
	case types.OutcomeSkipped:
		return "- skip"
	case types.OutcomeErrored:
		return "✗ error"
	default:
		return "✗ fail"
	}
}

// Helper function to format duration to seconds with 1 decimal place
func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}
