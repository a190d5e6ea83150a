package dspot

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/schollz/progressbar/v3"
	"github.com/sourcegraph/conc/pool"

	"github.com/paraita/dspot/runner"
)

type indexedResult struct {
	index  int
	result *JobResult
}

// runJobs runs the jobs through a bounded pool. Results come back in job
// order; a job failure is recorded on its result and never stops the others.
func runJobs(ctx context.Context, engine *runner.Engine, sourceDir string, jobs []Job, concurrency int, progress io.Writer) ([]*JobResult, error) {
	if concurrency < 1 {
		concurrency = 1
	}

	var bar *progressbar.ProgressBar
	if progress != nil {
		bar = newProgressBar(len(jobs), progress)
	}

	p := pool.NewWithResults[indexedResult]().
		WithErrors().
		WithMaxGoroutines(concurrency).
		WithContext(ctx)
	for i, job := range jobs {
		p.Go(func(ctx context.Context) (indexedResult, error) {
			result := runJob(ctx, engine, sourceDir, job)
			if bar != nil {
				_ = bar.Add(1)
			}
			return indexedResult{index: i, result: result}, nil
		})
	}

	indexed, err := p.Wait()
	if err != nil {
		return nil, fmt.Errorf("batch failed: %w", err)
	}
	sort.Slice(indexed, func(a, b int) bool { return indexed[a].index < indexed[b].index })

	results := make([]*JobResult, len(indexed))
	for i, r := range indexed {
		results[i] = r.result
	}
	return results, nil
}

func newProgressBar(total int, w io.Writer) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription("[cyan]Amplifying[reset]"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			_, _ = fmt.Fprintln(w)
		}),
		progressbar.OptionSetRenderBlankState(true),
	)
}
