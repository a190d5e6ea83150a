package dspot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ethereum-optimism/optimism/op-service/cliapp"
	"github.com/urfave/cli/v2"

	"github.com/paraita/dspot/exitcodes"
	"github.com/paraita/dspot/loader"
	"github.com/paraita/dspot/registry"
	"github.com/paraita/dspot/runner"
	"github.com/paraita/dspot/service"
)

// amplifier implements the cliapp.Lifecycle interface.
var _ cliapp.Lifecycle = &amplifier{}

// amplifier runs amplified test variants once, keeps the passing ones the
// configured selection strategy chooses, then asks the app to shut down.
type amplifier struct {
	config  *Config
	version string
	engine  *runner.Engine
	jobs    []Job
	results []*JobResult
	svc     *service.Service // nil unless serving

	out      io.Writer // results table and summary
	progress io.Writer // progress bar, nil when disabled

	runsFinished     *atomic.Int64 // engine runs released so far
	running          atomic.Bool
	shutdownCallback func(error) // Callback to signal application shutdown
}

func New(ctx context.Context, config *Config, version string, shutdownCallback func(error)) (*amplifier, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	return newAmplifier(config, version, shutdownCallback, nil)
}

func newAmplifier(config *Config, version string, shutdownCallback func(error), cmdBuilder loader.CommandBuilder) (*amplifier, error) {
	config.Log.Debug("Creating amplifier with config",
		"searchPath", config.SearchPath,
		"requestFile", config.RequestFile,
		"selector", config.Selector,
		"concurrency", config.Concurrency)

	jobs := []Job{jobFromConfig(config)}
	if config.RequestFile != "" {
		reg, err := registry.NewRegistry(registry.Config{
			Log:         config.Log,
			RequestFile: config.RequestFile,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create registry: %w", err)
		}
		jobs = jobs[:0]
		for _, req := range reg.Requests() {
			jobs = append(jobs, jobFromRequest(req, config))
		}
	}

	runsFinished := new(atomic.Int64)
	engine, err := runner.NewEngine(runner.EngineConfig{
		SearchPath:  config.SearchPath,
		GoBinary:    config.GoBinary,
		WorkDir:     config.WorkDir,
		Timeouts:    config.Timeouts,
		ListTimeout: config.ListTimeout,
		KillGrace:   config.KillGrace,
		LogDir:      config.LogDir,
		Log:         config.Log,
		CmdBuilder:  cmdBuilder,
		OnRelease:   func(string) { runsFinished.Add(1) },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}
	config.Log.Info("amplifier.New: created engine", "jobs", len(jobs))

	a := &amplifier{
		config:           config,
		version:          version,
		engine:           engine,
		jobs:             jobs,
		runsFinished:     runsFinished,
		out:              os.Stdout,
		shutdownCallback: shutdownCallback,
	}
	if config.ShowProgress {
		a.progress = os.Stderr
	}
	if config.Serve {
		a.svc = service.New(config.Service, config.Log, a.status)
	}
	return a, nil
}

// Start runs every job once and reports the results.
// Start implements the cliapp.Lifecycle interface.
func (a *amplifier) Start(ctx context.Context) error {
	// Set up panic recovery to ensure we exit with code 2 for runtime errors
	defer func() {
		if r := recover(); r != nil {
			a.config.Log.Error("Runtime error occurred", "error", r)
			os.Exit(exitcodes.RuntimeErr)
		}
	}()

	a.running.Store(true)
	a.config.Log.Info("Starting dspot", "version", a.version, "jobs", len(a.jobs))
	if a.svc != nil {
		a.svc.Start(ctx)
	}

	if err := a.runJobs(ctx); err != nil {
		a.config.Log.Error("Runtime error running jobs", "error", err)
		return cli.Exit(err.Error(), exitcodes.RuntimeErr)
	}

	if incomplete := a.incomplete(); len(incomplete) > 0 {
		a.config.Log.Warn("Amplification did not complete", "jobs", strings.Join(incomplete, ","))
		return NewRuntimeError("amplification", fmt.Errorf("jobs did not complete: %s", strings.Join(incomplete, ", ")))
	}
	if failing := a.failing(); len(failing) > 0 {
		a.config.Log.Warn("Amplification completed with failing variants, returning exit code 1")
		return NewTestFailureError(failing...)
	}

	go func() {
		a.shutdownCallback(nil)
	}()
	return nil
}

// runJobs runs the jobs, prints the results and writes the output file
func (a *amplifier) runJobs(ctx context.Context) error {
	start := time.Now()
	var err error
	if len(a.jobs) == 1 && a.progress == nil {
		a.results = []*JobResult{runJob(ctx, a.engine, a.config.SourceDir, a.jobs[0])}
	} else {
		a.results, err = runJobs(ctx, a.engine, a.config.SourceDir, a.jobs, a.config.Concurrency, a.progress)
		if err != nil {
			return NewRuntimeError("batch", err)
		}
	}

	for _, r := range a.results {
		a.config.Log.Info("Job finished",
			"job", r.ID, "run_id", r.RunID, "status", r.Status,
			"candidates", r.Candidates, "kept", len(r.Kept), "error", r.Error)
		if r.Report != nil {
			a.config.Log.Debug("Job report", "job", r.ID, "report", r.Report.String())
		}
	}

	printResultsTable(a.out, a.results, time.Since(start))
	printSummary(a.out, a.results)

	if a.config.Output != "" {
		out := Output{Version: a.version, Finished: time.Now().UTC(), Jobs: a.results}
		if err := writeOutput(ctx, a.config.Output, out); err != nil {
			return NewRuntimeError("output", err)
		}
		a.config.Log.Info("Wrote kept candidates", "path", a.config.Output)
	}
	return nil
}

func (a *amplifier) incomplete() []string {
	var ids []string
	for _, r := range a.results {
		if r.Incomplete() {
			ids = append(ids, r.ID)
		}
	}
	return ids
}

func (a *amplifier) failing() []string {
	var ids []string
	for _, r := range a.results {
		if r.Failed() {
			ids = append(ids, r.ID)
		}
	}
	return ids
}

// status feeds /healthz
func (a *amplifier) status() service.Progress {
	return service.Progress{Jobs: len(a.jobs), RunsFinished: a.runsFinished.Load()}
}

// Stop stops the dspot service.
// Stop implements the cliapp.Lifecycle interface.
func (a *amplifier) Stop(ctx context.Context) error {
	if !a.running.Load() {
		a.config.Log.Debug("Service already stopped, nothing to do")
		return nil
	}
	a.running.Store(false)
	if a.svc != nil {
		a.svc.Shutdown()
	}
	a.config.Log.Info("dspot stopped")
	return nil
}

// Stopped returns true if the dspot service is stopped.
// Stopped implements the cliapp.Lifecycle interface.
func (a *amplifier) Stopped() bool {
	return !a.running.Load()
}
