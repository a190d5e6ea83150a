package runner

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/paraita/dspot/loader"
	"github.com/paraita/dspot/logging"
	"github.com/paraita/dspot/metrics"
	"github.com/paraita/dspot/plan"
	"github.com/paraita/dspot/types"
)

// EngineConfig holds configuration for creating a new engine
type EngineConfig struct {
	SearchPath  string        // list of directories and .zip archives holding test binaries
	GoBinary    string        // go command used to run "go tool test2json"
	WorkDir     string        // overrides the directory binaries run in
	Timeouts    TimeoutPolicy // zero values fall back to the defaults
	ListTimeout time.Duration
	KillGrace   time.Duration
	LogDir      string // when set, each run records its events under LogDir/testrun-<id>
	Log         log.Logger
	CmdBuilder  loader.CommandBuilder
	Observers   []OutcomeSink // notified of every outcome accepted into a report
	OnRelease   func(runID string)
}

// Engine executes requests against a fixed search path. Every call owns its
// own worker and resolution context, so calls share no state.
type Engine struct {
	loader    *loader.Loader
	timeouts  TimeoutPolicy
	goBinary  string
	workDir   string
	killGrace time.Duration
	logDir    string
	log       log.Logger
	cmd       loader.CommandBuilder
	observers []OutcomeSink
	onRelease func(string)
}

// NewEngine validates the configuration and creates an engine
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	if cfg.CmdBuilder == nil {
		cfg.CmdBuilder = loader.DefaultCommandBuilder
	}
	l, err := loader.New(loader.Config{
		SearchPath:  cfg.SearchPath,
		ListTimeout: cfg.ListTimeout,
		Log:         cfg.Log,
		CmdBuilder:  cfg.CmdBuilder,
	})
	if err != nil {
		return nil, err
	}
	return &Engine{
		loader:    l,
		timeouts:  cfg.Timeouts.withDefaults(),
		goBinary:  cfg.GoBinary,
		workDir:   cfg.WorkDir,
		killGrace: cfg.KillGrace,
		logDir:    cfg.LogDir,
		log:       cfg.Log.New("component", "engine"),
		cmd:       cfg.CmdBuilder,
		observers: cfg.Observers,
		onRelease: cfg.OnRelease,
	}, nil
}

// Timeouts returns the policy used to compute run budgets
func (e *Engine) Timeouts() TimeoutPolicy {
	return e.timeouts
}

// RunTestClass runs a single binary, optionally restricted to methods
func (e *Engine) RunTestClass(ctx context.Context, name string, methods []string) (*types.ExecutionReport, error) {
	return e.RunTestClasses(ctx, []string{name}, methods)
}

// RunTestClasses runs several binaries as one request. The method filter
// applies to every binary.
func (e *Engine) RunTestClasses(ctx context.Context, names []string, methods []string) (*types.ExecutionReport, error) {
	classes := make([]types.TestArtifactRef, len(names))
	for i, n := range names {
		classes[i] = types.TestArtifactRef(n)
	}
	return e.Run(ctx, types.ExecutionRequest{Classes: classes, Methods: methods})
}

// Run executes a request and returns its report. A load failure returns a
// load-failed report together with the *loader.LoadError; a run that exceeds
// its budget returns a timed-out report holding the outcomes observed in time.
func (e *Engine) Run(ctx context.Context, req types.ExecutionRequest) (*types.ExecutionReport, error) {
	runID := uuid.New().String()
	logger := e.log.New("run", runID)
	budget := e.timeouts.Compute(req.Methods)

	ctx, span := otel.Tracer("dspot").Start(ctx, "execution run")
	defer span.End()
	span.SetAttributes(
		attribute.String("run.id", runID),
		attribute.Int("run.classes", len(req.Classes)),
		attribute.Int("run.methods", len(req.MethodSet())),
		attribute.Int64("run.budget_ms", budget.Milliseconds()),
	)

	states := newStateTracker(logger)
	collector := NewCollector(runID)
	res := &runResources{runID: runID, log: logger, onRelease: e.onRelease}
	defer res.release()

	e.mustTransition(states, types.StateLoading)
	rc, classes, err := e.loader.Load(ctx, req.Classes)
	if err != nil {
		e.mustTransition(states, types.StateLoadFailed)
		logger.Error("Failed to load test classes", "classes", req.Classes, "err", err)
		metrics.RecordErrorDetails("load", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "load failed")
		report := collector.Report(types.RunStatusLoadFailed, req, budget)
		metrics.RecordRun(report)
		return report, err
	}
	res.loaderCtx = rc

	e.mustTransition(states, types.StatePlanning)
	p := plan.Build(classes, req.Methods)
	logger.Info("Planned run", "classes", len(p.Classes), "tests", p.TestCount(), "filter", p.Filter, "budget", budget)

	sinks := MultiSink{collector}
	var raw RawEventWriter
	if e.logDir != "" {
		runLog, err := logging.NewRunLogger(e.logDir, runID)
		if err != nil {
			logger.Warn("Failed to create run log directory, continuing without file logs", "err", err)
		} else {
			res.runLog = runLog
			raw = runLog
			sinks = append(sinks, runLog)
		}
	}
	sinks = append(sinks, e.observers...)
	gate := NewGate(sinks)

	worker := NewWorker(WorkerConfig{
		GoBinary:   e.goBinary,
		WorkDir:    e.workDir,
		KillGrace:  e.killGrace,
		Log:        logger,
		CmdBuilder: e.cmd,
		Raw:        raw,
		// outcomes arriving after this point belong to a run that already ended
		Cleanup: gate.Close,
	})

	e.mustTransition(states, types.StateScheduled)
	e.mustTransition(states, types.StateRunning)
	status := worker.Run(ctx, p, budget, gate)

	final := types.StateCompleted
	if status == types.RunStatusTimedOut {
		final = types.StateTimedOut
		span.SetStatus(codes.Error, "timed out")
	}
	e.mustTransition(states, final)
	sinks.RunFinished(status)

	report := collector.Report(status, req, budget)
	if res.runLog != nil {
		if err := res.runLog.LogSummary(report.String()); err != nil {
			logger.Warn("Failed to write run summary", "err", err)
		}
	}
	metrics.RecordRun(report)
	span.SetAttributes(
		attribute.String("run.status", string(report.Status)),
		attribute.Int("run.outcomes", report.Counts.Total),
	)
	logger.Info("Run finished",
		"status", report.Status,
		"planned", report.Planned,
		"total", report.Counts.Total,
		"passed", report.Counts.Passed,
		"failed", report.Counts.Failed,
		"errored", report.Counts.Errored,
		"duration", report.Duration,
		"states", states.path(),
	)
	return report, nil
}

func (e *Engine) mustTransition(states *stateTracker, to types.RunState) {
	if err := states.transition(to); err != nil {
		// a broken state machine is a programming error, never a test outcome
		panic(err)
	}
}

// runResources are the per-run resources released when Run returns
type runResources struct {
	runID     string
	log       log.Logger
	loaderCtx *loader.Context
	runLog    *logging.RunLogger
	onRelease func(string)

	once sync.Once
}

func (r *runResources) release() {
	r.once.Do(func() {
		var errs []error
		if r.loaderCtx != nil {
			errs = append(errs, r.loaderCtx.Close())
		}
		if r.runLog != nil {
			errs = append(errs, r.runLog.Close())
		}
		if err := errors.Join(errs...); err != nil {
			r.log.Warn("Failed to release run resources", "err", err)
		}
		if r.onRelease != nil {
			r.onRelease(r.runID)
		}
	})
}
