package runner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/paraita/dspot/loader"
	"github.com/paraita/dspot/plan"
	"github.com/paraita/dspot/types"
)

const (
	DefaultGoBinary  = "go"
	DefaultKillGrace = 2 * time.Second

	maxEventLineBytes = 4 * 1024 * 1024

	// how long an expiring run waits for the running class to hand over a
	// held back failure
	flushWait = 250 * time.Millisecond
)

// RawEventWriter receives every line a test process printed, in order
type RawEventWriter interface {
	WriteRaw(class string, line []byte) error
}

// WorkerConfig holds configuration for a worker
type WorkerConfig struct {
	GoBinary   string        // go command used to run "go tool test2json"
	WorkDir    string        // overrides the directory binaries run in
	KillGrace  time.Duration // how long a cancelled process may keep its pipes open
	Log        log.Logger
	CmdBuilder loader.CommandBuilder
	Raw        RawEventWriter
	Cleanup    func() // called exactly once when Run returns
}

// Worker runs a plan on a single dedicated goroutine. Binaries execute one
// after the other; the caller only ever waits for the budget.
type Worker struct {
	goBinary   string
	workDir    string
	killGrace  time.Duration
	log        log.Logger
	cmdBuilder loader.CommandBuilder
	raw        RawEventWriter
	cleanup    func()

	flushReq chan chan struct{}
	once     sync.Once
}

// NewWorker creates a worker. A worker serves a single Run.
func NewWorker(cfg WorkerConfig) *Worker {
	if cfg.GoBinary == "" {
		cfg.GoBinary = DefaultGoBinary
	}
	if cfg.KillGrace <= 0 {
		cfg.KillGrace = DefaultKillGrace
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
	}
	if cfg.CmdBuilder == nil {
		cfg.CmdBuilder = loader.DefaultCommandBuilder
	}
	return &Worker{
		goBinary:   cfg.GoBinary,
		workDir:    cfg.WorkDir,
		killGrace:  cfg.KillGrace,
		log:        cfg.Log.New("component", "worker"),
		cmdBuilder: cfg.CmdBuilder,
		raw:        cfg.Raw,
		cleanup:    cfg.Cleanup,
		flushReq:   make(chan chan struct{}),
	}
}

// release runs the cleanup hook and cancels the worker context, once. The
// hook runs first so that nothing the dying process reports gets through.
func (w *Worker) release(cancel context.CancelFunc) {
	w.once.Do(func() {
		if w.cleanup != nil {
			w.cleanup()
		}
		cancel()
	})
}

// Run submits the plan to the worker goroutine and waits until it finishes or
// the budget expires, whichever comes first. Outcomes are streamed to sink as
// they are observed. On expiry the worker context is cancelled, which kills
// the running test process, and Run returns without waiting for the goroutine
// to wind down.
func (w *Worker) Run(ctx context.Context, p *plan.RunPlan, budget time.Duration, sink OutcomeSink) types.RunStatus {
	workCtx, cancel := context.WithCancel(ctx)
	defer w.release(cancel)

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				w.log.Error("Worker panicked", "panic", r, "stack", string(debug.Stack()))
				sink.Outcome(types.ExecutionOutcome{
					ID:     "worker",
					Status: types.OutcomeErrored,
					Failure: &types.FailureDetail{
						Message: "worker panicked",
						Cause:   fmt.Errorf("%v", r),
					},
				})
			}
		}()
		w.execute(workCtx, p, sink)
	}()

	timer := time.NewTimer(budget)
	defer timer.Stop()

	select {
	case <-done:
		return types.RunStatusCompleted
	case <-timer.C:
		w.log.Warn("Run exceeded its budget, cancelling", "budget", budget)
	case <-ctx.Done():
		w.log.Warn("Run cancelled by caller", "err", ctx.Err())
	}
	w.flushPending(done)
	return types.RunStatusTimedOut
}

// flushPending asks the running class to deliver a failure it holds back,
// while the sink still accepts outcomes. It gives up after flushWait.
func (w *Worker) flushPending(done <-chan struct{}) {
	ack := make(chan struct{})
	wait := time.NewTimer(flushWait)
	defer wait.Stop()

	select {
	case w.flushReq <- ack:
	case <-done:
		return
	case <-wait.C:
		w.log.Debug("No class took the flush request")
		return
	}
	select {
	case <-ack:
	case <-done:
	case <-wait.C:
	}
}

func (w *Worker) execute(ctx context.Context, p *plan.RunPlan, sink OutcomeSink) {
	sink.RunStarted(p)
	for _, cp := range p.Classes {
		if ctx.Err() != nil {
			w.log.Debug("Skipping remaining classes", "err", ctx.Err())
			return
		}
		w.runClass(ctx, cp, sink)
	}
}

// runClass runs one binary through test2json and streams its outcomes
func (w *Worker) runClass(ctx context.Context, cp plan.ClassPlan, sink OutcomeSink) {
	class := string(cp.Class.Name)
	ctx, span := otel.Tracer("dspot").Start(ctx, "run class")
	defer span.End()
	span.SetAttributes(
		attribute.String("class", class),
		attribute.Int("methods", len(cp.Methods)),
	)

	args := []string{
		"tool", "test2json", "-t", "-p", cp.Class.Package, cp.Class.Binary,
		"-test.v=test2json", "-test.count=1", "-test.run", cp.RunPattern(),
	}

	cmd, cleanup := w.cmdBuilder(ctx, w.goBinary, args...)
	defer cleanup()
	cmd.Dir = cp.Class.Dir
	if w.workDir != "" {
		cmd.Dir = w.workDir
	}
	cmd.WaitDelay = w.killGrace
	stderr := newTailBuffer(defaultStderrTailBytes)
	cmd.Stderr = stderr

	parser := NewEventParser(class)
	emit := func(outcomes []types.ExecutionOutcome) {
		for _, o := range outcomes {
			w.log.Debug("Test finished", "class", class, "test", o.Method, "status", o.Status)
			sink.Outcome(o)
		}
	}

	w.log.Info("Running class", "class", class, "binary", cp.Class.Binary, "methods", len(cp.Methods))
	stdout, err := cmd.StdoutPipe()
	if err == nil {
		err = cmd.Start()
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "start failed")
		w.log.Error("Failed to start test process", "class", class, "err", err)
		emit(parser.Finish(fmt.Errorf("starting test process: %w", err), ""))
		return
	}

	lines := make(chan []byte)
	var scanErr error
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 0, 64*1024), maxEventLineBytes)
		for scanner.Scan() {
			lines <- append([]byte(nil), scanner.Bytes()...)
		}
		scanErr = scanner.Err()
	}()

	for reading := true; reading; {
		select {
		case line, ok := <-lines:
			if !ok {
				reading = false
				break
			}
			if w.raw != nil {
				if err := w.raw.WriteRaw(class, line); err != nil {
					w.log.Debug("Failed to write raw event", "err", err)
				}
			}
			event, err := parseTestEvent(line)
			if err != nil {
				// test2json passes through anything it cannot frame
				_, _ = stderr.Write(line)
				_, _ = stderr.WriteString("\n")
				continue
			}
			emit(parser.Handle(event))
		case ack := <-w.flushReq:
			emit(parser.Flush())
			close(ack)
		}
	}
	// stdout is closed: no trailing panic trace can follow anymore
	emit(parser.Flush())

	waitErr := cmd.Wait()
	if ctx.Err() != nil {
		waitErr = errors.Join(ctx.Err(), waitErr)
	}
	if waitErr == nil && scanErr != nil {
		waitErr = fmt.Errorf("reading test events: %w", scanErr)
	}
	if waitErr != nil {
		span.RecordError(waitErr)
	}
	emit(parser.Finish(waitErr, stderr.Text()))
	w.log.Info("Class finished", "class", class, "outcomes", parser.Emitted(), "err", waitErr)
}
