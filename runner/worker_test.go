package runner

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/optimism/op-service/testlog"
	"github.com/paraita/dspot/loader"
	"github.com/paraita/dspot/plan"
	"github.com/paraita/dspot/types"
)

func classPlan(binary string, methods ...string) plan.ClassPlan {
	return plan.ClassPlan{
		Class: &loader.LoadedClass{
			Name:    types.TestArtifactRef(binary),
			Package: "pkg",
			Binary:  "/bin/" + binary,
			Methods: methods,
		},
		Methods: methods,
	}
}

func runPlan(classes ...plan.ClassPlan) *plan.RunPlan {
	return &plan.RunPlan{
		Root:    types.NewContainer(types.NodeKindRoot, plan.RootName, ""),
		Classes: classes,
	}
}

func newTestWorker(t *testing.T, fake *fakeGo, cleanups *atomic.Int32) *Worker {
	return NewWorker(WorkerConfig{
		Log:        testlog.Logger(t, log.LevelInfo),
		CmdBuilder: fake.build,
		KillGrace:  100 * time.Millisecond,
		Cleanup:    func() { cleanups.Add(1) },
	})
}

func TestWorkerRunsClassesSequentially(t *testing.T) {
	fake := newFakeGo()
	fake.script("a.test", emit(runEvent("TestA1"), passEvent("TestA1"), runEvent("TestA2"), passEvent("TestA2"), packagePass))
	fake.script("b.test", script(
		emit(runEvent("TestB1"), outputEvent("TestB1", "b_test.go:3: nope"), failEvent("TestB1"), `{"Action":"fail","Package":"pkg"}`),
		"exit 1",
	))

	var cleanups atomic.Int32
	sink := &recordingSink{}
	w := newTestWorker(t, fake, &cleanups)
	status := w.Run(context.Background(), runPlan(classPlan("a.test"), classPlan("b.test")), 10*time.Second, sink)

	assert.Equal(t, types.RunStatusCompleted, status)
	assert.Equal(t, int32(1), cleanups.Load())
	assert.Equal(t, 1, sink.started)

	outcomes := sink.snapshot()
	require.Len(t, outcomes, 3)
	assert.Equal(t, "a.test::TestA1", outcomes[0].ID)
	assert.Equal(t, "a.test::TestA2", outcomes[1].ID)
	assert.Equal(t, "b.test::TestB1", outcomes[2].ID)
	assert.Equal(t, types.OutcomeFailed, outcomes[2].Status)
	assert.Equal(t, "b_test.go:3: nope", outcomes[2].Failure.Message)
}

func TestWorkerBuildsTest2JSONInvocation(t *testing.T) {
	fake := newFakeGo()
	fake.script("a.test", emit(packagePass))

	cp := classPlan("a.test", "TestX", "TestY")

	var cleanups atomic.Int32
	status := newTestWorker(t, fake, &cleanups).Run(context.Background(), runPlan(cp), 10*time.Second, &recordingSink{})
	require.Equal(t, types.RunStatusCompleted, status)

	calls := fake.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, []string{
		"tool", "test2json", "-t", "-p", "pkg", "/bin/a.test",
		"-test.v=test2json", "-test.count=1", "-test.run", "^(TestX|TestY)$",
	}, calls[0])
}

func TestWorkerCrashDoesNotAbortSiblings(t *testing.T) {
	fake := newFakeGo()
	fake.script("crash.test", script("echo 'segfault' >&2", "exit 2"))
	fake.script("ok.test", emit(runEvent("TestOK"), passEvent("TestOK"), packagePass))

	var cleanups atomic.Int32
	sink := &recordingSink{}
	status := newTestWorker(t, fake, &cleanups).Run(context.Background(), runPlan(classPlan("crash.test"), classPlan("ok.test")), 10*time.Second, sink)
	require.Equal(t, types.RunStatusCompleted, status)

	outcomes := sink.snapshot()
	require.Len(t, outcomes, 2)
	assert.Equal(t, "crash.test", outcomes[0].ID)
	assert.Equal(t, types.OutcomeErrored, outcomes[0].Status)
	assert.Equal(t, "segfault", outcomes[0].Failure.Message)
	assert.Equal(t, types.OutcomePassed, outcomes[1].Status)
}

func TestWorkerTimeout(t *testing.T) {
	fake := newFakeGo()
	fake.script("slow.test", script(
		emit(runEvent("TestFast"), passEvent("TestFast"), runEvent("TestSlow")),
		"exec sleep 30",
	))
	fake.script("never.test", emit(runEvent("TestNever"), passEvent("TestNever")))

	var cleanups atomic.Int32
	sink := &recordingSink{}
	// the gate mirrors the engine: cleanup closes it before the process dies
	gate := NewGate(sink)
	w := NewWorker(WorkerConfig{
		Log:        testlog.Logger(t, log.LevelInfo),
		CmdBuilder: fake.build,
		KillGrace:  100 * time.Millisecond,
		Cleanup: func() {
			gate.Close()
			cleanups.Add(1)
		},
	})

	start := time.Now()
	status := w.Run(context.Background(), runPlan(classPlan("slow.test"), classPlan("never.test")), 500*time.Millisecond, gate)
	elapsed := time.Since(start)

	assert.Equal(t, types.RunStatusTimedOut, status)
	assert.Less(t, elapsed, 5*time.Second, "Run must return once the budget expires")
	assert.Equal(t, int32(1), cleanups.Load())

	// give the cancelled process time to die and report
	time.Sleep(300 * time.Millisecond)
	outcomes := sink.snapshot()
	require.Len(t, outcomes, 1, "only outcomes observed before the timeout count")
	assert.Equal(t, "slow.test::TestFast", outcomes[0].ID)
	assert.Len(t, fake.recorded(), 1, "no class starts after cancellation")
}

func TestWorkerTimeoutDeliversHeldBackFailure(t *testing.T) {
	fake := newFakeGo()
	fake.script("hang.test", script(
		emit(runEvent("TestA"), outputEvent("TestA", "a_test.go:9: want 1, got 2"), failEvent("TestA")),
		"exec sleep 30",
	))

	sink := &recordingSink{}
	gate := NewGate(sink)
	w := NewWorker(WorkerConfig{
		Log:        testlog.Logger(t, log.LevelInfo),
		CmdBuilder: fake.build,
		KillGrace:  100 * time.Millisecond,
		Cleanup:    gate.Close,
	})

	status := w.Run(context.Background(), runPlan(classPlan("hang.test", "TestA")), 500*time.Millisecond, gate)
	assert.Equal(t, types.RunStatusTimedOut, status)

	// the failure was reported before the budget expired, so it must count
	outcomes := sink.snapshot()
	require.Len(t, outcomes, 1)
	assert.Equal(t, "hang.test::TestA", outcomes[0].ID)
	assert.Equal(t, types.OutcomeFailed, outcomes[0].Status)
	assert.Contains(t, outcomes[0].Failure.Message, "want 1, got 2")
}

func TestWorkerCallerCancellation(t *testing.T) {
	fake := newFakeGo()
	fake.script("slow.test", "exec sleep 30")

	var cleanups atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()
	status := newTestWorker(t, fake, &cleanups).Run(ctx, runPlan(classPlan("slow.test")), time.Minute, &recordingSink{})
	assert.Equal(t, types.RunStatusTimedOut, status)
	assert.Equal(t, int32(1), cleanups.Load())
}

type panickingSink struct {
	recordingSink
}

func (p *panickingSink) RunStarted(*plan.RunPlan) {
	panic("sink exploded")
}

func TestWorkerPanicIsContained(t *testing.T) {
	var cleanups atomic.Int32
	sink := &panickingSink{}
	status := newTestWorker(t, newFakeGo(), &cleanups).Run(context.Background(), runPlan(), time.Minute, sink)

	assert.Equal(t, types.RunStatusCompleted, status)
	assert.Equal(t, int32(1), cleanups.Load())
	outcomes := sink.snapshot()
	require.Len(t, outcomes, 1)
	assert.Equal(t, types.OutcomeErrored, outcomes[0].Status)
	assert.Equal(t, "worker panicked", outcomes[0].Failure.Message)
}
