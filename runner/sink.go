package runner

import (
	"sync"

	"github.com/paraita/dspot/plan"
	"github.com/paraita/dspot/types"
)

// OutcomeSink receives the events of a run. Outcomes are delivered one at a
// time, in the order the worker observes them.
type OutcomeSink interface {
	RunStarted(p *plan.RunPlan)
	Outcome(outcome types.ExecutionOutcome)
	RunFinished(status types.RunStatus)
}

// MultiSink fans events out to several sinks in order
type MultiSink []OutcomeSink

func (m MultiSink) RunStarted(p *plan.RunPlan) {
	for _, s := range m {
		s.RunStarted(p)
	}
}

func (m MultiSink) Outcome(outcome types.ExecutionOutcome) {
	for _, s := range m {
		s.Outcome(outcome)
	}
}

func (m MultiSink) RunFinished(status types.RunStatus) {
	for _, s := range m {
		s.RunFinished(status)
	}
}

// Gate forwards events to the wrapped sink until it is closed. Once Close
// returns, no forwarding is in progress and every later event is dropped,
// which is how a timed-out run stops feeding its aggregator.
type Gate struct {
	mu     sync.Mutex
	sink   OutcomeSink
	closed bool
}

// NewGate wraps sink in an open gate
func NewGate(sink OutcomeSink) *Gate {
	return &Gate{sink: sink}
}

func (g *Gate) RunStarted(p *plan.RunPlan) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.closed {
		g.sink.RunStarted(p)
	}
}

func (g *Gate) Outcome(outcome types.ExecutionOutcome) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.closed {
		g.sink.Outcome(outcome)
	}
}

func (g *Gate) RunFinished(status types.RunStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.closed {
		g.sink.RunFinished(status)
	}
}

// Close stops forwarding
func (g *Gate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
}
