package runner

import (
	"slices"
	"sync"
	"time"

	"github.com/paraita/dspot/plan"
	"github.com/paraita/dspot/types"
)

// Collector aggregates the outcomes of one run. It is safe for concurrent use
// and can be sealed at any point: outcomes arriving afterwards are dropped so
// that the report of a timed-out run only holds what was observed in time.
type Collector struct {
	runID string

	mu       sync.Mutex
	started  time.Time
	plan     *plan.RunPlan
	outcomes []types.ExecutionOutcome
	counts   types.OutcomeCounts
	sealed   bool
	status   types.RunStatus
	dropped  int
}

// NewCollector creates an empty collector for a run
func NewCollector(runID string) *Collector {
	return &Collector{runID: runID, started: time.Now()}
}

func (c *Collector) RunStarted(p *plan.RunPlan) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.plan = p
}

func (c *Collector) Outcome(outcome types.ExecutionOutcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sealed {
		c.dropped++
		return
	}
	c.outcomes = append(c.outcomes, outcome)
	c.counts.Add(outcome.Status)
}

// RunFinished records the terminal status and seals the collector
func (c *Collector) RunFinished(status types.RunStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = status
	c.sealed = true
}

// Seal freezes the collected outcomes
func (c *Collector) Seal() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sealed = true
}

// Dropped returns how many outcomes arrived after the collector was sealed
func (c *Collector) Dropped() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

// Count returns the number of collected outcomes
func (c *Collector) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.outcomes)
}

// Report returns a copy of the collected outcomes. A status passed here wins
// over the one recorded by RunFinished.
func (c *Collector) Report(status types.RunStatus, req types.ExecutionRequest, budget time.Duration) *types.ExecutionReport {
	c.mu.Lock()
	defer c.mu.Unlock()
	if status == "" {
		status = c.status
	}
	planned := 0
	if c.plan != nil {
		planned = c.plan.TestCount()
	}
	return &types.ExecutionReport{
		RunID:    c.runID,
		Planned:  planned,
		Status:   status,
		Classes:  slices.Clone(req.Classes),
		Methods:  req.MethodSet(),
		Outcomes: slices.Clone(c.outcomes),
		Counts:   c.counts,
		Budget:   budget,
		Duration: time.Since(c.started),
	}
}
