package runner

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/log"

	"github.com/paraita/dspot/types"
)

// stateTracker walks a run through its state machine, rejecting illegal moves
type stateTracker struct {
	log log.Logger

	mu      sync.Mutex
	state   types.RunState
	history []types.RunState
}

func newStateTracker(logger log.Logger) *stateTracker {
	return &stateTracker{
		log:     logger,
		state:   types.StateIdle,
		history: []types.RunState{types.StateIdle},
	}
}

func (s *stateTracker) transition(to types.RunState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !types.CanTransition(s.state, to) {
		return fmt.Errorf("invalid run state transition %s -> %s", s.state, to)
	}
	s.log.Debug("Run state changed", "from", s.state, "to", to)
	s.state = to
	s.history = append(s.history, to)
	return nil
}

func (s *stateTracker) current() types.RunState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *stateTracker) path() []types.RunState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.RunState(nil), s.history...)
}
