package runner

import (
	"time"

	"github.com/paraita/dspot/types"
)

const (
	DefaultClassTimeout  = 120 * time.Second
	DefaultMethodTimeout = 5 * time.Second
)

// TimeoutPolicy computes the wall-clock budget of a run from its method filter
type TimeoutPolicy struct {
	PerClass  time.Duration // budget of a run without method filter
	PerMethod time.Duration // budget granted per filtered method
}

// DefaultTimeoutPolicy returns the policy with the default budgets
func DefaultTimeoutPolicy() TimeoutPolicy {
	return TimeoutPolicy{
		PerClass:  DefaultClassTimeout,
		PerMethod: DefaultMethodTimeout,
	}
}

// withDefaults fills unset budgets with the defaults
func (p TimeoutPolicy) withDefaults() TimeoutPolicy {
	if p.PerClass <= 0 {
		p.PerClass = DefaultClassTimeout
	}
	if p.PerMethod <= 0 {
		p.PerMethod = DefaultMethodTimeout
	}
	return p
}

// Compute returns PerClass for an empty filter, otherwise
// max(len(filter) * PerMethod, PerClass). Duplicate names count once.
func (p TimeoutPolicy) Compute(methodFilter []string) time.Duration {
	n := len(types.DedupMethods(methodFilter))
	if n == 0 {
		return p.PerClass
	}
	return max(time.Duration(n)*p.PerMethod, p.PerClass)
}
