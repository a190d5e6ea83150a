// Package selection decides which generated test variants are worth keeping.
//
// Every strategy implements Selector. A selector only filters: its output is
// a subsequence of its input and candidates are never modified, so strategies
// can be chained and swapped without touching callers.
package selection

import (
	"fmt"
	"sort"

	"github.com/paraita/dspot/types"
)

// Selector keeps a subset of candidates
type Selector interface {
	Select(candidates []types.SelectionCandidate) []types.SelectionCandidate
}

// SelectorFunc adapts a function to the Selector interface
type SelectorFunc func([]types.SelectionCandidate) []types.SelectionCandidate

func (f SelectorFunc) Select(candidates []types.SelectionCandidate) []types.SelectionCandidate {
	return f(candidates)
}

const (
	StrategyAll       = "all"
	StrategyRandom    = "random"
	StrategyDiversity = "diversity"

	DefaultRatio     = 0.5
	DefaultThreshold = 0.8
)

// Options parameterize the strategies built by New. A zero Ratio and a nil
// Threshold select the defaults; 0 is a valid threshold.
type Options struct {
	Seed      uint64   // random: seed of the generator
	Ratio     float64  // random: share of candidates kept, in (0, 1]
	Threshold *float64 // diversity: similarity at or above which a candidate is dropped
}

var strategies = map[string]func(Options) (Selector, error){
	StrategyAll: func(Options) (Selector, error) {
		return AllPass{}, nil
	},
	StrategyRandom: func(o Options) (Selector, error) {
		if o.Ratio == 0 {
			o.Ratio = DefaultRatio
		}
		if o.Ratio < 0 || o.Ratio > 1 {
			return nil, fmt.Errorf("random ratio must be in (0, 1], got %v", o.Ratio)
		}
		return Random{Seed: o.Seed, Ratio: o.Ratio}, nil
	},
	StrategyDiversity: func(o Options) (Selector, error) {
		threshold := DefaultThreshold
		if o.Threshold != nil {
			threshold = *o.Threshold
		}
		if threshold < 0 || threshold > 1 {
			return nil, fmt.Errorf("diversity threshold must be in [0, 1], got %v", threshold)
		}
		return Diversity{Threshold: threshold}, nil
	},
}

// New resolves a strategy by name
func New(name string, opts Options) (Selector, error) {
	build, ok := strategies[name]
	if !ok {
		return nil, fmt.Errorf("unknown selection strategy %q (available: %v)", name, Names())
	}
	return build(opts)
}

// Names lists the strategies New knows about
func Names() []string {
	names := make([]string, 0, len(strategies))
	for name := range strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsSubsequence reports whether out can be obtained from in by removing
// elements, without reordering or altering the remaining ones
func IsSubsequence(in, out []types.SelectionCandidate) bool {
	i := 0
	for _, o := range out {
		for i < len(in) && in[i] != o {
			i++
		}
		if i == len(in) {
			return false
		}
		i++
	}
	return true
}

// AllPass keeps every candidate
type AllPass struct{}

func (AllPass) Select(candidates []types.SelectionCandidate) []types.SelectionCandidate {
	return append([]types.SelectionCandidate(nil), candidates...)
}
