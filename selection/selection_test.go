package selection

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paraita/dspot/types"
)

func candidates(n int) []types.SelectionCandidate {
	out := make([]types.SelectionCandidate, n)
	for i := range out {
		out[i] = types.SelectionCandidate{
			Name:  fmt.Sprintf("TestParse_amplified%d", i),
			Class: "example.com/calc",
			Body:  fmt.Sprintf("got := Parse(%q)\nif got != %d {\n\tt.Fatal(got)\n}", fmt.Sprint(i*7), i*7),
		}
	}
	return out
}

func TestNew(t *testing.T) {
	for _, name := range Names() {
		s, err := New(name, Options{})
		require.NoError(t, err, name)
		require.NotNil(t, s)
	}

	_, err := New("novelty", Options{})
	assert.ErrorContains(t, err, "unknown selection strategy")
	_, err = New(StrategyRandom, Options{Ratio: 1.5})
	assert.Error(t, err)
	negative := -0.1
	_, err = New(StrategyDiversity, Options{Threshold: &negative})
	assert.Error(t, err)

	s, err := New(StrategyRandom, Options{})
	require.NoError(t, err)
	assert.Equal(t, Random{Ratio: DefaultRatio}, s)
}

func TestNewDiversityThreshold(t *testing.T) {
	s, err := New(StrategyDiversity, Options{})
	require.NoError(t, err)
	assert.Equal(t, Diversity{Threshold: DefaultThreshold}, s)

	zero := 0.0
	s, err = New(StrategyDiversity, Options{Threshold: &zero})
	require.NoError(t, err)
	assert.Equal(t, Diversity{Threshold: 0}, s, "an explicit zero is not replaced by the default")
	assert.Len(t, s.Select(candidates(5)), 1)
}

func TestSelectorsReturnSubsequences(t *testing.T) {
	in := candidates(25)
	original := append([]types.SelectionCandidate(nil), in...)

	selectors := map[string]Selector{
		"all":         AllPass{},
		"random":      Random{Seed: 42, Ratio: 0.3},
		"random-all":  Random{Seed: 7, Ratio: 1},
		"diversity":   Diversity{Threshold: 0.5},
		"passing-nil": Passing{},
	}
	for name, s := range selectors {
		t.Run(name, func(t *testing.T) {
			out := s.Select(in)
			assert.True(t, IsSubsequence(in, out), "output must be a subsequence of the input")
			assert.Equal(t, original, in, "input must not be modified")
		})
	}
}

func TestDeterministicSelectorsAreIdempotent(t *testing.T) {
	in := candidates(40)
	for _, s := range []Selector{AllPass{}, Random{Seed: 3, Ratio: 0.25}, Diversity{Threshold: 0.7}} {
		assert.Equal(t, s.Select(in), s.Select(in), "%T", s)
	}
}

func TestRandom(t *testing.T) {
	in := candidates(10)

	out := Random{Seed: 1, Ratio: 0.5}.Select(in)
	assert.Len(t, out, 5)

	assert.Len(t, Random{Seed: 1, Ratio: 0.01}.Select(in), 1, "at least one candidate survives a positive ratio")
	assert.Equal(t, in, Random{Seed: 1, Ratio: 1}.Select(in))
	assert.Empty(t, Random{Seed: 1, Ratio: 0.5}.Select(nil))

	a := Random{Seed: 1, Ratio: 0.5}.Select(candidates(100))
	b := Random{Seed: 2, Ratio: 0.5}.Select(candidates(100))
	assert.NotEqual(t, a, b, "different seeds pick different candidates")
}

func TestDiversity(t *testing.T) {
	in := []types.SelectionCandidate{
		{Name: "TestA", Body: `x := Add(1, 2); assert.Equal(t, 3, x)`},
		{Name: "TestA_dup", Body: `x := Add(1, 2); assert.Equal(t, 3, x)`},
		{Name: "TestB", Body: `s := NewStack(); s.Push("a"); require.Len(t, s.Items(), 1)`},
	}

	out := Diversity{Threshold: 0.9}.Select(in)
	require.Len(t, out, 2)
	assert.Equal(t, "TestA", out[0].Name)
	assert.Equal(t, "TestB", out[1].Name)

	assert.Len(t, Diversity{Threshold: 0}.Select(in), 1, "a zero threshold keeps only the first candidate")
}

func TestTokenizeAndJaccard(t *testing.T) {
	a := tokenize(`x := Add(1, 2)`)
	b := tokenize(`x := Add(1, 3)`)
	assert.Contains(t, a, "INT:2")
	assert.NotContains(t, a, "INT:3")
	assert.InDelta(t, 1.0, jaccard(a, a), 1e-9)
	assert.Greater(t, jaccard(a, b), 0.5)
	assert.Less(t, jaccard(a, b), 1.0)
	assert.Equal(t, 1.0, jaccard(map[string]struct{}{}, map[string]struct{}{}))
}

func TestPassing(t *testing.T) {
	in := candidates(4)
	report := &types.ExecutionReport{Outcomes: []types.ExecutionOutcome{
		{ID: types.OutcomeID(in[0].Class, in[0].Name), Status: types.OutcomePassed},
		{ID: types.OutcomeID(in[1].Class, in[1].Name), Status: types.OutcomeFailed},
		{ID: types.OutcomeID(in[2].Class, in[2].Name), Status: types.OutcomePassed},
		// in[3] never reported
	}}

	out := Passing{Report: report}.Select(in)
	assert.Equal(t, []types.SelectionCandidate{in[0], in[2]}, out)

	var seen []types.SelectionCandidate
	next := SelectorFunc(func(c []types.SelectionCandidate) []types.SelectionCandidate {
		seen = c
		return c[:1]
	})
	out = Passing{Report: report, Next: next}.Select(in)
	assert.Equal(t, []types.SelectionCandidate{in[0], in[2]}, seen)
	assert.Equal(t, []types.SelectionCandidate{in[0]}, out)
}

func TestIsSubsequence(t *testing.T) {
	in := candidates(3)
	assert.True(t, IsSubsequence(in, nil))
	assert.True(t, IsSubsequence(in, []types.SelectionCandidate{in[0], in[2]}))
	assert.False(t, IsSubsequence(in, []types.SelectionCandidate{in[2], in[0]}), "reordering")
	assert.False(t, IsSubsequence(in, []types.SelectionCandidate{in[0], in[0]}), "duplication")

	changed := in[1]
	changed.Body = "mutated"
	assert.False(t, IsSubsequence(in, []types.SelectionCandidate{changed}), "mutation")
}

func TestDiversityWithoutBodies(t *testing.T) {
	in := []types.SelectionCandidate{
		{Name: "TestA", Class: "a.test"},
		{Name: "TestB", Class: "a.test"},
		{Name: "TestA", Class: "b.test"},
	}
	out := Diversity{Threshold: 0.8}.Select(in)
	assert.Equal(t, in[:2], out)
}
