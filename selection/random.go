package selection

import (
	"math"
	"math/rand/v2"
	"slices"

	"github.com/paraita/dspot/types"
)

// Random keeps a seeded random share of the candidates. The same seed and
// input always give the same output, which keeps input order.
type Random struct {
	Seed  uint64
	Ratio float64
}

func (r Random) Select(candidates []types.SelectionCandidate) []types.SelectionCandidate {
	n := len(candidates)
	if n == 0 {
		return nil
	}
	k := int(math.Ceil(float64(n) * r.Ratio))
	k = min(max(k, 0), n)

	rng := rand.New(rand.NewPCG(r.Seed, r.Seed^0x9e3779b97f4a7c15))
	picked := rng.Perm(n)[:k]
	slices.Sort(picked)

	out := make([]types.SelectionCandidate, 0, k)
	for _, i := range picked {
		out = append(out, candidates[i])
	}
	return out
}
