package selection

import (
	"github.com/paraita/dspot/types"
)

// Passing drops candidates whose test did not pass in Report, then hands the
// survivors to Next. A nil Next keeps all survivors.
type Passing struct {
	Report *types.ExecutionReport
	Next   Selector
}

func (p Passing) Select(candidates []types.SelectionCandidate) []types.SelectionCandidate {
	var survivors []types.SelectionCandidate
	for _, c := range candidates {
		if p.passed(c) {
			survivors = append(survivors, c)
		}
	}
	if p.Next == nil {
		return survivors
	}
	return p.Next.Select(survivors)
}

func (p Passing) passed(c types.SelectionCandidate) bool {
	if p.Report == nil {
		return false
	}
	o, ok := p.Report.Outcome(c.Class, c.Name)
	return ok && o.Status == types.OutcomePassed
}
