package types

// SelectionCandidate is a generated test function handed to a Selection
// strategy. Strategies filter and reorder candidates; they never modify them.
type SelectionCandidate struct {
	Name  string `json:"name"`  // Test function name, e.g. "TestParse_amplified3"
	Class string `json:"class"` // Owning package import path
	Body  string `json:"body"`  // Source of the function body
	File  string `json:"file,omitempty"`
}

// Key identifies the candidate inside a run
func (c SelectionCandidate) Key() string {
	return OutcomeID(c.Class, c.Name)
}
