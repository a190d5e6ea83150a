package plan

import "github.com/paraita/dspot/types"

// methodFilter keeps the leaves whose method name is in the set. Containers
// have no inclusion rule of their own: they are kept iff a descendant is.
type methodFilter struct {
	methods map[string]struct{}
}

func newMethodFilter(methods []string) *methodFilter {
	set := make(map[string]struct{}, len(methods))
	for _, m := range methods {
		set[m] = struct{}{}
	}
	return &methodFilter{methods: set}
}

// shouldRun is evaluated per node on every call, nothing is cached
func (f *methodFilter) shouldRun(node *types.TestDescriptionNode) bool {
	if node.IsTest() {
		_, ok := f.methods[node.MethodName]
		return ok
	}
	for _, child := range node.Children {
		if f.shouldRun(child) {
			return true
		}
	}
	return false
}

// apply returns a filtered copy of the tree, or nil when nothing under node runs.
// The input tree is left untouched.
func (f *methodFilter) apply(node *types.TestDescriptionNode) *types.TestDescriptionNode {
	if !f.shouldRun(node) {
		return nil
	}
	if node.IsTest() {
		leaf := *node
		return &leaf
	}
	filtered := types.NewContainer(node.Kind, node.Name, node.ClassName)
	for _, child := range node.Children {
		if kept := f.apply(child); kept != nil {
			filtered.Children = append(filtered.Children, kept)
		}
	}
	return filtered
}

