// Package plan turns loaded test binaries into a filtered execution plan.
package plan

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/paraita/dspot/loader"
	"github.com/paraita/dspot/types"
)

// RootName is the display name of the root container of every description tree
const RootName = "all"

// ClassPlan is the part of a plan that runs in one binary
type ClassPlan struct {
	Class   *loader.LoadedClass
	Methods []string // included test functions, in tree order
}

// RunPattern returns the -test.run expression selecting exactly the included
// methods. It is anchored even for an unfiltered plan: a binary without
// -test.run also runs its examples and fuzz seed corpora.
func (cp ClassPlan) RunPattern() string {
	quoted := make([]string, len(cp.Methods))
	for i, m := range cp.Methods {
		quoted[i] = regexp.QuoteMeta(m)
	}
	return fmt.Sprintf("^(%s)$", strings.Join(quoted, "|"))
}

// RunPlan is the filtered view of the description tree that the worker executes
type RunPlan struct {
	Root     *types.TestDescriptionNode // filtered tree
	Classes  []ClassPlan                // classes with at least one included test
	Filter   []string                   // deduplicated method filter, empty when unfiltered
	Filtered bool
}

// TestCount returns the number of tests the plan selects
func (p *RunPlan) TestCount() int {
	return p.Root.TestCount()
}

// Empty reports whether the plan selects no test at all
func (p *RunPlan) Empty() bool {
	return p.TestCount() == 0
}

// Describe builds the description tree root -> class -> method for the loaded classes
func Describe(classes []*loader.LoadedClass) *types.TestDescriptionNode {
	root := types.NewContainer(types.NodeKindRoot, RootName, "")
	for _, class := range classes {
		className := string(class.Name)
		classNode := types.NewContainer(types.NodeKindClass, className, className)
		for _, method := range class.Methods {
			classNode.Children = append(classNode.Children, types.NewLeaf(className, method))
		}
		root.Children = append(root.Children, classNode)
	}
	return root
}

// Build creates the plan for the classes. With an empty filter every test of
// every class is included; otherwise only leaves whose method name is in the
// filter, and the containers above them.
func Build(classes []*loader.LoadedClass, methodFilter []string) *RunPlan {
	tree := Describe(classes)
	filter := types.DedupMethods(methodFilter)

	if len(filter) == 0 {
		p := &RunPlan{Root: tree}
		for _, class := range classes {
			if len(class.Methods) == 0 {
				continue
			}
			p.Classes = append(p.Classes, ClassPlan{
				Class:   class,
				Methods: append([]string(nil), class.Methods...),
			})
		}
		return p
	}

	mf := newMethodFilter(filter)
	root := mf.apply(tree)
	if root == nil {
		root = types.NewContainer(types.NodeKindRoot, RootName, "")
	}

	p := &RunPlan{Root: root, Filter: filter, Filtered: true}
	byName := make(map[string]*loader.LoadedClass, len(classes))
	for _, class := range classes {
		byName[string(class.Name)] = class
	}
	for _, classNode := range root.Children {
		methods := make([]string, 0, len(classNode.Children))
		for _, leaf := range classNode.Leaves() {
			methods = append(methods, leaf.MethodName)
		}
		p.Classes = append(p.Classes, ClassPlan{
			Class:   byName[classNode.ClassName],
			Methods: methods,
		})
	}
	return p
}
