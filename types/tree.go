package types

// NodeKind defines the kind of node in a description tree
type NodeKind string

const (
	NodeKindRoot   NodeKind = "root"   // Root container
	NodeKindClass  NodeKind = "class"  // One compiled test binary
	NodeKindMethod NodeKind = "method" // Individual test function
)

// TestDescriptionNode is a node of the hierarchical description of the tests
// available for a run. Leaves are test functions and never have children;
// containers may have any number of children.
type TestDescriptionNode struct {
	Name       string   // Display name
	Kind       NodeKind // Kind of node
	ClassName  string   // Owning class, empty for the root
	MethodName string   // Test function name, only set on leaves
	Children   []*TestDescriptionNode
}

// NewContainer creates a container node with the given children
func NewContainer(kind NodeKind, name, className string, children ...*TestDescriptionNode) *TestDescriptionNode {
	return &TestDescriptionNode{
		Name:      name,
		Kind:      kind,
		ClassName: className,
		Children:  children,
	}
}

// NewLeaf creates a test leaf for a method of a class
func NewLeaf(className, methodName string) *TestDescriptionNode {
	return &TestDescriptionNode{
		Name:       OutcomeID(className, methodName),
		Kind:       NodeKindMethod,
		ClassName:  className,
		MethodName: methodName,
	}
}

// IsTest reports whether the node is a test leaf
func (n *TestDescriptionNode) IsTest() bool {
	return n.Kind == NodeKindMethod
}

// Walk traverses the tree depth-first, calling visitor for each node.
// Returning false from visitor skips the node's children.
func (n *TestDescriptionNode) Walk(visitor func(*TestDescriptionNode) bool) {
	if n == nil || !visitor(n) {
		return
	}
	for _, child := range n.Children {
		child.Walk(visitor)
	}
}

// Leaves returns all test leaves under this node in tree order
func (n *TestDescriptionNode) Leaves() []*TestDescriptionNode {
	var leaves []*TestDescriptionNode
	n.Walk(func(node *TestDescriptionNode) bool {
		if node.IsTest() {
			leaves = append(leaves, node)
		}
		return true
	})
	return leaves
}

// TestCount returns the number of test leaves under this node
func (n *TestDescriptionNode) TestCount() int {
	if n == nil {
		return 0
	}
	if n.IsTest() {
		return 1
	}
	count := 0
	for _, child := range n.Children {
		count += child.TestCount()
	}
	return count
}
