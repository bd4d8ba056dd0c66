package tree

import (
	"github.com/roach88/treecep/internal/ir"
	"github.com/roach88/treecep/internal/plan"
)

// Tree is the evaluation tree of a single pattern.
type Tree struct {
	forest *Forest
	info   PatternInfo
}

// New builds the tree of p over topo. Conditions are pushed down to the
// lowest node able to evaluate them.
//
// Returns a *BuildError with CodeMalformedTopology when the topology's
// leaves are not exactly p's positive items.
func New(p *ir.Pattern, topo *plan.Topology, opts ...Option) (*Tree, error) {
	f := NewForest(opts...)
	info, err := f.AddPattern(p, topo, nil)
	if err != nil {
		return nil, err
	}
	return &Tree{forest: f, info: info}, nil
}

// Pattern returns the pattern the tree evaluates.
func (t *Tree) Pattern() *ir.Pattern {
	return t.info.Pattern
}

// Root returns the root node.
func (t *Tree) Root() *Node {
	return t.forest.Node(t.info.Root)
}

// Leaves returns the leaves in creation order.
func (t *Tree) Leaves() []*Node {
	return t.forest.Leaves()
}

// Nodes returns every node in creation order.
func (t *Tree) Nodes() []*Node {
	return t.forest.Nodes()
}

// Forest returns the underlying single-pattern forest.
func (t *Tree) Forest() *Forest {
	return t.forest
}

// Process feeds one event to the tree and returns the matches it completed.
func (t *Tree) Process(e *ir.Event) []ir.Match {
	return t.forest.Process(e)
}

// Flush returns the matches held back by negation at end of input.
func (t *Tree) Flush() []ir.Match {
	return t.forest.Flush()
}
