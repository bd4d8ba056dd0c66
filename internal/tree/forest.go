package tree

import (
	"log/slog"
	"slices"
	"time"

	"github.com/roach88/treecep/internal/ir"
	"github.com/roach88/treecep/internal/plan"
)

// Resolver decides which nodes a pattern may share with nodes built for
// earlier patterns. A nil Resolver builds every node fresh.
type Resolver interface {
	// Resolve returns a node previously registered under sig.
	Resolve(kind Kind, sig string) (NodeID, bool)

	// Register records a freshly built node under sig.
	Register(kind Kind, sig string, id NodeID)

	// Reorder reports whether the two resolved children of a node should
	// be swapped before its signature is computed.
	Reorder(kind Kind, left, right NodeID) bool
}

// PatternInfo summarizes how a pattern was materialized.
type PatternInfo struct {
	Pattern *ir.Pattern
	Root    NodeID

	// Nodes is the size of the pattern's own tree.
	Nodes int

	// Shared counts the nodes of that tree reused from earlier patterns.
	Shared int
}

// Forest is an arena of evaluation nodes serving one or more patterns.
type Forest struct {
	nodes     []*Node
	patterns  []PatternInfo
	listeners map[string][]NodeID
	negations []NodeID

	maxPartialMatches int
	conflicts         int

	matches []ir.Match
}

// Option configures a Forest.
type Option func(*Forest)

// WithMaxPartialMatches bounds every node buffer. When a buffer exceeds n
// the partial match with the earliest start is dropped first. Zero means
// unbounded.
func WithMaxPartialMatches(n int) Option {
	return func(f *Forest) {
		f.maxPartialMatches = n
	}
}

// NewForest creates an empty forest.
func NewForest(opts ...Option) *Forest {
	f := &Forest{listeners: make(map[string][]NodeID)}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Node returns the node with the given ID.
func (f *Forest) Node(id NodeID) *Node {
	return f.nodes[id]
}

// Nodes returns every node in creation order.
func (f *Forest) Nodes() []*Node {
	return f.nodes
}

// Len returns the number of materialized nodes.
func (f *Forest) Len() int {
	return len(f.nodes)
}

// Patterns returns the patterns in the order they were added.
func (f *Forest) Patterns() []PatternInfo {
	return f.patterns
}

// SharedNodes returns the number of nodes reused across patterns: the
// nodes the patterns would have built independently minus the nodes
// actually materialized.
func (f *Forest) SharedNodes() int {
	total := 0
	for _, p := range f.patterns {
		total += p.Shared
	}
	return total
}

// Conflicts returns the number of signature collisions that were refused.
func (f *Forest) Conflicts() int {
	return f.conflicts
}

// Leaves returns every leaf in creation order.
func (f *Forest) Leaves() []*Node {
	var out []*Node
	for _, n := range f.nodes {
		if n.IsLeaf() {
			out = append(out, n)
		}
	}
	return out
}

// Listeners returns the leaves interested in an event type, in
// registration order.
func (f *Forest) Listeners(eventType string) []*Node {
	ids := f.listeners[eventType]
	out := make([]*Node, len(ids))
	for i, id := range ids {
		out[i] = f.nodes[id]
	}
	return out
}

// EventTypes returns the event types some leaf listens to, sorted.
func (f *Forest) EventTypes() []string {
	types := make([]string, 0, len(f.listeners))
	for t := range f.listeners {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}

// layout is the pattern-local shape of a tree before materialization.
type layout struct {
	kind        Kind
	item        int // leaf: declared index; negation: negated index
	left, right *layout
	defs        map[string]bool
	preds       ir.Condition
}

func (l *layout) covers(vars []string) bool {
	for _, v := range vars {
		if !l.defs[v] {
			return false
		}
	}
	return true
}

// lowest returns the deepest node whose definitions cover vars.
func (l *layout) lowest(vars []string) *layout {
	if l == nil || !l.covers(vars) {
		return nil
	}
	if c := l.left.lowest(vars); c != nil {
		return c
	}
	if c := l.right.lowest(vars); c != nil {
		return c
	}
	return l
}

func (l *layout) size() int {
	if l == nil {
		return 0
	}
	return 1 + l.left.size() + l.right.size()
}

// AddPattern materializes p over topo and attaches p's output to the
// resulting root. Nodes are resolved bottom-up through r; a node is only
// offered for sharing once both its children are resolved.
func (f *Forest) AddPattern(p *ir.Pattern, topo *plan.Topology, r Resolver) (PatternInfo, error) {
	if errs := p.Validate(); len(errs) > 0 {
		return PatternInfo{}, buildErrorf(CodeInvalidPattern, p.Name, "%s", errs.Error())
	}
	for _, info := range f.patterns {
		if info.Pattern.Name == p.Name {
			return PatternInfo{}, buildErrorf(CodeInvalidPattern, p.Name, "duplicate pattern name")
		}
	}
	if err := checkTopology(p, topo); err != nil {
		return PatternInfo{}, err
	}

	root := buildLayout(p, topo)
	if err := pushdown(p, root); err != nil {
		return PatternInfo{}, err
	}

	m := &materializer{forest: f, pattern: p, resolver: r, used: make(map[NodeID]bool)}
	id, positions := m.materialize(root)

	f.nodes[id].outputs = append(f.nodes[id].outputs, &output{pattern: p, positions: positions})

	info := PatternInfo{Pattern: p, Root: id, Nodes: root.size(), Shared: m.shared}
	f.patterns = append(f.patterns, info)

	slog.Debug("pattern added to forest",
		"pattern", p.Name,
		"topology", topo.String(),
		"nodes", info.Nodes,
		"shared", info.Shared,
	)
	return info, nil
}

// checkTopology requires the leaves of topo to be exactly the positive
// items of p, each once.
func checkTopology(p *ir.Pattern, topo *plan.Topology) error {
	if topo == nil {
		return buildErrorf(CodeMalformedTopology, p.Name, "topology is empty")
	}
	seen := make(map[int]bool)
	for _, i := range topo.Leaves() {
		switch {
		case i < 0 || i >= len(p.Items()):
			return buildErrorf(CodeMalformedTopology, p.Name, "leaf index %d out of range: pattern has %d events", i, len(p.Items()))
		case p.Item(i).Negated:
			return buildErrorf(CodeMalformedTopology, p.Name, "leaf index %d refers to negated event %q", i, p.Item(i).Ref.Name)
		case seen[i]:
			return buildErrorf(CodeMalformedTopology, p.Name, "leaf index %d appears more than once", i)
		}
		seen[i] = true
	}
	for _, i := range p.Positive() {
		if !seen[i] {
			return buildErrorf(CodeMalformedTopology, p.Name, "topology %s does not cover event %d (%q)", topo, i, p.Item(i).Ref.Name)
		}
	}
	return nil
}

// buildLayout mirrors topo and chains one negation node per negated item,
// in declared order, above the positive tree.
func buildLayout(p *ir.Pattern, topo *plan.Topology) *layout {
	kind := KindAnd
	if p.IsSequence() {
		kind = KindSeq
	}

	var build func(t *plan.Topology) *layout
	build = func(t *plan.Topology) *layout {
		if t.IsLeaf() {
			return leafLayout(p, t.Index)
		}
		l := &layout{kind: kind, left: build(t.Left), right: build(t.Right), defs: make(map[string]bool)}
		for name := range l.left.defs {
			l.defs[name] = true
		}
		for name := range l.right.defs {
			l.defs[name] = true
		}
		return l
	}

	root := build(topo)
	for _, i := range p.Negative() {
		neg := &layout{kind: KindNegation, item: i, left: root, right: leafLayout(p, i), defs: make(map[string]bool)}
		for name := range root.defs {
			neg.defs[name] = true
		}
		neg.defs[p.Item(i).Ref.Name] = true
		root = neg
	}
	return root
}

func leafLayout(p *ir.Pattern, i int) *layout {
	return &layout{kind: KindLeaf, item: i, defs: map[string]bool{p.Item(i).Ref.Name: true}}
}

// pushdown assigns each predicate to the lowest node able to evaluate it.
func pushdown(p *ir.Pattern, root *layout) error {
	negated := make(map[string]bool)
	for _, i := range p.Negative() {
		negated[p.Item(i).Ref.Name] = true
	}

	for _, pred := range p.Condition {
		vars := pred.Vars()
		count := 0
		for _, v := range vars {
			if negated[v] {
				count++
			}
		}
		if count > 1 {
			return buildErrorf(CodeInvalidPattern, p.Name, "predicate %s references more than one negated event", pred)
		}
		target := root.lowest(vars)
		if target == nil {
			return buildErrorf(CodeInvalidPattern, p.Name, "predicate %s references unknown bindings", pred)
		}
		target.preds = append(target.preds, pred)
	}
	return nil
}

// materializer turns one pattern's layout into forest nodes.
type materializer struct {
	forest   *Forest
	pattern  *ir.Pattern
	resolver Resolver
	used     map[NodeID]bool
	shared   int
}

// materialize returns the node for l and, for each of its slots, the
// declared index of the pattern item bound there.
func (m *materializer) materialize(l *layout) (NodeID, []int) {
	cand := &Node{Kind: l.kind, Left: None, Right: None, Window: m.pattern.Window, Condition: l.preds}
	var positions []int

	switch l.kind {
	case KindLeaf:
		ref := m.pattern.Item(l.item).Ref
		cand.EventType = ref.Type
		positions = []int{l.item}
	case KindNegation:
		left, lpos := m.materialize(l.left)
		right, _ := m.materialize(l.right)
		cand.Left, cand.Right = left, right
		cand.sequence = m.pattern.IsSequence()
		ref := m.pattern.Item(l.item).Ref
		cand.Negated = Slot{Name: ref.Name, Type: ref.Type, Position: l.item}
		positions = lpos
	default:
		left, lpos := m.materialize(l.left)
		right, rpos := m.materialize(l.right)
		if m.resolver != nil && m.resolver.Reorder(l.kind, left, right) {
			left, right = right, left
			lpos, rpos = rpos, lpos
		}
		cand.Left, cand.Right = left, right
		positions = append(slices.Clone(lpos), rpos...)
	}

	cand.Slots = make([]Slot, len(positions))
	for k, pos := range positions {
		ref := m.pattern.Item(pos).Ref
		cand.Slots[k] = Slot{Name: ref.Name, Type: ref.Type, Position: pos}
	}
	cand.Signature = signature(cand)

	if id, ok := m.resolve(cand); ok {
		m.used[id] = true
		m.shared++
		return id, positions
	}

	id := m.forest.add(cand, m.pattern.Name)
	m.used[id] = true
	if m.resolver != nil && cand.Signature != "" {
		m.resolver.Register(cand.Kind, cand.Signature, id)
	}
	return id, positions
}

// resolve looks up an equivalent node. A pattern never reuses a node it
// already uses, so its own tree stays a tree.
func (m *materializer) resolve(cand *Node) (NodeID, bool) {
	if m.resolver == nil || cand.Signature == "" {
		return None, false
	}
	id, ok := m.resolver.Resolve(cand.Kind, cand.Signature)
	if !ok || m.used[id] {
		return None, false
	}

	existing := m.forest.nodes[id]
	if !equivalent(existing, cand) {
		m.forest.conflicts++
		slog.Warn("refusing to share node",
			"code", CodeUnshareable,
			"pattern", m.pattern.Name,
			"node", id,
			"kind", cand.Kind,
		)
		return None, false
	}

	existing.Owners = append(existing.Owners, m.pattern.Name)
	m.forest.widen(id, cand.Window)
	slog.Debug("node shared",
		"pattern", m.pattern.Name,
		"node", id,
		"kind", cand.Kind,
	)
	return id, true
}

// equivalent double-checks a signature hit structurally.
func equivalent(a, b *Node) bool {
	if a.Kind != b.Kind || a.EventType != b.EventType || a.Left != b.Left || a.Right != b.Right {
		return false
	}
	if len(a.Slots) != len(b.Slots) || len(a.Condition) != len(b.Condition) {
		return false
	}
	if a.Kind == KindNegation && (a.Window != b.Window || a.sequence != b.sequence) {
		return false
	}
	for i := range a.Slots {
		if a.Slots[i].Type != b.Slots[i].Type {
			return false
		}
	}
	return true
}

// add appends n to the arena and links it to its children.
func (f *Forest) add(n *Node, owner string) NodeID {
	n.ID = NodeID(len(f.nodes))
	n.Owners = []string{owner}
	f.nodes = append(f.nodes, n)

	switch n.Kind {
	case KindLeaf:
		f.listeners[n.EventType] = append(f.listeners[n.EventType], n.ID)
	case KindNegation:
		f.negations = append(f.negations, n.ID)
		f.link(n.Left, n.ID, false)
		f.link(n.Right, n.ID, true)
		f.nodes[n.Right].negative = true
	default:
		f.link(n.Left, n.ID, true)
		f.link(n.Right, n.ID, true)
	}
	return n.ID
}

func (f *Forest) link(child, parent NodeID, reads bool) {
	c := f.nodes[child]
	c.Parents = append(c.Parents, parent)
	if reads {
		c.buffered = true
	}
}

// widen raises the window of id and its descendants to at least w.
func (f *Forest) widen(id NodeID, w time.Duration) {
	n := f.nodes[id]
	if n.Window >= w {
		return
	}
	n.Window = w
	if n.Left != None {
		f.widen(n.Left, w)
	}
	if n.Right != None {
		f.widen(n.Right, w)
	}
}
