package tree

import (
	"cmp"
	"slices"
	"time"

	"github.com/roach88/treecep/internal/ir"
)

// Process routes one event through the forest and returns the matches it
// completed, in completion order. Events must arrive in non-decreasing
// timestamp order. Events of types no leaf listens to are ignored.
func (f *Forest) Process(e *ir.Event) []ir.Match {
	now := e.Timestamp

	// Held partial matches whose forbidden interval ended before this
	// event cannot be invalidated by it; they complete first.
	for _, id := range f.negations {
		f.advance(f.nodes[id], now)
	}

	for _, id := range f.listeners[e.Type] {
		f.handleLeaf(f.nodes[id], e)
	}

	for _, n := range f.nodes {
		if n.buffered {
			n.evict(now)
		}
	}
	return f.drain()
}

// Flush completes every held partial match. Call it once the input has
// ended.
func (f *Forest) Flush() []ir.Match {
	for _, id := range f.negations {
		n := f.nodes[id]
		pending := n.pending
		n.pending = nil
		for _, pm := range pending {
			f.emit(n, pm)
		}
	}
	return f.drain()
}

// Reset clears every buffer, keeping the structure.
func (f *Forest) Reset() {
	for _, n := range f.nodes {
		n.buffer = nil
		n.pending = nil
	}
	f.matches = nil
}

func (f *Forest) drain() []ir.Match {
	out := f.matches
	f.matches = nil
	return out
}

func (f *Forest) handleLeaf(n *Node, e *ir.Event) {
	n.evict(e.Timestamp)
	if len(n.Condition) > 0 && !n.Condition.Eval(ir.Binding{n.Slots[0].Name: e}) {
		return
	}
	f.emit(n, newPartialMatch(e))
}

// emit buffers pm if a parent reads n's buffer, completes the patterns
// rooted at n and notifies every parent.
func (f *Forest) emit(n *Node, pm *PartialMatch) {
	if n.buffered {
		n.store(pm, f.maxPartialMatches)
	}
	for _, out := range n.outputs {
		f.complete(out, pm)
	}
	for _, pid := range n.Parents {
		parent := f.nodes[pid]
		switch parent.Kind {
		case KindSeq, KindAnd:
			f.join(parent, n.ID, pm)
		case KindNegation:
			if n.ID == parent.Left {
				f.admit(parent, pm)
			} else {
				f.forbid(parent, pm.Events[0])
			}
		}
	}
}

// join combines pm, new at child from, with every partial match buffered
// at the other child.
func (f *Forest) join(n *Node, from NodeID, pm *PartialMatch) {
	fromLeft := from == n.Left
	sibling := f.nodes[n.Left]
	if fromLeft {
		sibling = f.nodes[n.Right]
	}

	for _, other := range sibling.buffer {
		left, right := other, pm
		if fromLeft {
			left, right = pm, other
		}
		if overlaps(left, right) {
			continue
		}
		joined := combine(left, right)
		if joined.Span() > n.Window {
			continue
		}
		if n.Kind == KindSeq && !inOrder(n, left, right) {
			continue
		}
		if len(n.Condition) > 0 && !n.Condition.Eval(n.binding(joined.Events)) {
			continue
		}
		f.emit(n, joined)
	}
}

// notAfter reports whether a may precede b. Equal timestamps satisfy the
// order either way, whatever the arrival order.
func notAfter(a, b *ir.Event) bool {
	return !a.Timestamp.After(b.Timestamp)
}

// inOrder checks that every pair of events across the two sides occurs in
// the order their items were declared.
func inOrder(n *Node, left, right *PartialMatch) bool {
	split := len(left.Events)
	for i, le := range left.Events {
		for j, re := range right.Events {
			if n.Slots[i].Position < n.Slots[split+j].Position {
				if !notAfter(le, re) {
					return false
				}
			} else if !notAfter(re, le) {
				return false
			}
		}
	}
	return true
}

// admit passes a positive partial match through a negation node, holds it
// while its forbidden interval is still open, or drops it.
func (f *Forest) admit(n *Node, pm *PartialMatch) {
	for _, neg := range f.nodes[n.Right].buffer {
		if forbids(n, pm, neg.Events[0]) {
			return
		}
	}
	if _, _, bounded := forbiddenInterval(n, pm); !bounded {
		n.pending = append(n.pending, pm)
		return
	}
	f.emit(n, pm)
}

// forbid drops held partial matches invalidated by a negated event.
func (f *Forest) forbid(n *Node, e *ir.Event) {
	if len(n.pending) == 0 {
		return
	}
	kept := make([]*PartialMatch, 0, len(n.pending))
	for _, pm := range n.pending {
		if !forbids(n, pm, e) {
			kept = append(kept, pm)
		}
	}
	n.pending = kept
}

// advance completes held partial matches whose forbidden interval ended
// before now.
func (f *Forest) advance(n *Node, now time.Time) {
	if len(n.pending) == 0 {
		return
	}
	var ready, kept []*PartialMatch
	for _, pm := range n.pending {
		if now.After(pm.Earliest.Add(n.Window)) {
			ready = append(ready, pm)
		} else {
			kept = append(kept, pm)
		}
	}
	n.pending = kept
	for _, pm := range ready {
		f.emit(n, pm)
	}
}

// bound is one end of a forbidden interval. An end set by a positive
// event excludes that event's timestamp; an end set by the window
// includes it.
type bound struct {
	at        time.Time
	inclusive bool
}

// forbiddenInterval returns where a negated event invalidates pm. For a
// sequence the interval lies between the nearest positive events declared
// before and after the negated item; a missing neighbour is replaced by the
// window. For a conjunction it is the whole window around pm. bounded is
// false when the upper end comes from the window, which means the interval
// may still be open.
func forbiddenInterval(n *Node, pm *PartialMatch) (lo bound, hi bound, bounded bool) {
	lo = bound{at: pm.Latest.Add(-n.Window), inclusive: true}
	hi = bound{at: pm.Earliest.Add(n.Window), inclusive: true}
	if !n.sequence {
		return lo, hi, false
	}

	prev, next := -1, -1
	for k, s := range n.Slots {
		switch {
		case s.Position < n.Negated.Position:
			if prev < 0 || s.Position > n.Slots[prev].Position {
				prev = k
			}
		case s.Position > n.Negated.Position:
			if next < 0 || s.Position < n.Slots[next].Position {
				next = k
			}
		}
	}
	if prev >= 0 {
		lo = bound{at: pm.Events[prev].Timestamp}
	}
	if next >= 0 {
		hi = bound{at: pm.Events[next].Timestamp}
		return lo, hi, true
	}
	return lo, hi, false
}

func (b bound) below(t time.Time) bool {
	return b.at.Before(t) || (b.inclusive && b.at.Equal(t))
}

func (b bound) above(t time.Time) bool {
	return b.at.After(t) || (b.inclusive && b.at.Equal(t))
}

// forbids reports whether negated event e invalidates pm at negation n.
func forbids(n *Node, pm *PartialMatch, e *ir.Event) bool {
	for _, own := range pm.Events {
		if own == e {
			return false
		}
	}
	lo, hi, _ := forbiddenInterval(n, pm)
	if !lo.below(e.Timestamp) || !hi.above(e.Timestamp) {
		return false
	}
	if len(n.Condition) == 0 {
		return true
	}
	b := n.binding(pm.Events)
	b[n.Negated.Name] = e
	return n.Condition.Eval(b)
}

// complete turns a root partial match into a match of out's pattern after
// checking the pattern's own window.
func (f *Forest) complete(out *output, pm *PartialMatch) {
	if pm.Span() > out.pattern.Window {
		return
	}
	type placed struct {
		pos   int
		event *ir.Event
	}
	ordered := make([]placed, len(pm.Events))
	for k, e := range pm.Events {
		ordered[k] = placed{pos: out.positions[k], event: e}
	}
	slices.SortFunc(ordered, func(a, b placed) int { return cmp.Compare(a.pos, b.pos) })

	events := make([]ir.BoundEvent, len(ordered))
	for i, pl := range ordered {
		events[i] = ir.BoundEvent{Name: out.pattern.Item(pl.pos).Ref.Name, Event: pl.event}
	}
	f.matches = append(f.matches, ir.Match{Pattern: out.pattern.Name, Events: events})
}
