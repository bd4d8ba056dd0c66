package tree

import (
	"fmt"
	"time"

	"github.com/roach88/treecep/internal/ir"
)

// NodeID indexes a node in its forest's arena.
type NodeID int

// None marks an absent child.
const None NodeID = -1

// Kind tags the node variant.
type Kind int

const (
	// KindLeaf binds one primitive event.
	KindLeaf Kind = iota + 1
	// KindSeq joins two subtrees whose events must respect declared order.
	KindSeq
	// KindAnd joins two subtrees in any order.
	KindAnd
	// KindNegation passes partial matches of its left subtree unless an
	// event from its right leaf occurs in the forbidden interval.
	KindNegation
)

func (k Kind) String() string {
	switch k {
	case KindLeaf:
		return "leaf"
	case KindSeq:
		return "seq"
	case KindAnd:
		return "and"
	case KindNegation:
		return "not"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Slot is one position of a node's partial matches: the binding name and
// event type under which the creating pattern declared it, and its
// declared index in that pattern.
type Slot struct {
	Name     string
	Type     string
	Position int
}

// Node is one vertex of an evaluation tree.
type Node struct {
	ID   NodeID
	Kind Kind

	// EventType is the matched type of a leaf.
	EventType string

	Left  NodeID
	Right NodeID

	// Parents are back-references used for bottom-up notification.
	Parents []NodeID

	// Slots describe the events of every partial match at this node.
	// A negation node has its left child's slots.
	Slots []Slot

	// Negated is the forbidden item of a negation node.
	Negated Slot

	// Window bounds the span of partial matches. A shared node runs with
	// the widest window of the patterns using it.
	Window time.Duration

	// Condition holds the predicates pushed down to this node.
	Condition ir.Condition

	// Signature identifies equivalent nodes across patterns. Empty when
	// the node holds an opaque predicate.
	Signature string

	// Owners lists the patterns whose trees contain this node.
	Owners []string

	sequence bool // negation: the pattern is a sequence
	buffered bool // some parent reads this node's buffer
	negative bool // right child of a negation node

	buffer  []*PartialMatch
	pending []*PartialMatch
	outputs []*output
}

// IsLeaf reports whether n is a leaf.
func (n *Node) IsLeaf() bool {
	return n.Kind == KindLeaf
}

// IsRoot reports whether n completes at least one pattern.
func (n *Node) IsRoot() bool {
	return len(n.outputs) > 0
}

// Definitions returns the event references visible beneath n.
func (n *Node) Definitions() []ir.EventRef {
	defs := make([]ir.EventRef, 0, len(n.Slots)+1)
	for _, s := range n.Slots {
		defs = append(defs, ir.EventRef{Type: s.Type, Name: s.Name})
	}
	if n.Kind == KindNegation {
		defs = append(defs, ir.EventRef{Type: n.Negated.Type, Name: n.Negated.Name})
	}
	return defs
}

// Buffered returns the partial matches currently held by n.
func (n *Node) Buffered() []*PartialMatch {
	return n.buffer
}

// Pending returns the partial matches a negation node is holding until
// its forbidden interval has passed.
func (n *Node) Pending() []*PartialMatch {
	return n.pending
}

func (n *Node) binding(events []*ir.Event) ir.Binding {
	b := make(ir.Binding, len(events)+1)
	for i, e := range events {
		b[n.Slots[i].Name] = e
	}
	return b
}

// horizon is how far back the buffer is kept. Negated events are kept
// for two windows because a partial match may reach a negation node
// after an earlier negation node held it for up to one window.
func (n *Node) horizon() time.Duration {
	if n.negative {
		return 2 * n.Window
	}
	return n.Window
}

// evict drops buffered partial matches that started before now minus
// the horizon. The buffer is replaced, never modified in place.
func (n *Node) evict(now time.Time) {
	cutoff := now.Add(-n.horizon())
	first := -1
	for i, pm := range n.buffer {
		if pm.Earliest.Before(cutoff) {
			first = i
			break
		}
	}
	if first < 0 {
		return
	}
	kept := make([]*PartialMatch, 0, len(n.buffer)-1)
	kept = append(kept, n.buffer[:first]...)
	for _, pm := range n.buffer[first+1:] {
		if !pm.Earliest.Before(cutoff) {
			kept = append(kept, pm)
		}
	}
	n.buffer = kept
}

// store buffers pm. When limit is positive and exceeded, the partial
// match with the earliest start is dropped.
func (n *Node) store(pm *PartialMatch, limit int) {
	n.evict(pm.Latest)
	n.buffer = append(n.buffer, pm)
	if limit <= 0 || len(n.buffer) <= limit {
		return
	}
	drop := 0
	for i, b := range n.buffer {
		if b.Earliest.Before(n.buffer[drop].Earliest) {
			drop = i
		}
	}
	kept := make([]*PartialMatch, 0, len(n.buffer)-1)
	kept = append(kept, n.buffer[:drop]...)
	n.buffer = append(kept, n.buffer[drop+1:]...)
}

// PartialMatch is a set of events accepted by a node, in the node's slot
// order, with the earliest and latest timestamps among them.
type PartialMatch struct {
	Events   []*ir.Event
	Earliest time.Time
	Latest   time.Time
}

func newPartialMatch(e *ir.Event) *PartialMatch {
	return &PartialMatch{Events: []*ir.Event{e}, Earliest: e.Timestamp, Latest: e.Timestamp}
}

// combine concatenates two partial matches.
func combine(left, right *PartialMatch) *PartialMatch {
	events := make([]*ir.Event, 0, len(left.Events)+len(right.Events))
	events = append(events, left.Events...)
	events = append(events, right.Events...)
	pm := &PartialMatch{Events: events, Earliest: left.Earliest, Latest: left.Latest}
	if right.Earliest.Before(pm.Earliest) {
		pm.Earliest = right.Earliest
	}
	if right.Latest.After(pm.Latest) {
		pm.Latest = right.Latest
	}
	return pm
}

// overlaps reports whether two partial matches share an event.
func overlaps(a, b *PartialMatch) bool {
	for _, x := range a.Events {
		for _, y := range b.Events {
			if x == y {
				return true
			}
		}
	}
	return false
}

// Span returns Latest minus Earliest.
func (pm *PartialMatch) Span() time.Duration {
	return pm.Latest.Sub(pm.Earliest)
}

// output completes a pattern at a node.
type output struct {
	pattern   *ir.Pattern
	positions []int
}
