package tree

import (
	"slices"
	"strconv"

	"github.com/roach88/treecep/internal/ir"
)

// signature computes the canonical identity of a candidate node from its
// kind, leaf type, resolved children and pushed-down predicates. Binding
// names are replaced by slot indices, so equivalent conditions written
// with different names collide. Sequence nodes also record the relative
// declared order of their slots. Negation nodes record the position of the
// negated item and their window, which their semantics depend on.
//
// Returns "" when a predicate has no canonical form.
func signature(n *Node) string {
	slot := make(map[string]string, len(n.Slots)+1)
	for k, s := range n.Slots {
		slot[s.Name] = "$" + strconv.Itoa(k)
	}
	if n.Kind == KindNegation {
		slot[n.Negated.Name] = "$not"
	}
	rename := func(name string) string {
		if r, ok := slot[name]; ok {
			return r
		}
		return name
	}

	preds := make([]string, 0, len(n.Condition))
	for _, p := range n.Condition {
		form, ok := p.Canonical(rename)
		if !ok {
			return ""
		}
		preds = append(preds, form)
	}
	slices.Sort(preds)

	doc := map[string]any{
		"kind":  n.Kind.String(),
		"preds": preds,
	}
	switch n.Kind {
	case KindLeaf:
		doc["type"] = n.EventType
	case KindSeq:
		doc["children"] = []any{int(n.Left), int(n.Right)}
		doc["order"] = ranks(slotPositions(n.Slots))
	case KindAnd:
		doc["children"] = []any{int(n.Left), int(n.Right)}
	case KindNegation:
		doc["children"] = []any{int(n.Left), int(n.Right)}
		doc["window"] = n.Window.Nanoseconds()
		if n.sequence {
			doc["op"] = "seq"
			doc["order"] = ranks(append(slotPositions(n.Slots), n.Negated.Position))
		} else {
			doc["op"] = "and"
		}
	}

	sig, err := ir.Hash(ir.DomainNode, doc)
	if err != nil {
		return ""
	}
	return sig
}

func slotPositions(slots []Slot) []int {
	out := make([]int, len(slots))
	for i, s := range slots {
		out[i] = s.Position
	}
	return out
}

// ranks replaces each position by its rank among all positions.
func ranks(positions []int) []any {
	sorted := slices.Clone(positions)
	slices.Sort(sorted)
	out := make([]any, len(positions))
	for i, p := range positions {
		r, _ := slices.BinarySearch(sorted, p)
		out[i] = r
	}
	return out
}
