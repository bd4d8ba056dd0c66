package unify

import (
	"fmt"
	"strings"

	"github.com/roach88/treecep/internal/tree"
)

// Strategy selects which nodes may be shared across patterns.
type Strategy string

const (
	TrivialSharingLeaves Strategy = "TREE_PLAN_TRIVIAL_SHARING_LEAVES"
	SubtreesUnion        Strategy = "TREE_PLAN_SUBTREES_UNION"
	ChangeTopologyUnion  Strategy = "TREE_PLAN_CHANGE_TOPOLOGY_UNION"
)

// DefaultStrategy is used when none is configured.
const DefaultStrategy = SubtreesUnion

// Strategies returns every strategy, weakest first.
func Strategies() []Strategy {
	return []Strategy{TrivialSharingLeaves, SubtreesUnion, ChangeTopologyUnion}
}

// ParseStrategy accepts a full strategy name or its short form
// (leaves, subtrees, topology), case-insensitively.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "":
		return DefaultStrategy, nil
	case string(TrivialSharingLeaves), "LEAVES", "TRIVIAL":
		return TrivialSharingLeaves, nil
	case string(SubtreesUnion), "SUBTREES":
		return SubtreesUnion, nil
	case string(ChangeTopologyUnion), "TOPOLOGY":
		return ChangeTopologyUnion, nil
	}
	return "", fmt.Errorf("unknown sharing strategy %q", s)
}

// registry is the canonical node table of one unification session. It
// implements tree.Resolver for every strategy.
type registry struct {
	leavesOnly  bool
	commutative bool
	nodes       map[string]tree.NodeID
}

func newRegistry(s Strategy) (*registry, error) {
	r := &registry{nodes: make(map[string]tree.NodeID)}
	switch s {
	case TrivialSharingLeaves:
		r.leavesOnly = true
	case SubtreesUnion:
	case ChangeTopologyUnion:
		r.commutative = true
	default:
		return nil, fmt.Errorf("unknown sharing strategy %q", s)
	}
	return r, nil
}

func (r *registry) eligible(kind tree.Kind) bool {
	return !r.leavesOnly || kind == tree.KindLeaf
}

// Resolve implements tree.Resolver.
func (r *registry) Resolve(kind tree.Kind, sig string) (tree.NodeID, bool) {
	if !r.eligible(kind) {
		return tree.None, false
	}
	id, ok := r.nodes[sig]
	return id, ok
}

// Register implements tree.Resolver. The first node registered under a
// signature stays canonical.
func (r *registry) Register(kind tree.Kind, sig string, id tree.NodeID) {
	if !r.eligible(kind) {
		return
	}
	if _, ok := r.nodes[sig]; !ok {
		r.nodes[sig] = id
	}
}

// Reorder implements tree.Resolver: conjunction children are ordered by
// node ID, so two conjunctions over the same resolved children get the
// same signature whatever order their plans listed them in.
func (r *registry) Reorder(kind tree.Kind, left, right tree.NodeID) bool {
	return r.commutative && kind == tree.KindAnd && right < left
}
