// Package unify merges the evaluation trees of several patterns into one
// shared forest.
//
// Each pattern is materialized bottom-up in the order supplied by the
// caller. A node is offered for sharing only after both its children are
// resolved, and it is looked up by its canonical signature, so the first
// pattern to build a node owns the canonical copy and later patterns
// attach to it.
//
// Three strategies trade sharing power for structural liberty:
//
//   - TrivialSharingLeaves shares leaves only.
//   - SubtreesUnion shares any node whose kind, children, leaf type and
//     condition fragment are equivalent.
//   - ChangeTopologyUnion additionally puts the children of conjunction
//     nodes into a canonical order before comparing. Sequence children are
//     never swapped.
package unify
