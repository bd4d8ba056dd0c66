// Package tree builds evaluation trees from patterns and tree plans and
// runs events through them.
//
// Nodes live in an arena owned by a Forest and refer to each other by
// NodeID. A Forest built for one pattern is a tree; after unification a
// node may have several parents and several pattern outputs, and the
// forest becomes a DAG. Partial matches are stored in node slot order and
// carry no binding names, so a shared node's buffer serves every pattern
// that reaches it.
//
// Forest methods that process events are not safe for concurrent use.
// Run one forest per goroutine.
package tree
