// Package plan produces tree plans: structure-only binary topologies over a
// pattern's positive items, written as nested pairs such as [[0,1],2].
//
// A plan carries no bound data. The same plan can be materialized into an
// evaluation tree for a single pattern or compared across patterns during
// unification.
package plan
