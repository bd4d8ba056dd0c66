// Package harness provides conformance testing for pattern definitions.
//
// The harness compiles CUE patterns, replays a fixed event stream through
// the engine and validates the recorded matches.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	patterns: |
//	  pattern: rise: {
//	    operator: "seq"
//	    window:   "5m"
//	    events: [{type: "AAPL", name: "a"}, {type: "GOOG", name: "b"}]
//	    where: [{left: "a.price", op: "<", right: "b.price"}]
//	  }
//	specs:
//	  - path/to/patterns.cue
//	engine:
//	  mode: parallel
//	  strategy: subtrees
//	  parallelism: 2
//	  partition_key: symbol
//	events:
//	  - { type: AAPL, at: 0s, attrs: { price: 10 } }
//	  - { type: GOOG, at: 1m, attrs: { price: 12 } }
//	assertions:
//	  - type: match_contains
//	    pattern: rise
//	    events: { a: 1, b: 2 }
//
// # Assertion Types
//
// The following assertion types are supported:
//
//   - match_count: Verifies a pattern matched exactly N times
//   - match_contains: Verifies a match binds the given names to seqs
//   - no_match: Verifies a pattern never matched
//   - shared_nodes: Verifies how many nodes the forest shares
//
// # Deterministic Testing
//
// Event seqs are assigned from 1 in listed order and timestamps are
// offsets from a fixed start, so match IDs are identical across runs.
// Each scenario records its matches in a fresh in-memory SQLite store and
// reads them back in a fixed order for golden snapshot comparison.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/price_rise.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, err := range result.Errors {
//	        log.Println(err)
//	    }
//	}
package harness
