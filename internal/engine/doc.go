// Package engine evaluates pattern forests over event streams.
//
// ARCHITECTURE:
//
// Mechanism:
// A Mechanism owns one forest and processes events in a single goroutine.
// Each event is stamped from the logical clock, routed to the leaves that
// listen for its type and propagated upwards; matches completed at a
// pattern root are emitted to the sink in the order they complete.
//
// Event Processing Flow:
// 1. Source yields the next event (io.EOF ends the stream)
// 2. Events get a seq from Clock.Next() unless they carry one
// 3. Events older than the last accepted timestamp are dropped and counted
// 4. The forest expires partial matches that fell out of their window
// 5. Completed matches are stamped and emitted
// 6. At io.EOF, matches held back by trailing negation are flushed
//
// Managers:
// SequentialManager runs one mechanism over the whole stream.
// ParallelManager partitions events by the xxhash of a key attribute
// into shards, each with its own forest, run under an errgroup. Matches
// spanning two partitions are not detected.
//
// CRITICAL PATTERNS:
//
// Logical Clock:
// Seqs, not wall-clock time, order events and identify matches. The same
// input evaluated sequentially always yields the same seqs and match IDs.
//
// Construction errors surface from NewManager; evaluation only fails on
// source, sink or context errors.
package engine
