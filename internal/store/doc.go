// Package store provides SQLite-backed durable storage for treecep match logs.
//
// The store is append-only:
//   - Runs: one row per evaluation (mode, strategy, pattern set, versions)
//   - Matches: completed pattern occurrences keyed by (run, match ID)
//   - Match events: the bound events of each match in declared binding order
//
// Match IDs are content-addressed (see ir.MatchID), so writing the same
// match twice within a run is a no-op.
//
// All read queries order by seq ASC, id ASC COLLATE BINARY so results are
// identical across replays of the same stream.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// In-flight partial matches are never persisted.
package store
