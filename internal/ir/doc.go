// Package ir provides the event and pattern model shared by every treecep
// package: attribute values, events, pattern structures, condition
// predicates and the match records emitted by the evaluation mechanism.
//
// ir imports nothing internal. All other internal packages import ir.
//
// Key design constraints:
//   - No float types in attribute values; use int64 in the smallest unit
//   - Patterns are immutable after NewPattern validates them
//   - Content-addressed IDs use RFC 8785 canonical JSON with domain separation
package ir
