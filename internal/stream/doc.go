// Package stream moves events into an evaluation mechanism and matches
// out of it.
//
// A Source yields events in timestamp order and returns io.EOF once the
// input has ended. A Sink receives every completed match and is closed
// exactly once, after the last match.
package stream
