package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// The version suffix leaves room for algorithm migration.
const (
	DomainMatch   = "treecep/match/v1"
	DomainNode    = "treecep/node/v1"
	DomainPattern = "treecep/pattern/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator keeps domain and data boundaries unambiguous.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Hash canonicalizes v and hashes it under the given domain.
func Hash(domain string, v any) (string, error) {
	data, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", domain, err)
	}
	return hashWithDomain(domain, data), nil
}

// MatchID computes the content-addressed ID of a match.
// The ID depends on the pattern name and the arrival seq of every bound
// event, so re-running the same stream yields the same IDs.
func MatchID(pattern string, events []BoundEvent) (string, error) {
	seqs := make([]any, len(events))
	for i, be := range events {
		seqs[i] = map[string]any{
			"name": be.Name,
			"seq":  be.Event.Seq,
		}
	}
	return Hash(DomainMatch, map[string]any{
		"pattern": pattern,
		"events":  seqs,
	})
}

// MustMatchID is like MatchID but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustMatchID(pattern string, events []BoundEvent) string {
	id, err := MatchID(pattern, events)
	if err != nil {
		panic(err)
	}
	return id
}
