package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/treecep/internal/ir"
)

// timeLayout keeps nanosecond precision and sorts lexically in UTC.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

// marshalAttrs converts event attributes to JSON TEXT for storage.
// Object.MarshalJSON sorts keys, so equal attributes store identically.
func marshalAttrs(attrs ir.Object) (string, error) {
	if attrs == nil {
		attrs = ir.Object{}
	}
	data, err := json.Marshal(attrs)
	if err != nil {
		return "", fmt.Errorf("marshal attrs: %w", err)
	}
	return string(data), nil
}

// unmarshalAttrs parses attribute JSON TEXT. Integers are decoded through
// json.Number, so values beyond 2^53 survive the round trip.
func unmarshalAttrs(data string) (ir.Object, error) {
	if data == "" || data == "{}" {
		return ir.Object{}, nil
	}
	var attrs ir.Object
	if err := json.Unmarshal([]byte(data), &attrs); err != nil {
		return nil, fmt.Errorf("unmarshal attrs: %w", err)
	}
	return attrs, nil
}

// marshalPatterns stores the run's pattern names as a canonical JSON array.
func marshalPatterns(names []string) (string, error) {
	if names == nil {
		names = []string{}
	}
	data, err := ir.MarshalCanonical(names)
	if err != nil {
		return "", fmt.Errorf("marshal patterns: %w", err)
	}
	return string(data), nil
}

func unmarshalPatterns(data string) ([]string, error) {
	names := []string{}
	if err := json.Unmarshal([]byte(data), &names); err != nil {
		return nil, fmt.Errorf("unmarshal patterns: %w", err)
	}
	return names, nil
}
