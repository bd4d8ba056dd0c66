package ir

import (
	"encoding/json"
	"time"
)

// BoundEvent is one event of a completed match with its binding name.
type BoundEvent struct {
	Name  string
	Event *Event
}

// Match is a completed occurrence of a pattern.
// Events are ordered by the pattern's declared binding order; negated
// bindings never appear.
type Match struct {
	ID      string
	Pattern string
	Seq     int64
	Events  []BoundEvent
}

// Earliest returns the timestamp of the first event in the match.
func (m Match) Earliest() time.Time {
	var ts time.Time
	for i, be := range m.Events {
		if i == 0 || be.Event.Timestamp.Before(ts) {
			ts = be.Event.Timestamp
		}
	}
	return ts
}

// Latest returns the timestamp of the last event in the match.
func (m Match) Latest() time.Time {
	var ts time.Time
	for i, be := range m.Events {
		if i == 0 || be.Event.Timestamp.After(ts) {
			ts = be.Event.Timestamp
		}
	}
	return ts
}

// Names returns the binding names in match order.
func (m Match) Names() []string {
	names := make([]string, len(m.Events))
	for i, be := range m.Events {
		names[i] = be.Name
	}
	return names
}

type boundEventJSON struct {
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	Seq       int64     `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	Attrs     Object    `json:"attrs"`
}

type matchJSON struct {
	ID      string           `json:"id"`
	Pattern string           `json:"pattern"`
	Seq     int64            `json:"seq"`
	Events  []boundEventJSON `json:"events"`
}

// MarshalJSON renders the match as a single JSON line payload.
func (m Match) MarshalJSON() ([]byte, error) {
	out := matchJSON{ID: m.ID, Pattern: m.Pattern, Seq: m.Seq, Events: make([]boundEventJSON, len(m.Events))}
	for i, be := range m.Events {
		out.Events[i] = boundEventJSON{
			Name:      be.Name,
			Type:      be.Event.Type,
			Seq:       be.Event.Seq,
			Timestamp: be.Event.Timestamp,
			Attrs:     be.Event.Attrs,
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores a match written by MarshalJSON.
func (m *Match) UnmarshalJSON(data []byte) error {
	var raw matchJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = Match{ID: raw.ID, Pattern: raw.Pattern, Seq: raw.Seq, Events: make([]BoundEvent, len(raw.Events))}
	for i, be := range raw.Events {
		m.Events[i] = BoundEvent{
			Name:  be.Name,
			Event: &Event{Type: be.Type, Attrs: be.Attrs, Timestamp: be.Timestamp, Seq: be.Seq},
		}
	}
	return nil
}
