package ir

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event is a timed, typed, attributed occurrence on the input stream.
// Events are immutable once created; the mechanism shares *Event pointers
// between partial matches, and pointer identity distinguishes two events
// with equal content.
type Event struct {
	Type      string    `json:"type"`
	Attrs     Object    `json:"attrs"`
	Timestamp time.Time `json:"timestamp"`

	// Seq is the arrival stamp from the mechanism's logical clock.
	// Zero until the event is accepted by a mechanism, which stamps a copy.
	Seq int64 `json:"seq,omitempty"`
}

// WithSeq returns a copy of e stamped with seq. Attrs are shared.
func (e *Event) WithSeq(seq int64) *Event {
	cp := *e
	cp.Seq = seq
	return &cp
}

// NewEvent creates an event with a copy of attrs.
func NewEvent(eventType string, ts time.Time, attrs Object) *Event {
	cp := make(Object, len(attrs))
	for k, v := range attrs {
		cp[k] = v
	}
	return &Event{Type: eventType, Attrs: cp, Timestamp: ts}
}

// Attr returns the named attribute.
func (e *Event) Attr(name string) (Value, bool) {
	v, ok := e.Attrs[name]
	return v, ok
}

// String renders the event for logs and test failures.
func (e *Event) String() string {
	return fmt.Sprintf("%s@%s#%d", e.Type, e.Timestamp.Format(time.RFC3339Nano), e.Seq)
}

// eventJSON is the wire shape of an event line.
type eventJSON struct {
	Type      string          `json:"type"`
	Attrs     json.RawMessage `json:"attrs"`
	Timestamp time.Time       `json:"timestamp"`
	Seq       int64           `json:"seq,omitempty"`
}

// UnmarshalJSON decodes an event line, rejecting float attributes.
func (e *Event) UnmarshalJSON(data []byte) error {
	var raw eventJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Type == "" {
		return fmt.Errorf("event type is required")
	}
	attrs := Object{}
	if len(raw.Attrs) > 0 && string(raw.Attrs) != "null" {
		if err := json.Unmarshal(raw.Attrs, &attrs); err != nil {
			return fmt.Errorf("event attrs: %w", err)
		}
	}
	*e = Event{Type: raw.Type, Attrs: attrs, Timestamp: raw.Timestamp, Seq: raw.Seq}
	return nil
}

// EventRef declares one primitive event of a pattern: the type it matches
// and the binding name the condition refers to it by.
type EventRef struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

// Binding maps binding names to the events bound under them.
// It is the only view of a match that predicates see.
type Binding map[string]*Event
