package payload

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"
)

// eventTypePattern validates event types: hierarchical, full-stop delimited, [a-zA-Z0-9_.]
var eventTypePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+(\.[a-zA-Z0-9_]+)*$`)

/* Envelope is the wire form of an event occurrence. The serialized bytes
 * are snapshotted into the delivery record at routing time and resent
 * byte-identical on every retry.
 */
type Envelope struct {
	// Type is the full-stop delimited catalog identifier of the event
	// Examples: "load.created", "invoice.paid", "document.expiring"
	Type string `json:"type"`

	// Timestamp is when the event occurred, RFC 3339 formatted
	Timestamp time.Time `json:"timestamp"`

	// Data is the event data snapshot
	Data json.RawMessage `json:"data"`
}

// New builds and validates an envelope for the given event type and data
func New(eventType string, data interface{}) (Envelope, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshaling data: %w", err)
	}

	env := Envelope{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      dataBytes,
	}

	if err := env.Validate(); err != nil {
		return Envelope{}, fmt.Errorf("validating payload: %w", err)
	}

	return env, nil
}

// Parse parses JSON bytes into a validated envelope
func Parse(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("unmarshaling payload: %w", err)
	}

	if err := env.Validate(); err != nil {
		return Envelope{}, fmt.Errorf("validating payload: %w", err)
	}

	return env, nil
}

// Validate checks the envelope structure
func (e Envelope) Validate() error {
	if e.Type == "" {
		return fmt.Errorf("type is required")
	}

	if !eventTypePattern.MatchString(e.Type) {
		return fmt.Errorf("type must be hierarchical and contain only [a-zA-Z0-9_.]: %s", e.Type)
	}

	if e.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}

	if len(e.Data) == 0 {
		return fmt.Errorf("data is required")
	}

	if !json.Valid(e.Data) {
		return fmt.Errorf("data must be valid JSON")
	}

	return nil
}

// MarshalJSON returns the JSON encoding with an RFC 3339 timestamp
func (e Envelope) MarshalJSON() ([]byte, error) {
	type Alias Envelope
	return json.Marshal(&struct {
		Timestamp string `json:"timestamp"`
		*Alias
	}{
		Timestamp: e.Timestamp.Format(time.RFC3339Nano),
		Alias:     (*Alias)(&e),
	})
}

// UnmarshalJSON parses the JSON-encoded envelope
func (e *Envelope) UnmarshalJSON(data []byte) error {
	type Alias Envelope
	aux := &struct {
		Timestamp string `json:"timestamp"`
		*Alias
	}{
		Alias: (*Alias)(e),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return fmt.Errorf("unmarshaling payload: %w", err)
	}

	timestamp, err := time.Parse(time.RFC3339Nano, aux.Timestamp)
	if err != nil {
		timestamp, err = time.Parse(time.RFC3339, aux.Timestamp)
		if err != nil {
			return fmt.Errorf("parsing timestamp: %w", err)
		}
	}
	e.Timestamp = timestamp

	return nil
}

// Bytes returns the minified JSON encoding of the envelope
func (e Envelope) Bytes() ([]byte, error) {
	return json.Marshal(e)
}

// ValidateEventType validates an event type identifier
func ValidateEventType(eventType string) error {
	if eventType == "" {
		return fmt.Errorf("event type cannot be empty")
	}

	if !eventTypePattern.MatchString(eventType) {
		return fmt.Errorf("event type must be hierarchical and contain only [a-zA-Z0-9_.]: %s", eventType)
	}

	return nil
}
