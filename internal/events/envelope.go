package events

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	learnit_errors "learnit-events/pkg/errors"
)

const (
	CurrentSchemaVersion = 1
	DefaultSourceService = "discussion-service"
)

// Envelope is the wire and storage format shared by the producer and the
// consumer. Payload keys depend on EventType.
type Envelope struct {
	EventType     string         `json:"eventType"`
	EventID       string         `json:"eventId"`
	OccurredAt    time.Time      `json:"occurredAt"`
	SchemaVersion int            `json:"schemaVersion"`
	SourceService string         `json:"sourceService"`
	Payload       map[string]any `json:"payload"`
}

// occurredAt layouts accepted on decode; the zone-less form is what older
// producers emitted.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// UnmarshalJSON is lenient: unknown keys are ignored, a missing or unreadable
// schemaVersion falls back to 1, an unparseable occurredAt stays zero and a
// non-object payload is dropped. Only a body that is not a JSON object fails.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	var raw struct {
		EventType     string          `json:"eventType"`
		EventID       string          `json:"eventId"`
		OccurredAt    json.RawMessage `json:"occurredAt"`
		SchemaVersion json.RawMessage `json:"schemaVersion"`
		SourceService string          `json:"sourceService"`
		Payload       json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*e = Envelope{
		EventType:     strings.TrimSpace(raw.EventType),
		EventID:       strings.TrimSpace(raw.EventID),
		OccurredAt:    parseOccurredAt(raw.OccurredAt),
		SchemaVersion: parseSchemaVersion(raw.SchemaVersion),
		SourceService: raw.SourceService,
	}

	if len(raw.Payload) > 0 {
		dec := json.NewDecoder(bytes.NewReader(raw.Payload))
		dec.UseNumber()
		var payload map[string]any
		if err := dec.Decode(&payload); err == nil {
			e.Payload = payload
		}
	}
	return nil
}

// ParseEnvelope decodes a bus message body.
func ParseEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", learnit_errors.ErrMalformedMessage, err)
	}
	return env, nil
}

func parseOccurredAt(raw json.RawMessage) time.Time {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func parseSchemaVersion(raw json.RawMessage) int {
	var n json.Number
	if len(raw) == 0 || json.Unmarshal(raw, &n) != nil {
		return CurrentSchemaVersion
	}
	if v, err := n.Int64(); err == nil && v > 0 {
		return int(v)
	}
	if f, err := n.Float64(); err == nil && f >= 1 {
		return int(f)
	}
	return CurrentSchemaVersion
}
