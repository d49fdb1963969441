package event

import (
	"encoding/json"
	"fmt"
	"time"
)

// Map keys used by ToMap and FromMap. Any persistence, logging or transport
// collaborator must honor this layout.
const (
	KeyID            = "id"
	KeyType          = "type"
	KeySource        = "source"
	KeyTimestamp     = "timestamp"
	KeyCorrelationID = "correlation_id"
	KeyCausationID   = "causation_id"
	KeyPayload       = "payload"
	KeyMetadata      = "metadata"
	KeyIsReplay      = "is_replay"
)

// ToMap encodes the event as a plain string-keyed map.
// The timestamp is an RFC 3339 string with nanosecond precision and unset
// correlation or causation IDs encode as nil.
func (e *Event) ToMap() map[string]any {
	return map[string]any{
		KeyID:            e.ID,
		KeyType:          e.Type,
		KeySource:        e.Source,
		KeyTimestamp:     e.Timestamp.UTC().Format(time.RFC3339Nano),
		KeyCorrelationID: optional(e.CorrelationID),
		KeyCausationID:   optional(e.CausationID),
		KeyPayload:       copyMap(e.Payload),
		KeyMetadata:      copyMap(e.Metadata),
		KeyIsReplay:      e.IsReplay,
	}
}

// FromMap decodes an event produced by ToMap.
// The decoded event is validated like one built with New.
func FromMap(m map[string]any) (*Event, error) {
	e := &Event{
		ID:            stringField(m, KeyID),
		Type:          stringField(m, KeyType),
		Source:        stringField(m, KeySource),
		CorrelationID: stringField(m, KeyCorrelationID),
		CausationID:   stringField(m, KeyCausationID),
		Payload:       mapField(m, KeyPayload),
		Metadata:      mapField(m, KeyMetadata),
	}
	if b, ok := m[KeyIsReplay].(bool); ok {
		e.IsReplay = b
	}

	switch ts := m[KeyTimestamp].(type) {
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parse timestamp: %w", err)
		}
		e.Timestamp = parsed.UTC()
	case time.Time:
		e.Timestamp = ts.UTC()
	case nil:
		return nil, fmt.Errorf("missing %s", KeyTimestamp)
	default:
		return nil, fmt.Errorf("unsupported timestamp type %T", ts)
	}

	if e.ID == "" {
		return nil, fmt.Errorf("missing %s", KeyID)
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return e, nil
}

// MarshalJSON implements json.Marshaler using the ToMap layout.
func (e *Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.ToMap())
}

// UnmarshalJSON implements json.Unmarshaler using the FromMap layout.
func (e *Event) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	decoded, err := FromMap(m)
	if err != nil {
		return err
	}
	*e = *decoded
	return nil
}

func optional(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func mapField(m map[string]any, key string) map[string]any {
	if v, ok := m[key].(map[string]any); ok {
		return copyMap(v)
	}
	return map[string]any{}
}
