// Package event defines the message record that flows through the router,
// the store, the correlator and the replayer.
//
// An Event is a typed, timestamped message with a payload and optional causal
// metadata. Events are immutable by convention: every component treats a
// published Event as read-only and works on a Clone when it needs a variant.
// Causal chains are built without a central authority through Derive, which
// propagates the correlation id and records the parent as the cause.
package event

import (
	"errors"
	"maps"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors for event construction.
var (
	// ErrEmptyType is returned when an event is constructed without a type.
	ErrEmptyType = errors.New("event type must not be empty")

	// ErrEmptySource is returned when an event is constructed without a source.
	ErrEmptySource = errors.New("event source must not be empty")
)

// Event is a typed message with payload and causal metadata.
type Event struct {
	// ID uniquely identifies the event.
	ID string

	// Type is a dot-segmented name such as "container.started".
	Type string

	// Source names the producer.
	Source string

	// Timestamp is when the event occurred, in UTC.
	Timestamp time.Time

	// CorrelationID links every event of one logical workflow. Empty means unset.
	CorrelationID string

	// CausationID is the id of the event that directly caused this one. Empty means unset.
	CausationID string

	// Payload holds the event body. Nested maps are addressable by dot path.
	Payload map[string]any

	// Metadata holds out-of-band context.
	Metadata map[string]any

	// IsReplay marks events re-published by a replayer.
	IsReplay bool
}

// Option configures event creation.
type Option func(*Event)

// WithID sets a specific event ID (default: auto-generated UUID).
func WithID(id string) Option {
	return func(e *Event) {
		e.ID = id
	}
}

// WithTimestamp sets a specific timestamp (default: time.Now()).
func WithTimestamp(t time.Time) Option {
	return func(e *Event) {
		e.Timestamp = t.UTC()
	}
}

// WithPayload sets the payload. The map is copied.
func WithPayload(payload map[string]any) Option {
	return func(e *Event) {
		e.Payload = copyMap(payload)
	}
}

// WithMetadata sets the metadata. The map is copied.
func WithMetadata(metadata map[string]any) Option {
	return func(e *Event) {
		e.Metadata = copyMap(metadata)
	}
}

// WithCorrelationID sets the correlation ID.
func WithCorrelationID(id string) Option {
	return func(e *Event) {
		e.CorrelationID = id
	}
}

// WithCausationID sets the ID of the causing event.
func WithCausationID(id string) Option {
	return func(e *Event) {
		e.CausationID = id
	}
}

// WithSource overrides the source. Used with Derive.
func WithSource(source string) Option {
	return func(e *Event) {
		e.Source = source
	}
}

// New creates an event with the given type and source.
// Returns ErrEmptyType or ErrEmptySource when either is empty.
func New(eventType, source string, opts ...Option) (*Event, error) {
	e := &Event{
		ID:       uuid.New().String(),
		Type:     eventType,
		Source:   source,
		Payload:  map[string]any{},
		Metadata: map[string]any{},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return e, nil
}

// MustNew is like New but panics on invalid input.
// Intended for tests and static event definitions.
func MustNew(eventType, source string, opts ...Option) *Event {
	e, err := New(eventType, source, opts...)
	if err != nil {
		panic(err)
	}
	return e
}

// Validate checks the construction invariants.
func (e *Event) Validate() error {
	if e.Type == "" {
		return ErrEmptyType
	}
	if e.Source == "" {
		return ErrEmptySource
	}
	return nil
}

// Derive creates a child event caused by e.
//
// The child inherits e's correlation ID, or e's ID when e has none yet, and
// records e.ID as its causation ID. Source and metadata are inherited unless
// overridden by opts.
func (e *Event) Derive(eventType string, payload map[string]any, opts ...Option) (*Event, error) {
	correlationID := e.CorrelationID
	if correlationID == "" {
		correlationID = e.ID
	}
	base := []Option{
		WithPayload(payload),
		WithMetadata(e.Metadata),
		WithCorrelationID(correlationID),
		WithCausationID(e.ID),
	}
	return New(eventType, e.Source, append(base, opts...)...)
}

// Clone returns a deep copy of the event.
func (e *Event) Clone() *Event {
	c := *e
	c.Payload = copyMap(e.Payload)
	c.Metadata = copyMap(e.Metadata)
	return &c
}

// AsReplay returns a copy marked as a replay. The ID is preserved.
func (e *Event) AsReplay() *Event {
	c := e.Clone()
	c.IsReplay = true
	return c
}

// copyMap deep-copies nested maps and slices so clones never share state.
func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return copyMap(val)
	case map[string]string:
		return maps.Clone(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = copyValue(item)
		}
		return out
	default:
		return v
	}
}
