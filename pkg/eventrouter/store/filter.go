package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/randalmurphal/eventrouter/pkg/eventrouter/event"
	"github.com/randalmurphal/eventrouter/pkg/eventrouter/expr"
)

// Reserved filter keys bounding the timestamp, inclusive.
const (
	FilterStartTime = "start_time"
	FilterEndTime   = "end_time"
)

// Filter selects events by equality on event fields or payload paths.
//
// Keys type, source, id, correlation_id, causation_id and is_replay compare
// the event field. Keys prefixed with "payload." or "metadata." are dot
// paths into that map. Any other key is a payload dot path. The reserved
// keys start_time and end_time accept a time.Time or an RFC 3339 string.
//
// Values compare with expr.Equal, so 3 and 3.0 are equal. A missing path
// never matches.
type Filter map[string]any

// Query is a filtered, paginated read.
type Query struct {
	Filter Filter

	// Limit caps the result size. Zero means no limit.
	Limit int

	// Offset skips that many matching events first.
	Offset int
}

// predicate is a compiled Filter.
type predicate func(*event.Event) bool

func (f Filter) compile() (predicate, error) {
	if len(f) == 0 {
		return func(*event.Event) bool { return true }, nil
	}

	var start, end time.Time
	fields := make(map[string]any, len(f))
	for k, v := range f {
		switch k {
		case FilterStartTime:
			t, err := parseTime(v)
			if err != nil {
				return nil, fmt.Errorf("filter %s: %w", k, err)
			}
			start = t
		case FilterEndTime:
			t, err := parseTime(v)
			if err != nil {
				return nil, fmt.Errorf("filter %s: %w", k, err)
			}
			end = t
		default:
			fields[k] = v
		}
	}

	return func(evt *event.Event) bool {
		if !start.IsZero() && evt.Timestamp.Before(start) {
			return false
		}
		if !end.IsZero() && evt.Timestamp.After(end) {
			return false
		}
		for k, want := range fields {
			got, ok := fieldValue(evt, k)
			if !ok || !expr.Equal(got, want) {
				return false
			}
		}
		return true
	}, nil
}

func parseTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		return time.Parse(time.RFC3339Nano, t)
	default:
		return time.Time{}, fmt.Errorf("unsupported time value %T", v)
	}
}

// fieldValue resolves a filter or group-by key against an event.
func fieldValue(evt *event.Event, key string) (any, bool) {
	switch key {
	case event.KeyType:
		return evt.Type, true
	case event.KeySource:
		return evt.Source, true
	case event.KeyID:
		return evt.ID, true
	case event.KeyCorrelationID:
		return evt.CorrelationID, true
	case event.KeyCausationID:
		return evt.CausationID, true
	case event.KeyIsReplay:
		return evt.IsReplay, true
	}
	if path, ok := strings.CutPrefix(key, event.KeyPayload+"."); ok {
		return expr.Lookup(evt.Payload, path)
	}
	if path, ok := strings.CutPrefix(key, event.KeyMetadata+"."); ok {
		return expr.Lookup(evt.Metadata, path)
	}
	return expr.Lookup(evt.Payload, key)
}

// containsText reports whether any leaf of v contains needle, which must
// already be lowercase.
func containsText(v any, needle string) bool {
	switch val := v.(type) {
	case map[string]any:
		for _, item := range val {
			if containsText(item, needle) {
				return true
			}
		}
		return false
	case map[string]string:
		for _, item := range val {
			if strings.Contains(strings.ToLower(item), needle) {
				return true
			}
		}
		return false
	case []any:
		for _, item := range val {
			if containsText(item, needle) {
				return true
			}
		}
		return false
	case nil:
		return false
	default:
		return strings.Contains(strings.ToLower(fmt.Sprint(val)), needle)
	}
}
