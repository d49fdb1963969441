// Package pattern selects events by type and payload attributes.
//
// A Pattern combines an event type glob (see Compile) with optional attribute
// predicates addressed by dot path into the payload. Three Matcher strategies
// evaluate patterns with identical results and different caching behavior.
package pattern

import (
	"maps"
	"reflect"
	"sort"
	"strings"

	"github.com/randalmurphal/eventrouter/pkg/eventrouter/event"
	"github.com/randalmurphal/eventrouter/pkg/eventrouter/expr"
)

// Pattern is a declarative event selector. It is a value type; equality is
// structural.
type Pattern struct {
	// EventType is a glob over the event type. See Compile.
	EventType string

	// Attributes maps payload dot paths to predicates. Empty means type-only.
	Attributes map[string]Predicate
}

// New creates a pattern. attrs may be nil.
func New(eventType string, attrs map[string]Predicate) Pattern {
	return Pattern{EventType: eventType, Attributes: maps.Clone(attrs)}
}

// Type creates a type-only pattern.
func Type(eventType string) Pattern {
	return Pattern{EventType: eventType}
}

// Any matches every event.
func Any() Pattern {
	return Pattern{EventType: AnyType}
}

// FromMap builds a pattern from an event type and configuration-style
// attribute map. See ParseAttributes.
func FromMap(eventType string, attrs map[string]any) (Pattern, error) {
	parsed, err := ParseAttributes(attrs)
	if err != nil {
		return Pattern{}, err
	}
	return Pattern{EventType: eventType, Attributes: parsed}, nil
}

// Matches compiles the type glob and evaluates the attributes.
func (p Pattern) Matches(evt *event.Event) bool {
	if evt == nil {
		return false
	}
	return MatchType(p.EventType, evt.Type) && p.MatchesAttributes(evt.Payload)
}

// MatchesAttributes evaluates every attribute predicate against payload.
func (p Pattern) MatchesAttributes(payload map[string]any) bool {
	for path, pred := range p.Attributes {
		actual, found := expr.Lookup(payload, path)
		if !pred.Evaluate(actual, found) {
			return false
		}
	}
	return true
}

// String renders the pattern canonically, with attributes sorted by path.
// Two structurally equal patterns render identically.
func (p Pattern) String() string {
	if len(p.Attributes) == 0 {
		return p.EventType
	}
	paths := make([]string, 0, len(p.Attributes))
	for path := range p.Attributes {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	var b strings.Builder
	b.WriteString(p.EventType)
	b.WriteString("[")
	for i, path := range paths {
		if i > 0 {
			b.WriteString(";")
		}
		b.WriteString(path)
		b.WriteString("=")
		b.WriteString(p.Attributes[path].String())
	}
	b.WriteString("]")
	return b.String()
}

// Equal reports structural equality.
func (p Pattern) Equal(other Pattern) bool {
	if p.EventType != other.EventType || len(p.Attributes) != len(other.Attributes) {
		return false
	}
	for path, pred := range p.Attributes {
		otherPred, ok := other.Attributes[path]
		if !ok || !reflect.DeepEqual(pred, otherPred) {
			return false
		}
	}
	return true
}
