package store

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/randalmurphal/eventrouter/pkg/eventrouter/event"
	"github.com/randalmurphal/eventrouter/pkg/eventrouter/observability"
	"github.com/randalmurphal/eventrouter/pkg/eventrouter/pattern"
)

// Archive receives a copy of every stored event.
type Archive interface {
	Append(ctx context.Context, evt *event.Event) error
}

// Config configures a MemoryStore.
type Config struct {
	// Archive, when set, receives every stored event before it is indexed.
	Archive Archive

	// Logger for structured logging. Default: slog.Default().
	Logger *slog.Logger

	// Metrics records retention sweeps. Default: NoopMetrics.
	Metrics observability.MetricsRecorder
}

// record is a stored event with its insertion sequence.
type record struct {
	evt *event.Event
	seq uint64
}

// MemoryStore is an in-memory event log kept in timestamp order.
//
// Events with equal timestamps keep insertion order. Stored events are
// shared with callers and must be treated as read-only.
type MemoryStore struct {
	archive Archive
	logger  *slog.Logger
	metrics observability.MetricsRecorder

	mu       sync.RWMutex
	records  []record
	byID     map[string]record
	seq      uint64
	policies map[string]RetentionPolicy
}

// New creates an empty store.
func New(cfg Config) *MemoryStore {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observability.NoopMetrics{}
	}
	return &MemoryStore{
		archive:  cfg.Archive,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		byID:     make(map[string]record),
		policies: make(map[string]RetentionPolicy),
	}
}

// Store appends evt. Storing an ID that is already present replaces the
// earlier event. With an archive configured the event is archived first and
// an archive failure leaves the store unchanged.
func (s *MemoryStore) Store(evt *event.Event) error {
	if evt == nil {
		return fmt.Errorf("store: nil event")
	}
	if s.archive != nil {
		if err := s.archive.Append(context.Background(), evt); err != nil {
			return fmt.Errorf("archive event %s: %w", evt.ID, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertLocked(evt)
	return nil
}

func (s *MemoryStore) insertLocked(evt *event.Event) {
	if old, ok := s.byID[evt.ID]; ok {
		s.removeLocked(old)
	}

	s.seq++
	rec := record{evt: evt, seq: s.seq}

	// Insert after every event with a timestamp <= evt's.
	i := sort.Search(len(s.records), func(i int) bool {
		return s.records[i].evt.Timestamp.After(evt.Timestamp)
	})
	s.records = slices.Insert(s.records, i, rec)
	s.byID[evt.ID] = rec
}

func (s *MemoryStore) removeLocked(rec record) {
	i := slices.IndexFunc(s.records, func(r record) bool { return r.seq == rec.seq })
	if i >= 0 {
		s.records = slices.Delete(s.records, i, i+1)
	}
	delete(s.byID, rec.evt.ID)
}

// Get returns the event with the given ID.
func (s *MemoryStore) Get(id string) (*event.Event, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byID[id]
	return rec.evt, ok
}

// Len returns the number of stored events.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Clear removes every event and returns how many were removed.
// Retention policies are kept.
func (s *MemoryStore) Clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.records)
	s.records = nil
	s.byID = make(map[string]record)
	return n
}

// Query returns matching events in chronological order.
func (s *MemoryStore) Query(q Query) ([]*event.Event, error) {
	match, err := q.Filter.compile()
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*event.Event
	skipped := 0
	for _, rec := range s.records {
		if !match(rec.evt) {
			continue
		}
		if skipped < q.Offset {
			skipped++
			continue
		}
		out = append(out, rec.evt)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

// Events returns every event matching f in chronological order.
func (s *MemoryStore) Events(f Filter) ([]*event.Event, error) {
	return s.Query(Query{Filter: f})
}

// Count returns the number of events matching f.
func (s *MemoryStore) Count(f Filter) (int, error) {
	match, err := f.compile()
	if err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, rec := range s.records {
		if match(rec.evt) {
			n++
		}
	}
	return n, nil
}

// ByType returns events of exactly the given type.
func (s *MemoryStore) ByType(eventType string) []*event.Event {
	return s.collect(func(evt *event.Event) bool { return evt.Type == eventType })
}

// BySource returns events from exactly the given source.
func (s *MemoryStore) BySource(source string) []*event.Event {
	return s.collect(func(evt *event.Event) bool { return evt.Source == source })
}

// ByCorrelationID returns the events of one correlation.
func (s *MemoryStore) ByCorrelationID(correlationID string) []*event.Event {
	return s.collect(func(evt *event.Event) bool { return evt.CorrelationID == correlationID })
}

// ByTypePattern returns events whose type matches a pattern expression
// such as "user.*" or "regex:^order\.".
func (s *MemoryStore) ByTypePattern(expression string) []*event.Event {
	match := pattern.Compile(expression)
	return s.collect(func(evt *event.Event) bool { return match(evt.Type) })
}

// BySourcePattern is ByTypePattern applied to the source.
func (s *MemoryStore) BySourcePattern(expression string) []*event.Event {
	match := pattern.Compile(expression)
	return s.collect(func(evt *event.Event) bool { return match(evt.Source) })
}

// Search returns events where text occurs, ignoring case, in any of the
// named fields. Fields default to payload and metadata, which are searched
// recursively. Other field names are type, source, id, correlation_id and
// causation_id.
func (s *MemoryStore) Search(text string, fields ...string) []*event.Event {
	if len(fields) == 0 {
		fields = []string{event.KeyPayload, event.KeyMetadata}
	}
	needle := strings.ToLower(text)

	return s.collect(func(evt *event.Event) bool {
		for _, field := range fields {
			var v any
			switch field {
			case event.KeyPayload:
				v = evt.Payload
			case event.KeyMetadata:
				v = evt.Metadata
			default:
				got, ok := fieldValue(evt, field)
				if !ok {
					continue
				}
				v = got
			}
			if containsText(v, needle) {
				return true
			}
		}
		return false
	})
}

// Timeline returns the events of a correlation in chronological order.
// With includeCausation it also returns the events that caused them and the
// events they caused, whatever their correlation.
func (s *MemoryStore) Timeline(correlationID string, includeCausation bool) []*event.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make(map[string]bool)
	causes := make(map[string]bool)
	for _, rec := range s.records {
		if rec.evt.CorrelationID == correlationID {
			ids[rec.evt.ID] = true
			if rec.evt.CausationID != "" {
				causes[rec.evt.CausationID] = true
			}
		}
	}

	var out []*event.Event
	for _, rec := range s.records {
		evt := rec.evt
		switch {
		case ids[evt.ID]:
		case includeCausation && (causes[evt.ID] || ids[evt.CausationID]):
		default:
			continue
		}
		out = append(out, evt)
	}
	return out
}

// Aggregate groups matching events by the value at groupBy, which accepts
// the same keys as Filter. Events without a correlation group under
// "no_correlation"; other missing values group under "unknown".
func (s *MemoryStore) Aggregate(groupBy string, f Filter) (map[string][]*event.Event, error) {
	events, err := s.Events(f)
	if err != nil {
		return nil, err
	}

	groups := make(map[string][]*event.Event)
	for _, evt := range events {
		key := "unknown"
		if v, ok := fieldValue(evt, groupBy); ok {
			key = fmt.Sprint(v)
		}
		if groupBy == event.KeyCorrelationID && evt.CorrelationID == "" {
			key = "no_correlation"
		}
		groups[key] = append(groups[key], evt)
	}
	return groups, nil
}

func (s *MemoryStore) collect(keep func(*event.Event) bool) []*event.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*event.Event
	for _, rec := range s.records {
		if keep(rec.evt) {
			out = append(out, rec.evt)
		}
	}
	return out
}

// Stats summarizes the store contents.
type Stats struct {
	TotalEvents       int            `json:"total_events"`
	OldestEvent       time.Time      `json:"oldest_event,omitempty"`
	NewestEvent       time.Time      `json:"newest_event,omitempty"`
	EventTypes        map[string]int `json:"event_types"`
	Sources           map[string]int `json:"sources"`
	RetentionPolicies int            `json:"retention_policies"`
}

// Stats returns counts by type and source and the time span covered.
func (s *MemoryStore) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{
		TotalEvents:       len(s.records),
		EventTypes:        make(map[string]int),
		Sources:           make(map[string]int),
		RetentionPolicies: len(s.policies),
	}
	if len(s.records) > 0 {
		st.OldestEvent = s.records[0].evt.Timestamp
		st.NewestEvent = s.records[len(s.records)-1].evt.Timestamp
	}
	for _, rec := range s.records {
		st.EventTypes[rec.evt.Type]++
		st.Sources[rec.evt.Source]++
	}
	return st
}
