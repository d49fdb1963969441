package store

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/randalmurphal/eventrouter/pkg/eventrouter/observability"
)

// ErrInvalidPolicy is returned for a retention policy with no bound or a
// negative bound.
var ErrInvalidPolicy = errors.New("invalid retention policy")

// RetentionPolicy bounds the events kept for one event type.
// Zero disables a bound.
type RetentionPolicy struct {
	// MaxAge removes events whose timestamp is older than now - MaxAge.
	MaxAge time.Duration

	// MaxCount keeps only the most recently stored MaxCount events.
	MaxCount int
}

// AgePolicy returns a policy bounded by age only.
func AgePolicy(maxAge time.Duration) RetentionPolicy {
	return RetentionPolicy{MaxAge: maxAge}
}

// CountPolicy returns a policy bounded by count only.
func CountPolicy(maxCount int) RetentionPolicy {
	return RetentionPolicy{MaxCount: maxCount}
}

// Validate checks that the policy has at least one positive bound.
func (p RetentionPolicy) Validate() error {
	if p.MaxAge < 0 || p.MaxCount < 0 {
		return fmt.Errorf("%w: negative bound", ErrInvalidPolicy)
	}
	if p.MaxAge == 0 && p.MaxCount == 0 {
		return fmt.Errorf("%w: no bound set", ErrInvalidPolicy)
	}
	return nil
}

// SetRetentionPolicy registers or replaces the policy for an event type.
func (s *MemoryStore) SetRetentionPolicy(eventType string, p RetentionPolicy) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("retention for %q: %w", eventType, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policies[eventType] = p
	return nil
}

// RemoveRetentionPolicy unregisters the policy for an event type.
func (s *MemoryStore) RemoveRetentionPolicy(eventType string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.policies[eventType]
	delete(s.policies, eventType)
	return ok
}

// RetentionPolicies returns a copy of the registered policies.
func (s *MemoryStore) RetentionPolicies() map[string]RetentionPolicy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.policies)
}

// CleanupExpiredEvents applies every registered policy once and returns the
// number of events removed. For each type the age bound applies first, then
// the count bound keeps the most recently stored survivors. Types without a
// policy are never removed. The archive is not affected.
func (s *MemoryStore) CleanupExpiredEvents() int {
	s.mu.Lock()

	now := time.Now()
	drop := make(map[uint64]bool)
	kept := make(map[string][]record)

	for _, rec := range s.records {
		p, ok := s.policies[rec.evt.Type]
		if !ok {
			continue
		}
		if p.MaxAge > 0 && rec.evt.Timestamp.Before(now.Add(-p.MaxAge)) {
			drop[rec.seq] = true
			continue
		}
		kept[rec.evt.Type] = append(kept[rec.evt.Type], rec)
	}

	for eventType, recs := range kept {
		p := s.policies[eventType]
		if p.MaxCount <= 0 || len(recs) <= p.MaxCount {
			continue
		}
		slices.SortFunc(recs, func(a, b record) int {
			switch {
			case a.seq < b.seq:
				return -1
			case a.seq > b.seq:
				return 1
			}
			return 0
		})
		for _, rec := range recs[:len(recs)-p.MaxCount] {
			drop[rec.seq] = true
		}
	}

	if len(drop) > 0 {
		s.records = slices.DeleteFunc(s.records, func(rec record) bool {
			if drop[rec.seq] {
				delete(s.byID, rec.evt.ID)
				return true
			}
			return false
		})
	}
	remaining := len(s.records)
	s.mu.Unlock()

	removed := len(drop)
	if removed > 0 {
		s.metrics.RecordRetention(context.Background(), removed)
		observability.LogRetention(s.logger, removed, remaining)
	}
	return removed
}

// RunRetention calls CleanupExpiredEvents every interval until ctx is done.
func (s *MemoryStore) RunRetention(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("retention interval must be positive, got %s", interval)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.CleanupExpiredEvents()
		}
	}
}
