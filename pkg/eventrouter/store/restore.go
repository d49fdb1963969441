package store

import (
	"context"
	"fmt"
	"time"

	"github.com/randalmurphal/eventrouter/pkg/eventrouter/event"
)

// RangeReader reads archived events by time range.
type RangeReader interface {
	Range(ctx context.Context, start, end time.Time) ([]*event.Event, error)
}

// Restore loads archived events in [start, end] into dst and returns how
// many were loaded. Restored events are not written back to dst's archive.
// Retention is not applied; call CleanupExpiredEvents afterwards if needed.
func Restore(ctx context.Context, src RangeReader, dst *MemoryStore, start, end time.Time) (int, error) {
	events, err := src.Range(ctx, start, end)
	if err != nil {
		return 0, fmt.Errorf("restore: %w", err)
	}

	dst.mu.Lock()
	defer dst.mu.Unlock()
	for _, evt := range events {
		dst.insertLocked(evt)
	}
	return len(events), nil
}
