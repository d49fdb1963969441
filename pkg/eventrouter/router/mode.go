package router

import (
	"fmt"
	"strings"
)

// DeliveryMode governs blocking, concurrency and handler invocation of a
// publish call.
type DeliveryMode int

const (
	// Sync invokes matched handlers in priority order before Publish returns.
	Sync DeliveryMode = iota

	// Async schedules each matched handler independently and returns at once.
	Async

	// Queued enqueues one clone per matched subscription without invoking
	// handlers. A Consumer or other collaborator drains the queue.
	Queued
)

// String returns the lowercase mode name.
func (m DeliveryMode) String() string {
	switch m {
	case Sync:
		return "sync"
	case Async:
		return "async"
	case Queued:
		return "queued"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Valid reports whether m is a known mode.
func (m DeliveryMode) Valid() bool {
	return m >= Sync && m <= Queued
}

// ParseDeliveryMode resolves a mode name, ignoring case.
func ParseDeliveryMode(s string) (DeliveryMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sync", "":
		return Sync, nil
	case "async":
		return Async, nil
	case "queued":
		return Queued, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}
