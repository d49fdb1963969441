package router

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/randalmurphal/eventrouter/pkg/eventrouter/event"
	"github.com/randalmurphal/eventrouter/pkg/eventrouter/pattern"
)

// Handler processes a delivered event. Returned errors and panics are
// isolated by the router and reported to error handlers.
//
// Handlers must treat evt as read-only; the same value is passed to every
// matched subscription.
type Handler func(ctx context.Context, evt *event.Event) error

// Subscription binds a pattern and handler with a lifecycle policy.
//
// A subscription is active until paused, and expired once it has processed
// MaxEvents events or outlived its Expiration. Expired subscriptions stop
// matching and are removed by Router.CleanupExpiredSubscriptions.
type Subscription struct {
	id         string
	pattern    pattern.Pattern
	handler    Handler
	priority   int
	maxEvents  int
	expiration time.Duration
	createdAt  time.Time

	active atomic.Bool

	mu            sync.Mutex
	processed     int
	inFlight      int
	lastEventTime time.Time
}

// SubscribeOption configures a subscription.
type SubscribeOption func(*Subscription)

// WithPriority sets the dispatch priority. Higher runs first. Default 0.
func WithPriority(p int) SubscribeOption {
	return func(s *Subscription) {
		s.priority = p
	}
}

// WithMaxEvents expires the subscription after n processed events.
// Zero means no cap.
func WithMaxEvents(n int) SubscribeOption {
	return func(s *Subscription) {
		s.maxEvents = n
	}
}

// WithExpiration expires the subscription d after creation.
// Zero means no expiry.
func WithExpiration(d time.Duration) SubscribeOption {
	return func(s *Subscription) {
		s.expiration = d
	}
}

// WithSubscriptionID sets a specific ID (default: auto-generated UUID).
func WithSubscriptionID(id string) SubscribeOption {
	return func(s *Subscription) {
		s.id = id
	}
}

func newSubscription(p pattern.Pattern, h Handler, opts ...SubscribeOption) *Subscription {
	s := &Subscription{
		id:        uuid.New().String(),
		pattern:   p,
		handler:   h,
		createdAt: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.active.Store(true)
	return s
}

// ID returns the subscription ID.
func (s *Subscription) ID() string { return s.id }

// Pattern returns the subscription pattern.
func (s *Subscription) Pattern() pattern.Pattern { return s.pattern }

// Priority returns the dispatch priority.
func (s *Subscription) Priority() int { return s.priority }

// MaxEvents returns the event cap, or 0.
func (s *Subscription) MaxEvents() int { return s.maxEvents }

// Expiration returns the TTL, or 0.
func (s *Subscription) Expiration() time.Duration { return s.expiration }

// CreatedAt returns the creation time.
func (s *Subscription) CreatedAt() time.Time { return s.createdAt }

// IsActive reports whether the subscription is not paused.
func (s *Subscription) IsActive() bool { return s.active.Load() }

// Activate resumes a paused subscription.
func (s *Subscription) Activate() { s.active.Store(true) }

// Deactivate pauses the subscription without removing it.
func (s *Subscription) Deactivate() { s.active.Store(false) }

// EventsProcessed returns the number of handler invocations, failed ones included.
func (s *Subscription) EventsProcessed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processed
}

// LastEventTime returns when the handler last ran, or the zero time.
func (s *Subscription) LastEventTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastEventTime
}

// IsExpired reports whether the event cap is reached or the TTL elapsed.
func (s *Subscription) IsExpired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expiredLocked()
}

func (s *Subscription) expiredLocked() bool {
	if s.maxEvents > 0 && s.processed >= s.maxEvents {
		return true
	}
	return s.expiration > 0 && time.Since(s.createdAt) >= s.expiration
}

// Matches reports whether evt satisfies the pattern, ignoring lifecycle state.
func (s *Subscription) Matches(evt *event.Event) bool {
	return s.pattern.Matches(evt)
}

// Process invokes the handler and reports whether it ran.
//
// It is a no-op when the subscription is paused or when concurrent
// deliveries have already claimed every remaining slot under MaxEvents.
// The processed count and last event time are updated after the handler
// returns or panics. Panics propagate to the caller.
func (s *Subscription) Process(ctx context.Context, evt *event.Event) (bool, error) {
	if !s.IsActive() {
		return false, nil
	}

	s.mu.Lock()
	if s.maxEvents > 0 && s.processed+s.inFlight >= s.maxEvents {
		s.mu.Unlock()
		return false, nil
	}
	s.inFlight++
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inFlight--
		s.processed++
		s.lastEventTime = time.Now()
		s.mu.Unlock()
	}()

	return true, s.handler(ctx, evt)
}

// SubscriptionInfo is a point-in-time view of a subscription.
type SubscriptionInfo struct {
	ID              string        `json:"id"`
	Pattern         string        `json:"pattern"`
	Priority        int           `json:"priority"`
	MaxEvents       int           `json:"max_events,omitempty"`
	Expiration      time.Duration `json:"expiration,omitempty"`
	Active          bool          `json:"active"`
	Expired         bool          `json:"expired"`
	EventsProcessed int           `json:"events_processed"`
	CreatedAt       time.Time     `json:"created_at"`
	LastEventTime   time.Time     `json:"last_event_time,omitempty"`
}

// Snapshot returns the current state.
func (s *Subscription) Snapshot() SubscriptionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SubscriptionInfo{
		ID:              s.id,
		Pattern:         s.pattern.String(),
		Priority:        s.priority,
		MaxEvents:       s.maxEvents,
		Expiration:      s.expiration,
		Active:          s.active.Load(),
		Expired:         s.expiredLocked(),
		EventsProcessed: s.processed,
		CreatedAt:       s.createdAt,
		LastEventTime:   s.lastEventTime,
	}
}
