package router

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"

	"github.com/randalmurphal/eventrouter/pkg/eventrouter/event"
	"github.com/randalmurphal/eventrouter/pkg/eventrouter/observability"
	"github.com/randalmurphal/eventrouter/pkg/eventrouter/pattern"
	"golang.org/x/sync/semaphore"
)

// Router errors.
var (
	ErrNilEvent     = errors.New("event is nil")
	ErrNilHandler   = errors.New("handler is nil")
	ErrUnknownMode  = errors.New("unknown delivery mode")
	ErrRouterClosed = errors.New("router is closed")
)

// ErrorHandler observes handler failures. It receives the event, the failing
// subscription and the handler's error (a *errors.PanicError for panics).
// Panics raised by an ErrorHandler are logged and swallowed.
type ErrorHandler func(evt *event.Event, sub *Subscription, err error)

// ErrorHandlerID identifies a registered ErrorHandler.
type ErrorHandlerID uint64

type errorHandlerEntry struct {
	id ErrorHandlerID
	fn ErrorHandler
}

// Config configures a Router.
type Config struct {
	// Matcher decides pattern matches. Default: pattern.DefaultMatcher.
	Matcher pattern.Matcher

	// Queue receives QUEUED deliveries. Default: a new MemoryQueue.
	Queue Queue

	// DeliveryConfirmation publishes a confirmation event after each
	// SYNC or ASYNC handler invocation.
	DeliveryConfirmation bool

	// MaxConcurrentDeliveries bounds concurrently running ASYNC handlers.
	// Default: 10
	MaxConcurrentDeliveries int

	// Logger for structured logging. Default: slog.Default().
	Logger *slog.Logger

	// Metrics records publish and delivery metrics. Default: NoopMetrics.
	Metrics observability.MetricsRecorder

	// Spans creates publish spans. Default: NoopSpanManager.
	Spans observability.SpanManager
}

// DefaultConfig provides reasonable defaults.
var DefaultConfig = Config{
	MaxConcurrentDeliveries: 10,
}

// Router delivers events to subscriptions whose patterns match.
//
// All methods are safe for concurrent use. Handlers run outside the
// router's locks and may subscribe, unsubscribe or publish.
type Router struct {
	matcher pattern.Matcher
	queue   Queue
	confirm bool
	sem     *semaphore.Weighted
	logger  *slog.Logger
	metrics observability.MetricsRecorder
	spans   observability.SpanManager

	mu            sync.RWMutex
	subscriptions []*Subscription
	errorHandlers []errorHandlerEntry
	nextHandlerID ErrorHandlerID

	closeMu  sync.RWMutex
	closed   bool
	inflight sync.WaitGroup

	counters counters
}

// New creates a router.
func New(cfg Config) *Router {
	if cfg.Matcher == nil {
		cfg.Matcher = pattern.DefaultMatcher{}
	}
	if cfg.Queue == nil {
		cfg.Queue = NewMemoryQueue()
	}
	if cfg.MaxConcurrentDeliveries <= 0 {
		cfg.MaxConcurrentDeliveries = DefaultConfig.MaxConcurrentDeliveries
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observability.NoopMetrics{}
	}
	if cfg.Spans == nil {
		cfg.Spans = observability.NoopSpanManager{}
	}

	return &Router{
		matcher: cfg.Matcher,
		queue:   cfg.Queue,
		confirm: cfg.DeliveryConfirmation,
		sem:     semaphore.NewWeighted(int64(cfg.MaxConcurrentDeliveries)),
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		spans:   cfg.Spans,
	}
}

// Queue returns the queue receiving QUEUED deliveries.
func (r *Router) Queue() Queue {
	return r.queue
}

// Matcher returns the router's matcher.
func (r *Router) Matcher() pattern.Matcher {
	return r.matcher
}

// Subscribe registers a handler for events matching p.
func (r *Router) Subscribe(p pattern.Pattern, h Handler, opts ...SubscribeOption) (*Subscription, error) {
	if h == nil {
		return nil, ErrNilHandler
	}
	sub := newSubscription(p, h, opts...)

	r.mu.Lock()
	r.subscriptions = append(r.subscriptions, sub)
	r.mu.Unlock()

	r.logger.Debug("subscription added",
		slog.String("subscription_id", sub.ID()),
		slog.String("pattern", p.String()),
		slog.Int("priority", sub.Priority()),
	)
	return sub, nil
}

// Unsubscribe removes sub and reports whether it was registered.
func (r *Router) Unsubscribe(sub *Subscription) bool {
	if sub == nil {
		return false
	}
	return r.UnsubscribeByID(sub.ID())
}

// UnsubscribeByID removes the subscription with the given ID.
func (r *Router) UnsubscribeByID(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, s := range r.subscriptions {
		if s.ID() == id {
			r.subscriptions = slices.Delete(r.subscriptions, i, i+1)
			return true
		}
	}
	return false
}

// Subscription returns the registered subscription with the given ID, or nil.
func (r *Router) Subscription(id string) *Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.subscriptions {
		if s.ID() == id {
			return s
		}
	}
	return nil
}

// Subscriptions returns every registered subscription in registration order.
func (r *Router) Subscriptions() []*Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.subscriptions)
}

// ActiveSubscriptions returns subscriptions that are neither paused nor expired.
func (r *Router) ActiveSubscriptions() []*Subscription {
	var active []*Subscription
	for _, s := range r.Subscriptions() {
		if s.IsActive() && !s.IsExpired() {
			active = append(active, s)
		}
	}
	return active
}

// PauseSubscription deactivates the subscription with the given ID.
func (r *Router) PauseSubscription(id string) bool {
	s := r.Subscription(id)
	if s == nil {
		return false
	}
	s.Deactivate()
	return true
}

// ResumeSubscription reactivates the subscription with the given ID.
func (r *Router) ResumeSubscription(id string) bool {
	s := r.Subscription(id)
	if s == nil {
		return false
	}
	s.Activate()
	return true
}

// CleanupExpiredSubscriptions removes expired subscriptions and returns
// how many were removed.
func (r *Router) CleanupExpiredSubscriptions() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	before := len(r.subscriptions)
	r.subscriptions = slices.DeleteFunc(r.subscriptions, func(s *Subscription) bool {
		return s.IsExpired()
	})
	removed := before - len(r.subscriptions)
	if removed > 0 {
		r.logger.Debug("expired subscriptions removed", slog.Int("count", removed))
	}
	return removed
}

// AddErrorHandler registers an observer of handler failures.
func (r *Router) AddErrorHandler(fn ErrorHandler) ErrorHandlerID {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextHandlerID++
	r.errorHandlers = append(r.errorHandlers, errorHandlerEntry{id: r.nextHandlerID, fn: fn})
	return r.nextHandlerID
}

// RemoveErrorHandler unregisters an error handler.
func (r *Router) RemoveErrorHandler(id ErrorHandlerID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.errorHandlers {
		if e.id == id {
			r.errorHandlers = slices.Delete(r.errorHandlers, i, i+1)
			return true
		}
	}
	return false
}

// notifyErrorHandlers runs every error handler, swallowing their panics.
func (r *Router) notifyErrorHandlers(evt *event.Event, sub *Subscription, err error) {
	r.mu.RLock()
	handlers := slices.Clone(r.errorHandlers)
	r.mu.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					observability.LogErrorHandlerFailed(r.logger, sub.ID(), rec)
				}
			}()
			h.fn(evt, sub, err)
		}()
	}
}

// Close stops accepting publishes and waits for in-flight ASYNC deliveries
// until ctx is done.
func (r *Router) Close(ctx context.Context) error {
	r.closeMu.Lock()
	r.closed = true
	r.closeMu.Unlock()

	done := make(chan struct{})
	go func() {
		r.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
