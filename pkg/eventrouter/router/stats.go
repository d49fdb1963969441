package router

import "sync/atomic"

// Counter keys reported by Stats.Counters.
const (
	CounterEventsPublished        = "events_published"
	CounterSuccessfulDeliveries   = "successful_deliveries"
	CounterFailedDeliveries       = "failed_deliveries"
	CounterSyncDeliveries         = "sync_deliveries"
	CounterAsyncDeliveries        = "async_deliveries"
	CounterQueuedDeliveries       = "queued_deliveries"
	CounterConfirmationsPublished = "confirmations_published"
)

// CounterKeys lists every key of Stats.Counters in a stable order.
var CounterKeys = []string{
	CounterEventsPublished,
	CounterSuccessfulDeliveries,
	CounterFailedDeliveries,
	CounterSyncDeliveries,
	CounterAsyncDeliveries,
	CounterQueuedDeliveries,
	CounterConfirmationsPublished,
}

// counters are monotonically increasing totals since the router was created.
type counters struct {
	eventsPublished        atomic.Int64
	successfulDeliveries   atomic.Int64
	failedDeliveries       atomic.Int64
	syncDeliveries         atomic.Int64
	asyncDeliveries        atomic.Int64
	queuedDeliveries       atomic.Int64
	confirmationsPublished atomic.Int64
}

// Stats is a point-in-time view of the router.
type Stats struct {
	TotalSubscriptions   int    `json:"total_subscriptions"`
	ActiveSubscriptions  int    `json:"active_subscriptions"`
	PausedSubscriptions  int    `json:"paused_subscriptions"`
	ExpiredSubscriptions int    `json:"expired_subscriptions"`
	ErrorHandlers        int    `json:"error_handlers"`
	QueueSize            int    `json:"queue_size"`
	MatcherKind          string `json:"matcher"`

	EventsPublished        int64 `json:"events_published"`
	SuccessfulDeliveries   int64 `json:"successful_deliveries"`
	FailedDeliveries       int64 `json:"failed_deliveries"`
	SyncDeliveries         int64 `json:"sync_deliveries"`
	AsyncDeliveries        int64 `json:"async_deliveries"`
	QueuedDeliveries       int64 `json:"queued_deliveries"`
	ConfirmationsPublished int64 `json:"confirmations_published"`
}

// Counters returns the monotonic counters keyed by CounterKeys.
func (s Stats) Counters() map[string]int64 {
	return map[string]int64{
		CounterEventsPublished:        s.EventsPublished,
		CounterSuccessfulDeliveries:   s.SuccessfulDeliveries,
		CounterFailedDeliveries:       s.FailedDeliveries,
		CounterSyncDeliveries:         s.SyncDeliveries,
		CounterAsyncDeliveries:        s.AsyncDeliveries,
		CounterQueuedDeliveries:       s.QueuedDeliveries,
		CounterConfirmationsPublished: s.ConfirmationsPublished,
	}
}

// Stats returns subscription counts and delivery counters.
func (r *Router) Stats() Stats {
	r.mu.RLock()
	subs := r.subscriptions
	s := Stats{
		TotalSubscriptions: len(subs),
		ErrorHandlers:      len(r.errorHandlers),
	}
	for _, sub := range subs {
		switch {
		case sub.IsExpired():
			s.ExpiredSubscriptions++
		case sub.IsActive():
			s.ActiveSubscriptions++
		default:
			s.PausedSubscriptions++
		}
	}
	r.mu.RUnlock()

	s.QueueSize = r.queue.Len()
	s.MatcherKind = r.matcher.Kind()
	s.EventsPublished = r.counters.eventsPublished.Load()
	s.SuccessfulDeliveries = r.counters.successfulDeliveries.Load()
	s.FailedDeliveries = r.counters.failedDeliveries.Load()
	s.SyncDeliveries = r.counters.syncDeliveries.Load()
	s.AsyncDeliveries = r.counters.asyncDeliveries.Load()
	s.QueuedDeliveries = r.counters.queuedDeliveries.Load()
	s.ConfirmationsPublished = r.counters.confirmationsPublished.Load()
	return s
}
