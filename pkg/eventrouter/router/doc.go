// Package router delivers events to pattern-matched subscriptions.
//
// # Overview
//
// A Router holds subscriptions, each a pattern plus a handler with a
// lifecycle policy:
//
//	r := router.New(router.DefaultConfig)
//	sub, err := r.Subscribe(pattern.Type("order.*"), handle,
//	    router.WithPriority(10),
//	    router.WithMaxEvents(100),
//	)
//
// Publish selects the active, unexpired subscriptions whose pattern matches,
// orders them by descending priority (ties by creation time) and delivers
// according to the mode:
//
//   - Sync invokes handlers one after another before returning.
//   - Async runs each handler on its own goroutine, bounded by
//     MaxConcurrentDeliveries, and returns immediately.
//   - Queued enqueues one clone per subscription, tagged with
//     metadata["subscription_id"], and invokes nothing.
//
// # Failure Isolation
//
// A handler error or panic never reaches the publisher or other handlers.
// It is counted, logged, passed to every ErrorHandler and recorded on the
// returned Receipt. Error handlers that panic are logged and ignored.
//
// # Confirmations
//
// With DeliveryConfirmation set, every SYNC or ASYNC invocation publishes a
// "system.delivery.confirmation" event from source "event_router", caused by
// the delivered event and sharing its correlation. Confirmations are
// published SYNC and never confirm themselves.
//
// # Queue Consumption
//
// A Consumer drains the queue at a bounded rate and delivers each clone to
// the subscription it names:
//
//	c := router.NewConsumer(r, router.ConsumerConfig{Rate: 100})
//	go c.Run(ctx)
//
// # Retry
//
// PublishWithRetry republishes until an attempt has no failed deliveries,
// with exponential backoff between attempts.
package router
