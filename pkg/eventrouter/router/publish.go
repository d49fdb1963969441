package router

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/randalmurphal/eventrouter/pkg/eventrouter/event"
	rterrors "github.com/randalmurphal/eventrouter/pkg/eventrouter/errors"
	"github.com/randalmurphal/eventrouter/pkg/eventrouter/observability"
	"github.com/randalmurphal/eventrouter/pkg/eventrouter/pattern"
)

// Confirmation event identity.
const (
	ConfirmationEventType = "system.delivery.confirmation"
	ConfirmationSource    = "event_router"
)

// Metadata keys stamped on QUEUED clones: the target subscription and the
// ID of the event the clone was made from.
const (
	MetadataSubscriptionID  = "subscription_id"
	MetadataOriginalEventID = "original_event_id"
)

// Publish delivers evt to every active, unexpired subscription whose pattern
// matches, in descending priority order with ties broken by creation time.
//
// Handler failures never surface here; they are reported to error handlers
// and recorded on the returned Receipt. Publish fails only for a nil event,
// an unknown mode or a closed router.
func (r *Router) Publish(ctx context.Context, evt *event.Event, mode DeliveryMode) (*Receipt, error) {
	if evt == nil {
		return nil, ErrNilEvent
	}
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownMode, int(mode))
	}

	r.closeMu.RLock()
	closed := r.closed
	r.closeMu.RUnlock()
	if closed {
		return nil, ErrRouterClosed
	}

	return r.dispatch(ctx, evt, mode, r.confirm)
}

// dispatch routes evt. Confirmation events are dispatched with confirm
// unset so they never trigger confirmations of their own.
func (r *Router) dispatch(ctx context.Context, evt *event.Event, mode DeliveryMode, confirm bool) (receipt *Receipt, err error) {
	ctx, span := r.spans.StartPublishSpan(ctx, evt, mode.String())
	defer func() {
		r.spans.EndSpanWithError(span, err)
	}()

	matched := pattern.FindMatching(r.matcher, evt, r.Subscriptions())

	if mode == Async && len(matched) > 0 {
		r.closeMu.RLock()
		if r.closed {
			r.closeMu.RUnlock()
			return nil, ErrRouterClosed
		}
		r.inflight.Add(len(matched))
		r.closeMu.RUnlock()
	}

	r.counters.eventsPublished.Add(1)
	r.metrics.RecordPublish(ctx, evt.Type, mode.String(), len(matched))
	observability.LogPublish(r.logger, evt, mode.String(), len(matched))

	receipt = newReceipt(evt.ID, mode, len(matched))

	switch mode {
	case Sync:
		for _, sub := range matched {
			r.deliver(ctx, evt, sub, mode, receipt, confirm)
		}

	case Async:
		// Handlers outlive the publish call, so they must not inherit its
		// cancellation.
		detached := context.WithoutCancel(ctx)
		for _, sub := range matched {
			sub := sub
			go func() {
				defer r.inflight.Done()
				if err := r.sem.Acquire(detached, 1); err != nil {
					receipt.record(Outcome{SubscriptionID: sub.ID(), EventID: evt.ID, Skipped: true})
					return
				}
				defer r.sem.Release(1)
				r.deliver(detached, evt, sub, mode, receipt, confirm)
			}()
		}

	case Queued:
		for _, sub := range matched {
			r.enqueue(evt, sub, receipt)
		}
	}

	return receipt, nil
}

// enqueue buffers a clone of evt addressed to sub.
func (r *Router) enqueue(evt *event.Event, sub *Subscription, receipt *Receipt) {
	clone := evt.Clone()
	clone.ID = uuid.New().String()
	clone.Metadata[MetadataSubscriptionID] = sub.ID()
	clone.Metadata[MetadataOriginalEventID] = evt.ID

	if err := r.queue.Enqueue(clone); err != nil {
		r.counters.failedDeliveries.Add(1)
		observability.LogDeliveryFailed(r.logger, evt, sub.ID(), err)
		r.notifyErrorHandlers(evt, sub, err)
		receipt.record(Outcome{SubscriptionID: sub.ID(), EventID: clone.ID, Err: err})
		return
	}

	r.counters.queuedDeliveries.Add(1)
	observability.LogQueued(r.logger, clone, sub.ID())
	receipt.record(Outcome{SubscriptionID: sub.ID(), EventID: clone.ID, Queued: true})
}

// deliver invokes sub's handler for evt, isolating failures.
func (r *Router) deliver(ctx context.Context, evt *event.Event, sub *Subscription, mode DeliveryMode, receipt *Receipt, confirm bool) {
	start := time.Now()
	spanCtx, span := r.spans.StartDeliverySpan(ctx, evt, sub.ID())
	ran, err := invoke(spanCtx, evt, sub)
	r.spans.EndSpanWithError(span, err)
	if !ran {
		receipt.record(Outcome{SubscriptionID: sub.ID(), EventID: evt.ID, Skipped: true})
		return
	}

	r.metrics.RecordDelivery(ctx, evt.Type, mode.String(), time.Since(start), err)
	switch mode {
	case Sync:
		r.counters.syncDeliveries.Add(1)
	case Async:
		r.counters.asyncDeliveries.Add(1)
	}

	if err != nil {
		r.counters.failedDeliveries.Add(1)
		observability.LogDeliveryFailed(r.logger, evt, sub.ID(), err)
		r.notifyErrorHandlers(evt, sub, err)
	} else {
		r.counters.successfulDeliveries.Add(1)
	}

	outcome := Outcome{SubscriptionID: sub.ID(), EventID: evt.ID}
	if err != nil {
		outcome.Err = &rterrors.HandlerError{
			SubscriptionID: sub.ID(),
			EventID:        evt.ID,
			EventType:      evt.Type,
			Err:            err,
		}
	}
	receipt.record(outcome)

	if confirm {
		r.publishConfirmation(ctx, evt, sub, err)
	}
}

// invoke runs the handler, converting a panic into a *errors.PanicError.
func invoke(ctx context.Context, evt *event.Event, sub *Subscription) (ran bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			ran = true
			err = &rterrors.PanicError{Value: rec, Stack: debug.Stack()}
		}
	}()
	return sub.Process(ctx, evt)
}

// publishConfirmation publishes a SYNC confirmation for one delivery.
func (r *Router) publishConfirmation(ctx context.Context, evt *event.Event, sub *Subscription, deliveryErr error) {
	var errMsg any
	if deliveryErr != nil {
		errMsg = deliveryErr.Error()
	}
	correlationID := evt.CorrelationID
	if correlationID == "" {
		correlationID = evt.ID
	}

	conf, err := event.New(ConfirmationEventType, ConfirmationSource,
		event.WithPayload(map[string]any{
			"original_event_id":   evt.ID,
			"original_event_type": evt.Type,
			"subscription_id":     sub.ID(),
			"success":             deliveryErr == nil,
			"error_message":       errMsg,
			"delivery_timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		}),
		event.WithCorrelationID(correlationID),
		event.WithCausationID(evt.ID),
	)
	if err != nil {
		r.logger.Error("confirmation build failed", "event_id", evt.ID, "error", err)
		return
	}

	r.counters.confirmationsPublished.Add(1)
	if _, err := r.dispatch(ctx, conf, Sync, false); err != nil {
		r.logger.Error("confirmation publish failed", "event_id", evt.ID, "error", err)
	}
}
