package router

import (
	"context"
	"errors"
	"time"

	"github.com/randalmurphal/eventrouter/pkg/eventrouter/event"
	rterrors "github.com/randalmurphal/eventrouter/pkg/eventrouter/errors"
	"github.com/randalmurphal/eventrouter/pkg/eventrouter/observability"
)

// PublishWithRetry publishes evt up to maxRetries+1 times until an attempt
// has no failed deliveries. The wait before retry k (starting at 0) is
// retryDelay * 2^k.
//
// ASYNC attempts wait for their receipt before being judged. Every attempt
// reaches every matching subscription again, so handlers that already
// succeeded see the event more than once.
//
// It returns (true, nil) on success and (false, nil) when deliveries still
// fail after the last attempt. Publish errors such as ErrRouterClosed are
// permanent: they end the retries and are returned wrapped in a
// *errors.CategorizedError.
func (r *Router) PublishWithRetry(ctx context.Context, evt *event.Event, mode DeliveryMode, maxRetries int, retryDelay time.Duration) (bool, error) {
	if evt == nil {
		return false, ErrNilEvent
	}

	cfg := rterrors.RetryConfig{
		MaxAttempts:    max(maxRetries, 0) + 1,
		InitialBackoff: retryDelay,
		BackoffFactor:  2,
		OnRetry: func(attempt int, err error, wait time.Duration) {
			observability.LogRetry(r.logger, evt.ID, attempt, err, wait)
		},
	}

	result := rterrors.WithRetryContext(ctx, cfg, func(ctx context.Context) (bool, error) {
		receipt, err := r.Publish(ctx, evt, mode)
		if err != nil {
			return false, err
		}
		if err := receipt.Wait(ctx); err != nil {
			return false, err
		}
		if failed := receipt.Failed(); len(failed) > 0 {
			return false, &rterrors.DeliveryFailedError{
				EventID: evt.ID,
				Failed:  len(failed),
				Total:   receipt.Matched,
			}
		}
		return true, nil
	})

	if result.Err == nil {
		return true, nil
	}

	observability.LogRetryExhausted(r.logger, evt.ID, result.Attempts, result.Err)

	var dfe *rterrors.DeliveryFailedError
	if errors.As(result.Err, &dfe) {
		return false, nil
	}
	return false, result.Err
}
