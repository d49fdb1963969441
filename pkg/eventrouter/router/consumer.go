package router

import (
	"context"
	"log/slog"
	"time"

	"github.com/randalmurphal/eventrouter/pkg/eventrouter/event"
	"golang.org/x/time/rate"
)

// ConsumerConfig configures a Consumer.
type ConsumerConfig struct {
	// Rate is the maximum deliveries per second. Zero means unlimited.
	Rate float64

	// Burst is the limiter's burst size. Default: 1
	Burst int

	// PollInterval is how long Run sleeps when the queue is empty.
	// Default: 100ms
	PollInterval time.Duration

	// Logger for structured logging. Default: slog.Default().
	Logger *slog.Logger
}

// Consumer drains a router's queue and delivers each clone to the
// subscription named in its metadata.
type Consumer struct {
	router  *Router
	queue   Queue
	limiter *rate.Limiter
	poll    time.Duration
	logger  *slog.Logger
}

// NewConsumer creates a consumer for r's queue.
func NewConsumer(r *Router, cfg ConsumerConfig) *Consumer {
	limit := rate.Inf
	if cfg.Rate > 0 {
		limit = rate.Limit(cfg.Rate)
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 100 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Consumer{
		router:  r,
		queue:   r.Queue(),
		limiter: rate.NewLimiter(limit, cfg.Burst),
		poll:    cfg.PollInterval,
		logger:  cfg.Logger,
	}
}

// DrainOnce delivers queued events until the queue is empty and returns how
// many handlers ran. Events addressed to removed, paused or expired
// subscriptions are dropped.
func (c *Consumer) DrainOnce(ctx context.Context) (int, error) {
	delivered := 0
	for {
		if err := ctx.Err(); err != nil {
			return delivered, err
		}
		if c.queue.Len() == 0 {
			return delivered, nil
		}
		// Wait before dequeueing so a cancelled wait leaves the queue
		// untouched and in order.
		if err := c.limiter.Wait(ctx); err != nil {
			return delivered, err
		}
		evt, ok := c.queue.Dequeue()
		if !ok {
			return delivered, nil
		}
		if c.deliver(ctx, evt) {
			delivered++
		}
	}
}

// Run drains the queue until ctx is done, polling when it is empty.
func (c *Consumer) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()

	for {
		if _, err := c.DrainOnce(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Consumer) deliver(ctx context.Context, evt *event.Event) bool {
	id, _ := evt.Metadata[MetadataSubscriptionID].(string)
	sub := c.router.Subscription(id)
	if sub == nil || sub.IsExpired() {
		c.logger.Debug("queued event dropped",
			slog.String("event_id", evt.ID),
			slog.String("subscription_id", id),
		)
		return false
	}

	receipt := newReceipt(evt.ID, Queued, 1)
	c.router.deliver(ctx, evt, sub, Queued, receipt, false)
	return receipt.Delivered() == 1
}
