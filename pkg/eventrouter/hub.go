package eventrouter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/randalmurphal/eventrouter/pkg/eventrouter/config"
	"github.com/randalmurphal/eventrouter/pkg/eventrouter/correlate"
	"github.com/randalmurphal/eventrouter/pkg/eventrouter/event"
	"github.com/randalmurphal/eventrouter/pkg/eventrouter/observability"
	"github.com/randalmurphal/eventrouter/pkg/eventrouter/pattern"
	"github.com/randalmurphal/eventrouter/pkg/eventrouter/replay"
	"github.com/randalmurphal/eventrouter/pkg/eventrouter/router"
	"github.com/randalmurphal/eventrouter/pkg/eventrouter/store"
	"golang.org/x/sync/errgroup"
)

// Prometheus naming for router counters.
const (
	MetricsNamespace = "eventrouter"
	MetricsSubsystem = "router"
)

// hubConfig holds optional collaborators for NewHub.
type hubConfig struct {
	logger     *slog.Logger
	metrics    observability.MetricsRecorder
	spans      observability.SpanManager
	registerer prometheus.Registerer
}

// HubOption configures NewHub.
type HubOption func(*hubConfig)

// WithLogger sets the logger shared by every component.
// Default: slog.Default()
func WithLogger(logger *slog.Logger) HubOption {
	return func(c *hubConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics enables OpenTelemetry metrics.
//
// Example:
//
//	hub, err := eventrouter.NewHub(settings,
//	    eventrouter.WithMetrics(observability.NewMetricsRecorder(nil)))
func WithMetrics(m observability.MetricsRecorder) HubOption {
	return func(c *hubConfig) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithSpans enables OpenTelemetry tracing.
func WithSpans(s observability.SpanManager) HubOption {
	return func(c *hubConfig) {
		if s != nil {
			c.spans = s
		}
	}
}

// WithRegisterer registers the router counters with a Prometheus registry.
func WithRegisterer(reg prometheus.Registerer) HubOption {
	return func(c *hubConfig) {
		c.registerer = reg
	}
}

// Hub wires a router with its store, correlator, replayer and queue
// consumer. Every live event published through the router is correlated
// and stored.
type Hub struct {
	Router     *router.Router
	Store      *store.MemoryStore
	Correlator *correlate.Correlator
	Replayer   *replay.Replayer
	Consumer   *router.Consumer
	Collector  *observability.CounterCollector

	// Archive is nil unless settings name an archive path.
	Archive *store.SQLiteArchive

	settings config.Settings
	mode     router.DeliveryMode
	observer *router.Subscription
	logger   *slog.Logger
}

// NewHub builds a hub from settings.
//
// Example:
//
//	settings, err := config.LoadSettings("eventrouter.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	hub, err := eventrouter.NewHub(settings)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer hub.Close(context.Background())
func NewHub(settings config.Settings, opts ...HubOption) (*Hub, error) {
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}

	cfg := hubConfig{
		logger:  slog.Default(),
		metrics: observability.NoopMetrics{},
		spans:   observability.NoopSpanManager{},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	matcher, err := pattern.NewMatcher(settings.Router.Matcher, settings.Router.CacheSize)
	if err != nil {
		return nil, err
	}
	mode, err := router.ParseDeliveryMode(settings.Router.DefaultMode)
	if err != nil {
		return nil, fmt.Errorf("router.default_mode: %w", err)
	}
	replayMode, err := router.ParseDeliveryMode(settings.Replay.Mode)
	if err != nil {
		return nil, fmt.Errorf("replay.mode: %w", err)
	}

	h := &Hub{settings: settings, mode: mode, logger: cfg.logger}

	var archive store.Archive
	if settings.Store.ArchivePath != "" {
		h.Archive, err = store.NewSQLiteArchive(settings.Store.ArchivePath)
		if err != nil {
			return nil, err
		}
		archive = h.Archive
	}

	h.Store = store.New(store.Config{Archive: archive, Logger: cfg.logger, Metrics: cfg.metrics})
	for eventType, rs := range settings.Store.Retention {
		policy := store.RetentionPolicy{MaxAge: rs.MaxAge, MaxCount: rs.MaxCount}
		if err := h.Store.SetRetentionPolicy(eventType, policy); err != nil {
			h.closeArchive()
			return nil, fmt.Errorf("retention for %q: %w", eventType, err)
		}
	}

	h.Router = router.New(router.Config{
		Matcher:                 matcher,
		DeliveryConfirmation:    settings.Router.DeliveryConfirmation,
		MaxConcurrentDeliveries: settings.Router.MaxConcurrentDeliveries,
		Logger:                  cfg.logger,
		Metrics:                 cfg.metrics,
		Spans:                   cfg.spans,
	})

	h.Correlator = correlate.New(correlate.Config{Store: h.Store, Logger: cfg.logger})
	if h.observer, err = h.Correlator.Observe(h.Router); err != nil {
		h.closeArchive()
		return nil, err
	}

	h.Replayer = replay.New(replay.Config{
		Store:   h.Store,
		Router:  h.Router,
		Mode:    replayMode,
		Logger:  cfg.logger,
		Metrics: cfg.metrics,
		Spans:   cfg.spans,
	})

	h.Consumer = router.NewConsumer(h.Router, router.ConsumerConfig{
		Rate:         settings.Consumer.Rate,
		Burst:        settings.Consumer.Burst,
		PollInterval: settings.Consumer.PollInterval,
		Logger:       cfg.logger,
	})

	h.Collector = observability.NewCounterCollector(MetricsNamespace, MetricsSubsystem, router.CounterKeys,
		func() map[string]int64 { return h.Router.Stats().Counters() })
	if cfg.registerer != nil {
		if err := cfg.registerer.Register(h.Collector); err != nil {
			h.closeArchive()
			return nil, fmt.Errorf("register collector: %w", err)
		}
	}

	return h, nil
}

// Mode returns the configured default delivery mode.
func (h *Hub) Mode() router.DeliveryMode {
	return h.mode
}

// Publish publishes evt in the configured default mode.
func (h *Hub) Publish(ctx context.Context, evt *event.Event) (*router.Receipt, error) {
	return h.Router.Publish(ctx, evt, h.mode)
}

// ReplayCorrelation replays one correlation at the configured speed.
func (h *Hub) ReplayCorrelation(ctx context.Context, correlationID string) (replay.Result, error) {
	return h.Replayer.ReplayByCorrelationID(ctx, correlationID, h.settings.Replay.SpeedMultiplier)
}

// Run drains the queue until ctx is done. It also sweeps retention when a
// store cleanup interval is set, and expires correlation chains when a
// correlator max age is set. It returns nil on cancellation.
func (h *Hub) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return h.Consumer.Run(ctx) })
	if interval := h.settings.Store.CleanupInterval; interval > 0 {
		g.Go(func() error { return h.Store.RunRetention(ctx, interval) })
	}
	if maxAge := h.settings.Correlator.MaxAge; maxAge > 0 {
		interval := h.settings.Correlator.CleanupInterval
		if interval == 0 {
			interval = maxAge
		}
		g.Go(func() error { return h.Correlator.RunCleanup(ctx, interval, maxAge) })
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// Close stops accepting events, waits for in-flight ASYNC deliveries until
// ctx is done, then closes the archive.
func (h *Hub) Close(ctx context.Context) error {
	h.Router.Unsubscribe(h.observer)
	err := h.Router.Close(ctx)
	if archiveErr := h.closeArchive(); archiveErr != nil && err == nil {
		err = archiveErr
	}
	return err
}

func (h *Hub) closeArchive() error {
	if h.Archive == nil {
		return nil
	}
	return h.Archive.Close()
}
