package config

import (
	"fmt"
	"strings"
	"time"
)

// Settings configures a hub's components.
type Settings struct {
	Router     RouterSettings
	Store      StoreSettings
	Correlator CorrelatorSettings
	Replay     ReplaySettings
	Consumer   ConsumerSettings
}

// RouterSettings configures the router and its matcher.
type RouterSettings struct {
	// Matcher is "default", "wildcard" or "cached".
	Matcher string

	// CacheSize bounds the cached matcher.
	CacheSize int

	// MaxConcurrentDeliveries bounds concurrent ASYNC handler invocations.
	MaxConcurrentDeliveries int

	// DeliveryConfirmation publishes a confirmation event per delivery outcome.
	DeliveryConfirmation bool

	// DefaultMode is "sync", "async" or "queued".
	DefaultMode string
}

// RetentionSettings bounds stored events of one type. Zero fields are unset.
type RetentionSettings struct {
	MaxAge   time.Duration
	MaxCount int
}

// StoreSettings configures the event store.
type StoreSettings struct {
	// Retention maps event types to retention bounds.
	Retention map[string]RetentionSettings

	// ArchivePath enables the SQLite write-through archive when set.
	ArchivePath string

	// CleanupInterval runs retention sweeps periodically when positive.
	CleanupInterval time.Duration
}

// CorrelatorSettings bounds how long correlation chains are tracked.
type CorrelatorSettings struct {
	// MaxAge drops chains created longer ago than this. Zero keeps chains
	// until they are cleared.
	MaxAge time.Duration

	// CleanupInterval is the time between sweeps. Zero sweeps every MaxAge.
	CleanupInterval time.Duration
}

// ReplaySettings configures the replayer.
type ReplaySettings struct {
	// SpeedMultiplier scales original pacing. Zero replays without pauses.
	SpeedMultiplier float64

	// Mode is the delivery mode used for replayed events.
	Mode string
}

// ConsumerSettings configures the queue consumer.
type ConsumerSettings struct {
	// Rate limits queued deliveries per second. Zero means unlimited.
	Rate float64

	// Burst is the limiter burst size.
	Burst int

	// PollInterval is the wait between empty queue polls.
	PollInterval time.Duration
}

// DefaultSettings returns settings matching the zero-configuration behavior
// of the router: default matcher, ten concurrent deliveries, no
// confirmations and synchronous delivery.
func DefaultSettings() Settings {
	return Settings{
		Router: RouterSettings{
			Matcher:                 "default",
			CacheSize:               1000,
			MaxConcurrentDeliveries: 10,
			DefaultMode:             "sync",
		},
		Store: StoreSettings{
			Retention: map[string]RetentionSettings{},
		},
		Replay: ReplaySettings{
			Mode: "sync",
		},
		Consumer: ConsumerSettings{
			Burst:        1,
			PollInterval: 100 * time.Millisecond,
		},
	}
}

// Decode reads settings from cfg over DefaultSettings.
//
//	router:
//	  matcher: cached
//	  cache_size: 500
//	  max_concurrent_deliveries: 20
//	  delivery_confirmation: true
//	  default_mode: async
//	store:
//	  archive_path: ./events.db
//	  cleanup_interval: 1m
//	  retention:
//	    metrics.sample: {max_age: 1h, max_count: 1000}
//	correlator:
//	  max_age: 24h
//	  cleanup_interval: 10m
//	replay:
//	  speed_multiplier: 2
//	  mode: sync
//	consumer:
//	  rate: 50
//	  burst: 10
//	  poll_interval: 50ms
func Decode(cfg Config) (Settings, error) {
	s := DefaultSettings()

	router := cfg.Section("router")
	s.Router.Matcher = strings.ToLower(router.String("matcher", s.Router.Matcher))
	s.Router.CacheSize = router.Int("cache_size", s.Router.CacheSize)
	s.Router.MaxConcurrentDeliveries = router.Int("max_concurrent_deliveries", s.Router.MaxConcurrentDeliveries)
	s.Router.DeliveryConfirmation = router.Bool("delivery_confirmation", s.Router.DeliveryConfirmation)
	s.Router.DefaultMode = strings.ToLower(router.String("default_mode", s.Router.DefaultMode))

	store := cfg.Section("store")
	s.Store.ArchivePath = store.String("archive_path", "")
	s.Store.CleanupInterval = store.Duration("cleanup_interval", 0)
	retention := store.Section("retention")
	for _, eventType := range retention.Keys() {
		// Event types contain dots, so read each entry by exact key.
		policy := New(toStringMap(retention.Raw()[eventType]))
		rs := RetentionSettings{
			MaxAge:   policy.Duration("max_age", 0),
			MaxCount: policy.Int("max_count", 0),
		}
		if rs.MaxAge < 0 || rs.MaxCount < 0 {
			return Settings{}, fmt.Errorf("retention for %q: negative bound", eventType)
		}
		if rs.MaxAge == 0 && rs.MaxCount == 0 {
			return Settings{}, fmt.Errorf("retention for %q: max_age or max_count required", eventType)
		}
		s.Store.Retention[eventType] = rs
	}

	correlator := cfg.Section("correlator")
	s.Correlator.MaxAge = correlator.Duration("max_age", s.Correlator.MaxAge)
	s.Correlator.CleanupInterval = correlator.Duration("cleanup_interval", s.Correlator.CleanupInterval)

	replay := cfg.Section("replay")
	s.Replay.SpeedMultiplier = replay.Float("speed_multiplier", s.Replay.SpeedMultiplier)
	s.Replay.Mode = strings.ToLower(replay.String("mode", s.Replay.Mode))

	consumer := cfg.Section("consumer")
	s.Consumer.Rate = consumer.Float("rate", s.Consumer.Rate)
	s.Consumer.Burst = consumer.Int("burst", s.Consumer.Burst)
	s.Consumer.PollInterval = consumer.Duration("poll_interval", s.Consumer.PollInterval)

	return s, s.Validate()
}

// Validate checks value ranges. Mode and matcher names are checked by the
// packages that consume them.
func (s Settings) Validate() error {
	if s.Router.CacheSize < 0 {
		return fmt.Errorf("router.cache_size must not be negative")
	}
	if s.Router.MaxConcurrentDeliveries < 1 {
		return fmt.Errorf("router.max_concurrent_deliveries must be at least 1")
	}
	if s.Store.CleanupInterval < 0 {
		return fmt.Errorf("store.cleanup_interval must not be negative")
	}
	if s.Correlator.MaxAge < 0 {
		return fmt.Errorf("correlator.max_age must not be negative")
	}
	if s.Correlator.CleanupInterval < 0 {
		return fmt.Errorf("correlator.cleanup_interval must not be negative")
	}
	if s.Replay.SpeedMultiplier < 0 {
		return fmt.Errorf("replay.speed_multiplier must not be negative")
	}
	if s.Consumer.Rate < 0 {
		return fmt.Errorf("consumer.rate must not be negative")
	}
	if s.Consumer.Burst < 1 {
		return fmt.Errorf("consumer.burst must be at least 1")
	}
	return nil
}
