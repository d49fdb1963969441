package eventrouter_test

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/randalmurphal/eventrouter/pkg/eventrouter"
	"github.com/randalmurphal/eventrouter/pkg/eventrouter/config"
	"github.com/randalmurphal/eventrouter/pkg/eventrouter/event"
	"github.com/randalmurphal/eventrouter/pkg/eventrouter/pattern"
	"github.com/randalmurphal/eventrouter/pkg/eventrouter/router"
	"github.com/randalmurphal/eventrouter/pkg/eventrouter/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHub(t *testing.T, settings config.Settings, opts ...eventrouter.HubOption) *eventrouter.Hub {
	t.Helper()
	hub, err := eventrouter.NewHub(settings, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = hub.Close(context.Background()) })
	return hub
}

func TestHub_PublishCorrelatesAndStores(t *testing.T) {
	hub := newHub(t, config.DefaultSettings())
	ctx := context.Background()

	var got []*event.Event
	_, err := hub.Router.Subscribe(pattern.Type("order.*"), func(_ context.Context, evt *event.Event) error {
		got = append(got, evt)
		return nil
	})
	require.NoError(t, err)

	evt := event.MustNew("order.created", "shop", event.WithPayload(map[string]any{"id": 1}))
	receipt, err := hub.Publish(ctx, evt)
	require.NoError(t, err)
	assert.Equal(t, router.Sync, hub.Mode())
	assert.Equal(t, 2, receipt.Matched)

	require.Len(t, got, 1)
	assert.Same(t, evt, got[0])

	corrID, ok := hub.Correlator.CorrelationIDFor(evt.ID)
	require.True(t, ok)
	stored, ok := hub.Store.Get(evt.ID)
	require.True(t, ok)
	assert.Equal(t, corrID, stored.CorrelationID)

	_, err = hub.Publish(ctx, event.MustNew("invoice.created", "billing"))
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, 2, hub.Store.Len())
}

func TestHub_InvalidSettings(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*config.Settings)
		want   string
	}{
		{"matcher", func(s *config.Settings) { s.Router.Matcher = "fuzzy" }, "unknown matcher"},
		{"default mode", func(s *config.Settings) { s.Router.DefaultMode = "later" }, "router.default_mode"},
		{"replay mode", func(s *config.Settings) { s.Replay.Mode = "later" }, "replay.mode"},
		{"concurrency", func(s *config.Settings) { s.Router.MaxConcurrentDeliveries = 0 }, "max_concurrent_deliveries"},
		{"retention", func(s *config.Settings) {
			s.Store.Retention["x"] = config.RetentionSettings{}
		}, "retention"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := config.DefaultSettings()
			tt.modify(&s)
			_, err := eventrouter.NewHub(s)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestHub_Archive(t *testing.T) {
	ctx := context.Background()
	s := config.DefaultSettings()
	s.Store.ArchivePath = filepath.Join(t.TempDir(), "events.db")

	hub, err := eventrouter.NewHub(s)
	require.NoError(t, err)
	require.NotNil(t, hub.Archive)

	evt := event.MustNew("order.created", "shop")
	_, err = hub.Publish(ctx, evt)
	require.NoError(t, err)

	n, err := hub.Archive.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, hub.Close(ctx))
	assert.ErrorIs(t, hub.Archive.Append(ctx, evt), store.ErrArchiveClosed)

	_, err = hub.Publish(ctx, event.MustNew("order.paid", "shop"))
	assert.ErrorIs(t, err, router.ErrRouterClosed)
}

func TestHub_RunDrainsQueueAndSweepsRetention(t *testing.T) {
	s := config.DefaultSettings()
	s.Router.DefaultMode = "queued"
	s.Consumer.PollInterval = 5 * time.Millisecond
	s.Store.CleanupInterval = 5 * time.Millisecond
	s.Store.Retention["metric"] = config.RetentionSettings{MaxCount: 1}
	hub := newHub(t, s)

	assert.Equal(t, map[string]store.RetentionPolicy{"metric": {MaxCount: 1}}, hub.Store.RetentionPolicies())

	var mu sync.Mutex
	handled := 0
	_, err := hub.Router.Subscribe(pattern.Type("metric"), func(context.Context, *event.Event) error {
		mu.Lock()
		handled++
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	for _i := 0; _i < 3; _i++ {
		_, err := hub.Publish(ctx, event.MustNew("metric", "sensor"))
		require.NoError(t, err)
	}
	assert.Equal(t, 6, hub.Router.Queue().Len())

	errc := make(chan error, 1)
	go func() { errc <- hub.Run(ctx) }()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return handled == 3 && len(hub.Store.ByType("metric")) == 1
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	assert.NoError(t, <-errc)
}

func TestHub_RunExpiresCorrelationChains(t *testing.T) {
	s := config.DefaultSettings()
	s.Consumer.PollInterval = 5 * time.Millisecond
	s.Correlator.MaxAge = 30 * time.Millisecond
	s.Correlator.CleanupInterval = 10 * time.Millisecond
	hub := newHub(t, s)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	for _i := 0; _i < 3; _i++ {
		_, err := hub.Publish(ctx, event.MustNew("order.created", "shop"))
		require.NoError(t, err)
	}
	require.Equal(t, 3, hub.Correlator.Stats().Chains)

	errc := make(chan error, 1)
	go func() { errc <- hub.Run(ctx) }()

	require.Eventually(t, func() bool {
		stats := hub.Correlator.Stats()
		return stats.Chains == 0 && stats.TrackedEvents == 0
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 3, hub.Store.Len(), "stored events outlive their chains")

	cancel()
	assert.NoError(t, <-errc)
}

func TestHub_QueuedModeKeepsChains(t *testing.T) {
	s := config.DefaultSettings()
	s.Router.DefaultMode = "queued"
	hub := newHub(t, s)
	ctx := context.Background()

	root := event.MustNew("order.created", "shop")
	child, err := root.Derive("order.paid", map[string]any{"amount": 10})
	require.NoError(t, err)
	for _, evt := range []*event.Event{root, child} {
		_, err := hub.Publish(ctx, evt)
		require.NoError(t, err)
	}
	assert.Equal(t, 0, hub.Store.Len(), "nothing is stored before the queue drains")

	_, err = hub.Consumer.DrainOnce(ctx)
	require.NoError(t, err)

	_, ok := hub.Store.Get(root.ID)
	assert.True(t, ok)
	_, ok = hub.Store.Get(child.ID)
	assert.True(t, ok)
	assert.Equal(t, 2, hub.Store.Len())

	chain := hub.Correlator.Chain(root.ID)
	require.Len(t, chain, 2)
	assert.Equal(t, root.ID, chain[0].ID)
	assert.Equal(t, child.ID, chain[1].ID)
	assert.Len(t, hub.Correlator.ChainIDs(), 1)
}

func TestHub_ReplayCorrelation(t *testing.T) {
	hub := newHub(t, config.DefaultSettings())
	ctx := context.Background()

	var replays []bool
	_, err := hub.Router.Subscribe(pattern.Type("order.*"), func(_ context.Context, evt *event.Event) error {
		replays = append(replays, evt.IsReplay)
		return nil
	})
	require.NoError(t, err)

	_, err = hub.Publish(ctx, event.MustNew("order.created", "shop", event.WithCorrelationID("c1")))
	require.NoError(t, err)
	_, err = hub.Publish(ctx, event.MustNew("order.paid", "shop", event.WithCorrelationID("c1")))
	require.NoError(t, err)

	res, err := hub.ReplayCorrelation(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Replayed)
	assert.Equal(t, []bool{false, false, true, true}, replays)
	assert.Equal(t, 2, hub.Store.Len(), "replays are not stored again")
	assert.Len(t, hub.Correlator.Chain("c1"), 2)
}

func TestHub_PrometheusCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	hub := newHub(t, config.DefaultSettings(), eventrouter.WithRegisterer(reg))

	for _i := 0; _i < 2; _i++ {
		_, err := hub.Publish(context.Background(), event.MustNew("tick", "clock"))
		require.NoError(t, err)
	}

	expected := `
# HELP eventrouter_router_events_published Event router counter events_published
# TYPE eventrouter_router_events_published gauge
eventrouter_router_events_published 2
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"eventrouter_router_events_published"))

	_, err := eventrouter.NewHub(config.DefaultSettings(), eventrouter.WithRegisterer(reg))
	assert.ErrorContains(t, err, "register collector")
}
