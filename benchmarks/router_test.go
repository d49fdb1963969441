package benchmarks

import (
	"context"
	"fmt"
	"testing"

	"github.com/randalmurphal/eventrouter/pkg/eventrouter/event"
	"github.com/randalmurphal/eventrouter/pkg/eventrouter/pattern"
	"github.com/randalmurphal/eventrouter/pkg/eventrouter/router"
	"github.com/randalmurphal/eventrouter/pkg/eventrouter/store"
)

func noop(context.Context, *event.Event) error { return nil }

// buildRouter subscribes n handlers spread over ten namespaces.
func buildRouter(b *testing.B, n int, kind string) *router.Router {
	b.Helper()
	m, err := pattern.NewMatcher(kind, 1000)
	if err != nil {
		b.Fatal(err)
	}
	r := router.New(router.Config{Matcher: m, MaxConcurrentDeliveries: 10})
	for i := 0; i < n; i++ {
		glob := fmt.Sprintf("ns%d.*", i%10)
		if _, err := r.Subscribe(pattern.Type(glob), noop, router.WithPriority(i)); err != nil {
			b.Fatal(err)
		}
	}
	return r
}

func benchmarkPublish(b *testing.B, subs int, kind string) {
	r := buildRouter(b, subs, kind)
	evt := event.MustNew("ns3.created", "bench")
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = r.Publish(ctx, evt, router.Sync)
	}
}

// BenchmarkPublish_Sync_10 publishes to a router with 10 subscriptions.
func BenchmarkPublish_Sync_10(b *testing.B) { benchmarkPublish(b, 10, pattern.KindDefault) }

// BenchmarkPublish_Sync_100 publishes to a router with 100 subscriptions.
func BenchmarkPublish_Sync_100(b *testing.B) { benchmarkPublish(b, 100, pattern.KindDefault) }

// BenchmarkPublish_Sync_100_Wildcard uses the compiled-glob matcher.
func BenchmarkPublish_Sync_100_Wildcard(b *testing.B) { benchmarkPublish(b, 100, pattern.KindWildcard) }

// BenchmarkPublish_Sync_100_Cached uses the result-caching matcher.
func BenchmarkPublish_Sync_100_Cached(b *testing.B) { benchmarkPublish(b, 100, pattern.KindCached) }

// BenchmarkPublish_Async_100 measures the publisher side of ASYNC delivery.
func BenchmarkPublish_Async_100(b *testing.B) {
	r := buildRouter(b, 100, pattern.KindWildcard)
	evt := event.MustNew("ns3.created", "bench")
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = r.Publish(ctx, evt, router.Async)
	}
	b.StopTimer()
	_ = r.Close(ctx)
}

// BenchmarkMatch_Attributes evaluates a pattern with attribute predicates.
func BenchmarkMatch_Attributes(b *testing.B) {
	p := pattern.New("order.*", map[string]pattern.Predicate{
		"amount":        pattern.Gte(100),
		"customer.tier": pattern.In("gold", "platinum"),
	})
	evt := event.MustNew("order.created", "bench", event.WithPayload(map[string]any{
		"amount":   250,
		"customer": map[string]any{"tier": "gold"},
	}))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = p.Matches(evt)
	}
}

// BenchmarkStore_Query filters a store of 10k events.
func BenchmarkStore_Query(b *testing.B) {
	s := store.New(store.Config{})
	for i := 0; i < 10_000; i++ {
		evt := event.MustNew(fmt.Sprintf("ns%d.tick", i%10), "bench",
			event.WithPayload(map[string]any{"n": i % 100}))
		if err := s.Store(evt); err != nil {
			b.Fatal(err)
		}
	}
	q := store.Query{Filter: store.Filter{"type": "ns3.tick", "n": 42}}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = s.Query(q)
	}
}
