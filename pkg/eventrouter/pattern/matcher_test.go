package pattern_test

import (
	"testing"
	"time"

	"github.com/randalmurphal/eventrouter/pkg/eventrouter/event"
	"github.com/randalmurphal/eventrouter/pkg/eventrouter/pattern"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func allMatchers() []pattern.Matcher {
	return []pattern.Matcher{
		pattern.DefaultMatcher{},
		pattern.NewWildcardMatcher(),
		pattern.NewCachedMatcher(8),
	}
}

func TestMatchers_Agree(t *testing.T) {
	patterns := []pattern.Pattern{
		pattern.Any(),
		pattern.Type("order.*"),
		pattern.Type("order.**"),
		pattern.Type("!order.*"),
		pattern.Type("regex:^inv"),
		pattern.Type("regex:("),
		pattern.New("order.*", map[string]pattern.Predicate{"amount": pattern.Gt(10)}),
		pattern.New("*", map[string]pattern.Predicate{"user.tier": pattern.In("gold", "silver")}),
		pattern.New("order.*", map[string]pattern.Predicate{"id": pattern.Eq(1)}),
		pattern.New("order.*", map[string]pattern.Predicate{"id": pattern.Eq("1")}),
		pattern.New("order.*", map[string]pattern.Predicate{"id": pattern.In(1, 2)}),
		pattern.New("order.*", map[string]pattern.Predicate{"id": pattern.In("1", "2")}),
	}
	events := []*event.Event{
		event.MustNew("order.created", "svc", event.WithPayload(map[string]any{"amount": 20})),
		event.MustNew("order.created", "svc", event.WithPayload(map[string]any{"amount": 5})),
		event.MustNew("order.created", "svc", event.WithPayload(map[string]any{"id": 1})),
		event.MustNew("order.created", "svc", event.WithPayload(map[string]any{"id": "1"})),
		event.MustNew("order.created.v2", "svc"),
		event.MustNew("invoice.paid", "billing", event.WithPayload(map[string]any{
			"user": map[string]any{"tier": "gold"},
		})),
	}

	// Matchers are shared across patterns and run twice so cached and
	// compiled entries are hit.
	matchers := []pattern.Matcher{
		pattern.DefaultMatcher{},
		pattern.NewWildcardMatcher(),
		pattern.NewCachedMatcher(1000),
	}
	for round := 0; round < 2; round++ {
		for _, p := range patterns {
			for _, evt := range events {
				want := p.Matches(evt)
				for _, m := range matchers {
					assert.Equal(t, want, m.Matches(evt, p),
						"round %d kind %s pattern %s event %s", round, m.Kind(), p, evt.Type)
				}
			}
		}
	}
}

func TestWildcardMatcher_Memoizes(t *testing.T) {
	m := pattern.NewWildcardMatcher()
	evt := event.MustNew("order.created", "svc")

	assert.True(t, m.Matches(evt, pattern.Type("order.*")))
	assert.True(t, m.Matches(evt, pattern.Type("order.*")))
	assert.False(t, m.Matches(evt, pattern.Type("invoice.*")))
	assert.Equal(t, 2, m.CacheLen())

	m.ClearCache()
	assert.Equal(t, 0, m.CacheLen())
	assert.False(t, m.Matches(nil, pattern.Any()))
}

func TestCachedMatcher_FIFOEviction(t *testing.T) {
	m := pattern.NewCachedMatcher(3)
	p := pattern.Type("order.*")

	events := make([]*event.Event, 4)
	for i := range events {
		events[i] = event.MustNew("order.created", "svc", event.WithPayload(map[string]any{"i": i}))
	}

	m.Matches(events[0], p)
	m.Matches(events[1], p)
	m.Matches(events[2], p)

	// A hit on the oldest entry does not refresh its position.
	m.Matches(events[0], p)
	stats := m.CacheStats()
	assert.Equal(t, 3, stats.Size)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(3), stats.Misses)

	// Inserting a fourth entry evicts events[0], the first inserted.
	m.Matches(events[3], p)
	assert.Equal(t, 3, m.CacheStats().Size)

	m.Matches(events[1], p)
	assert.Equal(t, int64(2), m.CacheStats().Hits, "events[1] should still be cached")

	m.Matches(events[0], p)
	assert.Equal(t, int64(5), m.CacheStats().Misses, "events[0] should have been evicted")
}

func TestCachedMatcher_Stats(t *testing.T) {
	m := pattern.NewCachedMatcher(0)
	assert.Equal(t, pattern.DefaultCacheSize, m.CacheStats().MaxSize)

	m = pattern.NewCachedMatcher(4)
	m.Matches(event.MustNew("a", "s"), pattern.Any())
	stats := m.CacheStats()
	assert.Equal(t, 1, stats.Size)
	assert.Equal(t, 4, stats.MaxSize)
	assert.InDelta(t, 0.25, stats.Utilization, 1e-9)

	m.ClearCache()
	assert.Equal(t, 0, m.CacheStats().Size)
	assert.Equal(t, pattern.KindCached, m.Kind())
}

func TestCachedMatcher_KeyIncludesPayload(t *testing.T) {
	m := pattern.NewCachedMatcher(10)
	p := pattern.New("order.*", map[string]pattern.Predicate{"amount": pattern.Gt(10)})

	big := event.MustNew("order.created", "svc", event.WithPayload(map[string]any{"amount": 20}))
	small := event.MustNew("order.created", "svc", event.WithPayload(map[string]any{"amount": 5}))

	assert.True(t, m.Matches(big, p))
	assert.False(t, m.Matches(small, p))
	assert.True(t, m.Matches(big, p))
}

func TestNewMatcher(t *testing.T) {
	for _, kind := range []string{"", pattern.KindDefault, pattern.KindWildcard, pattern.KindCached} {
		m, err := pattern.NewMatcher(kind, 10)
		require.NoError(t, err)
		if kind == "" {
			assert.Equal(t, pattern.KindDefault, m.Kind())
		} else {
			assert.Equal(t, kind, m.Kind())
		}
	}

	_, err := pattern.NewMatcher("lru", 10)
	assert.Error(t, err)
}

type candidate struct {
	name     string
	p        pattern.Pattern
	active   bool
	expired  bool
	priority int
	created  time.Time
}

func (c candidate) Pattern() pattern.Pattern { return c.p }
func (c candidate) IsActive() bool           { return c.active }
func (c candidate) IsExpired() bool          { return c.expired }
func (c candidate) Priority() int            { return c.priority }
func (c candidate) CreatedAt() time.Time     { return c.created }

func TestFindMatching(t *testing.T) {
	base := time.Now()
	candidates := []candidate{
		{name: "low", p: pattern.Type("order.*"), active: true, priority: 1, created: base},
		{name: "high", p: pattern.Type("order.*"), active: true, priority: 5, created: base.Add(time.Second)},
		{name: "mid", p: pattern.Type("order.*"), active: true, priority: 3, created: base},
		{name: "mid-later", p: pattern.Type("*"), active: true, priority: 3, created: base.Add(time.Minute)},
		{name: "paused", p: pattern.Type("order.*"), active: false, priority: 9, created: base},
		{name: "expired", p: pattern.Type("order.*"), active: true, expired: true, priority: 9, created: base},
		{name: "other", p: pattern.Type("invoice.*"), active: true, priority: 9, created: base},
	}

	evt := event.MustNew("order.created", "svc")
	for _, m := range allMatchers() {
		t.Run(m.Kind(), func(t *testing.T) {
			matched := pattern.FindMatching(m, evt, candidates)
			names := make([]string, len(matched))
			for i, c := range matched {
				names[i] = c.name
			}
			assert.Equal(t, []string{"high", "mid", "mid-later", "low"}, names)
		})
	}
}

func BenchmarkMatchers(b *testing.B) {
	p := pattern.New("order.**", map[string]pattern.Predicate{"amount": pattern.Gte(10)})
	evt := event.MustNew("order.created.v2", "svc", event.WithPayload(map[string]any{"amount": 12}))

	for _, m := range allMatchers() {
		b.Run(m.Kind(), func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				m.Matches(evt, p)
			}
		})
	}
}
