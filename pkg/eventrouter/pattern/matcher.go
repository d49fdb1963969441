package pattern

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/randalmurphal/eventrouter/pkg/eventrouter/event"
	"github.com/spaolacci/murmur3"
)

// Matcher kinds accepted by NewMatcher.
const (
	KindDefault  = "default"
	KindWildcard = "wildcard"
	KindCached   = "cached"
)

// DefaultCacheSize bounds CachedMatcher when no size is given.
const DefaultCacheSize = 1000

// Matcher evaluates patterns against events. Every implementation returns
// the same result for the same (event, pattern) pair.
type Matcher interface {
	// Matches reports whether evt satisfies p.
	Matches(evt *event.Event, p Pattern) bool

	// Kind names the strategy.
	Kind() string
}

// Candidate is anything FindMatching can select, typically a subscription.
type Candidate interface {
	Pattern() Pattern
	IsActive() bool
	IsExpired() bool
	Priority() int
	CreatedAt() time.Time
}

// FindMatching returns the active, unexpired candidates whose pattern matches
// evt, ordered by priority (highest first) and then by creation time.
func FindMatching[C Candidate](m Matcher, evt *event.Event, candidates []C) []C {
	var matched []C
	for _, c := range candidates {
		if !c.IsActive() || c.IsExpired() {
			continue
		}
		if m.Matches(evt, c.Pattern()) {
			matched = append(matched, c)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].Priority() != matched[j].Priority() {
			return matched[i].Priority() > matched[j].Priority()
		}
		return matched[i].CreatedAt().Before(matched[j].CreatedAt())
	})
	return matched
}

// NewMatcher builds a matcher by kind. cacheSize applies to KindCached.
func NewMatcher(kind string, cacheSize int) (Matcher, error) {
	switch kind {
	case "", KindDefault:
		return DefaultMatcher{}, nil
	case KindWildcard:
		return NewWildcardMatcher(), nil
	case KindCached:
		return NewCachedMatcher(cacheSize), nil
	default:
		return nil, fmt.Errorf("unknown matcher kind %q", kind)
	}
}

// DefaultMatcher delegates to Pattern.Matches, compiling on every call.
type DefaultMatcher struct{}

// Compile-time interface check.
var _ Matcher = DefaultMatcher{}

// Matches implements Matcher.
func (DefaultMatcher) Matches(evt *event.Event, p Pattern) bool {
	return p.Matches(evt)
}

// Kind implements Matcher.
func (DefaultMatcher) Kind() string { return KindDefault }

// WildcardMatcher memoizes compiled type globs by their literal pattern string.
type WildcardMatcher struct {
	mu       sync.RWMutex
	compiled map[string]TypeMatcher
}

// NewWildcardMatcher creates an empty wildcard matcher.
func NewWildcardMatcher() *WildcardMatcher {
	return &WildcardMatcher{compiled: make(map[string]TypeMatcher)}
}

// Matches implements Matcher.
func (m *WildcardMatcher) Matches(evt *event.Event, p Pattern) bool {
	if evt == nil {
		return false
	}
	return m.typeMatcher(p.EventType)(evt.Type) && p.MatchesAttributes(evt.Payload)
}

func (m *WildcardMatcher) typeMatcher(glob string) TypeMatcher {
	m.mu.RLock()
	tm, ok := m.compiled[glob]
	m.mu.RUnlock()
	if ok {
		return tm
	}

	tm = Compile(glob)
	m.mu.Lock()
	m.compiled[glob] = tm
	m.mu.Unlock()
	return tm
}

// Kind implements Matcher.
func (m *WildcardMatcher) Kind() string { return KindWildcard }

// CacheLen returns the number of compiled globs.
func (m *WildcardMatcher) CacheLen() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.compiled)
}

// ClearCache drops every compiled glob.
func (m *WildcardMatcher) ClearCache() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.compiled = make(map[string]TypeMatcher)
}

// CachedMatcher memoizes match results keyed by event type, source, pattern
// and a murmur3 hash of the payload. When full it evicts the oldest inserted
// entry (FIFO); hits do not refresh an entry's position.
type CachedMatcher struct {
	mu      sync.Mutex
	size    int
	results map[string]bool
	order   []string
	hits    int64
	misses  int64
}

// CacheStats describes a CachedMatcher's occupancy.
type CacheStats struct {
	Size        int
	MaxSize     int
	Utilization float64
	Hits        int64
	Misses      int64
}

// NewCachedMatcher creates a cached matcher bounded to size entries.
// A non-positive size uses DefaultCacheSize.
func NewCachedMatcher(size int) *CachedMatcher {
	if size <= 0 {
		size = DefaultCacheSize
	}
	return &CachedMatcher{
		size:    size,
		results: make(map[string]bool, size),
	}
}

// Matches implements Matcher.
func (m *CachedMatcher) Matches(evt *event.Event, p Pattern) bool {
	if evt == nil {
		return false
	}
	key := cacheKey(evt, p)

	m.mu.Lock()
	if result, ok := m.results[key]; ok {
		m.hits++
		m.mu.Unlock()
		return result
	}
	m.misses++
	m.mu.Unlock()

	result := p.Matches(evt)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.results[key]; ok {
		return result
	}
	for len(m.order) >= m.size {
		oldest := m.order[0]
		m.order = m.order[1:]
		delete(m.results, oldest)
	}
	m.results[key] = result
	m.order = append(m.order, key)
	return result
}

// Kind implements Matcher.
func (m *CachedMatcher) Kind() string { return KindCached }

// ClearCache drops every memoized result.
func (m *CachedMatcher) ClearCache() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = make(map[string]bool, m.size)
	m.order = nil
}

// CacheStats returns the current occupancy.
func (m *CachedMatcher) CacheStats() CacheStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return CacheStats{
		Size:        len(m.results),
		MaxSize:     m.size,
		Utilization: float64(len(m.results)) / float64(m.size),
		Hits:        m.hits,
		Misses:      m.misses,
	}
}

func cacheKey(evt *event.Event, p Pattern) string {
	return fmt.Sprintf("%s|%s|%s|%016x", evt.Type, evt.Source, p.String(), payloadHash(evt.Payload))
}

// payloadHash hashes the canonical JSON form of the payload. encoding/json
// sorts map keys, so equal payloads hash equally.
func payloadHash(payload map[string]any) uint64 {
	data, err := json.Marshal(payload)
	if err != nil {
		data = []byte(fmt.Sprintf("%v", payload))
	}
	return murmur3.Sum64(data)
}
