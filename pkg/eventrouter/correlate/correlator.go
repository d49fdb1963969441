package correlate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/randalmurphal/eventrouter/pkg/eventrouter/event"
	"github.com/randalmurphal/eventrouter/pkg/eventrouter/pattern"
	"github.com/randalmurphal/eventrouter/pkg/eventrouter/router"
)

// CorrelationIDPrefix starts every minted correlation ID.
const CorrelationIDPrefix = "corr_"

// ErrUnknownEvent is returned by Associate for an event never correlated.
var ErrUnknownEvent = errors.New("event not correlated")

// Sink receives every correlated event.
type Sink interface {
	Store(evt *event.Event) error
}

// Config configures a Correlator.
type Config struct {
	// Store, when set, receives each event after it is correlated.
	Store Sink

	// Logger for structured logging. Default: slog.Default().
	Logger *slog.Logger
}

// ChainInfo describes one correlation chain.
type ChainInfo struct {
	CorrelationID string    `json:"correlation_id"`
	RootEventID   string    `json:"root_event_id"`
	EventIDs      []string  `json:"event_ids"`
	CreatedAt     time.Time `json:"created_at"`
	LastUpdated   time.Time `json:"last_updated"`
}

type chain struct {
	rootEventID string
	eventIDs    []string
	createdAt   time.Time
	lastUpdated time.Time
}

func (c *chain) add(eventID string) {
	if !slices.Contains(c.eventIDs, eventID) {
		c.eventIDs = append(c.eventIDs, eventID)
		c.lastUpdated = time.Now()
	}
}

// Correlator groups events into correlation chains. It is the authority on
// which events belong to the same logical workflow. A single mutex
// serializes all chain access.
type Correlator struct {
	sink   Sink
	logger *slog.Logger

	mu        sync.Mutex
	chains    map[string]*chain
	eventCorr map[string]string
	events    map[string]*event.Event
}

// New creates an empty correlator.
func New(cfg Config) *Correlator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Correlator{
		sink:      cfg.Store,
		logger:    cfg.Logger,
		chains:    make(map[string]*chain),
		eventCorr: make(map[string]string),
		events:    make(map[string]*event.Event),
	}
}

// NewCorrelationID mints a correlation ID: "corr_" and 12 hex characters.
func NewCorrelationID() string {
	return CorrelationIDPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// Correlate assigns evt to a chain and returns the correlation ID used.
//
// The ID is correlationID when given, else the event's own correlation ID,
// else a newly minted one. The event's correlation and, when causationID is
// given, causation fields are set in place. The event is appended to the
// chain once, then handed to the configured store.
func (c *Correlator) Correlate(evt *event.Event, correlationID, causationID string) string {
	c.mu.Lock()
	id := c.correlateLocked(evt, correlationID, causationID)
	c.mu.Unlock()

	c.sinkEvent(evt)
	return id
}

// CorrelateWithParent correlates evt as caused by parent. A parent without a
// correlation ID is given a new one and becomes the chain's root.
func (c *Correlator) CorrelateWithParent(evt, parent *event.Event) string {
	c.mu.Lock()
	correlationID := parent.CorrelationID
	parentAdded := false
	if correlationID == "" {
		correlationID = c.correlateLocked(parent, "", "")
		parentAdded = true
	}
	id := c.correlateLocked(evt, correlationID, parent.ID)
	c.mu.Unlock()

	if parentAdded {
		c.sinkEvent(parent)
	}
	c.sinkEvent(evt)
	return id
}

func (c *Correlator) correlateLocked(evt *event.Event, correlationID, causationID string) string {
	if correlationID == "" {
		correlationID = evt.CorrelationID
	}
	if correlationID == "" {
		correlationID = NewCorrelationID()
	}

	evt.CorrelationID = correlationID
	if causationID != "" {
		evt.CausationID = causationID
	}

	ch, ok := c.chains[correlationID]
	if !ok {
		now := time.Now()
		ch = &chain{rootEventID: evt.ID, createdAt: now, lastUpdated: now}
		c.chains[correlationID] = ch
	}
	ch.add(evt.ID)
	c.eventCorr[evt.ID] = correlationID
	c.events[evt.ID] = evt
	return correlationID
}

func (c *Correlator) sinkEvent(evt *event.Event) {
	if c.sink == nil {
		return
	}
	if err := c.sink.Store(evt); err != nil {
		c.logger.Warn("correlated event not stored",
			slog.String("event_id", evt.ID),
			slog.String("correlation_id", evt.CorrelationID),
			slog.String("error", err.Error()),
		)
	}
}

// Chain returns the events of a correlation in the order they were
// correlated. An unknown ID yields an empty, non-nil slice.
func (c *Correlator) Chain(correlationID string) []*event.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chainLocked(correlationID)
}

func (c *Correlator) chainLocked(correlationID string) []*event.Event {
	ch, ok := c.chains[correlationID]
	if !ok {
		return []*event.Event{}
	}
	out := make([]*event.Event, 0, len(ch.eventIDs))
	for _, id := range ch.eventIDs {
		if evt, ok := c.events[id]; ok {
			out = append(out, evt)
		}
	}
	return out
}

// ChainInfo describes one chain.
func (c *Correlator) ChainInfo(correlationID string) (ChainInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.chains[correlationID]
	if !ok {
		return ChainInfo{}, false
	}
	return ChainInfo{
		CorrelationID: correlationID,
		RootEventID:   ch.rootEventID,
		EventIDs:      slices.Clone(ch.eventIDs),
		CreatedAt:     ch.createdAt,
		LastUpdated:   ch.lastUpdated,
	}, true
}

// ChainIDs returns every correlation ID, sorted.
func (c *Correlator) ChainIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.chains))
	for id := range c.chains {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// CorrelationIDFor returns the chain an event belongs to.
func (c *Correlator) CorrelationIDFor(eventID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.eventCorr[eventID]
	return id, ok
}

// RelatedEvents returns the whole chain of the given event, or nothing if
// the event is unknown.
func (c *Correlator) RelatedEvents(eventID string) []*event.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id, ok := c.eventCorr[eventID]; ok {
		return c.chainLocked(id)
	}
	return []*event.Event{}
}

// CausationChain follows causation IDs from the event back to its root
// cause and returns the path root first. It stops at the first cause that
// was never correlated and never loops.
func (c *Correlator) CausationChain(eventID string) []*event.Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	var path []*event.Event
	visited := make(map[string]bool)
	for evt, ok := c.events[eventID]; ok && !visited[evt.ID]; evt, ok = c.events[evt.CausationID] {
		visited[evt.ID] = true
		path = append(path, evt)
		if evt.CausationID == "" {
			break
		}
	}
	slices.Reverse(path)
	return path
}

// Associate moves already correlated events into one chain and returns its
// ID, minting one when correlationID is empty. Nothing changes if any event
// is unknown. Chains left empty are removed. Moved events are re-correlated
// as copies and stored again, so earlier references keep their old IDs.
func (c *Correlator) Associate(eventIDs []string, correlationID string) (string, error) {
	c.mu.Lock()
	for _, id := range eventIDs {
		if _, ok := c.events[id]; !ok {
			c.mu.Unlock()
			return "", fmt.Errorf("%w: %s", ErrUnknownEvent, id)
		}
	}
	if correlationID == "" {
		correlationID = NewCorrelationID()
	}

	moved := make([]*event.Event, 0, len(eventIDs))
	for _, id := range eventIDs {
		old := c.eventCorr[id]
		if old == correlationID {
			continue
		}
		if ch := c.chains[old]; ch != nil {
			ch.eventIDs = slices.DeleteFunc(ch.eventIDs, func(e string) bool { return e == id })
			if len(ch.eventIDs) == 0 {
				delete(c.chains, old)
			}
		}
		clone := c.events[id].Clone()
		c.correlateLocked(clone, correlationID, "")
		moved = append(moved, clone)
	}
	c.mu.Unlock()

	for _, evt := range moved {
		c.sinkEvent(evt)
	}
	return correlationID, nil
}

// Stats summarizes the correlator.
type Stats struct {
	Chains             int     `json:"total_correlation_chains"`
	CorrelatedEvents   int     `json:"total_correlated_events"`
	AverageChainSize   float64 `json:"average_events_per_chain"`
	LargestChainSize   int     `json:"largest_chain_size"`
	TrackedEvents      int     `json:"tracked_events"`
	UncorrelatedEvents int     `json:"uncorrelated_events"`
}

// Stats returns chain counts and sizes.
func (c *Correlator) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{Chains: len(c.chains), TrackedEvents: len(c.events)}
	for _, ch := range c.chains {
		n := len(ch.eventIDs)
		s.CorrelatedEvents += n
		s.LargestChainSize = max(s.LargestChainSize, n)
	}
	if s.Chains > 0 {
		s.AverageChainSize = float64(s.CorrelatedEvents) / float64(s.Chains)
	}
	s.UncorrelatedEvents = s.TrackedEvents - s.CorrelatedEvents
	return s
}

// CleanupExpired removes chains created more than maxAge ago, along with
// their events, and returns how many chains were removed.
func (c *Correlator) CleanupExpired(maxAge time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for id, ch := range c.chains {
		if !ch.createdAt.Before(cutoff) {
			continue
		}
		for _, eventID := range ch.eventIDs {
			delete(c.eventCorr, eventID)
			delete(c.events, eventID)
		}
		delete(c.chains, id)
		removed++
	}
	return removed
}

// RunCleanup calls CleanupExpired with maxAge every interval until ctx is
// done.
func (c *Correlator) RunCleanup(ctx context.Context, interval, maxAge time.Duration) error {
	if interval <= 0 || maxAge <= 0 {
		return fmt.Errorf("correlation cleanup needs a positive interval and max age, got %s and %s", interval, maxAge)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n := c.CleanupExpired(maxAge); n > 0 {
				c.logger.Debug("expired correlation chains removed", "chains", n)
			}
		}
	}
}

// Clear drops every chain.
func (c *Correlator) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chains = make(map[string]*chain)
	c.eventCorr = make(map[string]string)
	c.events = make(map[string]*event.Event)
}

// Observe subscribes the correlator to every event on r at the highest
// priority. Each live event is cloned, correlated and stored; the published
// event itself is not modified. Replayed events are ignored.
//
// An event without a correlation ID roots a chain named by its own ID, the
// same ID event.Derive gives its children. A QUEUED clone is recorded under
// the ID of the event it was made from, without its routing metadata.
func (c *Correlator) Observe(r *router.Router) (*router.Subscription, error) {
	return r.Subscribe(pattern.Any(), func(_ context.Context, evt *event.Event) error {
		if evt.IsReplay {
			return nil
		}
		clone := evt.Clone()
		if original, ok := clone.Metadata[router.MetadataOriginalEventID].(string); ok && original != "" {
			clone.ID = original
			delete(clone.Metadata, router.MetadataOriginalEventID)
			delete(clone.Metadata, router.MetadataSubscriptionID)
		}
		correlationID := clone.CorrelationID
		if correlationID == "" {
			correlationID = clone.ID
		}
		c.Correlate(clone, correlationID, "")
		return nil
	}, router.WithPriority(math.MaxInt))
}
