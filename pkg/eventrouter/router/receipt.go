package router

import (
	"context"
	"slices"
	"sync"
)

// Outcome is the result of one (event, subscription) delivery.
type Outcome struct {
	SubscriptionID string

	// EventID is the delivered event's ID. QUEUED deliveries carry the
	// clone's ID.
	EventID string

	// Err is nil on success. A failed handler yields a *errors.HandlerError
	// wrapping its error; a failed enqueue yields the queue error.
	Err error

	// Skipped is set when the subscription was paused or reached its event
	// cap between matching and invocation.
	Skipped bool

	// Queued is set when the event was enqueued instead of handled.
	Queued bool
}

// Receipt reports the outcomes of one publish call. It completes once every
// matched subscription has an outcome: immediately for SYNC and QUEUED, and
// after the last handler returns for ASYNC.
type Receipt struct {
	EventID string
	Mode    DeliveryMode
	Matched int

	mu        sync.Mutex
	outcomes  []Outcome
	remaining int
	done      chan struct{}
}

func newReceipt(eventID string, mode DeliveryMode, matched int) *Receipt {
	r := &Receipt{
		EventID:   eventID,
		Mode:      mode,
		Matched:   matched,
		remaining: matched,
		done:      make(chan struct{}),
	}
	if matched == 0 {
		close(r.done)
	}
	return r
}

func (r *Receipt) record(o Outcome) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, o)
	r.remaining--
	if r.remaining == 0 {
		close(r.done)
	}
}

// Done is closed when every matched subscription has an outcome.
func (r *Receipt) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the receipt completes or ctx is done.
func (r *Receipt) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Outcomes returns the outcomes recorded so far, in completion order.
func (r *Receipt) Outcomes() []Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.outcomes)
}

// Failed returns the outcomes whose handler returned an error or panicked.
func (r *Receipt) Failed() []Outcome {
	var failed []Outcome
	for _, o := range r.Outcomes() {
		if o.Err != nil {
			failed = append(failed, o)
		}
	}
	return failed
}

// Delivered returns the number of handler invocations, failed ones included.
func (r *Receipt) Delivered() int {
	n := 0
	for _, o := range r.Outcomes() {
		if !o.Skipped && !o.Queued {
			n++
		}
	}
	return n
}
