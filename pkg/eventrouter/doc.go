/*
Package eventrouter is an in-process event routing core.

# Overview

Producers publish events; subscribers register a pattern and a handler.
The router delivers each event to every matching subscription in priority
order, in one of three modes:

  - router.Sync runs handlers in the publisher's goroutine
  - router.Async runs each handler in its own goroutine, bounded by a semaphore
  - router.Queued buffers one addressed clone per subscription for a Consumer

Handler errors and panics are isolated per subscription. They reach
registered error handlers and the publish Receipt, never the publisher.

# Packages

  - event: the Event value, derive and replay clones, map and JSON codecs
  - pattern: the type grammar ("order.*", "**", "!audit.*") and attribute predicates
  - router: subscriptions, delivery modes, confirmations, retry and the queue consumer
  - store: an in-memory queryable event log with retention and an optional SQLite archive
  - correlate: correlation chains and causation paths
  - replay: republishing stored events with optional pacing
  - config: YAML/JSON settings for a Hub
  - observability: slog helpers, OpenTelemetry metrics and spans, a Prometheus collector

# Basic Usage

A Hub wires every component from settings:

	hub, err := eventrouter.NewHub(config.DefaultSettings())
	if err != nil {
	    log.Fatal(err)
	}
	defer hub.Close(context.Background())

	hub.Router.Subscribe(pattern.Type("order.*"), func(ctx context.Context, evt *event.Event) error {
	    fmt.Println("got", evt.Type)
	    return nil
	}, router.WithPriority(10))

	evt := event.MustNew("order.created", "shop", event.WithPayload(map[string]any{"id": 1}))
	hub.Publish(ctx, evt)

Every live event is correlated and stored, so it can be queried and
replayed later:

	chain := hub.Correlator.Chain(corrID)
	res, err := hub.ReplayCorrelation(ctx, corrID)

The router, store, correlator and replayer are also usable on their own.
*/
package eventrouter
