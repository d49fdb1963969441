package event_test

import (
	"reflect"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/randalmurphal/eventrouter/pkg/eventrouter/event"
)

func TestProperty_MapRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("FromMap(ToMap(e)) equals e including nanoseconds", prop.ForAll(
		func(eventType, source, corr string, unixNanos int64, amount int, replay bool) bool {
			evt, err := event.New(eventType, source,
				event.WithTimestamp(time.Unix(0, unixNanos)),
				event.WithCorrelationID(corr),
				event.WithPayload(map[string]any{"amount": amount, "nested": map[string]any{"k": source}}),
			)
			if err != nil {
				return false
			}
			evt.IsReplay = replay

			decoded, err := event.FromMap(evt.ToMap())
			if err != nil {
				return false
			}
			return reflect.DeepEqual(evt, decoded)
		},
		gen.Identifier(),
		gen.Identifier(),
		gen.AlphaString(),
		gen.Int64Range(0, 4102444800000000000),
		gen.Int(),
		gen.Bool(),
	))

	properties.Property("derive links child to parent", prop.ForAll(
		func(corr string) bool {
			parent := event.MustNew("parent", "src", event.WithCorrelationID(corr))
			child, err := parent.Derive("child", nil)
			if err != nil {
				return false
			}
			want := corr
			if want == "" {
				want = parent.ID
			}
			return child.CausationID == parent.ID && child.CorrelationID == want
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
