// Package correlate tracks which events belong to the same workflow.
//
// A Correlator keeps one ordered chain per correlation ID. Correlate places
// an event in a chain, minting an ID when neither the caller nor the event
// supplies one:
//
//	c := correlate.New(correlate.Config{Store: s})
//	id := c.Correlate(evt, "", "")
//	chain := c.Chain(id) // in correlation order
//
// Observe attaches a correlator to a router so that every live event is
// correlated and stored without publishers doing anything.
package correlate
