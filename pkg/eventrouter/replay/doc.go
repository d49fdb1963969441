// Package replay republishes stored events.
//
// Events are published in ascending timestamp order as clones with IsReplay
// set. A positive speed multiplier reproduces the original gaps between
// events divided by the multiplier; zero replays as fast as possible.
//
//	r := replay.New(replay.Config{Store: s, Router: rt})
//	res, err := r.ReplayByCorrelationID(ctx, "corr_1a2b3c4d5e6f", 2)
//
// Subscribers that must not act twice should check evt.IsReplay.
package replay
