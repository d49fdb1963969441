// Package store keeps a queryable, retention-bounded event log.
//
// MemoryStore holds events in timestamp order and answers filtered,
// paginated queries:
//
//	s := store.New(store.Config{})
//	_ = s.Store(evt)
//	page, err := s.Query(store.Query{
//	    Filter: store.Filter{"type": "order.created", "payload.region": "eu"},
//	    Limit:  50,
//	})
//
// Retention policies are registered per event type and applied by
// CleanupExpiredEvents or periodically by RunRetention. Types without a
// policy are kept forever.
//
// SQLiteArchive is an optional write-through copy of every stored event.
// Restore rehydrates a MemoryStore from it after a restart.
package store
