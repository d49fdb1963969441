package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/randalmurphal/eventrouter/pkg/eventrouter/event"
	"github.com/randalmurphal/eventrouter/pkg/eventrouter/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newArchive(t *testing.T) *store.SQLiteArchive {
	t.Helper()
	archive, err := store.NewSQLiteArchive(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { archive.Close() })
	return archive
}

func TestSQLiteArchive_RoundTrip(t *testing.T) {
	ctx := context.Background()
	archive := newArchive(t)

	evt := at(t, "order.created", "shop", 1500*time.Millisecond+123,
		event.WithCorrelationID("c1"),
		event.WithCausationID("root"),
		event.WithPayload(map[string]any{"amount": 12.5, "items": []any{"a", "b"}}),
		event.WithMetadata(map[string]any{"tenant": "acme"}),
	)
	require.NoError(t, archive.Append(ctx, evt))

	got, err := archive.Get(ctx, evt.ID)
	require.NoError(t, err)
	assert.Equal(t, evt.ID, got.ID)
	assert.Equal(t, evt.Type, got.Type)
	assert.Equal(t, evt.Source, got.Source)
	assert.True(t, evt.Timestamp.Equal(got.Timestamp))
	assert.Equal(t, "c1", got.CorrelationID)
	assert.Equal(t, "root", got.CausationID)
	assert.Equal(t, evt.Payload, got.Payload)
	assert.Equal(t, evt.Metadata, got.Metadata)
	assert.False(t, got.IsReplay)

	_, err = archive.Get(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSQLiteArchive_RangeAndCorrelation(t *testing.T) {
	ctx := context.Background()
	archive := newArchive(t)

	for i, id := range []string{"e2", "e0", "e1", "e3"} {
		offset := map[string]time.Duration{"e0": 0, "e1": time.Minute, "e2": 2 * time.Minute, "e3": 3 * time.Minute}[id]
		opts := []event.Option{event.WithID(id)}
		if i%2 == 0 {
			opts = append(opts, event.WithCorrelationID("even"))
		}
		require.NoError(t, archive.Append(ctx, at(t, "tick", "clock", offset, opts...)))
	}

	all, err := archive.Range(ctx, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, []string{"e0", "e1", "e2", "e3"}, ids(all))

	window, err := archive.Range(ctx, base.Add(time.Minute), base.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, []string{"e1", "e2"}, ids(window))

	even, err := archive.ByCorrelationID(ctx, "even")
	require.NoError(t, err)
	assert.Equal(t, []string{"e1", "e2"}, ids(even))

	n, err := archive.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestSQLiteArchive_ReplaceOnSameID(t *testing.T) {
	ctx := context.Background()
	archive := newArchive(t)

	evt := at(t, "job", "svc", 0)
	require.NoError(t, archive.Append(ctx, evt))
	require.NoError(t, archive.Append(ctx, evt.AsReplay()))

	n, err := archive.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := archive.Get(ctx, evt.ID)
	require.NoError(t, err)
	assert.True(t, got.IsReplay)
}

func TestSQLiteArchive_Persistence(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "events.db")

	first, err := store.NewSQLiteArchive(path)
	require.NoError(t, err)
	evt := at(t, "persisted", "svc", 0)
	require.NoError(t, first.Append(ctx, evt))
	require.NoError(t, first.Close())

	second, err := store.NewSQLiteArchive(path)
	require.NoError(t, err)
	defer second.Close()

	got, err := second.Get(ctx, evt.ID)
	require.NoError(t, err)
	assert.Equal(t, "persisted", got.Type)
}

func TestSQLiteArchive_Closed(t *testing.T) {
	ctx := context.Background()
	archive, err := store.NewSQLiteArchive(":memory:")
	require.NoError(t, err)

	assert.NoError(t, archive.Close())
	assert.NoError(t, archive.Close())

	assert.ErrorIs(t, archive.Append(ctx, at(t, "x", "y", 0)), store.ErrArchiveClosed)
	_, err = archive.Get(ctx, "x")
	assert.ErrorIs(t, err, store.ErrArchiveClosed)
	_, err = archive.Range(ctx, time.Time{}, time.Time{})
	assert.ErrorIs(t, err, store.ErrArchiveClosed)
	_, err = archive.Count(ctx)
	assert.ErrorIs(t, err, store.ErrArchiveClosed)
}

func TestSQLiteArchive_InvalidPath(t *testing.T) {
	_, err := store.NewSQLiteArchive("/nonexistent/path/events.db")
	assert.Error(t, err)
}

func TestStore_WriteThroughAndRestore(t *testing.T) {
	ctx := context.Background()
	archive := newArchive(t)

	s := store.New(store.Config{Archive: archive})
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Store(at(t, "tick", "clock", time.Duration(i)*time.Minute)))
	}
	require.NoError(t, s.SetRetentionPolicy("tick", store.CountPolicy(1)))
	s.CleanupExpiredEvents()
	assert.Equal(t, 1, s.Len())

	n, err := archive.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n, "retention does not touch the archive")

	restored := store.New(store.Config{})
	loaded, err := store.Restore(ctx, archive, restored, base.Add(time.Minute), time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 2, loaded)
	assert.Equal(t, 2, restored.Len())
}

type failingArchive struct{}

func (failingArchive) Append(context.Context, *event.Event) error {
	return errors.New("disk full")
}

func TestStore_ArchiveFailureLeavesStoreUnchanged(t *testing.T) {
	s := store.New(store.Config{Archive: failingArchive{}})
	err := s.Store(at(t, "x", "y", 0))
	assert.ErrorContains(t, err, "disk full")
	assert.Equal(t, 0, s.Len())
}
