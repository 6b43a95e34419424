package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"finflow/internal/store"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "finflow.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func collect(t *testing.T) (store.SnapshotFunc, chan []store.Document) {
	t.Helper()
	ch := make(chan []store.Document, 16)
	return func(docs []store.Document) { ch <- docs }, ch
}

func waitSnapshot(t *testing.T, ch chan []store.Document) []store.Document {
	t.Helper()
	select {
	case docs := <-ch:
		return docs
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
		return nil
	}
}

// waitFor drains snapshots until the predicate holds.
func waitFor(t *testing.T, ch chan []store.Document, pred func([]store.Document) bool) []store.Document {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case docs := <-ch:
			if pred(docs) {
				return docs
			}
		case <-deadline:
			t.Fatal("timed out waiting for matching snapshot")
			return nil
		}
	}
}

func TestWriteAndGetOnce(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	id, err := s.WriteOne(ctx, store.EventsCollection, map[string]any{
		"userId": "alice",
		"name":   "Trip",
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	docs, err := s.GetOnce(ctx, store.Query{CollectionPath: store.EventsCollection}.Where("userId", "alice"))
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, id, docs[0].ID)
	require.Equal(t, "Trip", docs[0].Fields["name"])
}

func TestStatePersistsAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "finflow.db")
	ctx := context.Background()

	s, err := New(dbPath)
	require.NoError(t, err)
	id, err := s.WriteOne(ctx, store.EventsCollection, map[string]any{"userId": "alice", "name": "Trip"})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := New(dbPath)
	require.NoError(t, err)
	defer reopened.Close()

	docs, err := reopened.GetOnce(ctx, store.Query{CollectionPath: store.EventsCollection})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, id, docs[0].ID)
}

func TestSubscribeDeliversInitialAndLiveSnapshots(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	onSnap, ch := collect(t)
	cancel, err := s.Subscribe(ctx, store.Query{CollectionPath: store.EventsCollection}.Where("userId", "alice"), onSnap, nil)
	require.NoError(t, err)
	defer cancel()

	require.Empty(t, waitSnapshot(t, ch))

	_, err = s.WriteOne(ctx, store.EventsCollection, map[string]any{"userId": "alice", "name": "Trip"})
	require.NoError(t, err)
	_, err = s.WriteOne(ctx, store.EventsCollection, map[string]any{"userId": "bob", "name": "Other"})
	require.NoError(t, err)

	docs := waitFor(t, ch, func(docs []store.Document) bool { return len(docs) == 1 })
	require.Equal(t, "Trip", docs[0].Fields["name"])
}

func TestCancelStopsDelivery(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	onSnap, ch := collect(t)
	cancel, err := s.Subscribe(ctx, store.Query{CollectionPath: store.EventsCollection}, onSnap, nil)
	require.NoError(t, err)
	waitSnapshot(t, ch)

	cancel()
	cancel() // idempotent

	_, err = s.WriteOne(ctx, store.EventsCollection, map[string]any{"name": "Trip"})
	require.NoError(t, err)

	select {
	case docs := <-ch:
		t.Fatalf("unexpected snapshot after cancel: %v", docs)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestAtomicBatchCascade(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	eventID, err := s.WriteOne(ctx, store.EventsCollection, map[string]any{"userId": "alice", "name": "Trip"})
	require.NoError(t, err)
	expenses := store.ExpensesCollection(eventID)
	expenseID, err := s.WriteOne(ctx, expenses, map[string]any{"description": "Hotel", "amount": "120.50"})
	require.NoError(t, err)

	err = s.AtomicBatch(ctx, []store.BatchOp{
		{Kind: store.BatchDelete, Path: store.DocPath(expenses, expenseID)},
		{Kind: store.BatchDelete, Path: store.DocPath(store.EventsCollection, eventID)},
	})
	require.NoError(t, err)

	docs, err := s.GetOnce(ctx, store.Query{CollectionPath: store.EventsCollection})
	require.NoError(t, err)
	require.Empty(t, docs)
	docs, err = s.GetOnce(ctx, store.Query{CollectionPath: expenses})
	require.NoError(t, err)
	require.Empty(t, docs)
}

func TestAtomicBatchRollsBackOnMalformedPath(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	eventID, err := s.WriteOne(ctx, store.EventsCollection, map[string]any{"name": "Trip"})
	require.NoError(t, err)

	err = s.AtomicBatch(ctx, []store.BatchOp{
		{Kind: store.BatchDelete, Path: store.DocPath(store.EventsCollection, eventID)},
		{Kind: store.BatchDelete, Path: "no-slash"},
	})
	require.Error(t, err)

	docs, err := s.GetOnce(ctx, store.Query{CollectionPath: store.EventsCollection})
	require.NoError(t, err)
	require.Len(t, docs, 1, "failed batch must not leave partial state")
}

func TestDeleteAbsentDocumentSucceeds(t *testing.T) {
	s := newStore(t)
	err := s.DeleteOne(context.Background(), store.DocPath(store.EventsCollection, "missing"))
	require.NoError(t, err)
}
