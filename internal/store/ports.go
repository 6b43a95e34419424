// Package store defines the contract the sync core requires from a remote
// document database: query-filtered live subscriptions delivering full
// snapshots, one-shot reads, point writes, and atomic multi-document batches.
package store

import "context"

const (
	// EventsCollection is the top-level collection of event documents.
	EventsCollection = "events"

	// BatchSet creates or replaces a document at a path.
	BatchSet BatchKind = "set"
	// BatchDelete removes the document at a path.
	BatchDelete BatchKind = "delete"
)

type (
	BatchKind string

	// Document is one stored record. Fields never embed the ID; the store
	// assigns and carries it alongside.
	Document struct {
		ID     string
		Path   string
		Fields map[string]any
	}

	// Query addresses a collection, optionally narrowed by one equality
	// filter. A zero Field means no filter.
	Query struct {
		CollectionPath string
		Field          string
		Value          any
	}

	// BatchOp is one operation inside an atomic batch.
	BatchOp struct {
		Kind   BatchKind
		Path   string
		Fields map[string]any
	}

	// SnapshotFunc receives the full current matching set on every change,
	// never a diff.
	SnapshotFunc func(docs []Document)

	// ErrorFunc receives a terminal failure for one subscription only.
	ErrorFunc func(err error)

	// CancelFunc tears down a subscription. It is idempotent; calling it
	// more than once is a no-op.
	CancelFunc func()

	// RemoteStore is the sole boundary between the sync core and the
	// document database.
	RemoteStore interface {
		Subscribe(ctx context.Context, q Query, onSnapshot SnapshotFunc, onError ErrorFunc) (CancelFunc, error)
		GetOnce(ctx context.Context, q Query) ([]Document, error)
		WriteOne(ctx context.Context, collectionPath string, fields map[string]any) (string, error)
		DeleteOne(ctx context.Context, docPath string) error
		AtomicBatch(ctx context.Context, ops []BatchOp) error
	}
)

// ExpensesCollection returns the child collection path holding an event's
// expenses.
func ExpensesCollection(eventID string) string {
	return EventsCollection + "/" + eventID + "/expenses"
}

// DocPath joins a collection path and a document id.
func DocPath(collectionPath, id string) string {
	return collectionPath + "/" + id
}

// Where narrows q to documents whose field equals value.
func (q Query) Where(field string, value any) Query {
	q.Field = field
	q.Value = value
	return q
}

// Matches reports whether the document satisfies the query's filter.
func (q Query) Matches(d Document) bool {
	if q.Field == "" {
		return true
	}
	return d.Fields[q.Field] == q.Value
}
