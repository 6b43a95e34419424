// Package memory implements the remote store contract entirely in process.
// It is the default backend and the test double: writes are committed under a
// single lock and every live subscription on the affected collection receives
// a fresh full snapshot, in commit order.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"finflow/internal/store"
)

// snapshotBuffer bounds the per-subscription delivery queue. When a slow
// consumer falls behind, the oldest queued snapshot is dropped; each snapshot
// is a complete set, so the latest one supersedes anything queued before it.
const snapshotBuffer = 64

// Store keeps documents per collection path and fans out snapshots to
// subscribers. It favors clarity over performance.
type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string]map[string]any
	subs        map[int64]*subscription
	nextSub     int64

	writeErr error
	calls    []string
}

type subscription struct {
	id         int64
	query      store.Query
	onSnapshot store.SnapshotFunc
	onError    store.ErrorFunc
	ch         chan []store.Document
	errCh      chan error
	done       chan struct{}
	cancelOnce sync.Once
}

func New() *Store {
	return &Store{
		collections: make(map[string]map[string]map[string]any),
		subs:        make(map[int64]*subscription),
	}
}

// Subscribe registers a live query and immediately delivers the current
// matching set. Snapshots are delivered on a dedicated goroutine so callbacks
// may safely call back into the store.
func (s *Store) Subscribe(ctx context.Context, q store.Query, onSnapshot store.SnapshotFunc, onError store.ErrorFunc) (store.CancelFunc, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sub := &subscription{
		query:      q,
		onSnapshot: onSnapshot,
		onError:    onError,
		ch:         make(chan []store.Document, snapshotBuffer),
		errCh:      make(chan error, 1),
		done:       make(chan struct{}),
	}

	s.mu.Lock()
	s.nextSub++
	sub.id = s.nextSub
	s.subs[sub.id] = sub
	s.calls = append(s.calls, "subscribe "+q.CollectionPath)
	// Queue the initial snapshot while still holding the lock so a racing
	// write cannot enqueue a newer set ahead of it.
	sub.push(s.evaluateLocked(q))
	s.mu.Unlock()

	go sub.run()

	cancel := func() {
		sub.cancelOnce.Do(func() {
			s.mu.Lock()
			delete(s.subs, sub.id)
			s.mu.Unlock()
			close(sub.done)
		})
	}
	return cancel, nil
}

func (sub *subscription) run() {
	for {
		select {
		case <-sub.done:
			return
		case docs := <-sub.ch:
			sub.onSnapshot(docs)
		case err := <-sub.errCh:
			if sub.onError != nil {
				sub.onError(err)
			}
			return
		}
	}
}

// push queues a snapshot, dropping the oldest queued one if the consumer is
// behind. The latest full set always gets through.
func (sub *subscription) push(docs []store.Document) {
	for {
		select {
		case sub.ch <- docs:
			return
		case <-sub.done:
			return
		default:
			select {
			case <-sub.ch:
			default:
			}
		}
	}
}

// GetOnce returns the current matching set, sorted by document id.
func (s *Store) GetOnce(ctx context.Context, q store.Query) ([]store.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.calls = append(s.calls, "getOnce "+q.CollectionPath)
	docs := s.evaluateLocked(q)
	s.mu.Unlock()
	return docs, nil
}

// WriteOne creates a document with a fresh id and notifies subscribers.
func (s *Store) WriteOne(ctx context.Context, collectionPath string, fields map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	s.calls = append(s.calls, "writeOne "+collectionPath)
	if s.writeErr != nil {
		err := s.writeErr
		s.mu.Unlock()
		return "", err
	}
	id := uuid.NewString()
	coll := s.collections[collectionPath]
	if coll == nil {
		coll = make(map[string]map[string]any)
		s.collections[collectionPath] = coll
	}
	coll[id] = cloneFields(fields)
	s.notifyLocked(collectionPath)
	s.mu.Unlock()
	return id, nil
}

// DeleteOne removes a document. Deleting an absent path is not an error.
func (s *Store) DeleteOne(ctx context.Context, docPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	collectionPath, id, err := splitDocPath(docPath)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.calls = append(s.calls, "deleteOne "+docPath)
	if s.writeErr != nil {
		err := s.writeErr
		s.mu.Unlock()
		return err
	}
	if coll := s.collections[collectionPath]; coll != nil {
		delete(coll, id)
	}
	s.notifyLocked(collectionPath)
	s.mu.Unlock()
	return nil
}

// AtomicBatch applies every operation under one lock, all-or-nothing, then
// notifies each affected collection exactly once.
func (s *Store) AtomicBatch(ctx context.Context, ops []store.BatchOp) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// Validate paths up front so a malformed op leaves no partial state.
	type parsedOp struct {
		op         store.BatchOp
		collection string
		id         string
	}
	parsed := make([]parsedOp, 0, len(ops))
	for _, op := range ops {
		collectionPath, id, err := splitDocPath(op.Path)
		if err != nil {
			return err
		}
		if op.Kind != store.BatchSet && op.Kind != store.BatchDelete {
			return fmt.Errorf("unknown batch op kind %q", op.Kind)
		}
		parsed = append(parsed, parsedOp{op: op, collection: collectionPath, id: id})
	}

	s.mu.Lock()
	s.calls = append(s.calls, fmt.Sprintf("atomicBatch n=%d", len(ops)))
	if s.writeErr != nil {
		err := s.writeErr
		s.mu.Unlock()
		return err
	}
	touched := make(map[string]struct{})
	for _, p := range parsed {
		coll := s.collections[p.collection]
		switch p.op.Kind {
		case store.BatchSet:
			if coll == nil {
				coll = make(map[string]map[string]any)
				s.collections[p.collection] = coll
			}
			coll[p.id] = cloneFields(p.op.Fields)
		case store.BatchDelete:
			if coll != nil {
				delete(coll, p.id)
			}
		}
		touched[p.collection] = struct{}{}
	}
	for collectionPath := range touched {
		s.notifyLocked(collectionPath)
	}
	s.mu.Unlock()
	return nil
}

// FailWrites makes every subsequent write-path call return err. Passing nil
// restores normal behavior. Test hook.
func (s *Store) FailWrites(err error) {
	s.mu.Lock()
	s.writeErr = err
	s.mu.Unlock()
}

// FailSubscriptions delivers a terminal error to every live subscription on
// the collection. Test hook for network-loss and permission-denial paths.
func (s *Store) FailSubscriptions(collectionPath string, err error) {
	s.mu.Lock()
	for id, sub := range s.subs {
		if sub.query.CollectionPath == collectionPath {
			delete(s.subs, id)
			select {
			case sub.errCh <- err:
			default:
			}
		}
	}
	s.mu.Unlock()
}

// Calls returns the recorded store invocations, oldest first. Test hook.
func (s *Store) Calls() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.calls))
	copy(out, s.calls)
	return out
}

// Len reports the number of documents in a collection. Test hook.
func (s *Store) Len(collectionPath string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.collections[collectionPath])
}

func (s *Store) evaluateLocked(q store.Query) []store.Document {
	coll := s.collections[q.CollectionPath]
	docs := make([]store.Document, 0, len(coll))
	for id, fields := range coll {
		d := store.Document{
			ID:     id,
			Path:   store.DocPath(q.CollectionPath, id),
			Fields: cloneFields(fields),
		}
		if q.Matches(d) {
			docs = append(docs, d)
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs
}

func (s *Store) notifyLocked(collectionPath string) {
	for _, sub := range s.subs {
		if sub.query.CollectionPath != collectionPath {
			continue
		}
		sub.push(s.evaluateLocked(sub.query))
	}
}

func cloneFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}

func splitDocPath(docPath string) (collectionPath, id string, err error) {
	for i := len(docPath) - 1; i >= 0; i-- {
		if docPath[i] == '/' {
			if i == 0 || i == len(docPath)-1 {
				break
			}
			return docPath[:i], docPath[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("malformed document path %q", docPath)
}
