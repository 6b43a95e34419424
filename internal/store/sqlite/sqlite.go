// Package sqlite implements the remote store contract on an embedded SQLite
// database, for running against durable local state instead of the volatile
// memory backend. Live subscriptions are fed in process: every committed
// write re-evaluates the affected queries and fans out fresh full snapshots,
// in commit order.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"finflow/internal/store"
)

const snapshotBuffer = 64

// Store persists documents in a single table keyed by collection path and
// id, with the field map serialized as JSON.
type Store struct {
	db *sql.DB

	mu      sync.Mutex
	subs    map[int64]*subscriber
	nextSub int64
}

type subscriber struct {
	id         int64
	query      store.Query
	onSnapshot store.SnapshotFunc
	onError    store.ErrorFunc
	ch         chan []store.Document
	done       chan struct{}
	cancelOnce sync.Once
}

func New(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{
		db:   db,
		subs: make(map[int64]*subscriber),
	}, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	for id, sub := range s.subs {
		delete(s.subs, id)
		sub.cancelOnce.Do(func() { close(sub.done) })
	}
	s.mu.Unlock()
	return s.db.Close()
}

func (s *Store) Subscribe(ctx context.Context, q store.Query, onSnapshot store.SnapshotFunc, onError store.ErrorFunc) (store.CancelFunc, error) {
	initial, err := s.evaluate(ctx, q)
	if err != nil {
		return nil, err
	}

	sub := &subscriber{
		query:      q,
		onSnapshot: onSnapshot,
		onError:    onError,
		ch:         make(chan []store.Document, snapshotBuffer),
		done:       make(chan struct{}),
	}

	s.mu.Lock()
	s.nextSub++
	sub.id = s.nextSub
	s.subs[sub.id] = sub
	sub.push(initial)
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

func (sub *subscriber) run() {
	for {
		select {
		case <-sub.done:
			return
		case docs := <-sub.ch:
			sub.onSnapshot(docs)
		}
	}
}

// push queues a snapshot, dropping the oldest queued one when the consumer
// lags; every snapshot is a complete set so the latest supersedes the rest.
func (sub *subscriber) push(docs []store.Document) {
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

func (s *Store) GetOnce(ctx context.Context, q store.Query) ([]store.Document, error) {
	return s.evaluate(ctx, q)
}

func (s *Store) WriteOne(ctx context.Context, collectionPath string, fields map[string]any) (string, error) {
	id := uuid.NewString()
	payload, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("marshal fields: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO documents (collection_path, id, fields) VALUES (?, ?, ?)`,
		collectionPath, id, string(payload))
	if err != nil {
		return "", fmt.Errorf("insert document: %w", err)
	}

	s.notify(ctx, collectionPath)
	return id, nil
}

func (s *Store) DeleteOne(ctx context.Context, docPath string) error {
	collectionPath, id, err := splitDocPath(docPath)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE collection_path = ? AND id = ?`,
		collectionPath, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	s.notify(ctx, collectionPath)
	return nil
}

// AtomicBatch applies every operation inside one transaction.
func (s *Store) AtomicBatch(ctx context.Context, ops []store.BatchOp) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}

	touched := make(map[string]struct{})
	for _, op := range ops {
		collectionPath, id, err := splitDocPath(op.Path)
		if err != nil {
			tx.Rollback()
			return err
		}
		switch op.Kind {
		case store.BatchSet:
			payload, err := json.Marshal(op.Fields)
			if err != nil {
				tx.Rollback()
				return fmt.Errorf("marshal fields for %s: %w", op.Path, err)
			}
			_, err = tx.ExecContext(ctx,
				`INSERT OR REPLACE INTO documents (collection_path, id, fields) VALUES (?, ?, ?)`,
				collectionPath, id, string(payload))
			if err != nil {
				tx.Rollback()
				return fmt.Errorf("set %s: %w", op.Path, err)
			}
		case store.BatchDelete:
			_, err = tx.ExecContext(ctx,
				`DELETE FROM documents WHERE collection_path = ? AND id = ?`,
				collectionPath, id)
			if err != nil {
				tx.Rollback()
				return fmt.Errorf("delete %s: %w", op.Path, err)
			}
		default:
			tx.Rollback()
			return fmt.Errorf("unknown batch op kind %q", op.Kind)
		}
		touched[collectionPath] = struct{}{}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	for collectionPath := range touched {
		s.notify(ctx, collectionPath)
	}
	return nil
}

func (s *Store) evaluate(ctx context.Context, q store.Query) ([]store.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, fields FROM documents WHERE collection_path = ?`, q.CollectionPath)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.CollectionPath, err)
	}
	defer rows.Close()

	var docs []store.Document
	for rows.Next() {
		var id, payload string
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		var fields map[string]any
		if err := json.Unmarshal([]byte(payload), &fields); err != nil {
			return nil, fmt.Errorf("unmarshal document %s: %w", id, err)
		}
		d := store.Document{
			ID:     id,
			Path:   store.DocPath(q.CollectionPath, id),
			Fields: fields,
		}
		if q.Matches(d) {
			docs = append(docs, d)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

// notify re-evaluates every subscription on the collection and queues a
// fresh snapshot. Evaluation failures go to the subscriber's error callback.
func (s *Store) notify(ctx context.Context, collectionPath string) {
	s.mu.Lock()
	var targets []*subscriber
	for _, sub := range s.subs {
		if sub.query.CollectionPath == collectionPath {
			targets = append(targets, sub)
		}
	}
	s.mu.Unlock()

	for _, sub := range targets {
		docs, err := s.evaluate(ctx, sub.query)
		if err != nil {
			if sub.onError != nil {
				sub.onError(err)
			}
			continue
		}
		s.mu.Lock()
		if _, live := s.subs[sub.id]; live {
			sub.push(docs)
		}
		s.mu.Unlock()
	}
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
