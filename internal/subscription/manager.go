// Package subscription owns the lifecycle of live queries against the
// remote store. It translates the current context (identity, open event)
// into the correct set of subscriptions and routes every snapshot into the
// entity cache. At most one live subscription exists per logical query, and
// every cancellation handle the manager creates is eventually cancelled.
package subscription

import (
	"context"
	"fmt"
	"sync"

	"finflow/internal/cache"
	"finflow/internal/core"
	"finflow/internal/log"
	"finflow/internal/store"
)

const (
	StateUnauthenticated State = "unauthenticated"
	StateEventsOnly      State = "events_only"
	StateEventDetail     State = "event_detail"
)

type (
	State string

	// Error is a typed subscription failure tagged with the query it
	// affected. It never tears down unrelated subscriptions.
	Error struct {
		Query store.Query
		Err   error
	}

	// Config wires the manager's collaborators. OnError receives typed
	// subscription failures; retry policy is the caller's concern.
	Config struct {
		Store   store.RemoteStore
		Cache   *cache.EntityCache
		Logger  *log.Logger
		OnError func(Error)
	}

	// Manager is the subscription state machine. All transitions cancel the
	// prior context's handles before establishing new ones.
	Manager struct {
		store   store.RemoteStore
		cache   *cache.EntityCache
		logger  *log.Logger
		onError func(Error)

		mu             sync.Mutex
		identity       string
		openEvent      string
		generation     uint64
		cancelEvents   store.CancelFunc
		cancelExpenses store.CancelFunc
		closed         bool
	}
)

func (e *Error) Error() string {
	return fmt.Sprintf("subscription on %s: %v", e.Query.CollectionPath, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func NewManager(cfg Config) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &Manager{
		store:   cfg.Store,
		cache:   cfg.Cache,
		logger:  logger.WithComponent(log.ComponentSubscription),
		onError: cfg.OnError,
	}
}

// SetIdentity switches the authenticated identity. All subscriptions of the
// prior context are torn down and the cache is cleared; a non-empty identity
// establishes the events subscription for it.
func (m *Manager) SetIdentity(ctx context.Context, identity string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("subscription manager is shut down")
	}

	m.teardownLocked()
	m.identity = identity
	m.openEvent = ""
	m.cache.Clear()

	if identity == "" {
		m.logger.InfoContext(ctx, "identity cleared, all subscriptions torn down")
		return nil
	}
	return m.subscribeEventsLocked(ctx)
}

// ClearIdentity transitions to the unauthenticated state.
func (m *Manager) ClearIdentity(ctx context.Context) error {
	return m.SetIdentity(ctx, "")
}

// OpenEvent enters the detail context for one event: the events subscription
// persists and one expenses subscription is established. Opening a different
// event first tears down the previous expenses subscription. Ids absent from
// the identity's own events view are refused, so no expenses of another
// user's event ever reach the cache.
func (m *Manager) OpenEvent(ctx context.Context, eventID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("subscription manager is shut down")
	}
	if m.identity == "" {
		return core.ErrUnauthenticated
	}
	if eventID == "" {
		return fmt.Errorf("event id is required")
	}
	if err := m.checkOwnershipLocked(ctx, eventID); err != nil {
		return err
	}

	if m.cancelExpenses != nil {
		m.cancelExpenses()
		m.cancelExpenses = nil
	}
	m.openEvent = eventID
	return m.subscribeExpensesLocked(ctx, eventID)
}

// checkOwnershipLocked verifies the event exists in the identity's own
// events view. Foreign and nonexistent ids are indistinguishable to the
// caller, both read as not found.
func (m *Manager) checkOwnershipLocked(ctx context.Context, eventID string) error {
	q := store.Query{CollectionPath: store.EventsCollection}.Where(core.FieldOwnerID, m.identity)
	docs, err := m.store.GetOnce(ctx, q)
	if err != nil {
		return fmt.Errorf("%w: verify event ownership: %v", core.ErrRemoteUnavailable, err)
	}
	for _, d := range docs {
		if d.ID == eventID {
			return nil
		}
	}
	return fmt.Errorf("%w: event %s", core.ErrNotFound, eventID)
}

// CloseEvent leaves the detail context. The events subscription persists.
func (m *Manager) CloseEvent() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancelExpenses != nil {
		m.cancelExpenses()
		m.cancelExpenses = nil
	}
	m.openEvent = ""
}

// Shutdown cancels every live handle. The manager accepts no further
// transitions afterwards.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teardownLocked()
	m.identity = ""
	m.openEvent = ""
	m.closed = true
	m.logger.Info("subscription manager shut down", log.FieldOperation, log.OpShutdown)
}

// State reports the current position in the context state machine.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.identity == "":
		return StateUnauthenticated
	case m.openEvent == "":
		return StateEventsOnly
	default:
		return StateEventDetail
	}
}

// OpenEventID returns the id of the event in detail context, if any.
func (m *Manager) OpenEventID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.openEvent
}

func (m *Manager) teardownLocked() {
	if m.cancelEvents != nil {
		m.cancelEvents()
		m.cancelEvents = nil
	}
	if m.cancelExpenses != nil {
		m.cancelExpenses()
		m.cancelExpenses = nil
	}
	// Invalidate callbacks already in flight for the old context.
	m.generation++
}

func (m *Manager) subscribeEventsLocked(ctx context.Context) error {
	identity := m.identity
	gen := m.generation
	q := store.Query{CollectionPath: store.EventsCollection}.Where(core.FieldOwnerID, identity)

	cancel, err := m.store.Subscribe(ctx, q,
		func(docs []store.Document) { m.applyEventsSnapshot(gen, identity, docs) },
		func(err error) { m.reportError(q, err) },
	)
	if err != nil {
		return fmt.Errorf("%w: subscribe events: %v", core.ErrRemoteUnavailable, err)
	}
	m.cancelEvents = cancel
	m.logger.InfoContext(ctx, "events subscription established",
		log.FieldOperation, log.OpSubscribe, log.FieldOwner, identity)
	return nil
}

func (m *Manager) subscribeExpensesLocked(ctx context.Context, eventID string) error {
	gen := m.generation
	q := store.Query{CollectionPath: store.ExpensesCollection(eventID)}

	cancel, err := m.store.Subscribe(ctx, q,
		func(docs []store.Document) { m.applyExpensesSnapshot(gen, eventID, docs) },
		func(err error) { m.reportError(q, err) },
	)
	if err != nil {
		return fmt.Errorf("%w: subscribe expenses: %v", core.ErrRemoteUnavailable, err)
	}
	m.cancelExpenses = cancel
	m.logger.InfoContext(ctx, "expenses subscription established",
		log.FieldOperation, log.OpSubscribe, log.FieldEventID, eventID)
	return nil
}

// applyEventsSnapshot reconciles a full events snapshot into the cache:
// present documents are upserted, cached events absent from the snapshot are
// removed. Ownership is re-validated on every snapshot; if the open event
// disappears or changes owner, its detail context is torn down and the
// failure is surfaced, not crashed on.
func (m *Manager) applyEventsSnapshot(gen uint64, identity string, docs []store.Document) {
	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		return
	}
	openEvent := m.openEvent
	m.mu.Unlock()

	present := make(map[string]struct{}, len(docs))
	events := make([]core.Event, 0, len(docs))
	q := store.Query{CollectionPath: store.EventsCollection}.Where(core.FieldOwnerID, identity)
	for _, d := range docs {
		e := core.EventFromFields(d.ID, d.Fields)
		if e.OwnerID != identity {
			m.reportError(q, fmt.Errorf("%w: event %s owned by another user", core.ErrAccessDenied, d.ID))
			continue
		}
		present[e.ID] = struct{}{}
		events = append(events, e)
	}

	for _, id := range m.cache.EventIDs() {
		if _, ok := present[id]; !ok {
			m.cache.RemoveEvent(id)
		}
	}
	m.cache.UpsertEvents(events)

	// If the open event left the owner's view (deleted, or its owner
	// changed) the detail context is no longer valid: tear down its
	// expenses subscription and purge its cached expense set.
	if openEvent != "" {
		if _, ok := present[openEvent]; !ok {
			m.mu.Lock()
			if gen == m.generation && m.openEvent == openEvent {
				if m.cancelExpenses != nil {
					m.cancelExpenses()
					m.cancelExpenses = nil
				}
				m.openEvent = ""
			}
			m.mu.Unlock()
			m.cache.RemoveEvent(openEvent)
			m.reportError(q, fmt.Errorf("%w: event %s", core.ErrNotFound, openEvent))
		}
	}

	m.logger.Debug("events snapshot applied",
		log.FieldOperation, log.OpSnapshot, log.FieldCount, len(events))
}

func (m *Manager) applyExpensesSnapshot(gen uint64, eventID string, docs []store.Document) {
	m.mu.Lock()
	if gen != m.generation || m.openEvent != eventID {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	present := make(map[string]struct{}, len(docs))
	expenses := make([]core.Expense, 0, len(docs))
	for _, d := range docs {
		x, err := core.ExpenseFromFields(eventID, d.ID, d.Fields)
		if err != nil {
			m.logger.Warn("skipping malformed expense document",
				log.FieldEventID, eventID, log.FieldExpenseID, d.ID, log.FieldError, err)
			continue
		}
		present[x.ID] = struct{}{}
		expenses = append(expenses, x)
	}

	for _, id := range m.cache.ExpenseIDs(eventID) {
		if _, ok := present[id]; !ok {
			m.cache.RemoveExpense(eventID, id)
		}
	}
	m.cache.UpsertExpenses(eventID, expenses)

	m.logger.Debug("expenses snapshot applied",
		log.FieldOperation, log.OpSnapshot,
		log.FieldEventID, eventID, log.FieldCount, len(expenses))
}

func (m *Manager) reportError(q store.Query, err error) {
	subErr := Error{Query: q, Err: err}
	m.logger.Warn("subscription error",
		log.FieldQuery, q.CollectionPath, log.FieldError, err)
	if m.onError != nil {
		m.onError(subErr)
	}
}
