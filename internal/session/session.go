// Package session ties the sync core together behind the surface UI
// collaborators consume: read-only reactive accessors over the cached view,
// derived aggregates, and imperative mutation actions returning typed
// results suitable for toast-style notifications.
package session

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"finflow/internal/aggregate"
	"finflow/internal/cache"
	"finflow/internal/core"
	"finflow/internal/log"
	"finflow/internal/services"
	"finflow/internal/store"
	"finflow/internal/subscription"
)

// errBuffer bounds the subscription error channel; when the consumer lags,
// the oldest errors are dropped.
const errBuffer = 32

type (
	// Config wires a session. Optimistic selects immediate local
	// application of mutations over waiting for the subscription echo.
	Config struct {
		Store      store.RemoteStore
		Notifier   services.Notifier
		Logger     *log.Logger
		Optimistic bool
	}

	// AnalysisReport is the cross-event spending overview. Amounts are
	// summed as raw numbers with no currency conversion; MixedCurrencies
	// tells callers to surface a disclaimer.
	AnalysisReport struct {
		EventCount      int
		ExpenseCount    int
		Series          []aggregate.Bucket
		Currencies      []string
		MixedCurrencies bool
	}

	// Session is one user's live view of their events and expenses.
	Session struct {
		store   store.RemoteStore
		cache   *cache.EntityCache
		manager *subscription.Manager
		coord   *services.Coordinator
		logger  *log.Logger
		errs    chan subscription.Error

		mu       sync.RWMutex
		identity string
	}
)

func New(cfg Config) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}

	s := &Session{
		store:  cfg.Store,
		cache:  cache.New(),
		logger: logger.WithComponent(log.ComponentSession),
		errs:   make(chan subscription.Error, errBuffer),
	}

	s.manager = subscription.NewManager(subscription.Config{
		Store:   cfg.Store,
		Cache:   s.cache,
		Logger:  logger,
		OnError: s.pushError,
	})
	s.coord = services.NewCoordinator(services.Config{
		Store:      cfg.Store,
		Cache:      s.cache,
		Identity:   s.Identity,
		Notifier:   cfg.Notifier,
		Logger:     logger,
		Optimistic: cfg.Optimistic,
	})
	return s
}

// Login sets the authenticated identity and establishes the events
// subscription for it.
func (s *Session) Login(ctx context.Context, identity string) error {
	if identity == "" {
		return fmt.Errorf("%w: empty identity", core.ErrUnauthenticated)
	}
	s.mu.Lock()
	s.identity = identity
	s.mu.Unlock()
	return s.manager.SetIdentity(ctx, identity)
}

// Logout drops the identity, tears down all subscriptions and clears the
// cached view.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	s.identity = ""
	s.mu.Unlock()
	return s.manager.ClearIdentity(ctx)
}

// Identity returns the current authenticated identity, or "".
func (s *Session) Identity() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity
}

// OpenEvent enters the detail context for one event.
func (s *Session) OpenEvent(ctx context.Context, eventID string) error {
	return s.manager.OpenEvent(ctx, eventID)
}

// CloseEvent leaves the detail context.
func (s *Session) CloseEvent() {
	s.manager.CloseEvent()
}

// State exposes the subscription state machine's position.
func (s *Session) State() subscription.State {
	return s.manager.State()
}

// SubscriptionErrors delivers typed subscription failures as they occur.
func (s *Session) SubscriptionErrors() <-chan subscription.Error {
	return s.errs
}

// Events returns the cached events for the current identity, sorted by name.
func (s *Session) Events() []core.Event {
	return s.cache.Events()
}

// Event returns one cached event.
func (s *Session) Event(id string) (core.Event, bool) {
	return s.cache.Event(id)
}

// Expenses returns the cached expenses of one event, date ascending.
func (s *Session) Expenses(eventID string) []core.Expense {
	return s.cache.Expenses(eventID)
}

// Summary derives the total and count for one event from the cached view.
func (s *Session) Summary(eventID string) aggregate.Summary {
	return aggregate.EventSummary(eventID, s.cache.Expenses(eventID))
}

// Breakdown derives the per-category totals for one event.
func (s *Session) Breakdown(eventID string) []aggregate.CategoryTotal {
	return aggregate.CategoryBreakdown(s.cache.Expenses(eventID))
}

// TimeSeries derives the period-bucketed series for one event from the
// cached view. Set densify to zero-fill gaps across the contiguous range.
func (s *Session) TimeSeries(eventID string, period aggregate.Period, densify bool) ([]aggregate.Bucket, error) {
	buckets, err := aggregate.TimeSeries(s.cache.Expenses(eventID), period)
	if err != nil {
		return nil, err
	}
	if densify {
		buckets = aggregate.Densify(buckets, period)
	}
	return buckets, nil
}

// Analysis aggregates spending across every event of the current identity.
// It reads with one-shot queries rather than the live subscriptions: the
// detail context only ever streams one event's expenses at a time. Expense
// lists for the events are fetched concurrently.
func (s *Session) Analysis(ctx context.Context, period aggregate.Period, densify bool) (*AnalysisReport, error) {
	identity := s.Identity()
	if identity == "" {
		return nil, core.ErrUnauthenticated
	}

	eventsQ := store.Query{CollectionPath: store.EventsCollection}.Where(core.FieldOwnerID, identity)
	docs, err := s.store.GetOnce(ctx, eventsQ)
	if err != nil {
		return nil, fmt.Errorf("%w: list events: %v", core.ErrRemoteUnavailable, err)
	}

	events := make([]core.Event, 0, len(docs))
	for _, d := range docs {
		events = append(events, core.EventFromFields(d.ID, d.Fields))
	}

	var (
		expMu       sync.Mutex
		allExpenses []core.Expense
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, e := range events {
		event := e
		g.Go(func() error {
			q := store.Query{CollectionPath: store.ExpensesCollection(event.ID)}
			children, err := s.store.GetOnce(gctx, q)
			if err != nil {
				return fmt.Errorf("%w: list expenses of %s: %v", core.ErrRemoteUnavailable, event.ID, err)
			}
			expenses := make([]core.Expense, 0, len(children))
			for _, d := range children {
				x, err := core.ExpenseFromFields(event.ID, d.ID, d.Fields)
				if err != nil {
					s.logger.Warn("skipping malformed expense document",
						log.FieldEventID, event.ID, log.FieldExpenseID, d.ID, log.FieldError, err)
					continue
				}
				expenses = append(expenses, x)
			}
			expMu.Lock()
			allExpenses = append(allExpenses, expenses...)
			expMu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	series, err := aggregate.TimeSeries(allExpenses, period)
	if err != nil {
		return nil, err
	}
	if densify {
		series = aggregate.Densify(series, period)
	}

	currencies := aggregate.DistinctCurrencies(events)
	return &AnalysisReport{
		EventCount:      len(events),
		ExpenseCount:    len(allExpenses),
		Series:          series,
		Currencies:      currencies,
		MixedCurrencies: len(currencies) > 1,
	}, nil
}

// CreateEvent validates and writes a new event document.
func (s *Session) CreateEvent(ctx context.Context, fields services.EventFields) (string, error) {
	return s.coord.CreateEvent(ctx, fields)
}

// DeleteEvent deletes the event and all its expenses atomically.
func (s *Session) DeleteEvent(ctx context.Context, eventID string) error {
	return s.coord.DeleteEvent(ctx, eventID)
}

// CreateExpense validates and writes a new expense under the event.
func (s *Session) CreateExpense(ctx context.Context, eventID string, fields services.ExpenseFields) (string, error) {
	return s.coord.CreateExpense(ctx, eventID, fields)
}

// DeleteExpense deletes one expense; absent ids succeed.
func (s *Session) DeleteExpense(ctx context.Context, eventID, expenseID string) error {
	return s.coord.DeleteExpense(ctx, eventID, expenseID)
}

// Shutdown tears down every live subscription.
func (s *Session) Shutdown() {
	s.manager.Shutdown()
}

func (s *Session) pushError(e subscription.Error) {
	for {
		select {
		case s.errs <- e:
			return
		default:
			select {
			case <-s.errs:
			default:
			}
		}
	}
}
