// Package services sequences local state changes against remote writes.
package services

import (
	"context"
	"fmt"

	"finflow/internal/cache"
	"finflow/internal/core"
	"finflow/internal/log"
	"finflow/internal/store"
)

type (
	// Notifier publishes mutation notifications for downstream consumers. A
	// nil notifier disables publishing; publish failures never fail the
	// mutation itself.
	Notifier interface {
		PublishEventMutation(ctx context.Context, op, eventID string) error
		PublishExpenseMutation(ctx context.Context, op, eventID, expenseID string) error
	}

	// EventFields are the caller-supplied fields for a new event.
	EventFields struct {
		Name        string
		Description string
		Currency    string
		ImageURL    string
	}

	// ExpenseFields are the caller-supplied fields for a new expense.
	ExpenseFields struct {
		Description string
		Amount      string
		Category    core.Category
		Date        string // ISO 8601
	}

	// Config wires the coordinator. Identity supplies the current
	// authenticated identity; an empty string means unauthenticated.
	// Optimistic applies mutations to the cache immediately instead of
	// waiting for the subscription echo.
	Config struct {
		Store      store.RemoteStore
		Cache      *cache.EntityCache
		Identity   func() string
		Notifier   Notifier
		Logger     *log.Logger
		Optimistic bool
	}

	// Coordinator performs create/delete operations against the remote
	// store and reconciles the results into the cache. Validation always
	// precedes I/O; every failure is a typed error, never a panic.
	Coordinator struct {
		store      store.RemoteStore
		cache      *cache.EntityCache
		identity   func() string
		notifier   Notifier
		logger     *log.Logger
		optimistic bool
	}
)

func NewCoordinator(cfg Config) *Coordinator {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &Coordinator{
		store:      cfg.Store,
		cache:      cfg.Cache,
		identity:   cfg.Identity,
		notifier:   cfg.Notifier,
		logger:     logger.WithComponent(log.ComponentMutation),
		optimistic: cfg.Optimistic,
	}
}

// CreateEvent validates the fields locally, then writes the event document.
// The live subscription delivers the new event into the cache; with
// Optimistic enabled it is inserted immediately as well.
func (c *Coordinator) CreateEvent(ctx context.Context, fields EventFields) (string, error) {
	owner := c.identity()
	if owner == "" {
		return "", core.ErrUnauthenticated
	}

	event := core.Event{
		OwnerID:     owner,
		Name:        fields.Name,
		Description: fields.Description,
		Currency:    fields.Currency,
		ImageURL:    fields.ImageURL,
	}
	if event.Currency == "" {
		event.Currency = core.DefaultCurrency
	}
	if err := event.Validate(); err != nil {
		return "", err
	}

	id, err := c.store.WriteOne(ctx, store.EventsCollection, event.Fields())
	if err != nil {
		return "", fmt.Errorf("%w: create event: %v", core.ErrRemoteUnavailable, err)
	}
	event.ID = id

	if c.optimistic {
		c.cache.UpsertEvents([]core.Event{event})
	}
	c.notifyEvent(ctx, log.OpCreate, id)
	c.logger.InfoContext(ctx, "event created",
		log.FieldOperation, log.OpCreate, log.FieldEventID, id, log.FieldOwner, owner)
	return id, nil
}

// DeleteEvent removes the event and every expense under it as one atomic
// batch: enumerate the children with a one-shot read, then commit a single
// multi-document delete. An expense inserted concurrently during the
// enumeration window can survive the batch; that race is accepted in
// exchange for not requiring a transactional read-then-delete.
func (c *Coordinator) DeleteEvent(ctx context.Context, eventID string) error {
	owner := c.identity()
	if owner == "" {
		return core.ErrUnauthenticated
	}
	if eventID == "" {
		return fmt.Errorf("%w: event id is required", core.ErrNotFound)
	}
	if err := c.ownsEvent(ctx, owner, eventID); err != nil {
		return err
	}

	expensesPath := store.ExpensesCollection(eventID)
	children, err := c.store.GetOnce(ctx, store.Query{CollectionPath: expensesPath})
	if err != nil {
		return fmt.Errorf("%w: enumerate expenses of %s: %v", core.ErrRemoteUnavailable, eventID, err)
	}

	ops := make([]store.BatchOp, 0, len(children)+1)
	for _, d := range children {
		ops = append(ops, store.BatchOp{Kind: store.BatchDelete, Path: d.Path})
	}
	ops = append(ops, store.BatchOp{
		Kind: store.BatchDelete,
		Path: store.DocPath(store.EventsCollection, eventID),
	})

	if err := c.store.AtomicBatch(ctx, ops); err != nil {
		return fmt.Errorf("%w: cascading delete of %s: %v", core.ErrRemoteUnavailable, eventID, err)
	}

	if c.optimistic {
		c.cache.RemoveEvent(eventID)
	}
	c.notifyEvent(ctx, log.OpDelete, eventID)
	c.logger.InfoContext(ctx, "event deleted with expenses",
		log.FieldOperation, log.OpCascade,
		log.FieldEventID, eventID, log.FieldCount, len(children))
	return nil
}

// CreateExpense validates the fields locally, tags the expense with the
// creating identity, then writes it under the event's child collection. The
// parent event must belong to the caller.
func (c *Coordinator) CreateExpense(ctx context.Context, eventID string, fields ExpenseFields) (string, error) {
	owner := c.identity()
	if owner == "" {
		return "", core.ErrUnauthenticated
	}
	if eventID == "" {
		return "", fmt.Errorf("%w: event id is required", core.ErrNotFound)
	}

	expense, err := parseExpenseFields(eventID, owner, fields)
	if err != nil {
		return "", err
	}
	if err := expense.Validate(); err != nil {
		return "", err
	}
	if err := c.ownsEvent(ctx, owner, eventID); err != nil {
		return "", err
	}

	id, err := c.store.WriteOne(ctx, store.ExpensesCollection(eventID), expense.Fields())
	if err != nil {
		return "", fmt.Errorf("%w: create expense: %v", core.ErrRemoteUnavailable, err)
	}
	expense.ID = id

	if c.optimistic {
		c.cache.UpsertExpenses(eventID, []core.Expense{expense})
	}
	c.notifyExpense(ctx, log.OpCreate, eventID, id)
	c.logger.InfoContext(ctx, "expense created",
		log.FieldOperation, log.OpCreate,
		log.FieldEventID, eventID, log.FieldExpenseID, id,
		log.FieldAmount, expense.Amount.String(), log.FieldCategory, string(expense.Category))
	return id, nil
}

// DeleteExpense removes one expense document. It is idempotent: deleting an
// already-absent id succeeds with a logged warning rather than failing.
func (c *Coordinator) DeleteExpense(ctx context.Context, eventID, expenseID string) error {
	owner := c.identity()
	if owner == "" {
		return core.ErrUnauthenticated
	}
	if eventID == "" || expenseID == "" {
		return fmt.Errorf("%w: event and expense ids are required", core.ErrNotFound)
	}
	if err := c.ownsEvent(ctx, owner, eventID); err != nil {
		return err
	}

	known := false
	for _, id := range c.cache.ExpenseIDs(eventID) {
		if id == expenseID {
			known = true
			break
		}
	}
	if !known {
		c.logger.WarnContext(ctx, "deleting expense not present locally",
			log.FieldEventID, eventID, log.FieldExpenseID, expenseID)
	}

	path := store.DocPath(store.ExpensesCollection(eventID), expenseID)
	if err := c.store.DeleteOne(ctx, path); err != nil {
		return fmt.Errorf("%w: delete expense: %v", core.ErrRemoteUnavailable, err)
	}

	if c.optimistic {
		c.cache.RemoveExpense(eventID, expenseID)
	}
	c.notifyExpense(ctx, log.OpDelete, eventID, expenseID)
	c.logger.InfoContext(ctx, "expense deleted",
		log.FieldOperation, log.OpDelete,
		log.FieldEventID, eventID, log.FieldExpenseID, expenseID)
	return nil
}

// ownsEvent verifies the event exists in the owner's events view. Foreign
// and nonexistent ids are indistinguishable to the caller, both read as not
// found.
func (c *Coordinator) ownsEvent(ctx context.Context, owner, eventID string) error {
	q := store.Query{CollectionPath: store.EventsCollection}.Where(core.FieldOwnerID, owner)
	docs, err := c.store.GetOnce(ctx, q)
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

func (c *Coordinator) notifyEvent(ctx context.Context, op, eventID string) {
	if c.notifier == nil {
		return
	}
	if err := c.notifier.PublishEventMutation(ctx, op, eventID); err != nil {
		c.logger.WarnContext(ctx, "failed to publish event mutation",
			log.FieldOperation, log.OpPublish, log.FieldEventID, eventID, log.FieldError, err)
	}
}

func (c *Coordinator) notifyExpense(ctx context.Context, op, eventID, expenseID string) {
	if c.notifier == nil {
		return
	}
	if err := c.notifier.PublishExpenseMutation(ctx, op, eventID, expenseID); err != nil {
		c.logger.WarnContext(ctx, "failed to publish expense mutation",
			log.FieldOperation, log.OpPublish,
			log.FieldEventID, eventID, log.FieldExpenseID, expenseID, log.FieldError, err)
	}
}

func parseExpenseFields(eventID, owner string, fields ExpenseFields) (core.Expense, error) {
	amount, err := core.ParseAmount(fields.Amount)
	if err != nil {
		return core.Expense{}, err
	}
	date, err := parseDate(fields.Date)
	if err != nil {
		return core.Expense{}, err
	}
	return core.Expense{
		ParentEventID: eventID,
		Description:   fields.Description,
		Amount:        amount,
		Category:      fields.Category,
		Date:          date,
		CreatedBy:     owner,
	}, nil
}
