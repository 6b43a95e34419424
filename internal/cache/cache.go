// Package cache holds the authoritative local view of events and expenses.
// It is written only by subscription callbacks and optimistic mutations and
// read by the derived views; reads never touch the network.
package cache

import (
	"sort"
	"strings"
	"sync"

	"finflow/internal/core"
)

// EntityCache maps event ids to events and, per event, expense ids to
// expenses. Last writer wins per key, in arrival order; a missing key reads
// as absent, never as an error.
type EntityCache struct {
	mu       sync.RWMutex
	events   map[string]core.Event
	expenses map[string]map[string]core.Expense
}

// Snapshot is a point-in-time copy of the cache contents, safe to hand to
// the aggregation layer.
type Snapshot struct {
	Events   []core.Event
	Expenses map[string][]core.Expense
}

func New() *EntityCache {
	return &EntityCache{
		events:   make(map[string]core.Event),
		expenses: make(map[string]map[string]core.Expense),
	}
}

// UpsertEvents inserts or replaces the given events by id.
func (c *EntityCache) UpsertEvents(events []core.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range events {
		c.events[e.ID] = e
	}
}

// UpsertExpenses inserts or replaces the given expenses under one event.
func (c *EntityCache) UpsertExpenses(eventID string, expenses []core.Expense) {
	c.mu.Lock()
	defer c.mu.Unlock()
	set := c.expenses[eventID]
	if set == nil {
		set = make(map[string]core.Expense)
		c.expenses[eventID] = set
	}
	for _, x := range expenses {
		set[x.ID] = x
	}
}

// RemoveEvent drops an event and its expense set. Removing an absent id is a
// no-op.
func (c *EntityCache) RemoveEvent(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.events, id)
	delete(c.expenses, id)
}

// RemoveExpense drops one expense. Removing an absent id is a no-op.
func (c *EntityCache) RemoveExpense(eventID, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if set := c.expenses[eventID]; set != nil {
		delete(set, id)
	}
}

// Clear empties the cache. Called when the identity is lost.
func (c *EntityCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = make(map[string]core.Event)
	c.expenses = make(map[string]map[string]core.Expense)
}

// Event returns one event by id.
func (c *EntityCache) Event(id string) (core.Event, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.events[id]
	return e, ok
}

// Events returns all cached events sorted by name.
func (c *EntityCache) Events() []core.Event {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.eventsLocked()
}

// EventIDs returns the cached event ids, unordered.
func (c *EntityCache) EventIDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.events))
	for id := range c.events {
		ids = append(ids, id)
	}
	return ids
}

// ExpenseIDs returns the cached expense ids under one event, unordered.
func (c *EntityCache) ExpenseIDs(eventID string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	set := c.expenses[eventID]
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ids
}

// Expenses returns the cached expenses for one event, sorted by date then id.
func (c *EntityCache) Expenses(eventID string) []core.Expense {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.expensesLocked(eventID)
}

// Snapshot returns a copy of the full cache contents.
func (c *EntityCache) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap := Snapshot{
		Events:   c.eventsLocked(),
		Expenses: make(map[string][]core.Expense, len(c.expenses)),
	}
	for eventID := range c.expenses {
		snap.Expenses[eventID] = c.expensesLocked(eventID)
	}
	return snap
}

func (c *EntityCache) eventsLocked() []core.Event {
	events := make([]core.Event, 0, len(c.events))
	for _, e := range c.events {
		events = append(events, e)
	}
	sort.Slice(events, func(i, j int) bool {
		if n := strings.Compare(events[i].Name, events[j].Name); n != 0 {
			return n < 0
		}
		return events[i].ID < events[j].ID
	})
	return events
}

func (c *EntityCache) expensesLocked(eventID string) []core.Expense {
	set := c.expenses[eventID]
	expenses := make([]core.Expense, 0, len(set))
	for _, x := range set {
		expenses = append(expenses, x)
	}
	sort.Slice(expenses, func(i, j int) bool {
		if !expenses[i].Date.Equal(expenses[j].Date) {
			return expenses[i].Date.Before(expenses[j].Date)
		}
		return expenses[i].ID < expenses[j].ID
	})
	return expenses
}
