package cache

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"finflow/internal/core"
)

func expense(id string, day int) core.Expense {
	return core.Expense{
		ID:            id,
		ParentEventID: "ev1",
		Description:   "exp " + id,
		Amount:        decimal.NewFromInt(int64(day)),
		Category:      core.CategoryFood,
		Date:          time.Date(2024, 6, day, 0, 0, 0, 0, time.UTC),
	}
}

func TestUpsertEventsLastWriterWins(t *testing.T) {
	c := New()
	c.UpsertEvents([]core.Event{{ID: "ev1", Name: "Trip"}})
	c.UpsertEvents([]core.Event{{ID: "ev1", Name: "Trip renamed"}})

	e, ok := c.Event("ev1")
	assert.True(t, ok)
	assert.Equal(t, "Trip renamed", e.Name)
	assert.Len(t, c.Events(), 1)
}

func TestEventsSortedByName(t *testing.T) {
	c := New()
	c.UpsertEvents([]core.Event{
		{ID: "1", Name: "Zanzibar"},
		{ID: "2", Name: "Alps"},
		{ID: "3", Name: "Milan"},
	})
	events := c.Events()
	assert.Equal(t, []string{"Alps", "Milan", "Zanzibar"},
		[]string{events[0].Name, events[1].Name, events[2].Name})
}

func TestMissingKeyReadsAsAbsent(t *testing.T) {
	c := New()
	_, ok := c.Event("ghost")
	assert.False(t, ok)
	assert.Empty(t, c.Expenses("ghost"))
	assert.Empty(t, c.ExpenseIDs("ghost"))
}

func TestExpensesSortedByDate(t *testing.T) {
	c := New()
	c.UpsertExpenses("ev1", []core.Expense{expense("b", 3), expense("a", 1), expense("c", 2)})

	got := c.Expenses("ev1")
	assert.Equal(t, []string{"a", "c", "b"}, []string{got[0].ID, got[1].ID, got[2].ID})
}

func TestRemoveEventDropsExpenseSet(t *testing.T) {
	c := New()
	c.UpsertEvents([]core.Event{{ID: "ev1", Name: "Trip"}})
	c.UpsertExpenses("ev1", []core.Expense{expense("a", 1)})

	c.RemoveEvent("ev1")
	_, ok := c.Event("ev1")
	assert.False(t, ok)
	assert.Empty(t, c.Expenses("ev1"))
}

func TestRemoveExpenseIdempotent(t *testing.T) {
	c := New()
	c.UpsertExpenses("ev1", []core.Expense{expense("a", 1)})
	c.RemoveExpense("ev1", "a")
	c.RemoveExpense("ev1", "a")
	c.RemoveExpense("ghost", "a")
	assert.Empty(t, c.Expenses("ev1"))
}

func TestSnapshotIsACopy(t *testing.T) {
	c := New()
	c.UpsertEvents([]core.Event{{ID: "ev1", Name: "Trip"}})
	c.UpsertExpenses("ev1", []core.Expense{expense("a", 1)})

	snap := c.Snapshot()
	c.Clear()

	assert.Len(t, snap.Events, 1)
	assert.Len(t, snap.Expenses["ev1"], 1)
	assert.Empty(t, c.Events())
}
