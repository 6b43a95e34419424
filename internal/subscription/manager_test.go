package subscription

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finflow/internal/cache"
	"finflow/internal/core"
	"finflow/internal/store"
	"finflow/internal/store/memory"
)

func newFixture(t *testing.T) (*memory.Store, *cache.EntityCache, *Manager, chan Error) {
	t.Helper()
	s := memory.New()
	c := cache.New()
	errs := make(chan Error, 16)
	m := NewManager(Config{
		Store:   s,
		Cache:   c,
		OnError: func(e Error) { errs <- e },
	})
	t.Cleanup(m.Shutdown)
	return s, c, m, errs
}

func seedEvent(t *testing.T, s *memory.Store, owner, name string) string {
	t.Helper()
	id, err := s.WriteOne(context.Background(), store.EventsCollection,
		core.Event{OwnerID: owner, Name: name, Currency: "USD"}.Fields())
	require.NoError(t, err)
	return id
}

func seedExpense(t *testing.T, s *memory.Store, eventID, desc string) string {
	t.Helper()
	x := core.Expense{
		Description: desc,
		Category:    core.CategoryFood,
		Date:        time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	}
	f := x.Fields()
	f[core.FieldAmount] = "10.00"
	id, err := s.WriteOne(context.Background(), store.ExpensesCollection(eventID), f)
	require.NoError(t, err)
	return id
}

// eventually polls the cache until cond holds.
func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestUnauthenticatedHasNoSubscriptions(t *testing.T) {
	s, c, m, _ := newFixture(t)
	assert.Equal(t, StateUnauthenticated, m.State())
	assert.Empty(t, s.Calls())

	seedEvent(t, s, "u1", "Trip")
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, c.Events())
}

func TestSetIdentityEstablishesEventsSubscription(t *testing.T) {
	s, c, m, _ := newFixture(t)
	seedEvent(t, s, "u1", "Trip")
	seedEvent(t, s, "u2", "Foreign")

	require.NoError(t, m.SetIdentity(context.Background(), "u1"))
	assert.Equal(t, StateEventsOnly, m.State())

	eventually(t, func() bool { return len(c.Events()) == 1 }, "events never arrived")
	assert.Equal(t, "Trip", c.Events()[0].Name)
}

func TestIdentityChangeClearsPriorContext(t *testing.T) {
	s, c, m, _ := newFixture(t)
	seedEvent(t, s, "u1", "Mine")
	seedEvent(t, s, "u2", "Theirs")

	require.NoError(t, m.SetIdentity(context.Background(), "u1"))
	eventually(t, func() bool { return len(c.Events()) == 1 }, "u1 events never arrived")

	require.NoError(t, m.SetIdentity(context.Background(), "u2"))
	eventually(t, func() bool {
		events := c.Events()
		return len(events) == 1 && events[0].Name == "Theirs"
	}, "u2 events never replaced u1's")
}

func TestLogoutClearsCache(t *testing.T) {
	s, c, m, _ := newFixture(t)
	seedEvent(t, s, "u1", "Trip")
	require.NoError(t, m.SetIdentity(context.Background(), "u1"))
	eventually(t, func() bool { return len(c.Events()) == 1 }, "events never arrived")

	require.NoError(t, m.ClearIdentity(context.Background()))
	assert.Equal(t, StateUnauthenticated, m.State())
	assert.Empty(t, c.Events())

	// Writes after logout must not reach the cache.
	seedEvent(t, s, "u1", "Late")
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, c.Events())
}

func TestOpenEventRequiresIdentity(t *testing.T) {
	_, _, m, _ := newFixture(t)
	err := m.OpenEvent(context.Background(), "ev1")
	assert.ErrorIs(t, err, core.ErrUnauthenticated)
}

func TestOpenEventStreamsExpenses(t *testing.T) {
	s, c, m, _ := newFixture(t)
	eventID := seedEvent(t, s, "u1", "Trip")
	seedExpense(t, s, eventID, "Hotel")

	require.NoError(t, m.SetIdentity(context.Background(), "u1"))
	require.NoError(t, m.OpenEvent(context.Background(), eventID))
	assert.Equal(t, StateEventDetail, m.State())

	eventually(t, func() bool { return len(c.Expenses(eventID)) == 1 }, "expenses never arrived")

	// A later remote insert flows in through the live subscription.
	seedExpense(t, s, eventID, "Dinner")
	eventually(t, func() bool { return len(c.Expenses(eventID)) == 2 }, "second expense never arrived")
}

func TestSwitchingDetailContextReplacesExpensesSubscription(t *testing.T) {
	s, c, m, _ := newFixture(t)
	evA := seedEvent(t, s, "u1", "A")
	evB := seedEvent(t, s, "u1", "B")
	seedExpense(t, s, evA, "Hotel A")
	seedExpense(t, s, evB, "Hotel B")

	require.NoError(t, m.SetIdentity(context.Background(), "u1"))
	require.NoError(t, m.OpenEvent(context.Background(), evA))
	eventually(t, func() bool { return len(c.Expenses(evA)) == 1 }, "A expenses never arrived")

	require.NoError(t, m.OpenEvent(context.Background(), evB))
	assert.Equal(t, evB, m.OpenEventID())
	eventually(t, func() bool { return len(c.Expenses(evB)) == 1 }, "B expenses never arrived")

	// A's subscription is gone: a new write under A stays out of the cache
	// while B keeps streaming. The events subscription is untouched.
	seedExpense(t, s, evA, "Late A")
	seedExpense(t, s, evB, "Dinner B")
	eventually(t, func() bool { return len(c.Expenses(evB)) == 2 }, "B second expense never arrived")
	assert.Len(t, c.Expenses(evA), 1)
	assert.Len(t, c.Events(), 2)
}

func TestCloseEventKeepsEventsSubscription(t *testing.T) {
	s, c, m, _ := newFixture(t)
	eventID := seedEvent(t, s, "u1", "Trip")

	require.NoError(t, m.SetIdentity(context.Background(), "u1"))
	require.NoError(t, m.OpenEvent(context.Background(), eventID))
	m.CloseEvent()
	assert.Equal(t, StateEventsOnly, m.State())

	seedEvent(t, s, "u1", "Another")
	eventually(t, func() bool { return len(c.Events()) == 2 }, "events subscription was torn down")
}

func TestOpenEventMissingIsNotFound(t *testing.T) {
	s, _, m, _ := newFixture(t)
	seedEvent(t, s, "u1", "Trip")

	require.NoError(t, m.SetIdentity(context.Background(), "u1"))
	err := m.OpenEvent(context.Background(), "no-such-event")
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.Equal(t, StateEventsOnly, m.State())
}

func TestOpenEventForeignIsRefused(t *testing.T) {
	s, c, m, _ := newFixture(t)
	seedEvent(t, s, "u1", "Mine")
	foreignID := seedEvent(t, s, "u2", "Theirs")
	seedExpense(t, s, foreignID, "Their hotel")

	require.NoError(t, m.SetIdentity(context.Background(), "u1"))
	eventually(t, func() bool { return len(c.Events()) == 1 }, "own events never arrived")

	err := m.OpenEvent(context.Background(), foreignID)
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.Equal(t, StateEventsOnly, m.State())

	// Nothing of the other user's event may ever reach the cache.
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, c.Expenses(foreignID))
}

func TestOpenEventRevokedTearsDownDetailContext(t *testing.T) {
	s, c, m, errs := newFixture(t)
	eventID := seedEvent(t, s, "u1", "Trip")
	seedExpense(t, s, eventID, "Hotel")

	require.NoError(t, m.SetIdentity(context.Background(), "u1"))
	require.NoError(t, m.OpenEvent(context.Background(), eventID))
	eventually(t, func() bool { return len(c.Expenses(eventID)) == 1 }, "expenses never arrived")

	// The event leaves the owner's view while its detail context is open.
	require.NoError(t, s.DeleteOne(context.Background(), store.DocPath(store.EventsCollection, eventID)))

	deadline := time.After(2 * time.Second)
	for {
		select {
		case e := <-errs:
			if errors.Is(e.Err, core.ErrNotFound) {
				eventually(t, func() bool { return m.State() == StateEventsOnly }, "detail context never left")
				assert.Empty(t, c.Expenses(eventID))

				// The expenses subscription is gone: a late write under the
				// dead event stays out of the cache.
				seedExpense(t, s, eventID, "Late")
				time.Sleep(20 * time.Millisecond)
				assert.Empty(t, c.Expenses(eventID))
				return
			}
		case <-deadline:
			t.Fatal("NotFound never surfaced")
		}
	}
}

func TestSubscriptionErrorIsTypedAndIsolated(t *testing.T) {
	s, c, m, errs := newFixture(t)
	eventID := seedEvent(t, s, "u1", "Trip")

	require.NoError(t, m.SetIdentity(context.Background(), "u1"))
	require.NoError(t, m.OpenEvent(context.Background(), eventID))
	eventually(t, func() bool { return len(c.Events()) == 1 }, "events never arrived")

	boom := errors.New("connection reset")
	s.FailSubscriptions(store.ExpensesCollection(eventID), boom)

	select {
	case e := <-errs:
		assert.Equal(t, store.ExpensesCollection(eventID), e.Query.CollectionPath)
		assert.ErrorIs(t, e.Err, boom)
	case <-time.After(2 * time.Second):
		t.Fatal("error never surfaced")
	}

	// The unrelated events subscription keeps working.
	seedEvent(t, s, "u1", "Another")
	eventually(t, func() bool { return len(c.Events()) == 2 }, "events subscription was affected")
}

func TestShutdownCancelsEverything(t *testing.T) {
	s, c, m, _ := newFixture(t)
	eventID := seedEvent(t, s, "u1", "Trip")
	require.NoError(t, m.SetIdentity(context.Background(), "u1"))
	require.NoError(t, m.OpenEvent(context.Background(), eventID))
	eventually(t, func() bool { return len(c.Events()) == 1 }, "events never arrived")

	m.Shutdown()
	assert.Error(t, m.SetIdentity(context.Background(), "u1"))
	assert.Error(t, m.OpenEvent(context.Background(), eventID))

	seedEvent(t, s, "u1", "Late")
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, c.Events(), 1)
}
