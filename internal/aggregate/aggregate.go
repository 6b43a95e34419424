// Package aggregate derives read models from snapshots of events and
// expenses. Every function is a pure projection: inputs are never mutated
// and no state is kept between calls. Sums use exact decimal arithmetic;
// rounding to two digits happens only at presentation time.
package aggregate

import (
	"sort"

	"github.com/shopspring/decimal"

	"finflow/internal/core"
)

// Summary holds the total spend and transaction count for one event.
type Summary struct {
	Count int
	Total decimal.Decimal
}

// CategoryTotal is one slice of a category breakdown.
type CategoryTotal struct {
	Category core.Category
	Total    decimal.Decimal
}

// EventSummary sums the amounts of the expenses belonging to eventID. The
// result is invariant under reordering of the input.
func EventSummary(eventID string, expenses []core.Expense) Summary {
	s := Summary{Total: decimal.Zero}
	for _, x := range expenses {
		if x.ParentEventID != eventID {
			continue
		}
		s.Count++
		s.Total = s.Total.Add(x.Amount)
	}
	return s
}

// CategoryBreakdown totals expenses per category, in first-seen order.
// Categories absent from the input are omitted; every expense is counted
// exactly once.
func CategoryBreakdown(expenses []core.Expense) []CategoryTotal {
	totals := make(map[core.Category]int)
	out := make([]CategoryTotal, 0)
	for _, x := range expenses {
		i, ok := totals[x.Category]
		if !ok {
			i = len(out)
			totals[x.Category] = i
			out = append(out, CategoryTotal{Category: x.Category, Total: decimal.Zero})
		}
		out[i].Total = out[i].Total.Add(x.Amount)
	}
	return out
}

// DistinctCurrencies returns the sorted set of currency codes among the
// given events. Cross-event sums perform no conversion; callers surface a
// mixed-currency disclaimer whenever more than one code is present.
func DistinctCurrencies(events []core.Event) []string {
	seen := make(map[string]struct{})
	for _, e := range events {
		code := e.Currency
		if code == "" {
			code = core.DefaultCurrency
		}
		seen[code] = struct{}{}
	}
	codes := make([]string, 0, len(seen))
	for code := range seen {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
