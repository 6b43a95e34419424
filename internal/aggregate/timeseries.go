package aggregate

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"finflow/internal/core"
)

const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
	PeriodYearly  Period = "yearly"
)

type (
	// Period selects the time-series bucketing window.
	Period string

	// Bucket is one point of a spending time series. Start is the bucket's
	// start instant and is the sort key; Label is for display only.
	Bucket struct {
		Label string
		Start time.Time
		Total decimal.Decimal
	}
)

// ParsePeriod converts user input into a Period.
func ParsePeriod(s string) (Period, error) {
	switch Period(s) {
	case PeriodDaily, PeriodWeekly, PeriodMonthly, PeriodYearly:
		return Period(s), nil
	}
	return "", fmt.Errorf("unknown period %q", s)
}

// TimeSeries buckets expenses by period and sums each bucket. Buckets are
// sorted ascending by start instant, never lexically by label, and buckets
// with no expenses are omitted. Use Densify for a zero-filled series.
func TimeSeries(expenses []core.Expense, period Period) ([]Bucket, error) {
	if _, err := ParsePeriod(string(period)); err != nil {
		return nil, err
	}

	totals := make(map[time.Time]decimal.Decimal)
	for _, x := range expenses {
		start := bucketStart(x.Date, period)
		if cur, ok := totals[start]; ok {
			totals[start] = cur.Add(x.Amount)
		} else {
			totals[start] = x.Amount
		}
	}

	buckets := make([]Bucket, 0, len(totals))
	for start, total := range totals {
		buckets = append(buckets, Bucket{
			Label: bucketLabel(start, period),
			Start: start,
			Total: total,
		})
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Start.Before(buckets[j].Start) })
	return buckets, nil
}

// Densify zero-fills the gaps of a sparse series across its contiguous
// range. The input must be sorted ascending, as returned by TimeSeries; an
// empty series densifies to an empty series.
func Densify(buckets []Bucket, period Period) []Bucket {
	if len(buckets) == 0 {
		return buckets
	}
	out := make([]Bucket, 0, len(buckets))
	next := buckets[0].Start
	last := buckets[len(buckets)-1].Start
	i := 0
	for !next.After(last) {
		if i < len(buckets) && buckets[i].Start.Equal(next) {
			out = append(out, buckets[i])
			i++
		} else {
			out = append(out, Bucket{
				Label: bucketLabel(next, period),
				Start: next,
				Total: decimal.Zero,
			})
		}
		next = advance(next, period)
	}
	return out
}

// bucketStart maps a timestamp to its bucket's start instant. Weeks start
// on Monday (ISO).
func bucketStart(t time.Time, period Period) time.Time {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	switch period {
	case PeriodWeekly:
		back := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -back)
	case PeriodMonthly:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	case PeriodYearly:
		return time.Date(t.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
	default:
		return day
	}
}

func bucketLabel(start time.Time, period Period) string {
	switch period {
	case PeriodWeekly:
		return "Week of " + start.Format("Jan 2")
	case PeriodMonthly:
		return start.Format("Jan 2006")
	case PeriodYearly:
		return start.Format("2006")
	default:
		return start.Format("Jan 2, 2006")
	}
}

func advance(start time.Time, period Period) time.Time {
	switch period {
	case PeriodWeekly:
		return start.AddDate(0, 0, 7)
	case PeriodMonthly:
		return start.AddDate(0, 1, 0)
	case PeriodYearly:
		return start.AddDate(1, 0, 0)
	default:
		return start.AddDate(0, 0, 1)
	}
}

