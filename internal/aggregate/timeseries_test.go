package aggregate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finflow/internal/core"
)

func TestTimeSeriesDaily(t *testing.T) {
	expenses := []core.Expense{
		exp("ev1", "40.00", core.CategoryFood, "2024-06-02"),
		exp("ev1", "120.50", core.CategoryHousing, "2024-06-01"),
		exp("ev1", "9.50", core.CategoryFood, "2024-06-02"),
	}
	buckets, err := TimeSeries(expenses, PeriodDaily)
	require.NoError(t, err)
	require.Len(t, buckets, 2)
	assert.Equal(t, "Jun 1, 2024", buckets[0].Label)
	assert.Equal(t, "120.50", buckets[0].Total.StringFixed(2))
	assert.Equal(t, "Jun 2, 2024", buckets[1].Label)
	assert.Equal(t, "49.50", buckets[1].Total.StringFixed(2))
}

func TestTimeSeriesWeeklyStartsMonday(t *testing.T) {
	// 2024-06-02 is a Sunday; its ISO week starts Monday 2024-05-27.
	buckets, err := TimeSeries([]core.Expense{
		exp("ev1", "10.00", core.CategoryFood, "2024-06-02"),
	}, PeriodWeekly)
	require.NoError(t, err)
	require.Len(t, buckets, 1)
	assert.Equal(t, time.Date(2024, 5, 27, 0, 0, 0, 0, time.UTC), buckets[0].Start)
	assert.Equal(t, "Week of May 27", buckets[0].Label)

	// A Monday maps onto itself.
	buckets, err = TimeSeries([]core.Expense{
		exp("ev1", "10.00", core.CategoryFood, "2024-05-27"),
	}, PeriodWeekly)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 27, 0, 0, 0, 0, time.UTC), buckets[0].Start)
}

func TestTimeSeriesMonthlySortsByInstantNotLabel(t *testing.T) {
	// Lexical label order would put "Feb 2024" before "Jan 2024" and both
	// before "Dec 2023"; instant order must win.
	expenses := []core.Expense{
		exp("ev1", "1.00", core.CategoryFood, "2024-02-10"),
		exp("ev1", "2.00", core.CategoryFood, "2023-12-25"),
		exp("ev1", "3.00", core.CategoryFood, "2024-01-05"),
	}
	buckets, err := TimeSeries(expenses, PeriodMonthly)
	require.NoError(t, err)
	require.Len(t, buckets, 3)
	assert.Equal(t, []string{"Dec 2023", "Jan 2024", "Feb 2024"},
		[]string{buckets[0].Label, buckets[1].Label, buckets[2].Label})
}

func TestTimeSeriesStrictlyAscendingNoDuplicateKeys(t *testing.T) {
	expenses := []core.Expense{
		exp("ev1", "1.00", core.CategoryFood, "2024-06-01"),
		exp("ev1", "2.00", core.CategoryFood, "2024-06-01"),
		exp("ev1", "3.00", core.CategoryFood, "2024-06-03"),
		exp("ev1", "4.00", core.CategoryFood, "2024-05-30"),
	}
	for _, period := range []Period{PeriodDaily, PeriodWeekly, PeriodMonthly, PeriodYearly} {
		buckets, err := TimeSeries(expenses, period)
		require.NoError(t, err)
		for i := 1; i < len(buckets); i++ {
			assert.True(t, buckets[i-1].Start.Before(buckets[i].Start),
				"period %s: buckets not strictly ascending", period)
		}
	}
}

func TestTimeSeriesYearly(t *testing.T) {
	expenses := []core.Expense{
		exp("ev1", "1.00", core.CategoryFood, "2023-06-01"),
		exp("ev1", "2.00", core.CategoryFood, "2024-01-15"),
	}
	buckets, err := TimeSeries(expenses, PeriodYearly)
	require.NoError(t, err)
	require.Len(t, buckets, 2)
	assert.Equal(t, "2023", buckets[0].Label)
	assert.Equal(t, "2024", buckets[1].Label)
}

func TestTimeSeriesRejectsUnknownPeriod(t *testing.T) {
	_, err := TimeSeries(nil, "hourly")
	assert.Error(t, err)
}

func TestDensifyZeroFillsGaps(t *testing.T) {
	expenses := []core.Expense{
		exp("ev1", "10.00", core.CategoryFood, "2024-01-15"),
		exp("ev1", "30.00", core.CategoryFood, "2024-04-02"),
	}
	sparse, err := TimeSeries(expenses, PeriodMonthly)
	require.NoError(t, err)
	require.Len(t, sparse, 2)

	dense := Densify(sparse, PeriodMonthly)
	require.Len(t, dense, 4)
	assert.Equal(t, []string{"Jan 2024", "Feb 2024", "Mar 2024", "Apr 2024"},
		[]string{dense[0].Label, dense[1].Label, dense[2].Label, dense[3].Label})
	assert.True(t, dense[1].Total.IsZero())
	assert.True(t, dense[2].Total.IsZero())
	assert.Equal(t, "10.00", dense[0].Total.StringFixed(2))
	assert.Equal(t, "30.00", dense[3].Total.StringFixed(2))
}

func TestDensifyEmptyAndSingle(t *testing.T) {
	assert.Empty(t, Densify(nil, PeriodDaily))

	single, err := TimeSeries([]core.Expense{
		exp("ev1", "1.00", core.CategoryFood, "2024-06-01"),
	}, PeriodDaily)
	require.NoError(t, err)
	assert.Len(t, Densify(single, PeriodDaily), 1)
}

func TestParsePeriod(t *testing.T) {
	for _, s := range []string{"daily", "weekly", "monthly", "yearly"} {
		p, err := ParsePeriod(s)
		require.NoError(t, err)
		assert.Equal(t, Period(s), p)
	}
	_, err := ParsePeriod("quarterly")
	assert.Error(t, err)
}
