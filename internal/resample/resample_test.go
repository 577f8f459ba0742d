package resample

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TrendWatch/internal/model"
)

func d(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

// weekdays builds one bar per weekday from start for n trading days; close = 100 + i.
func weekdays(start time.Time, n int) model.Series {
	var s model.Series
	for day := start; len(s) < n; day = day.AddDate(0, 0, 1) {
		if day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
			continue
		}
		i := float64(len(s))
		s = append(s, model.Bar{Date: day, Open: 100 + i - 0.5, High: 101 + i, Low: 99 + i, Close: 100 + i, Volume: 10})
	}
	return s
}

func TestWindowEnd(t *testing.T) {
	assert.Equal(t, d("2025-01-05"), Weekly.WindowEnd(d("2024-12-30"))) // Monday
	assert.Equal(t, d("2025-01-05"), Weekly.WindowEnd(d("2025-01-03"))) // Friday
	assert.Equal(t, d("2025-01-05"), Weekly.WindowEnd(d("2025-01-05"))) // Sunday is its own end
	assert.Equal(t, d("2024-02-29"), Monthly.WindowEnd(d("2024-02-10")))
	assert.Equal(t, d("2025-12-31"), Monthly.WindowEnd(d("2025-12-01")))
}

func TestResampleWeekly(t *testing.T) {
	daily := model.Series{
		{Date: d("2025-01-02"), Open: 10, High: 12, Low: 9, Close: 11, Volume: 1},
		{Date: d("2025-01-03"), Open: 11, High: 15, Low: 10, Close: 14, Volume: 2},
		// 2025-01-06 (Monday) missing: holiday
		{Date: d("2025-01-07"), Open: 14, High: 14, Low: 8, Close: 9, Volume: 3},
		{Date: d("2025-01-10"), Open: 9, High: 10, Low: 9, Close: 10, Volume: 4},
	}

	w := Resample(daily, Weekly)
	require.Len(t, w, 2)

	assert.Equal(t, model.Bar{Date: d("2025-01-05"), Open: 10, High: 15, Low: 9, Close: 14, Volume: 3}, w[0])
	assert.Equal(t, model.Bar{Date: d("2025-01-12"), Open: 14, High: 14, Low: 8, Close: 10, Volume: 7}, w[1])
}

func TestResampleSkipsEmptyWindows(t *testing.T) {
	daily := model.Series{
		{Date: d("2025-01-02"), Open: 1, High: 1, Low: 1, Close: 1},
		{Date: d("2025-03-03"), Open: 2, High: 2, Low: 2, Close: 2},
	}
	m := Resample(daily, Monthly)
	require.Len(t, m, 2)
	assert.Equal(t, d("2025-01-31"), m[0].Date)
	assert.Equal(t, d("2025-03-31"), m[1].Date)

	w := Resample(daily, Weekly)
	assert.Len(t, w, 2)
}

func TestResampleDeterministic(t *testing.T) {
	daily := weekdays(d("2023-01-02"), 400)
	assert.Equal(t, Resample(daily, Weekly), Resample(daily, Weekly))
	assert.Equal(t, Resample(daily, Monthly), Resample(daily, Monthly))

	for _, b := range Resample(daily, Weekly) {
		assert.Equal(t, time.Sunday, b.Date.Weekday())
	}
	for _, b := range Resample(daily, Monthly) {
		assert.Equal(t, 1, b.Date.AddDate(0, 0, 1).Day(), "month bar %s must end on the last day", b.Date)
	}
}

func TestResampleEmpty(t *testing.T) {
	assert.Nil(t, Resample(nil, Weekly))
	assert.Nil(t, Rewind(nil, nil, Monthly))
}

func TestRewindMatchesResampleOfTruncatedSeries(t *testing.T) {
	full := weekdays(d("2023-01-02"), 500)
	weekly := Resample(full, Weekly)
	monthly := Resample(full, Monthly)

	for _, cutoff := range []time.Time{
		d("2023-01-02"), d("2023-06-14"), d("2023-12-31"), d("2024-02-29"), d("2024-03-01"), full.LastDate(),
	} {
		view := full.Truncate(cutoff)
		assert.Equal(t, Resample(view, Weekly), Rewind(weekly, view, Weekly), "weekly at %s", cutoff)
		assert.Equal(t, Resample(view, Monthly), Rewind(monthly, view, Monthly), "monthly at %s", cutoff)
	}
}

func TestRewindDoesNotMutateDerived(t *testing.T) {
	full := weekdays(d("2024-01-01"), 60)
	weekly := Resample(full, Weekly)
	before := weekly.Clone()

	out := Rewind(weekly, full.Truncate(d("2024-01-17")), Weekly)
	out[0].Close = -1

	assert.Equal(t, before, weekly)
}
