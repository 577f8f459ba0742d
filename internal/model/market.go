package model

import (
	"sort"
	"time"
)

// Bar represents one period's OHLCV record. Date is a naive calendar day (UTC midnight).
type Bar struct {
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Series is an ascending-by-date sequence of bars with unique dates.
type Series []Bar

// Closes returns the close column.
func (s Series) Closes() []float64 {
	closes := make([]float64, len(s))
	for i, b := range s {
		closes[i] = b.Close
	}
	return closes
}

// Dates returns the date column.
func (s Series) Dates() []time.Time {
	dates := make([]time.Time, len(s))
	for i, b := range s {
		dates[i] = b.Date
	}
	return dates
}

// Clone returns an independent copy.
func (s Series) Clone() Series {
	if s == nil {
		return nil
	}
	out := make(Series, len(s))
	copy(out, s)
	return out
}

// Tail returns the most recent n bars.
func (s Series) Tail(n int) Series {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// Last returns the most recent bar. It panics on an empty series.
func (s Series) Last() Bar {
	return s[len(s)-1]
}

// LastDate returns the date of the most recent bar, or the zero time.
func (s Series) LastDate() time.Time {
	if len(s) == 0 {
		return time.Time{}
	}
	return s[len(s)-1].Date
}

// Truncate returns the bars dated on or before cutoff. The receiver is never modified and the
// returned view has its capacity clipped so appends cannot write into the original.
func (s Series) Truncate(cutoff time.Time) Series {
	day := Day(cutoff)
	n := sort.Search(len(s), func(i int) bool { return s[i].Date.After(day) })
	return s[:n:n]
}

// Day strips the clock and zone from t, keeping the calendar day as seen in t's own location.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// PriceSeries bundles an instrument's daily series with its derived weekly and monthly series.
type PriceSeries struct {
	Instrument Instrument
	Daily      Series
	Weekly     Series
	Monthly    Series
	FetchedAt  time.Time
}
