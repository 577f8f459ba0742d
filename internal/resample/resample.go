// Package resample derives weekly and monthly series from a daily series.
//
// Windows are calendar aligned: a week ends on Sunday and a month on its last calendar day, no
// matter which trading days are missing inside the window. Each derived bar is dated with its
// window end. Nothing here performs I/O.
package resample

import (
	"time"

	"TrendWatch/internal/model"
)

// Period is a calendar aggregation window.
type Period int

const (
	Weekly Period = iota
	Monthly
)

func (p Period) String() string {
	if p == Monthly {
		return "monthly"
	}
	return "weekly"
}

// WindowEnd returns the last calendar day of the window containing d.
func (p Period) WindowEnd(d time.Time) time.Time {
	d = model.Day(d)
	if p == Monthly {
		return time.Date(d.Year(), d.Month()+1, 0, 0, 0, 0, 0, time.UTC)
	}
	return d.AddDate(0, 0, (7-int(d.Weekday()))%7)
}

// Resample aggregates daily into p windows: open of the first bar, max high, min low, close of
// the last bar, summed volume. Empty windows never appear.
func Resample(daily model.Series, p Period) model.Series {
	if len(daily) == 0 {
		return nil
	}
	var out model.Series
	var cur model.Bar
	started := false

	for _, d := range daily {
		end := p.WindowEnd(d.Date)
		if !started || !end.Equal(cur.Date) {
			if started {
				out = append(out, cur)
			}
			cur = model.Bar{Date: end, Open: d.Open, High: d.High, Low: d.Low, Close: d.Close, Volume: d.Volume}
			started = true
			continue
		}
		if d.High > cur.High {
			cur.High = d.High
		}
		if d.Low < cur.Low {
			cur.Low = d.Low
		}
		cur.Close = d.Close
		cur.Volume += d.Volume
	}
	out = append(out, cur)
	return out
}

// ToWeekly is shorthand for Resample(daily, Weekly).
func ToWeekly(daily model.Series) model.Series { return Resample(daily, Weekly) }

// ToMonthly is shorthand for Resample(daily, Monthly).
func ToMonthly(daily model.Series) model.Series { return Resample(daily, Monthly) }

// Rewind reconstructs the derived series as it stood at the last bar of view, given derived
// computed once from a longer daily series that agrees with view on every date view covers.
// Completed windows are reused from derived; only the still-open window is rebuilt from view.
// The result equals Resample(view, p).
func Rewind(derived, view model.Series, p Period) model.Series {
	if len(view) == 0 {
		return nil
	}
	openEnd := p.WindowEnd(view.LastDate())

	n := 0
	for n < len(derived) && derived[n].Date.Before(openEnd) {
		n++
	}

	start := len(view)
	for start > 0 && p.WindowEnd(view[start-1].Date).Equal(openEnd) {
		start--
	}

	out := make(model.Series, 0, n+1)
	out = append(out, derived[:n]...)
	return append(out, Resample(view[start:], p)...)
}
