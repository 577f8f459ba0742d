package calculator

import (
	"time"

	"TrendWatch/internal/model"
)

// DefaultLookback bounds the backward status-change scan, in bars.
const DefaultLookback = 250

// Error reasons carried in Snapshot.Error.
const (
	ReasonNoData           = "no data"
	ReasonInsufficientData = "insufficient data"
)

// Calculator derives trend-state snapshots from already-fetched series.
type Calculator struct {
	Lookback int
}

// NewCalculator returns a Calculator; a non-positive lookback selects DefaultLookback.
func NewCalculator(lookback int) *Calculator {
	if lookback <= 0 {
		lookback = DefaultLookback
	}
	return &Calculator{Lookback: lookback}
}

// Input is everything one snapshot is computed from.
type Input struct {
	Daily   model.Series
	Weekly  model.Series
	Monthly model.Series
	// Override replaces the latest daily close, for mid-session evaluation.
	Override *float64
}

// Compute returns the metrics snapshot as of the last daily bar. Identity fields (code, name,
// source, rank) are left for the caller.
func (c *Calculator) Compute(in Input) model.Snapshot {
	snap := model.Snapshot{}
	if len(in.Daily) == 0 {
		snap.Error = ReasonNoData
		return snap
	}
	snap.AsOf = in.Daily.LastDate()
	if len(in.Daily) < MAPeriod {
		snap.Error = ReasonInsufficientData
		return snap
	}

	closes := in.Daily.Closes()
	last := len(closes) - 1
	if in.Override != nil {
		closes[last] = *in.Override
	}
	current := closes[last]

	ma20, err := CalculateMA20(closes)
	if err != nil {
		snap.Error = ReasonInsufficientData
		return snap
	}

	snap.CurrentPrice = current
	snap.PrevClose = closes[last-1]
	snap.MA20 = ma20
	snap.Status = model.StatusOf(current, ma20)
	snap.ChangePct = pctChange(current, snap.PrevClose)
	snap.DeviationPct = pctChange(current, ma20)

	if sc, ok := FindStatusChange(closes, in.Daily.Dates(), snap.Status, c.lookback()); ok {
		date, ma := sc.Date, sc.MA20
		snap.ChangeDate = &date
		snap.ChangeMA20 = &ma
		if ma != 0 {
			ic := pctChange(current, ma)
			snap.IntervalChangePct = &ic
		}
	}

	snap.BigCycle = model.BigCycle{
		Weekly:  cycleStatus(in.Weekly, current),
		Monthly: cycleStatus(in.Monthly, current),
	}
	return snap
}

func (c *Calculator) lookback() int {
	if c.Lookback <= 0 {
		return DefaultLookback
	}
	return c.Lookback
}

// pctChange is (price/base - 1) * 100, defined as 0 for a zero base.
func pctChange(price, base float64) float64 {
	if base == 0 {
		return 0
	}
	return (price/base - 1) * 100
}

// StatusChange locates the start of the current status run.
type StatusChange struct {
	Index int
	Date  time.Time
	// MA20 is the moving average as of Date.
	MA20 float64
}

// FindStatusChange scans backward from the second-to-last bar, recomputing the trailing MA20 at
// each index, for the first index whose status differs from current. The change is the bar right
// after it. Indices n-lookback..n-2 are visited, never below 19, the first index with a full
// window. Fewer than 21 observations, or no differing index in range, reports false.
func FindStatusChange(closes []float64, dates []time.Time, current model.Status, lookback int) (StatusChange, bool) {
	n := len(closes)
	if n < MAPeriod+1 || len(dates) != n {
		return StatusChange{}, false
	}
	floor := n - lookback
	if floor < MAPeriod-1 {
		floor = MAPeriod - 1
	}
	for i := n - 2; i >= floor; i-- {
		if model.StatusOf(closes[i], smaAt(closes, i)) == current {
			continue
		}
		return StatusChange{Index: i + 1, Date: dates[i+1], MA20: smaAt(closes, i+1)}, true
	}
	return StatusChange{}, false
}
