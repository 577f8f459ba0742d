package calculator

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TrendWatch/internal/model"
	"TrendWatch/internal/resample"
)

var start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// series builds consecutive calendar-day bars with the given closes.
func series(closes ...float64) model.Series {
	s := make(model.Series, len(closes))
	for i, c := range closes {
		s[i] = model.Bar{Date: start.AddDate(0, 0, i), Open: c, High: c, Low: c, Close: c}
	}
	return s
}

func repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestCalculateSMA(t *testing.T) {
	v, err := CalculateSMA([]float64{1, 2, 3, 4}, 2)
	require.NoError(t, err)
	assert.Equal(t, 3.5, v)

	_, err = CalculateSMA([]float64{1}, 2)
	assert.ErrorIs(t, err, ErrInsufficientData)

	_, err = CalculateSMA([]float64{1}, 0)
	assert.Error(t, err)
}

func TestComputeMA20IsMeanOfLastTwenty(t *testing.T) {
	closes := make([]float64, 45)
	for i := range closes {
		closes[i] = float64(i*i%17) + 1
	}
	snap := NewCalculator(0).Compute(Input{Daily: series(closes...)})
	require.True(t, snap.Valid())

	sum := 0.0
	for _, c := range closes[25:] {
		sum += c
	}
	assert.InDelta(t, sum/20, snap.MA20, 1e-12)
	assert.Equal(t, closes[44], snap.CurrentPrice)
	assert.Equal(t, closes[43], snap.PrevClose)
}

func TestComputeWithOverride(t *testing.T) {
	closes := append(repeat(9, 19), 10)
	override := 11.0

	snap := NewCalculator(250).Compute(Input{Daily: series(closes...), Override: &override})
	require.True(t, snap.Valid())

	assert.InDelta(t, 9.1, snap.MA20, 1e-12)
	assert.Equal(t, model.StatusAbove, snap.Status)
	assert.InDelta(t, (11/9.1-1)*100, snap.DeviationPct, 1e-9)
	assert.InDelta(t, 20.879, snap.DeviationPct, 1e-3)
	assert.InDelta(t, (11.0/9-1)*100, snap.ChangePct, 1e-9)
	assert.Equal(t, 9.0, snap.PrevClose)
	// 20 bars is below the 21 needed for a change date
	assert.Nil(t, snap.ChangeDate)
	assert.Nil(t, snap.IntervalChangePct)
}

func TestComputeOverrideDoesNotMutateSeries(t *testing.T) {
	daily := series(repeat(5, 25)...)
	override := 6.0
	NewCalculator(0).Compute(Input{Daily: daily, Override: &override})
	assert.Equal(t, 5.0, daily.Last().Close)
}

func TestComputeInsufficientData(t *testing.T) {
	snap := NewCalculator(0).Compute(Input{Daily: series(repeat(1, 19)...)})
	assert.False(t, snap.Valid())
	assert.Equal(t, ReasonInsufficientData, snap.Error)
	assert.Zero(t, snap.MA20)
	assert.Empty(t, snap.Status)

	snap = NewCalculator(0).Compute(Input{})
	assert.Equal(t, ReasonNoData, snap.Error)
}

func TestDeviationSignAndZero(t *testing.T) {
	tests := []struct {
		name string
		last float64
		sign int
	}{
		{"equal", 10, 0},
		{"above", 12, 1},
		{"below", 8, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			closes := append(repeat(10, 19), tt.last)
			snap := NewCalculator(0).Compute(Input{Daily: series(closes...)})
			switch tt.sign {
			case 0:
				assert.Equal(t, snap.CurrentPrice, snap.MA20)
				assert.Zero(t, snap.DeviationPct)
				assert.Equal(t, model.StatusAbove, snap.Status)
			case 1:
				assert.Greater(t, snap.DeviationPct, 0.0)
				assert.Equal(t, model.StatusAbove, snap.Status)
			default:
				assert.Less(t, snap.DeviationPct, 0.0)
				assert.Equal(t, model.StatusBelow, snap.Status)
			}
		})
	}
}

func TestPctChangeZeroBase(t *testing.T) {
	assert.Zero(t, pctChange(5, 0))
}

// belowThenAbove is BELOW on bars 0..k (declining) and ABOVE on k+1..n-1 (well above any MA).
func belowThenAbove(k, n int) []float64 {
	closes := make([]float64, n)
	for i := range closes {
		if i <= k {
			closes[i] = 1000 - float64(i)
		} else {
			closes[i] = 5000 + float64(i)
		}
	}
	return closes
}

func TestStatusChangeDateScenario(t *testing.T) {
	const n = 120
	for k := 19; k <= n-2; k++ {
		closes := belowThenAbove(k, n)
		daily := series(closes...)

		snap := NewCalculator(250).Compute(Input{Daily: daily})
		require.Equal(t, model.StatusAbove, snap.Status)
		require.NotNil(t, snap.ChangeDate, "k=%d", k)
		assert.Equal(t, daily[k+1].Date, *snap.ChangeDate, "k=%d", k)

		wantMA := smaAt(closes, k+1)
		require.NotNil(t, snap.ChangeMA20)
		assert.InDelta(t, wantMA, *snap.ChangeMA20, 1e-9)
		require.NotNil(t, snap.IntervalChangePct)
		assert.InDelta(t, (closes[n-1]/wantMA-1)*100, *snap.IntervalChangePct, 1e-9)
	}
}

func TestStatusChangeRespectsLookback(t *testing.T) {
	const n, k = 120, 40
	closes := belowThenAbove(k, n)
	dates := series(closes...).Dates()

	// the differing index k sits n-1-k = 79 bars back from the last bar
	sc, ok := FindStatusChange(closes, dates, model.StatusAbove, n-k)
	require.True(t, ok)
	assert.Equal(t, k+1, sc.Index)

	_, ok = FindStatusChange(closes, dates, model.StatusAbove, n-k-1)
	assert.False(t, ok)
}

func TestStatusChangeNeedsTwentyOneBars(t *testing.T) {
	closes := belowThenAbove(19, 20)
	_, ok := FindStatusChange(closes, series(closes...).Dates(), model.StatusAbove, 250)
	assert.False(t, ok)

	closes = belowThenAbove(19, 21)
	sc, ok := FindStatusChange(closes, series(closes...).Dates(), model.StatusAbove, 250)
	require.True(t, ok)
	assert.Equal(t, 20, sc.Index)
}

func TestStatusChangeNoFlip(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = float64(i + 1)
	}
	snap := NewCalculator(0).Compute(Input{Daily: series(closes...)})
	assert.Equal(t, model.StatusAbove, snap.Status)
	assert.Nil(t, snap.ChangeDate)
	assert.Nil(t, snap.IntervalChangePct)
}

func TestBigCycleStatus(t *testing.T) {
	// 400 calendar days of slowly rising prices, then a crash on the last bar
	closes := make([]float64, 400)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	daily := series(closes...)
	weekly := resample.ToWeekly(daily)
	monthly := resample.ToMonthly(daily)
	require.GreaterOrEqual(t, len(weekly), 20)
	require.Less(t, len(monthly), 20)

	snap := NewCalculator(0).Compute(Input{Daily: daily, Weekly: weekly, Monthly: monthly})
	assert.Equal(t, model.StatusAbove, snap.BigCycle.Weekly)
	assert.Equal(t, model.StatusUndefined, snap.BigCycle.Monthly)
	assert.Equal(t, "ABOVE--", snap.BigCycle.String())

	crash := 10.0
	snap = NewCalculator(0).Compute(Input{Daily: daily, Weekly: weekly, Monthly: monthly, Override: &crash})
	assert.Equal(t, model.StatusBelow, snap.BigCycle.Weekly)
}

func TestCycleStatusSubstitutesCurrentPrice(t *testing.T) {
	w := series(append(repeat(10, 19), 1000)...)
	// the 1000 close is replaced by 9: MA = (19*10+9)/20 = 9.95 > 9
	assert.Equal(t, model.StatusBelow, cycleStatus(w, 9))
	assert.Equal(t, model.StatusAbove, cycleStatus(w, 10))
	assert.Equal(t, model.StatusUndefined, cycleStatus(w[:19], 10))
}

func TestDeviationZeroWhenMAIsZero(t *testing.T) {
	snap := NewCalculator(0).Compute(Input{Daily: series(repeat(0, 20)...)})
	require.True(t, snap.Valid())
	assert.False(t, math.IsNaN(snap.DeviationPct))
	assert.Zero(t, snap.DeviationPct)
}
