package calculator

import (
	"errors"

	"TrendWatch/internal/model"
)

// MAPeriod is the moving-average window used for every timeframe.
const MAPeriod = 20

// ErrInsufficientData is returned when a series is shorter than the averaging window.
var ErrInsufficientData = errors.New("not enough data for SMA calculation")

// CalculateSMA computes the simple moving average of the last period prices.
func CalculateSMA(prices []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, errors.New("period must be positive")
	}
	if len(prices) < period {
		return 0, ErrInsufficientData
	}
	sum := 0.0
	for i := len(prices) - period; i < len(prices); i++ {
		sum += prices[i]
	}
	return sum / float64(period), nil
}

// CalculateMA20 returns the 20-period simple moving average of the last closes.
func CalculateMA20(closes []float64) (float64, error) {
	return CalculateSMA(closes, MAPeriod)
}

// smaAt is the MA20 ending at index i. The caller guarantees i >= MAPeriod-1.
func smaAt(closes []float64, i int) float64 {
	sum := 0.0
	for j := i - MAPeriod + 1; j <= i; j++ {
		sum += closes[j]
	}
	return sum / MAPeriod
}

// cycleStatus evaluates a 20-period status on a derived series, with the still-open latest period
// closing at price. Fewer than 20 periods yields StatusUndefined.
func cycleStatus(bars model.Series, price float64) model.Status {
	if len(bars) < MAPeriod {
		return model.StatusUndefined
	}
	closes := bars.Tail(MAPeriod).Closes()
	closes[len(closes)-1] = price
	ma, err := CalculateMA20(closes)
	if err != nil {
		return model.StatusUndefined
	}
	return model.StatusOf(price, ma)
}
