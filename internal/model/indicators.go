package model

import "time"

// Status is the two-valued trend state of a price against its MA20.
type Status string

const (
	StatusAbove Status = "ABOVE"
	StatusBelow Status = "BELOW"
	// StatusUndefined marks a timeframe with fewer than 20 periods.
	StatusUndefined Status = "-"
)

// StatusOf returns ABOVE when price >= ma, else BELOW.
func StatusOf(price, ma float64) Status {
	if price >= ma {
		return StatusAbove
	}
	return StatusBelow
}

// BigCycle pairs the weekly and monthly MA20 statuses.
type BigCycle struct {
	Weekly  Status
	Monthly Status
}

func (b BigCycle) String() string {
	w, m := b.Weekly, b.Monthly
	if w == "" {
		w = StatusUndefined
	}
	if m == "" {
		m = StatusUndefined
	}
	return string(w) + "-" + string(m)
}

// Snapshot holds the trend metrics of one instrument as of one date.
type Snapshot struct {
	Code   string
	Name   string
	Source Source
	AsOf   time.Time

	CurrentPrice float64
	PrevClose    float64
	MA20         float64
	Status       Status
	ChangePct    float64
	DeviationPct float64

	// ChangeDate is the first day the current status has held continuously since; nil when unknown.
	ChangeDate *time.Time
	// ChangeMA20 is the MA20 as of ChangeDate, the base of IntervalChangePct.
	ChangeMA20        *float64
	IntervalChangePct *float64
	BigCycle          BigCycle

	Rank       int
	RankChange *int

	Error string
}

// Valid reports whether the snapshot carries computed metrics.
func (s Snapshot) Valid() bool { return s.Error == "" }
