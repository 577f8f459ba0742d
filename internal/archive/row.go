package archive

import (
	"time"

	"TrendWatch/internal/model"
)

// Row is one archived snapshot, flattened for JSON and Parquet.
type Row struct {
	Date              string   `json:"date" parquet:"date"`
	Group             string   `json:"group" parquet:"group"`
	Code              string   `json:"code" parquet:"code"`
	Name              string   `json:"name" parquet:"name"`
	Source            string   `json:"source" parquet:"source"`
	CurrentPrice      float64  `json:"current_price" parquet:"current_price"`
	PrevClose         float64  `json:"prev_close" parquet:"prev_close"`
	MA20              float64  `json:"ma20" parquet:"ma20"`
	Status            string   `json:"status" parquet:"status"`
	ChangePct         float64  `json:"change_pct" parquet:"change_pct"`
	DeviationPct      float64  `json:"deviation_pct" parquet:"deviation_pct"`
	ChangeDate        string   `json:"change_date,omitempty" parquet:"change_date,optional"`
	IntervalChangePct *float64 `json:"interval_change_pct,omitempty" parquet:"interval_change_pct,optional"`
	BigCycle          string   `json:"big_cycle" parquet:"big_cycle"`
	Rank              int64    `json:"rank" parquet:"rank"`
	RankChange        *int64   `json:"rank_change,omitempty" parquet:"rank_change,optional"`
	Error             string   `json:"error,omitempty" parquet:"error,optional"`
}

// Group is one ranked group of a day.
type Group struct {
	Name      string
	Snapshots []model.Snapshot
}

// Rows flattens a day's groups in group then rank order.
func Rows(date time.Time, groups []Group) []Row {
	var rows []Row
	day := date.Format(time.DateOnly)
	for _, g := range groups {
		for _, s := range g.Snapshots {
			r := Row{
				Date:         day,
				Group:        g.Name,
				Code:         s.Code,
				Name:         s.Name,
				Source:       s.Source.String(),
				CurrentPrice: s.CurrentPrice,
				PrevClose:    s.PrevClose,
				MA20:         s.MA20,
				Status:       string(s.Status),
				ChangePct:    s.ChangePct,
				DeviationPct: s.DeviationPct,
				Rank:         int64(s.Rank),
				Error:        s.Error,
			}
			if s.Valid() {
				r.BigCycle = s.BigCycle.String()
			}
			if s.ChangeDate != nil {
				r.ChangeDate = s.ChangeDate.Format(time.DateOnly)
			}
			if s.IntervalChangePct != nil {
				v := *s.IntervalChangePct
				r.IntervalChangePct = &v
			}
			if s.RankChange != nil {
				v := int64(*s.RankChange)
				r.RankChange = &v
			}
			rows = append(rows, r)
		}
	}
	return rows
}
