package recorder

import (
	"time"

	"TrendWatch/internal/model"
)

// SnapshotBatch is one group's ranked snapshots for one as-of date.
type SnapshotBatch struct {
	RunID     string
	Group     string
	AsOf      time.Time
	Snapshots []model.Snapshot
}

// RunEvent summarizes one tracker run or backfilled day.
type RunEvent struct {
	RunID      string
	Mode       string // "evening", "morning", "manual", "backfill"
	RecordDate time.Time
	Total      int
	Failed     int
	Status     string // "OK", "ABORTED"
	Note       string
}

// Recorder persists historical data for analysis.
type Recorder interface {
	RecordSnapshots(batch *SnapshotBatch) error
	RecordRun(evt *RunEvent) error
	Close() error
}
