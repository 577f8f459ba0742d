package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"TrendWatch/internal/calculator"
	"TrendWatch/internal/collector"
	"TrendWatch/internal/model"
	"TrendWatch/internal/ranking"
	"TrendWatch/internal/recorder"
)

// Group names used in the ledger and the recorder.
const (
	GroupMajor  = "major_indices"
	GroupSector = "sector_indices"
)

// DefaultFailureThreshold is the failed share of all instruments above which a run aborts.
const DefaultFailureThreshold = 1.0 / 3.0

// Error reasons for instruments without a series.
const (
	ReasonUnavailable = "data unavailable"
	ReasonFetchFailed = "fetch failed"
)

var (
	// ErrSystemicFailure aborts a run whose failure rate exceeds the threshold, or where every
	// instrument failed. Nothing is recorded.
	ErrSystemicFailure = errors.New("systemic failure")
	// ErrStaleData means the reference instrument has no bar for the expected date, typically a
	// market holiday.
	ErrStaleData = errors.New("stale data")
)

// Group is a named, independently ranked instrument list.
type Group struct {
	Name        string
	Instruments []model.Instrument
}

// GroupResult is a ranked group.
type GroupResult struct {
	Name      string
	Snapshots []model.Snapshot
}

// Result is the outcome of one run.
type Result struct {
	RunID      string
	RecordDate time.Time
	Groups     []GroupResult
	Total      int
	Failed     int
}

// FailedCodes lists the instruments that ended with an error snapshot.
func (r *Result) FailedCodes() []string {
	var out []string
	for _, g := range r.Groups {
		for _, s := range g.Snapshots {
			if !s.Valid() {
				out = append(out, s.Code)
			}
		}
	}
	return out
}

// RunOptions parameterizes one run.
type RunOptions struct {
	Mode       string
	RecordDate time.Time
	// Overrides replaces the latest close per code, for mid-session evaluation.
	Overrides map[string]float64
	// FreshAsOf, when set, requires the reference instrument's last bar to be on or after it.
	FreshAsOf time.Time
}

// Tracker runs the fetch, compute, rank and record pipeline over instrument groups.
type Tracker struct {
	Collector  *collector.Collector
	Calculator *calculator.Calculator
	Ledger     ranking.Ledger
	Recorder   recorder.Recorder
	// Reference is the instrument code whose last bar date is checked for freshness.
	Reference string
	Threshold float64
	log       logrus.FieldLogger
}

// New builds a Tracker. A nil recorder records nothing.
func New(col *collector.Collector, calc *calculator.Calculator, ledger ranking.Ledger, rec recorder.Recorder, log logrus.FieldLogger) *Tracker {
	if rec == nil {
		rec = recorder.NewNoopRecorder()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Tracker{
		Collector:  col,
		Calculator: calc,
		Ledger:     ledger,
		Recorder:   rec,
		Threshold:  DefaultFailureThreshold,
		log:        log,
	}
}

// Run processes every group sequentially. On success the ledger holds the run's ranks and the
// recorder its snapshots. A systemic failure or stale reference returns an error and writes nothing.
func (t *Tracker) Run(ctx context.Context, groups []Group, opts RunOptions) (*Result, error) {
	res := &Result{RunID: uuid.NewString(), RecordDate: model.Day(opts.RecordDate)}
	log := t.log.WithFields(logrus.Fields{"run": res.RunID, "date": res.RecordDate.Format(time.DateOnly)})

	var refLast time.Time
	for _, g := range groups {
		log.WithField("group", g.Name).Infof("processing %d instruments", len(g.Instruments))
		snaps := make([]model.Snapshot, 0, len(g.Instruments))
		for _, inst := range g.Instruments {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			snap, last := t.process(ctx, inst, opts.Overrides, log)
			if inst.Code == t.Reference && !last.IsZero() {
				refLast = last
			}
			snaps = append(snaps, snap)
			res.Total++
			if !snap.Valid() {
				res.Failed++
			}
		}
		res.Groups = append(res.Groups, GroupResult{Name: g.Name, Snapshots: ranking.Rank(snaps)})
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !opts.FreshAsOf.IsZero() && t.Reference != "" && !refLast.IsZero() && refLast.Before(model.Day(opts.FreshAsOf)) {
		return nil, fmt.Errorf("%w: %s last bar %s before %s", ErrStaleData, t.Reference,
			refLast.Format(time.DateOnly), opts.FreshAsOf.Format(time.DateOnly))
	}

	if err := t.checkFailureRate(res); err != nil {
		log.WithFields(logrus.Fields{"failed": res.Failed, "total": res.Total}).Error("aborting run")
		_ = t.Recorder.RecordRun(&recorder.RunEvent{
			RunID: res.RunID, Mode: opts.Mode, RecordDate: res.RecordDate,
			Total: res.Total, Failed: res.Failed, Status: "ABORTED", Note: err.Error(),
		})
		return nil, err
	}
	log.WithFields(logrus.Fields{"failed": res.Failed, "total": res.Total}).Info("fetch complete")

	ranks := make(map[string]map[string]int, len(res.Groups))
	for i := range res.Groups {
		g := &res.Groups[i]
		ranking.ApplyRankChange(g.Snapshots, g.Name, res.RecordDate, t.Ledger)
		ranks[g.Name] = ranking.Ranks(g.Snapshots)
	}
	if t.Ledger != nil {
		if err := t.Ledger.UpdateToday(res.RecordDate, ranks); err != nil {
			return nil, fmt.Errorf("update rank ledger: %w", err)
		}
	}

	for _, g := range res.Groups {
		batch := &recorder.SnapshotBatch{RunID: res.RunID, Group: g.Name, AsOf: res.RecordDate, Snapshots: g.Snapshots}
		if err := t.Recorder.RecordSnapshots(batch); err != nil {
			log.WithField("group", g.Name).Errorf("record snapshots: %v", err)
		}
	}
	if err := t.Recorder.RecordRun(&recorder.RunEvent{
		RunID: res.RunID, Mode: opts.Mode, RecordDate: res.RecordDate,
		Total: res.Total, Failed: res.Failed, Status: "OK",
	}); err != nil {
		log.Errorf("record run: %v", err)
	}
	return res, nil
}

// process fetches and computes one instrument. Failures become error snapshots; the returned time
// is the last daily bar date when a series was obtained.
func (t *Tracker) process(ctx context.Context, inst model.Instrument, overrides map[string]float64, log logrus.FieldLogger) (model.Snapshot, time.Time) {
	base := model.Snapshot{Code: inst.Code, Name: inst.Name, Source: inst.Source}
	ilog := log.WithFields(logrus.Fields{"code": inst.Code, "source": inst.Source.String()})

	ps, err := t.Collector.Collect(ctx, inst)
	if err != nil {
		base.Error = FailureReason(err)
		if errors.Is(err, collector.ErrUnavailable) {
			ilog.Warnf("no data: %v", err)
		} else {
			ilog.Errorf("fetch aborted: %v", err)
		}
		return base, time.Time{}
	}

	in := calculator.Input{Daily: ps.Daily, Weekly: ps.Weekly, Monthly: ps.Monthly}
	if v, ok := overrides[inst.Code]; ok {
		in.Override = &v
	}
	snap := t.Calculator.Compute(in)
	snap.Code, snap.Name, snap.Source = inst.Code, inst.Name, inst.Source
	if snap.Valid() {
		ilog.WithFields(logrus.Fields{
			"status":    snap.Status,
			"deviation": fmt.Sprintf("%.2f%%", snap.DeviationPct),
			"cycle":     snap.BigCycle.String(),
		}).Debug("computed")
	} else {
		ilog.Warnf("not computed: %s", snap.Error)
	}
	return snap, ps.Daily.LastDate()
}

// FailureReason is the snapshot error text for a failed fetch.
func FailureReason(err error) string {
	if errors.Is(err, collector.ErrUnavailable) {
		return ReasonUnavailable
	}
	return fmt.Sprintf("%s: %v", ReasonFetchFailed, err)
}

func (t *Tracker) checkFailureRate(res *Result) error {
	return CheckFailureRate(res.Failed, res.Total, t.Threshold)
}

// CheckFailureRate returns ErrSystemicFailure when failed/total exceeds threshold or every
// instrument failed. An empty run is not a failure.
func CheckFailureRate(failed, total int, threshold float64) error {
	if total == 0 {
		return nil
	}
	if failed == total {
		return fmt.Errorf("%w: all %d instruments failed", ErrSystemicFailure, total)
	}
	if threshold <= 0 {
		threshold = DefaultFailureThreshold
	}
	if rate := float64(failed) / float64(total); rate > threshold {
		return fmt.Errorf("%w: %d/%d failed (%.2f%% > %.2f%%)", ErrSystemicFailure, failed, total, rate*100, threshold*100)
	}
	return nil
}
