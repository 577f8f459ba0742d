// Package backfill rebuilds historical daily snapshots and rankings from one long fetch per
// instrument. Every simulated date sees only the bars on or before it.
package backfill

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"TrendWatch/internal/archive"
	"TrendWatch/internal/calculator"
	"TrendWatch/internal/collector"
	"TrendWatch/internal/model"
	"TrendWatch/internal/ranking"
	"TrendWatch/internal/recorder"
	"TrendWatch/internal/resample"
	"TrendWatch/internal/tracker"
)

// DefaultDays is the range length used when no start date is given.
const DefaultDays = 30

// ErrNoCalendar means the reference instrument could not provide trading dates.
var ErrNoCalendar = errors.New("no trading calendar")

// Options bounds the simulated range. Both ends are inclusive calendar days.
type Options struct {
	Start time.Time
	End   time.Time
}

// Range returns the options from days calendar days before end through end.
func Range(end time.Time, days int) Options {
	if days <= 0 {
		days = DefaultDays
	}
	end = model.Day(end)
	return Options{Start: end.AddDate(0, 0, -days), End: end}
}

// Day is one simulated trading day.
type Day struct {
	Date   time.Time
	Groups []tracker.GroupResult
}

// Simulator replays the calculator and ranking over past trading days.
type Simulator struct {
	Collector  *collector.Collector
	Calculator *calculator.Calculator
	// Reference supplies the trading calendar.
	Reference model.Instrument
	Recorder  recorder.Recorder
	Archive   *archive.Archive
	// Workers bounds the per-date fan-out; non-positive means GOMAXPROCS.
	Workers int
	log     logrus.FieldLogger
}

// New builds a Simulator. A nil recorder records nothing; a nil archive writes no files.
func New(col *collector.Collector, calc *calculator.Calculator, ref model.Instrument, rec recorder.Recorder, arc *archive.Archive, log logrus.FieldLogger) *Simulator {
	if rec == nil {
		rec = recorder.NewNoopRecorder()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Simulator{Collector: col, Calculator: calc, Reference: ref, Recorder: rec, Archive: arc, log: log}
}

// loaded is one instrument's preloaded history, or the reason it has none.
type loaded struct {
	inst   model.Instrument
	series *model.PriceSeries
	reason string
}

type loadedGroup struct {
	name  string
	items []loaded
}

// Run simulates every reference trading day in opts, oldest first. ledger carries rank changes
// from day to day and ends up holding the last simulated day; nil disables rank changes.
// Failed instruments appear as error snapshots on every day. The systemic failure rule of live
// runs is not applied.
func (s *Simulator) Run(ctx context.Context, groups []tracker.Group, ledger ranking.Ledger, opts Options) ([]Day, error) {
	runID := uuid.NewString()
	log := s.log.WithFields(logrus.Fields{
		"run":   runID,
		"start": opts.Start.Format(time.DateOnly),
		"end":   opts.End.Format(time.DateOnly),
	})

	preloaded, err := s.preload(ctx, groups, log)
	if err != nil {
		return nil, err
	}
	dates, err := s.calendar(ctx, preloaded, opts)
	if err != nil {
		return nil, err
	}
	log.Infof("simulating %d trading days", len(dates))
	if len(dates) == 0 {
		return nil, nil
	}

	days := make([]Day, len(dates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers())
	for i, date := range dates {
		i, date := i, date
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			days[i] = s.simulate(date, preloaded)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i := range days {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := s.commit(runID, &days[i], ledger); err != nil {
			return nil, err
		}
		log.WithField("date", days[i].Date.Format(time.DateOnly)).Debug("day committed")
	}
	total, failed := 0, 0
	for _, g := range preloaded {
		for _, l := range g.items {
			total++
			if l.series == nil {
				failed++
			}
		}
	}
	if err := s.Recorder.RecordRun(&recorder.RunEvent{
		RunID: runID, Mode: "backfill", RecordDate: days[len(days)-1].Date,
		Total: total, Failed: failed, Status: "OK",
		Note: fmt.Sprintf("%d days from %s", len(days), days[0].Date.Format(time.DateOnly)),
	}); err != nil {
		log.Errorf("record run: %v", err)
	}
	log.WithFields(logrus.Fields{"days": len(days), "failed": failed}).Info("backfill complete")
	return days, nil
}

// preload fetches every instrument once, keeping group and input order.
func (s *Simulator) preload(ctx context.Context, groups []tracker.Group, log logrus.FieldLogger) ([]loadedGroup, error) {
	out := make([]loadedGroup, len(groups))
	for gi, g := range groups {
		out[gi] = loadedGroup{name: g.Name, items: make([]loaded, 0, len(g.Instruments))}
		for _, inst := range g.Instruments {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			ps, err := s.Collector.Collect(ctx, inst)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return nil, ctxErr
				}
				log.WithFields(logrus.Fields{"code": inst.Code, "group": g.Name}).Warnf("preload failed: %v", err)
				out[gi].items = append(out[gi].items, loaded{inst: inst, reason: tracker.FailureReason(err)})
				continue
			}
			out[gi].items = append(out[gi].items, loaded{inst: inst, series: ps})
		}
		log.WithField("group", g.Name).Infof("preloaded %d instruments", len(g.Instruments))
	}
	return out, nil
}

// calendar returns the reference instrument's bar dates inside opts.
func (s *Simulator) calendar(ctx context.Context, preloaded []loadedGroup, opts Options) ([]time.Time, error) {
	var ref model.Series
	found := false
	for _, g := range preloaded {
		for _, l := range g.items {
			if l.inst.Code == s.Reference.Code && l.series != nil {
				ref, found = l.series.Daily, true
			}
		}
	}
	if !found {
		ps, err := s.Collector.Collect(ctx, s.Reference)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrNoCalendar, s.Reference.Code, err)
		}
		ref = ps.Daily
	}

	start, end := model.Day(opts.Start), model.Day(opts.End)
	var dates []time.Time
	for _, b := range ref {
		if b.Date.Before(start) || b.Date.After(end) {
			continue
		}
		dates = append(dates, b.Date)
	}
	return dates, nil
}

// simulate computes and ranks one date from the preloaded series. It performs no I/O and only
// reads shared state.
func (s *Simulator) simulate(date time.Time, preloaded []loadedGroup) Day {
	day := Day{Date: date, Groups: make([]tracker.GroupResult, 0, len(preloaded))}
	for _, g := range preloaded {
		snaps := make([]model.Snapshot, 0, len(g.items))
		for _, l := range g.items {
			snap := model.Snapshot{Error: l.reason}
			if l.series != nil {
				view := l.series.Daily.Truncate(date)
				snap = s.Calculator.Compute(calculator.Input{
					Daily:   view,
					Weekly:  resample.Rewind(l.series.Weekly, view, resample.Weekly),
					Monthly: resample.Rewind(l.series.Monthly, view, resample.Monthly),
				})
			}
			snap.Code, snap.Name, snap.Source = l.inst.Code, l.inst.Name, l.inst.Source
			snaps = append(snaps, snap)
		}
		day.Groups = append(day.Groups, tracker.GroupResult{Name: g.name, Snapshots: ranking.Rank(snaps)})
	}
	return day
}

// commit threads the ledger through one day and writes its records.
func (s *Simulator) commit(runID string, day *Day, ledger ranking.Ledger) error {
	ranks := make(map[string]map[string]int, len(day.Groups))
	for i := range day.Groups {
		g := &day.Groups[i]
		ranking.ApplyRankChange(g.Snapshots, g.Name, day.Date, ledger)
		ranks[g.Name] = ranking.Ranks(g.Snapshots)
	}
	if ledger != nil {
		if err := ledger.UpdateToday(day.Date, ranks); err != nil {
			return fmt.Errorf("update rank ledger for %s: %w", day.Date.Format(time.DateOnly), err)
		}
	}

	for _, g := range day.Groups {
		batch := &recorder.SnapshotBatch{RunID: runID, Group: g.Name, AsOf: day.Date, Snapshots: g.Snapshots}
		if err := s.Recorder.RecordSnapshots(batch); err != nil {
			return fmt.Errorf("record %s %s: %w", g.Name, day.Date.Format(time.DateOnly), err)
		}
	}
	if s.Archive != nil {
		groups := make([]archive.Group, len(day.Groups))
		for i, g := range day.Groups {
			groups[i] = archive.Group{Name: g.Name, Snapshots: g.Snapshots}
		}
		if _, err := s.Archive.Write(day.Date, groups); err != nil {
			return err
		}
	}
	return nil
}

func (s *Simulator) workers() int {
	if s.Workers > 0 {
		return s.Workers
	}
	return runtime.GOMAXPROCS(0)
}
