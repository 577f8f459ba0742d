package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"

	"TrendWatch/internal/archive"
	"TrendWatch/internal/backfill"
	"TrendWatch/internal/model"
	"TrendWatch/internal/ranking"
	"TrendWatch/internal/scheduler"
	"TrendWatch/internal/tracker"
)

func runCmd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	cfgPath := configFlag(fs)
	modeName := fs.String("mode", string(scheduler.Evening), "evening records today, morning records yesterday")
	force := fs.Bool("force", false, "ignore trading-day gating and the freshness check")
	mockDate := fs.String("date", "", "run as if today were YYYY-MM-DD")
	dryRun := fs.Bool("dry-run", false, "print the run plan without fetching")
	overrides := map[string]float64{}
	fs.Func("override", "CODE=PRICE replaces the latest close (repeatable)", func(v string) error {
		code, price, ok := strings.Cut(v, "=")
		if !ok || code == "" {
			return fmt.Errorf("want CODE=PRICE, got %q", v)
		}
		p, err := strconv.ParseFloat(price, 64)
		if err != nil {
			return fmt.Errorf("override %s: %w", code, err)
		}
		overrides[code] = p
		return nil
	})
	if err := fs.Parse(args); err != nil {
		return err
	}
	mode, err := scheduler.ParseMode(*modeName)
	if err != nil {
		return err
	}

	a, err := setup(*cfgPath)
	if err != nil {
		return err
	}
	defer a.Close()

	now := a.now()
	if *mockDate != "" {
		d, err := time.ParseInLocation(time.DateOnly, *mockDate, a.cfg.Location())
		if err != nil {
			return fmt.Errorf("--date: %w", err)
		}
		now = d.Add(12 * time.Hour)
	}

	if *dryRun {
		p := scheduler.MakePlan(mode, now, *force)
		fmt.Printf("mode:        %s\n", p.Mode)
		fmt.Printf("check date:  %s (%s)\n", p.CheckDate.Format(time.DateOnly), p.CheckDate.Weekday())
		fmt.Printf("record date: %s\n", p.RecordDate.Format(time.DateOnly))
		if !p.FreshAsOf.IsZero() {
			fmt.Printf("requires:    %s data on or after %s\n", a.cfg.Tracking.CalendarReference, p.FreshAsOf.Format(time.DateOnly))
		}
		if p.Skip {
			fmt.Printf("decision:    skip (%s)\n", p.Reason)
		} else {
			fmt.Println("decision:    run")
		}
		return nil
	}

	ledger, err := ranking.OpenFileLedger(a.cfg.Storage.LedgerPath, a.log)
	if err != nil {
		return err
	}
	sched := scheduler.NewScheduler(ctx, runner{app: a, ledger: ledger}, a.groups(), a.alerter(), a.cfg.Location(), a.log)
	sched.Now = func() time.Time { return now }
	sched.Overrides = overrides

	res, err := sched.Execute(ctx, mode, *force)
	if errors.Is(err, scheduler.ErrSkipped) {
		fmt.Println(err)
		return nil
	}
	if err != nil {
		return err
	}
	printResult(res.RecordDate, res.Groups)
	return nil
}

func backfillCmd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("backfill", flag.ContinueOnError)
	cfgPath := configFlag(fs)
	days := fs.Int("days", backfill.DefaultDays, "calendar days before --end to simulate")
	start := fs.String("start", "", "first date YYYY-MM-DD (overrides --days)")
	end := fs.String("end", "", "last date YYYY-MM-DD (default today)")
	format := fs.String("format", "", "archive format json or parquet (default from config)")
	noArchive := fs.Bool("no-archive", false, "do not write archive files")
	workers := fs.Int("workers", 0, "parallel simulated days (default GOMAXPROCS)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := setup(*cfgPath)
	if err != nil {
		return err
	}
	defer a.Close()
	loc := a.cfg.Location()

	endDate := a.now()
	if *end != "" {
		if endDate, err = time.ParseInLocation(time.DateOnly, *end, loc); err != nil {
			return fmt.Errorf("--end: %w", err)
		}
	}
	opts := backfill.Range(endDate, *days)
	if *start != "" {
		s, err := time.ParseInLocation(time.DateOnly, *start, loc)
		if err != nil {
			return fmt.Errorf("--start: %w", err)
		}
		opts.Start = model.Day(s)
	}
	if opts.Start.After(opts.End) {
		return fmt.Errorf("start %s is after end %s", opts.Start.Format(time.DateOnly), opts.End.Format(time.DateOnly))
	}

	var arc *archive.Archive
	if !*noArchive {
		f := a.cfg.Storage.ArchiveFormat
		if *format != "" {
			f = *format
		}
		if arc, err = archive.New(a.cfg.Storage.ArchiveDir, f); err != nil {
			return err
		}
	}

	sim := backfill.New(a.newCollector(a.cfg.Tracking.BackfillBars), a.calc, a.reference(), a.recorder, arc, a.log)
	sim.Workers = *workers
	result, err := sim.Run(ctx, a.groups(), ranking.NewMemoryLedger(), opts)
	if err != nil {
		return err
	}
	if len(result) == 0 {
		fmt.Printf("no trading days between %s and %s\n", opts.Start.Format(time.DateOnly), opts.End.Format(time.DateOnly))
		return nil
	}
	fmt.Printf("backfilled %d trading days, %s to %s\n", len(result),
		result[0].Date.Format(time.DateOnly), result[len(result)-1].Date.Format(time.DateOnly))
	if arc != nil {
		fmt.Printf("archive: %s\n", arc.Dir)
	}
	return nil
}

func serveCmd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	cfgPath := configFlag(fs)
	runOnStart := fs.Bool("run-on-start", os.Getenv("RUN_ON_START") == "true", "execute the evening run immediately")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := setup(*cfgPath)
	if err != nil {
		return err
	}
	defer a.Close()

	ledger, err := ranking.OpenFileLedger(a.cfg.Storage.LedgerPath, a.log)
	if err != nil {
		return err
	}
	sched := scheduler.NewScheduler(ctx, runner{app: a, ledger: ledger}, a.groups(), a.alerter(), a.cfg.Location(), a.log)
	if err := sched.Register(a.cfg.Schedule.MorningCron, a.cfg.Schedule.EveningCron); err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	if *runOnStart {
		a.log.Info("run-on-start enabled, executing evening run now")
		go func() {
			if _, err := sched.Execute(ctx, scheduler.Evening, false); err != nil && !errors.Is(err, scheduler.ErrSkipped) {
				a.log.Errorf("startup run: %v", err)
			}
		}()
	}

	a.log.WithFields(logrus.Fields{
		"morning": a.cfg.Schedule.MorningCron,
		"evening": a.cfg.Schedule.EveningCron,
		"tz":      a.cfg.Schedule.Timezone,
	}).Info("TrendWatch is running. Press Ctrl+C to stop.")
	<-ctx.Done()
	a.log.Info("shutdown signal received, stopping...")
	return nil
}

func printResult(date time.Time, groups []tracker.GroupResult) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()
	for _, g := range groups {
		fmt.Fprintf(w, "\n%s\t%s\n", g.Name, date.Format(time.DateOnly))
		fmt.Fprintln(w, "RANK\tCHG\tCODE\tNAME\tPRICE\tMA20\tDEV%\tSINCE\tCYCLE")
		for _, s := range g.Snapshots {
			if !s.Valid() {
				fmt.Fprintf(w, "%d\t\t%s\t%s\t%s\n", s.Rank, s.Code, s.Name, s.Error)
				continue
			}
			chg, since := "-", "-"
			if s.RankChange != nil {
				chg = fmt.Sprintf("%+d", *s.RankChange)
			}
			if s.ChangeDate != nil {
				since = s.ChangeDate.Format(time.DateOnly)
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%.2f\t%.2f\t%+.2f\t%s\t%s\n",
				s.Rank, chg, s.Code, s.Name, s.CurrentPrice, s.MA20, s.DeviationPct, since, s.BigCycle)
		}
	}
}
