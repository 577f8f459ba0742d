package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"TrendWatch/internal/model"
	"TrendWatch/internal/notifier"
	"TrendWatch/internal/tracker"
)

// Mode selects which day a run records.
type Mode string

const (
	// Morning records the previous day, before the session opens.
	Morning Mode = "morning"
	// Evening records the current day, after the close.
	Evening Mode = "evening"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case Morning, Evening:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown mode %q (use morning or evening)", s)
}

// ErrSkipped reports a run that was not due.
var ErrSkipped = errors.New("run skipped")

// Plan is the date arithmetic of one run.
type Plan struct {
	Mode       Mode
	CheckDate  time.Time
	RecordDate time.Time
	// FreshAsOf is the date the reference instrument must have reached; zero disables the check.
	FreshAsOf time.Time
	Skip      bool
	Reason    string
}

// MakePlan decides the record date and gating of a run started at now. Evening runs skip
// weekends; morning runs skip when yesterday was a weekend day. force runs regardless and
// disables the freshness check.
func MakePlan(mode Mode, now time.Time, force bool) Plan {
	check := model.Day(now)
	p := Plan{Mode: mode, CheckDate: check, RecordDate: check}
	switch mode {
	case Morning:
		p.RecordDate = check.AddDate(0, 0, -1)
		p.FreshAsOf = LastTradingDay(check)
		if !IsTradingDay(p.RecordDate) {
			p.Skip, p.Reason = true, fmt.Sprintf("yesterday (%s) was not a trading day", p.RecordDate.Format(time.DateOnly))
		}
	default:
		p.FreshAsOf = check
		if !IsTradingDay(check) {
			p.Skip, p.Reason = true, fmt.Sprintf("%s is a weekend", check.Format(time.DateOnly))
		}
	}
	if force {
		p.Skip, p.Reason = false, ""
		p.FreshAsOf = time.Time{}
	}
	return p
}

// IsTradingDay reports whether d is a weekday. Exchange holidays are caught by the freshness check.
func IsTradingDay(d time.Time) bool {
	wd := d.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// LastTradingDay returns the latest weekday strictly before d.
func LastTradingDay(d time.Time) time.Time {
	d = model.Day(d).AddDate(0, 0, -1)
	for !IsTradingDay(d) {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

// Runner executes one tracking run.
type Runner interface {
	Run(ctx context.Context, groups []tracker.Group, opts tracker.RunOptions) (*tracker.Result, error)
}

// Alerter delivers run summaries.
type Alerter interface {
	SendWithRetry(ctx context.Context, text string, maxRetries int) error
}

// Scheduler manages the morning and evening cron tasks.
type Scheduler struct {
	Cron      *cron.Cron
	Runner    Runner
	Groups    []tracker.Group
	Notifier  Alerter
	// Overrides replaces the latest close per code on every run.
	Overrides map[string]float64
	Now       func() time.Time
	Ctx       context.Context
	mu        sync.Mutex
	log       logrus.FieldLogger
}

// NewScheduler creates a Scheduler whose cron specs and dates are evaluated in loc. notifier may be nil.
func NewScheduler(ctx context.Context, runner Runner, groups []tracker.Group, alerter Alerter, loc *time.Location, log logrus.FieldLogger) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Scheduler{
		Cron:     cron.New(cron.WithSeconds(), cron.WithLocation(loc)),
		Runner:   runner,
		Groups:   groups,
		Notifier: alerter,
		Now:      func() time.Time { return time.Now().In(loc) },
		Ctx:      ctx,
		log:      log,
	}
}

// Register adds the morning and evening tasks.
func (s *Scheduler) Register(morningCron, eveningCron string) error {
	if _, err := s.Cron.AddFunc(morningCron, s.task(Morning)); err != nil {
		return fmt.Errorf("register morning task: %w", err)
	}
	if _, err := s.Cron.AddFunc(eveningCron, s.task(Evening)); err != nil {
		return fmt.Errorf("register evening task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.log.Info("scheduler started")
}

// Stop stops the cron scheduler and waits for a running task to finish.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) task(mode Mode) func() {
	return func() {
		if _, err := s.Execute(s.Ctx, mode, false); err != nil && !errors.Is(err, ErrSkipped) {
			s.log.WithField("mode", string(mode)).Errorf("scheduled run: %v", err)
		}
	}
}

// Execute runs mode now. A run that is not due, or whose data has not reached the expected
// date, returns ErrSkipped. Completed and aborted runs are reported through the notifier.
func (s *Scheduler) Execute(ctx context.Context, mode Mode, force bool) (*tracker.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	plan := MakePlan(mode, s.Now(), force)
	log := s.log.WithFields(logrus.Fields{
		"mode":   string(mode),
		"check":  plan.CheckDate.Format(time.DateOnly),
		"record": plan.RecordDate.Format(time.DateOnly),
		"force":  force,
	})
	if plan.Skip {
		log.Infof("skipping: %s", plan.Reason)
		return nil, fmt.Errorf("%w: %s", ErrSkipped, plan.Reason)
	}

	log.Info("running")
	res, err := s.Runner.Run(ctx, s.Groups, tracker.RunOptions{
		Mode:       string(mode),
		RecordDate: plan.RecordDate,
		FreshAsOf:  plan.FreshAsOf,
		Overrides:  s.Overrides,
	})
	switch {
	case errors.Is(err, tracker.ErrStaleData):
		log.Infof("skipping update: %v", err)
		return nil, fmt.Errorf("%w: %v", ErrSkipped, err)
	case err != nil:
		if ctx.Err() == nil {
			s.trySend(ctx, notifier.FormatRunFailure(string(mode), plan.RecordDate, err))
		}
		return nil, err
	}
	log.WithFields(logrus.Fields{"total": res.Total, "failed": res.Failed}).Info("run complete")
	s.trySend(ctx, notifier.FormatRunSummary(string(mode), res))
	return res, nil
}

func (s *Scheduler) trySend(ctx context.Context, text string) {
	if s.Notifier == nil {
		return
	}
	if err := s.Notifier.SendWithRetry(ctx, text, 3); err != nil {
		s.log.Errorf("send notification: %v", err)
	}
}
