package main

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"TrendWatch/internal/calculator"
	"TrendWatch/internal/collector"
	"TrendWatch/internal/config"
	"TrendWatch/internal/logging"
	"TrendWatch/internal/model"
	"TrendWatch/internal/notifier"
	"TrendWatch/internal/ranking"
	"TrendWatch/internal/recorder"
	"TrendWatch/internal/scheduler"
	"TrendWatch/internal/tracker"
)

// app holds the wired components shared by every command.
type app struct {
	cfg      *config.Config
	log      *logrus.Logger
	source   collector.Fetcher
	calc     *calculator.Calculator
	recorder recorder.Recorder
}

func setup(cfgPath string) (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	client := collector.NewClientFactory(cfg.ClientOptions()).Client()
	providers := collector.NewProviders(client, cfg.Endpoints)
	source := collector.NewSourceFetcher(providers,
		collector.WithRetryPolicy(cfg.RetryPolicy()),
		collector.WithLogger(log),
	)

	var rec recorder.Recorder = recorder.NewNoopRecorder()
	if cfg.Storage.SQLitePath != "" {
		sr, err := recorder.NewSQLiteRecorder(cfg.Storage.SQLitePath, log)
		if err != nil {
			log.Warnf("init sqlite recorder failed, using noop: %v", err)
		} else {
			rec = sr
		}
	}

	log.WithFields(logrus.Fields{
		"config":      cfgPath,
		"instruments": len(cfg.Groups.Major) + len(cfg.Groups.Sector),
	}).Info("TrendWatch starting")

	return &app{
		cfg:      cfg,
		log:      log,
		source:   source,
		calc:     calculator.NewCalculator(cfg.Tracking.Lookback),
		recorder: rec,
	}, nil
}

func (a *app) Close() {
	if err := a.recorder.Close(); err != nil {
		a.log.Errorf("close recorder: %v", err)
	}
}

// newCollector returns a collector with an empty result cache.
func (a *app) newCollector(bars int) *collector.Collector {
	return collector.NewCollector(collector.NewCachedFetcher(a.source), bars, a.log)
}

func (a *app) newTracker(ledger ranking.Ledger) *tracker.Tracker {
	tr := tracker.New(a.newCollector(a.cfg.Tracking.HistoryBars), a.calc, ledger, a.recorder, a.log)
	tr.Reference = a.cfg.Tracking.CalendarReference
	tr.Threshold = a.cfg.Tracking.FailureThreshold
	return tr
}

// runner builds a fresh tracker, and with it an empty result cache, for every run.
type runner struct {
	app    *app
	ledger ranking.Ledger
}

func (r runner) Run(ctx context.Context, groups []tracker.Group, opts tracker.RunOptions) (*tracker.Result, error) {
	return r.app.newTracker(r.ledger).Run(ctx, groups, opts)
}

func (a *app) groups() []tracker.Group {
	return []tracker.Group{
		{Name: tracker.GroupMajor, Instruments: a.cfg.Groups.Major},
		{Name: tracker.GroupSector, Instruments: a.cfg.Groups.Sector},
	}
}

// reference returns the configured calendar instrument, as listed in the groups when it is.
func (a *app) reference() model.Instrument {
	code := a.cfg.Tracking.CalendarReference
	for _, g := range a.groups() {
		for _, inst := range g.Instruments {
			if inst.Code == code {
				return inst
			}
		}
	}
	return model.Instrument{Code: code, Name: code, Source: model.SourceCNIndex}
}

// alerter returns the Telegram notifier, or nil when it is not configured.
func (a *app) alerter() scheduler.Alerter {
	if !a.cfg.TelegramEnabled() {
		return nil
	}
	client := resty.New().SetTimeout(a.cfg.HTTP.Timeout)
	if a.cfg.Proxy != "" {
		client.SetProxy(a.cfg.Proxy)
	}
	return notifier.NewTelegramNotifier(a.cfg.Telegram.BotToken, a.cfg.Telegram.ChatID, client, a.log)
}

func (a *app) now() time.Time {
	return time.Now().In(a.cfg.Location())
}
