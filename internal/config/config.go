package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"TrendWatch/internal/archive"
	"TrendWatch/internal/collector"
	"TrendWatch/internal/model"
)

// Config holds all application configuration.
type Config struct {
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	Proxy string `yaml:"proxy"`
	HTTP  struct {
		Timeout    time.Duration `yaml:"timeout"`
		UserAgents []string      `yaml:"user_agents"`
	} `yaml:"http"`
	Retry struct {
		// MaxRetries is nil when absent; an explicit 0 disables retries.
		MaxRetries *int          `yaml:"max_retries"`
		BaseDelay  time.Duration `yaml:"base_delay"`
	} `yaml:"retry"`
	Endpoints collector.Endpoints `yaml:"endpoints"`
	Tracking  struct {
		HistoryBars       int     `yaml:"history_bars"`
		BackfillBars      int     `yaml:"backfill_bars"`
		Lookback          int     `yaml:"lookback_days"`
		FailureThreshold  float64 `yaml:"failure_threshold"`
		CalendarReference string  `yaml:"calendar_reference"`
	} `yaml:"tracking"`
	Groups struct {
		Major  []model.Instrument `yaml:"major_indices"`
		Sector []model.Instrument `yaml:"sector_indices"`
	} `yaml:"groups"`
	Storage struct {
		LedgerPath    string `yaml:"ledger_path"`
		SQLitePath    string `yaml:"sqlite_path"`
		ArchiveDir    string `yaml:"archive_dir"`
		ArchiveFormat string `yaml:"archive_format"`
	} `yaml:"storage"`
	Schedule struct {
		MorningCron string `yaml:"morning_cron"`
		EveningCron string `yaml:"evening_cron"`
		Timezone    string `yaml:"timezone"`
	} `yaml:"schedule"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// env lists the variables that override the file.
type env struct {
	TelegramBotToken string `envconfig:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID   string `envconfig:"TELEGRAM_CHAT_ID"`
	Proxy            string `envconfig:"HTTPS_PROXY"`
	SQLitePath       string `envconfig:"SQLITE_PATH"`
	LedgerPath       string `envconfig:"LEDGER_PATH"`
	ArchiveDir       string `envconfig:"ARCHIVE_DIR"`
	LogLevel         string `envconfig:"LOG_LEVEL"`
	Lookback         int    `envconfig:"LOOKBACK_DAYS"`
}

// Load reads config from a YAML file, then applies environment variable overrides and defaults.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	_ = godotenv.Load()
	var e env
	if err := envconfig.Process("", &e); err != nil {
		return nil, fmt.Errorf("env overrides: %w", err)
	}
	cfg.applyEnv(e)
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv(e env) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&c.Telegram.BotToken, e.TelegramBotToken)
	set(&c.Telegram.ChatID, e.TelegramChatID)
	set(&c.Proxy, e.Proxy)
	set(&c.Storage.SQLitePath, e.SQLitePath)
	set(&c.Storage.LedgerPath, e.LedgerPath)
	set(&c.Storage.ArchiveDir, e.ArchiveDir)
	set(&c.Log.Level, e.LogLevel)
	if e.Lookback > 0 {
		c.Tracking.Lookback = e.Lookback
	}
}

func (c *Config) applyDefaults() {
	if c.HTTP.Timeout == 0 {
		c.HTTP.Timeout = 30 * time.Second
	}
	if c.Retry.MaxRetries == nil {
		n := collector.DefaultRetryPolicy.MaxRetries
		c.Retry.MaxRetries = &n
	}
	if c.Retry.BaseDelay == 0 {
		c.Retry.BaseDelay = collector.DefaultRetryPolicy.BaseDelay
	}
	if c.Tracking.HistoryBars == 0 {
		c.Tracking.HistoryBars = 800
	}
	if c.Tracking.BackfillBars == 0 {
		c.Tracking.BackfillBars = 1500
	}
	if c.Tracking.Lookback == 0 {
		c.Tracking.Lookback = 250
	}
	if c.Tracking.FailureThreshold == 0 {
		c.Tracking.FailureThreshold = 1.0 / 3.0
	}
	if c.Tracking.CalendarReference == "" {
		c.Tracking.CalendarReference = "000300"
	}
	if c.Storage.LedgerPath == "" {
		c.Storage.LedgerPath = "data/ranking_history.json"
	}
	if c.Storage.ArchiveDir == "" {
		c.Storage.ArchiveDir = "data/archive"
	}
	if c.Storage.ArchiveFormat == "" {
		c.Storage.ArchiveFormat = "json"
	}
	if c.Schedule.MorningCron == "" {
		c.Schedule.MorningCron = "0 30 8 * * *"
	}
	if c.Schedule.EveningCron == "" {
		c.Schedule.EveningCron = "0 30 15 * * *"
	}
	if c.Schedule.Timezone == "" {
		c.Schedule.Timezone = "Asia/Shanghai"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate checks that the configuration can drive a run. Telegram is optional.
func (c *Config) Validate() error {
	var errs []error
	if len(c.Groups.Major)+len(c.Groups.Sector) == 0 {
		errs = append(errs, errors.New("groups: no instruments configured"))
	}
	seen := map[string]string{}
	for group, list := range map[string][]model.Instrument{
		"major_indices":  c.Groups.Major,
		"sector_indices": c.Groups.Sector,
	} {
		for i, inst := range list {
			if strings.TrimSpace(inst.Code) == "" {
				errs = append(errs, fmt.Errorf("groups.%s[%d]: code is required", group, i))
			}
			if inst.Source == model.SourceUnknown {
				errs = append(errs, fmt.Errorf("groups.%s[%d] %s: source is required", group, i, inst.Code))
			}
			if other, dup := seen[group+"/"+inst.Code]; dup {
				errs = append(errs, fmt.Errorf("groups.%s: duplicate code %s (%s)", group, inst.Code, other))
			}
			seen[group+"/"+inst.Code] = inst.Name
		}
	}
	if c.Tracking.HistoryBars < 21 {
		errs = append(errs, fmt.Errorf("tracking.history_bars must be at least 21, got %d", c.Tracking.HistoryBars))
	}
	if c.Tracking.BackfillBars < c.Tracking.HistoryBars {
		errs = append(errs, fmt.Errorf("tracking.backfill_bars (%d) must not be below history_bars (%d)", c.Tracking.BackfillBars, c.Tracking.HistoryBars))
	}
	if c.Tracking.FailureThreshold <= 0 || c.Tracking.FailureThreshold >= 1 {
		errs = append(errs, fmt.Errorf("tracking.failure_threshold must be in (0, 1), got %v", c.Tracking.FailureThreshold))
	}
	if (c.Retry.MaxRetries != nil && *c.Retry.MaxRetries < 0) || c.Retry.BaseDelay < 0 {
		errs = append(errs, errors.New("retry: max_retries and base_delay must not be negative"))
	}
	if archive.NewSaver(c.Storage.ArchiveFormat) == nil {
		errs = append(errs, fmt.Errorf("storage.archive_format %q: use json or parquet", c.Storage.ArchiveFormat))
	}
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	for name, spec := range map[string]string{"morning_cron": c.Schedule.MorningCron, "evening_cron": c.Schedule.EveningCron} {
		if _, err := parser.Parse(spec); err != nil {
			errs = append(errs, fmt.Errorf("schedule.%s: %w", name, err))
		}
	}
	if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("schedule.timezone: %w", err))
	}
	if (c.Telegram.BotToken == "") != (c.Telegram.ChatID == "") {
		errs = append(errs, errors.New("telegram: bot_token and chat_id must be set together"))
	}
	if err := collector.ValidateCatalogue(collector.Catalogue()); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// TelegramEnabled reports whether run alerts should be sent.
func (c *Config) TelegramEnabled() bool {
	return c.Telegram.BotToken != "" && c.Telegram.ChatID != ""
}

// Location returns the schedule time zone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Schedule.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// RetryPolicy is the fetch retry policy.
func (c *Config) RetryPolicy() collector.RetryPolicy {
	p := collector.RetryPolicy{MaxRetries: collector.DefaultRetryPolicy.MaxRetries, BaseDelay: c.Retry.BaseDelay}
	if c.Retry.MaxRetries != nil {
		p.MaxRetries = *c.Retry.MaxRetries
	}
	return p
}

// ClientOptions is the HTTP client configuration.
func (c *Config) ClientOptions() collector.ClientOptions {
	return collector.ClientOptions{Timeout: c.HTTP.Timeout, ProxyURL: c.Proxy, UserAgents: c.HTTP.UserAgents}
}
