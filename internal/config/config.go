// Package config loads the YAML configuration with environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"BuyTracer/internal/calculator"
	"BuyTracer/internal/calendar"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server struct {
		Addr  string `yaml:"addr"`
		Debug bool   `yaml:"debug"`
	} `yaml:"server"`
	Cache struct {
		Dir        string `yaml:"dir"`
		MaxRecords int    `yaml:"max_records"`
	} `yaml:"cache"`
	DataSource struct {
		BaseURL      string        `yaml:"base_url"`
		Mock         bool          `yaml:"mock"`
		Timeout      time.Duration `yaml:"timeout"`
		MonthTimeout time.Duration `yaml:"month_timeout"`
		ListingsFile string        `yaml:"listings_file"`
	} `yaml:"data_source"`
	Market struct {
		Timezone         string `yaml:"timezone"`
		CutoffHour       int    `yaml:"cutoff_hour"`
		CutoffMinute     int    `yaml:"cutoff_minute"`
		DefaultStartDate string `yaml:"default_start_date"`
	} `yaml:"market"`
	Indicators struct {
		MAWindows    []int `yaml:"ma_windows"`
		MACDFast     int   `yaml:"macd_fast"`
		MACDSlow     int   `yaml:"macd_slow"`
		MACDSignal   int   `yaml:"macd_signal"`
		VolumeWindow int   `yaml:"volume_window"`
	} `yaml:"indicators"`
	Analysis struct {
		DefaultDays int `yaml:"default_days"`
		RecentLimit int `yaml:"recent_limit"`
	} `yaml:"analysis"`
	Schedule struct {
		Enabled     bool     `yaml:"enabled"`
		SyncCron    string   `yaml:"sync_cron"`
		EvictCron   string   `yaml:"evict_cron"`
		Watchlist   []string `yaml:"watchlist"`
		Concurrency int      `yaml:"concurrency"`
		RunOnStart  bool     `yaml:"run_on_start"`
	} `yaml:"schedule"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Log struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"log"`
	Proxy string `yaml:"proxy"`
}

// Load reads config from a YAML file, then applies environment variable
// overrides and defaults. A missing file yields an all-default config.
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

	applyEnv(cfg)
	applyDefaults(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v, ok := envBool("DEBUG"); ok {
		cfg.Server.Debug = v
	}
	if v := os.Getenv("CACHE_DIR"); v != "" {
		cfg.Cache.Dir = v
	}
	if v, ok := envInt("CACHE_MAX_RECORDS"); ok {
		cfg.Cache.MaxRecords = v
	}
	if v := os.Getenv("TWSE_BASE_URL"); v != "" {
		cfg.DataSource.BaseURL = v
	}
	if v, ok := envBool("USE_MOCK_DATA"); ok {
		cfg.DataSource.Mock = v
	}
	if v := os.Getenv("LISTINGS_FILE"); v != "" {
		cfg.DataSource.ListingsFile = v
	}
	if v := os.Getenv("MARKET_TIMEZONE"); v != "" {
		cfg.Market.Timezone = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		cfg.Proxy = v
	}
	if v := os.Getenv("CRON_SYNC"); v != "" {
		cfg.Schedule.SyncCron = v
	}
	if v := os.Getenv("WATCHLIST"); v != "" {
		cfg.Schedule.Watchlist = splitList(v)
	}
	if v, ok := envBool("RUN_ON_START"); ok {
		cfg.Schedule.RunOnStart = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		cfg.Log.File = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Cache.Dir == "" {
		cfg.Cache.Dir = "data/cache"
	}
	if cfg.Cache.MaxRecords == 0 {
		cfg.Cache.MaxRecords = 200
	}
	if cfg.DataSource.Timeout == 0 {
		cfg.DataSource.Timeout = 15 * time.Second
	}
	if cfg.DataSource.MonthTimeout == 0 {
		cfg.DataSource.MonthTimeout = 30 * time.Second
	}
	if cfg.Market.Timezone == "" {
		cfg.Market.Timezone = calendar.DefaultTimezone
	}
	if cfg.Market.CutoffHour == 0 && cfg.Market.CutoffMinute == 0 {
		cfg.Market.CutoffHour = calendar.DefaultCutoffHour
		cfg.Market.CutoffMinute = calendar.DefaultCutoffMinute
	}
	if cfg.Market.DefaultStartDate == "" {
		cfg.Market.DefaultStartDate = "2024-01-01"
	}
	def := calculator.DefaultParams()
	if len(cfg.Indicators.MAWindows) == 0 {
		cfg.Indicators.MAWindows = def.MAWindows
	}
	if cfg.Indicators.MACDFast == 0 {
		cfg.Indicators.MACDFast = def.Fast
	}
	if cfg.Indicators.MACDSlow == 0 {
		cfg.Indicators.MACDSlow = def.Slow
	}
	if cfg.Indicators.MACDSignal == 0 {
		cfg.Indicators.MACDSignal = def.Signal
	}
	if cfg.Indicators.VolumeWindow == 0 {
		cfg.Indicators.VolumeWindow = def.VolumeWindow
	}
	if cfg.Analysis.DefaultDays == 0 {
		cfg.Analysis.DefaultDays = 120
	}
	if cfg.Analysis.RecentLimit == 0 {
		cfg.Analysis.RecentLimit = 5
	}
	if cfg.Schedule.SyncCron == "" {
		cfg.Schedule.SyncCron = "0 0 14 * * 1-5"
	}
	if cfg.Schedule.EvictCron == "" {
		cfg.Schedule.EvictCron = "0 30 3 * * *"
	}
	if cfg.Schedule.Concurrency == 0 {
		cfg.Schedule.Concurrency = 4
	}
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "data/buytracer.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Cache.Dir == "" {
		return fmt.Errorf("cache.dir is required")
	}
	if c.Cache.MaxRecords < 0 {
		return fmt.Errorf("cache.max_records must not be negative")
	}
	if c.DataSource.Timeout < 0 || c.DataSource.MonthTimeout < 0 {
		return fmt.Errorf("data_source timeouts must not be negative")
	}
	if c.Market.CutoffHour < 0 || c.Market.CutoffHour > 23 || c.Market.CutoffMinute < 0 || c.Market.CutoffMinute > 59 {
		return fmt.Errorf("market cutoff %02d:%02d is not a valid time of day", c.Market.CutoffHour, c.Market.CutoffMinute)
	}
	if _, err := calendar.ParseDate(c.Market.DefaultStartDate); err != nil {
		return fmt.Errorf("market.default_start_date: %w", err)
	}
	if err := c.IndicatorParams().Validate(); err != nil {
		return fmt.Errorf("indicators: %w", err)
	}
	if c.Analysis.DefaultDays < 0 {
		return fmt.Errorf("analysis.default_days must not be negative")
	}
	if c.Schedule.Concurrency < 0 {
		return fmt.Errorf("schedule.concurrency must not be negative")
	}
	if (c.Telegram.BotToken == "") != (c.Telegram.ChatID == "") {
		return fmt.Errorf("telegram.bot_token and telegram.chat_id must be set together")
	}
	return nil
}

// IndicatorParams converts the indicators section.
func (c *Config) IndicatorParams() calculator.Params {
	return calculator.Params{
		MAWindows:    c.Indicators.MAWindows,
		Fast:         c.Indicators.MACDFast,
		Slow:         c.Indicators.MACDSlow,
		Signal:       c.Indicators.MACDSignal,
		VolumeWindow: c.Indicators.VolumeWindow,
	}
}

// TelegramEnabled reports whether bot credentials are configured.
func (c *Config) TelegramEnabled() bool {
	return c.Telegram.BotToken != "" && c.Telegram.ChatID != ""
}

func envBool(key string) (bool, bool) {
	v := os.Getenv(key)
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
