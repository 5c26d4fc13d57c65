package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":8080" || cfg.Cache.Dir != "data/cache" {
		t.Errorf("server/cache defaults = %q %q", cfg.Server.Addr, cfg.Cache.Dir)
	}
	if cfg.Market.Timezone != "Asia/Taipei" || cfg.Market.CutoffHour != 13 || cfg.Market.CutoffMinute != 30 {
		t.Errorf("market defaults = %+v", cfg.Market)
	}
	if !reflect.DeepEqual(cfg.Indicators.MAWindows, []int{5, 20, 60}) || cfg.Indicators.MACDSlow != 26 {
		t.Errorf("indicator defaults = %+v", cfg.Indicators)
	}
	if cfg.DataSource.Timeout != 15*time.Second {
		t.Errorf("timeout = %v", cfg.DataSource.Timeout)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
	if cfg.TelegramEnabled() {
		t.Error("telegram enabled without credentials")
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9090"
data_source:
  mock: true
  timeout: 5s
market:
  cutoff_hour: 14
  cutoff_minute: 0
indicators:
  ma_windows: [5, 10, 20, 60]
schedule:
  watchlist: ["2330"]
telegram:
  bot_token: file-token
  chat_id: "1"
`)
	t.Setenv("TELEGRAM_BOT_TOKEN", "env-token")
	t.Setenv("WATCHLIST", "2330, 2317,,0050")
	t.Setenv("CACHE_MAX_RECORDS", "10")
	t.Setenv("USE_MOCK_DATA", "not-a-bool")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":9090" || !cfg.DataSource.Mock || cfg.DataSource.Timeout != 5*time.Second {
		t.Errorf("file values not applied: %+v %+v", cfg.Server, cfg.DataSource)
	}
	if cfg.Market.CutoffHour != 14 || cfg.Market.CutoffMinute != 0 {
		t.Errorf("cutoff = %02d:%02d", cfg.Market.CutoffHour, cfg.Market.CutoffMinute)
	}
	if cfg.Telegram.BotToken != "env-token" || !cfg.TelegramEnabled() {
		t.Errorf("env override not applied: %q", cfg.Telegram.BotToken)
	}
	if !reflect.DeepEqual(cfg.Schedule.Watchlist, []string{"2330", "2317", "0050"}) {
		t.Errorf("watchlist = %v", cfg.Schedule.Watchlist)
	}
	if cfg.Cache.MaxRecords != 10 {
		t.Errorf("max records = %d", cfg.Cache.MaxRecords)
	}
	p := cfg.IndicatorParams()
	if len(p.MAWindows) != 4 || p.Fast != 12 {
		t.Errorf("params = %+v", p)
	}
}

func TestLoadParseError(t *testing.T) {
	if _, err := Load(writeConfig(t, "server: [")); err == nil || !strings.Contains(err.Error(), "parse config") {
		t.Fatalf("err = %v, want parse error", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad cutoff", func(c *Config) { c.Market.CutoffHour = 25 }, "cutoff"},
		{"bad start", func(c *Config) { c.Market.DefaultStartDate = "2024/01/01" }, "default_start_date"},
		{"bad window", func(c *Config) { c.Indicators.MAWindows = []int{0} }, "indicators"},
		{"half telegram", func(c *Config) { c.Telegram.BotToken = "x" }, "telegram"},
		{"negative records", func(c *Config) { c.Cache.MaxRecords = -1 }, "max_records"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
			if err != nil {
				t.Fatal(err)
			}
			tt.mutate(cfg)
			err = cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.want)
			}
		})
	}
}
