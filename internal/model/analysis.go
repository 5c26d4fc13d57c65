package model

import "time"

// Listing is one instrument as known to the exchange directory.
type Listing struct {
	Ticker string `json:"ticker" yaml:"ticker"`
	Name   string `json:"name" yaml:"name"`
	Market string `json:"market" yaml:"market"`
}

// Markets the directory distinguishes. Only MarketTWSE is served.
const (
	MarketTWSE = "TWSE"
	MarketTPEX = "TPEX"
)

// Snapshot is the latest indicator state of a series.
type Snapshot struct {
	Date   string  `json:"date"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
	MA5    float64 `json:"ma5"`
	MA20   float64 `json:"ma20"`
	MA60   float64 `json:"ma60"`
	DIF    float64 `json:"dif"`
	DEM    float64 `json:"dem"`
	OSC    float64 `json:"osc"`
}

// SeriesRange describes the analysed span.
type SeriesRange struct {
	Start     string `json:"start"`
	End       string `json:"end"`
	TotalDays int    `json:"total_days"`
}

// Analysis is the full pipeline output for one ticker.
type Analysis struct {
	Ticker        string        `json:"ticker"`
	DisplayName   string        `json:"display_name"`
	Range         SeriesRange   `json:"date_range"`
	Latest        Snapshot      `json:"latest_data"`
	Summary       SignalSummary `json:"signal_summary"`
	RecentSignals []SignalEvent `json:"recent_signals"`
	Current       CurrentSignal `json:"current_signal"`
	Stats         SignalStats   `json:"signal_stats"`
	Series        []SignalEvent `json:"series"`
	PlotSignals   []SignalEvent `json:"plot_signals"`
	Cache         *CacheInfo    `json:"cache_info,omitempty"`
	GeneratedAt   time.Time     `json:"generated_at"`
}

// Health is the liveness view of the service.
type Health struct {
	Status         string    `json:"status"`
	Timestamp      time.Time `json:"timestamp"`
	Version        string    `json:"version"`
	Provider       string    `json:"provider"`
	CacheCount     int       `json:"cache_count"`
	CacheDirExists bool      `json:"cache_dir_exists"`
	Uptime         string    `json:"uptime"`
}
