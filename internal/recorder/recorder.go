// Package recorder keeps an audit trail of cache syncs and flagged signals.
package recorder

import (
	"time"

	"BuyTracer/internal/model"
)

// SyncRun is one persisted sync report.
type SyncRun struct {
	RunID        string
	Ticker       string
	Mode         model.SyncMode
	Months       int
	FailedMonths int
	BarsFetched  int
	BarsWritten  int
	StartedAt    time.Time
	Duration     time.Duration
	Error        string
}

// SignalRecord is one persisted signal-bearing day.
type SignalRecord struct {
	Ticker   string          `json:"ticker"`
	Date     string          `json:"date"`
	Signals  model.SignalSet `json:"signals"`
	Close    float64         `json:"close"`
	Volume   int64           `json:"volume"`
	DIF      float64         `json:"dif"`
	DEM      float64         `json:"dem"`
	OSC      float64         `json:"osc"`
	Recorded time.Time       `json:"recorded_at"`
}

// Recorder persists sync runs and signal events for later inspection.
type Recorder interface {
	ObserveSync(report model.SyncReport)
	RecordSignals(ticker string, events []model.SignalEvent) error
	RecentSyncs(limit int) ([]SyncRun, error)
	SignalHistory(ticker string, limit int) ([]SignalRecord, error)
	Close() error
}
