package model

import (
	"encoding/json"
	"fmt"
	"time"

	"BuyTracer/internal/calendar"
)

// Bar is one trading day of one instrument.
type Bar struct {
	Date     time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   int64 // traded shares
	Turnover int64 // traded value, 0 when the source does not report it
}

type barJSON struct {
	Date     string  `json:"date"`
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
	Volume   int64   `json:"volume"`
	Turnover int64   `json:"turnover"`
}

func (b Bar) MarshalJSON() ([]byte, error) {
	return json.Marshal(barJSON{
		Date:     calendar.FormatDate(b.Date),
		Open:     b.Open,
		High:     b.High,
		Low:      b.Low,
		Close:    b.Close,
		Volume:   b.Volume,
		Turnover: b.Turnover,
	})
}

func (b *Bar) UnmarshalJSON(data []byte) error {
	var raw barJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	d, err := calendar.ParseDate(raw.Date)
	if err != nil {
		return err
	}
	*b = Bar{
		Date:     d,
		Open:     raw.Open,
		High:     raw.High,
		Low:      raw.Low,
		Close:    raw.Close,
		Volume:   raw.Volume,
		Turnover: raw.Turnover,
	}
	return nil
}

// Validate checks the fields every persisted bar must carry.
func (b Bar) Validate() error {
	switch {
	case b.Date.IsZero():
		return fmt.Errorf("%w: missing date", ErrInvalidBar)
	case b.Close <= 0:
		return fmt.Errorf("%w: %s close %.2f", ErrInvalidBar, calendar.FormatDate(b.Date), b.Close)
	case b.Volume < 0 || b.Turnover < 0:
		return fmt.Errorf("%w: %s negative volume or turnover", ErrInvalidBar, calendar.FormatDate(b.Date))
	}
	return nil
}

// CacheMetadata describes who a cache record belongs to and when it was touched.
type CacheMetadata struct {
	Ticker       string    `json:"ticker"`
	DisplayName  string    `json:"display_name"`
	CreatedAt    time.Time `json:"created_at"`
	LastSyncedAt time.Time `json:"last_synced_at"`
}

// DateRange is derived from the bar sequence on every write.
type DateRange struct {
	StartDate        string `json:"start_date"`
	EndDate          string `json:"end_date"`
	TotalTradingDays int    `json:"total_trading_days"`
}

// CacheRecord is the persisted per-ticker bar history.
type CacheRecord struct {
	Metadata  CacheMetadata `json:"metadata"`
	DateRange DateRange     `json:"date_range"`
	Data      []Bar         `json:"data"`
}

// StartDate returns the first cached date, zero when empty.
func (r *CacheRecord) StartDate() time.Time {
	if len(r.Data) == 0 {
		return time.Time{}
	}
	return r.Data[0].Date
}

// EndDate returns the last cached date, zero when empty.
func (r *CacheRecord) EndDate() time.Time {
	if len(r.Data) == 0 {
		return time.Time{}
	}
	return r.Data[len(r.Data)-1].Date
}

// BarCount returns the number of cached bars.
func (r *CacheRecord) BarCount() int { return len(r.Data) }

// RefreshRange recomputes DateRange from Data.
func (r *CacheRecord) RefreshRange() {
	r.DateRange = DateRange{
		StartDate:        calendar.FormatDate(r.StartDate()),
		EndDate:          calendar.FormatDate(r.EndDate()),
		TotalTradingDays: len(r.Data),
	}
}

// BarsFrom returns a copy of the bars dated on or after start.
func (r *CacheRecord) BarsFrom(start time.Time) []Bar {
	out := make([]Bar, 0, len(r.Data))
	for _, b := range r.Data {
		if !b.Date.Before(start) {
			out = append(out, b)
		}
	}
	return out
}

// CacheInfo summarises one cache record for listing and eviction.
type CacheInfo struct {
	Ticker       string    `json:"ticker"`
	DisplayName  string    `json:"display_name"`
	FilePath     string    `json:"file_path"`
	SizeBytes    int64     `json:"size_bytes"`
	DateRange    DateRange `json:"date_range"`
	RecordCount  int       `json:"record_count"`
	LastSyncedAt time.Time `json:"last_synced_at"`
}

// CacheStatus is the freshness view of one ticker's cache.
type CacheStatus struct {
	Ticker       string     `json:"ticker"`
	Exists       bool       `json:"exists"`
	UpToDate     bool       `json:"up_to_date"`
	MissingDates []string   `json:"missing_dates"`
	DateRange    *DateRange `json:"date_range,omitempty"`
	Info         *CacheInfo `json:"info,omitempty"`
}

// UpdateResult reports the outcome of a forced gap sync.
type UpdateResult struct {
	Ticker          string `json:"ticker"`
	PreviousEndDate string `json:"previous_end_date"`
	NewEndDate      string `json:"new_end_date"`
	NewRecords      int    `json:"new_records_count"`
	Message         string `json:"message"`
}

// SyncMode names the path a sync took.
type SyncMode string

const (
	SyncBackfill SyncMode = "BACKFILL"
	SyncGap      SyncMode = "GAP"
	SyncForced   SyncMode = "FORCED"
	SyncNone     SyncMode = "UP_TO_DATE"
)

// SyncReport describes one sync of one ticker.
type SyncReport struct {
	RunID           string
	Ticker          string
	Mode            SyncMode
	MonthsRequested int
	FailedMonths    []string
	BarsFetched     int
	BarsRejected    int
	BarsWritten     int
	StartedAt       time.Time
	Duration        time.Duration
	Err             error
}

// PartialFailure reports whether some but not all months failed.
func (r *SyncReport) PartialFailure() bool {
	return len(r.FailedMonths) > 0 && len(r.FailedMonths) < r.MonthsRequested
}
