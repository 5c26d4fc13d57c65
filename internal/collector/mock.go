package collector

import (
	"context"
	"hash/fnv"
	"math"
	"sync"
	"time"

	"BuyTracer/internal/calendar"
	"BuyTracer/internal/model"
)

// MockProvider serves bars from memory. Bars are bucketed by the month of
// their date. Failures injects an error for specific months. When Generate
// is set it supplies bars for tickers that have none loaded.
type MockProvider struct {
	Failures map[calendar.YearMonth]error
	Generate func(ticker string, ym calendar.YearMonth) []model.Bar

	mu    sync.Mutex
	bars  map[string][]model.Bar
	calls []calendar.YearMonth
}

// NewMockProvider creates an empty mock.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		Failures: make(map[calendar.YearMonth]error),
		bars:     make(map[string][]model.Bar),
	}
}

// NewSyntheticProvider returns a mock that invents a deterministic series
// for any ticker. Used for development without network access.
func NewSyntheticProvider() *MockProvider {
	m := NewMockProvider()
	m.Generate = SyntheticBars
	return m
}

func (m *MockProvider) Name() string { return "mock" }

// SetBars replaces the bars served for ticker.
func (m *MockProvider) SetBars(ticker string, bars []model.Bar) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bars[ticker] = append([]model.Bar(nil), bars...)
}

// Calls returns every month requested so far, in order.
func (m *MockProvider) Calls() []calendar.YearMonth {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]calendar.YearMonth(nil), m.calls...)
}

// ResetCalls clears the call log.
func (m *MockProvider) ResetCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

func (m *MockProvider) FetchMonth(ctx context.Context, ticker string, year int, month time.Month) ([]model.Bar, error) {
	ym := calendar.YearMonth{Year: year, Month: month}

	m.mu.Lock()
	m.calls = append(m.calls, ym)
	failure := m.Failures[ym]
	all, ok := m.bars[ticker]
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if failure != nil {
		return nil, failure
	}
	if !ok && m.Generate != nil {
		return m.Generate(ticker, ym), nil
	}

	var out []model.Bar
	for _, b := range all {
		d := b.Date.In(calendar.Location)
		if d.Year() == year && d.Month() == month {
			out = append(out, b)
		}
	}
	return out, nil
}

// SyntheticBars produces a smooth pseudo-random walk for every trading day
// of ym. The same ticker and month always yield the same bars.
func SyntheticBars(ticker string, ym calendar.YearMonth) []model.Bar {
	h := fnv.New32a()
	h.Write([]byte(ticker))
	seed := float64(h.Sum32()%400) + 50

	first := ym.First()
	last := first.AddDate(0, 1, -1)
	var bars []model.Bar
	for _, d := range calendar.TradingDaysBetween(first, last) {
		day := float64(d.Unix()/86400) + seed
		p := seed * (1 + 0.15*math.Sin(day/23) + 0.05*math.Sin(day/5))
		p = math.Round(p*100) / 100
		vol := int64(1_000_000 + 400_000*math.Sin(day/3))
		bars = append(bars, model.Bar{
			Date:     d,
			Open:     math.Round(p*0.995*100) / 100,
			High:     math.Round(p*1.01*100) / 100,
			Low:      math.Round(p*0.99*100) / 100,
			Close:    p,
			Volume:   vol,
			Turnover: int64(float64(vol) * p),
		})
	}
	return bars
}
