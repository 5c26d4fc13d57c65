package service

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"BuyTracer/internal/cache"
	"BuyTracer/internal/calendar"
	"BuyTracer/internal/collector"
	"BuyTracer/internal/model"
	"BuyTracer/internal/recorder"
)

type sinkFunc func(string, []model.SignalEvent) error

func (f sinkFunc) RecordSignals(t string, e []model.SignalEvent) error { return f(t, e) }

type readerFunc func(string, int) ([]recorder.SignalRecord, error)

func (f readerFunc) SignalHistory(t string, n int) ([]recorder.SignalRecord, error) { return f(t, n) }

type observerFunc func(string, time.Duration, error)

func (f observerFunc) ObserveAnalysis(t string, d time.Duration, err error) { f(t, d, err) }

func waveBars(from, to time.Time) []model.Bar {
	var bars []model.Bar
	for i, d := range calendar.TradingDaysBetween(from, to) {
		c := math.Round((100+12*math.Sin(float64(i)/9))*100) / 100
		vol := int64(1000 + 600*math.Sin(float64(i)/2))
		bars = append(bars, model.Bar{Date: d, Open: c, High: c + 1, Low: c - 1, Close: c, Volume: vol})
	}
	return bars
}

type env struct {
	now      time.Time
	provider *collector.MockProvider
	store    *cache.Store
	svc      *Service
}

func newEnv(t *testing.T, dir *collector.Directory, opts Options) *env {
	t.Helper()
	e := &env{now: time.Date(2024, time.March, 11, 9, 0, 0, 0, calendar.Location), provider: collector.NewMockProvider()}
	store, err := cache.NewStore(t.TempDir(), cache.WithClock(func() time.Time { return e.now }))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	e.store = store
	c := collector.NewCollector(e.provider, store, collector.WithDirectory(dir))
	svc, err := New(c, dir, opts)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	e.svc = svc
	return e
}

func TestNormalizeTicker(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"2330", "2330", false},
		{" 00983a ", "00983A", false},
		{"123456", "123456", false},
		{"123", "", true},
		{"1234567", "", true},
		{"AAPL", "", true},
		{"2330AB", "", true},
	}
	for _, tt := range tests {
		got, err := NormalizeTicker(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("%q: err = %v", tt.in, err)
			continue
		}
		if tt.wantErr && !errors.Is(err, model.ErrInvalidTicker) {
			t.Errorf("%q: expected ErrInvalidTicker, got %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("%q: got %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestAnalyzeRejectsUnservedTickers(t *testing.T) {
	dir, err := collector.NewDirectory([]model.Listing{
		{Ticker: "2330", Name: "TSMC", Market: model.MarketTWSE},
		{Ticker: "6488", Name: "GlobalWafers", Market: model.MarketTPEX},
	})
	if err != nil {
		t.Fatalf("directory: %v", err)
	}
	e := newEnv(t, dir, Options{})
	ctx := context.Background()

	tests := []struct {
		ticker string
		want   error
	}{
		{"23a0", model.ErrInvalidTicker},
		{"6488", model.ErrUnsupportedMarket},
		{"9999", model.ErrTickerNotFound},
	}
	for _, tt := range tests {
		if _, err := e.svc.Analyze(ctx, tt.ticker, time.Time{}, 0); !errors.Is(err, tt.want) {
			t.Errorf("%s: expected %v, got %v", tt.ticker, tt.want, err)
		}
	}
	if calls := e.provider.Calls(); len(calls) != 0 {
		t.Errorf("rejected tickers must not reach the provider, got %v", calls)
	}
}

func TestAnalyze(t *testing.T) {
	var recorded []model.SignalEvent
	var observed []error
	opts := Options{
		DefaultDays: 30,
		Sink: sinkFunc(func(_ string, ev []model.SignalEvent) error {
			recorded = ev
			return nil
		}),
		Observer: observerFunc(func(_ string, _ time.Duration, err error) { observed = append(observed, err) }),
	}
	e := newEnv(t, nil, opts)
	start := calendar.Date(2023, time.June, 1)
	e.provider.SetBars("2330", waveBars(start, calendar.Date(2024, time.March, 8)))

	a, err := e.svc.Analyze(context.Background(), "2330", start, 0)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}

	bars := len(calendar.TradingDaysBetween(start, calendar.Date(2024, time.March, 8)))
	if a.Range.TotalDays != bars-59 {
		t.Errorf("expected %d indicator rows, got %d", bars-59, a.Range.TotalDays)
	}
	if a.Range.End != "2024-03-08" || a.Latest.Date != "2024-03-08" {
		t.Errorf("unexpected latest %s / %s", a.Range.End, a.Latest.Date)
	}
	if len(a.Series) != 30 {
		t.Errorf("expected 30 plotted rows, got %d", len(a.Series))
	}
	first := a.Series[0].Date
	for _, ev := range a.PlotSignals {
		if ev.Signals.Empty() || ev.Date.Before(first) {
			t.Errorf("plot signal %s outside window or empty", calendar.FormatDate(ev.Date))
		}
	}
	if len(a.RecentSignals) > 5 {
		t.Errorf("expected at most 5 recent signals, got %d", len(a.RecentSignals))
	}
	if len(recorded) != a.Summary.TotalCount {
		t.Errorf("sink got %d events, summary counts %d", len(recorded), a.Summary.TotalCount)
	}
	if a.Summary.TotalCount == 0 {
		t.Error("a nine-day sine wave should produce signals")
	}
	if a.Cache == nil || a.Cache.Ticker != "2330" {
		t.Errorf("missing cache info %+v", a.Cache)
	}
	if len(observed) != 1 || observed[0] != nil {
		t.Errorf("observer calls %v", observed)
	}
}

func TestAnalyzeInsufficientHistory(t *testing.T) {
	e := newEnv(t, nil, Options{})
	start := calendar.Date(2023, time.November, 1)
	e.provider.SetBars("2330", waveBars(start, calendar.Date(2024, time.March, 8)))

	_, err := e.svc.Analyze(context.Background(), "2330", start, 0)
	if !errors.Is(err, model.ErrInsufficientHistory) {
		t.Fatalf("expected ErrInsufficientHistory, got %v", err)
	}
	if !e.store.Exists("2330") {
		t.Error("bars should stay cached for a retry with an earlier start")
	}
}

func TestCacheStatusAndClear(t *testing.T) {
	e := newEnv(t, nil, Options{})
	st, err := e.svc.CacheStatus("2330")
	if err != nil || st.Exists || st.DateRange != nil {
		t.Fatalf("unexpected status for absent record %+v %v", st, err)
	}

	if err := e.store.Create("2330", "TSMC", waveBars(calendar.Date(2024, time.February, 1), calendar.Date(2024, time.March, 6))); err != nil {
		t.Fatalf("create: %v", err)
	}
	st, err = e.svc.CacheStatus("2330")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !st.Exists || st.UpToDate {
		t.Errorf("record ending 03-06 is stale on 03-11: %+v", st)
	}
	if len(st.MissingDates) != 2 || st.MissingDates[0] != "2024-03-07" || st.MissingDates[1] != "2024-03-08" {
		t.Errorf("unexpected missing dates %v", st.MissingDates)
	}
	if st.DateRange.EndDate != "2024-03-06" {
		t.Errorf("unexpected range %+v", st.DateRange)
	}

	if err := e.svc.ClearCache("2330"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if err := e.svc.ClearCache("2330"); !errors.Is(err, model.ErrCacheNotFound) {
		t.Errorf("expected ErrCacheNotFound, got %v", err)
	}
	if _, err := e.svc.CacheStatus("bad"); !errors.Is(err, model.ErrInvalidTicker) {
		t.Errorf("expected ErrInvalidTicker, got %v", err)
	}
}

func TestHistoryOrdering(t *testing.T) {
	e := newEnv(t, nil, Options{})
	bars := waveBars(calendar.Date(2024, time.March, 1), calendar.Date(2024, time.March, 8))
	for i, tk := range []string{"2454", "1101", "2330"} {
		e.now = time.Date(2024, time.March, 11, 9, i, 0, 0, calendar.Location)
		if err := e.store.Create(tk, tk, bars); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	tests := []struct {
		sortBy, order string
		want          []string
	}{
		{"", "", []string{"2330", "1101", "2454"}},
		{"last_update", "asc", []string{"2454", "1101", "2330"}},
		{"ticker", "asc", []string{"1101", "2330", "2454"}},
		{"ticker", "desc", []string{"2454", "2330", "1101"}},
	}
	for _, tt := range tests {
		got, err := e.svc.History(tt.sortBy, tt.order)
		if err != nil {
			t.Fatalf("history: %v", err)
		}
		for i := range tt.want {
			if got[i].Ticker != tt.want[i] {
				t.Errorf("%s/%s: position %d = %s, want %s", tt.sortBy, tt.order, i, got[i].Ticker, tt.want[i])
			}
		}
	}
	if _, err := e.svc.History("volume", ""); !errors.Is(err, model.ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestListingsEvictAndHealth(t *testing.T) {
	e := newEnv(t, nil, Options{MaxRecords: 1, Version: "test"})
	bars := waveBars(calendar.Date(2024, time.March, 1), calendar.Date(2024, time.March, 8))
	for i, tk := range []string{"2330", "2454"} {
		e.now = time.Date(2024, time.March, 11, 9, i, 0, 0, calendar.Location)
		if err := e.store.Create(tk, "name-"+tk, bars); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	ls := e.svc.Listings()
	if len(ls) != 2 || ls[0].Name != "name-2330" {
		t.Errorf("unexpected listings %+v", ls)
	}

	h := e.svc.Health()
	if h.Status != "healthy" || h.CacheCount != 2 || !h.CacheDirExists || h.Provider != "mock" || h.Version != "test" {
		t.Errorf("unexpected health %+v", h)
	}

	if got := e.svc.Evict(); len(got) != 1 || got[0] != "2330" {
		t.Errorf("expected 2330 evicted, got %v", got)
	}
}

func TestNewRejectsParamsWithoutRuleWindows(t *testing.T) {
	store, err := cache.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	c := collector.NewCollector(collector.NewMockProvider(), store)
	opts := Options{}
	opts.Params.MAWindows = []int{5, 10}
	opts.Params.Fast, opts.Params.Slow, opts.Params.Signal, opts.Params.VolumeWindow = 12, 26, 9, 5
	if _, err := New(c, nil, opts); err == nil {
		t.Error("expected error when ma60 is not configured")
	}
}

func TestSignalHistory(t *testing.T) {
	var gotTicker string
	var gotLimit int
	reader := readerFunc(func(ticker string, limit int) ([]recorder.SignalRecord, error) {
		gotTicker, gotLimit = ticker, limit
		if ticker == "2454" {
			return nil, errors.New("disk gone")
		}
		return []recorder.SignalRecord{{Ticker: ticker, Date: "2024-03-08"}}, nil
	})
	e := newEnv(t, nil, Options{Signals: reader})

	tests := []struct {
		limit, want int
	}{
		{0, DefaultSignalLimit},
		{7, 7},
		{1000, MaxSignalLimit},
	}
	for _, tt := range tests {
		recs, err := e.svc.SignalHistory(" 2330 ", tt.limit)
		if err != nil {
			t.Fatalf("limit %d: %v", tt.limit, err)
		}
		if len(recs) != 1 || gotTicker != "2330" || gotLimit != tt.want {
			t.Errorf("limit %d: reader saw %s/%d, want 2330/%d", tt.limit, gotTicker, gotLimit, tt.want)
		}
	}

	if _, err := e.svc.SignalHistory("TSMC", 5); !errors.Is(err, model.ErrInvalidTicker) {
		t.Errorf("expected ErrInvalidTicker, got %v", err)
	}
	if _, err := e.svc.SignalHistory("2454", 5); err == nil {
		t.Error("reader error swallowed")
	}

	bare := newEnv(t, nil, Options{})
	recs, err := bare.svc.SignalHistory("2330", 5)
	if err != nil || recs == nil || len(recs) != 0 {
		t.Errorf("without reader: %v %v", recs, err)
	}
}
