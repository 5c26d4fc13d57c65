// Package service runs the analysis pipeline: sync the bar cache, derive
// indicators, flag signals and shape the result for presentation.
package service

import (
	"context"
	"fmt"
	"math"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"BuyTracer/internal/cache"
	"BuyTracer/internal/calculator"
	"BuyTracer/internal/calendar"
	"BuyTracer/internal/collector"
	"BuyTracer/internal/model"
	"BuyTracer/internal/recorder"
	"BuyTracer/internal/strategy"

	log "github.com/sirupsen/logrus"
)

var tickerPattern = regexp.MustCompile(`^\d{4,6}[A-Z]?$`)

// Defaults applied when Options leaves a field zero.
const (
	DefaultDays      = 120
	DefaultStartDate = "2024-01-01"

	DefaultSignalLimit = 20
	MaxSignalLimit     = 200
)

// SignalSink persists signal-bearing rows of an analysis.
type SignalSink interface {
	RecordSignals(ticker string, events []model.SignalEvent) error
}

// SignalReader reads recorded signal days back.
type SignalReader interface {
	SignalHistory(ticker string, limit int) ([]recorder.SignalRecord, error)
}

// AnalysisObserver is told about every completed analysis.
type AnalysisObserver interface {
	ObserveAnalysis(ticker string, elapsed time.Duration, err error)
}

// Options configures a Service.
type Options struct {
	Params       calculator.Params
	DefaultStart time.Time
	DefaultDays  int
	RecentLimit  int
	MaxRecords   int
	Version      string
	Sink         SignalSink
	Signals      SignalReader
	Observer     AnalysisObserver
}

// Service is the presentation-facing entry point.
type Service struct {
	collector *collector.Collector
	store     *cache.Store
	directory *collector.Directory
	opts      Options
	startedAt time.Time
}

// New creates a Service. A nil directory accepts every well-formed ticker.
func New(c *collector.Collector, dir *collector.Directory, opts Options) (*Service, error) {
	if len(opts.Params.MAWindows) == 0 {
		opts.Params = calculator.DefaultParams()
	}
	if err := opts.Params.Validate(); err != nil {
		return nil, fmt.Errorf("indicator params: %w", err)
	}
	for _, w := range strategy.RequiredWindows {
		if !containsInt(opts.Params.MAWindows, w) {
			return nil, fmt.Errorf("indicator params: MA window %d is required by the signal rules", w)
		}
	}
	if opts.DefaultStart.IsZero() {
		opts.DefaultStart, _ = calendar.ParseDate(DefaultStartDate)
	}
	if opts.DefaultDays <= 0 {
		opts.DefaultDays = DefaultDays
	}
	if opts.RecentLimit <= 0 {
		opts.RecentLimit = strategy.DefaultLatestLimit
	}
	if dir == nil {
		dir = &collector.Directory{}
	}
	return &Service{
		collector: c,
		store:     c.Store(),
		directory: dir,
		opts:      opts,
		startedAt: time.Now(),
	}, nil
}

func containsInt(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

// NormalizeTicker trims and upper-cases ticker and checks its format:
// four to six digits optionally followed by one letter (ETFs).
func NormalizeTicker(ticker string) (string, error) {
	t := strings.ToUpper(strings.TrimSpace(ticker))
	if !tickerPattern.MatchString(t) {
		return "", model.ErrInvalidTicker.WithDetail(fmt.Sprintf("%q does not match 4-6 digits with an optional letter", ticker))
	}
	return t, nil
}

// resolve validates ticker and checks it against the directory.
func (s *Service) resolve(ticker string) (model.Listing, error) {
	t, err := NormalizeTicker(ticker)
	if err != nil {
		return model.Listing{}, err
	}
	l, ok := s.directory.Lookup(t)
	if !ok {
		return model.Listing{}, &model.Error{
			Code:    model.CodeTickerNotFound,
			Message: fmt.Sprintf("ticker %s is not listed on TWSE or TPEX", t),
		}
	}
	if l.Market == model.MarketTPEX {
		return model.Listing{}, &model.Error{
			Code:    model.CodeUnsupportedMarket,
			Message: fmt.Sprintf("%s %s is a TPEX (OTC) listing; only TWSE listings are supported", t, l.Name),
		}
	}
	return l, nil
}

// Analyze syncs ticker from start, computes indicators and signals and
// returns the last days rows for display. Zero start and days use the
// configured defaults.
func (s *Service) Analyze(ctx context.Context, ticker string, start time.Time, days int) (a *model.Analysis, err error) {
	began := time.Now()
	defer func() {
		if s.opts.Observer != nil {
			s.opts.Observer.ObserveAnalysis(ticker, time.Since(began), err)
		}
	}()

	listing, err := s.resolve(ticker)
	if err != nil {
		return nil, err
	}
	ticker = listing.Ticker
	if start.IsZero() {
		start = s.opts.DefaultStart
	}
	if days <= 0 {
		days = s.opts.DefaultDays
	}

	bars, err := s.collector.EnsureFresh(ctx, ticker, start)
	if err != nil {
		return nil, err
	}
	rows := calculator.CalculateAll(bars, s.opts.Params)
	if need := s.opts.Params.Lookback(); len(rows) < need {
		return nil, model.ErrInsufficientHistory.WithDetail(
			fmt.Sprintf("%d indicator rows from %d bars, need at least %d", len(rows), len(bars), need))
	}
	events := strategy.Generate(rows)

	series := events
	if len(series) > days {
		series = series[len(series)-days:]
	}
	plotSignals := strategy.Filter(series, strategy.KindAll)

	if s.opts.Sink != nil {
		if err := s.opts.Sink.RecordSignals(ticker, strategy.Filter(events, strategy.KindAll)); err != nil {
			log.WithField("ticker", ticker).Warnf("record signals: %v", err)
		}
	}

	info, err := s.store.Info(ticker)
	if err != nil {
		log.WithField("ticker", ticker).Warnf("cache info: %v", err)
	}
	name := listing.Name
	if info != nil && info.DisplayName != "" {
		name = info.DisplayName
	}

	a = &model.Analysis{
		Ticker:      ticker,
		DisplayName: name,
		Range: model.SeriesRange{
			Start:     calendar.FormatDate(events[0].Date),
			End:       calendar.FormatDate(events[len(events)-1].Date),
			TotalDays: len(events),
		},
		Latest:        snapshot(events[len(events)-1].IndicatorRow),
		Summary:       strategy.Summarize(events),
		RecentSignals: strategy.Latest(events, s.opts.RecentLimit, strategy.KindAll),
		Current:       strategy.Current(events),
		Stats:         strategy.Statistics(events),
		Series:        series,
		PlotSignals:   plotSignals,
		Cache:         info,
		GeneratedAt:   time.Now(),
	}
	log.WithFields(log.Fields{
		"ticker":  ticker,
		"rows":    len(events),
		"signals": a.Summary.TotalCount,
	}).Info("analysis complete")
	return a, nil
}

func snapshot(r model.IndicatorRow) model.Snapshot {
	ma5, _ := r.MAValue(strategy.ShortWindow)
	ma20, _ := r.MAValue(strategy.MidWindow)
	ma60, _ := r.MAValue(strategy.LongWindow)
	return model.Snapshot{
		Date:   calendar.FormatDate(r.Date),
		Close:  round2(r.Close),
		Volume: r.Volume,
		MA5:    round2(ma5),
		MA20:   round2(ma20),
		MA60:   round2(ma60),
		DIF:    round2(r.DIF),
		DEM:    round2(r.DEM),
		OSC:    round2(r.OSC),
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// CacheStatus reports whether ticker is cached and how stale it is.
func (s *Service) CacheStatus(ticker string) (*model.CacheStatus, error) {
	t, err := NormalizeTicker(ticker)
	if err != nil {
		return nil, err
	}
	st := &model.CacheStatus{Ticker: t, MissingDates: []string{}}
	info, err := s.store.Info(t)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return st, nil
	}
	st.Exists = true
	st.UpToDate = s.store.IsUpToDate(t)
	for _, d := range s.store.MissingTradingDays(t, time.Time{}) {
		st.MissingDates = append(st.MissingDates, calendar.FormatDate(d))
	}
	dr := info.DateRange
	st.DateRange = &dr
	st.Info = info
	return st, nil
}

// History lists cached tickers. sortBy is "ticker" or "last_update"
// (default); order is "asc" or "desc" (default).
func (s *Service) History(sortBy, order string) ([]model.CacheInfo, error) {
	if sortBy == "" {
		sortBy = "last_update"
	}
	if order == "" {
		order = "desc"
	}
	if sortBy != "ticker" && sortBy != "last_update" {
		return nil, model.ErrInvalidRequest.WithDetail("sort_by must be ticker or last_update")
	}
	if order != "asc" && order != "desc" {
		return nil, model.ErrInvalidRequest.WithDetail("order must be asc or desc")
	}

	infos := []model.CacheInfo{}
	for _, t := range s.store.ListAll() {
		info, err := s.store.Info(t)
		if err != nil {
			log.WithField("ticker", t).Warnf("cache info: %v", err)
			continue
		}
		if info != nil {
			infos = append(infos, *info)
		}
	}
	less := func(i, j int) bool { return infos[i].LastSyncedAt.Before(infos[j].LastSyncedAt) }
	if sortBy == "ticker" {
		less = func(i, j int) bool { return infos[i].Ticker < infos[j].Ticker }
	}
	if order == "desc" {
		asc := less
		less = func(i, j int) bool { return asc(j, i) }
	}
	sort.SliceStable(infos, less)
	return infos, nil
}

// ClearCache deletes the record for ticker.
func (s *Service) ClearCache(ticker string) error {
	t, err := NormalizeTicker(ticker)
	if err != nil {
		return err
	}
	if !s.collector.Delete(t) {
		return fmt.Errorf("clear %s: %w", t, model.ErrCacheNotFound)
	}
	log.WithField("ticker", t).Info("cache cleared")
	return nil
}

// ForceUpdate fetches every session missing from ticker's record.
func (s *Service) ForceUpdate(ctx context.Context, ticker string) (*model.UpdateResult, error) {
	t, err := NormalizeTicker(ticker)
	if err != nil {
		return nil, err
	}
	return s.collector.ForceUpdate(ctx, t)
}

// Listings returns the TWSE directory. Without a listings file it falls
// back to the cached tickers.
func (s *Service) Listings() []model.Listing {
	if s.directory.Configured() {
		return s.directory.Listings(model.MarketTWSE)
	}
	out := []model.Listing{}
	for _, t := range s.store.ListAll() {
		name := t
		if info, err := s.store.Info(t); err == nil && info != nil && info.DisplayName != "" {
			name = info.DisplayName
		}
		out = append(out, model.Listing{Ticker: t, Name: name, Market: model.MarketTWSE})
	}
	return out
}

// Evict trims the cache to the configured capacity.
func (s *Service) Evict() []string {
	if s.opts.MaxRecords <= 0 {
		return nil
	}
	return s.collector.Evict(s.opts.MaxRecords)
}

// Health reports liveness and cache statistics.
func (s *Service) Health() model.Health {
	_, err := os.Stat(s.store.Dir())
	return model.Health{
		Status:         "healthy",
		Timestamp:      time.Now(),
		Version:        s.opts.Version,
		Provider:       s.collector.ProviderName(),
		CacheCount:     len(s.store.ListAll()),
		CacheDirExists: err == nil,
		Uptime:         time.Since(s.startedAt).Round(time.Second).String(),
	}
}

// SignalHistory returns the recorded signal days of ticker, newest first.
// Without a configured reader the history is empty.
func (s *Service) SignalHistory(ticker string, limit int) ([]recorder.SignalRecord, error) {
	t, err := NormalizeTicker(ticker)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultSignalLimit
	}
	if limit > MaxSignalLimit {
		limit = MaxSignalLimit
	}
	if s.opts.Signals == nil {
		return []recorder.SignalRecord{}, nil
	}
	recs, err := s.opts.Signals.SignalHistory(t, limit)
	if err != nil {
		return nil, fmt.Errorf("signal history %s: %w", t, err)
	}
	if recs == nil {
		recs = []recorder.SignalRecord{}
	}
	return recs, nil
}
