// Package collector keeps the bar cache in sync with a remote Provider.
package collector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"BuyTracer/internal/cache"
	"BuyTracer/internal/calendar"
	"BuyTracer/internal/model"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// DefaultMonthTimeout bounds a single month request.
const DefaultMonthTimeout = 20 * time.Second

// Collector is the only writer of the bar cache. Syncs for the same ticker
// are serialized; distinct tickers proceed in parallel.
type Collector struct {
	provider     Provider
	store        *cache.Store
	directory    *Directory
	observers    []SyncObserver
	monthTimeout time.Duration
	cutoffHour   int
	cutoffMinute int

	locks keyedMutex
}

// Option customises a Collector.
type Option func(*Collector)

// WithObserver registers a sync observer.
func WithObserver(o SyncObserver) Option {
	return func(c *Collector) { c.observers = append(c.observers, o) }
}

// WithMonthTimeout sets the per-month request deadline.
func WithMonthTimeout(d time.Duration) Option {
	return func(c *Collector) { c.monthTimeout = d }
}

// WithCutoff sets the local time after which today's bar is published.
func WithCutoff(hour, minute int) Option {
	return func(c *Collector) { c.cutoffHour, c.cutoffMinute = hour, minute }
}

// WithDirectory supplies display names for new cache records.
func WithDirectory(d *Directory) Option {
	return func(c *Collector) { c.directory = d }
}

// NewCollector creates a Collector.
func NewCollector(provider Provider, store *cache.Store, opts ...Option) *Collector {
	c := &Collector{
		provider:     provider,
		store:        store,
		monthTimeout: DefaultMonthTimeout,
		cutoffHour:   calendar.DefaultCutoffHour,
		cutoffMinute: calendar.DefaultCutoffMinute,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Store returns the underlying bar cache.
func (c *Collector) Store() *cache.Store { return c.store }

// ProviderName names the remote source.
func (c *Collector) ProviderName() string { return c.provider.Name() }

// EnsureFresh brings the cache for ticker up to date and returns every
// cached bar dated on or after start, ascending.
//
// Without a cache record the whole range from start to the latest published
// session is backfilled month by month. With a stale record only the
// missing trading days are fetched and merged. Failed months are logged and
// skipped; the sync fails only when no month yielded data for a new record.
func (c *Collector) EnsureFresh(ctx context.Context, ticker string, start time.Time) ([]model.Bar, error) {
	unlock := c.locks.lock(ticker)
	defer unlock()

	start = calendar.Truncate(start)
	rec, err := c.store.Load(ticker)
	if err != nil {
		return nil, err
	}

	switch {
	case rec == nil:
		if err := c.backfill(ctx, ticker, start); err != nil {
			return nil, err
		}
	case !c.store.IsUpToDate(ticker):
		if _, err := c.syncGap(ctx, ticker, model.SyncGap, time.Time{}); err != nil {
			return nil, err
		}
	default:
		log.WithField("ticker", ticker).Debug("cache is up to date")
	}

	rec, err = c.store.Load(ticker)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("reload %s: %w", ticker, model.ErrCacheNotFound)
	}
	return rec.BarsFrom(start), nil
}

// ForceUpdate fetches every trading day after the cached end date up to the
// latest published session, whether or not the record counts as current.
func (c *Collector) ForceUpdate(ctx context.Context, ticker string) (*model.UpdateResult, error) {
	unlock := c.locks.lock(ticker)
	defer unlock()

	rec, err := c.store.Load(ticker)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("force update %s: %w", ticker, model.ErrCacheNotFound)
	}
	prevEnd := rec.DateRange.EndDate
	prevCount := rec.BarCount()

	latest := calendar.LatestAvailableDate(c.store.Now(), c.cutoffHour, c.cutoffMinute)
	report, err := c.syncGap(ctx, ticker, model.SyncForced, latest)
	if err != nil {
		return nil, err
	}

	rec, err = c.store.Load(ticker)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("reload %s: %w", ticker, model.ErrCacheNotFound)
	}
	res := &model.UpdateResult{
		Ticker:          ticker,
		PreviousEndDate: prevEnd,
		NewEndDate:      rec.DateRange.EndDate,
		NewRecords:      rec.BarCount() - prevCount,
	}
	switch {
	case report.Mode == model.SyncNone:
		res.Message = "already up to date"
	case res.NewRecords == 0:
		res.Message = "no new sessions published"
	default:
		res.Message = fmt.Sprintf("added %d sessions", res.NewRecords)
	}
	if len(report.FailedMonths) > 0 {
		res.Message += fmt.Sprintf(" (%d months failed)", len(report.FailedMonths))
	}
	return res, nil
}

func (c *Collector) backfill(ctx context.Context, ticker string, start time.Time) error {
	now := c.store.Now()
	latest := calendar.LatestAvailableDate(now, c.cutoffHour, c.cutoffMinute)
	months := calendar.MonthsBetween(start, latest)
	report := c.newReport(ticker, model.SyncBackfill, len(months))
	defer c.finish(&report)

	log.WithFields(log.Fields{
		"ticker": ticker,
		"from":   calendar.FormatDate(start),
		"to":     calendar.FormatDate(latest),
		"months": len(months),
	}).Info("backfilling cache")

	fetched, failed, err := c.fetchMonths(ctx, ticker, months)
	report.FailedMonths = failed
	report.BarsFetched = len(fetched)
	if err != nil {
		report.Err = err
		return err
	}

	var kept []model.Bar
	for _, b := range fetched {
		if !calendar.Truncate(b.Date).Before(start) {
			kept = append(kept, b)
		}
	}
	kept, report.BarsRejected = dropInvalid(ticker, kept)
	if len(kept) == 0 {
		detail := fmt.Sprintf("no bars for %s since %s", ticker, calendar.FormatDate(start))
		if len(failed) > 0 {
			detail += fmt.Sprintf(", %d of %d months failed", len(failed), len(months))
		}
		report.Err = model.ErrTickerNotFound.WithDetail(detail)
		return report.Err
	}

	name := ticker
	if c.directory != nil {
		name = c.directory.DisplayName(ticker)
	}
	if err := c.store.Create(ticker, name, kept); err != nil {
		report.Err = err
		return fmt.Errorf("create cache %s: %w", ticker, err)
	}
	report.BarsWritten = len(kept)
	return nil
}

// Delete removes ticker's record, waiting for any sync of it to finish.
func (c *Collector) Delete(ticker string) bool {
	unlock := c.locks.lock(ticker)
	defer unlock()
	return c.store.Delete(ticker)
}

// Evict trims the cache to keepCount records, oldest sync first. Each
// deletion takes the ticker's sync lock.
func (c *Collector) Evict(keepCount int) []string {
	var evicted []string
	for _, t := range c.store.Oldest(keepCount) {
		if c.Delete(t) {
			evicted = append(evicted, t)
			log.WithField("ticker", t).Info("evicted cache record")
		}
	}
	return evicted
}

// syncGap merges the trading days missing from ticker's record through the
// given day (yesterday when zero).
func (c *Collector) syncGap(ctx context.Context, ticker string, mode model.SyncMode, through time.Time) (model.SyncReport, error) {
	missing := c.store.MissingTradingDays(ticker, through)
	if len(missing) == 0 {
		report := c.newReport(ticker, model.SyncNone, 0)
		c.finish(&report)
		return report, nil
	}

	months := calendar.MonthsBetween(missing[0], missing[len(missing)-1])
	report := c.newReport(ticker, mode, len(months))
	defer c.finish(&report)

	log.WithFields(log.Fields{
		"ticker":  ticker,
		"missing": len(missing),
		"from":    calendar.FormatDate(missing[0]),
		"to":      calendar.FormatDate(missing[len(missing)-1]),
	}).Info("filling cache gap")

	wanted := make(map[string]bool, len(missing))
	for _, d := range missing {
		wanted[calendar.FormatDate(d)] = true
	}

	fetched, failed, err := c.fetchMonths(ctx, ticker, months)
	report.FailedMonths = failed
	report.BarsFetched = len(fetched)
	if err != nil {
		report.Err = err
		return report, err
	}
	if len(failed) == len(months) {
		log.WithField("ticker", ticker).Warn("every month failed, cache left unchanged")
		return report, nil
	}

	var fill []model.Bar
	for _, b := range fetched {
		if wanted[calendar.FormatDate(b.Date)] {
			fill = append(fill, b)
		}
	}
	fill, report.BarsRejected = dropInvalid(ticker, fill)
	if err := c.store.Merge(ticker, fill); err != nil {
		report.Err = err
		return report, fmt.Errorf("merge cache %s: %w", ticker, err)
	}
	report.BarsWritten = len(fill)
	return report, nil
}

// fetchMonths requests each month in order. A failing month is recorded and
// skipped; only cancellation of ctx aborts the loop.
func (c *Collector) fetchMonths(ctx context.Context, ticker string, months []calendar.YearMonth) ([]model.Bar, []string, error) {
	var bars []model.Bar
	var failed []string
	for _, ym := range months {
		if err := ctx.Err(); err != nil {
			return bars, failed, err
		}
		mctx, cancel := context.WithTimeout(ctx, c.monthTimeout)
		got, err := c.provider.FetchMonth(mctx, ticker, ym.Year, ym.Month)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return bars, failed, ctx.Err()
			}
			fields := log.Fields{"ticker": ticker, "month": ym.String(), "provider": c.provider.Name()}
			if errors.Is(err, context.DeadlineExceeded) {
				log.WithFields(fields).Warn("month fetch timed out, skipping")
			} else {
				log.WithFields(fields).Warnf("month fetch failed, skipping: %v", err)
			}
			failed = append(failed, ym.String())
			continue
		}
		log.WithFields(log.Fields{"ticker": ticker, "month": ym.String(), "bars": len(got)}).Debug("month fetched")
		bars = append(bars, got...)
	}
	if len(failed) > 0 && len(failed) < len(months) {
		log.WithFields(log.Fields{"ticker": ticker, "failed": failed}).
			Warn(model.ErrPartialSyncFailure.Message)
	}
	return bars, failed, nil
}

// dropInvalid removes bars the store would refuse so one bad session does
// not sink the rest of the batch.
func dropInvalid(ticker string, bars []model.Bar) ([]model.Bar, int) {
	valid := bars[:0:0]
	for _, b := range bars {
		if err := b.Validate(); err != nil {
			log.WithField("ticker", ticker).Warnf("dropping provider bar: %v", err)
			continue
		}
		valid = append(valid, b)
	}
	return valid, len(bars) - len(valid)
}

func (c *Collector) newReport(ticker string, mode model.SyncMode, months int) model.SyncReport {
	return model.SyncReport{
		RunID:           uuid.NewString(),
		Ticker:          ticker,
		Mode:            mode,
		MonthsRequested: months,
		StartedAt:       time.Now(),
	}
}

func (c *Collector) finish(r *model.SyncReport) {
	r.Duration = time.Since(r.StartedAt)
	for _, o := range c.observers {
		o.ObserveSync(*r)
	}
}

// keyedMutex hands out one mutex per key and frees it when unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*refLock)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &refLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
