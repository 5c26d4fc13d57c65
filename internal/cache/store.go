// Package cache persists per-ticker daily bar histories as JSON documents.
//
// Each ticker owns one file under the cache directory. Writes go to a
// temporary file in the same directory which is then renamed over the
// target, so a reader never observes a half-written record.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"BuyTracer/internal/calendar"
	"BuyTracer/internal/model"

	log "github.com/sirupsen/logrus"
)

const fileExt = ".json"

// Store is a file-backed bar cache keyed by ticker.
type Store struct {
	dir string
	now func() time.Time
}

// Option customises a Store.
type Option func(*Store)

// WithClock overrides the wall clock used for sync timestamps and freshness checks.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore opens (and creates if needed) a cache directory.
func NewStore(dir string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	s := &Store{dir: dir, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Dir returns the cache directory.
func (s *Store) Dir() string { return s.dir }

// Now returns the store's clock reading.
func (s *Store) Now() time.Time { return s.now() }

func (s *Store) path(ticker string) string {
	return filepath.Join(s.dir, ticker+fileExt)
}

// Exists reports whether a record file is present for ticker.
func (s *Store) Exists(ticker string) bool {
	_, err := os.Stat(s.path(ticker))
	return err == nil
}

// Load reads the record for ticker. It returns nil without error when the
// record is absent. A record that cannot be decoded is purged and reported
// as absent so the next sync rebuilds it from scratch.
func (s *Store) Load(ticker string) (*model.CacheRecord, error) {
	data, err := os.ReadFile(s.path(ticker))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read cache %s: %w", ticker, err)
	}

	rec, err := decode(data)
	if err != nil {
		log.WithField("ticker", ticker).Warnf("purging corrupt cache record: %v", err)
		s.Delete(ticker)
		return nil, nil
	}
	return rec, nil
}

func decode(data []byte) (*model.CacheRecord, error) {
	var rec model.CacheRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, &model.Error{Code: model.CodeCacheCorruption, Message: "decode cache record", Err: err}
	}
	if rec.Metadata.Ticker == "" || len(rec.Data) == 0 {
		return nil, model.ErrCacheCorruption.WithDetail("record has no ticker or no bars")
	}
	rec.Data = normalize(rec.Data)
	rec.RefreshRange()
	return &rec, nil
}

// Create writes a new record for ticker holding bars.
func (s *Store) Create(ticker, displayName string, bars []model.Bar) error {
	if len(bars) == 0 {
		return model.ErrEmptyBars
	}
	if err := validate(bars); err != nil {
		return err
	}
	now := s.now()
	rec := &model.CacheRecord{
		Metadata: model.CacheMetadata{
			Ticker:       ticker,
			DisplayName:  displayName,
			CreatedAt:    now,
			LastSyncedAt: now,
		},
		Data: normalize(bars),
	}
	rec.RefreshRange()
	if err := s.save(rec); err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"ticker": ticker,
		"bars":   rec.BarCount(),
		"range":  rec.DateRange.StartDate + ".." + rec.DateRange.EndDate,
	}).Info("cache record created")
	return nil
}

// Merge unions bars into the existing record keyed by date; on duplicate
// dates the incoming bar wins. The sync timestamp advances even when bars
// adds nothing new.
func (s *Store) Merge(ticker string, bars []model.Bar) error {
	rec, err := s.Load(ticker)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("merge %s: %w", ticker, model.ErrCacheNotFound)
	}
	if err := validate(bars); err != nil {
		return err
	}

	combined := make([]model.Bar, 0, len(rec.Data)+len(bars))
	combined = append(combined, rec.Data...)
	combined = append(combined, bars...)
	rec.Data = normalize(combined)
	rec.Metadata.LastSyncedAt = s.now()
	rec.RefreshRange()
	return s.save(rec)
}

// Delete removes the record for ticker. It returns false if there was none.
func (s *Store) Delete(ticker string) bool {
	err := os.Remove(s.path(ticker))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.WithField("ticker", ticker).Errorf("delete cache record: %v", err)
		}
		return false
	}
	return true
}

// yesterday is the freshness horizon: a record is current when nothing up to
// and including yesterday is missing.
func (s *Store) yesterday() time.Time {
	return calendar.Truncate(s.now()).AddDate(0, 0, -1)
}

// IsUpToDate reports whether no trading day through yesterday is missing.
func (s *Store) IsUpToDate(ticker string) bool {
	rec, err := s.Load(ticker)
	if err != nil || rec == nil {
		return false
	}
	return len(missingAfter(rec, s.yesterday())) == 0
}

// MissingTradingDays lists the trading days after the record's last bar up
// to and including through. A zero through means yesterday.
func (s *Store) MissingTradingDays(ticker string, through time.Time) []time.Time {
	rec, err := s.Load(ticker)
	if err != nil || rec == nil {
		return nil
	}
	if through.IsZero() {
		through = s.yesterday()
	}
	return missingAfter(rec, through)
}

func missingAfter(rec *model.CacheRecord, through time.Time) []time.Time {
	from := rec.EndDate().AddDate(0, 0, 1)
	if from.After(calendar.Truncate(through)) {
		return nil
	}
	return calendar.TradingDaysBetween(from, through)
}

// ListAll returns every cached ticker, sorted.
func (s *Store) ListAll() []string {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		log.Errorf("list cache dir: %v", err)
		return nil
	}
	var tickers []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, fileExt) {
			continue
		}
		tickers = append(tickers, strings.TrimSuffix(name, fileExt))
	}
	sort.Strings(tickers)
	return tickers
}

// Info summarises the record for ticker. It returns nil when absent.
func (s *Store) Info(ticker string) (*model.CacheInfo, error) {
	rec, err := s.Load(ticker)
	if err != nil || rec == nil {
		return nil, err
	}
	st, err := os.Stat(s.path(ticker))
	if err != nil {
		return nil, fmt.Errorf("stat cache %s: %w", ticker, err)
	}
	return &model.CacheInfo{
		Ticker:       rec.Metadata.Ticker,
		DisplayName:  rec.Metadata.DisplayName,
		FilePath:     s.path(ticker),
		SizeBytes:    st.Size(),
		DateRange:    rec.DateRange,
		RecordCount:  rec.BarCount(),
		LastSyncedAt: rec.Metadata.LastSyncedAt,
	}, nil
}

// EvictOldest deletes the least recently synced records until at most
// keepCount remain. It returns the evicted tickers.
func (s *Store) EvictOldest(keepCount int) []string {
	var evicted []string
	for _, t := range s.Oldest(keepCount) {
		if s.Delete(t) {
			evicted = append(evicted, t)
			log.WithField("ticker", t).Info("evicted cache record")
		}
	}
	return evicted
}

// Oldest lists, least recently synced first, the tickers that exceed a
// capacity of keepCount records.
func (s *Store) Oldest(keepCount int) []string {
	if keepCount < 0 {
		keepCount = 0
	}
	var infos []*model.CacheInfo
	for _, t := range s.ListAll() {
		info, err := s.Info(t)
		if err != nil || info == nil {
			continue
		}
		infos = append(infos, info)
	}
	if len(infos) <= keepCount {
		return nil
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].LastSyncedAt.Before(infos[j].LastSyncedAt)
	})

	out := make([]string, 0, len(infos)-keepCount)
	for _, info := range infos[:len(infos)-keepCount] {
		out = append(out, info.Ticker)
	}
	return out
}

func (s *Store) save(rec *model.CacheRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encode cache %s: %w", rec.Metadata.Ticker, err)
	}
	return writeAtomic(s.dir, s.path(rec.Metadata.Ticker), data)
}

func writeAtomic(dir, target string, data []byte) error {
	tmp, err := os.CreateTemp(dir, filepath.Base(target)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		cleanup()
		return fmt.Errorf("replace %s: %w", filepath.Base(target), err)
	}
	return nil
}

func validate(bars []model.Bar) error {
	for _, b := range bars {
		if err := b.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// normalize sorts bars by date and keeps the last occurrence of each date.
func normalize(bars []model.Bar) []model.Bar {
	byDate := make(map[string]model.Bar, len(bars))
	for _, b := range bars {
		b.Date = calendar.Truncate(b.Date)
		byDate[calendar.FormatDate(b.Date)] = b
	}
	out := make([]model.Bar, 0, len(byDate))
	for _, b := range byDate {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}
