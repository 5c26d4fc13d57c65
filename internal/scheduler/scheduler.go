// Package scheduler runs the watchlist sync and cache eviction on cron
// schedules and answers Telegram commands.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"BuyTracer/internal/calendar"
	"BuyTracer/internal/model"
	"BuyTracer/internal/notifier"
	"BuyTracer/internal/recorder"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency bounds parallel watchlist syncs.
const DefaultConcurrency = 4

// Analyzer is the slice of the service the scheduler drives.
type Analyzer interface {
	Analyze(ctx context.Context, ticker string, start time.Time, days int) (*model.Analysis, error)
	History(sortBy, order string) ([]model.CacheInfo, error)
	Health() model.Health
	Evict() []string
	SignalHistory(ticker string, limit int) ([]recorder.SignalRecord, error)
}

// signalHistoryLimit caps the rows a /signals reply lists.
const signalHistoryLimit = 10

// Sender delivers a formatted message.
type Sender interface {
	SendWithRetry(ctx context.Context, text string, maxRetries int) error
}

// RunObserver is told when a scheduled run finishes.
type RunObserver interface {
	ObserveSchedulerRun(at time.Time, cached int)
}

// Scheduler manages all cron tasks.
type Scheduler struct {
	Cron        *cron.Cron
	Service     Analyzer
	Notifier    Sender
	Recorder    recorder.Recorder
	Metrics     RunObserver
	Watchlist   []string
	Concurrency int
	Ctx         context.Context

	mu      sync.Mutex
	running bool
}

// NewScheduler creates a new Scheduler. Cron specs are read in the
// exchange time zone. A nil notifier disables messages.
func NewScheduler(ctx context.Context, svc Analyzer, sender Sender, rec recorder.Recorder, watchlist []string) *Scheduler {
	if rec == nil {
		rec = recorder.NewNoopRecorder()
	}
	return &Scheduler{
		Cron:        cron.New(cron.WithSeconds(), cron.WithLocation(calendar.Location)),
		Service:     svc,
		Notifier:    sender,
		Recorder:    rec,
		Watchlist:   watchlist,
		Concurrency: DefaultConcurrency,
		Ctx:         ctx,
	}
}

// RegisterAll registers the watchlist sync and the eviction task.
func (s *Scheduler) RegisterAll(syncCron, evictCron string) error {
	if _, err := s.Cron.AddFunc(syncCron, s.syncTask); err != nil {
		return fmt.Errorf("register sync task: %w", err)
	}
	if evictCron != "" {
		if _, err := s.Cron.AddFunc(evictCron, s.evictTask); err != nil {
			return fmt.Errorf("register evict task: %w", err)
		}
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	log.Info("scheduler started")
}

// Stop stops the cron scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	log.Info("scheduler stopped")
}

// RunSyncNow runs the watchlist sync immediately.
func (s *Scheduler) RunSyncNow() []notifier.DigestEntry {
	return s.syncWatchlist()
}

func (s *Scheduler) syncTask() {
	s.syncWatchlist()
}

// syncWatchlist analyses every watchlist ticker, which syncs its cache as a
// side effect, and sends one digest. Overlapping runs are skipped.
func (s *Scheduler) syncWatchlist() []notifier.DigestEntry {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		log.Warn("watchlist sync already running, skipping")
		return nil
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	if len(s.Watchlist) == 0 {
		return nil
	}
	started := time.Now()
	log.WithField("tickers", len(s.Watchlist)).Info("running watchlist sync")

	entries := make([]notifier.DigestEntry, len(s.Watchlist))
	var g errgroup.Group
	limit := s.Concurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	g.SetLimit(limit)
	for i, ticker := range s.Watchlist {
		g.Go(func() error {
			a, err := s.Service.Analyze(s.Ctx, ticker, time.Time{}, 0)
			entries[i] = notifier.DigestEntry{Ticker: ticker, Analysis: a, Err: err}
			if err != nil {
				log.WithField("ticker", ticker).Errorf("watchlist analyze: %v", err)
			}
			return nil
		})
	}
	g.Wait()

	s.trySend(notifier.FormatDigest(started, entries))
	s.observeRun(started)
	log.WithField("elapsed", time.Since(started).Round(time.Millisecond)).Info("watchlist sync finished")
	return entries
}

func (s *Scheduler) evictTask() {
	evicted := s.Service.Evict()
	if len(evicted) > 0 {
		log.WithField("evicted", evicted).Info("cache eviction finished")
	}
	s.observeRun(time.Now())
}

func (s *Scheduler) observeRun(at time.Time) {
	if s.Metrics == nil {
		return
	}
	s.Metrics.ObserveSchedulerRun(at, s.Service.Health().CacheCount)
}

// HandleCommand processes a Telegram command and returns the reply text.
func (s *Scheduler) HandleCommand(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return notifier.HelpText
	}
	// Commands may arrive as /cmd@botname in group chats.
	name, _, _ := strings.Cut(fields[0], "@")

	switch name {
	case "/status":
		runs, err := s.Recorder.RecentSyncs(5)
		if err != nil {
			log.Errorf("recent syncs: %v", err)
		}
		return notifier.FormatStatus(s.Service.Health(), runs)
	case "/analyze":
		if len(fields) < 2 {
			return "用法: /analyze 2330"
		}
		a, err := s.Service.Analyze(s.Ctx, fields[1], time.Time{}, 0)
		if err != nil {
			return fmt.Sprintf("❌ 分析失敗: %s", failureText(err))
		}
		return notifier.FormatAnalysis(a)
	case "/signals":
		if len(fields) < 2 {
			return "用法: /signals 2330"
		}
		recs, err := s.Service.SignalHistory(fields[1], signalHistoryLimit)
		if err != nil {
			return fmt.Sprintf("❌ 讀取訊號紀錄失敗: %s", failureText(err))
		}
		return notifier.FormatSignalHistory(strings.ToUpper(strings.TrimSpace(fields[1])), recs)
	case "/cache":
		infos, err := s.Service.History("last_update", "desc")
		if err != nil {
			return fmt.Sprintf("❌ 讀取快取失敗: %v", err)
		}
		return notifier.FormatCacheList(infos)
	case "/sync":
		go s.syncWatchlist()
		return "⏳ 已開始同步觀察清單"
	default:
		return notifier.HelpText
	}
}

func failureText(err error) string {
	if code := model.CodeOf(err); code != model.CodeInternal {
		return string(code)
	}
	return err.Error()
}

func (s *Scheduler) trySend(text string) {
	if s.Notifier == nil {
		return
	}
	if err := s.Notifier.SendWithRetry(s.Ctx, text, 3); err != nil {
		log.Errorf("send notification: %v", err)
	}
}
