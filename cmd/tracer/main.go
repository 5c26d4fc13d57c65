package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"BuyTracer/internal/api"
	"BuyTracer/internal/cache"
	"BuyTracer/internal/calendar"
	"BuyTracer/internal/collector"
	"BuyTracer/internal/config"
	"BuyTracer/internal/logger"
	"BuyTracer/internal/metrics"
	"BuyTracer/internal/notifier"
	"BuyTracer/internal/recorder"
	"BuyTracer/internal/scheduler"
	"BuyTracer/internal/service"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"
)

const version = "1.0.0"

func main() {
	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config validation: %v", err)
	}

	closer, err := logger.Init(logger.Options{Level: cfg.Log.Level, File: cfg.Log.File, Debug: cfg.Server.Debug})
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer closer.Close()
	log.WithField("version", version).Info("BuyTracer starting...")

	if err := calendar.SetLocation(cfg.Market.Timezone); err != nil {
		log.Fatalf("market timezone: %v", err)
	}

	store, err := cache.NewStore(cfg.Cache.Dir)
	if err != nil {
		log.Fatalf("init cache: %v", err)
	}

	var provider collector.Provider
	if cfg.DataSource.Mock {
		provider = collector.NewSyntheticProvider()
	} else {
		provider = collector.NewTWSEProvider(cfg.DataSource.BaseURL, cfg.Proxy, cfg.DataSource.Timeout)
	}
	log.WithField("provider", provider.Name()).Info("data source ready")

	dir, err := collector.LoadDirectory(cfg.DataSource.ListingsFile)
	if err != nil {
		log.Fatalf("load listings: %v", err)
	}

	// Init recorder
	var rec recorder.Recorder
	if cfg.Database.SQLitePath != "" {
		sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath)
		if err != nil {
			log.Warnf("init sqlite recorder failed, using noop: %v", err)
			rec = recorder.NewNoopRecorder()
		} else {
			rec = sr
		}
	} else {
		rec = recorder.NewNoopRecorder()
	}
	defer rec.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	col := collector.NewCollector(provider, store,
		collector.WithDirectory(dir),
		collector.WithObserver(rec),
		collector.WithObserver(m),
		collector.WithMonthTimeout(cfg.DataSource.MonthTimeout),
		collector.WithCutoff(cfg.Market.CutoffHour, cfg.Market.CutoffMinute),
	)

	defaultStart, _ := calendar.ParseDate(cfg.Market.DefaultStartDate)
	svc, err := service.New(col, dir, service.Options{
		Params:       cfg.IndicatorParams(),
		DefaultStart: defaultStart,
		DefaultDays:  cfg.Analysis.DefaultDays,
		RecentLimit:  cfg.Analysis.RecentLimit,
		MaxRecords:   cfg.Cache.MaxRecords,
		Version:      version,
		Sink:         rec,
		Signals:      rec,
		Observer:     m,
	})
	if err != nil {
		log.Fatalf("init service: %v", err)
	}

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := api.NewServer(cfg.Server.Addr, api.NewHandler(svc, api.Options{
		Version: version,
		Debug:   cfg.Server.Debug,
		Metrics: m.Handler(),
	}))
	srv.Start()

	var sender scheduler.Sender
	var tn *notifier.TelegramNotifier
	if cfg.TelegramEnabled() {
		tn = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy)
		sender = tn
	}

	sched := scheduler.NewScheduler(ctx, svc, sender, rec, cfg.Schedule.Watchlist)
	sched.Metrics = m
	sched.Concurrency = cfg.Schedule.Concurrency
	if cfg.Schedule.Enabled {
		if err := sched.RegisterAll(cfg.Schedule.SyncCron, cfg.Schedule.EvictCron); err != nil {
			log.Fatalf("register cron tasks: %v", err)
		}
		sched.Start()
		defer sched.Stop()
	}

	if tn != nil {
		go tn.StartPolling(ctx, sched.HandleCommand)
		log.Info("telegram polling started")
	}

	if cfg.Schedule.RunOnStart {
		log.Info("run_on_start enabled, syncing watchlist now")
		go sched.RunSyncNow()
	}

	log.Info("BuyTracer is running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, stopping...")
	cancel()
	shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("%v", err)
	}
	log.Info("BuyTracer stopped")
}
