// Package metrics exposes Prometheus instrumentation for syncs and analyses.
package metrics

import (
	"net/http"
	"time"

	"BuyTracer/internal/model"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector the service exports.
type Metrics struct {
	SyncsTotal        *prometheus.CounterVec // labels: mode, outcome
	MonthsFetched     prometheus.Counter
	MonthsFailed      prometheus.Counter
	BarsWritten       prometheus.Counter
	BarsRejected      prometheus.Counter
	SyncDuration      *prometheus.HistogramVec // labels: mode
	AnalysesTotal     *prometheus.CounterVec   // labels: outcome
	AnalysisDuration  prometheus.Histogram
	CachedTickers     prometheus.Gauge
	SchedulerRunsLast prometheus.Gauge

	gatherer prometheus.Gatherer
}

// New creates the metrics and registers them with reg. A nil reg uses a
// fresh private registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		SyncsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "buytracer_syncs_total",
			Help: "Cache syncs by mode and outcome",
		}, []string{"mode", "outcome"}),
		MonthsFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "buytracer_months_fetched_total",
			Help: "Provider month requests that succeeded",
		}),
		MonthsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "buytracer_months_failed_total",
			Help: "Provider month requests that failed or timed out",
		}),
		BarsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "buytracer_bars_written_total",
			Help: "Bars committed to the cache",
		}),
		BarsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "buytracer_bars_rejected_total",
			Help: "Provider bars dropped because they failed validation",
		}),
		SyncDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "buytracer_sync_duration_seconds",
			Help:    "Wall time of one ticker sync",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"mode"}),
		AnalysesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "buytracer_analyses_total",
			Help: "Analyze calls by outcome (ok or error code)",
		}, []string{"outcome"}),
		AnalysisDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "buytracer_analysis_duration_seconds",
			Help:    "Analyze latency including sync",
			Buckets: prometheus.DefBuckets,
		}),
		CachedTickers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "buytracer_cached_tickers",
			Help: "Number of cache records after the last scheduled run",
		}),
		SchedulerRunsLast: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "buytracer_scheduler_last_run_timestamp_seconds",
			Help: "Unix time of the last scheduled watchlist sync",
		}),
		gatherer: reg,
	}
	reg.MustRegister(
		m.SyncsTotal,
		m.MonthsFetched,
		m.MonthsFailed,
		m.BarsWritten,
		m.BarsRejected,
		m.SyncDuration,
		m.AnalysesTotal,
		m.AnalysisDuration,
		m.CachedTickers,
		m.SchedulerRunsLast,
	)
	return m
}

// ObserveSync records one sync report.
func (m *Metrics) ObserveSync(r model.SyncReport) {
	outcome := "ok"
	switch {
	case r.Err != nil:
		outcome = "error"
	case r.PartialFailure():
		outcome = "partial"
	}
	mode := string(r.Mode)
	m.SyncsTotal.WithLabelValues(mode, outcome).Inc()
	m.MonthsFetched.Add(float64(r.MonthsRequested - len(r.FailedMonths)))
	m.MonthsFailed.Add(float64(len(r.FailedMonths)))
	m.BarsWritten.Add(float64(r.BarsWritten))
	m.BarsRejected.Add(float64(r.BarsRejected))
	m.SyncDuration.WithLabelValues(mode).Observe(r.Duration.Seconds())
}

// ObserveAnalysis records one Analyze call.
func (m *Metrics) ObserveAnalysis(_ string, elapsed time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = string(model.CodeOf(err))
	}
	m.AnalysesTotal.WithLabelValues(outcome).Inc()
	m.AnalysisDuration.Observe(elapsed.Seconds())
}

// ObserveSchedulerRun records a completed watchlist run.
func (m *Metrics) ObserveSchedulerRun(at time.Time, cached int) {
	m.SchedulerRunsLast.Set(float64(at.Unix()))
	m.CachedTickers.Set(float64(cached))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
