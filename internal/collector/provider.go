package collector

import (
	"context"
	"time"

	"BuyTracer/internal/model"
)

// Provider fetches one calendar month of daily bars for a ticker.
// Implementations must be idempotent. An empty result is not an error: the
// month may simply have no sessions. Errors are treated as transient.
type Provider interface {
	FetchMonth(ctx context.Context, ticker string, year int, month time.Month) ([]model.Bar, error)
	Name() string
}

// SyncObserver receives a report after every sync attempt.
type SyncObserver interface {
	ObserveSync(report model.SyncReport)
}

// ObserverFunc adapts a function to SyncObserver.
type ObserverFunc func(model.SyncReport)

func (f ObserverFunc) ObserveSync(r model.SyncReport) { f(r) }
