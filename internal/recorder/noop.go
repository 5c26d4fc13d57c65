package recorder

import "BuyTracer/internal/model"

// NoopRecorder is used when no database is configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) ObserveSync(_ model.SyncReport)                        {}
func (n *NoopRecorder) RecordSignals(_ string, _ []model.SignalEvent) error   { return nil }
func (n *NoopRecorder) RecentSyncs(_ int) ([]SyncRun, error)                  { return nil, nil }
func (n *NoopRecorder) SignalHistory(_ string, _ int) ([]SignalRecord, error) { return nil, nil }
func (n *NoopRecorder) Close() error                                          { return nil }
