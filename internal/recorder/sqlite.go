package recorder

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"BuyTracer/internal/calendar"
	"BuyTracer/internal/model"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// SQLiteRecorder persists history to a SQLite database.
type SQLiteRecorder struct {
	db  *sql.DB
	mu  sync.Mutex
	now func() time.Time
}

// NewSQLiteRecorder opens (or creates) the database and runs migrations.
func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db, now: time.Now}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.WithField("path", dbPath).Info("sqlite recorder opened")
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sync_runs (
			run_id        TEXT PRIMARY KEY,
			ticker        TEXT NOT NULL,
			mode          TEXT NOT NULL,
			months        INTEGER,
			failed_months TEXT,
			bars_fetched  INTEGER,
			bars_written  INTEGER,
			started_at    INTEGER NOT NULL,
			duration_ms   INTEGER,
			error         TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_runs_started ON sync_runs(started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_runs_ticker ON sync_runs(ticker)`,

		`CREATE TABLE IF NOT EXISTS signal_events (
			ticker      TEXT NOT NULL,
			date        TEXT NOT NULL,
			signals     TEXT NOT NULL,
			close       REAL,
			volume      INTEGER,
			dif         REAL,
			dem         REAL,
			osc         REAL,
			recorded_at INTEGER NOT NULL,
			PRIMARY KEY (ticker, date)
		)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

// ObserveSync stores a sync report. Failures are logged, never returned.
func (r *SQLiteRecorder) ObserveSync(rep model.SyncReport) {
	if rep.RunID == "" {
		rep.RunID = uuid.NewString()
	}
	var errText string
	if rep.Err != nil {
		errText = rep.Err.Error()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := r.db.Exec(`INSERT INTO sync_runs
		(run_id, ticker, mode, months, failed_months, bars_fetched, bars_written, started_at, duration_ms, error)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		rep.RunID, rep.Ticker, string(rep.Mode), rep.MonthsRequested,
		strings.Join(rep.FailedMonths, ","), rep.BarsFetched, rep.BarsWritten,
		rep.StartedAt.Unix(), rep.Duration.Milliseconds(), errText,
	)
	if err != nil {
		log.WithField("ticker", rep.Ticker).Errorf("record sync run: %v", err)
	}
}

// RecordSignals upserts every signal-bearing event of ticker.
func (r *SQLiteRecorder) RecordSignals(ticker string, events []model.SignalEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO signal_events
		(ticker, date, signals, close, volume, dif, dem, osc, recorded_at)
		VALUES (?,?,?,?,?,?,?,?,?)
		ON CONFLICT(ticker, date) DO UPDATE SET
			signals = excluded.signals, close = excluded.close, volume = excluded.volume,
			dif = excluded.dif, dem = excluded.dem, osc = excluded.osc,
			recorded_at = excluded.recorded_at`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	now := r.now().Unix()
	for _, e := range events {
		if e.Signals.Empty() {
			continue
		}
		if _, err := stmt.Exec(ticker, calendar.FormatDate(e.Date), e.Signals.String(),
			e.Close, e.Volume, e.DIF, e.DEM, e.OSC, now); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert signal %s: %w", calendar.FormatDate(e.Date), err)
		}
	}
	return tx.Commit()
}

// RecentSyncs returns the latest runs, newest first.
func (r *SQLiteRecorder) RecentSyncs(limit int) ([]SyncRun, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db.Query(`SELECT run_id, ticker, mode, months, failed_months,
		bars_fetched, bars_written, started_at, duration_ms, error
		FROM sync_runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query sync runs: %w", err)
	}
	defer rows.Close()

	var runs []SyncRun
	for rows.Next() {
		var (
			run            SyncRun
			mode, failed   string
			started, durMS int64
		)
		if err := rows.Scan(&run.RunID, &run.Ticker, &mode, &run.Months, &failed,
			&run.BarsFetched, &run.BarsWritten, &started, &durMS, &run.Error); err != nil {
			return nil, fmt.Errorf("scan sync run: %w", err)
		}
		run.Mode = model.SyncMode(mode)
		if failed != "" {
			run.FailedMonths = len(strings.Split(failed, ","))
		}
		run.StartedAt = time.Unix(started, 0)
		run.Duration = time.Duration(durMS) * time.Millisecond
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// SignalHistory returns stored signals for ticker, newest first.
func (r *SQLiteRecorder) SignalHistory(ticker string, limit int) ([]SignalRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.Query(`SELECT ticker, date, signals, close, volume, dif, dem, osc, recorded_at
		FROM signal_events WHERE ticker = ? ORDER BY date DESC LIMIT ?`, ticker, limit)
	if err != nil {
		return nil, fmt.Errorf("query signals: %w", err)
	}
	defer rows.Close()

	var out []SignalRecord
	for rows.Next() {
		var (
			rec      SignalRecord
			signals  string
			recorded int64
		)
		if err := rows.Scan(&rec.Ticker, &rec.Date, &signals, &rec.Close, &rec.Volume,
			&rec.DIF, &rec.DEM, &rec.OSC, &recorded); err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		for _, name := range strings.Split(signals, ",") {
			if sig, err := model.ParseSignal(strings.TrimSpace(name)); err == nil {
				rec.Signals = rec.Signals.Add(sig)
			}
		}
		rec.Recorded = time.Unix(recorded, 0)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *SQLiteRecorder) Close() error {
	log.Info("closing sqlite recorder")
	return r.db.Close()
}
