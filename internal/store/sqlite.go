// Package store provides data persistence implementations.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	apperrors "stock-analyst/internal/errors"
	"stock-analyst/internal/models"
)

// SQLiteStore implements DataStore using SQLite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore creates a new SQLite-based data store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool for concurrent access
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{
		db:  db,
		now: time.Now,
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Daily bars cached per provider, ticker and requested period
	CREATE TABLE IF NOT EXISTS bars (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		provider TEXT NOT NULL,
		ticker TEXT NOT NULL,
		period TEXT NOT NULL,
		date DATETIME NOT NULL,
		open REAL NOT NULL,
		high REAL NOT NULL,
		low REAL NOT NULL,
		close REAL NOT NULL,
		volume INTEGER NOT NULL,
		UNIQUE(provider, ticker, period, date)
	);

	-- One row per cached fetch, used for freshness checks
	CREATE TABLE IF NOT EXISTS bar_fetches (
		provider TEXT NOT NULL,
		ticker TEXT NOT NULL,
		period TEXT NOT NULL,
		fetched_at DATETIME NOT NULL,
		bar_count INTEGER NOT NULL,
		PRIMARY KEY (provider, ticker, period)
	);

	-- Archived analysis reports
	CREATE TABLE IF NOT EXISTS reports (
		id TEXT PRIMARY KEY,
		created_at DATETIME NOT NULL,
		prompt TEXT,
		source TEXT NOT NULL,
		steps INTEGER NOT NULL,
		succeeded INTEGER NOT NULL,
		failed INTEGER NOT NULL,
		skipped INTEGER NOT NULL,
		payload TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_bars_key ON bars(provider, ticker, period, date);
	CREATE INDEX IF NOT EXISTS idx_reports_created ON reports(created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveBars replaces the cached bars for a provider/ticker/period and stamps
// the fetch time.
func (s *SQLiteStore) SaveBars(ctx context.Context, provider, ticker, period string, bars []models.PriceBar) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM bars WHERE provider = ? AND ticker = ? AND period = ?
	`, provider, ticker, period); err != nil {
		return fmt.Errorf("failed to clear bars: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO bars (provider, ticker, period, date, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, b := range bars {
		_, err := stmt.ExecContext(ctx, provider, ticker, period, b.Date.UTC(), b.Open, b.High, b.Low, b.Close, b.Volume)
		if err != nil {
			return fmt.Errorf("failed to insert bar: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO bar_fetches (provider, ticker, period, fetched_at, bar_count)
		VALUES (?, ?, ?, ?, ?)
	`, provider, ticker, period, s.now().UTC(), len(bars)); err != nil {
		return fmt.Errorf("failed to record fetch: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// LoadBars returns cached bars when a fetch younger than maxAge exists.
// maxAge <= 0 accepts any age.
func (s *SQLiteStore) LoadBars(ctx context.Context, provider, ticker, period string, maxAge time.Duration) ([]models.PriceBar, bool, error) {
	fetchedAt, err := s.GetLastFetch(ctx, provider, ticker, period)
	if errors.Is(err, apperrors.ErrDataNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if maxAge > 0 && s.now().Sub(fetchedAt) > maxAge {
		return nil, false, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT date, open, high, low, close, volume
		FROM bars
		WHERE provider = ? AND ticker = ? AND period = ?
		ORDER BY date ASC
	`, provider, ticker, period)
	if err != nil {
		return nil, false, fmt.Errorf("failed to query bars: %w", err)
	}
	defer rows.Close()

	bars := []models.PriceBar{}
	for rows.Next() {
		var b models.PriceBar
		if err := rows.Scan(&b.Date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, false, fmt.Errorf("failed to scan bar: %w", err)
		}
		b.Date = b.Date.UTC()
		bars = append(bars, b)
	}

	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("error iterating bars: %w", err)
	}

	return bars, true, nil
}

// GetLastFetch returns when bars for the key were last cached.
func (s *SQLiteStore) GetLastFetch(ctx context.Context, provider, ticker, period string) (time.Time, error) {
	var fetchedAt time.Time
	err := s.db.QueryRowContext(ctx, `
		SELECT fetched_at FROM bar_fetches WHERE provider = ? AND ticker = ? AND period = ?
	`, provider, ticker, period).Scan(&fetchedAt)
	if err == sql.ErrNoRows {
		return time.Time{}, apperrors.ErrDataNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: failed to read fetch time: %v", apperrors.ErrDatabaseError, err)
	}
	return fetchedAt, nil
}

// PurgeBars removes cached fetches older than olderThan and returns the
// number of bars deleted.
func (s *SQLiteStore) PurgeBars(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := s.now().Add(-olderThan).UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		DELETE FROM bars WHERE EXISTS (
			SELECT 1 FROM bar_fetches f
			WHERE f.provider = bars.provider AND f.ticker = bars.ticker AND f.period = bars.period
			AND f.fetched_at < ?
		)
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge bars: %w", err)
	}
	n, _ := res.RowsAffected()

	if _, err := tx.ExecContext(ctx, `DELETE FROM bar_fetches WHERE fetched_at < ?`, cutoff); err != nil {
		return 0, fmt.Errorf("failed to purge fetches: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return n, nil
}

// SaveReport archives a report.
func (s *SQLiteStore) SaveReport(ctx context.Context, r *ReportRecord) error {
	if r.ID == "" {
		return fmt.Errorf("report id is required")
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO reports (id, created_at, prompt, source, steps, succeeded, failed, skipped, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.CreatedAt.UTC(), r.Prompt, r.Source, r.Steps, r.Succeeded, r.Failed, r.Skipped, string(r.Payload))
	if err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}
	return nil
}

// GetReport retrieves a report by ID.
func (s *SQLiteStore) GetReport(ctx context.Context, id string) (*ReportRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, created_at, prompt, source, steps, succeeded, failed, skipped, payload
		FROM reports WHERE id = ?
	`, id)

	r, err := scanReport(row, true)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("report %s: %w", id, apperrors.ErrDataNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get report: %w", err)
	}
	return r, nil
}

// ListReports lists report summaries, newest first. Payloads are omitted.
func (s *SQLiteStore) ListReports(ctx context.Context, filter ReportFilter) ([]ReportRecord, error) {
	query := `SELECT id, created_at, prompt, source, steps, succeeded, failed, skipped, '' FROM reports WHERE 1=1`
	var args []interface{}

	if filter.Source != "" {
		query += " AND source = ?"
		args = append(args, filter.Source)
	}
	if !filter.StartDate.IsZero() {
		query += " AND created_at >= ?"
		args = append(args, filter.StartDate.UTC())
	}
	if !filter.EndDate.IsZero() {
		query += " AND created_at <= ?"
		args = append(args, filter.EndDate.UTC())
	}

	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()

	var reports []ReportRecord
	for rows.Next() {
		r, err := scanReport(rows, false)
		if err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		reports = append(reports, *r)
	}

	return reports, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanReport(row rowScanner, withPayload bool) (*ReportRecord, error) {
	var r ReportRecord
	var prompt sql.NullString
	var payload string
	if err := row.Scan(&r.ID, &r.CreatedAt, &prompt, &r.Source, &r.Steps, &r.Succeeded, &r.Failed, &r.Skipped, &payload); err != nil {
		return nil, err
	}
	r.Prompt = prompt.String
	r.CreatedAt = r.CreatedAt.UTC()
	if withPayload && strings.TrimSpace(payload) != "" {
		r.Payload = []byte(payload)
	}
	return &r, nil
}
