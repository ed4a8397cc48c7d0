// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"encoding/json"
	"time"

	"stock-analyst/internal/models"
)

// DataStore defines the interface for data persistence.
type DataStore interface {
	// Bars
	SaveBars(ctx context.Context, provider, ticker, period string, bars []models.PriceBar) error
	LoadBars(ctx context.Context, provider, ticker, period string, maxAge time.Duration) ([]models.PriceBar, bool, error)
	GetLastFetch(ctx context.Context, provider, ticker, period string) (time.Time, error)
	PurgeBars(ctx context.Context, olderThan time.Duration) (int64, error)

	// Reports
	SaveReport(ctx context.Context, report *ReportRecord) error
	GetReport(ctx context.Context, id string) (*ReportRecord, error)
	ListReports(ctx context.Context, filter ReportFilter) ([]ReportRecord, error)

	// Lifecycle
	Close() error
}

// ReportRecord is an archived analysis report.
type ReportRecord struct {
	ID        string          `json:"id"`
	CreatedAt time.Time       `json:"created_at"`
	Prompt    string          `json:"prompt,omitempty"`
	Source    string          `json:"source"` // prompt, plan, watch
	Steps     int             `json:"steps"`
	Succeeded int             `json:"succeeded"`
	Failed    int             `json:"failed"`
	Skipped   int             `json:"skipped"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// ReportFilter represents filters for listing reports.
type ReportFilter struct {
	Source    string
	StartDate time.Time
	EndDate   time.Time
	Limit     int
}
