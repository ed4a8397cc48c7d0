package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	apperrors "stock-analyst/internal/errors"
)

func TestSQLiteStore_BarFreshness(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	now := time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	if _, ok, err := store.LoadBars(ctx, "yahoo", "AAPL", "1mo", time.Hour); ok || err != nil {
		t.Fatalf("LoadBars() on empty cache = %v, %v", ok, err)
	}

	if err := store.SaveBars(ctx, "yahoo", "AAPL", "1mo", generateTestBars(5, 100)); err != nil {
		t.Fatalf("SaveBars() error = %v", err)
	}

	now = now.Add(30 * time.Minute)
	if _, ok, _ := store.LoadBars(ctx, "yahoo", "AAPL", "1mo", time.Hour); !ok {
		t.Error("expected cache hit within TTL")
	}

	now = now.Add(time.Hour)
	if _, ok, _ := store.LoadBars(ctx, "yahoo", "AAPL", "1mo", time.Hour); ok {
		t.Error("expected cache miss after TTL")
	}
	if _, ok, _ := store.LoadBars(ctx, "yahoo", "AAPL", "1mo", 0); !ok {
		t.Error("maxAge 0 should accept any age")
	}
	if _, ok, _ := store.LoadBars(ctx, "polygon", "AAPL", "1mo", 0); ok {
		t.Error("entries are keyed by provider")
	}
}

func TestSQLiteStore_PurgeBars(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	now := time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	if err := store.SaveBars(ctx, "yahoo", "OLD", "1mo", generateTestBars(3, 10)); err != nil {
		t.Fatalf("SaveBars() error = %v", err)
	}

	now = now.Add(48 * time.Hour)
	if err := store.SaveBars(ctx, "yahoo", "NEW", "1mo", generateTestBars(2, 10)); err != nil {
		t.Fatalf("SaveBars() error = %v", err)
	}

	n, err := store.PurgeBars(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("PurgeBars() error = %v", err)
	}
	if n != 3 {
		t.Errorf("purged %d bars, want 3", n)
	}
	if _, err := store.GetLastFetch(ctx, "yahoo", "OLD", "1mo"); !errors.Is(err, apperrors.ErrDataNotFound) {
		t.Errorf("GetLastFetch(OLD) error = %v, want ErrDataNotFound", err)
	}
	if _, ok, _ := store.LoadBars(ctx, "yahoo", "NEW", "1mo", 0); !ok {
		t.Error("fresh entry should survive purge")
	}
}

func TestSQLiteStore_Reports(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)
	for i, src := range []string{"prompt", "plan", "watch"} {
		payload, _ := json.Marshal(map[string]int{"n": i})
		err := store.SaveReport(ctx, &ReportRecord{
			ID:        src + "-run",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
			Prompt:    "RSI for AAPL",
			Source:    src,
			Steps:     2,
			Succeeded: 1,
			Failed:    1,
			Payload:   payload,
		})
		if err != nil {
			t.Fatalf("SaveReport() error = %v", err)
		}
	}

	all, err := store.ListReports(ctx, ReportFilter{})
	if err != nil {
		t.Fatalf("ListReports() error = %v", err)
	}
	if len(all) != 3 || all[0].ID != "watch-run" {
		t.Fatalf("ListReports() = %+v, want newest first", all)
	}
	if all[0].Payload != nil {
		t.Error("list should omit payloads")
	}

	plans, err := store.ListReports(ctx, ReportFilter{Source: "plan", Limit: 5})
	if err != nil || len(plans) != 1 {
		t.Fatalf("ListReports(plan) = %+v, %v", plans, err)
	}

	got, err := store.GetReport(ctx, "prompt-run")
	if err != nil {
		t.Fatalf("GetReport() error = %v", err)
	}
	if string(got.Payload) != `{"n":0}` || got.Prompt != "RSI for AAPL" || got.Failed != 1 {
		t.Errorf("GetReport() = %+v", got)
	}
	if !got.CreatedAt.Equal(base) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, base)
	}

	if _, err := store.GetReport(ctx, "missing"); !errors.Is(err, apperrors.ErrDataNotFound) {
		t.Errorf("GetReport(missing) error = %v, want ErrDataNotFound", err)
	}
}
