package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.ObserveStep("calculate_rsi", "success", time.Millisecond)
	m.ObservePlan("ok")
	m.ObserveEscalation("1d", "5d")
	m.ObserveProvider("polygon", time.Millisecond, errors.New("boom"))
	m.ObserveCache(true)
	m.SetBreakerState("polygon", 1)
	if err := m.WriteToTextfile(filepath.Join(t.TempDir(), "x.prom")); err != nil {
		t.Errorf("WriteToTextfile() on nil = %v", err)
	}
}

func TestMetrics_WriteToTextfile(t *testing.T) {
	m := NewMetrics()
	m.ObserveStep("fetch_stock_data", "success", 20*time.Millisecond)
	m.ObserveStep("calculate_rsi", "skipped", 0)
	m.ObserveEscalation("1d", "5d")
	m.ObserveProvider("polygon", time.Millisecond, errors.New("boom"))
	m.ObserveCache(false)
	m.ObservePlan("partial")

	path := filepath.Join(t.TempDir(), "analyst.prom")
	if err := m.WriteToTextfile(path); err != nil {
		t.Fatalf("WriteToTextfile() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	out := string(data)

	for _, want := range []string{
		`analyst_steps_total{status="success",tool="fetch_stock_data"} 1`,
		`analyst_steps_total{status="skipped",tool="calculate_rsi"} 1`,
		`analyst_fetch_escalations_total{from="1d",to="5d"} 1`,
		`analyst_provider_errors_total{provider="polygon"} 1`,
		`analyst_bar_cache_lookups_total{result="miss"} 1`,
		`analyst_plans_total{outcome="partial"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
	if strings.Contains(out, `analyst_step_duration_seconds_count{tool="calculate_rsi"}`) {
		t.Error("skipped steps should not observe a duration")
	}
}
