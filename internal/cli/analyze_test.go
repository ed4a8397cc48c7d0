package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"stock-analyst/internal/config"
	"stock-analyst/internal/engine"
	"stock-analyst/internal/errors"
	"stock-analyst/internal/marketdata"
	"stock-analyst/internal/metrics"
	"stock-analyst/internal/models"
	"stock-analyst/internal/planner"
	"stock-analyst/internal/store"
)

const testPlan = `
steps:
  - id: fetch
    tool: fetch_stock_data
    description: Three months of AAPL
    params:
      ticker: AAPL
      period: 3mo
  - id: rsi
    tool: calculate_rsi
    params:
      series: {ref: fetch}
  - id: macd
    tool: calculate_macd
    params:
      series: {ref: fetch, field: series}
  - id: avg
    tool: calculate_average_price
    params:
      ticker: MSFT
`

func fixtureBars(n int, base float64) []marketdata.RawBar {
	bars := make([]marketdata.RawBar, 0, n)
	day := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	for len(bars) < n {
		if day.Weekday() != time.Saturday && day.Weekday() != time.Sunday {
			i := float64(len(bars))
			c := base + 10*math.Sin(i/3) + 0.1*i
			bars = append(bars, marketdata.RawBar{
				Time: day, Open: c - 0.5, High: c + 1, Low: c - 1, Close: &c, Volume: 1000 + 10*i,
			})
		}
		day = day.AddDate(0, 0, 1)
	}
	return bars
}

// testEnv writes fixtures and a plan file and returns an App configured to
// use them.
type testEnv struct {
	app      *App
	dir      string
	fixtures string
	plan     string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()

	fs := marketdata.FixtureSet{}
	fs.Add("AAPL", marketdata.Period3Mo, fixtureBars(70, 180))
	fs.Add("MSFT", marketdata.Period5D, fixtureBars(5, 400))
	fs.Add("MSFT", marketdata.Period1Mo, fixtureBars(22, 400))
	data, err := json.Marshal(fs)
	if err != nil {
		t.Fatal(err)
	}
	fixtures := filepath.Join(dir, "fixtures.json")
	if err := os.WriteFile(fixtures, data, 0644); err != nil {
		t.Fatal(err)
	}

	plan := filepath.Join(dir, "plan.yaml")
	if err := os.WriteFile(plan, []byte(testPlan), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default(dir)
	app := &App{Config: cfg, Logger: zerolog.Nop(), Metrics: metrics.NewMetrics()}
	t.Cleanup(func() { app.Close() })

	return &testEnv{app: app, dir: dir, fixtures: fixtures, plan: plan}
}

func (e *testEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(e.app)
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

type fakePlanner struct {
	plan    engine.Plan
	prompts []string
}

func (f *fakePlanner) Plan(ctx context.Context, prompt string) (engine.Plan, error) {
	f.prompts = append(f.prompts, prompt)
	return f.plan, nil
}

func TestAnalyze_PlanFileArchivesReport(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "analyze", "--plan", env.plan, "--replay", env.fixtures, "--json")
	if err != nil {
		t.Fatalf("analyze error = %v\n%s", err, out)
	}

	var run analysisRun
	if err := json.Unmarshal([]byte(out), &run); err != nil {
		t.Fatalf("decoding output: %v\n%s", err, out)
	}
	if run.RunID == "" || !run.Saved {
		t.Fatalf("run = %+v", run)
	}
	if run.Report == nil || !run.Report.OK() {
		t.Fatalf("report = %+v", run.Report)
	}

	out, err = env.run(t, "reports", "list", "--json")
	if err != nil {
		t.Fatalf("reports list error = %v", err)
	}
	var records []store.ReportRecord
	if err := json.Unmarshal([]byte(out), &records); err != nil {
		t.Fatalf("decoding list: %v\n%s", err, out)
	}
	if len(records) != 1 || records[0].ID != run.RunID || records[0].Source != SourcePlan || records[0].Succeeded != 4 {
		t.Fatalf("records = %+v", records)
	}

	out, err = env.run(t, "reports", "show", run.RunID, "--json")
	if err != nil {
		t.Fatalf("reports show error = %v", err)
	}
	var shown analysisRun
	if err := json.Unmarshal([]byte(out), &shown); err != nil {
		t.Fatalf("decoding show: %v\n%s", err, out)
	}
	rsi, ok := shown.Report.Get("rsi")
	if !ok {
		t.Fatal("archived report lost step rsi")
	}
	if _, ok := rsi.Indicator(); !ok {
		t.Errorf("archived rsi payload = %T, want indicator result", rsi.Payload)
	}
	fetch, _ := shown.Report.Get(engine.Alias("fetch_stock_data"))
	if s, ok := fetch.Series(); !ok || s.Len() != 70 {
		t.Errorf("archived fetch payload = %T", fetch.Payload)
	}
}

func TestAnalyze_PromptTextOutput(t *testing.T) {
	env := newTestEnv(t)
	plan, err := planner.LoadFile(env.plan)
	if err != nil {
		t.Fatal(err)
	}
	fp := &fakePlanner{plan: plan}
	env.app.Planner = fp

	out, err := env.run(t, "analyze", "RSI", "and", "MACD", "for", "AAPL", "--replay", env.fixtures, "--no-save")
	if err != nil {
		t.Fatalf("analyze error = %v\n%s", err, out)
	}
	if len(fp.prompts) != 1 || fp.prompts[0] != "RSI and MACD for AAPL" {
		t.Errorf("prompts = %q", fp.prompts)
	}

	for _, want := range []string{
		"Analysis: RSI and MACD for AAPL",
		"Three months of AAPL",
		"AAPL  70 bars over 3mo",
		"RSI_14",
		"MACD_12_26_9",
		"signal line",
		"4 succeeded, 0 failed, 0 skipped",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Saved as") {
		t.Errorf("--no-save should not archive:\n%s", out)
	}
}

func TestAnalyze_DryRun(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "analyze", "--plan", env.plan, "--dry-run")
	if err != nil {
		t.Fatalf("analyze error = %v", err)
	}
	if !strings.Contains(out, "Plan (4 steps)") || !strings.Contains(out, "calculate_macd") {
		t.Errorf("output = %s", out)
	}

	out, err = env.run(t, "reports", "list", "--json")
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out) != "[]" {
		t.Errorf("dry run archived a report: %s", out)
	}
}

func TestAnalyze_Errors(t *testing.T) {
	env := newTestEnv(t)

	if _, err := env.run(t, "analyze"); err == nil {
		t.Error("analyze without prompt or plan should fail")
	}

	_, err := env.run(t, "analyze", "RSI for AAPL")
	if !errors.Is(err, errors.ErrConfigInvalid) {
		t.Errorf("analyze without an OpenAI key error = %v, want ErrConfigInvalid", err)
	}

	bad := filepath.Join(env.dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("steps:\n  - id: a\n    tool: calculate_vwap\n"), 0644); err != nil {
		t.Fatal(err)
	}
	_, err = env.run(t, "analyze", "--plan", bad, "--replay", env.fixtures)
	if !errors.Is(err, errors.ErrUnknownTool) {
		t.Errorf("unknown tool error = %v", err)
	}
}

func TestAnalyze_MetricsTextfile(t *testing.T) {
	env := newTestEnv(t)
	path := filepath.Join(env.dir, "metrics", "run.prom")

	if _, err := env.run(t, "analyze", "--plan", env.plan, "--replay", env.fixtures, "--no-save", "--metrics-out", path); err != nil {
		t.Fatalf("analyze error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("metrics file: %v", err)
	}
	if !strings.Contains(string(data), "analyst_steps_total") || !strings.Contains(string(data), `outcome="ok"`) {
		t.Errorf("metrics = %s", data)
	}
}

func TestFetch_Escalates(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "fetch", "msft", "--period", "5d", "--min-bars", "10", "--replay", env.fixtures, "--json")
	if err != nil {
		t.Fatalf("fetch error = %v", err)
	}
	var series models.PriceSeries
	if err := json.Unmarshal([]byte(out), &series); err != nil {
		t.Fatalf("decoding: %v\n%s", err, out)
	}
	if series.Ticker != "MSFT" || series.Period != "1mo" || series.RequestedPeriod != "5d" || series.Len() != 22 {
		t.Errorf("series = %s/%s/%s with %d bars", series.Ticker, series.RequestedPeriod, series.Period, series.Len())
	}

	out, err = env.run(t, "fetch", "MSFT", "--period", "5d", "--min-bars", "10", "--replay", env.fixtures, "--last", "3")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Period 5d returned too few bars; used 1mo") {
		t.Errorf("output = %s", out)
	}
	if n := strings.Count(out, "2024-"); n != 3 {
		t.Errorf("printed %d rows, want 3:\n%s", n, out)
	}
}

func TestWatcher_RunArchives(t *testing.T) {
	env := newTestEnv(t)
	plan, err := planner.LoadFile(env.plan)
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	w := &watcher{
		app:    env.app,
		output: &Output{writer: &buf},
		req: analysisRequest{
			Plan:     &plan,
			Source:   SourceWatch,
			Provider: providerOptions{ReplayPath: env.fixtures},
			Save:     true,
		},
	}
	w.run(context.Background())
	w.run(context.Background())

	if w.runs != 2 {
		t.Errorf("runs = %d", w.runs)
	}
	ds, err := env.app.Store()
	if err != nil {
		t.Fatal(err)
	}
	records, err := ds.ListReports(context.Background(), store.ReportFilter{Source: SourceWatch})
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 || records[0].ID == records[1].ID {
		t.Errorf("records = %+v", records)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w.run(ctx)
	if w.runs != 2 {
		t.Errorf("cancelled watch should not run, runs = %d", w.runs)
	}
}

func TestToolsAndPeriods(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "tools")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"fetch_stock_data", "calculate_bollinger_bands", "std_dev"} {
		if !strings.Contains(out, want) {
			t.Errorf("tools output missing %q", want)
		}
	}

	out, err = env.run(t, "periods", "--json")
	if err != nil {
		t.Fatal(err)
	}
	var periods map[string]string
	if err := json.Unmarshal([]byte(out), &periods); err != nil {
		t.Fatal(err)
	}
	if periods["ytd"] != "Year to date" || len(periods) != len(marketdata.StandardPeriods) {
		t.Errorf("periods = %v", periods)
	}
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) { return 0, errors.New("stdout closed") }

func TestWatcher_LogsJSONWriteFailure(t *testing.T) {
	env := newTestEnv(t)
	var logs bytes.Buffer
	env.app.Logger = zerolog.New(&logs)

	plan, err := planner.LoadFile(env.plan)
	if err != nil {
		t.Fatal(err)
	}
	w := &watcher{
		app:    env.app,
		output: &Output{writer: failingWriter{}, jsonMode: true},
		req: analysisRequest{
			Plan:     &plan,
			Source:   SourceWatch,
			Provider: providerOptions{ReplayPath: env.fixtures},
		},
	}
	w.run(context.Background())

	if w.runs != 1 {
		t.Errorf("runs = %d", w.runs)
	}
	if !strings.Contains(logs.String(), "Failed to write watch report") || !strings.Contains(logs.String(), "stdout closed") {
		t.Errorf("logs = %s", logs.String())
	}
}
