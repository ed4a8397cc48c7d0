package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"stock-analyst/internal/engine"
	"stock-analyst/internal/errors"
	"stock-analyst/internal/logging"
	"stock-analyst/internal/planner"
	"stock-analyst/internal/store"
	"stock-analyst/internal/tools"
)

// Report sources recorded in the archive.
const (
	SourcePrompt = "prompt"
	SourcePlan   = "plan"
	SourceWatch  = "watch"
)

// addAnalysisCommands adds the analysis commands.
func addAnalysisCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newAnalyzeCmd(app))
	rootCmd.AddCommand(newWatchCmd(app))
}

// analysisRequest describes one analysis run.
type analysisRequest struct {
	// Plan skips planning when set.
	Plan       *engine.Plan
	Prompt     string
	PlanPath   string
	Source     string
	Provider   providerOptions
	RecordPath string
	Workers    int
	Timeout    time.Duration
	Save       bool
	DryRun     bool
}

// analysisRun is the outcome of one analysis.
type analysisRun struct {
	RunID  string         `json:"run_id"`
	Prompt string         `json:"prompt,omitempty"`
	Plan   engine.Plan    `json:"plan"`
	Report *engine.Report `json:"report,omitempty"`
	Saved  bool           `json:"saved"`
}

func newAnalyzeCmd(app *App) *cobra.Command {
	var (
		planPath   string
		replayPath string
		recordPath string
		metricsOut string
		workers    int
		timeout    time.Duration
		noSave     bool
		dryRun     bool
	)

	cmd := &cobra.Command{
		Use:   "analyze [prompt]",
		Short: "Analyze stocks from a natural-language request or a plan file",
		Long: `Turn a request into an analysis plan and execute it.

The plan comes from the OpenAI planner, or from --plan which accepts a JSON
or YAML file holding either {steps: [...]} or a bare action list.`,
		Example: `  stock-analyst analyze "Show me the RSI and MACD for AAPL over 3 months"
  stock-analyst analyze --plan plans/aapl.yaml
  stock-analyst analyze --plan plans/aapl.yaml --replay fixtures/aapl.json
  stock-analyst analyze "Bollinger Bands for TSLA" --record fixtures/tsla.json`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			prompt := strings.TrimSpace(strings.Join(args, " "))
			if prompt == "" && planPath == "" {
				return fmt.Errorf("provide a prompt or --plan")
			}

			req := analysisRequest{
				Prompt:     prompt,
				PlanPath:   planPath,
				Source:     SourcePrompt,
				Provider:   providerOptions{ReplayPath: replayPath, Record: recordPath != ""},
				RecordPath: recordPath,
				Workers:    workers,
				Timeout:    timeout,
				Save:       !noSave,
				DryRun:     dryRun,
			}
			if planPath != "" {
				req.Source = SourcePlan
			}

			run, err := app.runAnalysis(cmd.Context(), req)
			if err != nil {
				return err
			}

			if err := app.exportMetrics(metricsOut); err != nil {
				app.Logger.Warn().Err(err).Msg("Failed to write metrics")
			}

			if output.IsJSON() {
				return output.JSON(run)
			}
			if dryRun {
				return renderPlan(output, run.Plan)
			}
			renderRun(output, run, app.Config.UI.DateFormat)
			return nil
		},
	}

	cmd.Flags().StringVarP(&planPath, "plan", "p", "", "execute a plan file instead of planning the prompt")
	cmd.Flags().StringVar(&replayPath, "replay", "", "serve price data from a fixture file")
	cmd.Flags().StringVar(&recordPath, "record", "", "record fetched price data to a fixture file")
	cmd.Flags().StringVar(&metricsOut, "metrics-out", "", "write Prometheus metrics to this textfile")
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "concurrent steps per level (default from config)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "abort the analysis after this long (default from config)")
	cmd.Flags().BoolVar(&noSave, "no-save", false, "do not archive the report")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the plan without executing it")

	return cmd
}

// runAnalysis plans and executes one request, then archives the report.
func (app *App) runAnalysis(ctx context.Context, req analysisRequest) (*analysisRun, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	timeout := req.Timeout
	if timeout == 0 {
		timeout = app.Config.Engine.Timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	run := &analysisRun{RunID: uuid.NewString(), Prompt: req.Prompt}
	ctx = engine.WithRunID(ctx, run.RunID)
	logger := logging.WithRunID(app.Logger, run.RunID)

	plan, err := app.resolvePlan(ctx, req)
	if err != nil {
		return nil, err
	}
	run.Plan = plan
	logger.Info().Int("steps", len(plan.Steps)).Str("source", req.Source).Msg("Plan ready")

	if req.DryRun {
		if err := engine.Validate(plan); err != nil {
			return nil, err
		}
		return run, nil
	}

	fetcher, recorder, err := app.fetcher(req.Provider)
	if err != nil {
		return nil, err
	}

	workers := req.Workers
	if workers <= 0 {
		workers = app.Config.Engine.Workers
	}
	eng := engine.New(fetcher,
		engine.WithLogger(logging.WithComponent(app.Logger, "engine")),
		engine.WithMetrics(app.Metrics),
		engine.WithWorkers(workers),
	)

	report, err := eng.Execute(ctx, plan)
	if err != nil {
		return nil, err
	}
	run.Report = report

	if err := saveRecording(recorder, req.RecordPath); err != nil {
		return nil, err
	}

	if req.Save {
		saved, err := app.archive(ctx, run, req.Source)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to archive report")
		}
		run.Saved = saved
	}

	return run, nil
}

func (app *App) resolvePlan(ctx context.Context, req analysisRequest) (engine.Plan, error) {
	if req.Plan != nil {
		return *req.Plan, nil
	}
	if req.PlanPath != "" {
		return planner.LoadFile(req.PlanPath)
	}
	p, err := app.planner()
	if err != nil {
		return engine.Plan{}, err
	}
	return p.Plan(ctx, req.Prompt)
}

// archivedRun is the payload stored with a report record.
type archivedRun struct {
	Plan   engine.Plan    `json:"plan"`
	Report *engine.Report `json:"report"`
}

// archive stores the run in the report archive. It returns false when the
// archive is disabled.
func (app *App) archive(ctx context.Context, run *analysisRun, source string) (bool, error) {
	ds, err := app.Store()
	if err != nil || ds == nil {
		return false, err
	}

	payload, err := json.Marshal(archivedRun{Plan: run.Plan, Report: run.Report})
	if err != nil {
		return false, fmt.Errorf("encoding report: %w", err)
	}

	summary := run.Report.Summary()
	rec := &store.ReportRecord{
		ID:        run.RunID,
		Prompt:    run.Prompt,
		Source:    source,
		Steps:     summary.Total,
		Succeeded: summary.Succeeded,
		Failed:    summary.Failed,
		Skipped:   summary.Skipped,
		Payload:   payload,
	}
	if err := ds.SaveReport(ctx, rec); err != nil {
		return false, err
	}
	return true, nil
}

// exportMetrics writes the metrics textfile to path, or to the configured
// path when metrics are enabled.
func (app *App) exportMetrics(path string) error {
	if path == "" && app.Config.Metrics.Enabled {
		path = app.Config.Metrics.TextfilePath
	}
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating metrics directory: %w", err)
	}
	return app.Metrics.WriteToTextfile(path)
}

// renderPlan prints the plan as YAML.
func renderPlan(output *Output, plan engine.Plan) error {
	data, err := planner.Encode(plan)
	if err != nil {
		return err
	}
	output.Bold("Plan (%d steps)", len(plan.Steps))
	output.Println(strings.TrimRight(string(data), "\n"))
	return nil
}

// renderRun prints a report step by step in execution order.
func renderRun(output *Output, run *analysisRun, dateFormat string) {
	if run.Prompt != "" {
		output.Bold("Analysis: %s", run.Prompt)
	} else {
		output.Bold("Analysis")
	}
	output.Dim("Run %s", run.RunID)
	output.Println()

	steps := make(map[string]engine.Step, len(run.Plan.Steps))
	for _, s := range run.Plan.Steps {
		steps[s.ID] = s
	}

	for _, res := range run.Report.Results() {
		step := steps[res.StepID]
		title := res.Description
		if title == "" {
			title = string(res.Tool)
		}
		output.Printf("%s  %s  %s\n", output.Cyan(res.StepID), title, output.Status(string(res.Status)))

		switch res.Status {
		case engine.StatusSuccess:
			for _, line := range describeResult(output, step, res, run.Report, dateFormat) {
				output.Printf("    %s\n", line)
			}
		case engine.StatusFailed:
			if res.Error == nil {
				break
			}
			output.Printf("    %s\n", output.Red(fmt.Sprintf("%s error: %s", res.Error.Kind, res.Error.Message)))
		case engine.StatusSkipped:
			if res.Error == nil {
				break
			}
			output.Printf("    %s\n", output.DimText(res.Error.Message))
		}
		if res.Warning != "" {
			output.Printf("    %s\n", output.Yellow("⚠ "+res.Warning))
		}
	}

	s := run.Report.Summary()
	output.Println()
	line := fmt.Sprintf("%d succeeded, %d failed, %d skipped", s.Succeeded, s.Failed, s.Skipped)
	switch {
	case s.Succeeded == s.Total:
		output.Success("✓ %s", line)
	case s.Succeeded == 0:
		output.Error("✗ %s", line)
	default:
		output.Warning("! %s", line)
	}
	if run.Saved {
		output.Dim("Saved as %s (stock-analyst reports show %s)", run.RunID, run.RunID)
	}
}

// describeResult renders the payload of a successful step.
func describeResult(output *Output, step engine.Step, res engine.StepResult, report *engine.Report, dateFormat string) []string {
	if series, ok := res.Series(); ok {
		if series.IsEmpty() {
			return []string{fmt.Sprintf("%s: no bars", series.Ticker)}
		}
		first, last := series.Bars[0], series.Bars[len(series.Bars)-1]
		change := 0.0
		if first.Close != 0 {
			change = (last.Close - first.Close) / first.Close * 100
		}
		changeText := FormatPercent(change)
		if change >= 0 {
			changeText = output.Green(changeText)
		} else {
			changeText = output.Red(changeText)
		}
		return []string{
			fmt.Sprintf("%s  %d bars over %s  %s to %s", series.Ticker, series.Len(), series.Period,
				FormatDate(first.Date, dateFormat), FormatDate(last.Date, dateFormat)),
			fmt.Sprintf("Latest close %s (%s)  volume %s", FormatPrice(last.Close), changeText, FormatCompact(float64(last.Volume))),
		}
	}

	ind, ok := res.Indicator()
	if !ok {
		return nil
	}
	latest, ok := ind.Latest()
	if !ok {
		return []string{fmt.Sprintf("%s: not enough data", ind.Indicator)}
	}

	lines := []string{fmt.Sprintf("%s %s on %s", ind.Indicator, FormatValue(latest.Value), FormatDate(latest.Date, dateFormat))}
	switch res.Tool {
	case tools.CalculateMACD:
		sig, _ := ind.LatestBand("signal")
		hist, _ := ind.LatestBand("histogram")
		lines = append(lines, fmt.Sprintf("Signal %s  Histogram %s", FormatValue(sig.Value), FormatValue(hist.Value)))
	case tools.CalculateBollingerBands:
		upper, _ := ind.LatestBand("upper")
		lower, _ := ind.LatestBand("lower")
		lines = append(lines, fmt.Sprintf("Upper %s  Lower %s", FormatValue(upper.Value), FormatValue(lower.Value)))
	}

	lastClose, hasClose := inputClose(step, report)
	if sig, ok := Interpret(res.Tool, ind, lastClose, hasClose); ok {
		lines = append(lines, output.Signal(sig))
	}
	return lines
}

// isPlanError reports whether err rejected the plan before any step ran.
func isPlanError(err error) bool {
	var pve *errors.PlanValidationError
	return errors.As(err, &pve) || errors.Is(err, errors.ErrPlanInvalid)
}
