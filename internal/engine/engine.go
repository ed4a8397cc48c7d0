package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"stock-analyst/internal/analysis/indicators"
	"stock-analyst/internal/errors"
	"stock-analyst/internal/logging"
	"stock-analyst/internal/marketdata"
	"stock-analyst/internal/metrics"
	"stock-analyst/internal/models"
	"stock-analyst/internal/security"
	"stock-analyst/internal/tools"
	"stock-analyst/internal/tracing"
)

// Engine validates and executes plans.
type Engine struct {
	fetcher *marketdata.Fetcher
	logger  zerolog.Logger
	metrics *metrics.Metrics
	workers int
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithMetrics records step and plan metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithWorkers bounds the number of steps run concurrently within one
// dependency level. Values below 2 run steps sequentially.
func WithWorkers(n int) Option {
	return func(e *Engine) { e.workers = n }
}

// New creates an engine that fetches market data through fetcher.
func New(fetcher *marketdata.Fetcher, opts ...Option) *Engine {
	e := &Engine{
		fetcher: fetcher,
		logger:  zerolog.Nop(),
		workers: 1,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type runIDKey struct{}

// WithRunID attaches a run id to ctx. Execute generates one when absent.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey{}, id)
}

// RunIDFromContext returns the run id attached to ctx.
func RunIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(runIDKey{}).(string)
	return id, ok && id != ""
}

// Validate checks a plan without running it.
func Validate(plan Plan) error {
	_, err := buildGraph(plan)
	return err
}

// Execute validates plan and runs its steps in dependency order.
//
// The returned error is always a *errors.PlanValidationError; step failures
// are recorded in the report and never abort the remaining steps.
func (e *Engine) Execute(ctx context.Context, plan Plan) (*Report, error) {
	g, err := buildGraph(plan)
	if err != nil {
		e.metrics.ObservePlan("invalid")
		e.logger.Warn().Err(err).Int("steps", len(plan.Steps)).Msg("Plan rejected")
		return nil, err
	}

	runID, ok := RunIDFromContext(ctx)
	if !ok {
		runID = uuid.NewString()
		ctx = WithRunID(ctx, runID)
	}
	logger := logging.WithRunID(e.logger, runID)

	ctx, span := tracing.StartSpan(ctx, "engine.Execute", trace.WithAttributes(
		attribute.String("run.id", runID),
		attribute.Int("plan.steps", len(plan.Steps)),
		attribute.Int("plan.levels", len(g.layers)),
	))
	defer span.End()

	logger.Info().
		Int("steps", len(plan.Steps)).
		Int("levels", len(g.layers)).
		Int("workers", e.workers).
		Msg("Executing plan")

	start := time.Now()
	report := newReport(g)
	minBars := g.fetchRequirements()
	for _, layer := range g.layers {
		e.runLayer(ctx, logger, g, report, minBars, layer)
	}

	summary := report.Summary()
	outcome := planOutcome(summary)
	e.metrics.ObservePlan(outcome)
	span.SetAttributes(
		attribute.String("plan.outcome", outcome),
		attribute.Int("plan.failed", summary.Failed),
		attribute.Int("plan.skipped", summary.Skipped),
	)

	logger.Info().
		Str("outcome", outcome).
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Int("skipped", summary.Skipped).
		Dur("duration", time.Since(start)).
		Msg("Plan executed")

	return report, nil
}

func planOutcome(s Summary) string {
	switch {
	case s.Succeeded == s.Total:
		return "ok"
	case s.Succeeded == 0:
		return "failed"
	default:
		return "partial"
	}
}

// runLayer runs one dependency level. Every step in the layer depends only on
// steps of earlier layers, which have already been recorded.
func (e *Engine) runLayer(ctx context.Context, logger zerolog.Logger, g *graph, report *Report, minBars map[string]int, layer []string) {
	if e.workers < 2 || len(layer) == 1 {
		for _, id := range layer {
			report.record(e.runStep(ctx, logger, g, report, minBars[id], id))
		}
		return
	}

	p := pool.New().WithMaxGoroutines(e.workers)
	for _, id := range layer {
		id := id
		p.Go(func() {
			report.record(e.runStep(ctx, logger, g, report, minBars[id], id))
		})
	}
	p.Wait()
}

func (e *Engine) runStep(ctx context.Context, logger zerolog.Logger, g *graph, report *Report, minBars int, id string) (res StepResult) {
	step := g.steps[id]
	spec := g.specs[id]
	res = StepResult{StepID: id, Tool: step.Tool, Description: step.Description}
	logger = logging.WithStep(logger, id, string(step.Tool))

	ctx, span := tracing.StartSpan(ctx, "engine.step", trace.WithAttributes(
		attribute.String("step.id", id),
		attribute.String("step.tool", string(step.Tool)),
	))
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			res.Status = StatusFailed
			res.Payload = nil
			res.Warning = ""
			res.Error = &StepError{Kind: KindExecution, Message: fmt.Sprintf("panic: %v", r)}
		}

		d := time.Since(start)
		span.SetAttributes(attribute.String("step.status", string(res.Status)))
		var stepErr error
		if res.Error != nil {
			stepErr = errors.New(res.Error.Message)
			if res.Status == StatusFailed {
				span.SetStatus(codes.Error, res.Error.Message)
			}
		}
		span.End()

		e.metrics.ObserveStep(string(step.Tool), string(res.Status), d)
		logging.LogStep(logger, id, string(step.Tool), string(res.Status), d, stepErr)
	}()

	if cause, skipped := failedAncestor(g, report, id); skipped {
		res.Status = StatusSkipped
		res.Error = &StepError{
			Message: fmt.Sprintf("skipped because step %q failed", cause),
			Cause:   cause,
		}
		return res
	}

	if err := ctx.Err(); err != nil {
		return failed(res, errors.Wrap(err, "plan cancelled"))
	}

	params, err := bindParams(g, report, step)
	if err != nil {
		return failed(res, err)
	}
	args, err := spec.Resolve(params)
	if err != nil {
		return failed(res, err)
	}

	payload, warning, err := e.dispatch(ctx, logger, step.Tool, args, minBars)
	if err != nil {
		return failed(res, err)
	}

	res.Status = StatusSuccess
	res.Payload = payload
	res.Warning = warning
	return res
}

func failed(res StepResult, err error) StepResult {
	res.Status = StatusFailed
	// Reports are archived and printed; messages must not carry credentials.
	res.Error = &StepError{Kind: classify(err), Message: security.Redact(err.Error())}
	return res
}

// classify maps an error to the report's error kind.
func classify(err error) ErrorKind {
	var pe *errors.ParameterError
	switch {
	case errors.As(err, &pe),
		errors.Is(err, indicators.ErrInvalidPeriod),
		errors.Is(err, indicators.ErrInvalidMultiplier):
		return KindParameter
	case errors.Is(err, errors.ErrDataFetch):
		return KindDataFetch
	default:
		return KindExecution
	}
}

// failedAncestor returns the id of the failed step that prevents id from
// running. Skipped dependencies pass on their own cause.
func failedAncestor(g *graph, report *Report, id string) (string, bool) {
	for _, dep := range g.deps[id] {
		res, ok := report.lookup(dep)
		if !ok {
			return dep, true
		}
		switch res.Status {
		case StatusFailed:
			return dep, true
		case StatusSkipped:
			if res.Error != nil && res.Error.Cause != "" {
				return res.Error.Cause, true
			}
			return dep, true
		}
	}
	return "", false
}

// bindParams substitutes referenced outputs into the step's parameters.
func bindParams(g *graph, report *Report, step Step) (map[string]interface{}, error) {
	params := make(map[string]interface{}, len(step.Params))
	for name, v := range step.Params {
		if v.Ref == nil {
			params[name] = v.Literal
			continue
		}
		ref := g.refs[step.ID][name]
		dep, _ := report.lookup(ref.Step)
		val, ok := outputValue(dep, ref.Field)
		if !ok {
			return nil, errors.NewParameterError(string(step.Tool), name, ref.String(),
				"referenced value is not available")
		}
		params[name] = val
	}
	return params, nil
}

// outputValue extracts a declared output field from a successful result.
func outputValue(res StepResult, field string) (interface{}, bool) {
	switch p := res.Payload.(type) {
	case models.PriceSeries:
		switch field {
		case tools.FieldSeries:
			return p, true
		case tools.FieldTicker:
			return p.Ticker, true
		case tools.FieldCount:
			return p.Len(), true
		case tools.FieldLatestClose:
			bar, ok := p.Latest()
			return bar.Close, ok
		}
	case indicators.Result:
		switch field {
		case tools.FieldResult:
			return p, true
		case tools.FieldLatest:
			pt, ok := p.Latest()
			return pt.Value, ok
		}
	}
	return nil, false
}

// dispatch runs one tool with resolved arguments.
func (e *Engine) dispatch(ctx context.Context, logger zerolog.Logger, tool tools.Name, args tools.Args, minBars int) (interface{}, string, error) {
	if tool == tools.FetchStockData {
		need := args.Int("min_bars")
		if minBars > need {
			need = minBars
		}
		series, err := e.fetch(ctx, args.String("ticker"), args.Period("period"), need)
		if err != nil {
			return nil, "", err
		}
		return series, seriesWarning(series), nil
	}

	ind, err := buildIndicator(tool, args)
	if err != nil {
		return nil, "", err
	}

	var fetchWarning string
	series, ok := args.Series("series")
	if !ok {
		series, err = e.fetch(ctx, args.String("ticker"), args.Period("data_period"), ind.MinLength())
		if err != nil {
			return nil, "", err
		}
		fetchWarning = seriesWarning(series)
	}

	result, err := ind.Calculate(series)
	if err != nil {
		return nil, "", err
	}
	if result.Warning != "" {
		logger.Warn().Str("indicator", result.Indicator).Msg(result.Warning)
	}
	return result, joinWarnings(fetchWarning, result.Warning), nil
}

func (e *Engine) fetch(ctx context.Context, ticker string, period marketdata.Period, minBars int) (models.PriceSeries, error) {
	if e.fetcher == nil {
		return models.PriceSeries{}, errors.NewDataFetchError(ticker, string(period),
			errors.Wrap(errors.ErrProviderUnavailable, "no market data provider configured"))
	}
	series, err := e.fetcher.Fetch(ctx, ticker, period, minBars)
	if err != nil {
		return models.PriceSeries{}, errors.NewDataFetchError(ticker, string(period), err)
	}
	return series, nil
}

// buildIndicator maps an indicator tool and its arguments to a calculation.
func buildIndicator(tool tools.Name, args tools.Args) (indicators.Indicator, error) {
	switch tool {
	case tools.CalculateRSI:
		return indicators.NewRSI(args.Int("period")), nil
	case tools.CalculateMovingAverage:
		return indicators.NewSMA(args.Int("period")), nil
	case tools.CalculateBollingerBands:
		return indicators.NewBollingerBands(args.Int("period"), args.Float("std_dev")), nil
	case tools.CalculateMACD:
		return indicators.NewMACD(args.Int("fast_period"), args.Int("slow_period"), args.Int("signal_period")), nil
	case tools.CalculateAveragePrice:
		return indicators.NewAveragePrice(), nil
	}
	return nil, fmt.Errorf("no handler for tool %q", tool)
}

func seriesWarning(s models.PriceSeries) string {
	switch {
	case s.IsEmpty():
		return fmt.Sprintf("no data returned for %s over %s", s.Ticker, s.Period)
	case s.Escalated():
		return fmt.Sprintf("period %s returned too few bars; used %s", s.RequestedPeriod, s.Period)
	}
	return ""
}

func joinWarnings(warnings ...string) string {
	parts := make([]string, 0, len(warnings))
	for _, w := range warnings {
		if w != "" {
			parts = append(parts, w)
		}
	}
	return strings.Join(parts, "; ")
}

// fetchRequirements returns, per fetch step, the largest minimum length among
// indicator steps consuming its series. Only literal parameters are
// considered; referenced ones fall back to their defaults.
func (g *graph) fetchRequirements() map[string]int {
	req := make(map[string]int)
	for id, refs := range g.refs {
		spec := g.specs[id]
		if !spec.IsIndicator() {
			continue
		}
		for name, ref := range refs {
			if name != "series" || ref.Field != tools.FieldSeries || g.specs[ref.Step].IsIndicator() {
				continue
			}
			if n := literalMinLength(g.steps[id], spec); n > req[ref.Step] {
				req[ref.Step] = n
			}
		}
	}
	return req
}

func literalMinLength(step Step, spec tools.Spec) int {
	params := map[string]interface{}{}
	for name, v := range step.Params {
		if v.Ref == nil {
			params[name] = v.Literal
		}
	}
	params["series"] = models.PriceSeries{}

	args, err := spec.Resolve(params)
	if err != nil {
		return 0
	}
	ind, err := buildIndicator(step.Tool, args)
	if err != nil {
		return 0
	}
	return ind.MinLength()
}
