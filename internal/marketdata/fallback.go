package marketdata

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"stock-analyst/internal/logging"
	"stock-analyst/internal/metrics"
	"stock-analyst/internal/models"
)

// escalations maps each short "recent" period to the next-longer one tried
// when it comes back empty or too short. Weekends and holidays make a literal
// one-day window frequently return nothing.
var escalations = map[Period]Period{
	Period1D: Period5D,
	Period5D: Period1Mo,
}

// NextPeriod returns the escalation target for p, if p is escalatable.
func NextPeriod(p Period) (Period, bool) {
	next, ok := escalations[p]
	return next, ok
}

// Fetcher wraps a Provider with one-step period escalation.
type Fetcher struct {
	provider Provider
	logger   zerolog.Logger
	metrics  *metrics.Metrics
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithLogger sets the fetcher logger.
func WithLogger(logger zerolog.Logger) FetcherOption {
	return func(f *Fetcher) { f.logger = logger }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) FetcherOption {
	return func(f *Fetcher) { f.metrics = m }
}

// NewFetcher creates a fallback fetcher over provider.
func NewFetcher(provider Provider, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		provider: provider,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch returns the canonical series for ticker over period. When the series
// has fewer than minBars bars and period is escalatable, the next-longer
// period is tried exactly once. The returned series' Period is the period
// actually used, and may still be short or empty.
//
// Provider errors are returned unchanged and never retried.
func (f *Fetcher) Fetch(ctx context.Context, ticker string, period Period, minBars int) (models.PriceSeries, error) {
	if minBars < 1 {
		minBars = 1
	}
	ticker = NormalizeTicker(ticker)

	series, err := f.fetchOnce(ctx, ticker, period, period)
	if err != nil {
		return models.PriceSeries{}, err
	}
	if series.Len() >= minBars {
		return series, nil
	}

	next, ok := NextPeriod(period)
	if !ok {
		return series, nil
	}

	f.logger.Info().
		Str("ticker", ticker).
		Str("from", string(period)).
		Str("to", string(next)).
		Int("bars", series.Len()).
		Int("min_bars", minBars).
		Msg("Escalating fetch period")
	f.metrics.ObserveEscalation(string(period), string(next))

	return f.fetchOnce(ctx, ticker, period, next)
}

func (f *Fetcher) fetchOnce(ctx context.Context, ticker string, requested, used Period) (models.PriceSeries, error) {
	start := time.Now()
	raw, err := f.provider.FetchBars(ctx, ticker, used)
	f.metrics.ObserveProvider(f.provider.Name(), time.Since(start), err)
	if err != nil {
		f.logger.Error().Err(err).
			Str("ticker", ticker).
			Str("period", string(used)).
			Str("provider", f.provider.Name()).
			Msg("Provider request failed")
		return models.PriceSeries{}, err
	}

	series := Normalize(ticker, requested, used, raw)
	logging.LogFetch(f.logger, ticker, string(requested), string(used), series.Len())
	return series, nil
}
