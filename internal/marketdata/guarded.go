package marketdata

import (
	"context"

	"github.com/rs/zerolog"

	"stock-analyst/internal/errors"
	"stock-analyst/internal/metrics"
	"stock-analyst/internal/resilience"
)

var breakerStateValues = map[resilience.CircuitState]int{
	resilience.CircuitClosed:   0,
	resilience.CircuitOpen:     1,
	resilience.CircuitHalfOpen: 2,
}

// GuardedProvider fails fast with ErrProviderUnavailable while the provider's
// circuit breaker is open. It never retries.
type GuardedProvider struct {
	inner   Provider
	breaker *resilience.CircuitBreaker
}

// NewGuardedProvider wraps inner with a circuit breaker.
func NewGuardedProvider(inner Provider, cfg resilience.CircuitBreakerConfig, logger zerolog.Logger, m *metrics.Metrics) *GuardedProvider {
	cb := resilience.NewCircuitBreaker(inner.Name(), cfg)
	cb.OnStateChange = func(name string, from, to resilience.CircuitState) {
		logger.Warn().
			Str("provider", name).
			Str("from", string(from)).
			Str("to", string(to)).
			Msg("Provider circuit breaker state changed")
		m.SetBreakerState(name, breakerStateValues[to])
	}
	return &GuardedProvider{inner: inner, breaker: cb}
}

func (g *GuardedProvider) Name() string { return g.inner.Name() }

// Breaker exposes the underlying circuit breaker.
func (g *GuardedProvider) Breaker() *resilience.CircuitBreaker {
	return g.breaker
}

func (g *GuardedProvider) FetchBars(ctx context.Context, ticker string, period Period) ([]RawBar, error) {
	bars, err := resilience.ExecuteWithResult(ctx, g.breaker, func(ctx context.Context) ([]RawBar, error) {
		return g.inner.FetchBars(ctx, ticker, period)
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return nil, errors.Wrapf(errors.ErrProviderUnavailable, "%s", g.inner.Name())
	}
	return bars, err
}
