package marketdata

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"stock-analyst/internal/metrics"
	"stock-analyst/internal/models"
)

// BarCache persists normalized bars per provider, ticker and period.
type BarCache interface {
	LoadBars(ctx context.Context, provider, ticker, period string, maxAge time.Duration) ([]models.PriceBar, bool, error)
	SaveBars(ctx context.Context, provider, ticker, period string, bars []models.PriceBar) error
}

// CachingProvider serves bars from a BarCache while they are younger than
// the TTL and refreshes them from the inner provider otherwise. Cache
// failures are logged and never fail a fetch. Empty responses are not cached.
type CachingProvider struct {
	inner   Provider
	cache   BarCache
	ttl     time.Duration
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// NewCachingProvider wraps inner with cache.
func NewCachingProvider(inner Provider, cache BarCache, ttl time.Duration, logger zerolog.Logger, m *metrics.Metrics) *CachingProvider {
	return &CachingProvider{
		inner:   inner,
		cache:   cache,
		ttl:     ttl,
		logger:  logger,
		metrics: m,
	}
}

func (c *CachingProvider) Name() string { return c.inner.Name() }

func (c *CachingProvider) FetchBars(ctx context.Context, ticker string, period Period) ([]RawBar, error) {
	ticker = NormalizeTicker(ticker)

	bars, ok, err := c.cache.LoadBars(ctx, c.inner.Name(), ticker, string(period), c.ttl)
	if err != nil {
		c.logger.Warn().Err(err).Str("ticker", ticker).Msg("Bar cache read failed")
	}
	c.metrics.ObserveCache(ok && err == nil)
	if ok && err == nil {
		c.logger.Debug().Str("ticker", ticker).Str("period", string(period)).Int("bars", len(bars)).Msg("Bar cache hit")
		return ToRawBars(bars), nil
	}

	raw, err := c.inner.FetchBars(ctx, ticker, period)
	if err != nil {
		return nil, err
	}

	series := Normalize(ticker, period, period, raw)
	if !series.IsEmpty() {
		if err := c.cache.SaveBars(ctx, c.inner.Name(), ticker, string(period), series.Bars); err != nil {
			c.logger.Warn().Err(err).Str("ticker", ticker).Msg("Bar cache write failed")
		}
	}
	return raw, nil
}
