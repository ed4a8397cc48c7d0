package cli

import (
	"fmt"

	"stock-analyst/internal/config"
	"stock-analyst/internal/errors"
	"stock-analyst/internal/logging"
	"stock-analyst/internal/marketdata"
	"stock-analyst/internal/resilience"
	"stock-analyst/pkg/utils"
)

// providerOptions override the configured provider for one command.
type providerOptions struct {
	// ReplayPath serves bars from a fixture file instead of the network.
	ReplayPath string
	// Record keeps every provider response for Recorder.Save.
	Record bool
}

// buildProvider assembles the provider stack:
//
//	recorder -> cache -> circuit breaker -> polygon | yahoo | replay
//
// The cache and breaker are skipped for replay.
func (app *App) buildProvider(opts providerOptions) (marketdata.Provider, *marketdata.Recorder, error) {
	cfg := app.Config.Provider
	logger := logging.WithComponent(app.Logger, "marketdata")

	name := cfg.Name
	fixtures := cfg.FixturesPath
	if opts.ReplayPath != "" {
		name = config.ProviderReplay
		fixtures = opts.ReplayPath
	}

	var base marketdata.Provider
	switch name {
	case config.ProviderPolygon:
		if !app.Config.HasPolygonKey() {
			return nil, nil, errors.Wrap(errors.ErrProviderUnavailable,
				"polygon API key is not set (POLYGON_API_KEY), use --replay or provider.name = \"yahoo\"")
		}
		base = marketdata.NewPolygonProvider(app.Config.Credentials.Polygon.APIKey, cfg.PolygonBaseURL, cfg.Timeout, logger)
	case config.ProviderYahoo:
		base = marketdata.NewYahooProvider(cfg.YahooBaseURL, cfg.Timeout, logger)
	case config.ProviderReplay:
		set, err := marketdata.LoadFixtures(fixtures)
		if err != nil {
			return nil, nil, err
		}
		base = marketdata.NewReplay(set)
	default:
		return nil, nil, errors.Wrapf(errors.ErrConfigInvalid, "unknown provider %q", name)
	}

	provider := base
	if name != config.ProviderReplay {
		if cfg.Breaker.Enabled {
			provider = marketdata.NewGuardedProvider(provider, resilience.CircuitBreakerConfig{
				FailureThreshold: cfg.Breaker.FailureThreshold,
				SuccessThreshold: 1,
				Timeout:          cfg.Breaker.ResetTimeout,
			}, logger, app.Metrics)
		}

		ds, err := app.Store()
		if err != nil {
			logger.Warn().Err(err).Msg("Bar cache unavailable, fetching directly")
		} else if ds != nil {
			provider = marketdata.NewCachingProvider(provider, ds, app.Config.Cache.TTL, logger, app.Metrics)
		}
	}

	var recorder *marketdata.Recorder
	if opts.Record {
		recorder = marketdata.NewRecorder(provider)
		provider = recorder
	}

	logger.Debug().Str("provider", name).Bool("record", opts.Record).Msg("Provider ready")
	return provider, recorder, nil
}

// fetcher wraps the provider stack in the escalating fetcher.
func (app *App) fetcher(opts providerOptions) (*marketdata.Fetcher, *marketdata.Recorder, error) {
	provider, recorder, err := app.buildProvider(opts)
	if err != nil {
		return nil, nil, err
	}
	f := marketdata.NewFetcher(provider,
		marketdata.WithLogger(logging.WithComponent(app.Logger, "fetcher")),
		marketdata.WithMetrics(app.Metrics),
	)
	return f, recorder, nil
}

// retryConfig builds the planner retry policy from the configuration.
func (app *App) retryConfig() utils.RetryConfig {
	rc := utils.DefaultRetryConfig()
	if app.Config.Planner.MaxAttempts > 0 {
		rc.MaxAttempts = app.Config.Planner.MaxAttempts
	}
	return rc
}

// saveRecording writes recorded fixtures when recording was requested.
func saveRecording(recorder *marketdata.Recorder, path string) error {
	if recorder == nil {
		return nil
	}
	if err := recorder.Save(path); err != nil {
		return fmt.Errorf("saving fixtures: %w", err)
	}
	return nil
}
