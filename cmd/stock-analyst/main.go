package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stock-analyst/internal/cli"
	"stock-analyst/internal/config"
	"stock-analyst/internal/logging"
	"stock-analyst/internal/tracing"
)

func main() {
	os.Exit(run())
}

func run() int {
	configDir := os.Getenv("STOCK_ANALYST_CONFIG_DIR")

	cfg, err := config.Load(configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	for _, path := range cfg.Created {
		fmt.Fprintf(os.Stderr, "Created %s\n", path)
	}

	logCfg := logging.DefaultLogConfig()
	logCfg.Level = cfg.Logging.Level
	logCfg.File = cfg.Logging.File
	if cfg.Logging.FilePath != "" {
		logCfg.FilePath = cfg.Logging.FilePath
	}
	logger := logging.NewLoggerWithConfig(logCfg)

	if err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		PrettyPrint: cfg.Tracing.PrettyPrint,
		Version:     cli.Version,
	}); err != nil {
		logger.Warn().Err(err).Msg("Tracing disabled")
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracing.Shutdown(ctx); err != nil {
			logger.Warn().Err(err).Msg("Failed to flush traces")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCmd(cfg, logger).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
