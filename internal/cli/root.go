package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"stock-analyst/internal/config"
	"stock-analyst/internal/logging"
	"stock-analyst/internal/metrics"
	"stock-analyst/internal/planner"
	"stock-analyst/internal/store"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2024-06-01"
)

// App holds the application dependencies.
type App struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Metrics *metrics.Metrics

	// Planner turns prompts into plans. Built from the OpenAI settings on
	// first use when nil.
	Planner planner.Planner

	storeOnce sync.Once
	store     store.DataStore
	storeErr  error
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	return newRootCmd(&App{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics.NewMetrics(),
	})
}

func newRootCmd(app *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "stock-analyst",
		Short: "Stock Analyst - natural-language technical analysis",
		Long: `Stock Analyst turns a request such as "RSI and MACD for AAPL over 3 months"
into an analysis plan, fetches daily price data and computes technical
indicators: RSI, moving averages, Bollinger Bands, MACD and average price.

Plans come from an OpenAI model or from a JSON/YAML plan file.

Use 'stock-analyst examples' to see sample requests.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return app.Close()
		},
	}

	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.PersistentFlags().Bool("no-color", !app.Config.UI.ColorEnabled, "disable colored output")

	addCoreCommands(rootCmd, app)
	addAnalysisCommands(rootCmd, app)
	addDataCommands(rootCmd, app)
	addReferenceCommands(rootCmd, app)

	return rootCmd
}

// addCoreCommands adds core utility commands.
func addCoreCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
}

// Store opens the SQLite cache and report archive on first use. It returns
// nil when caching is disabled.
func (app *App) Store() (store.DataStore, error) {
	if !app.Config.Cache.Enabled {
		return nil, nil
	}
	app.storeOnce.Do(func() {
		if err := os.MkdirAll(filepath.Dir(app.Config.Cache.Path), 0755); err != nil {
			app.storeErr = fmt.Errorf("creating data directory: %w", err)
			return
		}
		s, err := store.NewSQLiteStore(app.Config.Cache.Path)
		if err != nil {
			app.storeErr = fmt.Errorf("opening store: %w", err)
			return
		}
		app.store = s
		app.Logger.Debug().Str("path", app.Config.Cache.Path).Msg("SQLite store initialized")
	})
	return app.store, app.storeErr
}

// Close releases the store if it was opened. The next Store call reopens it.
func (app *App) Close() error {
	if app.store == nil {
		return nil
	}
	err := app.store.Close()
	app.store = nil
	app.storeErr = nil
	app.storeOnce = sync.Once{}
	return err
}

func (app *App) planner() (planner.Planner, error) {
	if app.Planner != nil {
		return app.Planner, nil
	}
	p, err := planner.NewOpenAIPlanner(planner.OpenAIConfig{
		APIKey:    app.Config.Credentials.OpenAI.APIKey,
		Model:     app.Config.Planner.Model,
		BaseURL:   app.Config.Planner.BaseURL,
		MaxTokens: app.Config.Planner.MaxTokens,
		Retry:     app.retryConfig(),
	}, logging.WithComponent(app.Logger, "planner"))
	if err != nil {
		return nil, fmt.Errorf("%w (set OPENAI_API_KEY or use --plan)", err)
	}
	app.Planner = p
	app.Logger.Debug().Str("model", app.Config.Planner.Model).Msg("OpenAI planner initialized")
	return p, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			} else {
				output.Printf("Stock Analyst v%s\n", Version)
				output.Dim("Build date: %s", BuildDate)
			}
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config)
			}
			return showConfig(output, app.Config)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{"path": app.Config.Dir})
			} else {
				output.Println(app.Config.Dir)
			}
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration files",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				output.JSON(map[string]bool{"valid": true})
			} else {
				output.Success("✓ Configuration is valid")
			}
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) error {
	output.Bold("Market Data")
	output.Printf("  Provider:        %s\n", cfg.Provider.Name)
	output.Printf("  Timeout:         %s\n", cfg.Provider.Timeout)
	output.Printf("  Circuit Breaker: %v (threshold %d, reset %s)\n",
		cfg.Provider.Breaker.Enabled, cfg.Provider.Breaker.FailureThreshold, cfg.Provider.Breaker.ResetTimeout)
	output.Printf("  Polygon Key:     %s\n", configured(cfg.HasPolygonKey()))
	if cfg.Provider.FixturesPath != "" {
		output.Printf("  Fixtures:        %s\n", cfg.Provider.FixturesPath)
	}
	output.Println()

	output.Bold("Cache")
	output.Printf("  Enabled:         %v\n", cfg.Cache.Enabled)
	output.Printf("  Path:            %s\n", cfg.Cache.Path)
	output.Printf("  TTL:             %s\n", cfg.Cache.TTL)
	output.Println()

	output.Bold("Engine")
	output.Printf("  Workers:         %d\n", cfg.Engine.Workers)
	output.Printf("  Timeout:         %s\n", cfg.Engine.Timeout)
	output.Println()

	output.Bold("Planner")
	output.Printf("  Model:           %s\n", cfg.Planner.Model)
	output.Printf("  Max Tokens:      %d\n", cfg.Planner.MaxTokens)
	output.Printf("  Max Attempts:    %d\n", cfg.Planner.MaxAttempts)
	output.Printf("  OpenAI Key:      %s\n", configured(cfg.HasOpenAIKey()))
	output.Println()

	output.Bold("Observability")
	output.Printf("  Log Level:       %s\n", cfg.Logging.Level)
	output.Printf("  Log File:        %v\n", cfg.Logging.File)
	output.Printf("  Metrics:         %v\n", cfg.Metrics.Enabled)
	output.Printf("  Tracing:         %v\n", cfg.Tracing.Enabled)
	output.Printf("  Watch Schedule:  %s\n", cfg.Watch.Schedule)

	return nil
}

func configured(ok bool) string {
	if ok {
		return "configured"
	}
	return "not set"
}
