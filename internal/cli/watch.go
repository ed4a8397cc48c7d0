package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"stock-analyst/internal/logging"
)

func newWatchCmd(app *App) *cobra.Command {
	var (
		planPath   string
		schedule   string
		replayPath string
		runNow     bool
	)

	cmd := &cobra.Command{
		Use:   "watch [prompt]",
		Short: "Re-run an analysis on a cron schedule",
		Long: `Plan a request once and execute it on a schedule, archiving every
report. The schedule is a standard five-field cron expression and defaults
to watch.schedule from the configuration.`,
		Example: `  stock-analyst watch "RSI for AAPL and MSFT" --schedule "30 16 * * 1-5"
  stock-analyst watch --plan plans/portfolio.yaml --now`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			prompt := strings.TrimSpace(strings.Join(args, " "))
			if prompt == "" && planPath == "" {
				return fmt.Errorf("provide a prompt or --plan")
			}
			if schedule == "" {
				schedule = app.Config.Watch.Schedule
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			plan, err := app.resolvePlan(ctx, analysisRequest{Prompt: prompt, PlanPath: planPath})
			if err != nil {
				return err
			}

			w := &watcher{
				app:    app,
				output: output,
				req: analysisRequest{
					Plan:     &plan,
					Prompt:   prompt,
					Source:   SourceWatch,
					Provider: providerOptions{ReplayPath: replayPath},
					Save:     true,
				},
			}

			c := cron.New()
			if _, err := c.AddFunc(schedule, func() { w.run(ctx) }); err != nil {
				return fmt.Errorf("invalid schedule %q: %w", schedule, err)
			}

			output.Info("Watching %d steps on schedule %q (Ctrl+C to stop)", len(plan.Steps), schedule)
			if runNow {
				w.run(ctx)
			}

			c.Start()
			<-ctx.Done()
			<-c.Stop().Done()

			output.Info("Watch stopped after %d runs", w.runs)
			return nil
		},
	}

	cmd.Flags().StringVarP(&planPath, "plan", "p", "", "execute a plan file instead of planning the prompt")
	cmd.Flags().StringVar(&schedule, "schedule", "", "cron schedule (default from config)")
	cmd.Flags().StringVar(&replayPath, "replay", "", "serve price data from a fixture file")
	cmd.Flags().BoolVar(&runNow, "now", false, "run once immediately before waiting for the schedule")

	return cmd
}

// watcher executes a fixed plan on every tick. Ticks never overlap.
type watcher struct {
	app    *App
	output *Output
	req    analysisRequest

	mu   sync.Mutex
	runs int
}

func (w *watcher) run(ctx context.Context) {
	if !w.mu.TryLock() {
		w.app.Logger.Warn().Msg("Previous watch run still in progress, skipping tick")
		return
	}
	defer w.mu.Unlock()

	if ctx.Err() != nil {
		return
	}

	logger := logging.WithComponent(w.app.Logger, "watch")
	run, err := w.app.runAnalysis(ctx, w.req)
	w.runs++
	if err != nil {
		if isPlanError(err) {
			logger.Error().Err(err).Msg("Watched plan is invalid")
		} else {
			logger.Error().Err(err).Msg("Watch run failed")
		}
		w.output.Error("✗ Run %d failed: %v", w.runs, err)
		return
	}

	if err := w.app.exportMetrics(""); err != nil {
		logger.Warn().Err(err).Msg("Failed to write metrics")
	}

	if w.output.IsJSON() {
		if err := w.output.JSON(run); err != nil {
			logger.Warn().Err(err).Msg("Failed to write watch report")
		}
		return
	}
	renderRun(w.output, run, w.app.Config.UI.DateFormat)
	w.output.Println()
}
