package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"stock-analyst/internal/errors"
	"stock-analyst/internal/marketdata"
	"stock-analyst/internal/store"
)

// addDataCommands adds market data, report archive and cache commands.
func addDataCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newFetchCmd(app))
	rootCmd.AddCommand(newReportsCmd(app))
	rootCmd.AddCommand(newCacheCmd(app))
}

func newFetchCmd(app *App) *cobra.Command {
	var (
		period     string
		minBars    int
		replayPath string
		last       int
	)

	cmd := &cobra.Command{
		Use:   "fetch TICKER",
		Short: "Fetch daily price bars for a ticker",
		Example: `  stock-analyst fetch AAPL
  stock-analyst fetch MSFT --period 3mo --min-bars 30`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			p, err := marketdata.ParsePeriod(period)
			if err != nil {
				return errors.Wrap(errors.ErrInvalidParameter, err.Error())
			}

			fetcher, _, err := app.fetcher(providerOptions{ReplayPath: replayPath})
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if app.Config.Provider.Timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, app.Config.Provider.Timeout)
				defer cancel()
			}

			series, err := fetcher.Fetch(ctx, args[0], p, minBars)
			if err != nil {
				return errors.NewDataFetchError(args[0], period, err)
			}

			if output.IsJSON() {
				return output.JSON(series)
			}

			if series.IsEmpty() {
				output.Warning("No data returned for %s over %s", series.Ticker, p.Description())
				return nil
			}
			output.Bold("%s  %d bars over %s", series.Ticker, series.Len(), series.Period)
			if series.Escalated() {
				output.Warning("Period %s returned too few bars; used %s", series.RequestedPeriod, series.Period)
			}
			output.Println()

			bars := series.Bars
			if last > 0 && len(bars) > last {
				bars = bars[len(bars)-last:]
			}
			rows := make([][]string, 0, len(bars))
			for _, b := range bars {
				rows = append(rows, []string{
					FormatDate(b.Date, app.Config.UI.DateFormat),
					FormatPrice(b.Open),
					FormatPrice(b.High),
					FormatPrice(b.Low),
					FormatPrice(b.Close),
					FormatCompact(float64(b.Volume)),
				})
			}
			output.Table([]string{"DATE", "OPEN", "HIGH", "LOW", "CLOSE", "VOLUME"}, rows)
			return nil
		},
	}

	cmd.Flags().StringVar(&period, "period", string(marketdata.Period1Mo), "lookback period")
	cmd.Flags().IntVar(&minBars, "min-bars", 1, "escalate to the next period when fewer bars are returned")
	cmd.Flags().StringVar(&replayPath, "replay", "", "serve price data from a fixture file")
	cmd.Flags().IntVar(&last, "last", 10, "number of most recent bars to print (0 = all)")

	return cmd
}

func newReportsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reports",
		Short: "Browse archived analysis reports",
	}

	var (
		source string
		days   int
		limit  int
	)
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List archived reports",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ds, err := app.requireStore()
			if err != nil {
				return err
			}

			filter := store.ReportFilter{Source: source, Limit: limit}
			if days > 0 {
				filter.StartDate = time.Now().AddDate(0, 0, -days)
			}
			records, err := ds.ListReports(cmd.Context(), filter)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				if records == nil {
					records = []store.ReportRecord{}
				}
				return output.JSON(records)
			}
			if len(records) == 0 {
				output.Info("No reports archived yet")
				return nil
			}

			rows := make([][]string, 0, len(records))
			for _, r := range records {
				rows = append(rows, []string{
					r.ID,
					r.CreatedAt.Local().Format("2006-01-02 15:04"),
					r.Source,
					fmt.Sprintf("%d/%d", r.Succeeded, r.Steps),
					truncate(r.Prompt, 48),
				})
			}
			output.Table([]string{"ID", "CREATED", "SOURCE", "OK", "PROMPT"}, rows)
			return nil
		},
	}
	listCmd.Flags().StringVar(&source, "source", "", "filter by source (prompt, plan, watch)")
	listCmd.Flags().IntVar(&days, "days", 0, "only reports from the last N days")
	listCmd.Flags().IntVar(&limit, "limit", 20, "maximum number of reports")

	showCmd := &cobra.Command{
		Use:   "show ID",
		Short: "Show an archived report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ds, err := app.requireStore()
			if err != nil {
				return err
			}

			rec, err := ds.GetReport(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			run, err := decodeArchivedRun(rec)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(run)
			}
			output.Dim("Archived %s (%s)", rec.CreatedAt.Local().Format("2006-01-02 15:04"), rec.Source)
			renderRun(output, run, app.Config.UI.DateFormat)
			return nil
		},
	}

	cmd.AddCommand(listCmd, showCmd)
	return cmd
}

// decodeArchivedRun rebuilds a run from an archived record.
func decodeArchivedRun(rec *store.ReportRecord) (*analysisRun, error) {
	var stored archivedRun
	if err := json.Unmarshal(rec.Payload, &stored); err != nil {
		return nil, fmt.Errorf("decoding report %s: %w", rec.ID, err)
	}
	if stored.Report == nil {
		return nil, fmt.Errorf("report %s has no payload: %w", rec.ID, errors.ErrDataNotFound)
	}
	return &analysisRun{
		RunID:  rec.ID,
		Prompt: rec.Prompt,
		Plan:   stored.Plan,
		Report: stored.Report,
	}, nil
}

func newCacheCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the price bar cache",
	}

	var olderThan time.Duration
	purgeCmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete cached bars older than a duration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ds, err := app.requireStore()
			if err != nil {
				return err
			}
			n, err := ds.PurgeBars(cmd.Context(), olderThan)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]int64{"deleted": n})
			}
			output.Success("✓ Deleted %d cached bars", n)
			return nil
		},
	}
	purgeCmd.Flags().DurationVar(&olderThan, "older-than", 0, "purge entries fetched before this long ago (0 = everything)")

	cmd.AddCommand(purgeCmd)
	return cmd
}

// requireStore returns the store or an error when the cache is disabled.
func (app *App) requireStore() (store.DataStore, error) {
	ds, err := app.Store()
	if err != nil {
		return nil, err
	}
	if ds == nil {
		return nil, errors.Wrap(errors.ErrConfigInvalid, "the report archive needs cache.enabled = true")
	}
	return ds, nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}
