// Package marketdata fetches daily price bars from market-data providers and
// turns them into canonical price series.
package marketdata

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Period is a standard lookback label understood by every provider.
type Period string

const (
	Period1D  Period = "1d"
	Period5D  Period = "5d"
	Period1Mo Period = "1mo"
	Period3Mo Period = "3mo"
	Period6Mo Period = "6mo"
	Period1Y  Period = "1y"
	Period2Y  Period = "2y"
	Period5Y  Period = "5y"
	Period10Y Period = "10y"
	PeriodYTD Period = "ytd"
	PeriodMax Period = "max"
)

// StandardPeriods lists the supported periods from shortest to longest.
var StandardPeriods = []Period{
	Period1D, Period5D, Period1Mo, Period3Mo, Period6Mo,
	Period1Y, Period2Y, Period5Y, Period10Y, PeriodYTD, PeriodMax,
}

var periodDescriptions = map[Period]string{
	Period1D:  "1 day",
	Period5D:  "5 days",
	Period1Mo: "1 month",
	Period3Mo: "3 months",
	Period6Mo: "6 months",
	Period1Y:  "1 year",
	Period2Y:  "2 years",
	Period5Y:  "5 years",
	Period10Y: "10 years",
	PeriodYTD: "Year to date",
	PeriodMax: "Maximum available",
}

// ParsePeriod validates a period label.
func ParsePeriod(s string) (Period, error) {
	p := Period(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := periodDescriptions[p]; !ok {
		return "", fmt.Errorf("unknown period %q", s)
	}
	return p, nil
}

// Description returns a human readable description of the period.
func (p Period) Description() string {
	return periodDescriptions[p]
}

// Days returns the calendar-day span of the period ending at now.
func (p Period) Days(now time.Time) int {
	switch p {
	case Period1D:
		return 1
	case Period5D:
		return 5
	case Period1Mo:
		return 30
	case Period3Mo:
		return 90
	case Period6Mo:
		return 180
	case Period1Y:
		return 365
	case Period2Y:
		return 730
	case Period5Y:
		return 1825
	case Period10Y:
		return 3650
	case PeriodYTD:
		return now.YearDay()
	case PeriodMax:
		return 20 * 365
	default:
		return 365
	}
}

// RawBar is one bar as returned by a provider, before normalization.
// Close is nil when the provider omitted it.
type RawBar struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  *float64  `json:"close"`
	Volume float64   `json:"volume"`
}

// Provider fetches raw daily bars. An empty successful response is not an
// error.
type Provider interface {
	Name() string
	FetchBars(ctx context.Context, ticker string, period Period) ([]RawBar, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, ticker string, period Period) ([]RawBar, error)

func (f ProviderFunc) Name() string { return "func" }

func (f ProviderFunc) FetchBars(ctx context.Context, ticker string, period Period) ([]RawBar, error) {
	return f(ctx, ticker, period)
}

// NormalizeTicker upper-cases and trims a ticker symbol.
func NormalizeTicker(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}

func float64Ptr(v float64) *float64 {
	return &v
}
