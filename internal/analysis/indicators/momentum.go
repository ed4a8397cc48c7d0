package indicators

import (
	"fmt"

	"stock-analyst/internal/models"
)

// RSI calculates the Relative Strength Index with Wilder smoothing.
type RSI struct {
	period int
}

// NewRSI creates a new RSI indicator.
func NewRSI(period int) *RSI {
	return &RSI{period: period}
}

func (r *RSI) Name() string {
	return fmt.Sprintf("RSI_%d", r.period)
}

// MinLength is period+1: the first delta needs a previous close.
func (r *RSI) MinLength() int {
	return r.period + 1
}

func (r *RSI) Calculate(series models.PriceSeries) (Result, error) {
	if r.period <= 0 {
		return Result{}, ErrInvalidPeriod
	}
	n := series.Len()
	if n < r.MinLength() {
		return insufficient(r.Name(), r.period, r.MinLength(), n, nil), nil
	}

	closes := series.Closes()
	values := make([]float64, n)
	gains := make([]float64, n)
	losses := make([]float64, n)

	for i := 1; i < n; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			gains[i] = change
		} else {
			losses[i] = -change
		}
	}

	// First average using SMA
	avgGain := mean(gains[1 : r.period+1])
	avgLoss := mean(losses[1 : r.period+1])
	values[r.period] = rsiValue(avgGain, avgLoss)

	// Subsequent values using Wilder smoothing
	for i := r.period + 1; i < n; i++ {
		avgGain = (avgGain*float64(r.period-1) + gains[i]) / float64(r.period)
		avgLoss = (avgLoss*float64(r.period-1) + losses[i]) / float64(r.period)
		values[i] = rsiValue(avgGain, avgLoss)
	}

	return Result{
		Indicator:  r.Name(),
		Values:     alignPoints(series.Dates(), values, r.period),
		WindowUsed: r.period,
	}, nil
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}
