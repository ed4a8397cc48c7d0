package indicators

import (
	"fmt"

	"stock-analyst/internal/models"
)

// BollingerBands calculates Bollinger Bands.
type BollingerBands struct {
	period    int
	stdDevMul float64
}

// NewBollingerBands creates a new Bollinger Bands indicator.
func NewBollingerBands(period int, stdDevMul float64) *BollingerBands {
	return &BollingerBands{
		period:    period,
		stdDevMul: stdDevMul,
	}
}

func (b *BollingerBands) Name() string {
	return fmt.Sprintf("BollingerBands_%d_%.1f", b.period, b.stdDevMul)
}

func (b *BollingerBands) MinLength() int {
	return b.period
}

// Calculate returns the middle band as Values and "upper"/"lower" as bands.
func (b *BollingerBands) Calculate(series models.PriceSeries) (Result, error) {
	if b.period <= 0 {
		return Result{}, ErrInvalidPeriod
	}
	if b.stdDevMul <= 0 {
		return Result{}, ErrInvalidMultiplier
	}
	params := map[string]float64{"std_dev": b.stdDevMul}
	n := series.Len()
	if n < b.period {
		return insufficient(b.Name(), b.period, b.MinLength(), n, params), nil
	}

	closes := series.Closes()
	middle := make([]float64, n)
	upper := make([]float64, n)
	lower := make([]float64, n)

	for i := b.period - 1; i < n; i++ {
		slice := closes[i-b.period+1 : i+1]
		sma := mean(slice)
		sd := stdDev(slice)

		middle[i] = sma
		upper[i] = sma + b.stdDevMul*sd
		lower[i] = sma - b.stdDevMul*sd
	}

	dates := series.Dates()
	start := b.period - 1
	return Result{
		Indicator: b.Name(),
		Values:    alignPoints(dates, middle, start),
		Bands: map[string][]Point{
			"upper": alignPoints(dates, upper, start),
			"lower": alignPoints(dates, lower, start),
		},
		WindowUsed: b.period,
		Params:     params,
	}, nil
}
