package indicators

import (
	"fmt"

	"stock-analyst/internal/models"
)

// RecommendedMACDBars is roughly three months of trading days. MACD computed
// from fewer bars is returned with an advisory warning.
const RecommendedMACDBars = 63

// AveragePrice calculates the arithmetic mean of all closes in a series.
type AveragePrice struct{}

// NewAveragePrice creates a new AveragePrice indicator.
func NewAveragePrice() *AveragePrice {
	return &AveragePrice{}
}

func (a *AveragePrice) Name() string {
	return "AveragePrice"
}

func (a *AveragePrice) MinLength() int {
	return 1
}

// Calculate returns a single point dated at the last bar.
func (a *AveragePrice) Calculate(series models.PriceSeries) (Result, error) {
	n := series.Len()
	if n < a.MinLength() {
		return insufficient(a.Name(), n, a.MinLength(), n, nil), nil
	}

	last, _ := series.Latest()
	return Result{
		Indicator:  a.Name(),
		Values:     []Point{{Date: last.Date, Value: mean(series.Closes())}},
		WindowUsed: n,
	}, nil
}

// SMA calculates Simple Moving Average.
type SMA struct {
	period int
}

// NewSMA creates a new SMA indicator.
func NewSMA(period int) *SMA {
	return &SMA{period: period}
}

func (s *SMA) Name() string {
	return fmt.Sprintf("SMA_%d", s.period)
}

func (s *SMA) MinLength() int {
	return s.period
}

func (s *SMA) Calculate(series models.PriceSeries) (Result, error) {
	if s.period <= 0 {
		return Result{}, ErrInvalidPeriod
	}
	n := series.Len()
	if n < s.period {
		return insufficient(s.Name(), s.period, s.MinLength(), n, nil), nil
	}

	closes := series.Closes()
	values := make([]float64, n)
	for i := s.period - 1; i < n; i++ {
		values[i] = mean(closes[i-s.period+1 : i+1])
	}

	return Result{
		Indicator:  s.Name(),
		Values:     alignPoints(series.Dates(), values, s.period-1),
		WindowUsed: s.period,
	}, nil
}

// MACD calculates Moving Average Convergence Divergence.
type MACD struct {
	fastPeriod   int
	slowPeriod   int
	signalPeriod int
}

// NewMACD creates a new MACD indicator. The usual periods are 12, 26 and 9.
func NewMACD(fast, slow, signal int) *MACD {
	return &MACD{
		fastPeriod:   fast,
		slowPeriod:   slow,
		signalPeriod: signal,
	}
}

func (m *MACD) Name() string {
	return fmt.Sprintf("MACD_%d_%d_%d", m.fastPeriod, m.slowPeriod, m.signalPeriod)
}

func (m *MACD) MinLength() int {
	return m.slowPeriod + m.signalPeriod
}

func (m *MACD) params() map[string]float64 {
	return map[string]float64{
		"fast_period":   float64(m.fastPeriod),
		"slow_period":   float64(m.slowPeriod),
		"signal_period": float64(m.signalPeriod),
	}
}

// Calculate returns the MACD line as Values and the "signal" and "histogram"
// lines as bands. All three start at the first bar where the signal line
// exists.
func (m *MACD) Calculate(series models.PriceSeries) (Result, error) {
	if m.fastPeriod <= 0 || m.slowPeriod <= 0 || m.signalPeriod <= 0 {
		return Result{}, ErrInvalidPeriod
	}
	if m.fastPeriod >= m.slowPeriod {
		return Result{}, ErrInvalidPeriod
	}
	n := series.Len()
	if n < m.MinLength() {
		return insufficient(m.Name(), m.slowPeriod, m.MinLength(), n, m.params()), nil
	}

	closes := series.Closes()
	fastEMA := CalculateEMA(closes, m.fastPeriod)
	slowEMA := CalculateEMA(closes, m.slowPeriod)

	// MACD Line = Fast EMA - Slow EMA
	lineStart := m.slowPeriod - 1
	macdLine := make([]float64, n)
	for i := lineStart; i < n; i++ {
		macdLine[i] = fastEMA[i] - slowEMA[i]
	}

	// Signal Line = EMA of MACD Line
	signalLine := make([]float64, n)
	signalEMA := CalculateEMA(macdLine[lineStart:], m.signalPeriod)
	for i := range signalEMA {
		signalLine[lineStart+i] = signalEMA[i]
	}

	// Histogram = MACD Line - Signal Line
	start := lineStart + m.signalPeriod - 1
	histogram := make([]float64, n)
	for i := start; i < n; i++ {
		histogram[i] = macdLine[i] - signalLine[i]
	}

	dates := series.Dates()
	result := Result{
		Indicator: m.Name(),
		Values:    alignPoints(dates, macdLine, start),
		Bands: map[string][]Point{
			"signal":    alignPoints(dates, signalLine, start),
			"histogram": alignPoints(dates, histogram, start),
		},
		WindowUsed: m.slowPeriod,
		Params:     m.params(),
	}
	if n < RecommendedMACDBars {
		result.Warning = fmt.Sprintf("fewer data points than recommended: MACD is most reliable with at least %d bars (about 3 months), have %d",
			RecommendedMACDBars, n)
	}
	return result, nil
}
