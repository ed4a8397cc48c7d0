package cli

import (
	"strings"
	"testing"
	"time"

	"stock-analyst/internal/analysis/indicators"
	"stock-analyst/internal/tools"
)

func point(v float64) []indicators.Point {
	return []indicators.Point{{Date: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), Value: v}}
}

func TestInterpret(t *testing.T) {
	macd := func(line, signal float64) indicators.Result {
		return indicators.Result{Values: point(line), Bands: map[string][]indicators.Point{"signal": point(signal)}}
	}
	bands := indicators.Result{
		Values: point(100),
		Bands: map[string][]indicators.Point{
			"upper": point(110),
			"lower": point(90),
		},
	}

	tests := []struct {
		name      string
		tool      tools.Name
		res       indicators.Result
		close     float64
		hasClose  bool
		wantTone  Tone
		wantMatch string
	}{
		{"rsi overbought", tools.CalculateRSI, indicators.Result{Values: point(75)}, 0, false, ToneBearish, "Overbought"},
		{"rsi oversold", tools.CalculateRSI, indicators.Result{Values: point(25)}, 0, false, ToneBullish, "Oversold"},
		{"rsi neutral", tools.CalculateRSI, indicators.Result{Values: point(70)}, 0, false, ToneNeutral, "Neutral"},
		{"macd bullish", tools.CalculateMACD, macd(1.2, 0.8), 0, false, ToneBullish, "above signal line"},
		{"macd bearish", tools.CalculateMACD, macd(-0.5, 0.1), 0, false, ToneBearish, "below signal line"},
		{"ma above", tools.CalculateMovingAverage, indicators.Result{Values: point(100), WindowUsed: 20}, 105, true, ToneBullish, "above 20-day MA"},
		{"ma below", tools.CalculateMovingAverage, indicators.Result{Values: point(100), WindowUsed: 50}, 95, true, ToneBearish, "below 50-day MA"},
		{"bands upper", tools.CalculateBollingerBands, bands, 111, true, ToneBearish, "upper band"},
		{"bands lower", tools.CalculateBollingerBands, bands, 89, true, ToneBullish, "lower band"},
		{"bands within", tools.CalculateBollingerBands, bands, 100, true, ToneNeutral, "within bands"},
		{"average above", tools.CalculateAveragePrice, indicators.Result{Values: point(50)}, 55, true, ToneBullish, "above average"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig, ok := Interpret(tt.tool, tt.res, tt.close, tt.hasClose)
			if !ok {
				t.Fatal("Interpret() returned no signal")
			}
			if sig.Tone != tt.wantTone || !strings.Contains(sig.Text, tt.wantMatch) {
				t.Errorf("Interpret() = %+v, want tone %d containing %q", sig, tt.wantTone, tt.wantMatch)
			}
		})
	}
}

func TestInterpret_NoSignal(t *testing.T) {
	if _, ok := Interpret(tools.CalculateRSI, indicators.Result{Values: []indicators.Point{}}, 0, false); ok {
		t.Error("empty result should have no signal")
	}
	if _, ok := Interpret(tools.CalculateMovingAverage, indicators.Result{Values: point(10)}, 0, false); ok {
		t.Error("moving average without a close should have no signal")
	}
	if _, ok := Interpret(tools.CalculateMACD, indicators.Result{Values: point(1)}, 0, false); ok {
		t.Error("MACD without a signal band should have no signal")
	}
	if _, ok := Interpret(tools.FetchStockData, indicators.Result{Values: point(1)}, 1, true); ok {
		t.Error("fetch has no interpretation")
	}
}
