package cli

import (
	"fmt"

	"stock-analyst/internal/analysis/indicators"
	"stock-analyst/internal/engine"
	"stock-analyst/internal/tools"
)

// Tone is the direction an interpretation points to.
type Tone int

const (
	ToneNone Tone = iota
	ToneBullish
	ToneBearish
	ToneNeutral
)

// Signal is a one-line reading of an indicator's latest value.
type Signal struct {
	Tone Tone   `json:"-"`
	Text string `json:"text"`
}

// RSI thresholds.
const (
	rsiOverbought = 70
	rsiOversold   = 30
)

// Interpret reads the latest value of an indicator result. lastClose is the
// latest close of the input series and is ignored when hasClose is false;
// price-relative readings are then omitted.
func Interpret(tool tools.Name, res indicators.Result, lastClose float64, hasClose bool) (Signal, bool) {
	latest, ok := res.Latest()
	if !ok {
		return Signal{}, false
	}

	switch tool {
	case tools.CalculateRSI:
		switch {
		case latest.Value > rsiOverbought:
			return Signal{ToneBearish, "Overbought (potential sell signal)"}, true
		case latest.Value < rsiOversold:
			return Signal{ToneBullish, "Oversold (potential buy signal)"}, true
		default:
			return Signal{ToneNeutral, "Neutral"}, true
		}

	case tools.CalculateMACD:
		signal, ok := res.LatestBand("signal")
		if !ok {
			return Signal{}, false
		}
		if latest.Value > signal.Value {
			return Signal{ToneBullish, "Bullish (MACD above signal line)"}, true
		}
		return Signal{ToneBearish, "Bearish (MACD below signal line)"}, true

	case tools.CalculateMovingAverage:
		if !hasClose {
			return Signal{}, false
		}
		window := res.WindowUsed
		if lastClose > latest.Value {
			return Signal{ToneBullish, fmt.Sprintf("Price above %d-day MA", window)}, true
		}
		return Signal{ToneBearish, fmt.Sprintf("Price below %d-day MA", window)}, true

	case tools.CalculateBollingerBands:
		if !hasClose {
			return Signal{}, false
		}
		upper, okU := res.LatestBand("upper")
		lower, okL := res.LatestBand("lower")
		if !okU || !okL {
			return Signal{}, false
		}
		switch {
		case lastClose > upper.Value:
			return Signal{ToneBearish, "Price above upper band (overbought)"}, true
		case lastClose < lower.Value:
			return Signal{ToneBullish, "Price below lower band (oversold)"}, true
		default:
			return Signal{ToneNeutral, "Price within bands"}, true
		}

	case tools.CalculateAveragePrice:
		if !hasClose {
			return Signal{}, false
		}
		if lastClose > latest.Value {
			return Signal{ToneBullish, "Latest close above average"}, true
		}
		return Signal{ToneBearish, "Latest close below average"}, true
	}

	return Signal{}, false
}

// inputClose finds the latest close of the series an indicator step consumed.
// Only steps that reference a fetch through their series parameter have one.
func inputClose(step engine.Step, report *engine.Report) (float64, bool) {
	v, ok := step.Params["series"]
	if !ok || !v.IsRef() {
		return 0, false
	}
	src, ok := report.Get(v.Ref.Step)
	if !ok {
		return 0, false
	}
	series, ok := src.Series()
	if !ok {
		return 0, false
	}
	bar, ok := series.Latest()
	return bar.Close, ok
}
