// Package indicators provides technical indicator calculations over canonical
// price series.
package indicators

import (
	"time"

	"stock-analyst/internal/errors"
	"stock-analyst/internal/models"
)

// Indicator is a pure computation over a price series.
type Indicator interface {
	Name() string
	// MinLength is the number of bars needed to produce at least one value.
	MinLength() int
	Calculate(series models.PriceSeries) (Result, error)
}

// Point is one indicator value aligned to the date of an input bar.
type Point struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// Result holds the output of an indicator calculation.
//
// Values is the primary line (RSI, SMA, Bollinger middle band, MACD line,
// average price). Bands holds any additional named lines, aligned to the same
// dates as Values.
type Result struct {
	Indicator  string             `json:"indicator"`
	Values     []Point            `json:"values"`
	Bands      map[string][]Point `json:"bands,omitempty"`
	WindowUsed int                `json:"window_used"`
	Params     map[string]float64 `json:"params,omitempty"`
	Warning    string             `json:"warning,omitempty"`
}

// Latest returns the most recent value of the primary line.
func (r Result) Latest() (Point, bool) {
	if len(r.Values) == 0 {
		return Point{}, false
	}
	return r.Values[len(r.Values)-1], true
}

// LatestBand returns the most recent value of a named band.
func (r Result) LatestBand(name string) (Point, bool) {
	band := r.Bands[name]
	if len(band) == 0 {
		return Point{}, false
	}
	return band[len(band)-1], true
}

// Insufficient reports whether the input was too short to produce values.
func (r Result) Insufficient() bool {
	return len(r.Values) == 0
}

// insufficient builds the empty result returned for series shorter than required.
func insufficient(name string, window, required, available int, params map[string]float64) Result {
	return Result{
		Indicator:  name,
		Values:     []Point{},
		WindowUsed: window,
		Params:     params,
		Warning: errors.InsufficientDataWarning{
			Indicator: name,
			Required:  required,
			Available: available,
		}.String(),
	}
}
