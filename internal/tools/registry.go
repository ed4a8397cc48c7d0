// Package tools is the static registry of invocable analysis tools: their
// parameters, defaults, validators and output fields.
package tools

import (
	"fmt"
	"regexp"
	"sort"

	"stock-analyst/internal/errors"
	"stock-analyst/internal/marketdata"
)

// Name identifies a tool. The set is closed; see the constants below.
type Name string

const (
	FetchStockData          Name = "fetch_stock_data"
	CalculateRSI            Name = "calculate_rsi"
	CalculateMovingAverage  Name = "calculate_moving_average"
	CalculateBollingerBands Name = "calculate_bollinger_bands"
	CalculateMACD           Name = "calculate_macd"
	CalculateAveragePrice   Name = "calculate_average_price"
)

// Kind is the type of a parameter or output field.
type Kind string

const (
	KindString Kind = "string"
	KindPeriod Kind = "period"
	KindInt    Kind = "int"
	KindFloat  Kind = "float"
	KindSeries Kind = "series"
	KindResult Kind = "result"
)

// Accepts reports whether a value of kind out may be bound to a parameter of kind k.
func (k Kind) Accepts(out Kind) bool {
	switch k {
	case KindFloat:
		return out == KindFloat || out == KindInt
	case KindPeriod:
		return out == KindPeriod || out == KindString
	default:
		return k == out
	}
}

// Param describes one tool parameter.
type Param struct {
	Name        string
	Kind        Kind
	Required    bool
	Default     interface{}
	Description string
	// Validate runs on the coerced value.
	Validate func(v interface{}) error
}

// Spec is the static metadata of one tool.
type Spec struct {
	Name        Name
	Description string
	Params      []Param
	// OneOf lists parameter groups of which at least one must be supplied.
	// The first supplied member wins.
	OneOf [][]string
	// Outputs lists the fields other steps may reference.
	Outputs map[string]Kind
	// Check validates relations between resolved parameters.
	Check func(args Args) error
}

// IsIndicator reports whether the tool computes an indicator over a series.
func (s Spec) IsIndicator() bool {
	return s.Name != FetchStockData
}

// Param returns the named parameter.
func (s Spec) Param(name string) (Param, bool) {
	for _, p := range s.Params {
		if p.Name == name {
			return p, true
		}
	}
	return Param{}, false
}

// Output returns the kind of a declared output field.
func (s Spec) Output(field string) (Kind, bool) {
	k, ok := s.Outputs[field]
	return k, ok
}

// OutputFields returns output field names in sorted order.
func (s Spec) OutputFields() []string {
	fields := make([]string, 0, len(s.Outputs))
	for f := range s.Outputs {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

var tickerPattern = regexp.MustCompile(`^[A-Z0-9^][A-Z0-9.\-=^]{0,14}$`)

func validTicker(v interface{}) error {
	s, _ := v.(string)
	if s == "" {
		return fmt.Errorf("must be a non-empty symbol")
	}
	if !tickerPattern.MatchString(marketdata.NormalizeTicker(s)) {
		return fmt.Errorf("%q is not a valid ticker symbol", s)
	}
	return nil
}

func positiveInt(v interface{}) error {
	if n, _ := v.(int); n <= 0 {
		return fmt.Errorf("must be a positive integer")
	}
	return nil
}

func positiveFloat(v interface{}) error {
	if f, _ := v.(float64); f <= 0 {
		return fmt.Errorf("must be a positive number")
	}
	return nil
}

// Output fields shared by the indicator tools.
const (
	FieldSeries      = "series"
	FieldTicker      = "ticker"
	FieldLatestClose = "latest_close"
	FieldCount       = "count"
	FieldResult      = "result"
	FieldLatest      = "latest"
)

var indicatorOutputs = map[string]Kind{
	FieldResult: KindResult,
	FieldLatest: KindFloat,
}

// seriesParams are the input parameters shared by every indicator tool.
func seriesParams(defaultPeriod marketdata.Period) []Param {
	return []Param{
		{Name: "series", Kind: KindSeries, Description: "Price series produced by fetch_stock_data (reference)"},
		{Name: "ticker", Kind: KindString, Description: "Ticker to fetch when no series is given", Validate: validTicker},
		{Name: "data_period", Kind: KindPeriod, Default: defaultPeriod, Description: "Period fetched when ticker is used"},
	}
}

var seriesOrTicker = [][]string{{"series", "ticker"}}

var registry = map[Name]Spec{
	FetchStockData: {
		Name:        FetchStockData,
		Description: "Fetches daily OHLCV stock data for a ticker and period. Use '5d' for 'latest' requests.",
		Params: []Param{
			{Name: "ticker", Kind: KindString, Required: true, Description: "Stock ticker symbol (e.g. AAPL, MSFT, TSLA)", Validate: validTicker},
			{Name: "period", Kind: KindPeriod, Default: marketdata.Period1Mo, Description: "One of 1d, 5d, 1mo, 3mo, 6mo, 1y, 2y, 5y, 10y, ytd, max"},
			{Name: "min_bars", Kind: KindInt, Default: 1, Description: "Bars needed before a short period is escalated", Validate: positiveInt},
		},
		Outputs: map[string]Kind{
			FieldSeries:      KindSeries,
			FieldTicker:      KindString,
			FieldLatestClose: KindFloat,
			FieldCount:       KindInt,
		},
	},
	CalculateRSI: {
		Name:        CalculateRSI,
		Description: "Calculates the Relative Strength Index (Wilder smoothing).",
		Params: append(seriesParams(marketdata.Period1Mo),
			Param{Name: "period", Kind: KindInt, Default: 14, Description: "Lookback window", Validate: positiveInt},
		),
		OneOf:   seriesOrTicker,
		Outputs: indicatorOutputs,
	},
	CalculateMovingAverage: {
		Name:        CalculateMovingAverage,
		Description: "Calculates the Simple Moving Average of closing prices.",
		Params: append(seriesParams(marketdata.Period1Mo),
			Param{Name: "period", Kind: KindInt, Default: 20, Description: "Lookback window", Validate: positiveInt},
		),
		OneOf:   seriesOrTicker,
		Outputs: indicatorOutputs,
	},
	CalculateBollingerBands: {
		Name:        CalculateBollingerBands,
		Description: "Calculates Bollinger Bands (SMA middle band, population standard deviation).",
		Params: append(seriesParams(marketdata.Period1Mo),
			Param{Name: "period", Kind: KindInt, Default: 20, Description: "Lookback window", Validate: positiveInt},
			Param{Name: "std_dev", Kind: KindFloat, Default: 2.0, Description: "Band width in standard deviations", Validate: positiveFloat},
		),
		OneOf:   seriesOrTicker,
		Outputs: indicatorOutputs,
	},
	CalculateMACD: {
		Name:        CalculateMACD,
		Description: "Calculates MACD, signal line and histogram. Needs about 3 months of data.",
		Params: append(seriesParams(marketdata.Period3Mo),
			Param{Name: "fast_period", Kind: KindInt, Default: 12, Description: "Fast EMA window", Validate: positiveInt},
			Param{Name: "slow_period", Kind: KindInt, Default: 26, Description: "Slow EMA window", Validate: positiveInt},
			Param{Name: "signal_period", Kind: KindInt, Default: 9, Description: "Signal EMA window", Validate: positiveInt},
		),
		OneOf:   seriesOrTicker,
		Outputs: indicatorOutputs,
		Check: func(args Args) error {
			if args.Int("fast_period") >= args.Int("slow_period") {
				return errors.NewParameterError(string(CalculateMACD), "fast_period", args.Int("fast_period"),
					"must be smaller than slow_period")
			}
			return nil
		},
	},
	CalculateAveragePrice: {
		Name:        CalculateAveragePrice,
		Description: "Calculates the average closing price over all available data points.",
		Params:      seriesParams(marketdata.Period1Mo),
		OneOf:       seriesOrTicker,
		Outputs:     indicatorOutputs,
	},
}

// order is the presentation order of tools.
var order = []Name{
	FetchStockData,
	CalculateRSI,
	CalculateMovingAverage,
	CalculateBollingerBands,
	CalculateMACD,
	CalculateAveragePrice,
}

// Lookup returns the spec for a tool name.
func Lookup(name Name) (Spec, bool) {
	s, ok := registry[name]
	return s, ok
}

// All returns every tool spec in presentation order.
func All() []Spec {
	specs := make([]Spec, 0, len(order))
	for _, n := range order {
		specs = append(specs, registry[n])
	}
	return specs
}
