package tools

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"stock-analyst/internal/analysis/indicators"
	"stock-analyst/internal/errors"
	"stock-analyst/internal/marketdata"
	"stock-analyst/internal/models"
)

// Args are resolved, typed tool parameters.
type Args map[string]interface{}

// String returns a string parameter.
func (a Args) String(name string) string {
	s, _ := a[name].(string)
	return s
}

// Int returns an int parameter.
func (a Args) Int(name string) int {
	n, _ := a[name].(int)
	return n
}

// Float returns a float parameter.
func (a Args) Float(name string) float64 {
	f, _ := a[name].(float64)
	return f
}

// Period returns a period parameter.
func (a Args) Period(name string) marketdata.Period {
	p, _ := a[name].(marketdata.Period)
	return p
}

// Series returns a series parameter.
func (a Args) Series(name string) (models.PriceSeries, bool) {
	s, ok := a[name].(models.PriceSeries)
	return s, ok
}

// Resolve validates params against the spec, coerces literals to their
// declared kinds and fills defaults.
func (s Spec) Resolve(params map[string]interface{}) (Args, error) {
	tool := string(s.Name)

	unknown := make([]string, 0)
	for name := range params {
		if _, ok := s.Param(name); !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, errors.NewParameterError(tool, unknown[0], params[unknown[0]], "unknown parameter")
	}

	args := make(Args, len(s.Params))
	for _, p := range s.Params {
		raw, ok := params[p.Name]
		if !ok || raw == nil {
			if p.Required {
				return nil, errors.NewMissingParameterError(tool, p.Name)
			}
			if p.Default != nil {
				args[p.Name] = p.Default
			}
			continue
		}

		v, err := Coerce(p.Kind, raw)
		if err != nil {
			return nil, errors.NewParameterError(tool, p.Name, raw, err.Error())
		}
		if p.Validate != nil {
			if err := p.Validate(v); err != nil {
				return nil, errors.NewParameterError(tool, p.Name, raw, err.Error())
			}
		}
		if p.Kind == KindString && p.Name == "ticker" {
			v = marketdata.NormalizeTicker(v.(string))
		}
		args[p.Name] = v
	}

	for _, group := range s.OneOf {
		found := false
		for _, name := range group {
			if _, ok := params[name]; ok && params[name] != nil {
				found = true
				break
			}
		}
		if !found {
			return nil, errors.NewMissingParameterError(tool, strings.Join(group, "|"))
		}
	}

	if s.Check != nil {
		if err := s.Check(args); err != nil {
			return nil, err
		}
	}

	return args, nil
}

// Coerce converts a literal or referenced value to kind k.
func Coerce(k Kind, v interface{}) (interface{}, error) {
	switch k {
	case KindString:
		if s, ok := v.(string); ok {
			return strings.TrimSpace(s), nil
		}
		return nil, fmt.Errorf("expected a string, got %T", v)

	case KindPeriod:
		switch p := v.(type) {
		case marketdata.Period:
			return marketdata.ParsePeriod(string(p))
		case string:
			return marketdata.ParsePeriod(p)
		}
		return nil, fmt.Errorf("expected a period, got %T", v)

	case KindInt:
		f, err := toFloat(v)
		if err != nil {
			return nil, err
		}
		if f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
			return nil, fmt.Errorf("expected an integer, got %v", v)
		}
		return int(f), nil

	case KindFloat:
		f, err := toFloat(v)
		if err != nil {
			return nil, err
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("expected a finite number, got %v", v)
		}
		return f, nil

	case KindSeries:
		switch s := v.(type) {
		case models.PriceSeries:
			return s, nil
		case *models.PriceSeries:
			if s != nil {
				return *s, nil
			}
		}
		return nil, fmt.Errorf("expected a price series, got %T", v)

	case KindResult:
		if r, ok := v.(indicators.Result); ok {
			return r, nil
		}
		return nil, fmt.Errorf("expected an indicator result, got %T", v)
	}

	return nil, fmt.Errorf("unsupported kind %q", k)
}

func toFloat(v interface{}) (float64, error) {
	switch n := v.(type) {
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case float32:
		return float64(n), nil
	case float64:
		return n, nil
	case json.Number:
		return n.Float64()
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("expected a number, got %q", n)
		}
		return f, nil
	}
	return 0, fmt.Errorf("expected a number, got %T", v)
}
