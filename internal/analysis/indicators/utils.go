package indicators

import (
	"errors"
	"math"
	"time"
)

var (
	// ErrInvalidPeriod is returned when the period is invalid.
	ErrInvalidPeriod = errors.New("invalid period")
	// ErrInvalidMultiplier is returned when a band multiplier is not positive.
	ErrInvalidMultiplier = errors.New("invalid multiplier")
)

// sum calculates the sum of a slice of float64.
func sum(values []float64) float64 {
	var total float64
	for _, v := range values {
		total += v
	}
	return total
}

// mean calculates the arithmetic mean of a slice of float64.
func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return sum(values) / float64(len(values))
}

// stdDev calculates the population standard deviation of a slice of float64.
func stdDev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := mean(values)
	var variance float64
	for _, v := range values {
		diff := v - m
		variance += diff * diff
	}
	variance /= float64(len(values))
	return math.Sqrt(variance)
}

// CalculateEMA calculates EMA on raw values. The first value, at index
// period-1, is the SMA of the first period values; earlier entries are zero.
func CalculateEMA(values []float64, period int) []float64 {
	if len(values) < period || period <= 0 {
		return nil
	}

	result := make([]float64, len(values))
	multiplier := 2.0 / float64(period+1)

	result[period-1] = mean(values[:period])

	for i := period; i < len(values); i++ {
		result[i] = (values[i]-result[i-1])*multiplier + result[i-1]
	}

	return result
}

// alignPoints pairs values[from:] with the matching input dates.
func alignPoints(dates []time.Time, values []float64, from int) []Point {
	if from >= len(values) {
		return []Point{}
	}
	points := make([]Point, 0, len(values)-from)
	for i := from; i < len(values); i++ {
		points = append(points, Point{Date: dates[i], Value: values[i]})
	}
	return points
}
