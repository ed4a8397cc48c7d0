// Package models provides domain models for the stock analysis application.
package models

import (
	"time"
)

// PriceBar represents OHLCV data for one trading day.
type PriceBar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// PriceSeries is a canonical, date-ordered series of bars for one ticker.
// Period is the period actually used to obtain the bars, which differs from
// RequestedPeriod when the fetcher had to escalate.
type PriceSeries struct {
	Ticker          string     `json:"ticker"`
	Period          string     `json:"period"`
	RequestedPeriod string     `json:"requested_period"`
	Bars            []PriceBar `json:"bars"`
}

// Len returns the number of bars.
func (s PriceSeries) Len() int {
	return len(s.Bars)
}

// IsEmpty reports whether the series holds no bars.
func (s PriceSeries) IsEmpty() bool {
	return len(s.Bars) == 0
}

// Escalated reports whether the series was obtained with a different period
// than requested.
func (s PriceSeries) Escalated() bool {
	return s.RequestedPeriod != "" && s.Period != s.RequestedPeriod
}

// Closes extracts close prices.
func (s PriceSeries) Closes() []float64 {
	closes := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		closes[i] = b.Close
	}
	return closes
}

// Dates extracts bar dates.
func (s PriceSeries) Dates() []time.Time {
	dates := make([]time.Time, len(s.Bars))
	for i, b := range s.Bars {
		dates[i] = b.Date
	}
	return dates
}

// Latest returns the most recent bar. ok is false for an empty series.
func (s PriceSeries) Latest() (bar PriceBar, ok bool) {
	if len(s.Bars) == 0 {
		return PriceBar{}, false
	}
	return s.Bars[len(s.Bars)-1], true
}

// DateOnly truncates t to its calendar date in UTC.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
