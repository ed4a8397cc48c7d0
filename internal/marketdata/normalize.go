package marketdata

import (
	"math"
	"sort"

	"stock-analyst/internal/models"
)

// Normalize turns raw provider bars into a canonical series: ascending
// calendar dates, one bar per date (the last one in input order wins) and no
// bars without a usable close. No bars yields an empty series, never an error.
func Normalize(ticker string, requested, used Period, raw []RawBar) models.PriceSeries {
	series := models.PriceSeries{
		Ticker:          NormalizeTicker(ticker),
		Period:          string(used),
		RequestedPeriod: string(requested),
		Bars:            []models.PriceBar{},
	}

	byDate := make(map[int64]models.PriceBar, len(raw))
	for _, r := range raw {
		if r.Close == nil || math.IsNaN(*r.Close) || *r.Close <= 0 {
			continue
		}
		date := models.DateOnly(r.Time)
		volume := int64(0)
		if r.Volume > 0 {
			volume = int64(r.Volume)
		}
		byDate[date.Unix()] = models.PriceBar{
			Date:   date,
			Open:   r.Open,
			High:   r.High,
			Low:    r.Low,
			Close:  *r.Close,
			Volume: volume,
		}
	}

	for _, bar := range byDate {
		series.Bars = append(series.Bars, bar)
	}
	sort.Slice(series.Bars, func(i, j int) bool {
		return series.Bars[i].Date.Before(series.Bars[j].Date)
	})
	return series
}

// ToRawBars converts canonical bars back into provider form.
func ToRawBars(bars []models.PriceBar) []RawBar {
	raw := make([]RawBar, len(bars))
	for i, b := range bars {
		raw[i] = RawBar{
			Time:   b.Date,
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  float64Ptr(b.Close),
			Volume: float64(b.Volume),
		}
	}
	return raw
}
