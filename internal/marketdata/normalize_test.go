package marketdata

import (
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func day(d int) time.Time {
	return time.Date(2024, 3, 1, 14, 30, 0, 0, time.UTC).AddDate(0, 0, d)
}

func rawBar(d int, c float64) RawBar {
	return RawBar{Time: day(d), Open: c, High: c, Low: c, Close: float64Ptr(c), Volume: 100}
}

func TestNormalize(t *testing.T) {
	raw := []RawBar{
		rawBar(2, 12),
		rawBar(0, 10),
		rawBar(1, 11),
		rawBar(1, 11.5), // duplicate date, last one wins
		{Time: day(3), Open: 1},                      // missing close
		{Time: day(4), Close: float64Ptr(math.NaN())}, // NaN close
		{Time: day(5), Close: float64Ptr(0)},          // non-positive close
	}

	series := Normalize("aapl ", Period1D, Period5D, raw)

	if series.Ticker != "AAPL" {
		t.Errorf("Ticker = %q, want AAPL", series.Ticker)
	}
	if series.Period != "5d" || series.RequestedPeriod != "1d" {
		t.Errorf("Period = %q, RequestedPeriod = %q", series.Period, series.RequestedPeriod)
	}
	if !series.Escalated() {
		t.Error("expected Escalated() to be true")
	}

	want := []float64{10, 11.5, 12}
	if series.Len() != len(want) {
		t.Fatalf("Len() = %d, want %d", series.Len(), len(want))
	}
	for i, w := range want {
		if series.Bars[i].Close != w {
			t.Errorf("bar %d close = %v, want %v", i, series.Bars[i].Close, w)
		}
		if series.Bars[i].Date.Hour() != 0 {
			t.Errorf("bar %d date not truncated: %v", i, series.Bars[i].Date)
		}
	}
}

func TestNormalize_Empty(t *testing.T) {
	series := Normalize("MSFT", Period1Mo, Period1Mo, nil)
	if !series.IsEmpty() {
		t.Fatalf("expected empty series, got %d bars", series.Len())
	}
	if series.Bars == nil {
		t.Error("empty series should carry a non-nil bar slice")
	}
}

// TestProperty_NormalizeCanonical verifies ordering and uniqueness for arbitrary input.
func TestProperty_NormalizeCanonical(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("normalized dates are strictly ascending", prop.ForAll(
		func(offsets []int) bool {
			raw := make([]RawBar, len(offsets))
			for i, off := range offsets {
				raw[i] = rawBar(off, float64(i+1))
			}
			series := Normalize("X", Period1Y, Period1Y, raw)
			for i := 1; i < series.Len(); i++ {
				if !series.Bars[i-1].Date.Before(series.Bars[i].Date) {
					return false
				}
			}
			unique := map[int]bool{}
			for _, off := range offsets {
				unique[off] = true
			}
			return series.Len() == len(unique)
		},
		gen.SliceOf(gen.IntRange(0, 60)),
	))

	properties.TestingRun(t)
}
