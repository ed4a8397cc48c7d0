package indicators

import (
	"errors"
	"math"
	"strings"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func TestAveragePrice_SingleBar(t *testing.T) {
	series := seriesFromCloses([]float64{42.5})

	result, err := NewAveragePrice().Calculate(series)
	if err != nil {
		t.Fatalf("Calculate() error = %v", err)
	}
	p, ok := result.Latest()
	if !ok {
		t.Fatal("expected one value")
	}
	if p.Value != 42.5 {
		t.Errorf("average = %v, want 42.5", p.Value)
	}
	if !p.Date.Equal(series.Bars[0].Date) {
		t.Errorf("date = %v, want %v", p.Date, series.Bars[0].Date)
	}
}

func TestAveragePrice_Empty(t *testing.T) {
	result, err := NewAveragePrice().Calculate(seriesFromCloses(nil))
	if err != nil {
		t.Fatalf("Calculate() error = %v", err)
	}
	if !result.Insufficient() {
		t.Error("expected insufficient result for empty series")
	}
	if !strings.Contains(result.Warning, "need at least 1") {
		t.Errorf("warning = %q", result.Warning)
	}
}

func TestSMA_Values(t *testing.T) {
	result, err := NewSMA(3).Calculate(seriesFromCloses([]float64{1, 2, 3, 4, 5}))
	if err != nil {
		t.Fatalf("Calculate() error = %v", err)
	}
	want := []float64{2, 3, 4}
	if len(result.Values) != len(want) {
		t.Fatalf("len = %d, want %d", len(result.Values), len(want))
	}
	for i, w := range want {
		if !almostEqual(result.Values[i].Value, w) {
			t.Errorf("values[%d] = %v, want %v", i, result.Values[i].Value, w)
		}
	}
	if result.WindowUsed != 3 {
		t.Errorf("WindowUsed = %d, want 3", result.WindowUsed)
	}
}

func TestSMA_InsufficientData(t *testing.T) {
	result, err := NewSMA(20).Calculate(seriesFromCloses([]float64{1, 2, 3}))
	if err != nil {
		t.Fatalf("Calculate() error = %v", err)
	}
	if !result.Insufficient() {
		t.Fatal("expected empty values")
	}
	if result.Values == nil {
		t.Error("values should be an empty slice, not nil")
	}
	if !strings.Contains(result.Warning, "need at least 20") || !strings.Contains(result.Warning, "have 3") {
		t.Errorf("warning = %q", result.Warning)
	}
}

func TestSMA_InvalidPeriod(t *testing.T) {
	_, err := NewSMA(0).Calculate(seriesFromCloses([]float64{1, 2, 3}))
	if !errors.Is(err, ErrInvalidPeriod) {
		t.Errorf("error = %v, want ErrInvalidPeriod", err)
	}
}

func TestRSI_KnownValues(t *testing.T) {
	// Alternating +1/-1 moves keep average gain equal to average loss.
	closes := []float64{10, 11, 10, 11, 10, 11, 10}
	result, err := NewRSI(2).Calculate(seriesFromCloses(closes))
	if err != nil {
		t.Fatalf("Calculate() error = %v", err)
	}
	if len(result.Values) != len(closes)-2 {
		t.Fatalf("len = %d, want %d", len(result.Values), len(closes)-2)
	}
	if !almostEqual(result.Values[0].Value, 50) {
		t.Errorf("first RSI = %v, want 50", result.Values[0].Value)
	}
	if !result.Values[0].Date.Equal(baseDate.AddDate(0, 0, 2)) {
		t.Errorf("first RSI date = %v", result.Values[0].Date)
	}
}

func TestRSI_AllLosses(t *testing.T) {
	result, err := NewRSI(3).Calculate(seriesFromCloses([]float64{10, 9, 8, 7, 6}))
	if err != nil {
		t.Fatalf("Calculate() error = %v", err)
	}
	for _, p := range result.Values {
		if p.Value != 0 {
			t.Errorf("RSI = %v, want 0", p.Value)
		}
	}
}

func TestRSI_MinimumLength(t *testing.T) {
	tests := []struct {
		name   string
		closes int
		empty  bool
	}{
		{"exactly period", 14, true},
		{"period plus one", 15, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			closes := make([]float64, tt.closes)
			for i := range closes {
				closes[i] = float64(100 + i%3)
			}
			result, err := NewRSI(14).Calculate(seriesFromCloses(closes))
			if err != nil {
				t.Fatalf("Calculate() error = %v", err)
			}
			if result.Insufficient() != tt.empty {
				t.Errorf("Insufficient() = %v, want %v", result.Insufficient(), tt.empty)
			}
		})
	}
}

func TestBollingerBands_ConstantSeries(t *testing.T) {
	closes := []float64{50, 50, 50, 50, 50}
	result, err := NewBollingerBands(3, 2).Calculate(seriesFromCloses(closes))
	if err != nil {
		t.Fatalf("Calculate() error = %v", err)
	}
	upper, _ := result.LatestBand("upper")
	lower, _ := result.LatestBand("lower")
	middle, _ := result.Latest()
	if upper.Value != 50 || middle.Value != 50 || lower.Value != 50 {
		t.Errorf("bands = %v/%v/%v, want 50/50/50", upper.Value, middle.Value, lower.Value)
	}
}

func TestBollingerBands_PopulationStdDev(t *testing.T) {
	// Population sigma of {2, 4, 4, 4, 5, 5, 7, 9} is 2.
	closes := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	result, err := NewBollingerBands(8, 2).Calculate(seriesFromCloses(closes))
	if err != nil {
		t.Fatalf("Calculate() error = %v", err)
	}
	upper, _ := result.LatestBand("upper")
	lower, _ := result.LatestBand("lower")
	if !almostEqual(upper.Value, 9) || !almostEqual(lower.Value, 1) {
		t.Errorf("upper = %v, lower = %v, want 9 and 1", upper.Value, lower.Value)
	}
}

func TestBollingerBands_InvalidMultiplier(t *testing.T) {
	_, err := NewBollingerBands(20, 0).Calculate(seriesFromCloses([]float64{1}))
	if !errors.Is(err, ErrInvalidMultiplier) {
		t.Errorf("error = %v, want ErrInvalidMultiplier", err)
	}
}

func TestMACD_Warnings(t *testing.T) {
	tests := []struct {
		name         string
		bars         int
		insufficient bool
		advisory     bool
	}{
		{"below minimum", 30, true, false},
		{"minimum but short of recommendation", 35, false, true},
		{"recommended length", RecommendedMACDBars, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			closes := make([]float64, tt.bars)
			for i := range closes {
				closes[i] = 100 + math.Sin(float64(i)/3)*5
			}
			result, err := NewMACD(12, 26, 9).Calculate(seriesFromCloses(closes))
			if err != nil {
				t.Fatalf("Calculate() error = %v", err)
			}
			if result.Insufficient() != tt.insufficient {
				t.Errorf("Insufficient() = %v, want %v", result.Insufficient(), tt.insufficient)
			}
			hasAdvisory := strings.Contains(result.Warning, "fewer data points than recommended")
			if hasAdvisory != tt.advisory {
				t.Errorf("warning = %q, advisory want %v", result.Warning, tt.advisory)
			}
		})
	}
}

func TestMACD_InvalidPeriods(t *testing.T) {
	_, err := NewMACD(26, 12, 9).Calculate(seriesFromCloses([]float64{1, 2, 3}))
	if !errors.Is(err, ErrInvalidPeriod) {
		t.Errorf("error = %v, want ErrInvalidPeriod", err)
	}
}

func TestCalculateEMA_SeededWithSMA(t *testing.T) {
	ema := CalculateEMA([]float64{1, 2, 3, 4}, 3)
	if !almostEqual(ema[2], 2) {
		t.Errorf("seed = %v, want 2", ema[2])
	}
	// k = 0.5: 4*0.5 + 2*0.5
	if !almostEqual(ema[3], 3) {
		t.Errorf("ema[3] = %v, want 3", ema[3])
	}
	if CalculateEMA([]float64{1}, 3) != nil {
		t.Error("expected nil for short input")
	}
}
