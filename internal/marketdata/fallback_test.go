package marketdata

import (
	"context"
	"errors"
	"testing"
)

// countingProvider serves fixed bar counts per period and records calls.
type countingProvider struct {
	bars  map[Period]int
	err   error
	calls []Period
}

func (p *countingProvider) Name() string { return "counting" }

func (p *countingProvider) FetchBars(ctx context.Context, ticker string, period Period) ([]RawBar, error) {
	p.calls = append(p.calls, period)
	if p.err != nil {
		return nil, p.err
	}
	out := make([]RawBar, p.bars[period])
	for i := range out {
		out[i] = rawBar(i, 100+float64(i))
	}
	return out, nil
}

func TestFetcher_EscalatesEmptyOneDay(t *testing.T) {
	provider := &countingProvider{bars: map[Period]int{Period1D: 0, Period5D: 3}}
	f := NewFetcher(provider)

	series, err := f.Fetch(context.Background(), "tsla", Period1D, 1)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if series.IsEmpty() {
		t.Fatal("expected non-empty series after escalation")
	}
	if series.Period != "5d" {
		t.Errorf("Period = %q, want 5d", series.Period)
	}
	if series.RequestedPeriod != "1d" {
		t.Errorf("RequestedPeriod = %q, want 1d", series.RequestedPeriod)
	}
	if len(provider.calls) != 2 {
		t.Errorf("provider calls = %v, want [1d 5d]", provider.calls)
	}
}

func TestFetcher_EscalatesAtMostOnce(t *testing.T) {
	provider := &countingProvider{bars: map[Period]int{}}
	f := NewFetcher(provider)

	series, err := f.Fetch(context.Background(), "TSLA", Period1D, 1)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if !series.IsEmpty() {
		t.Errorf("expected empty series, got %d bars", series.Len())
	}
	if series.Period != "5d" {
		t.Errorf("Period = %q, want 5d (the period actually used)", series.Period)
	}
	if len(provider.calls) != 2 {
		t.Errorf("provider calls = %v, want exactly two", provider.calls)
	}
}

func TestFetcher_EscalatesShortSeries(t *testing.T) {
	provider := &countingProvider{bars: map[Period]int{Period5D: 4, Period1Mo: 21}}
	f := NewFetcher(provider)

	series, err := f.Fetch(context.Background(), "AAPL", Period5D, 15)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if series.Period != "1mo" || series.Len() != 21 {
		t.Errorf("got period %q with %d bars, want 1mo with 21", series.Period, series.Len())
	}
}

func TestFetcher_NoEscalationForLongPeriods(t *testing.T) {
	provider := &countingProvider{bars: map[Period]int{Period1Mo: 2}}
	f := NewFetcher(provider)

	series, err := f.Fetch(context.Background(), "AAPL", Period1Mo, 20)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if series.Period != "1mo" || series.Len() != 2 {
		t.Errorf("got period %q with %d bars, want 1mo with 2", series.Period, series.Len())
	}
	if len(provider.calls) != 1 {
		t.Errorf("provider calls = %v, want one", provider.calls)
	}
}

func TestFetcher_ProviderErrorPropagatesUnchanged(t *testing.T) {
	boom := errors.New("connection reset")
	provider := &countingProvider{err: boom}
	f := NewFetcher(provider)

	_, err := f.Fetch(context.Background(), "AAPL", Period1D, 1)
	if err != boom {
		t.Errorf("error = %v, want the provider error unchanged", err)
	}
	if len(provider.calls) != 1 {
		t.Errorf("provider calls = %v, errors must not be retried", provider.calls)
	}
}

func TestNextPeriod(t *testing.T) {
	tests := []struct {
		in   Period
		want Period
		ok   bool
	}{
		{Period1D, Period5D, true},
		{Period5D, Period1Mo, true},
		{Period1Mo, "", false},
		{PeriodMax, "", false},
	}
	for _, tt := range tests {
		got, ok := NextPeriod(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("NextPeriod(%s) = %s, %v; want %s, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestParsePeriod(t *testing.T) {
	for _, p := range StandardPeriods {
		got, err := ParsePeriod(" " + string(p) + " ")
		if err != nil || got != p {
			t.Errorf("ParsePeriod(%q) = %q, %v", p, got, err)
		}
		if p.Description() == "" {
			t.Errorf("%s has no description", p)
		}
	}
	if _, err := ParsePeriod("2w"); err == nil {
		t.Error("expected error for unknown period")
	}
}
