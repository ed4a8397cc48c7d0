package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FixtureSet maps "TICKER/period" keys to recorded provider responses.
type FixtureSet map[string][]RawBar

func fixtureKey(ticker string, period Period) string {
	return NormalizeTicker(ticker) + "/" + string(period)
}

// Add records bars for ticker and period.
func (fs FixtureSet) Add(ticker string, period Period, bars []RawBar) {
	fs[fixtureKey(ticker, period)] = bars
}

// LoadFixtures reads a fixture file written by Recorder.Save.
func LoadFixtures(path string) (FixtureSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixtures: %w", err)
	}
	fs := FixtureSet{}
	if err := json.Unmarshal(data, &fs); err != nil {
		return nil, fmt.Errorf("failed to parse fixtures %s: %w", path, err)
	}
	return fs, nil
}

// Replay is a deterministic provider serving recorded bars. Unknown keys
// return an empty response; keys listed in Errors fail with that error.
type Replay struct {
	fixtures FixtureSet
	Errors   map[string]error
}

// NewReplay creates a replay provider over fixtures.
func NewReplay(fixtures FixtureSet) *Replay {
	if fixtures == nil {
		fixtures = FixtureSet{}
	}
	return &Replay{fixtures: fixtures, Errors: map[string]error{}}
}

func (r *Replay) Name() string { return "replay" }

// FailWith makes every request for ticker (any period) fail with err.
func (r *Replay) FailWith(ticker string, err error) {
	r.Errors[NormalizeTicker(ticker)] = err
}

func (r *Replay) FetchBars(ctx context.Context, ticker string, period Period) ([]RawBar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err, ok := r.Errors[NormalizeTicker(ticker)]; ok {
		return nil, err
	}
	bars := r.fixtures[fixtureKey(ticker, period)]
	out := make([]RawBar, len(bars))
	copy(out, bars)
	return out, nil
}

// Recorder wraps a provider and keeps every successful response so a live
// run can be replayed later.
type Recorder struct {
	inner Provider

	mu       sync.Mutex
	fixtures FixtureSet
}

// NewRecorder creates a recorder around inner.
func NewRecorder(inner Provider) *Recorder {
	return &Recorder{inner: inner, fixtures: FixtureSet{}}
}

func (r *Recorder) Name() string { return r.inner.Name() }

func (r *Recorder) FetchBars(ctx context.Context, ticker string, period Period) ([]RawBar, error) {
	bars, err := r.inner.FetchBars(ctx, ticker, period)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.fixtures.Add(ticker, period, bars)
	r.mu.Unlock()
	return bars, nil
}

// Fixtures returns a copy of everything recorded so far.
func (r *Recorder) Fixtures() FixtureSet {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(FixtureSet, len(r.fixtures))
	for k, v := range r.fixtures {
		out[k] = v
	}
	return out
}

// Save writes the recorded fixtures as JSON.
func (r *Recorder) Save(path string) error {
	data, err := json.MarshalIndent(r.Fixtures(), "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create fixture directory: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
