package engine

import (
	"encoding/json"
	"fmt"
	"sync"

	"stock-analyst/internal/analysis/indicators"
	"stock-analyst/internal/models"
	"stock-analyst/internal/tools"
)

// Status is the outcome of a step.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// ErrorKind classifies a step failure.
type ErrorKind string

const (
	KindParameter ErrorKind = "parameter"
	KindDataFetch ErrorKind = "data_fetch"
	KindExecution ErrorKind = "execution"
)

// StepError describes why a step failed or was skipped.
type StepError struct {
	Kind    ErrorKind `json:"kind,omitempty"`
	Message string    `json:"message"`
	// Cause is the id of the failed step that caused a skip.
	Cause string `json:"cause,omitempty"`
}

// StepResult is the recorded outcome of one step.
type StepResult struct {
	StepID      string      `json:"step_id"`
	Tool        tools.Name  `json:"tool"`
	Description string      `json:"description,omitempty"`
	Status      Status      `json:"status"`
	Payload     interface{} `json:"payload,omitempty"`
	Error       *StepError  `json:"error,omitempty"`
	Warning     string      `json:"warning,omitempty"`
}

// Series returns the payload of a successful fetch step.
func (r StepResult) Series() (models.PriceSeries, bool) {
	s, ok := r.Payload.(models.PriceSeries)
	return s, ok
}

// Indicator returns the payload of a successful indicator step.
func (r StepResult) Indicator() (indicators.Result, bool) {
	res, ok := r.Payload.(indicators.Result)
	return res, ok
}

// Report aggregates the outcome of every step of a plan. It contains no
// timestamps or durations, so two runs against identical data produce
// identical reports.
type Report struct {
	Steps   map[string]StepResult `json:"steps"`
	Order   []string              `json:"order"`
	Aliases map[string]string     `json:"aliases"`

	mu sync.Mutex
}

func newReport(g *graph) *Report {
	aliases := make(map[string]string, len(g.aliases))
	for k, v := range g.aliases {
		aliases[k] = v
	}
	order := make([]string, len(g.order))
	copy(order, g.order)
	return &Report{
		Steps:   make(map[string]StepResult, len(g.steps)),
		Order:   order,
		Aliases: aliases,
	}
}

func (r *Report) record(res StepResult) {
	r.mu.Lock()
	r.Steps[res.StepID] = res
	r.mu.Unlock()
}

func (r *Report) lookup(id string) (StepResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.Steps[id]
	return res, ok
}

// Get returns the result for a step id or a result_of_<tool> alias.
func (r *Report) Get(key string) (StepResult, bool) {
	if res, ok := r.lookup(key); ok {
		return res, true
	}
	r.mu.Lock()
	id, ok := r.Aliases[key]
	r.mu.Unlock()
	if !ok {
		return StepResult{}, false
	}
	return r.lookup(id)
}

// Results returns step results in execution order.
func (r *Report) Results() []StepResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]StepResult, 0, len(r.Order))
	for _, id := range r.Order {
		if res, ok := r.Steps[id]; ok {
			out = append(out, res)
		}
	}
	return out
}

// Summary counts steps by status.
type Summary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// Summary counts the report's steps by status.
func (r *Report) Summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := Summary{Total: len(r.Steps)}
	for _, res := range r.Steps {
		switch res.Status {
		case StatusSuccess:
			s.Succeeded++
		case StatusFailed:
			s.Failed++
		case StatusSkipped:
			s.Skipped++
		}
	}
	return s
}

// OK reports whether every step succeeded.
func (r *Report) OK() bool {
	s := r.Summary()
	return s.Succeeded == s.Total
}

// UnmarshalJSON decodes an archived report. Payloads are decoded by tool:
// a price series for fetches, an indicator result otherwise.
func (r *Report) UnmarshalJSON(data []byte) error {
	var aux struct {
		Steps map[string]struct {
			StepResult
			Payload json.RawMessage `json:"payload,omitempty"`
		} `json:"steps"`
		Order   []string          `json:"order"`
		Aliases map[string]string `json:"aliases"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	steps := make(map[string]StepResult, len(aux.Steps))
	for id, s := range aux.Steps {
		res := s.StepResult
		res.Payload = nil
		if len(s.Payload) > 0 && string(s.Payload) != "null" {
			payload, err := decodePayload(res.Tool, s.Payload)
			if err != nil {
				return fmt.Errorf("step %s: %w", id, err)
			}
			res.Payload = payload
		}
		steps[id] = res
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.Steps = steps
	r.Order = aux.Order
	r.Aliases = aux.Aliases
	return nil
}

func decodePayload(tool tools.Name, raw json.RawMessage) (interface{}, error) {
	if tool == tools.FetchStockData {
		var s models.PriceSeries
		err := json.Unmarshal(raw, &s)
		return s, err
	}
	var res indicators.Result
	err := json.Unmarshal(raw, &res)
	return res, err
}
