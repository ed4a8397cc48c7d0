// Package engine executes analysis plans: it validates the step graph,
// orders steps by their references, runs each tool and aggregates every
// step's outcome into a Report.
//
// A failing step never aborts the plan. Its dependents are marked skipped and
// independent branches keep running; only an invalid plan is returned as an
// error, before any step runs.
package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"stock-analyst/internal/tools"
)

// AliasPrefix prefixes the stable alias of the first step using a tool.
const AliasPrefix = "result_of_"

// Alias returns the report alias for a tool.
func Alias(tool tools.Name) string {
	return AliasPrefix + string(tool)
}

// Plan is an ordered list of steps. Order matters only as a tie-breaker
// between independent steps and for alias assignment.
type Plan struct {
	Steps []Step `json:"steps" yaml:"steps"`
}

// Step is one tool invocation.
type Step struct {
	ID          string           `json:"id"`
	Tool        tools.Name       `json:"tool"`
	Params      map[string]Value `json:"params,omitempty"`
	Description string           `json:"description,omitempty"`
}

// DependsOn returns the distinct step ids referenced by the step's params,
// sorted. Alias references are returned as written.
func (s Step) DependsOn() []string {
	seen := map[string]bool{}
	var deps []string
	for _, v := range s.Params {
		if v.Ref != nil && !seen[v.Ref.Step] {
			seen[v.Ref.Step] = true
			deps = append(deps, v.Ref.Step)
		}
	}
	sort.Strings(deps)
	return deps
}

// Ref points at an output field of another step. An empty Field means the
// referenced tool's primary output (series for fetches, result for
// indicators).
type Ref struct {
	Step  string `json:"ref"`
	Field string `json:"field,omitempty"`
}

func (r Ref) String() string {
	if r.Field == "" {
		return r.Step
	}
	return r.Step + "." + r.Field
}

// Value is a parameter value: either a literal or a reference.
type Value struct {
	Literal interface{}
	Ref     *Ref
}

// Lit wraps a literal value.
func Lit(v interface{}) Value {
	return Value{Literal: v}
}

// RefTo references field of step.
func RefTo(step, field string) Value {
	return Value{Ref: &Ref{Step: step, Field: field}}
}

// IsRef reports whether the value is a reference.
func (v Value) IsRef() bool {
	return v.Ref != nil
}

// ParseValue converts a decoded JSON or YAML value into a Value. Maps with a
// "ref" key become references; everything else is a literal.
func ParseValue(raw interface{}) (Value, error) {
	m, ok := raw.(map[string]interface{})
	if !ok {
		return Lit(raw), nil
	}
	stepRaw, ok := m["ref"]
	if !ok {
		return Value{}, fmt.Errorf("object parameter values must be references ({\"ref\": ..., \"field\": ...})")
	}
	step, ok := stepRaw.(string)
	if !ok || strings.TrimSpace(step) == "" {
		return Value{}, fmt.Errorf("reference step must be a non-empty string")
	}
	field := ""
	if f, ok := m["field"]; ok {
		if field, ok = f.(string); !ok {
			return Value{}, fmt.Errorf("reference field must be a string")
		}
	}
	for k := range m {
		if k != "ref" && k != "field" {
			return Value{}, fmt.Errorf("unexpected key %q in reference", k)
		}
	}
	return RefTo(strings.TrimSpace(step), strings.TrimSpace(field)), nil
}

func (v Value) MarshalJSON() ([]byte, error) {
	if v.Ref != nil {
		return json.Marshal(v.Ref)
	}
	return json.Marshal(v.Literal)
}

func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw interface{}
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	parsed, err := ParseValue(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
