// Package planner turns user requests into engine plans, either from a
// natural-language prompt through an LLM or from a plan file.
package planner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"stock-analyst/internal/engine"
	"stock-analyst/internal/errors"
	"stock-analyst/internal/tools"
)

// Planner builds a plan for a prompt.
type Planner interface {
	Plan(ctx context.Context, prompt string) (engine.Plan, error)
}

// Action is one entry of an LLM action list. String arguments of the form
// "result_of_<tool>" refer to the output of an earlier action.
type Action struct {
	Tool        string                 `json:"tool" yaml:"tool"`
	Args        map[string]interface{} `json:"args" yaml:"args"`
	Description string                 `json:"description" yaml:"description"`
}

// argAliases maps argument names LLMs commonly produce to registry names.
var argAliases = map[string]string{
	"data":   "series",
	"symbol": "ticker",
}

// FromActions converts an action list into a plan. Steps are named
// step_1, step_2, ... in list order. A "result_of_<tool>" argument becomes a
// reference to the most recent earlier action using that tool; with no
// earlier action it is left for the engine to resolve as an alias.
func FromActions(actions []Action) (engine.Plan, error) {
	if len(actions) == 0 {
		return engine.Plan{}, errors.NewPlanValidationError("", "plan has no steps", nil)
	}

	plan := engine.Plan{Steps: make([]engine.Step, 0, len(actions))}
	latest := map[string]string{}

	for i, a := range actions {
		id := fmt.Sprintf("step_%d", i+1)
		tool := strings.TrimSpace(a.Tool)
		if tool == "" {
			return engine.Plan{}, errors.NewPlanValidationError(id, "action has no tool", errors.ErrUnknownTool)
		}

		params := make(map[string]engine.Value, len(a.Args))
		for name, raw := range a.Args {
			if alias, ok := argAliases[name]; ok {
				name = alias
			}
			params[name] = actionValue(raw, latest)
		}

		plan.Steps = append(plan.Steps, engine.Step{
			ID:          id,
			Tool:        tools.Name(tool),
			Params:      params,
			Description: a.Description,
		})
		latest[tool] = id
	}
	return plan, nil
}

func actionValue(raw interface{}, latest map[string]string) engine.Value {
	if m, ok := raw.(map[string]interface{}); ok {
		if v, err := engine.ParseValue(m); err == nil {
			return v
		}
	}
	s, ok := raw.(string)
	if !ok || !strings.HasPrefix(s, engine.AliasPrefix) {
		return engine.Lit(raw)
	}
	tool := strings.TrimPrefix(s, engine.AliasPrefix)
	if id, ok := latest[tool]; ok {
		return engine.RefTo(id, "")
	}
	return engine.RefTo(s, "")
}

// ParseActions decodes an LLM response holding a JSON action array,
// optionally wrapped in a markdown code fence.
func ParseActions(content string) ([]Action, error) {
	content = stripFence(content)

	dec := json.NewDecoder(bytes.NewReader([]byte(content)))
	dec.UseNumber()
	var actions []Action
	if err := dec.Decode(&actions); err != nil {
		return nil, errors.Wrapf(errors.ErrPlanInvalid, "response is not a JSON action list: %v", err)
	}
	for i, a := range actions {
		if a.Tool == "" {
			return nil, errors.Wrapf(errors.ErrPlanInvalid, "action %d has no tool", i+1)
		}
	}
	return actions, nil
}

func stripFence(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	content = strings.TrimPrefix(content, "```")
	if nl := strings.IndexByte(content, '\n'); nl >= 0 {
		content = content[nl+1:]
	} else {
		content = strings.TrimPrefix(content, "json")
	}
	content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	return strings.TrimSpace(content)
}

// SystemPrompt describes the registry and the planning rules to the LLM.
func SystemPrompt() string {
	var b strings.Builder
	b.WriteString("You are a stock analysis assistant. Parse user requests and return a JSON plan.\n\n")
	b.WriteString("Available tools:\n")
	for _, spec := range tools.All() {
		fmt.Fprintf(&b, "- %s: %s Parameters: ", spec.Name, spec.Description)
		params := make([]string, 0, len(spec.Params))
		for _, p := range spec.Params {
			param := fmt.Sprintf("%s (%s", p.Name, p.Kind)
			if p.Default != nil {
				param += fmt.Sprintf(", default: %v", p.Default)
			}
			if p.Required {
				param += ", required"
			}
			params = append(params, param+")")
		}
		b.WriteString(strings.Join(params, ", "))
		b.WriteString("\n")
	}
	b.WriteString(`
Rules:
1. Use exact parameter names shown above
2. For "latest" requests, use period "5d"
3. For technical indicators: RSI/MA/BB need "1mo", MACD needs "3mo"
4. Pass "result_of_fetch_stock_data" as the series of an indicator to reuse fetched data
5. For simple averages, use calculate_average_price

6. Call the tools in the order the steps should run, one call per step; a step
   may only use results of earlier steps

If you cannot call tools, return only a JSON array of actions:
[
  {
    "tool": "fetch_stock_data",
    "args": {"ticker": "TICKER", "period": "PERIOD"},
    "description": "Description"
  }
]`)
	return b.String()
}

// ExamplePrompts are sample requests shown by the CLI.
func ExamplePrompts() []string {
	return []string{
		"Get me Tesla stock for last month and calculate RSI",
		"Fetch Apple stock data for 3 months and calculate moving average with period 20",
		"Get Microsoft stock for last year and calculate Bollinger Bands",
		"Show me Google stock data for 6 months and calculate MACD",
		"Analyze Amazon stock for the last 2 years with RSI and moving averages",
	}
}
