package planner

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"stock-analyst/internal/engine"
	"stock-analyst/internal/errors"
	"stock-analyst/internal/tools"
)

func TestFromActions_ResolvesReferences(t *testing.T) {
	actions := []Action{
		{Tool: "fetch_stock_data", Args: map[string]interface{}{"ticker": "TSLA", "period": "1mo"}, Description: "Fetch Tesla"},
		{Tool: "calculate_rsi", Args: map[string]interface{}{"data": "result_of_fetch_stock_data", "period": 14}},
		{Tool: "fetch_stock_data", Args: map[string]interface{}{"symbol": "AAPL"}},
		{Tool: "calculate_macd", Args: map[string]interface{}{"data": "result_of_fetch_stock_data"}},
	}

	plan, err := FromActions(actions)
	if err != nil {
		t.Fatalf("FromActions() error = %v", err)
	}
	if err := engine.Validate(plan); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	rsi := plan.Steps[1]
	if rsi.ID != "step_2" || rsi.Tool != tools.CalculateRSI {
		t.Errorf("step = %+v", rsi)
	}
	if ref := rsi.Params["series"].Ref; ref == nil || ref.Step != "step_1" {
		t.Errorf("rsi series = %+v, want ref to step_1", rsi.Params["series"])
	}
	if _, ok := rsi.Params["data"]; ok {
		t.Error("data should be renamed to series")
	}
	if ref := plan.Steps[3].Params["series"].Ref; ref == nil || ref.Step != "step_3" {
		t.Errorf("macd series should reference the most recent fetch, got %+v", plan.Steps[3].Params["series"])
	}
	if _, ok := plan.Steps[2].Params["ticker"]; !ok {
		t.Error("symbol should be renamed to ticker")
	}
	if plan.Steps[0].Description != "Fetch Tesla" {
		t.Errorf("description = %q", plan.Steps[0].Description)
	}
}

func TestFromActions_ForwardAliasRejected(t *testing.T) {
	plan, err := FromActions([]Action{
		{Tool: "calculate_average_price", Args: map[string]interface{}{"data": "result_of_fetch_stock_data"}},
		{Tool: "fetch_stock_data", Args: map[string]interface{}{"ticker": "MSFT"}},
	})
	if err != nil {
		t.Fatalf("FromActions() error = %v", err)
	}
	if ref := plan.Steps[0].Params["series"].Ref; ref == nil || ref.Step != "result_of_fetch_stock_data" {
		t.Fatalf("series = %+v", plan.Steps[0].Params["series"])
	}
	if err := engine.Validate(plan); !errors.Is(err, errors.ErrForwardReference) {
		t.Errorf("Validate() error = %v, want ErrForwardReference", err)
	}
}

func TestFromActions_Empty(t *testing.T) {
	_, err := FromActions(nil)
	if !errors.Is(err, errors.ErrPlanInvalid) {
		t.Errorf("error = %v, want ErrPlanInvalid", err)
	}
}

func TestParseActions(t *testing.T) {
	body := `[{"tool": "fetch_stock_data", "args": {"ticker": "NVDA", "period": "5d"}, "description": "Latest"}]`
	inputs := map[string]string{
		"bare":       body,
		"json fence": "```json\n" + body + "\n```",
		"fence":      "```\n" + body + "\n```",
		"padded":     "\n  " + body + "  \n",
	}
	for name, in := range inputs {
		t.Run(name, func(t *testing.T) {
			actions, err := ParseActions(in)
			if err != nil {
				t.Fatalf("ParseActions() error = %v", err)
			}
			if len(actions) != 1 || actions[0].Tool != "fetch_stock_data" || actions[0].Args["period"] != "5d" {
				t.Errorf("actions = %+v", actions)
			}
		})
	}

	for _, bad := range []string{"", "not json", `{"tool": "x"}`, `[{"args": {}}]`} {
		if _, err := ParseActions(bad); !errors.Is(err, errors.ErrPlanInvalid) {
			t.Errorf("ParseActions(%q) error = %v, want ErrPlanInvalid", bad, err)
		}
	}
}

func TestDecode_YAMLPlan(t *testing.T) {
	doc := `
steps:
  - id: fetch
    tool: fetch_stock_data
    params:
      ticker: googl
      period: 6mo
  - id: bands
    tool: calculate_bollinger_bands
    description: Bands over the fetched series
    params:
      series: {ref: fetch, field: series}
      period: 10
      std_dev: 2.5
`
	plan, err := Decode([]byte(doc))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if err := engine.Validate(plan); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	bands := plan.Steps[1]
	if bands.Params["series"].Ref == nil || bands.Params["series"].Ref.Step != "fetch" {
		t.Errorf("series = %+v", bands.Params["series"])
	}
	if bands.Params["period"].Literal != 10 || bands.Params["std_dev"].Literal != 2.5 {
		t.Errorf("literals = %#v / %#v", bands.Params["period"].Literal, bands.Params["std_dev"].Literal)
	}
}

func TestDecode_JSONActionList(t *testing.T) {
	doc := `[
		{"tool": "fetch_stock_data", "args": {"ticker": "AMZN", "period": "2y"}},
		{"tool": "calculate_moving_average", "args": {"data": "result_of_fetch_stock_data", "period": 50}}
	]`
	plan, err := Decode([]byte(doc))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(plan.Steps) != 2 || plan.Steps[1].Params["series"].Ref == nil {
		t.Errorf("plan = %+v", plan)
	}
}

func TestDecode_Errors(t *testing.T) {
	for _, doc := range []string{"", "just a string", "steps:\n  - id: a\n    params:\n      series: {step: x}\n"} {
		if _, err := Decode([]byte(doc)); !errors.Is(err, errors.ErrPlanInvalid) {
			t.Errorf("Decode(%q) error = %v, want ErrPlanInvalid", doc, err)
		}
	}
}

func TestEncode_RoundTrip(t *testing.T) {
	plan := engine.Plan{Steps: []engine.Step{
		{ID: "fetch", Tool: tools.FetchStockData, Params: map[string]engine.Value{"ticker": engine.Lit("TSLA")}},
		{ID: "rsi", Tool: tools.CalculateRSI, Params: map[string]engine.Value{
			"series": engine.RefTo("fetch", "series"),
			"period": engine.Lit(7),
		}},
	}}

	data, err := Encode(plan)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	path := filepath.Join(t.TempDir(), "plan.yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	loaded, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if err := engine.Validate(loaded); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if loaded.Steps[1].Params["series"].Ref.String() != "fetch.series" {
		t.Errorf("ref = %v", loaded.Steps[1].Params["series"].Ref)
	}
}

func TestSystemPrompt(t *testing.T) {
	prompt := SystemPrompt()
	for _, spec := range tools.All() {
		if !strings.Contains(prompt, string(spec.Name)) {
			t.Errorf("system prompt does not mention %s", spec.Name)
		}
	}
	if !strings.Contains(prompt, `use period "5d"`) {
		t.Error("system prompt should carry the latest-data rule")
	}
}
