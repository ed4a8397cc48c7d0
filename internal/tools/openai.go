package tools

import (
	"encoding/json"

	"github.com/sashabaranov/go-openai"

	"stock-analyst/internal/marketdata"
)

var jsonTypes = map[Kind]string{
	KindString: "string",
	KindPeriod: "string",
	KindInt:    "integer",
	KindFloat:  "number",
	KindSeries: "string",
	KindResult: "string",
}

// DescriptionArg is an optional argument of every tool definition carrying a
// short label for the step. It is not a tool parameter.
const DescriptionArg = "description"

// Definitions returns OpenAI function tool definitions for every tool.
// Series parameters are described as "result_of_<tool>" reference strings,
// which the planner turns into step references.
func Definitions() []openai.Tool {
	defs := make([]openai.Tool, 0, len(order))
	for _, spec := range All() {
		defs = append(defs, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        string(spec.Name),
				Description: spec.Description,
				Parameters:  schemaFor(spec),
			},
		})
	}
	return defs
}

func schemaFor(spec Spec) json.RawMessage {
	properties := make(map[string]interface{}, len(spec.Params))
	required := []string{}

	for _, p := range spec.Params {
		prop := map[string]interface{}{
			"type":        jsonTypes[p.Kind],
			"description": p.Description,
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		if p.Kind == KindPeriod {
			enum := make([]string, 0, len(marketdata.StandardPeriods))
			for _, period := range marketdata.StandardPeriods {
				enum = append(enum, string(period))
			}
			prop["enum"] = enum
		}
		if p.Kind == KindSeries {
			prop["description"] = p.Description + `, e.g. "result_of_fetch_stock_data"`
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}

	properties[DescriptionArg] = map[string]interface{}{
		"type":        "string",
		"description": "Short label for this step",
	}

	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
	data, _ := json.Marshal(schema)
	return data
}
