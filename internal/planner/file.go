package planner

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"stock-analyst/internal/engine"
	"stock-analyst/internal/errors"
	"stock-analyst/internal/tools"
)

type fileStep struct {
	ID          string                 `yaml:"id"`
	Tool        string                 `yaml:"tool"`
	Params      map[string]interface{} `yaml:"params,omitempty"`
	Description string                 `yaml:"description,omitempty"`
}

type filePlan struct {
	Steps []fileStep `yaml:"steps"`
}

// LoadFile reads a plan from a JSON or YAML file.
func LoadFile(path string) (engine.Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return engine.Plan{}, fmt.Errorf("failed to read plan file: %w", err)
	}
	plan, err := Decode(data)
	if err != nil {
		return engine.Plan{}, fmt.Errorf("failed to parse plan %s: %w", path, err)
	}
	return plan, nil
}

// Decode parses a plan document. Two shapes are accepted: a mapping with a
// "steps" list of {id, tool, params, description}, or a bare action list of
// {tool, args, description} as produced by the LLM planner. JSON is parsed
// as YAML.
func Decode(data []byte) (engine.Plan, error) {
	var doc yaml.Node
	if err := yaml.NewDecoder(bytes.NewReader(data)).Decode(&doc); err != nil {
		return engine.Plan{}, errors.Wrapf(errors.ErrPlanInvalid, "%v", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return engine.Plan{}, errors.Wrap(errors.ErrPlanInvalid, "plan document is empty")
	}

	root := doc.Content[0]
	switch root.Kind {
	case yaml.SequenceNode:
		var actions []Action
		if err := root.Decode(&actions); err != nil {
			return engine.Plan{}, errors.Wrapf(errors.ErrPlanInvalid, "%v", err)
		}
		return FromActions(actions)

	case yaml.MappingNode:
		var fp filePlan
		if err := root.Decode(&fp); err != nil {
			return engine.Plan{}, errors.Wrapf(errors.ErrPlanInvalid, "%v", err)
		}
		return fp.toPlan()
	}
	return engine.Plan{}, errors.Wrap(errors.ErrPlanInvalid, "plan must be a mapping with steps or a list of actions")
}

func (fp filePlan) toPlan() (engine.Plan, error) {
	plan := engine.Plan{Steps: make([]engine.Step, 0, len(fp.Steps))}
	for i, s := range fp.Steps {
		id := s.ID
		if id == "" {
			id = fmt.Sprintf("step_%d", i+1)
		}
		params := make(map[string]engine.Value, len(s.Params))
		for name, raw := range s.Params {
			v, err := engine.ParseValue(normalizeYAML(raw))
			if err != nil {
				return engine.Plan{}, errors.NewPlanValidationError(id, fmt.Sprintf("parameter %q: %v", name, err), nil)
			}
			params[name] = v
		}
		plan.Steps = append(plan.Steps, engine.Step{
			ID:          id,
			Tool:        tools.Name(s.Tool),
			Params:      params,
			Description: s.Description,
		})
	}
	return plan, nil
}

// normalizeYAML converts map[interface{}]interface{} values, which yaml.v3
// produces for non-string keys, into string-keyed maps.
func normalizeYAML(v interface{}) interface{} {
	switch t := v.(type) {
	case map[interface{}]interface{}:
		m := make(map[string]interface{}, len(t))
		for k, val := range t {
			m[fmt.Sprint(k)] = normalizeYAML(val)
		}
		return m
	case map[string]interface{}:
		for k, val := range t {
			t[k] = normalizeYAML(val)
		}
		return t
	case []interface{}:
		for i, val := range t {
			t[i] = normalizeYAML(val)
		}
		return t
	}
	return v
}

// Encode writes a plan in the file format read by Decode.
func Encode(plan engine.Plan) ([]byte, error) {
	fp := filePlan{Steps: make([]fileStep, 0, len(plan.Steps))}
	for _, s := range plan.Steps {
		params := make(map[string]interface{}, len(s.Params))
		for name, v := range s.Params {
			if v.Ref != nil {
				ref := map[string]interface{}{"ref": v.Ref.Step}
				if v.Ref.Field != "" {
					ref["field"] = v.Ref.Field
				}
				params[name] = ref
				continue
			}
			params[name] = plainLiteral(v.Literal)
		}
		fp.Steps = append(fp.Steps, fileStep{
			ID:          s.ID,
			Tool:        string(s.Tool),
			Params:      params,
			Description: s.Description,
		})
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(fp); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// plainLiteral turns json.Number into int64 or float64 so YAML output keeps
// numbers unquoted.
func plainLiteral(v interface{}) interface{} {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return string(n)
}
