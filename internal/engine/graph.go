package engine

import (
	"fmt"

	"stock-analyst/internal/errors"
	"stock-analyst/internal/tools"
)

// graph is a validated plan with resolved references and a dependency order.
type graph struct {
	steps   map[string]Step
	specs   map[string]tools.Spec
	index   map[string]int      // plan position
	deps    map[string][]string // step -> referenced step ids
	users   map[string][]string // step -> dependent step ids
	refs    map[string]map[string]Ref
	aliases map[string]string // result_of_<tool> -> step id
	layers  [][]string
	order   []string
}

// buildGraph validates plan. Every error is a *errors.PlanValidationError.
// References, including result_of_<tool> aliases, must point to a step that
// appears earlier in the plan; execution order may still differ from plan
// order when independent steps share a layer.
func buildGraph(plan Plan) (*graph, error) {
	if len(plan.Steps) == 0 {
		return nil, errors.NewPlanValidationError("", "plan has no steps", nil)
	}

	g := &graph{
		steps:   make(map[string]Step, len(plan.Steps)),
		specs:   make(map[string]tools.Spec, len(plan.Steps)),
		index:   make(map[string]int, len(plan.Steps)),
		deps:    make(map[string][]string, len(plan.Steps)),
		users:   make(map[string][]string, len(plan.Steps)),
		refs:    make(map[string]map[string]Ref, len(plan.Steps)),
		aliases: make(map[string]string),
	}

	for i, step := range plan.Steps {
		if step.ID == "" {
			return nil, errors.NewPlanValidationError(fmt.Sprintf("#%d", i+1), "step id is empty", nil)
		}
		if _, dup := g.steps[step.ID]; dup {
			return nil, errors.NewPlanValidationError(step.ID, "step id is not unique", errors.ErrDuplicateStep)
		}
		spec, ok := tools.Lookup(step.Tool)
		if !ok {
			return nil, errors.NewPlanValidationError(step.ID, fmt.Sprintf("tool %q is not registered", step.Tool), errors.ErrUnknownTool)
		}
		g.steps[step.ID] = step
		g.specs[step.ID] = spec
		g.index[step.ID] = i
		alias := Alias(step.Tool)
		if _, taken := g.aliases[alias]; !taken {
			g.aliases[alias] = step.ID
		}
	}

	for _, step := range plan.Steps {
		if err := g.resolveRefs(step); err != nil {
			return nil, err
		}
	}

	if err := g.sort(plan); err != nil {
		return nil, err
	}
	return g, nil
}

// resolveRefs checks each reference of step and records the edges.
func (g *graph) resolveRefs(step Step) error {
	spec := g.specs[step.ID]
	resolved := map[string]Ref{}
	seen := map[string]bool{}

	for name, v := range step.Params {
		if v.Ref == nil {
			continue
		}
		param, ok := spec.Param(name)
		if !ok {
			return errors.NewPlanValidationError(step.ID,
				fmt.Sprintf("parameter %q does not exist on %s", name, spec.Name), errors.ErrDanglingReference)
		}

		target := v.Ref.Step
		if _, ok := g.steps[target]; !ok {
			id, isAlias := g.aliases[target]
			if !isAlias {
				return errors.NewPlanValidationError(step.ID,
					fmt.Sprintf("parameter %q references unknown step %q", name, target), errors.ErrDanglingReference)
			}
			target = id
		}
		if target == step.ID {
			return errors.NewPlanValidationError(step.ID,
				fmt.Sprintf("parameter %q references its own step", name), errors.ErrCyclicPlan)
		}
		if g.index[target] > g.index[step.ID] {
			return errors.NewPlanValidationError(step.ID,
				fmt.Sprintf("parameter %q references step %q, which comes later in the plan", name, target),
				errors.ErrForwardReference)
		}

		targetSpec := g.specs[target]
		field := v.Ref.Field
		if field == "" {
			field = primaryOutput(targetSpec)
		}
		kind, ok := targetSpec.Output(field)
		if !ok {
			return errors.NewPlanValidationError(step.ID,
				fmt.Sprintf("parameter %q references unknown field %q of step %q (%s outputs: %v)",
					name, field, target, targetSpec.Name, targetSpec.OutputFields()),
				errors.ErrDanglingReference)
		}
		if !param.Kind.Accepts(kind) {
			return errors.NewPlanValidationError(step.ID,
				fmt.Sprintf("parameter %q expects %s but %s.%s is %s", name, param.Kind, target, field, kind), nil)
		}

		resolved[name] = Ref{Step: target, Field: field}
		if !seen[target] {
			seen[target] = true
			g.deps[step.ID] = append(g.deps[step.ID], target)
			g.users[target] = append(g.users[target], step.ID)
		}
	}

	g.sortByPlanOrder(g.deps[step.ID])
	g.refs[step.ID] = resolved
	return nil
}

// sort computes a topological order with Kahn's algorithm, grouping steps
// into layers whose members depend only on earlier layers. Ties keep plan
// order.
func (g *graph) sort(plan Plan) error {
	indegree := make(map[string]int, len(plan.Steps))
	for _, step := range plan.Steps {
		indegree[step.ID] = len(g.deps[step.ID])
	}

	var layer []string
	for _, step := range plan.Steps {
		if indegree[step.ID] == 0 {
			layer = append(layer, step.ID)
		}
	}

	for len(layer) > 0 {
		g.layers = append(g.layers, layer)
		g.order = append(g.order, layer...)

		var next []string
		for _, id := range layer {
			for _, user := range g.users[id] {
				indegree[user]--
				if indegree[user] == 0 {
					next = append(next, user)
				}
			}
		}
		g.sortByPlanOrder(next)
		layer = next
	}

	if len(g.order) != len(plan.Steps) {
		for _, step := range plan.Steps {
			if indegree[step.ID] > 0 {
				return errors.NewPlanValidationError(step.ID, "step is part of a reference cycle", errors.ErrCyclicPlan)
			}
		}
	}
	return nil
}

func (g *graph) sortByPlanOrder(ids []string) {
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && g.index[ids[j]] < g.index[ids[j-1]]; j-- {
			ids[j], ids[j-1] = ids[j-1], ids[j]
		}
	}
}

func primaryOutput(spec tools.Spec) string {
	if spec.IsIndicator() {
		return tools.FieldResult
	}
	return tools.FieldSeries
}
