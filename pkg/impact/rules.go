package impact

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// Rule is an operator-configured alert predicate evaluated per group
// against the reference group. Expressions see three variables:
//
//	group     - the group under test (value, rates, sample_count, ratio)
//	reference - the reference group
//	ratio     - group.positive_rate / reference.positive_rate
//
// A rule that evaluates to true emits an Alert{Type: CUSTOM_RULE}.
type Rule struct {
	Name string `json:"name" yaml:"name"`
	Expr string `json:"expr" yaml:"expr"`
}

// RuleEngine compiles and caches CEL programs for alert rules.
// Programs are cost-limited so a pathological expression cannot stall
// an impact scan.
type RuleEngine struct {
	env      *cel.Env
	mu       sync.RWMutex
	programs map[string]cel.Program
}

// NewRuleEngine creates an engine with the impact rule environment.
func NewRuleEngine() (*RuleEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable("group", cel.DynType),
		cel.Variable("reference", cel.DynType),
		cel.Variable("ratio", cel.DoubleType),
	)
	if err != nil {
		return nil, fmt.Errorf("impact: create rule environment: %w", err)
	}
	return &RuleEngine{
		env:      env,
		programs: make(map[string]cel.Program),
	}, nil
}

// Matches evaluates one rule against a group and the reference group.
func (e *RuleEngine) Matches(rule Rule, group, reference GroupStat) (bool, error) {
	prg, err := e.program(rule.Expr)
	if err != nil {
		return false, err
	}

	out, _, err := prg.Eval(map[string]any{
		"group":     groupInput(group),
		"reference": groupInput(reference),
		"ratio":     group.Ratio,
	})
	if err != nil {
		return false, fmt.Errorf("eval: %w", err)
	}
	matched, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("rule result is %T, want bool", out.Value())
	}
	return matched, nil
}

func (e *RuleEngine) program(expr string) (cel.Program, error) {
	e.mu.RLock()
	prg, hit := e.programs[expr]
	e.mu.RUnlock()
	if hit {
		return prg, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if prg, hit = e.programs[expr]; hit {
		return prg, nil
	}

	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile: %w", issues.Err())
	}
	prg, err := e.env.Program(ast,
		cel.InterruptCheckFrequency(100),
		cel.CostLimit(10000),
	)
	if err != nil {
		return nil, fmt.Errorf("program: %w", err)
	}
	e.programs[expr] = prg
	return prg, nil
}

func groupInput(g GroupStat) map[string]any {
	return map[string]any{
		"value":         g.Value,
		"sample_count":  g.SampleCount,
		"positive_rate": g.PositiveRate,
		"harm_rate":     g.HarmRate,
		"appeal_rate":   g.AppealRate,
		"ratio":         g.Ratio,
		"status":        g.Status,
	}
}
