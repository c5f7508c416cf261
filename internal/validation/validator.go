package validation

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rendis/conduit/internal/actions"
	"github.com/rendis/conduit/internal/expressions"
	"github.com/rendis/conduit/pkg/schema"
)

// Validator checks invocation arguments against an action schema.
// It performs no I/O and is safe for concurrent use.
type Validator struct {
	structural *JSONSchemaValidator
	rules      *expressions.ExprEngine
}

// New creates a Validator. rules evaluates cross-field rules; nil uses a
// private engine.
func New(rules *expressions.ExprEngine) *Validator {
	if rules == nil {
		rules = expressions.NewExprEngine()
	}
	return &Validator{
		structural: NewJSONSchemaValidator(),
		rules:      rules,
	}
}

// Precompile compiles every input schema and rule of the registry so a broken
// catalog fails at startup.
func (v *Validator) Precompile(reg *actions.SchemaRegistry) error {
	for _, s := range reg.List() {
		if _, err := v.structural.compile(s); err != nil {
			return fmt.Errorf("action %s: %w", s.Name, err)
		}
		for _, r := range s.Rules {
			if err := v.rules.Compile(r.Expr); err != nil {
				return fmt.Errorf("action %s: %w", s.Name, err)
			}
		}
	}
	return nil
}

// Validate checks args against s. On success it returns the normalized
// arguments: defaults applied, dates in RFC 3339. Otherwise every failing
// field is reported, one issue per field.
func (v *Validator) Validate(s *actions.ActionSchema, args map[string]any) (actions.Arguments, []schema.ValidationIssue) {
	result := &schema.ValidationResult{}

	plain, err := toPlain(args)
	if err != nil {
		result.Add("arguments", schema.IssueMalformed, "arguments are not JSON-encodable: "+err.Error())
		return nil, result.Issues
	}

	result.Merge(v.structural.Check(s, plain))

	normalized := actions.Arguments(plain)
	applyDefaults(s, normalized)
	dates := checkSemantics(s, normalized, result)
	v.checkRules(s, normalized, dates, result)

	if !result.Valid() {
		return nil, result.Issues
	}
	return normalized, nil
}

// checkRules runs cross-field rules whose fields are all present and valid.
func (v *Validator) checkRules(s *actions.ActionSchema, args actions.Arguments, dates map[string]any, result *schema.ValidationResult) {
	for _, rule := range s.Rules {
		if len(rule.Fields) == 0 || !rulesReady(rule, args, result) {
			continue
		}

		env := make(map[string]any, len(args))
		for k, val := range args {
			env[k] = val
		}
		for k, t := range dates {
			env[k] = t
		}

		ok, err := v.rules.EvaluateBool(context.Background(), rule.Expr, env)
		if err != nil {
			result.Add(rule.Fields[0], schema.IssueRule, "rule could not be evaluated: "+err.Error())
			continue
		}
		if !ok {
			result.Add(rule.Fields[0], schema.IssueRule, rule.Message)
		}
	}
}

func rulesReady(rule actions.Rule, args actions.Arguments, result *schema.ValidationResult) bool {
	for _, f := range rule.Fields {
		if !args.Has(f) || result.HasField(f) {
			return false
		}
	}
	return true
}

func applyDefaults(s *actions.ActionSchema, args actions.Arguments) {
	for _, p := range s.Parameters {
		if p.Constraints.Default == nil {
			continue
		}
		if _, present := args[p.Name]; !present {
			args[p.Name] = p.Constraints.Default
		}
	}
}

// toPlain deep-copies args through encoding/json so numbers become float64
// and typed slices become []any, whatever the transport produced.
func toPlain(args map[string]any) (map[string]any, error) {
	if args == nil {
		return map[string]any{}, nil
	}
	b, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}
