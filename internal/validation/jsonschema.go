package validation

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/rendis/conduit/internal/actions"
	"github.com/rendis/conduit/pkg/schema"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/santhosh-tekuri/jsonschema/v6/kind"
)

// JSONSchemaValidator checks arguments against the JSON Schema generated from
// an action's parameters. It is safe for concurrent use.
type JSONSchemaValidator struct {
	mu    sync.RWMutex
	cache map[string]*jsonschema.Schema
}

// NewJSONSchemaValidator creates a validator with an empty compile cache.
func NewJSONSchemaValidator() *JSONSchemaValidator {
	return &JSONSchemaValidator{
		cache: make(map[string]*jsonschema.Schema),
	}
}

// Check returns one issue per failing field. Missing required parameters and
// unknown parameters are expanded so each field gets its own issue.
func (v *JSONSchemaValidator) Check(s *actions.ActionSchema, args map[string]any) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	compiled, err := v.compile(s)
	if err != nil {
		result.Add("arguments", schema.IssueMalformed, "schema for "+s.Name+" does not compile: "+err.Error())
		return result
	}

	doc, err := toJSONValue(args)
	if err != nil {
		result.Add("arguments", schema.IssueMalformed, "arguments are not valid JSON: "+err.Error())
		return result
	}

	if err := compiled.Validate(doc); err != nil {
		verr, ok := err.(*jsonschema.ValidationError)
		if !ok {
			result.Add("arguments", schema.IssueMalformed, err.Error())
			return result
		}
		collectIssues(s, verr, result)
	}
	return result
}

// compile returns a cached compiled schema or compiles and caches a new one.
func (v *JSONSchemaValidator) compile(s *actions.ActionSchema) (*jsonschema.Schema, error) {
	raw := s.InputSchema()
	key := string(raw)

	v.mu.RLock()
	if cached, ok := v.cache[key]; ok {
		v.mu.RUnlock()
		return cached, nil
	}
	v.mu.RUnlock()

	v.mu.Lock()
	defer v.mu.Unlock()

	// Double-check after acquiring write lock.
	if cached, ok := v.cache[key]; ok {
		return cached, nil
	}

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(key))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}

	url := fmt.Sprintf("conduit://actions/%s/%d.json", s.Name, len(v.cache))

	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}

	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	v.cache[key] = compiled
	return compiled, nil
}

// toJSONValue round-trips a Go value through JSON encoding/decoding so that
// numeric values become json.Number (required by the jsonschema library).
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
}

// collectIssues walks a ValidationError tree and turns every leaf into issues.
func collectIssues(s *actions.ActionSchema, verr *jsonschema.ValidationError, result *schema.ValidationResult) {
	if len(verr.Causes) > 0 {
		for _, cause := range verr.Causes {
			collectIssues(s, cause, result)
		}
		return
	}

	switch k := verr.ErrorKind.(type) {
	case *kind.Required:
		for _, name := range k.Missing {
			result.Add(joinField(verr.InstanceLocation, name), schema.IssueRequired, "is required")
		}
		return
	case *kind.AdditionalProperties:
		for _, name := range k.Properties {
			result.Add(joinField(verr.InstanceLocation, name), schema.IssueUnknown,
				fmt.Sprintf("is not a parameter of %s", s.Name))
		}
		return
	}

	keyword := ""
	if path := verr.ErrorKind.KeywordPath(); len(path) > 0 {
		keyword = path[len(path)-1]
	}
	code := issueCode(keyword)
	field := joinField(verr.InstanceLocation, "")
	if field == "" {
		field = "arguments"
	}
	result.Add(field, code, describe(s, verr.InstanceLocation, code, keyword))
}

// joinField renders an instance location as participants[1] style.
func joinField(loc []string, leaf string) string {
	var b strings.Builder
	for _, part := range append(append([]string(nil), loc...), leaf) {
		if part == "" {
			continue
		}
		if _, err := strconv.Atoi(part); err == nil && b.Len() > 0 {
			fmt.Fprintf(&b, "[%s]", part)
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(part)
	}
	return b.String()
}

func issueCode(keyword string) string {
	switch keyword {
	case "type":
		return schema.IssueType
	case "minimum", "maximum", "exclusiveMinimum", "exclusiveMaximum", "multipleOf":
		return schema.IssueRange
	case "minLength", "maxLength", "minItems", "maxItems":
		return schema.IssueLength
	case "pattern", "format":
		return schema.IssueFormat
	case "enum", "const":
		return schema.IssueEnum
	}
	return schema.IssueConstraint
}

// describe phrases an issue from the parameter definition so callers get a
// message they can act on without reading JSON Schema keywords.
func describe(s *actions.ActionSchema, loc []string, code, keyword string) string {
	p := paramAt(s, loc)
	if p == nil {
		return fmt.Sprintf("violates %q", keyword)
	}
	c := p.Constraints

	switch code {
	case schema.IssueType:
		return "must be " + kindNoun(p)
	case schema.IssueRange:
		return "must be " + bounds(c.Min, c.Max)
	case schema.IssueLength:
		if p.Kind == actions.KindArray {
			return "must have " + intBounds(c.MinItems, c.MaxItems) + " items"
		}
		return "length must be " + intBounds(c.MinLength, c.MaxLength)
	case schema.IssueFormat:
		return formatHint(p)
	case schema.IssueEnum:
		return "must be one of: " + strings.Join(c.Enum, ", ")
	}
	return fmt.Sprintf("violates %q", keyword)
}

// paramAt resolves the parameter (or array item parameter) at loc.
func paramAt(s *actions.ActionSchema, loc []string) *actions.Parameter {
	if len(loc) == 0 {
		return nil
	}
	p, ok := s.Param(loc[0])
	if !ok {
		return nil
	}
	if len(loc) > 1 && p.Constraints.Items != nil {
		return p.Constraints.Items
	}
	return p
}

func kindNoun(p *actions.Parameter) string {
	switch p.Kind {
	case actions.KindNumber:
		if p.Constraints.Integer {
			return "an integer"
		}
		return "a number"
	case actions.KindArray:
		return "an array"
	case actions.KindDate:
		return "an ISO-8601 date string"
	}
	return "a string"
}

func formatHint(p *actions.Parameter) string {
	if p.Kind == actions.KindDate {
		return "must be an ISO-8601 date (YYYY-MM-DD or RFC 3339)"
	}
	switch p.Constraints.Format {
	case actions.FormatIdentifier:
		return "must be 1-128 characters of letters, digits, '_' or '-'"
	case actions.FormatTimeRange:
		return `must look like "HH:MM-HH:MM"`
	}
	return "has an invalid format"
}

func bounds(lo, hi *float64) string {
	switch {
	case lo != nil && hi != nil:
		return fmt.Sprintf("between %s and %s", fmtNum(*lo), fmtNum(*hi))
	case lo != nil:
		return ">= " + fmtNum(*lo)
	case hi != nil:
		return "<= " + fmtNum(*hi)
	}
	return "in range"
}

func intBounds(lo, hi *int) string {
	switch {
	case lo != nil && hi != nil:
		return fmt.Sprintf("between %d and %d", *lo, *hi)
	case lo != nil:
		return fmt.Sprintf("at least %d", *lo)
	case hi != nil:
		return fmt.Sprintf("at most %d", *hi)
	}
	return "within bounds"
}

func fmtNum(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
