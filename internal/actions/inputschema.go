package actions

import (
	"encoding/json"
)

const draft202012 = "https://json-schema.org/draft/2020-12/schema"

// datePrefixPattern accepts YYYY-MM-DD optionally followed by an RFC 3339 time.
const datePrefixPattern = `^[0-9]{4}-[0-9]{2}-[0-9]{2}([T ].+)?$`

// timeRangePattern is the shape of FormatTimeRange; the validator checks the
// clock values and their order.
const timeRangePattern = `^[0-9]{2}:[0-9]{2}-[0-9]{2}:[0-9]{2}$`

// InputSchema derives the JSON Schema (draft 2020-12) for the action's
// arguments. It feeds the validator, MCP tool definitions and the catalog
// endpoint.
func (s *ActionSchema) InputSchema() json.RawMessage {
	props := make(map[string]any, len(s.Parameters))
	required := []string{}
	for _, p := range s.Parameters {
		props[p.Name] = parameterSchema(p)
		if p.Required {
			required = append(required, p.Name)
		}
	}

	doc := map[string]any{
		"$schema":              draft202012,
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}
	if s.Description != "" {
		doc["description"] = s.Description
	}

	b, err := json.Marshal(doc)
	if err != nil {
		// Every value above is a plain map, slice, string or number.
		panic("actions: marshal input schema: " + err.Error())
	}
	return b
}

func parameterSchema(p Parameter) map[string]any {
	c := p.Constraints
	out := map[string]any{}
	if p.Description != "" {
		out["description"] = p.Description
	}
	if c.Default != nil {
		out["default"] = c.Default
	}

	switch p.Kind {
	case KindNumber:
		out["type"] = "number"
		if c.Integer {
			out["type"] = "integer"
		}
		if c.Min != nil {
			out["minimum"] = *c.Min
		}
		if c.Max != nil {
			out["maximum"] = *c.Max
		}
	case KindDate:
		out["type"] = "string"
		out["pattern"] = datePrefixPattern
	case KindEnum:
		out["type"] = "string"
		out["enum"] = c.Enum
	case KindArray:
		out["type"] = "array"
		if c.Items != nil {
			out["items"] = parameterSchema(*c.Items)
		}
		if c.MinItems != nil {
			out["minItems"] = *c.MinItems
		}
		if c.MaxItems != nil {
			out["maxItems"] = *c.MaxItems
		}
	default:
		out["type"] = "string"
		switch c.Format {
		case FormatIdentifier:
			out["pattern"] = IdentifierPattern
		case FormatTimeRange:
			out["pattern"] = timeRangePattern
		}
		if c.MinLength != nil {
			out["minLength"] = *c.MinLength
		}
		if c.MaxLength != nil {
			out["maxLength"] = *c.MaxLength
		}
	}
	return out
}
