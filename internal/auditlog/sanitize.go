package auditlog

import (
	"encoding/json"
	"regexp"
	"unicode/utf8"

	"github.com/rendis/conduit/internal/actions"
)

var (
	identifierRe = regexp.MustCompile(actions.IdentifierPattern)
	dateRe       = regexp.MustCompile(`^[0-9]{4}-[0-9]{2}-[0-9]{2}([T ][0-9:.+\-Z]{1,30})?$`)
	timeRangeRe  = regexp.MustCompile(`^[0-9]{2}:[0-9]{2}-[0-9]{2}:[0-9]{2}$`)
)

// Sanitize projects raw invocation arguments onto what the execution log may
// keep. Identifiers, numbers, enum values, dates and time ranges are kept
// verbatim. Free text is reduced to its length, arrays to their count
// (identifier arrays keep the IDs). Arguments the schema does not declare, or
// values that do not have the declared shape, keep only their type and size.
// s may be nil when the action is unknown.
func Sanitize(s *actions.ActionSchema, args map[string]any) map[string]any {
	out := make(map[string]any, len(args))
	for name, v := range args {
		var p *actions.Parameter
		if s != nil {
			p, _ = s.Param(name)
		}
		if p == nil {
			out[name] = describe(v)
			continue
		}
		out[name] = sanitizeValue(p, v)
	}
	return out
}

func sanitizeValue(p *actions.Parameter, v any) any {
	switch p.Kind {
	case actions.KindNumber:
		if isNumber(v) {
			return v
		}
	case actions.KindEnum:
		if str, ok := v.(string); ok {
			for _, allowed := range p.Constraints.Enum {
				if str == allowed {
					return str
				}
			}
		}
	case actions.KindDate:
		if str, ok := v.(string); ok && dateRe.MatchString(str) {
			return str
		}
	case actions.KindString:
		str, ok := v.(string)
		if !ok {
			break
		}
		switch p.Constraints.Format {
		case actions.FormatIdentifier:
			if identifierRe.MatchString(str) {
				return str
			}
		case actions.FormatTimeRange:
			if timeRangeRe.MatchString(str) {
				return str
			}
		}
		return map[string]any{"length": utf8.RuneCountInString(str)}
	case actions.KindArray:
		var items []any
		switch val := v.(type) {
		case []any:
			items = val
		case []string:
			items = make([]any, len(val))
			for i, str := range val {
				items[i] = str
			}
		default:
			return describe(v)
		}
		summary := map[string]any{"count": len(items)}
		if it := p.Constraints.Items; it != nil && it.Constraints.Format == actions.FormatIdentifier {
			ids := make([]string, 0, len(items))
			for _, item := range items {
				if str, ok := item.(string); ok && identifierRe.MatchString(str) {
					ids = append(ids, str)
				}
			}
			summary["ids"] = ids
		}
		return summary
	}
	return describe(v)
}

// describe reduces a value to its JSON type and size.
func describe(v any) map[string]any {
	switch val := v.(type) {
	case nil:
		return map[string]any{"type": "null"}
	case string:
		return map[string]any{"type": "string", "length": utf8.RuneCountInString(val)}
	case bool:
		return map[string]any{"type": "boolean"}
	case []any:
		return map[string]any{"type": "array", "count": len(val)}
	case []string:
		return map[string]any{"type": "array", "count": len(val)}
	case map[string]any:
		return map[string]any{"type": "object", "size": len(val)}
	}
	if isNumber(v) {
		return map[string]any{"type": "number"}
	}
	return map[string]any{"type": "unknown"}
}

func isNumber(v any) bool {
	switch v.(type) {
	case float64, float32, int, int32, int64, uint, uint32, uint64, json.Number:
		return true
	}
	return false
}
