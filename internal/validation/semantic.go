package validation

import (
	"fmt"
	"strings"
	"time"

	"github.com/rendis/conduit/internal/actions"
	"github.com/rendis/conduit/pkg/schema"
)

const dateOnly = "2006-01-02"

// checkSemantics covers what the structural pass cannot: real calendar dates
// and ordered time ranges. Fields that already failed structurally are
// skipped. Dates are normalized in args to RFC 3339 UTC and returned as
// time.Time for rule evaluation.
func checkSemantics(s *actions.ActionSchema, args actions.Arguments, result *schema.ValidationResult) map[string]any {
	dates := map[string]any{}

	for _, p := range s.Parameters {
		if !args.Has(p.Name) || result.HasField(p.Name) {
			continue
		}

		switch {
		case p.Kind == actions.KindDate:
			t, err := parseDate(args.String(p.Name))
			if err != nil {
				result.Add(p.Name, schema.IssueFormat, "must be an ISO-8601 date (YYYY-MM-DD or RFC 3339)")
				continue
			}
			args[p.Name] = t.Format(time.RFC3339)
			dates[p.Name] = t

		case p.Constraints.Format == actions.FormatTimeRange:
			if msg := checkTimeRange(args.String(p.Name)); msg != "" {
				result.Add(p.Name, schema.IssueRange, msg)
			}

		case p.Kind == actions.KindArray && p.Constraints.Items != nil &&
			p.Constraints.Items.Constraints.Format == actions.FormatTimeRange:
			for i, item := range args.Strings(p.Name) {
				field := fmt.Sprintf("%s[%d]", p.Name, i)
				if result.HasField(field) {
					continue
				}
				if msg := checkTimeRange(item); msg != "" {
					result.Add(field, schema.IssueRange, msg)
				}
			}
		}
	}
	return dates
}

// parseDate accepts YYYY-MM-DD or RFC 3339 and returns the instant in UTC.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(dateOnly, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// checkTimeRange returns "" when s is a valid "HH:MM-HH:MM" window.
func checkTimeRange(s string) string {
	from, to, ok := strings.Cut(s, "-")
	if !ok {
		return `must look like "HH:MM-HH:MM"`
	}
	start, err1 := time.Parse("15:04", from)
	end, err2 := time.Parse("15:04", to)
	if err1 != nil || err2 != nil {
		return "must use valid 24-hour clock times"
	}
	if !start.Before(end) {
		return "start must be before end"
	}
	return ""
}
