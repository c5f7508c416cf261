package schema

import (
	"fmt"
	"strings"
)

// Issue codes attached to ValidationIssue.Code.
const (
	IssueRequired   = "required"
	IssueType       = "type"
	IssueRange      = "range"
	IssueLength     = "length"
	IssueFormat     = "format"
	IssueEnum       = "enum"
	IssueUnknown    = "unknown_parameter"
	IssueRule       = "rule"
	IssueMalformed  = "malformed"
	IssueConstraint = "constraint"
)

// ValidationIssue is a single field-level problem with an argument.
type ValidationIssue struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationResult aggregates every issue found for one request.
type ValidationResult struct {
	Issues []ValidationIssue `json:"issues,omitempty"`
}

// Valid returns true if no issue was collected.
func (r *ValidationResult) Valid() bool {
	return len(r.Issues) == 0
}

// Add appends an issue.
func (r *ValidationResult) Add(field, code, message string) {
	r.Issues = append(r.Issues, ValidationIssue{Field: field, Code: code, Message: message})
}

// HasField reports whether an issue was already recorded for field.
func (r *ValidationResult) HasField(field string) bool {
	for _, is := range r.Issues {
		if is.Field == field {
			return true
		}
	}
	return false
}

// Merge combines another ValidationResult into this one.
func (r *ValidationResult) Merge(other *ValidationResult) {
	if other == nil {
		return
	}
	r.Issues = append(r.Issues, other.Issues...)
}

// ToError converts the result to an invalid_parameters error, nil if valid.
// The message names every failing field so a caller can fix all of them in
// one round trip.
func (r *ValidationResult) ToError() error {
	if r.Valid() {
		return nil
	}
	return IssuesError(r.Issues)
}

// IssuesError builds the invalid_parameters error for a list of issues.
func IssuesError(issues []ValidationIssue) *ConduitError {
	parts := make([]string, 0, len(issues))
	for _, is := range issues {
		parts = append(parts, fmt.Sprintf("%s: %s", is.Field, is.Message))
	}

	msg := parts[0]
	if len(issues) > 1 {
		msg = fmt.Sprintf("%d invalid parameters: %s", len(issues), strings.Join(parts, "; "))
	}

	return NewError(ErrCodeInvalidParameters, msg).
		WithDetails(map[string]any{
			"issue_count": len(issues),
			"issues":      issues,
		})
}
