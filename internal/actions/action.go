package actions

import (
	"context"
	"encoding/json"
)

// Kind is the value kind of an action parameter.
type Kind string

const (
	KindString Kind = "string"
	KindNumber Kind = "number"
	KindDate   Kind = "date"
	KindArray  Kind = "array"
	KindEnum   Kind = "enum"
)

// Format narrows a string parameter.
type Format string

const (
	// FormatIdentifier is a host-system ID: 1-128 of [A-Za-z0-9_-].
	FormatIdentifier Format = "identifier"
	// FormatText is free user text. It is never persisted by the execution log.
	FormatText Format = "text"
	// FormatTimeRange is a daily window "HH:MM-HH:MM" with start before end.
	FormatTimeRange Format = "time_range"
)

// IdentifierPattern is the host system's ID format.
const IdentifierPattern = `^[A-Za-z0-9_-]{1,128}$`

// ResourceKind names a host-system resource whose ownership the authorizer checks.
type ResourceKind string

const (
	ResourceThread   ResourceKind = "thread"
	ResourceChat     ResourceKind = "chat"
	ResourceMessage  ResourceKind = "message"
	ResourceCalendar ResourceKind = "calendar"
)

// Constraints bound the accepted values of a parameter.
// Nil pointers mean "unbounded".
type Constraints struct {
	Format    Format     `json:"format,omitempty"`
	Min       *float64   `json:"min,omitempty"`
	Max       *float64   `json:"max,omitempty"`
	Integer   bool       `json:"integer,omitempty"`
	MinLength *int       `json:"minLength,omitempty"`
	MaxLength *int       `json:"maxLength,omitempty"`
	MinItems  *int       `json:"minItems,omitempty"`
	MaxItems  *int       `json:"maxItems,omitempty"`
	Items     *Parameter `json:"items,omitempty"`
	Enum      []string   `json:"enum,omitempty"`
	Default   any        `json:"default,omitempty"`
}

// Parameter is one named input of an action.
type Parameter struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Kind        Kind        `json:"kind"`
	Required    bool        `json:"required"`
	Constraints Constraints `json:"constraints"`
}

// Rule is a cross-field check written in expr-lang. Every parameter is a
// variable; date parameters are time.Time. A rule only runs when all of its
// fields are present and passed the per-parameter checks. A failing rule is
// reported against Fields[0].
type Rule struct {
	Expr    string   `json:"expr"`
	Fields  []string `json:"fields"`
	Message string   `json:"message"`
}

// ResultShape describes what a successful invocation returns.
type ResultShape struct {
	Name   string          `json:"name"`
	Schema json.RawMessage `json:"schema"`
}

// ActionSchema is the immutable definition of one action.
type ActionSchema struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  []Parameter `json:"parameters"`
	Result      ResultShape `json:"result"`
	Rules       []Rule      `json:"rules,omitempty"`

	// Resources maps a parameter name to the resource kind the caller must own.
	Resources map[string]ResourceKind `json:"resources,omitempty"`
	// Policy is a CEL expression over caller, args and access.
	Policy string `json:"policy"`
	// Cacheable marks results safe to serve from the invocation cache.
	Cacheable bool `json:"cacheable,omitempty"`
}

// Param returns the named parameter.
func (s *ActionSchema) Param(name string) (*Parameter, bool) {
	for i := range s.Parameters {
		if s.Parameters[i].Name == name {
			return &s.Parameters[i], true
		}
	}
	return nil, false
}

// RequiredParams lists required parameter names in declaration order.
func (s *ActionSchema) RequiredParams() []string {
	var names []string
	for _, p := range s.Parameters {
		if p.Required {
			names = append(names, p.Name)
		}
	}
	return names
}

// Handler executes one action. Implementations must honor ctx cancellation
// cooperatively; the dispatcher does not wait for them after the deadline.
// A failure caused by a downstream dependency should be wrapped with
// Unavailable; every other error is reported as internal_error.
type Handler interface {
	Execute(ctx context.Context, args Arguments, callerID string) (any, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, args Arguments, callerID string) (any, error)

func (f HandlerFunc) Execute(ctx context.Context, args Arguments, callerID string) (any, error) {
	return f(ctx, args, callerID)
}

// ActionInfo is a summary of an action for listing.
type ActionInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
	Result      ResultShape     `json:"result"`
}

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }
