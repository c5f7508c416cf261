// Package authz decides whether a caller may act on the resources an
// invocation references. Ownership facts come from the host system through
// OwnershipLookup; the decision itself is the action's CEL policy.
package authz

import (
	"context"
	"fmt"
	"sort"

	"github.com/rendis/conduit/internal/actions"
	"github.com/rendis/conduit/internal/expressions"
	"github.com/rendis/conduit/pkg/schema"
)

// OwnershipLookup is the narrow read-only view of the host system's
// ownership model.
type OwnershipLookup interface {
	CanAccess(ctx context.Context, callerID string, kind actions.ResourceKind, id string) (bool, error)
}

// Decision is the result of an authorization check.
type Decision struct {
	Allowed bool
	Reason  string
}

// Allow is the permitting decision.
var Allow = Decision{Allowed: true}

// Deny builds a denial with a reason.
func Deny(format string, args ...any) Decision {
	return Decision{Reason: fmt.Sprintf(format, args...)}
}

// Authorizer evaluates action policies.
type Authorizer struct {
	lookup   OwnershipLookup
	policies *expressions.CELEngine
}

// New creates an Authorizer. policies may be shared with other components.
func New(lookup OwnershipLookup, policies *expressions.CELEngine) (*Authorizer, error) {
	if lookup == nil {
		return nil, fmt.Errorf("authz: ownership lookup is nil")
	}
	if policies == nil {
		var err error
		policies, err = expressions.NewCELEngine()
		if err != nil {
			return nil, err
		}
	}
	return &Authorizer{lookup: lookup, policies: policies}, nil
}

// Precompile compiles every action policy.
func (a *Authorizer) Precompile(reg *actions.SchemaRegistry) error {
	for _, s := range reg.List() {
		if s.Policy == "" {
			return fmt.Errorf("action %s has no policy", s.Name)
		}
		if err := a.policies.Compile(s.Policy); err != nil {
			return fmt.Errorf("action %s: %w", s.Name, err)
		}
	}
	return nil
}

// Authorize checks callerID against the action's policy. A lookup failure is
// returned as a service_unavailable error; a broken policy as internal_error.
// Both mean no decision could be made.
func (a *Authorizer) Authorize(ctx context.Context, callerID string, s *actions.ActionSchema, args actions.Arguments) (Decision, error) {
	if callerID == "" {
		return Deny("caller identity is missing"), nil
	}
	if s.Policy == "" {
		return Deny("action %s has no authorization policy", s.Name), nil
	}

	access, err := a.resolveAccess(ctx, callerID, s, args)
	if err != nil {
		return Decision{}, err
	}

	ok, err := a.policies.EvaluateBool(ctx, s.Policy, map[string]any{
		"caller": callerID,
		"args":   map[string]any(args),
		"access": access,
	})
	if err != nil {
		return Decision{}, err
	}
	if !ok {
		return Deny("caller %s may not %s %s", callerID, s.Name, describeResources(s, args)), nil
	}
	return Allow, nil
}

// resolveAccess asks the ownership lookup about every referenced resource in
// a stable order.
func (a *Authorizer) resolveAccess(ctx context.Context, callerID string, s *actions.ActionSchema, args actions.Arguments) (map[string]bool, error) {
	access := make(map[string]bool, len(s.Resources))
	for _, param := range sortedKeys(s.Resources) {
		id := args.String(param)
		if id == "" {
			continue
		}
		ok, err := a.lookup.CanAccess(ctx, callerID, s.Resources[param], id)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeServiceUnavailable,
				"ownership lookup for %s %q failed", s.Resources[param], id).WithCause(err)
		}
		access[param] = ok
	}
	return access, nil
}

func describeResources(s *actions.ActionSchema, args actions.Arguments) string {
	if len(s.Resources) == 0 {
		if uid := args.String("userId"); uid != "" {
			return "for user " + uid
		}
		return "with these arguments"
	}
	out := ""
	for _, param := range sortedKeys(s.Resources) {
		if id := args.String(param); id != "" {
			if out != "" {
				out += ", "
			}
			out += fmt.Sprintf("%s %s", s.Resources[param], id)
		}
	}
	if uid := args.String("userId"); uid != "" {
		if out != "" {
			out += " "
		}
		out += "for user " + uid
	}
	return out
}

func sortedKeys(m map[string]actions.ResourceKind) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
