package expressions

import "context"

// Engine evaluates expressions against a data map.
// Three implementations: CEL (authorization policies), Expr (cross-field
// argument rules), GoJQ (projections over execution log records).
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}
