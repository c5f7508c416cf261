package expressions

import (
	"context"
	"testing"
	"time"

	"github.com/rendis/conduit/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewExprEngine(t *testing.T) {
	e := NewExprEngine()
	assert.Equal(t, "expr", e.Name())
}

func TestExpr_DateOrderRule(t *testing.T) {
	e := NewExprEngine()
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	ok, err := e.EvaluateBool(context.Background(), `endDate >= startDate`, map[string]any{
		"startDate": start,
		"endDate":   start.Add(48 * time.Hour),
	})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = e.EvaluateBool(context.Background(), `endDate >= startDate`, map[string]any{
		"startDate": start,
		"endDate":   start.Add(-24 * time.Hour),
	})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExpr_NumericRule(t *testing.T) {
	e := NewExprEngine()

	ok, err := e.EvaluateBool(context.Background(), `len(participants) <= 20`, map[string]any{
		"participants": []any{"a", "b"},
	})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestExpr_CompileError(t *testing.T) {
	e := NewExprEngine()

	err := e.Compile(`endDate >=`)
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeInternal, schema.CodeOf(err))
}

func TestExpr_NonBoolRejectedAtCompile(t *testing.T) {
	e := NewExprEngine()

	err := e.Compile(`"text"`)
	require.Error(t, err)
}

func TestExpr_EmptyExpression(t *testing.T) {
	e := NewExprEngine()

	_, err := e.Evaluate(context.Background(), "", nil)
	require.Error(t, err)
}

func TestExpr_CacheReuse(t *testing.T) {
	e := NewExprEngine()
	require.NoError(t, e.Compile(`a > b`))
	require.NoError(t, e.Compile(`a > b`))
	assert.Len(t, e.cache, 1)
}
