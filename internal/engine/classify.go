package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/rendis/conduit/pkg/schema"
)

// classifyHandlerError maps whatever a handler returned onto a wire error.
// Handlers may only choose service_unavailable (via actions.Unavailable); a
// context deadline that leaks out of a handler is a timeout; everything else
// is internal_error. The original error is kept as the cause, never shown.
func classifyHandlerError(actionName string, err error) *schema.ConduitError {
	var ce *schema.ConduitError
	if errors.As(err, &ce) && ce.Code == schema.ErrCodeServiceUnavailable {
		return schema.NewError(schema.ErrCodeServiceUnavailable, ce.Message).
			WithCause(err).
			WithDetails(ce.Details)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return schema.NewErrorf(schema.ErrCodeTimeout, "%s did not complete in time", actionName).WithCause(err)
	}
	return schema.NewErrorf(schema.ErrCodeInternal, "%s failed", actionName).WithCause(err)
}

// panicError converts a recovered panic value into internal_error.
func panicError(actionName string, r any) *schema.ConduitError {
	return schema.NewErrorf(schema.ErrCodeInternal, "%s failed unexpectedly", actionName).
		WithCause(fmt.Errorf("panic: %v", r))
}
