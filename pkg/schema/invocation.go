package schema

import (
	"encoding/json"
	"time"
)

// InvocationRequest is one call to a named action on behalf of a caller.
type InvocationRequest struct {
	ActionName string         `json:"actionName"`
	Arguments  map[string]any `json:"arguments"`
	CallerID   string         `json:"callerId"`
	RequestID  string         `json:"requestId,omitempty"`
}

// OutcomeStatus discriminates the terminal result of an invocation.
type OutcomeStatus string

const (
	OutcomeSuccess OutcomeStatus = "success"
	OutcomeError   OutcomeStatus = "error"
	OutcomeTimeout OutcomeStatus = "timeout"
)

// InvocationOutcome is the single terminal result produced for a request.
// Exactly one of Result (on success) or Error (on error/timeout) is set.
type InvocationOutcome struct {
	RequestID  string          `json:"requestId"`
	ActionName string          `json:"actionName"`
	Status     OutcomeStatus   `json:"status"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      *ConduitError   `json:"error,omitempty"`
	StartedAt  time.Time       `json:"startedAt"`
	DurationMs int64           `json:"durationMs"`
}

// Succeeded reports whether the outcome is the Success variant.
func (o *InvocationOutcome) Succeeded() bool {
	return o.Status == OutcomeSuccess
}

// ErrorCode returns the failure code, or "" on success.
func (o *InvocationOutcome) ErrorCode() ErrorCode {
	if o.Error == nil {
		return ""
	}
	return o.Error.Code
}

// WireError is the error object of the invocation endpoint response.
type WireError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// InvocationResponse is the JSON body returned by the invocation endpoint.
type InvocationResponse struct {
	Success         bool            `json:"success"`
	Result          json.RawMessage `json:"result,omitempty"`
	Error           *WireError      `json:"error,omitempty"`
	ExecutionTimeMs int64           `json:"executionTimeMs"`
	RequestID       string          `json:"requestId,omitempty"`
}

// ToResponse projects an outcome onto the wire response shape.
func (o *InvocationOutcome) ToResponse() *InvocationResponse {
	resp := &InvocationResponse{
		Success:         o.Succeeded(),
		ExecutionTimeMs: o.DurationMs,
		RequestID:       o.RequestID,
	}
	if o.Succeeded() {
		resp.Result = o.Result
		return resp
	}
	if o.Error != nil {
		resp.Error = &WireError{
			Code:    o.Error.Code,
			Message: o.Error.Message,
			Details: o.Error.Details,
		}
	}
	return resp
}

// StatusForCode maps a failure code to the log status of its outcome.
func StatusForCode(code ErrorCode) OutcomeStatus {
	if code == ErrCodeTimeout {
		return OutcomeTimeout
	}
	return OutcomeError
}
