// Package client is the typed facade over the invocation endpoint. It owns
// no state beyond its transport and caller, and performs no business logic.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/rendis/conduit/pkg/contract"
	"github.com/rendis/conduit/pkg/schema"
)

// Transport carries one invocation to the dispatcher and returns its wire
// response. A non-nil error means no response was obtained.
type Transport interface {
	Invoke(ctx context.Context, req schema.InvocationRequest) (*schema.InvocationResponse, error)
}

// Error is a failed invocation. Code is one of the dispatcher's error codes.
type Error struct {
	Code      schema.ErrorCode
	Message   string
	Details   map[string]any
	RequestID string
	cause     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// CodeOf returns the code of a client error, or "" for any other error.
func CodeOf(err error) schema.ErrorCode {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// Client invokes catalog actions on behalf of one caller.
type Client struct {
	transport Transport
	callerID  string
}

// New returns a Client sending every request as callerID.
func New(transport Transport, callerID string) *Client {
	return &Client{transport: transport, callerID: callerID}
}

// Invoke calls action with params and decodes a successful result into out.
// out may be nil to discard the result.
func (c *Client) Invoke(ctx context.Context, action string, params, out any) error {
	args, err := toArguments(params)
	if err != nil {
		return &Error{Code: schema.ErrCodeInvalidParameters, Message: err.Error(), cause: err}
	}

	req := schema.InvocationRequest{
		ActionName: action,
		Arguments:  args,
		CallerID:   c.callerID,
		RequestID:  uuid.NewString(),
	}
	resp, err := c.transport.Invoke(ctx, req)
	if err != nil {
		return &Error{
			Code:      schema.ErrCodeServiceUnavailable,
			Message:   err.Error(),
			RequestID: req.RequestID,
			cause:     err,
		}
	}

	if !resp.Success {
		e := &Error{Code: schema.ErrCodeInternal, Message: "invocation failed", RequestID: resp.RequestID}
		if resp.Error != nil {
			e.Code = resp.Error.Code
			e.Message = resp.Error.Message
			e.Details = resp.Error.Details
		}
		return e
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return &Error{
			Code:      schema.ErrCodeInternal,
			Message:   fmt.Sprintf("decode %s result: %v", action, err),
			RequestID: resp.RequestID,
			cause:     err,
		}
	}
	return nil
}

// toArguments converts a params struct to the wire argument map. Optional
// fields left at their zero value are omitted.
func toArguments(params any) (map[string]any, error) {
	if params == nil {
		return map[string]any{}, nil
	}
	data, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode arguments: %w", err)
	}
	args := map[string]any{}
	if err := json.Unmarshal(data, &args); err != nil {
		return nil, fmt.Errorf("arguments must encode to a JSON object: %w", err)
	}
	return args, nil
}

func (c *Client) SummarizeThread(ctx context.Context, p contract.SummarizeThreadParams) (*contract.ThreadSummary, error) {
	var out contract.ThreadSummary
	if err := c.Invoke(ctx, contract.ActionSummarizeThread, p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ExtractActionItems(ctx context.Context, p contract.ExtractActionItemsParams) (*contract.ActionItems, error) {
	var out contract.ActionItems
	if err := c.Invoke(ctx, contract.ActionExtractActionItems, p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SearchMessages(ctx context.Context, p contract.SearchMessagesParams) (*contract.SearchResults, error) {
	var out contract.SearchResults
	if err := c.Invoke(ctx, contract.ActionSearchMessages, p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CategorizeMessage(ctx context.Context, p contract.CategorizeMessageParams) (*contract.MessageCategory, error) {
	var out contract.MessageCategory
	if err := c.Invoke(ctx, contract.ActionCategorizeMessage, p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) TrackDecisions(ctx context.Context, p contract.TrackDecisionsParams) (*contract.DecisionLog, error) {
	var out contract.DecisionLog
	if err := c.Invoke(ctx, contract.ActionTrackDecisions, p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DetectSchedulingNeed(ctx context.Context, p contract.DetectSchedulingNeedParams) (*contract.SchedulingAssessment, error) {
	var out contract.SchedulingAssessment
	if err := c.Invoke(ctx, contract.ActionDetectSchedulingNeed, p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CheckCalendar(ctx context.Context, p contract.CheckCalendarParams) (*contract.CalendarAvailability, error) {
	var out contract.CalendarAvailability
	if err := c.Invoke(ctx, contract.ActionCheckCalendar, p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SuggestMeetingTimes(ctx context.Context, p contract.SuggestMeetingTimesParams) (*contract.MeetingSuggestions, error) {
	var out contract.MeetingSuggestions
	if err := c.Invoke(ctx, contract.ActionSuggestMeetingTimes, p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
