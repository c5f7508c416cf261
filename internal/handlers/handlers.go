package handlers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rendis/conduit/internal/actions"
	"github.com/rendis/conduit/pkg/contract"
	"github.com/rendis/conduit/pkg/schema"
)

// Register adds an adapter for every catalog action to reg.
func Register(reg *actions.Registry, b Backends) error {
	if b.Threads == nil || b.Search == nil || b.Classifier == nil || b.Calendar == nil {
		return fmt.Errorf("handlers: every back-end is required")
	}

	all := map[string]actions.Handler{
		contract.ActionSummarizeThread:      SummarizeThread(b.Threads),
		contract.ActionExtractActionItems:   ExtractActionItems(b.Threads),
		contract.ActionSearchMessages:       SearchMessages(b.Search),
		contract.ActionCategorizeMessage:    CategorizeMessage(b.Classifier),
		contract.ActionTrackDecisions:       TrackDecisions(b.Threads),
		contract.ActionDetectSchedulingNeed: DetectSchedulingNeed(b.Threads),
		contract.ActionCheckCalendar:        CheckCalendar(b.Calendar),
		contract.ActionSuggestMeetingTimes:  SuggestMeetingTimes(b.Calendar),
	}
	for _, name := range contract.AllActions {
		if err := reg.Register(name, all[name]); err != nil {
			return err
		}
	}
	return nil
}

// SummarizeThread adapts a ThreadBackend to the summarizeThread action.
func SummarizeThread(b ThreadBackend) actions.Handler {
	return actions.HandlerFunc(func(ctx context.Context, args actions.Arguments, _ string) (any, error) {
		var p contract.SummarizeThreadParams
		if err := args.Decode(&p); err != nil {
			return nil, err
		}
		s, err := b.Summarize(ctx, p.ThreadID, p.MaxLength)
		if err != nil {
			return nil, backendError(err)
		}
		s.ThreadID = p.ThreadID
		s.Participants = nonNil(s.Participants)
		return s, nil
	})
}

// ExtractActionItems adapts a ThreadBackend to the extractActionItems action.
func ExtractActionItems(b ThreadBackend) actions.Handler {
	return actions.HandlerFunc(func(ctx context.Context, args actions.Arguments, _ string) (any, error) {
		var p contract.ExtractActionItemsParams
		if err := args.Decode(&p); err != nil {
			return nil, err
		}
		items, err := b.ActionItems(ctx, p.ThreadID, p.UserID)
		if err != nil {
			return nil, backendError(err)
		}
		return contract.ActionItems{ThreadID: p.ThreadID, Items: nonNil(items)}, nil
	})
}

// SearchMessages adapts a SearchBackend to the searchMessages action.
func SearchMessages(b SearchBackend) actions.Handler {
	return actions.HandlerFunc(func(ctx context.Context, args actions.Arguments, _ string) (any, error) {
		var p contract.SearchMessagesParams
		if err := args.Decode(&p); err != nil {
			return nil, err
		}
		hits, err := b.Search(ctx, p)
		if err != nil {
			return nil, backendError(err)
		}
		if p.Limit > 0 && len(hits) > p.Limit {
			hits = hits[:p.Limit]
		}
		return contract.SearchResults{Query: p.Query, Results: nonNil(hits)}, nil
	})
}

// CategorizeMessage adapts a MessageClassifier to the categorizeMessage action.
func CategorizeMessage(b MessageClassifier) actions.Handler {
	return actions.HandlerFunc(func(ctx context.Context, args actions.Arguments, _ string) (any, error) {
		var p contract.CategorizeMessageParams
		if err := args.Decode(&p); err != nil {
			return nil, err
		}
		c, err := b.Categorize(ctx, p.MessageID, p.UserID)
		if err != nil {
			return nil, backendError(err)
		}
		c.MessageID = p.MessageID
		c.Signals = nonNil(c.Signals)
		switch c.Urgency {
		case contract.UrgencyUrgent, contract.UrgencyNormal, contract.UrgencyLow:
		default:
			return nil, fmt.Errorf("classifier returned unknown urgency %q", c.Urgency)
		}
		return c, nil
	})
}

// TrackDecisions adapts a ThreadBackend to the trackDecisions action.
func TrackDecisions(b ThreadBackend) actions.Handler {
	return actions.HandlerFunc(func(ctx context.Context, args actions.Arguments, _ string) (any, error) {
		var p contract.TrackDecisionsParams
		if err := args.Decode(&p); err != nil {
			return nil, err
		}
		decisions, err := b.Decisions(ctx, p.ThreadID)
		if err != nil {
			return nil, backendError(err)
		}
		return contract.DecisionLog{ThreadID: p.ThreadID, Decisions: nonNil(decisions)}, nil
	})
}

// DetectSchedulingNeed adapts a ThreadBackend to the detectSchedulingNeed action.
func DetectSchedulingNeed(b ThreadBackend) actions.Handler {
	return actions.HandlerFunc(func(ctx context.Context, args actions.Arguments, _ string) (any, error) {
		var p contract.DetectSchedulingNeedParams
		if err := args.Decode(&p); err != nil {
			return nil, err
		}
		a, err := b.SchedulingNeed(ctx, p.ThreadID)
		if err != nil {
			return nil, backendError(err)
		}
		a.ThreadID = p.ThreadID
		a.Participants = nonNil(a.Participants)
		a.Evidence = nonNil(a.Evidence)
		a.Confidence = min(max(a.Confidence, 0), 1)
		return a, nil
	})
}

// CheckCalendar adapts a CalendarBackend to the checkCalendar action.
func CheckCalendar(b CalendarBackend) actions.Handler {
	return actions.HandlerFunc(func(ctx context.Context, args actions.Arguments, _ string) (any, error) {
		start, err := args.Time("startDate")
		if err != nil {
			return nil, err
		}
		end, err := args.Time("endDate")
		if err != nil {
			return nil, err
		}
		userID := args.String("userId")
		a, err := b.Availability(ctx, userID, start, end)
		if err != nil {
			return nil, backendError(err)
		}
		a.UserID = userID
		a.Busy = nonNil(a.Busy)
		a.Free = nonNil(a.Free)
		return a, nil
	})
}

// SuggestMeetingTimes adapts a CalendarBackend to the suggestMeetingTimes action.
func SuggestMeetingTimes(b CalendarBackend) actions.Handler {
	return actions.HandlerFunc(func(ctx context.Context, args actions.Arguments, _ string) (any, error) {
		var p contract.SuggestMeetingTimesParams
		if err := args.Decode(&p); err != nil {
			return nil, err
		}
		slots, err := b.SuggestSlots(ctx, p.Participants, time.Duration(p.Duration)*time.Minute, p.PreferredTimeRanges)
		if err != nil {
			return nil, backendError(err)
		}
		return contract.MeetingSuggestions{Duration: p.Duration, Suggestions: nonNil(slots)}, nil
	})
}

// backendError classifies a back-end failure. Structured errors and context
// errors keep their meaning; anything else means the dependency is down.
func backendError(err error) error {
	var ce *schema.ConduitError
	if errors.As(err, &ce) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	return actions.Unavailable(err)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
