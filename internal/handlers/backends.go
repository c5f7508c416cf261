// Package handlers adapts the host system's back-ends to the eight catalog
// actions. Adapters decode validated arguments into contract parameter types,
// call one back-end method and normalize the result; the back-ends own the
// business logic.
package handlers

import (
	"context"
	"time"

	"github.com/rendis/conduit/pkg/contract"
)

// ThreadBackend reads and analyzes conversation threads.
type ThreadBackend interface {
	Summarize(ctx context.Context, threadID string, maxLength int) (contract.ThreadSummary, error)
	ActionItems(ctx context.Context, threadID, userID string) ([]contract.ActionItem, error)
	Decisions(ctx context.Context, threadID string) ([]contract.Decision, error)
	SchedulingNeed(ctx context.Context, threadID string) (contract.SchedulingAssessment, error)
}

// SearchBackend searches a user's messages.
type SearchBackend interface {
	Search(ctx context.Context, p contract.SearchMessagesParams) ([]contract.MessageHit, error)
}

// MessageClassifier assigns urgency and category to one message.
type MessageClassifier interface {
	Categorize(ctx context.Context, messageID, userID string) (contract.MessageCategory, error)
}

// CalendarBackend reports availability and proposes meeting slots.
// Windows are inclusive calendar days in UTC.
type CalendarBackend interface {
	Availability(ctx context.Context, userID string, start, end time.Time) (contract.CalendarAvailability, error)
	SuggestSlots(ctx context.Context, participants []string, duration time.Duration, preferred []string) ([]contract.TimeSlot, error)
}

// Backends groups every back-end the adapters need.
type Backends struct {
	Threads    ThreadBackend
	Search     SearchBackend
	Classifier MessageClassifier
	Calendar   CalendarBackend
}
