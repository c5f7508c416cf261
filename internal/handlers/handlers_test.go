package handlers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/conduit/internal/actions"
	"github.com/rendis/conduit/internal/workspace"
	"github.com/rendis/conduit/pkg/contract"
	"github.com/rendis/conduit/pkg/schema"
)

func sampleBackends() (Backends, *workspace.Workspace) {
	monday := time.Date(2025, 3, 3, 12, 0, 0, 0, time.UTC)
	ws := workspace.Sample().WithClock(func() time.Time { return monday })
	return Backends{Threads: ws, Search: ws, Classifier: ws, Calendar: ws}, ws
}

func TestRegister_CoversCatalog(t *testing.T) {
	b, _ := sampleBackends()
	reg := actions.NewRegistry()
	require.NoError(t, Register(reg, b))

	assert.Equal(t, len(contract.AllActions), reg.Count())
	assert.Empty(t, reg.Missing(actions.DefaultSchemaRegistry()))
}

func TestRegister_RequiresBackends(t *testing.T) {
	b, _ := sampleBackends()
	b.Calendar = nil
	assert.Error(t, Register(actions.NewRegistry(), b))
}

func TestAdapters(t *testing.T) {
	b, _ := sampleBackends()
	ctx := context.Background()

	out, err := SummarizeThread(b.Threads).Execute(ctx, actions.Arguments{"threadId": "t1", "maxLength": float64(200)}, "u1")
	require.NoError(t, err)
	summary := out.(contract.ThreadSummary)
	assert.Equal(t, "t1", summary.ThreadID)
	assert.Equal(t, 4, summary.MessageCount)

	out, err = ExtractActionItems(b.Threads).Execute(ctx, actions.Arguments{"threadId": "t1", "userId": "u1"}, "u1")
	require.NoError(t, err)
	assert.Len(t, out.(contract.ActionItems).Items, 2)

	out, err = SearchMessages(b.Search).Execute(ctx, actions.Arguments{"query": "launch", "userId": "u1", "limit": float64(1)}, "u1")
	require.NoError(t, err)
	results := out.(contract.SearchResults)
	assert.Equal(t, "launch", results.Query)
	assert.Len(t, results.Results, 1)

	out, err = CategorizeMessage(b.Classifier).Execute(ctx, actions.Arguments{"messageId": "m4", "userId": "u1"}, "u1")
	require.NoError(t, err)
	assert.Equal(t, contract.UrgencyUrgent, out.(contract.MessageCategory).Urgency)

	out, err = TrackDecisions(b.Threads).Execute(ctx, actions.Arguments{"threadId": "t2"}, "u1")
	require.NoError(t, err)
	assert.Len(t, out.(contract.DecisionLog).Decisions, 1)

	out, err = DetectSchedulingNeed(b.Threads).Execute(ctx, actions.Arguments{"threadId": "t2"}, "u1")
	require.NoError(t, err)
	assessment := out.(contract.SchedulingAssessment)
	assert.False(t, assessment.NeedsMeeting)
	assert.NotNil(t, assessment.Evidence)
	assert.NotNil(t, assessment.Participants)

	out, err = CheckCalendar(b.Calendar).Execute(ctx, actions.Arguments{
		"userId":    "u1",
		"startDate": "2025-03-04T00:00:00Z",
		"endDate":   "2025-03-04T00:00:00Z",
	}, "u1")
	require.NoError(t, err)
	avail := out.(contract.CalendarAvailability)
	assert.Equal(t, "u1", avail.UserID)
	assert.Len(t, avail.Busy, 2)

	out, err = SuggestMeetingTimes(b.Calendar).Execute(ctx, actions.Arguments{
		"participants": []any{"u1", "u2"},
		"duration":     float64(30),
	}, "u1")
	require.NoError(t, err)
	suggestions := out.(contract.MeetingSuggestions)
	assert.Equal(t, 30, suggestions.Duration)
	assert.Len(t, suggestions.Suggestions, 3)
}

func TestAdapters_EmptyResultsAreNotNil(t *testing.T) {
	b, _ := sampleBackends()
	out, err := SearchMessages(b.Search).Execute(context.Background(), actions.Arguments{"query": "zebra", "userId": "u1"}, "u1")
	require.NoError(t, err)
	assert.NotNil(t, out.(contract.SearchResults).Results)
}

func TestAdapters_BackendDownIsUnavailable(t *testing.T) {
	b, ws := sampleBackends()
	ws.SetDown(workspace.BackendClassifier, true)

	_, err := CategorizeMessage(b.Classifier).Execute(context.Background(), actions.Arguments{"messageId": "m1", "userId": "u1"}, "u1")
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeServiceUnavailable, schema.CodeOf(err))
}

type badClassifier struct{ urgency string }

func (c badClassifier) Categorize(context.Context, string, string) (contract.MessageCategory, error) {
	return contract.MessageCategory{Urgency: c.urgency}, nil
}

func TestCategorizeMessage_RejectsUnknownUrgency(t *testing.T) {
	_, err := CategorizeMessage(badClassifier{urgency: "meh"}).Execute(context.Background(), actions.Arguments{"messageId": "m1", "userId": "u1"}, "u1")
	require.Error(t, err)
	assert.NotEqual(t, schema.ErrCodeServiceUnavailable, schema.CodeOf(err))
}

func TestBackendError(t *testing.T) {
	assert.Equal(t, schema.ErrCodeServiceUnavailable, schema.CodeOf(backendError(errors.New("dial tcp: refused"))))
	assert.ErrorIs(t, backendError(context.DeadlineExceeded), context.DeadlineExceeded)

	notFound := schema.NewError(schema.ErrCodeNotFound, "thread missing")
	assert.Equal(t, schema.ErrCodeNotFound, schema.CodeOf(backendError(notFound)))
}
