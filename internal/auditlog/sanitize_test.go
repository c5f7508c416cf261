package auditlog

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rendis/conduit/internal/actions"
	"github.com/rendis/conduit/pkg/contract"
)

func lookup(t *testing.T, name string) *actions.ActionSchema {
	t.Helper()
	s, ok := actions.DefaultSchemaRegistry().Lookup(name)
	if !ok {
		t.Fatalf("action %q not in catalog", name)
	}
	return s
}

func TestSanitize_FreeTextBecomesLength(t *testing.T) {
	got := Sanitize(lookup(t, contract.ActionSearchMessages), map[string]any{
		"query":  "quarterly numbers for the board",
		"userId": "u-1",
		"chatId": "c_42",
		"limit":  float64(20),
		"sortBy": "recent",
	})

	assert.Equal(t, map[string]any{"length": 31}, got["query"])
	assert.Equal(t, "u-1", got["userId"])
	assert.Equal(t, "c_42", got["chatId"])
	assert.Equal(t, float64(20), got["limit"])
	assert.Equal(t, "recent", got["sortBy"])
	assert.NotContains(t, got, "quarterly")
}

func TestSanitize_IdentifierArrayKeepsIDs(t *testing.T) {
	got := Sanitize(lookup(t, contract.ActionSuggestMeetingTimes), map[string]any{
		"participants":        []any{"u-1", "u-2", "not an id!"},
		"duration":            float64(30),
		"preferredTimeRanges": []any{"09:00-12:00"},
	})

	assert.Equal(t, map[string]any{"count": 3, "ids": []string{"u-1", "u-2"}}, got["participants"])
	assert.Equal(t, map[string]any{"count": 1}, got["preferredTimeRanges"])
	assert.Equal(t, float64(30), got["duration"])
}

func TestSanitize_TypedStringArrayKeepsIDs(t *testing.T) {
	got := Sanitize(lookup(t, contract.ActionSuggestMeetingTimes), map[string]any{
		"participants":        []string{"u-1", "u-2", "not an id!"},
		"preferredTimeRanges": []string{"09:00-12:00", "14:00-15:00"},
	})

	assert.Equal(t, map[string]any{"count": 3, "ids": []string{"u-1", "u-2"}}, got["participants"])
	assert.Equal(t, map[string]any{"count": 2}, got["preferredTimeRanges"])
}

func TestSanitize_DatesKept(t *testing.T) {
	got := Sanitize(lookup(t, contract.ActionCheckCalendar), map[string]any{
		"userId":    "u-1",
		"startDate": "2026-03-02",
		"endDate":   "2026-03-02T17:00:00Z",
	})
	assert.Equal(t, "2026-03-02", got["startDate"])
	assert.Equal(t, "2026-03-02T17:00:00Z", got["endDate"])
}

func TestSanitize_MalformedValuesKeepOnlyShape(t *testing.T) {
	got := Sanitize(lookup(t, contract.ActionCheckCalendar), map[string]any{
		"userId":    "has spaces and secrets",
		"startDate": "tomorrow at noon please",
		"endDate":   float64(3),
	})
	assert.Equal(t, map[string]any{"length": 22}, got["userId"])
	assert.Equal(t, map[string]any{"type": "string", "length": 23}, got["startDate"])
	assert.Equal(t, map[string]any{"type": "number"}, got["endDate"])
}

func TestSanitize_UnknownArgumentsAndUnknownAction(t *testing.T) {
	args := map[string]any{
		"note":   "please forward to everyone",
		"flag":   true,
		"nested": map[string]any{"a": 1, "b": 2},
		"list":   []any{1, 2, 3},
		"empty":  nil,
	}
	want := map[string]any{
		"note":   map[string]any{"type": "string", "length": 26},
		"flag":   map[string]any{"type": "boolean"},
		"nested": map[string]any{"type": "object", "size": 2},
		"list":   map[string]any{"type": "array", "count": 3},
		"empty":  map[string]any{"type": "null"},
	}

	assert.Equal(t, want, Sanitize(nil, args))
	assert.Equal(t, want, Sanitize(lookup(t, contract.ActionSummarizeThread), args))
}

func TestSanitize_DoesNotMutateInput(t *testing.T) {
	args := map[string]any{"query": "secret text", "userId": "u-1"}
	_ = Sanitize(lookup(t, contract.ActionSearchMessages), args)
	assert.Equal(t, "secret text", args["query"])
}

func TestSanitize_Empty(t *testing.T) {
	assert.Empty(t, Sanitize(nil, nil))
}
