// Package contract declares the typed parameters and results of every catalog
// action. Client code builds params with these types; handler adapters return
// the result types. Field names and omitempty markers mirror the catalog and
// are checked against it by tests in pkg/client.
package contract

// Action names as they appear on the wire.
const (
	ActionSummarizeThread      = "summarizeThread"
	ActionExtractActionItems   = "extractActionItems"
	ActionSearchMessages       = "searchMessages"
	ActionCategorizeMessage    = "categorizeMessage"
	ActionTrackDecisions       = "trackDecisions"
	ActionDetectSchedulingNeed = "detectSchedulingNeed"
	ActionCheckCalendar        = "checkCalendar"
	ActionSuggestMeetingTimes  = "suggestMeetingTimes"
)

// AllActions lists every catalog action.
var AllActions = []string{
	ActionSummarizeThread,
	ActionExtractActionItems,
	ActionSearchMessages,
	ActionCategorizeMessage,
	ActionTrackDecisions,
	ActionDetectSchedulingNeed,
	ActionCheckCalendar,
	ActionSuggestMeetingTimes,
}

type SummarizeThreadParams struct {
	ThreadID  string `json:"threadId"`
	MaxLength int    `json:"maxLength,omitempty"`
}

type ThreadSummary struct {
	ThreadID     string   `json:"threadId"`
	Summary      string   `json:"summary"`
	MessageCount int      `json:"messageCount"`
	Participants []string `json:"participants"`
}

type ExtractActionItemsParams struct {
	ThreadID string `json:"threadId"`
	UserID   string `json:"userId"`
}

type ActionItem struct {
	Text      string `json:"text"`
	Assignee  string `json:"assignee,omitempty"`
	MessageID string `json:"messageId"`
	DueDate   string `json:"dueDate,omitempty"`
}

type ActionItems struct {
	ThreadID string       `json:"threadId"`
	Items    []ActionItem `json:"items"`
}

type SearchMessagesParams struct {
	Query  string `json:"query"`
	UserID string `json:"userId"`
	ChatID string `json:"chatId,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	SortBy string `json:"sortBy,omitempty"`
}

type MessageHit struct {
	MessageID string  `json:"messageId"`
	ChatID    string  `json:"chatId"`
	ThreadID  string  `json:"threadId,omitempty"`
	SenderID  string  `json:"senderId"`
	Snippet   string  `json:"snippet"`
	Score     float64 `json:"score"`
	SentAt    string  `json:"sentAt"`
}

type SearchResults struct {
	Query   string       `json:"query"`
	Results []MessageHit `json:"results"`
}

type CategorizeMessageParams struct {
	MessageID string `json:"messageId"`
	UserID    string `json:"userId"`
}

// Urgency levels assigned by categorizeMessage.
const (
	UrgencyUrgent = "urgent"
	UrgencyNormal = "normal"
	UrgencyLow    = "low"
)

type MessageCategory struct {
	MessageID string   `json:"messageId"`
	Urgency   string   `json:"urgency"`
	Category  string   `json:"category"`
	Signals   []string `json:"signals"`
}

type TrackDecisionsParams struct {
	ThreadID string `json:"threadId"`
}

type Decision struct {
	Summary   string `json:"summary"`
	MessageID string `json:"messageId"`
	DecidedBy string `json:"decidedBy"`
	DecidedAt string `json:"decidedAt"`
}

type DecisionLog struct {
	ThreadID  string     `json:"threadId"`
	Decisions []Decision `json:"decisions"`
}

type DetectSchedulingNeedParams struct {
	ThreadID string `json:"threadId"`
}

type SchedulingAssessment struct {
	ThreadID     string   `json:"threadId"`
	NeedsMeeting bool     `json:"needsMeeting"`
	Confidence   float64  `json:"confidence"`
	Participants []string `json:"participants"`
	Evidence     []string `json:"evidence"`
}

type CheckCalendarParams struct {
	UserID    string `json:"userId"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

type TimeSlot struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type CalendarAvailability struct {
	UserID string     `json:"userId"`
	Busy   []TimeSlot `json:"busy"`
	Free   []TimeSlot `json:"free"`
}

type SuggestMeetingTimesParams struct {
	Participants        []string `json:"participants"`
	Duration            int      `json:"duration"`
	PreferredTimeRanges []string `json:"preferredTimeRanges,omitempty"`
}

type MeetingSuggestions struct {
	Duration    int        `json:"duration"`
	Suggestions []TimeSlot `json:"suggestions"`
}
