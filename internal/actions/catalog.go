package actions

import (
	"encoding/json"

	"github.com/rendis/conduit/pkg/contract"
)

// Catalog returns the fixed table of action definitions. Each call builds a
// fresh copy; callers hand it to NewSchemaRegistry once at startup.
func Catalog() []ActionSchema {
	return []ActionSchema{
		{
			Name:        contract.ActionSummarizeThread,
			Description: "Summarize the messages of a conversation thread.",
			Parameters: []Parameter{
				threadParam(),
				{
					Name:        "maxLength",
					Description: "Maximum summary length in characters.",
					Kind:        KindNumber,
					Constraints: Constraints{Integer: true, Min: floatPtr(50), Max: floatPtr(500), Default: 200},
				},
			},
			Result:    resultShape("ThreadSummary", threadSummarySchema),
			Resources: map[string]ResourceKind{"threadId": ResourceThread},
			Policy:    `access.threadId`,
			Cacheable: true,
		},
		{
			Name:        contract.ActionExtractActionItems,
			Description: "Extract tasks and commitments from a thread for a user.",
			Parameters: []Parameter{
				threadParam(),
				userParam("User whose action items are extracted."),
			},
			Result:    resultShape("ActionItems", actionItemsSchema),
			Resources: map[string]ResourceKind{"threadId": ResourceThread},
			Policy:    `args.userId == caller && access.threadId`,
			Cacheable: true,
		},
		{
			Name:        contract.ActionSearchMessages,
			Description: "Search the caller's messages, optionally within one chat.",
			Parameters: []Parameter{
				{
					Name:        "query",
					Description: "Search text.",
					Kind:        KindString,
					Required:    true,
					Constraints: Constraints{Format: FormatText, MinLength: intPtr(1), MaxLength: intPtr(500)},
				},
				userParam("User whose messages are searched."),
				{
					Name:        "chatId",
					Description: "Restrict the search to one chat.",
					Kind:        KindString,
					Constraints: Constraints{Format: FormatIdentifier},
				},
				{
					Name:        "limit",
					Description: "Maximum number of results.",
					Kind:        KindNumber,
					Constraints: Constraints{Integer: true, Min: floatPtr(1), Max: floatPtr(50), Default: 20},
				},
				{
					Name:        "sortBy",
					Description: "Result ordering.",
					Kind:        KindEnum,
					Constraints: Constraints{Enum: []string{"relevance", "recent"}, Default: "relevance"},
				},
			},
			Result:    resultShape("SearchResults", searchResultsSchema),
			Resources: map[string]ResourceKind{"chatId": ResourceChat},
			Policy:    `args.userId == caller && (!has(args.chatId) || access.chatId)`,
		},
		{
			Name:        contract.ActionCategorizeMessage,
			Description: "Classify the urgency and category of one message.",
			Parameters: []Parameter{
				{
					Name:        "messageId",
					Description: "Message to categorize.",
					Kind:        KindString,
					Required:    true,
					Constraints: Constraints{Format: FormatIdentifier},
				},
				userParam("User on whose behalf the message is categorized."),
			},
			Result:    resultShape("MessageCategory", messageCategorySchema),
			Resources: map[string]ResourceKind{"messageId": ResourceMessage},
			Policy:    `args.userId == caller && access.messageId`,
			Cacheable: true,
		},
		{
			Name:        contract.ActionTrackDecisions,
			Description: "List the decisions recorded in a thread.",
			Parameters:  []Parameter{threadParam()},
			Result:      resultShape("DecisionLog", decisionLogSchema),
			Resources:   map[string]ResourceKind{"threadId": ResourceThread},
			Policy:      `access.threadId`,
			Cacheable:   true,
		},
		{
			Name:        contract.ActionDetectSchedulingNeed,
			Description: "Detect whether a thread is trying to arrange a meeting.",
			Parameters:  []Parameter{threadParam()},
			Result:      resultShape("SchedulingAssessment", schedulingAssessmentSchema),
			Resources:   map[string]ResourceKind{"threadId": ResourceThread},
			Policy:      `access.threadId`,
			Cacheable:   true,
		},
		{
			Name:        contract.ActionCheckCalendar,
			Description: "Report busy and free time in a user's calendar.",
			Parameters: []Parameter{
				userParam("Calendar owner."),
				dateParam("startDate", "First day of the window (ISO-8601)."),
				dateParam("endDate", "Last day of the window (ISO-8601)."),
			},
			Rules: []Rule{
				{Expr: `endDate >= startDate`, Fields: []string{"endDate", "startDate"}, Message: "must not precede startDate"},
			},
			Result: resultShape("CalendarAvailability", calendarAvailabilitySchema),
			Policy: `args.userId == caller`,
		},
		{
			Name:        contract.ActionSuggestMeetingTimes,
			Description: "Suggest meeting slots free for every participant.",
			Parameters: []Parameter{
				{
					Name:        "participants",
					Description: "User IDs of the attendees, including the caller.",
					Kind:        KindArray,
					Required:    true,
					Constraints: Constraints{
						MinItems: intPtr(2),
						MaxItems: intPtr(10),
						Items:    &Parameter{Name: "participant", Kind: KindString, Constraints: Constraints{Format: FormatIdentifier}},
					},
				},
				{
					Name:        "duration",
					Description: "Meeting length in minutes.",
					Kind:        KindNumber,
					Required:    true,
					Constraints: Constraints{Integer: true, Min: floatPtr(15), Max: floatPtr(180)},
				},
				{
					Name:        "preferredTimeRanges",
					Description: `Preferred daily windows such as "09:00-12:00".`,
					Kind:        KindArray,
					Constraints: Constraints{
						MinItems: intPtr(0),
						MaxItems: intPtr(5),
						Items:    &Parameter{Name: "timeRange", Kind: KindString, Constraints: Constraints{Format: FormatTimeRange}},
					},
				},
			},
			Result: resultShape("MeetingSuggestions", meetingSuggestionsSchema),
			Policy: `caller in args.participants`,
		},
	}
}

func threadParam() Parameter {
	return Parameter{
		Name:        "threadId",
		Description: "Conversation thread ID.",
		Kind:        KindString,
		Required:    true,
		Constraints: Constraints{Format: FormatIdentifier},
	}
}

func userParam(desc string) Parameter {
	return Parameter{
		Name:        "userId",
		Description: desc,
		Kind:        KindString,
		Required:    true,
		Constraints: Constraints{Format: FormatIdentifier},
	}
}

func dateParam(name, desc string) Parameter {
	return Parameter{Name: name, Description: desc, Kind: KindDate, Required: true}
}

func resultShape(name, schemaJSON string) ResultShape {
	return ResultShape{Name: name, Schema: json.RawMessage(schemaJSON)}
}

const timeSlotSchema = `{"type":"object","required":["start","end"],"properties":{"start":{"type":"string"},"end":{"type":"string"}}}`

const threadSummarySchema = `{"type":"object","required":["threadId","summary","messageCount","participants"],"properties":{` +
	`"threadId":{"type":"string"},"summary":{"type":"string"},"messageCount":{"type":"integer"},` +
	`"participants":{"type":"array","items":{"type":"string"}}}}`

const actionItemsSchema = `{"type":"object","required":["threadId","items"],"properties":{` +
	`"threadId":{"type":"string"},"items":{"type":"array","items":{"type":"object","required":["text","messageId"],"properties":{` +
	`"text":{"type":"string"},"assignee":{"type":"string"},"messageId":{"type":"string"},"dueDate":{"type":"string"}}}}}}`

const searchResultsSchema = `{"type":"object","required":["query","results"],"properties":{` +
	`"query":{"type":"string"},"results":{"type":"array","maxItems":50,"items":{"type":"object","required":["messageId","chatId","senderId","snippet","score","sentAt"],"properties":{` +
	`"messageId":{"type":"string"},"chatId":{"type":"string"},"threadId":{"type":"string"},"senderId":{"type":"string"},` +
	`"snippet":{"type":"string"},"score":{"type":"number"},"sentAt":{"type":"string"}}}}}}`

const messageCategorySchema = `{"type":"object","required":["messageId","urgency","category","signals"],"properties":{` +
	`"messageId":{"type":"string"},"urgency":{"type":"string","enum":["urgent","normal","low"]},` +
	`"category":{"type":"string"},"signals":{"type":"array","items":{"type":"string"}}}}`

const decisionLogSchema = `{"type":"object","required":["threadId","decisions"],"properties":{` +
	`"threadId":{"type":"string"},"decisions":{"type":"array","items":{"type":"object","required":["summary","messageId","decidedBy","decidedAt"],"properties":{` +
	`"summary":{"type":"string"},"messageId":{"type":"string"},"decidedBy":{"type":"string"},"decidedAt":{"type":"string"}}}}}}`

const schedulingAssessmentSchema = `{"type":"object","required":["threadId","needsMeeting","confidence","participants","evidence"],"properties":{` +
	`"threadId":{"type":"string"},"needsMeeting":{"type":"boolean"},"confidence":{"type":"number","minimum":0,"maximum":1},` +
	`"participants":{"type":"array","items":{"type":"string"}},"evidence":{"type":"array","items":{"type":"string"}}}}`

const calendarAvailabilitySchema = `{"type":"object","required":["userId","busy","free"],"properties":{` +
	`"userId":{"type":"string"},"busy":{"type":"array","items":` + timeSlotSchema + `},"free":{"type":"array","items":` + timeSlotSchema + `}}}`

const meetingSuggestionsSchema = `{"type":"object","required":["duration","suggestions"],"properties":{` +
	`"duration":{"type":"integer"},"suggestions":{"type":"array","items":` + timeSlotSchema + `}}}`
