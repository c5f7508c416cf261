package workspace

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rendis/conduit/pkg/contract"
	"github.com/rendis/conduit/pkg/schema"
)

const (
	defaultSummaryLength = 200
	snippetLength        = 120
)

var (
	actionItemRe  = regexp.MustCompile(`(?i)\b(todo|action item|i will|i'll|can you|could you|please|need to|needs to)\b`)
	firstPersonRe = regexp.MustCompile(`(?i)\b(i will|i'll)\b`)
	mentionRe     = regexp.MustCompile(`@([A-Za-z0-9_-]+)`)
	dueDateRe     = regexp.MustCompile(`\bby (\d{4}-\d{2}-\d{2})\b`)
	decisionRe    = regexp.MustCompile(`(?i)\b(decided|decision:|agreed|we will go with|let's go with|final answer)\b`)
	schedulingRe  = regexp.MustCompile(`(?i)\b(meet|meeting|call|schedule|sync|available|calendar|tomorrow|next week)\b`)
	wordRe        = regexp.MustCompile(`[\p{L}\p{N}]+`)
)

var urgencySignals = map[string][]string{
	contract.UrgencyUrgent: {"urgent", "asap", "immediately", "emergency", "blocker", "outage"},
	contract.UrgencyLow:    {"fyi", "no rush", "whenever", "low priority"},
}

var categorySignals = []struct {
	category string
	words    []string
}{
	{"incident", []string{"outage", "down", "broken", "incident", "emergency"}},
	{"scheduling", []string{"meet", "meeting", "calendar", "schedule", "call"}},
	{"task", []string{"todo", "please", "can you", "need to", "deadline"}},
	{"decision", []string{"decided", "agreed", "decision"}},
}

// Summarize builds an extractive summary: each message contributes its first
// sentence until maxLength runes are used.
func (w *Workspace) Summarize(ctx context.Context, threadID string, maxLength int) (contract.ThreadSummary, error) {
	if err := w.check(ctx, BackendThreads); err != nil {
		return contract.ThreadSummary{}, err
	}
	msgs, err := w.threadMessages(threadID)
	if err != nil {
		return contract.ThreadSummary{}, err
	}
	if maxLength <= 0 {
		maxLength = defaultSummaryLength
	}

	var b strings.Builder
	var participants []string
	seen := make(map[string]bool)
	for _, m := range msgs {
		if !seen[m.SenderID] {
			seen[m.SenderID] = true
			participants = append(participants, m.SenderID)
		}
		line := w.userName(m.SenderID) + ": " + firstSentence(m.Text)
		if b.Len() > 0 {
			line = " " + line
		}
		b.WriteString(line)
	}

	return contract.ThreadSummary{
		ThreadID:     threadID,
		Summary:      truncate(b.String(), maxLength),
		MessageCount: len(msgs),
		Participants: participants,
	}, nil
}

// ActionItems returns requests and commitments in a thread that are assigned
// to userID or to nobody in particular.
func (w *Workspace) ActionItems(ctx context.Context, threadID, userID string) ([]contract.ActionItem, error) {
	if err := w.check(ctx, BackendThreads); err != nil {
		return nil, err
	}
	msgs, err := w.threadMessages(threadID)
	if err != nil {
		return nil, err
	}

	var items []contract.ActionItem
	for _, m := range msgs {
		if !actionItemRe.MatchString(m.Text) {
			continue
		}
		item := contract.ActionItem{Text: strings.TrimSpace(m.Text), MessageID: m.ID}
		switch {
		case mentionRe.MatchString(m.Text):
			item.Assignee = mentionRe.FindStringSubmatch(m.Text)[1]
		case firstPersonRe.MatchString(m.Text):
			item.Assignee = m.SenderID
		}
		if due := dueDateRe.FindStringSubmatch(m.Text); due != nil {
			item.DueDate = due[1]
		}
		if item.Assignee == "" || item.Assignee == userID {
			items = append(items, item)
		}
	}
	return items, nil
}

// Decisions lists messages that record an agreement.
func (w *Workspace) Decisions(ctx context.Context, threadID string) ([]contract.Decision, error) {
	if err := w.check(ctx, BackendThreads); err != nil {
		return nil, err
	}
	msgs, err := w.threadMessages(threadID)
	if err != nil {
		return nil, err
	}

	var out []contract.Decision
	for _, m := range msgs {
		if !decisionRe.MatchString(m.Text) {
			continue
		}
		out = append(out, contract.Decision{
			Summary:   firstSentence(m.Text),
			MessageID: m.ID,
			DecidedBy: m.SenderID,
			DecidedAt: m.SentAt.Format(time.RFC3339),
		})
	}
	return out, nil
}

// SchedulingNeed scores how strongly a thread is trying to arrange a meeting.
// Three or more scheduling messages give full confidence.
func (w *Workspace) SchedulingNeed(ctx context.Context, threadID string) (contract.SchedulingAssessment, error) {
	if err := w.check(ctx, BackendThreads); err != nil {
		return contract.SchedulingAssessment{}, err
	}
	msgs, err := w.threadMessages(threadID)
	if err != nil {
		return contract.SchedulingAssessment{}, err
	}

	a := contract.SchedulingAssessment{ThreadID: threadID}
	seen := make(map[string]bool)
	for _, m := range msgs {
		if !schedulingRe.MatchString(m.Text) {
			continue
		}
		a.Evidence = append(a.Evidence, truncate(m.Text, snippetLength))
		if !seen[m.SenderID] {
			seen[m.SenderID] = true
			a.Participants = append(a.Participants, m.SenderID)
		}
	}
	a.Confidence = min(float64(len(a.Evidence))/3, 1)
	a.NeedsMeeting = a.Confidence >= 0.5
	return a, nil
}

// Search ranks the caller's messages by the share of query words they
// contain.
func (w *Workspace) Search(ctx context.Context, p contract.SearchMessagesParams) ([]contract.MessageHit, error) {
	if err := w.check(ctx, BackendSearch); err != nil {
		return nil, err
	}
	terms := words(p.Query)
	if len(terms) == 0 {
		return nil, nil
	}

	var hits []contract.MessageHit
	var sentAt []time.Time
	for _, m := range w.messages {
		if p.ChatID != "" && m.ChatID != p.ChatID {
			continue
		}
		if !w.isMember(p.UserID, m.ChatID) {
			continue
		}
		present := make(map[string]bool)
		for _, word := range words(m.Text) {
			present[word] = true
		}
		matched := 0
		for _, t := range terms {
			if present[t] {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		hits = append(hits, contract.MessageHit{
			MessageID: m.ID,
			ChatID:    m.ChatID,
			ThreadID:  m.ThreadID,
			SenderID:  m.SenderID,
			Snippet:   truncate(m.Text, snippetLength),
			Score:     float64(matched) / float64(len(terms)),
			SentAt:    m.SentAt.Format(time.RFC3339),
		})
		sentAt = append(sentAt, m.SentAt)
	}

	idx := make([]int, len(hits))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ha, hb := hits[idx[a]], hits[idx[b]]
		if p.SortBy != "recent" && ha.Score != hb.Score {
			return ha.Score > hb.Score
		}
		if !sentAt[idx[a]].Equal(sentAt[idx[b]]) {
			return sentAt[idx[a]].After(sentAt[idx[b]])
		}
		return ha.MessageID < hb.MessageID
	})
	out := make([]contract.MessageHit, len(hits))
	for i, j := range idx {
		out[i] = hits[j]
	}
	if p.Limit > 0 && len(out) > p.Limit {
		out = out[:p.Limit]
	}
	return out, nil
}

// Categorize assigns urgency and category from keyword signals.
func (w *Workspace) Categorize(ctx context.Context, messageID, _ string) (contract.MessageCategory, error) {
	if err := w.check(ctx, BackendClassifier); err != nil {
		return contract.MessageCategory{}, err
	}
	m, ok := w.messages[messageID]
	if !ok {
		return contract.MessageCategory{}, schema.NewErrorf(schema.ErrCodeNotFound, "message %s not found", messageID)
	}
	text := strings.ToLower(m.Text)

	c := contract.MessageCategory{MessageID: messageID, Urgency: contract.UrgencyNormal, Category: "general"}
	for _, level := range []string{contract.UrgencyUrgent, contract.UrgencyLow} {
		if found := matchSignals(text, urgencySignals[level]); len(found) > 0 {
			c.Urgency = level
			c.Signals = append(c.Signals, found...)
			break
		}
	}
	if strings.Contains(m.Text, "!!") && c.Urgency == contract.UrgencyNormal {
		c.Urgency = contract.UrgencyUrgent
		c.Signals = append(c.Signals, "!!")
	}
	for _, cs := range categorySignals {
		if found := matchSignals(text, cs.words); len(found) > 0 {
			c.Category = cs.category
			c.Signals = append(c.Signals, found...)
			break
		}
	}
	if c.Category == "general" && strings.HasSuffix(strings.TrimSpace(m.Text), "?") {
		c.Category = "question"
	}
	return c, nil
}

func matchSignals(text string, signals []string) []string {
	var found []string
	for _, s := range signals {
		if regexp.MustCompile(`\b` + regexp.QuoteMeta(s) + `\b`).MatchString(text) {
			found = append(found, s)
		}
	}
	return found
}

func words(s string) []string {
	raw := wordRe.FindAllString(strings.ToLower(s), -1)
	seen := make(map[string]bool, len(raw))
	out := raw[:0]
	for _, w := range raw {
		if !seen[w] {
			seen[w] = true
			out = append(out, w)
		}
	}
	return out
}

func firstSentence(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, ".!?"); i >= 0 {
		return s[:i+1]
	}
	return s
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
