// Package workspace is a small in-memory host system loaded from YAML. It
// answers ownership lookups and backs the handler adapters so conduit runs end
// to end without a real messaging platform behind it.
package workspace

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rendis/conduit/internal/actions"
	"github.com/rendis/conduit/pkg/schema"
)

//go:embed sample.yaml
var sampleYAML []byte

type User struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

type Chat struct {
	ID      string   `yaml:"id"`
	Name    string   `yaml:"name"`
	Members []string `yaml:"members"`
}

type Thread struct {
	ID      string `yaml:"id"`
	ChatID  string `yaml:"chatId"`
	Subject string `yaml:"subject"`
}

type Message struct {
	ID       string    `yaml:"id"`
	ChatID   string    `yaml:"chatId"`
	ThreadID string    `yaml:"threadId,omitempty"`
	SenderID string    `yaml:"senderId"`
	Text     string    `yaml:"text"`
	SentAt   time.Time `yaml:"sentAt"`
}

type Event struct {
	ID     string    `yaml:"id"`
	UserID string    `yaml:"userId"`
	Title  string    `yaml:"title"`
	Start  time.Time `yaml:"start"`
	End    time.Time `yaml:"end"`
}

// Document is the YAML layout of a workspace file.
type Document struct {
	WorkingHours string    `yaml:"workingHours,omitempty"`
	Users        []User    `yaml:"users"`
	Chats        []Chat    `yaml:"chats"`
	Threads      []Thread  `yaml:"threads"`
	Messages     []Message `yaml:"messages"`
	Events       []Event   `yaml:"events"`
}

// Back-end names accepted by SetDown.
const (
	BackendThreads    = "threads"
	BackendSearch     = "search"
	BackendClassifier = "classifier"
	BackendCalendar   = "calendar"
)

// ErrBackendDown is returned while a back-end is marked down.
var ErrBackendDown = errors.New("back-end is unavailable")

// Workspace is safe for concurrent use. Its data is read-only after loading.
type Workspace struct {
	users    map[string]User
	chats    map[string]Chat
	threads  map[string]Thread
	messages map[string]Message
	byThread map[string][]Message
	events   map[string][]Event

	workStart, workEnd int // minutes after midnight UTC
	now                func() time.Time

	mu   sync.RWMutex
	down map[string]bool
}

// LoadFile reads a workspace YAML file.
func LoadFile(path string) (*Workspace, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open workspace: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load decodes a workspace document.
func Load(r io.Reader) (*Workspace, error) {
	var doc Document
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode workspace: %w", err)
	}
	return New(doc)
}

// Sample returns the bundled demo workspace.
func Sample() *Workspace {
	var doc Document
	if err := yaml.Unmarshal(sampleYAML, &doc); err != nil {
		panic(fmt.Sprintf("workspace: bundled sample: %v", err))
	}
	ws, err := New(doc)
	if err != nil {
		panic(fmt.Sprintf("workspace: bundled sample: %v", err))
	}
	return ws
}

// New indexes doc and checks its references.
func New(doc Document) (*Workspace, error) {
	hours := doc.WorkingHours
	if hours == "" {
		hours = "09:00-17:00"
	}
	start, end, err := parseRange(hours)
	if err != nil {
		return nil, fmt.Errorf("workingHours: %w", err)
	}

	ws := &Workspace{
		users:     make(map[string]User),
		chats:     make(map[string]Chat),
		threads:   make(map[string]Thread),
		messages:  make(map[string]Message),
		byThread:  make(map[string][]Message),
		events:    make(map[string][]Event),
		workStart: start,
		workEnd:   end,
		now:       time.Now,
		down:      make(map[string]bool),
	}

	for _, u := range doc.Users {
		if u.ID == "" {
			return nil, fmt.Errorf("user without id")
		}
		ws.users[u.ID] = u
	}
	for _, c := range doc.Chats {
		for _, m := range c.Members {
			if _, ok := ws.users[m]; !ok {
				return nil, fmt.Errorf("chat %s: unknown member %s", c.ID, m)
			}
		}
		ws.chats[c.ID] = c
	}
	for _, t := range doc.Threads {
		if _, ok := ws.chats[t.ChatID]; !ok {
			return nil, fmt.Errorf("thread %s: unknown chat %s", t.ID, t.ChatID)
		}
		ws.threads[t.ID] = t
	}
	for _, m := range doc.Messages {
		if _, ok := ws.chats[m.ChatID]; !ok {
			return nil, fmt.Errorf("message %s: unknown chat %s", m.ID, m.ChatID)
		}
		if m.ThreadID != "" {
			t, ok := ws.threads[m.ThreadID]
			if !ok {
				return nil, fmt.Errorf("message %s: unknown thread %s", m.ID, m.ThreadID)
			}
			if t.ChatID != m.ChatID {
				return nil, fmt.Errorf("message %s: thread %s belongs to chat %s", m.ID, t.ID, t.ChatID)
			}
			ws.byThread[m.ThreadID] = append(ws.byThread[m.ThreadID], m)
		}
		m.SentAt = m.SentAt.UTC()
		ws.messages[m.ID] = m
	}
	for _, msgs := range ws.byThread {
		sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].SentAt.Before(msgs[j].SentAt) })
	}
	for _, e := range doc.Events {
		if !e.End.After(e.Start) {
			return nil, fmt.Errorf("event %s: end must be after start", e.ID)
		}
		e.Start, e.End = e.Start.UTC(), e.End.UTC()
		ws.events[e.UserID] = append(ws.events[e.UserID], e)
	}
	for _, evs := range ws.events {
		sort.Slice(evs, func(i, j int) bool { return evs[i].Start.Before(evs[j].Start) })
	}
	return ws, nil
}

// WithClock replaces the time source used for meeting suggestions.
func (w *Workspace) WithClock(now func() time.Time) *Workspace {
	w.now = now
	return w
}

// SetDown marks a back-end unavailable, or available again.
func (w *Workspace) SetDown(backend string, down bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.down[backend] = down
}

func (w *Workspace) check(ctx context.Context, backend string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.down[backend] {
		return fmt.Errorf("%s: %w", backend, ErrBackendDown)
	}
	return nil
}

// CanAccess reports whether callerID may read the resource. A caller may
// read chats and threads they are a member of, messages in those chats and
// their own calendar.
func (w *Workspace) CanAccess(ctx context.Context, callerID string, kind actions.ResourceKind, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	switch kind {
	case actions.ResourceChat:
		return w.isMember(callerID, id), nil
	case actions.ResourceThread:
		t, ok := w.threads[id]
		return ok && w.isMember(callerID, t.ChatID), nil
	case actions.ResourceMessage:
		m, ok := w.messages[id]
		return ok && w.isMember(callerID, m.ChatID), nil
	case actions.ResourceCalendar:
		_, ok := w.users[id]
		return ok && id == callerID, nil
	}
	return false, fmt.Errorf("unknown resource kind %q", kind)
}

func (w *Workspace) isMember(userID, chatID string) bool {
	c, ok := w.chats[chatID]
	if !ok {
		return false
	}
	for _, m := range c.Members {
		if m == userID {
			return true
		}
	}
	return false
}

func (w *Workspace) threadMessages(threadID string) ([]Message, error) {
	if _, ok := w.threads[threadID]; !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "thread %s not found", threadID)
	}
	return w.byThread[threadID], nil
}

func (w *Workspace) userName(id string) string {
	if u, ok := w.users[id]; ok && u.Name != "" {
		return u.Name
	}
	return id
}
