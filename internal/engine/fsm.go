package engine

import (
	"slices"
	"sync"

	"github.com/rendis/conduit/pkg/schema"
)

// InvocationState is a step in the life of one invocation.
type InvocationState string

const (
	StateReceived    InvocationState = "received"
	StateValidating  InvocationState = "validating"
	StateAuthorizing InvocationState = "authorizing"
	StateDispatched  InvocationState = "dispatched"
	StateCompleted   InvocationState = "completed"
	StateFailed      InvocationState = "failed"
	StateTimedOut    InvocationState = "timed_out"
)

// ValidInvocationTransitions is the transition table. Terminal states have no
// outgoing edges.
var ValidInvocationTransitions = map[InvocationState][]InvocationState{
	StateReceived:    {StateValidating, StateFailed},
	StateValidating:  {StateAuthorizing, StateFailed},
	StateAuthorizing: {StateDispatched, StateFailed},
	StateDispatched:  {StateCompleted, StateFailed, StateTimedOut},
	StateCompleted:   {},
	StateFailed:      {},
	StateTimedOut:    {},
}

// IsTerminal reports whether no transition leaves s.
func (s InvocationState) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateTimedOut
}

// TransitionHook is called after a state transition.
type TransitionHook func(from, to InvocationState)

// InvocationFSM tracks the state of a single invocation.
type InvocationFSM struct {
	mu        sync.Mutex
	requestID string
	state     InvocationState
	history   []InvocationState
	after     []TransitionHook
}

// NewInvocationFSM creates an FSM in the received state.
func NewInvocationFSM(requestID string, hooks ...TransitionHook) *InvocationFSM {
	return &InvocationFSM{
		requestID: requestID,
		state:     StateReceived,
		history:   []InvocationState{StateReceived},
		after:     hooks,
	}
}

// State returns the current state.
func (f *InvocationFSM) State() InvocationState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// History returns every state visited, in order.
func (f *InvocationFSM) History() []InvocationState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.history)
}

// Transition moves to the given state, or returns an error when the table
// does not allow it.
func (f *InvocationFSM) Transition(to InvocationState) error {
	f.mu.Lock()
	from := f.state
	if !slices.Contains(ValidInvocationTransitions[from], to) {
		f.mu.Unlock()
		return schema.NewErrorf(schema.ErrCodeInternal,
			"invalid invocation transition: %s -> %s", from, to).
			WithDetails(map[string]any{"request_id": f.requestID, "from": string(from), "to": string(to)})
	}
	f.state = to
	f.history = append(f.history, to)
	hooks := f.after
	f.mu.Unlock()

	for _, hook := range hooks {
		hook(from, to)
	}
	return nil
}

// terminalFor maps a failure code onto the terminal state it ends in.
func terminalFor(code schema.ErrorCode) InvocationState {
	if code == schema.ErrCodeTimeout {
		return StateTimedOut
	}
	return StateFailed
}
