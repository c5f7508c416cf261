package engine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/conduit/pkg/schema"
)

func TestInvocationFSM_HappyPath(t *testing.T) {
	f := NewInvocationFSM("r1")
	assert.Equal(t, StateReceived, f.State())

	for _, to := range []InvocationState{StateValidating, StateAuthorizing, StateDispatched, StateCompleted} {
		require.NoError(t, f.Transition(to))
	}
	assert.Equal(t, StateCompleted, f.State())
	assert.Equal(t, []InvocationState{
		StateReceived, StateValidating, StateAuthorizing, StateDispatched, StateCompleted,
	}, f.History())
}

func TestInvocationFSM_FailFromEveryNonTerminalState(t *testing.T) {
	paths := [][]InvocationState{
		{StateFailed},
		{StateValidating, StateFailed},
		{StateValidating, StateAuthorizing, StateFailed},
		{StateValidating, StateAuthorizing, StateDispatched, StateFailed},
		{StateValidating, StateAuthorizing, StateDispatched, StateTimedOut},
	}
	for _, path := range paths {
		f := NewInvocationFSM("r")
		for _, to := range path {
			require.NoError(t, f.Transition(to), "path %v", path)
		}
		assert.True(t, f.State().IsTerminal())
	}
}

func TestInvocationFSM_InvalidTransition(t *testing.T) {
	f := NewInvocationFSM("r1")

	err := f.Transition(StateDispatched)
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeInternal, schema.CodeOf(err))
	assert.Equal(t, StateReceived, f.State(), "state unchanged after rejected transition")

	require.NoError(t, f.Transition(StateFailed))
	assert.Error(t, f.Transition(StateValidating), "terminal states reject transitions")
	assert.Error(t, f.Transition(StateFailed))
}

func TestInvocationFSM_TimedOutOnlyFromDispatched(t *testing.T) {
	f := NewInvocationFSM("r1")
	require.NoError(t, f.Transition(StateValidating))
	assert.Error(t, f.Transition(StateTimedOut))
}

func TestInvocationFSM_AfterHooks(t *testing.T) {
	var seen []string
	f := NewInvocationFSM("r1", func(from, to InvocationState) {
		seen = append(seen, string(from)+">"+string(to))
	})
	require.NoError(t, f.Transition(StateValidating))
	require.NoError(t, f.Transition(StateFailed))
	_ = f.Transition(StateCompleted)

	assert.Equal(t, []string{"received>validating", "validating>failed"}, seen)
}

func TestInvocationFSM_ConcurrentTransitionsOneWins(t *testing.T) {
	f := NewInvocationFSM("r1")
	for _, to := range []InvocationState{StateValidating, StateAuthorizing, StateDispatched} {
		require.NoError(t, f.Transition(to))
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for _, to := range []InvocationState{StateCompleted, StateTimedOut, StateFailed, StateCompleted} {
		wg.Add(1)
		go func(to InvocationState) {
			defer wg.Done()
			if f.Transition(to) == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(to)
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
	assert.True(t, f.State().IsTerminal())
}

func TestTransitionTable_AllStatesPresent(t *testing.T) {
	for _, s := range []InvocationState{
		StateReceived, StateValidating, StateAuthorizing, StateDispatched,
		StateCompleted, StateFailed, StateTimedOut,
	} {
		next, ok := ValidInvocationTransitions[s]
		assert.True(t, ok, s)
		assert.Equal(t, s.IsTerminal(), len(next) == 0, s)
	}
}

func TestTerminalFor(t *testing.T) {
	assert.Equal(t, StateTimedOut, terminalFor(schema.ErrCodeTimeout))
	assert.Equal(t, StateFailed, terminalFor(schema.ErrCodeInternal))
	assert.Equal(t, StateFailed, terminalFor(schema.ErrCodePermissionDenied))
}
