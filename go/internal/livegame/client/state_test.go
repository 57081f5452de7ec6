package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateMachine_Lifecycle(t *testing.T) {
	var seen []ConnState
	m := newStateMachine(func(from, to ConnState) { seen = append(seen, to) })

	require.NoError(t, m.to(StateConnecting))
	require.NoError(t, m.to(StateJoined))
	require.NoError(t, m.to(StateLeaving))
	require.NoError(t, m.to(StateDisconnected))

	assert.Equal(t, []ConnState{StateConnecting, StateJoined, StateLeaving, StateDisconnected}, seen)
}

func TestStateMachine_RejectsInvalidTransitions(t *testing.T) {
	tests := []struct {
		from, to ConnState
	}{
		{StateDisconnected, StateJoined},
		{StateDisconnected, StateLeaving},
		{StateConnecting, StateLeaving},
		{StateLeaving, StateJoined},
		{StateJoined, StateConnecting},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			m := &stateMachine{state: tt.from}
			assert.ErrorIs(t, m.to(tt.to), ErrInvalidState)
			assert.Equal(t, tt.from, m.current())
		})
	}
}

func TestStateMachine_ToIf(t *testing.T) {
	m := newStateMachine(nil)
	assert.False(t, m.toIf(StateJoined, StateDisconnected))
	assert.True(t, m.toIf(StateDisconnected, StateConnecting))
	assert.Equal(t, StateConnecting, m.current())
}
