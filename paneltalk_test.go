package paneltalk

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/paneltalk/dialogue"
	"github.com/BaSui01/paneltalk/types"
)

func TestRun_OfflinePanel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	events, err := Run(ctx, "Should cities ban private cars?")
	require.NoError(t, err)

	var turns int
	var last dialogue.Event
	for ev := range events {
		last = ev
		if ev.Type == dialogue.EventTurn {
			turns++
			assert.NotEmpty(t, ev.Turn.Speaker)
			assert.NotEmpty(t, ev.Turn.Content)
		}
	}

	require.Equal(t, dialogue.EventTermination, last.Type)
	assert.Greater(t, turns, 0)
	assert.Equal(t, turns, last.Termination.FinalTurnCount)
}

func TestRun_MaxTurnsOverride(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// 不给任何终止标记，让预算兜底
	events, err := Run(ctx, "A short panel",
		WithMaxTurns(2),
		WithTerminationMarkers([]string{"NEVER_SAID"}))
	require.NoError(t, err)

	var last dialogue.Event
	for ev := range events {
		last = ev
	}
	require.Equal(t, dialogue.EventTermination, last.Type)
	assert.Equal(t, types.ReasonBudgetExhausted, last.Termination.Reason)
	assert.Equal(t, 2, last.Termination.FinalTurnCount)
}

func TestRun_RejectsSmallRoster(t *testing.T) {
	_, err := Run(context.Background(), "topic",
		WithSpeakers([]*types.Speaker{{Name: "Solo", Role: types.RoleModerator}}))
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrRosterTooSmall))
}
