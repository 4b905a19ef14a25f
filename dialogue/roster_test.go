package dialogue

import (
	"testing"

	"github.com/BaSui01/paneltalk/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func speaker(name string, role types.Role, keywords ...string) *types.Speaker {
	return &types.Speaker{Name: name, Role: role, Keywords: keywords}
}

func TestNewRoster_Valid(t *testing.T) {
	t.Parallel()
	r, err := NewRoster([]*types.Speaker{
		speaker("Host", types.RoleModerator),
		speaker("Engineer", types.RoleParticipant, "Engineer"),
		speaker("Designer", types.RoleParticipant, "Designer"),
	})
	require.NoError(t, err)

	assert.Equal(t, 3, r.Size())
	assert.True(t, r.Contains("Host"))
	assert.False(t, r.Contains("user"))

	mod, ok := r.Moderator()
	require.True(t, ok)
	assert.Equal(t, "Host", mod.Name)
}

func TestNewRoster_TooSmall(t *testing.T) {
	t.Parallel()
	_, err := NewRoster([]*types.Speaker{speaker("Host", types.RoleModerator)})
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrRosterTooSmall))

	_, err = NewRoster(nil)
	assert.True(t, types.IsErrorCode(err, types.ErrRosterTooSmall))
}

func TestNewRoster_DuplicateName(t *testing.T) {
	t.Parallel()
	_, err := NewRoster([]*types.Speaker{
		speaker("Engineer", types.RoleParticipant),
		speaker("Engineer", types.RoleParticipant),
	})
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrDuplicateSpeaker))
}

func TestNewRoster_ReservedUserName(t *testing.T) {
	t.Parallel()
	_, err := NewRoster([]*types.Speaker{
		speaker("user", types.RoleParticipant),
		speaker("Engineer", types.RoleParticipant),
	})
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidRequest))
}

func TestNewRoster_TwoModerators(t *testing.T) {
	t.Parallel()
	_, err := NewRoster([]*types.Speaker{
		speaker("Host", types.RoleModerator),
		speaker("CoHost", types.RoleModerator),
	})
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidRequest))
}

func TestRoster_ParticipantsSorted(t *testing.T) {
	t.Parallel()
	r, err := NewRoster([]*types.Speaker{
		speaker("Zhang", types.RoleParticipant),
		speaker("Host", types.RoleModerator),
		speaker("Alice", types.RoleParticipant),
	})
	require.NoError(t, err)

	participants := r.Participants()
	require.Len(t, participants, 2)
	assert.Equal(t, "Alice", participants[0].Name)
	assert.Equal(t, "Zhang", participants[1].Name)
}

func TestRoster_NoModerator(t *testing.T) {
	t.Parallel()
	r, err := NewRoster([]*types.Speaker{
		speaker("Bob", types.RoleParticipant),
		speaker("Alice", types.RoleParticipant),
	})
	require.NoError(t, err)

	_, ok := r.Moderator()
	assert.False(t, ok)
}
