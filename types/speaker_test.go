package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSpeaker_IsModerator(t *testing.T) {
	t.Parallel()
	host := &Speaker{Name: "Host", Role: RoleModerator}
	guest := &Speaker{Name: "Engineer", Role: RoleParticipant}
	assert.True(t, host.IsModerator())
	assert.False(t, guest.IsModerator())
}

func TestSpeaker_Label(t *testing.T) {
	t.Parallel()
	s := &Speaker{Name: "zhang_yiming", DisplayName: "Zhang Yiming"}
	assert.Equal(t, "Zhang Yiming", s.Label())

	s.DisplayName = ""
	assert.Equal(t, "zhang_yiming", s.Label())
}

func TestSpeaker_MatchesKeyword(t *testing.T) {
	t.Parallel()
	s := &Speaker{
		Name:     "Engineer",
		Keywords: []string{"Engineer", "engineering team"},
	}

	tests := []struct {
		name    string
		content string
		want    bool
	}{
		{"exact", "Engineer, what do you think?", true},
		{"case insensitive", "let's hear from our ENGINEER", true},
		{"substring", "the engineering team has a view", true},
		{"no match", "Designer, your turn", false},
		{"empty content", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, s.MatchesKeyword(tt.content))
		})
	}
}

func TestSpeaker_MatchesKeyword_NoKeywords(t *testing.T) {
	t.Parallel()
	s := &Speaker{Name: "Engineer"}
	assert.False(t, s.MatchesKeyword("Engineer, go ahead"))

	s.Keywords = []string{""}
	assert.False(t, s.MatchesKeyword("anything"))
}
