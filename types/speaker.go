package types

import "strings"

// Role represents the conversational role of a speaker.
type Role string

const (
	// RoleModerator is the distinguished speaker responsible for opening,
	// directing, and closing the conversation.
	RoleModerator Role = "moderator"
	// RoleParticipant is a regular panel speaker.
	RoleParticipant Role = "participant"
)

// UserSpeakerName is the reserved name of the synthetic speaker that authors
// turn 0 (the topic). It is never part of the roster.
const UserSpeakerName = "user"

// Speaker is a named participant capable of producing one utterance per turn
// when selected. Speakers are immutable once a conversation starts.
type Speaker struct {
	// Name is the unique, stable key of the speaker within a roster.
	Name string `json:"name"`
	// DisplayName is the human-readable label shown to consumers.
	DisplayName string `json:"display_name,omitempty"`
	// Role tags the speaker as moderator or participant.
	Role Role `json:"role"`
	// Instructions is the static persona instruction text handed to the
	// utterance generator. Read-only during a conversation.
	Instructions string `json:"instructions,omitempty"`
	// Keywords is the ordered list of invocation keywords used for targeted
	// invitation by the moderator. Matching is case-insensitive.
	Keywords []string `json:"keywords,omitempty"`
}

// IsModerator reports whether the speaker carries the moderator role.
func (s *Speaker) IsModerator() bool {
	return s.Role == RoleModerator
}

// Label returns the display name, falling back to the unique name.
func (s *Speaker) Label() string {
	if s.DisplayName != "" {
		return s.DisplayName
	}
	return s.Name
}

// MatchesKeyword reports whether the given content mentions any of the
// speaker's invocation keywords (case-insensitive substring match).
func (s *Speaker) MatchesKeyword(content string) bool {
	if len(s.Keywords) == 0 {
		return false
	}
	lower := strings.ToLower(content)
	for _, kw := range s.Keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
