package dialogue

import (
	"fmt"
	"sort"

	"github.com/BaSui01/paneltalk/types"
)

// Roster 是一次会话的固定发言人集合。创建后不可变。
type Roster struct {
	speakers  []*types.Speaker
	byName    map[string]*types.Speaker
	moderator *types.Speaker
}

// NewRoster 构建并校验名册。
// 校验规则：
//  1. 至少 2 名发言人（主持人 + ≥1 名嘉宾，或 ≥2 名嘉宾）
//  2. 名称唯一，且不得占用合成 user 发言人的保留名
//  3. 至多一名主持人
func NewRoster(speakers []*types.Speaker) (*Roster, error) {
	if len(speakers) < 2 {
		return nil, types.NewRosterTooSmallError(len(speakers))
	}

	r := &Roster{
		speakers: make([]*types.Speaker, 0, len(speakers)),
		byName:   make(map[string]*types.Speaker, len(speakers)),
	}

	for _, s := range speakers {
		if s == nil || s.Name == "" {
			return nil, types.NewError(types.ErrInvalidRequest, "speaker name is required")
		}
		if s.Name == types.UserSpeakerName {
			return nil, types.NewError(types.ErrInvalidRequest,
				fmt.Sprintf("speaker name %q is reserved", types.UserSpeakerName))
		}
		if _, exists := r.byName[s.Name]; exists {
			return nil, types.NewError(types.ErrDuplicateSpeaker,
				fmt.Sprintf("duplicate speaker name: %s", s.Name))
		}
		if s.IsModerator() {
			if r.moderator != nil {
				return nil, types.NewError(types.ErrInvalidRequest,
					"roster allows at most one moderator")
			}
			r.moderator = s
		}
		r.byName[s.Name] = s
		r.speakers = append(r.speakers, s)
	}

	return r, nil
}

// Contains 检查名称是否在名册中。
func (r *Roster) Contains(name string) bool {
	_, ok := r.byName[name]
	return ok
}

// Get 按名称查找发言人。
func (r *Roster) Get(name string) (*types.Speaker, bool) {
	s, ok := r.byName[name]
	return s, ok
}

// Moderator 返回主持人（若有）。
func (r *Roster) Moderator() (*types.Speaker, bool) {
	return r.moderator, r.moderator != nil
}

// Participants 返回所有非主持人发言人，按名称字典序排列。
// 字典序保证 bootstrap 规则和 round-robin 兜底的确定性。
func (r *Roster) Participants() []*types.Speaker {
	out := make([]*types.Speaker, 0, len(r.speakers))
	for _, s := range r.speakers {
		if !s.IsModerator() {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Speakers 返回名册的全部发言人（保持注册顺序的副本）。
func (r *Roster) Speakers() []*types.Speaker {
	out := make([]*types.Speaker, len(r.speakers))
	copy(out, r.speakers)
	return out
}

// Size 返回名册大小。
func (r *Roster) Size() int {
	return len(r.speakers)
}
