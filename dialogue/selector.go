package dialogue

import (
	"github.com/BaSui01/paneltalk/types"
)

// SelectionRule 标识命中的选择规则。
type SelectionRule string

const (
	RuleBootstrap     SelectionRule = "bootstrap"
	RuleUserHandoff   SelectionRule = "user_handoff"
	RuleInvitation    SelectionRule = "invitation"
	RuleCadence       SelectionRule = "cadence"
	RuleUnconstrained SelectionRule = "unconstrained"
)

// Selection 是选择器的结果：命中规则时给出具体发言人；
// 无规则命中时 Speaker 为 nil（unconstrained），由外部兜底机制补位。
type Selection struct {
	Speaker *types.Speaker
	Rule    SelectionRule
}

// DefaultModeratorCadence 是主持人重新主导讨论的默认节奏阈值。
const DefaultModeratorCadence = 3

// Selector 按严格顺序的规则列表选择下一位发言人。
// 规则顺序本身就是设计核心：它把「主持人主导的对话结构」编码在自由选择之上。
// 选择器是纯逻辑：不保存状态，所有输入每轮从会话记录重新推导，
// 以消除选择决策与已记录历史之间的漂移。
type Selector struct {
	cadence int
}

// NewSelector 创建选择器。cadence ≤ 0 时使用默认值。
func NewSelector(cadence int) *Selector {
	if cadence <= 0 {
		cadence = DefaultModeratorCadence
	}
	return &Selector{cadence: cadence}
}

// Next 依次评估规则，首个命中者生效：
//  1. bootstrap：记录仅含话题时选主持人，无主持人则选字典序最小的嘉宾
//  2. user-handoff：上一条发言来自合成 user 时交还主持人
//  3. targeted invitation：上一位是主持人时扫描其发言中的嘉宾邀请关键词，
//     恰好命中一人则选中；零人或多人命中无法消歧，返回 unconstrained
//     （显式设计决策：核心不猜测，交给外部兜底）
//  4. cadence：主持人已连续 cadence 轮未发言且上一位不是主持人时，
//     选主持人重新主导讨论
//  5. unconstrained：由编排器应用配置的 round-robin 兜底
func (s *Selector) Next(snapshot []types.Utterance, roster *Roster) Selection {
	moderator, hasModerator := roster.Moderator()

	// 规则 1：bootstrap
	if len(snapshot) <= 1 {
		if hasModerator {
			return Selection{Speaker: moderator, Rule: RuleBootstrap}
		}
		if participants := roster.Participants(); len(participants) > 0 {
			return Selection{Speaker: participants[0], Rule: RuleBootstrap}
		}
		return Selection{Rule: RuleUnconstrained}
	}

	last := snapshot[len(snapshot)-1]

	// 规则 2：user-handoff
	if last.Speaker == types.UserSpeakerName {
		if hasModerator {
			return Selection{Speaker: moderator, Rule: RuleUserHandoff}
		}
		return Selection{Rule: RuleUnconstrained}
	}

	// 规则 3：targeted invitation
	if hasModerator && last.Speaker == moderator.Name {
		var invited *types.Speaker
		matches := 0
		for _, p := range roster.Participants() {
			if p.MatchesKeyword(last.Content) {
				invited = p
				matches++
			}
		}
		if matches == 1 {
			return Selection{Speaker: invited, Rule: RuleInvitation}
		}
		return Selection{Rule: RuleUnconstrained}
	}

	// 规则 4：cadence
	if hasModerator && turnsSince(snapshot, moderator.Name) >= s.cadence {
		return Selection{Speaker: moderator, Rule: RuleCadence}
	}

	// 规则 5：unconstrained
	return Selection{Rule: RuleUnconstrained}
}

// turnsSince 统计自 name 最近一次发言之后的发言轮数。
// 话题（第 0 轮）不计入；name 从未发言时返回全部发言轮数。
func turnsSince(snapshot []types.Utterance, name string) int {
	count := 0
	for i := len(snapshot) - 1; i >= 1; i-- {
		if snapshot[i].Speaker == name {
			return count
		}
		count++
	}
	return count
}
