package dialogue

import (
	"strings"

	"github.com/BaSui01/paneltalk/types"
)

// TerminationOutcome 是终止判定的结果。
// 预算耗尽是预期终态而非故障，所以判定永远返回 outcome 而不是 error。
type TerminationOutcome struct {
	Terminal bool
	Reason   types.TerminationReason
}

// EvaluateTermination 判定会话是否必须停止。纯函数，无副作用，每轮前调用。
// 优先级：
//  1. 轮数 ≥ 最大轮数 → BudgetExhausted
//  2. 最近一条发言包含任一终止标记（大小写不敏感的子串匹配）→ MarkerReached
//  3. 继续
func EvaluateTermination(snapshot []types.Utterance, turns, maxTurns int, markers []string) TerminationOutcome {
	if turns >= maxTurns {
		return TerminationOutcome{Terminal: true, Reason: types.ReasonBudgetExhausted}
	}

	if len(snapshot) > 0 && containsMarker(snapshot[len(snapshot)-1].Content, markers) {
		return TerminationOutcome{Terminal: true, Reason: types.ReasonMarkerReached}
	}

	return TerminationOutcome{}
}

func containsMarker(content string, markers []string) bool {
	if content == "" {
		return false
	}
	lower := strings.ToLower(content)
	for _, m := range markers {
		if m == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(m)) {
			return true
		}
	}
	return false
}
