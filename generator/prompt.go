package generator

import (
	"fmt"
	"strings"

	"github.com/BaSui01/paneltalk/types"
)

// chatMessage 是 OpenAI 兼容接口的消息。
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// panelRules 是拼进每位发言人系统提示的共同讨论规则。
const panelRules = "You are speaking on a live panel discussion. Reply with your " +
	"next message only, in your own voice, without prefixing your name. " +
	"Stay on the topic given in the first message."

// buildSystemPrompt 组装发言人的系统提示：人设指令 + 讨论规则 + 同台名单。
func buildSystemPrompt(speaker *types.Speaker, panel []string) string {
	var b strings.Builder
	if strings.TrimSpace(speaker.Instructions) != "" {
		b.WriteString(strings.TrimSpace(speaker.Instructions))
		b.WriteString("\n\n")
	}
	b.WriteString(panelRules)

	others := make([]string, 0, len(panel))
	for _, name := range panel {
		if name != speaker.Name {
			others = append(others, name)
		}
	}
	if len(others) > 0 {
		b.WriteString(fmt.Sprintf("\n\nThe other panelists are: %s.", strings.Join(others, ", ")))
	}
	return b.String()
}

// buildMessages 把会话记录展平成聊天消息。
// 发言人自己的历史映射为 assistant，其余发言带署名映射为 user，
// 这样模型既能延续自己的口吻，又能分辨他人的立场。
func buildMessages(speaker *types.Speaker, panel []string, transcript []types.Utterance) []chatMessage {
	msgs := make([]chatMessage, 0, len(transcript)+1)
	msgs = append(msgs, chatMessage{Role: "system", Content: buildSystemPrompt(speaker, panel)})

	for _, u := range transcript {
		if u.Speaker == speaker.Name {
			msgs = append(msgs, chatMessage{Role: "assistant", Content: u.Content})
			continue
		}
		content := u.Content
		if u.Speaker != types.UserSpeakerName {
			content = fmt.Sprintf("%s: %s", u.Speaker, u.Content)
		}
		msgs = append(msgs, chatMessage{Role: "user", Content: content})
	}
	return msgs
}
