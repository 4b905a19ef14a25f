package dialogue

import (
	"fmt"
	"sync"
	"time"

	"github.com/BaSui01/paneltalk/types"
)

// Transcript 是追加式的有序会话记录。
// 第 0 轮恒为话题本身，由合成 user 发言人撰写。序号严格递增且无空洞；
// 除追加外不允许任何修改。去重只发生在事件发布端，绝不回写记录。
type Transcript struct {
	mu      sync.RWMutex
	topic   string
	roster  *Roster
	entries []types.Utterance
}

// NewTranscript 创建会话记录并写入第 0 轮（话题）。
func NewTranscript(topic string, roster *Roster) *Transcript {
	return &Transcript{
		topic:  topic,
		roster: roster,
		entries: []types.Utterance{{
			Speaker:   types.UserSpeakerName,
			Content:   topic,
			Seq:       0,
			Timestamp: time.Now(),
		}},
	}
}

// Append 追加一条发言并返回分配的序号。
// 发言人必须在名册中，否则返回 INVALID_SEQUENCE（视为记录损坏企图）。
func (t *Transcript) Append(u types.Utterance) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.roster.Contains(u.Speaker) {
		return 0, types.NewError(types.ErrInvalidSequence,
			fmt.Sprintf("speaker %q is not in the roster", u.Speaker))
	}

	u.Seq = len(t.entries)
	if u.Timestamp.IsZero() {
		u.Timestamp = time.Now()
	}
	t.entries = append(t.entries, u)

	return u.Seq, nil
}

// Snapshot 返回当前记录的只读时点副本。
// 调用方不得假定副本反映之后的追加。
func (t *Transcript) Snapshot() []types.Utterance {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]types.Utterance, len(t.entries))
	copy(out, t.entries)
	return out
}

// Last 返回最近一条发言（至少有第 0 轮的话题）。
func (t *Transcript) Last() types.Utterance {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.entries[len(t.entries)-1]
}

// Len 返回记录长度（含第 0 轮话题）。
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Topic 返回会话话题。
func (t *Transcript) Topic() string {
	return t.topic
}
