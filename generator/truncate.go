package generator

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/BaSui01/paneltalk/types"
)

// Truncator 按 token 预算裁剪会话记录。话题（首条）永远保留，
// 其余从最新往回取，直到预算耗尽，保证模型总是看到话题和最近的对话。
type Truncator struct {
	budget  int
	once    sync.Once
	enc     *tiktoken.Tiktoken
	initErr error
}

// NewTruncator 创建裁剪器。budget <= 0 表示不裁剪。
func NewTruncator(budget int) *Truncator {
	return &Truncator{budget: budget}
}

// init 惰性初始化编码表（首次使用可能下载数据）。
func (t *Truncator) init() error {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			t.initErr = fmt.Errorf("init tiktoken encoding: %w", err)
			return
		}
		t.enc = enc
	})
	return t.initErr
}

func (t *Truncator) count(text string) int {
	return len(t.enc.Encode(text, nil, nil))
}

// Truncate 返回预算内的记录子集，顺序不变。
// 编码表不可用时放弃裁剪，把完整记录交给上游。
func (t *Truncator) Truncate(transcript []types.Utterance) []types.Utterance {
	if t.budget <= 0 || len(transcript) <= 1 {
		return transcript
	}
	if err := t.init(); err != nil {
		return transcript
	}

	// 每条消息额外计 4 个 token 的封包开销
	const messageOverhead = 4

	remaining := t.budget - t.count(transcript[0].Content) - messageOverhead
	kept := 0
	for i := len(transcript) - 1; i >= 1; i-- {
		cost := t.count(transcript[i].Content) + messageOverhead
		if cost > remaining {
			break
		}
		remaining -= cost
		kept++
	}

	if kept == len(transcript)-1 {
		return transcript
	}

	out := make([]types.Utterance, 0, kept+1)
	out = append(out, transcript[0])
	out = append(out, transcript[len(transcript)-kept:]...)
	return out
}
