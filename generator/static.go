package generator

import (
	"context"
	"fmt"
	"sync"

	"github.com/BaSui01/paneltalk/types"
)

// Static 是离线生成器：不访问网络，按固定模板轮流产出发言。
// 用于无凭证的本地演示与冒烟验证，讨论在若干轮后由主持人收尾。
type Static struct {
	// closingAfter 是主持人发出收尾语之前本人的发言次数。
	closingAfter int

	mu    sync.Mutex
	seen  map[string]int
	lines []string
}

// NewStatic 创建离线生成器。closingAfter <= 0 时取 3。
func NewStatic(closingAfter int) *Static {
	if closingAfter <= 0 {
		closingAfter = 3
	}
	return &Static{
		closingAfter: closingAfter,
		seen:         make(map[string]int),
		lines: []string{
			"That is a fair point, though I would frame it differently.",
			"From where I sit the trade-offs look quite different.",
			"I keep coming back to what this means in practice.",
			"There is evidence on both sides, but the trend is clear.",
		},
	}
}

// Generate 产出一条模板发言。主持人首轮开场，随后在 closingAfter 次发言后收尾。
func (s *Static) Generate(_ context.Context, speaker *types.Speaker, transcript []types.Utterance) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.seen[speaker.Name]
	s.seen[speaker.Name] = n + 1

	if speaker.IsModerator() {
		if n == 0 && len(transcript) > 0 {
			return fmt.Sprintf("Welcome to the panel. Today we are discussing: %s. Let us dive in.",
				transcript[0].Content), nil
		}
		if n >= s.closingAfter {
			return "That is all the time we have. Thanks to our panel. TERMINATE", nil
		}
		return "Interesting. Let us keep going around the table.", nil
	}

	return s.lines[n%len(s.lines)], nil
}
