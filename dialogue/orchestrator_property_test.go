package dialogue

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/BaSui01/paneltalk/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"
)

// queueItem 是预先抽样好的单次生成结果。
type queueItem struct {
	content string
	fail    bool
}

// queueGenerator 按预定队列逐次回放，与发言人无关。
// 队列耗尽后返回稳定内容，保证任何会话都能跑到终止。
type queueGenerator struct {
	mu    sync.Mutex
	items []queueItem
	next  int
}

func (g *queueGenerator) Generate(_ context.Context, speaker *types.Speaker, _ []types.Utterance) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.next >= len(g.items) {
		return "steady reply from " + speaker.Name, nil
	}
	item := g.items[g.next]
	g.next++
	if item.fail {
		return "", fmt.Errorf("scripted failure %d", g.next)
	}
	return item.content, nil
}

func drawPanel(t *rapid.T) []*types.Speaker {
	n := rapid.IntRange(1, 4).Draw(t, "participants")
	speakers := []*types.Speaker{speaker("Host", types.RoleModerator)}
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("Guest%d", i+1)
		speakers = append(speakers, speaker(name, types.RoleParticipant, name))
	}
	return speakers
}

func drawQueue(t *rapid.T) []queueItem {
	sentences := []string{
		"I would push back on that.",
		"The data points the other way.",
		"Users care about reliability first.",
		"Guest1 raised the key question.",
		"Let us hear another perspective.",
	}
	n := rapid.IntRange(0, 30).Draw(t, "queue_len")
	items := make([]queueItem, 0, n)
	for i := 0; i < n; i++ {
		item := queueItem{content: rapid.SampledFrom(sentences).Draw(t, "sentence")}
		if rapid.IntRange(0, 9).Draw(t, "roll") == 0 {
			item.fail = true
		} else if rapid.IntRange(0, 9).Draw(t, "marker_roll") == 0 {
			item.content += " TERMINATE"
		}
		items = append(items, item)
	}
	return items
}

func runPanel(t *testing.T, speakers []*types.Speaker, cfg Config, items []queueItem) (*Session, []types.TurnEvent, []types.TerminationEvent) {
	t.Helper()
	s, err := NewSession("sess-prop", "the topic at hand", speakers, cfg)
	require.NoError(t, err)

	queue := make([]queueItem, len(items))
	copy(queue, items)
	o := NewOrchestrator(s, &queueGenerator{items: queue}, zap.NewNop())
	turns, terms := collect(t, o.Run(context.Background()))
	return s, turns, terms
}

func TestOrchestrator_Properties(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(rt *rapid.T) {
		speakers := drawPanel(rt)
		items := drawQueue(rt)
		cfg := Config{
			MaxTurns:               rapid.IntRange(1, 8).Draw(rt, "max_turns"),
			ModeratorCadence:       rapid.IntRange(1, 4).Draw(rt, "cadence"),
			TerminationMarkers:     []string{"TERMINATE"},
			GenerationRetryCeiling: rapid.IntRange(0, 3).Draw(rt, "ceiling"),
		}

		s, turns, terms := runPanel(t, speakers, cfg, items)

		// 恰好一条终止事件，且轮次计数一致
		require.Len(t, terms, 1)
		assert.Equal(t, s.Turns(), terms[0].FinalTurnCount)
		assert.LessOrEqual(t, len(turns), cfg.MaxTurns)
		assert.LessOrEqual(t, len(turns), s.Turns())

		// 会话记录序号无缝
		snap := s.Transcript().Snapshot()
		for i, u := range snap {
			assert.Equal(t, i, u.Seq)
		}
		assert.Equal(t, s.Turns()+1, len(snap))

		// 流内序号严格递增（去重可产生空洞但不乱序）
		prev := 0
		for _, tu := range turns {
			assert.Greater(t, tu.Seq, prev)
			prev = tu.Seq
		}

		// 终态与终止原因一致
		require.True(t, s.State().Terminal())
		switch terms[0].Reason {
		case types.ReasonBudgetExhausted:
			assert.Equal(t, StateBudgetExhausted, s.State())
			assert.Equal(t, cfg.MaxTurns, s.Turns())
		case types.ReasonMarkerReached:
			assert.Equal(t, StateCompleted, s.State())
		case types.ReasonFailed:
			assert.Equal(t, StateFailed, s.State())
		default:
			t.Fatalf("unknown reason %q", terms[0].Reason)
		}
	})
}

func TestOrchestrator_DeterministicReplay(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(rt *rapid.T) {
		speakers := drawPanel(rt)
		items := drawQueue(rt)
		cfg := Config{
			MaxTurns:               rapid.IntRange(1, 6).Draw(rt, "max_turns"),
			ModeratorCadence:       3,
			TerminationMarkers:     []string{"TERMINATE"},
			GenerationRetryCeiling: 2,
		}

		_, turns1, terms1 := runPanel(t, speakers, cfg, items)
		_, turns2, terms2 := runPanel(t, speakers, cfg, items)

		// 相同输入的两次编排产出完全相同的事件流
		require.Equal(t, len(turns1), len(turns2))
		for i := range turns1 {
			assert.Equal(t, turns1[i].Speaker, turns2[i].Speaker)
			assert.Equal(t, turns1[i].Content, turns2[i].Content)
			assert.Equal(t, turns1[i].Seq, turns2[i].Seq)
		}
		require.Len(t, terms1, 1)
		require.Len(t, terms2, 1)
		assert.Equal(t, terms1[0].Reason, terms2[0].Reason)
		assert.Equal(t, terms1[0].FinalTurnCount, terms2[0].FinalTurnCount)
	})
}
