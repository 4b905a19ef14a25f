package dialogue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/BaSui01/paneltalk/types"
)

// ---------------------------------------------------------------------------
// scriptedGenerator — 按发言人回放固定脚本的生成器
// ---------------------------------------------------------------------------

type scriptedGenerator struct {
	mu      sync.Mutex
	scripts map[string][]string // 每位发言人的输出队列
	cursor  map[string]int
	fail    map[string]int // 发言人前 N 次调用注入失败
	calls   int
}

func newScriptedGenerator() *scriptedGenerator {
	return &scriptedGenerator{
		scripts: make(map[string][]string),
		cursor:  make(map[string]int),
		fail:    make(map[string]int),
	}
}

func (g *scriptedGenerator) Script(speaker string, lines ...string) *scriptedGenerator {
	g.scripts[speaker] = lines
	return g
}

func (g *scriptedGenerator) FailFirst(speaker string, n int) *scriptedGenerator {
	g.fail[speaker] = n
	return g
}

func (g *scriptedGenerator) Generate(ctx context.Context, speaker *types.Speaker, transcript []types.Utterance) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++

	if n := g.fail[speaker.Name]; n > 0 {
		g.fail[speaker.Name] = n - 1
		return "", errors.New("injected generator failure")
	}

	lines := g.scripts[speaker.Name]
	i := g.cursor[speaker.Name]
	if i >= len(lines) {
		// 脚本耗尽后循环复用最后一行，保证长会话可跑满预算
		if len(lines) == 0 {
			return "scripted reply from " + speaker.Name, nil
		}
		return lines[len(lines)-1], nil
	}
	g.cursor[speaker.Name] = i + 1
	return lines[i], nil
}

// ---------------------------------------------------------------------------
// blockingGenerator — 阻塞到 ctx 取消，用于超时路径
// ---------------------------------------------------------------------------

type blockingGenerator struct{}

func (blockingGenerator) Generate(ctx context.Context, _ *types.Speaker, _ []types.Utterance) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

// ---------------------------------------------------------------------------
// recordingObserver — 记录旁路通知
// ---------------------------------------------------------------------------

type recordingObserver struct {
	mu       sync.Mutex
	turns    []string
	failures []string
	ended    bool
	reason   types.TerminationReason
}

func (o *recordingObserver) TurnCompleted(_, speaker string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.turns = append(o.turns, speaker)
}

func (o *recordingObserver) GenerationFailed(_, speaker string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failures = append(o.failures, speaker)
}

func (o *recordingObserver) SessionEnded(_ string, reason types.TerminationReason, _ int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ended = true
	o.reason = reason
}
