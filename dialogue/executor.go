package dialogue

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/BaSui01/paneltalk/types"
	"go.uber.org/zap"
)

// Generator 是发言生成能力的抽象（建模对语言模型的调用）。
// 实现可以是本地调用或网络调用；核心只要求同步或可等待的语义，
// 并以 error 报告失败结果。
type Generator interface {
	// Generate 基于会话记录快照生成 speaker 的下一条发言内容。
	Generate(ctx context.Context, speaker *types.Speaker, transcript []types.Utterance) (string, error)
}

// Executor 执行单轮：调用被选中发言人的生成器，成功时把结果追加进会话记录。
// 所有失败都在这里分类为 GENERATION_FAILURE 后再到达编排器；
// Executor 自身从不重试（重试策略是编排器层的决策）。
// 副作用：每次成功恰好一次追加，失败时零次。
type Executor struct {
	transcript *Transcript
	gen        Generator
	timeout    time.Duration
	logger     *zap.Logger
}

// NewExecutor 创建单轮执行器。timeout 为单轮生成的超时上限（0 表示不限）。
func NewExecutor(transcript *Transcript, gen Generator, timeout time.Duration, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		transcript: transcript,
		gen:        gen,
		timeout:    timeout,
		logger:     logger.With(zap.String("component", "turn_executor")),
	}
}

// Execute 执行一轮并返回追加后的发言（含分配的序号）。
// 生成器超时与生成器自身报错走同一条 GENERATION_FAILURE 路径。
func (e *Executor) Execute(ctx context.Context, speaker *types.Speaker) (types.Utterance, error) {
	snapshot := e.transcript.Snapshot()

	genCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	start := time.Now()
	content, err := e.gen.Generate(genCtx, speaker, snapshot)
	if err != nil {
		e.logger.Warn("utterance generation failed",
			zap.String("speaker", speaker.Name),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return types.Utterance{}, types.NewGenerationFailure(speaker.Name, err)
	}

	if strings.TrimSpace(content) == "" {
		return types.Utterance{}, types.NewGenerationFailure(speaker.Name,
			errors.New("generator returned empty content"))
	}

	u := types.NewUtterance(speaker.Name, content)
	seq, err := e.transcript.Append(u)
	if err != nil {
		// INVALID_SEQUENCE：名册外发言人，对会话是致命的
		return types.Utterance{}, err
	}
	u.Seq = seq

	e.logger.Debug("turn executed",
		zap.String("speaker", speaker.Name),
		zap.Int("seq", seq),
		zap.Duration("elapsed", time.Since(start)),
	)

	return u, nil
}
