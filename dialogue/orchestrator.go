package dialogue

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/BaSui01/paneltalk/types"
	"go.uber.org/zap"
)

// EventType 是编排器发布的事件类别。
type EventType string

const (
	// EventTurn 是一次成功轮次。
	EventTurn EventType = "turn"
	// EventTermination 是流的最后一条事件，每个会话恰好一条。
	EventTermination EventType = "termination"
)

// Event 是事件流的元素。Type 决定哪个字段非空。
type Event struct {
	Type        EventType               `json:"type"`
	Turn        *types.TurnEvent        `json:"turn,omitempty"`
	Termination *types.TerminationEvent `json:"termination,omitempty"`
}

// Observer 接收编排过程的旁路通知（指标用）。实现必须快速且不阻塞。
type Observer interface {
	TurnCompleted(sessionID, speaker string, elapsed time.Duration)
	GenerationFailed(sessionID, speaker string)
	SessionEnded(sessionID string, reason types.TerminationReason, turns int)
}

// Orchestrator 驱动单个会话：组合终止判定、发言人选择与单轮执行，
// 产出一条有序事件流。循环严格串行；唯一的挂起点是生成器调用。
type Orchestrator struct {
	session  *Session
	selector *Selector
	executor *Executor
	observer Observer
	logger   *zap.Logger
}

// Option 配置编排器的可选项。
type Option func(*Orchestrator)

// WithObserver 挂接旁路观察者。
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) { o.observer = obs }
}

// NewOrchestrator 创建会话编排器。
func NewOrchestrator(session *Session, gen Generator, logger *zap.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(
		zap.String("component", "orchestrator"),
		zap.String("session_id", session.ID()),
	)

	cfg := session.Config()
	o := &Orchestrator{
		session:  session,
		selector: NewSelector(cfg.ModeratorCadence),
		executor: NewExecutor(session.Transcript(), gen, cfg.PerTurnTimeout, logger),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run 启动编排循环并返回事件通道。通道在终止事件之后关闭。
// 发布是有序交接：慢消费者会使循环阻塞，事件绝不乱序或（去重策略之外）丢弃。
// 取消 ctx 会停止调度后续轮次，但不会破坏已记录的会话内容。
func (o *Orchestrator) Run(ctx context.Context) <-chan Event {
	events := make(chan Event)
	go o.run(ctx, events)
	return events
}

func (o *Orchestrator) run(ctx context.Context, events chan<- Event) {
	defer close(events)

	s := o.session
	cfg := s.Config()
	s.setState(StateRunning)

	o.logger.Info("session started",
		zap.String("topic", s.Topic()),
		zap.Int("roster_size", s.Roster().Size()),
		zap.Int("max_turns", cfg.MaxTurns),
	)

	// prevSpeaker 跟踪会话记录中上一条成功发言的发言人，用于发布端去重。
	prevSpeaker := ""
	retries := 0

	for {
		if ctx.Err() != nil {
			o.finish(ctx, events, StateFailed, types.ReasonFailed, "cancelled")
			return
		}

		// 1. 终止判定
		outcome := EvaluateTermination(s.Transcript().Snapshot(), s.Turns(), cfg.MaxTurns, cfg.TerminationMarkers)
		if outcome.Terminal {
			switch outcome.Reason {
			case types.ReasonBudgetExhausted:
				o.finish(ctx, events, StateBudgetExhausted, outcome.Reason, "")
			default:
				o.finish(ctx, events, StateCompleted, outcome.Reason, "")
			}
			return
		}

		// 2. 发言人选择 + unconstrained 兜底
		snapshot := s.Transcript().Snapshot()
		sel := o.selector.Next(snapshot, s.Roster())
		speaker := sel.Speaker
		if speaker == nil {
			speaker = o.roundRobin(snapshot)
		}
		if speaker == nil {
			o.logger.Error("no eligible speaker remains")
			o.finish(ctx, events, StateFailed, types.ReasonFailed, string(types.ErrNoEligibleSpeaker))
			return
		}

		o.logger.Debug("speaker selected",
			zap.String("speaker", speaker.Name),
			zap.String("rule", string(sel.Rule)),
		)

		// 3. 单轮执行
		start := time.Now()
		u, err := o.executor.Execute(ctx, speaker)
		if err != nil {
			if ctx.Err() != nil {
				o.finish(ctx, events, StateFailed, types.ReasonFailed, "cancelled")
				return
			}
			if types.IsErrorCode(err, types.ErrGenerationFailure) {
				// 失败记为跳过的轮次：不消耗会话记录，同一轮次索引重新选择
				if o.observer != nil {
					o.observer.GenerationFailed(s.ID(), speaker.Name)
				}
				retries++
				if retries > cfg.GenerationRetryCeiling {
					o.logger.Error("generation retry ceiling exceeded",
						zap.String("speaker", speaker.Name),
						zap.Int("ceiling", cfg.GenerationRetryCeiling),
					)
					o.finish(ctx, events, StateFailed, types.ReasonFailed, string(types.ErrGenerationFailure))
					return
				}
				o.logger.Warn("turn skipped, retrying same turn index",
					zap.String("speaker", speaker.Name),
					zap.Int("attempt", retries),
				)
				continue
			}
			// 其余错误（如 INVALID_SEQUENCE）对会话致命
			o.logger.Error("fatal turn error", zap.Error(err))
			o.finish(ctx, events, StateFailed, types.ReasonFailed, string(errCode(err)))
			return
		}

		// 4. 成功：计数、按去重策略发布
		retries = 0
		s.incrementTurns()
		if o.observer != nil {
			o.observer.TurnCompleted(s.ID(), speaker.Name, time.Since(start))
		}

		if o.shouldEmit(u, prevSpeaker) {
			select {
			case events <- Event{
				Type: EventTurn,
				Turn: &types.TurnEvent{
					Speaker:   u.Speaker,
					Content:   u.Content,
					Seq:       u.Seq,
					Timestamp: u.Timestamp,
				},
			}:
			case <-ctx.Done():
				o.finish(ctx, events, StateFailed, types.ReasonFailed, "cancelled")
				return
			}
		} else {
			o.logger.Debug("turn suppressed from stream",
				zap.String("speaker", u.Speaker),
				zap.Int("seq", u.Seq),
			)
		}
		prevSpeaker = u.Speaker
	}
}

// shouldEmit 应用发布端去重策略。被抑制的发言保留在会话记录里：
// 下游只看到过滤后的流，权威记录保持完整。
//   - 与上一条记录同发言人的连续发言不发布
//   - 内容以开场话题结尾（生成器回声）的发言不发布
func (o *Orchestrator) shouldEmit(u types.Utterance, prevSpeaker string) bool {
	if u.Speaker == prevSpeaker {
		return false
	}
	if topic := o.session.Topic(); topic != "" && strings.HasSuffix(u.Content, topic) {
		return false
	}
	return true
}

// roundRobin 是 unconstrained 的兜底：在上一轮之外的嘉宾中选择最久未发言者，
// 名称字典序打破平局。没有可选嘉宾时返回 nil（NO_ELIGIBLE_SPEAKER）。
func (o *Orchestrator) roundRobin(snapshot []types.Utterance) *types.Speaker {
	lastSpeaker := ""
	if len(snapshot) > 0 {
		lastSpeaker = snapshot[len(snapshot)-1].Speaker
	}

	lastSpoke := make(map[string]int)
	for _, u := range snapshot {
		lastSpoke[u.Speaker] = u.Seq
	}

	candidates := make([]*types.Speaker, 0)
	for _, p := range o.session.Roster().Participants() {
		if p.Name == lastSpeaker {
			continue
		}
		candidates = append(candidates, p)
	}
	if len(candidates) == 0 {
		return nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		si, iOK := lastSpoke[candidates[i].Name]
		sj, jOK := lastSpoke[candidates[j].Name]
		if iOK != jOK {
			return !iOK // 从未发言者优先
		}
		if si != sj {
			return si < sj
		}
		return candidates[i].Name < candidates[j].Name
	})
	return candidates[0]
}

// finish 置终态并发布唯一一条终止事件。
// 即使消费者已放弃（ctx 取消），也尽力交付终止事件后再关闭流。
func (o *Orchestrator) finish(ctx context.Context, events chan<- Event, state State, reason types.TerminationReason, detail string) {
	s := o.session
	s.setState(state)

	if o.observer != nil {
		o.observer.SessionEnded(s.ID(), reason, s.Turns())
	}

	o.logger.Info("session ended",
		zap.String("state", string(state)),
		zap.String("reason", string(reason)),
		zap.Int("turns", s.Turns()),
	)

	term := Event{
		Type: EventTermination,
		Termination: &types.TerminationEvent{
			Reason:         reason,
			FinalTurnCount: s.Turns(),
			Detail:         detail,
		},
	}

	select {
	case events <- term:
	case <-ctx.Done():
		// 消费者已离开：非阻塞尝试后放弃，流仍以关闭结束
		select {
		case events <- term:
		default:
		}
	}
}

func errCode(err error) types.ErrorCode {
	if e := types.AsError(err); e != nil {
		return e.Code
	}
	return types.ErrInternalError
}
