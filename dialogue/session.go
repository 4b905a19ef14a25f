package dialogue

import (
	"sync"
	"time"

	"github.com/BaSui01/paneltalk/types"
)

// State 是会话状态机的状态。终态不可逆。
type State string

const (
	StateIdle            State = "idle"
	StateRunning         State = "running"
	StateCompleted       State = "completed"
	StateFailed          State = "failed"
	StateBudgetExhausted State = "budget_exhausted"
)

// Terminal 判断状态是否为终态。
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateBudgetExhausted:
		return true
	}
	return false
}

// Config 是单个会话的编排配置。
type Config struct {
	// MaxTurns 是成功轮次的预算上限。
	MaxTurns int `yaml:"max_turns" json:"max_turns"`
	// ModeratorCadence 是主持人重新主导讨论的节奏阈值。
	ModeratorCadence int `yaml:"moderator_cadence" json:"moderator_cadence"`
	// TerminationMarkers 是结束会话的标记子串集合（大小写不敏感）。
	TerminationMarkers []string `yaml:"termination_markers" json:"termination_markers"`
	// PerTurnTimeout 是单轮生成的超时上限。
	PerTurnTimeout time.Duration `yaml:"per_turn_timeout" json:"per_turn_timeout"`
	// GenerationRetryCeiling 是同一轮次内生成失败的最大重试次数。
	GenerationRetryCeiling int `yaml:"generation_retry_ceiling" json:"generation_retry_ceiling"`
}

// DefaultConfig 返回默认编排配置。
func DefaultConfig() Config {
	return Config{
		MaxTurns:               12,
		ModeratorCadence:       DefaultModeratorCadence,
		TerminationMarkers:     []string{"TERMINATE"},
		PerTurnTimeout:         30 * time.Second,
		GenerationRetryCeiling: 2,
	}
}

// Session 是一次会话：恰好持有一份会话记录、一份名册、轮次计数与状态。
// 会话在其生命周期内由编排器独占，外部只读。终态后记录仍可供事后检查。
type Session struct {
	id     string
	topic  string
	roster *Roster
	cfg    Config

	transcript *Transcript

	mu    sync.RWMutex
	state State
	turns int
}

// NewSession 以话题和名册创建会话。名册校验失败在这里拒绝，绝不进入运行期。
func NewSession(id, topic string, speakers []*types.Speaker, cfg Config) (*Session, error) {
	roster, err := NewRoster(speakers)
	if err != nil {
		return nil, err
	}
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = DefaultConfig().MaxTurns
	}

	return &Session{
		id:         id,
		topic:      topic,
		roster:     roster,
		cfg:        cfg,
		transcript: NewTranscript(topic, roster),
		state:      StateIdle,
	}, nil
}

// ID 返回会话标识。
func (s *Session) ID() string { return s.id }

// Topic 返回会话话题。
func (s *Session) Topic() string { return s.topic }

// Roster 返回会话名册。
func (s *Session) Roster() *Roster { return s.roster }

// Transcript 返回会话记录（追加式，终态后仍可读）。
func (s *Session) Transcript() *Transcript { return s.transcript }

// Config 返回会话配置。
func (s *Session) Config() Config { return s.cfg }

// State 返回当前状态。
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Turns 返回已完成的成功轮次数。
func (s *Session) Turns() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.turns
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

func (s *Session) incrementTurns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns++
	return s.turns
}
