package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/paneltalk/dialogue"
	"github.com/BaSui01/paneltalk/types"
)

// GeneratorFactory 为一场讨论构造生成器。speakers 是该场的完整名册。
type GeneratorFactory func(speakers []*types.Speaker) dialogue.Generator

// Config 是会话管理器配置。
type Config struct {
	// Dialogue 是新会话的默认编排配置。
	Dialogue dialogue.Config `yaml:"dialogue" json:"dialogue"`
	// MaxConcurrent 限制同时运行的会话数，0 表示不限。
	MaxConcurrent int `yaml:"max_concurrent" json:"max_concurrent"`
	// EndedRetention 限制注册表保留的已结束会话数，0 表示不限。
	// 超限时最早结束的会话先出，其转写不再可查。
	EndedRetention int `yaml:"ended_retention" json:"ended_retention"`
	// ShutdownTimeout 是优雅关闭时等待会话收尾的上限。
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// DefaultConfig 返回默认管理器配置。
func DefaultConfig() Config {
	return Config{
		Dialogue:        dialogue.DefaultConfig(),
		MaxConcurrent:   32,
		EndedRetention:  64,
		ShutdownTimeout: 30 * time.Second,
	}
}

// entry 是注册表里的一个会话。
type entry struct {
	session *dialogue.Session
	cancel  context.CancelFunc
	done    chan struct{}
	started time.Time
}

// Manager 是会话注册表与生命周期控制器。
type Manager struct {
	cfg      Config
	factory  GeneratorFactory
	observer dialogue.Observer
	logger   *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*entry
	closed   bool
}

// Option 配置管理器可选项。
type Option func(*Manager)

// WithObserver 为所有会话挂接旁路观察者。
func WithObserver(obs dialogue.Observer) Option {
	return func(m *Manager) { m.observer = obs }
}

// NewManager 创建会话管理器。
func NewManager(cfg Config, factory GeneratorFactory, logger *zap.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		cfg:      cfg,
		factory:  factory,
		logger:   logger.With(zap.String("component", "session_manager")),
		sessions: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// StartRequest 是发起一场讨论的参数。
type StartRequest struct {
	Topic    string
	Speakers []*types.Speaker
	// Overrides 覆盖默认编排配置的个别字段，零值字段不生效。
	MaxTurns           int
	ModeratorCadence   int
	TerminationMarkers []string
}

// Start 创建并启动会话，返回会话与其事件流。
// 事件流在终止事件后关闭；ctx 取消会终止该会话。
func (m *Manager) Start(ctx context.Context, req StartRequest) (*dialogue.Session, <-chan dialogue.Event, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, nil, types.NewError(types.ErrSessionClosed, "manager is shutting down")
	}
	if m.cfg.MaxConcurrent > 0 && m.activeLocked() >= m.cfg.MaxConcurrent {
		m.mu.Unlock()
		return nil, nil, types.NewError(types.ErrRateLimited,
			fmt.Sprintf("too many concurrent sessions (limit %d)", m.cfg.MaxConcurrent)).
			WithHTTPStatus(429).WithRetryable(true)
	}
	m.mu.Unlock()

	cfg := m.cfg.Dialogue
	if req.MaxTurns > 0 {
		cfg.MaxTurns = req.MaxTurns
	}
	if req.ModeratorCadence > 0 {
		cfg.ModeratorCadence = req.ModeratorCadence
	}
	if len(req.TerminationMarkers) > 0 {
		cfg.TerminationMarkers = req.TerminationMarkers
	}

	id := uuid.NewString()
	s, err := dialogue.NewSession(id, req.Topic, req.Speakers, cfg)
	if err != nil {
		return nil, nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	var opts []dialogue.Option
	if m.observer != nil {
		opts = append(opts, dialogue.WithObserver(m.observer))
	}
	orch := dialogue.NewOrchestrator(s, m.factory(req.Speakers), m.logger, opts...)

	e := &entry{session: s, cancel: cancel, done: make(chan struct{}), started: time.Now()}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		cancel()
		return nil, nil, types.NewError(types.ErrSessionClosed, "manager is shutting down")
	}
	m.sessions[id] = e
	m.evictEndedLocked()
	m.mu.Unlock()

	m.logger.Info("session registered",
		zap.String("session_id", id),
		zap.String("topic", req.Topic),
		zap.Int("speakers", len(req.Speakers)),
	)

	// 转发事件流，流关闭即会话结束
	src := orch.Run(runCtx)
	out := make(chan dialogue.Event)
	go func() {
		defer close(out)
		defer close(e.done)
		defer cancel()
		for ev := range src {
			select {
			case out <- ev:
				continue
			case <-runCtx.Done():
			}
			// 取消后尽力交付当前事件，然后排空源让编排循环收尾
			select {
			case out <- ev:
			default:
			}
			for range src {
			}
			return
		}
	}()

	return s, out, nil
}

// Get 按 ID 取会话。不存在时返回 NOT_FOUND。
func (m *Manager) Get(id string) (*dialogue.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.sessions[id]
	if !ok {
		return nil, types.NewError(types.ErrNotFound,
			fmt.Sprintf("session %q not found", id)).WithHTTPStatus(404)
	}
	return e.session, nil
}

// List 返回全部会话，按启动时间排序。
func (m *Manager) List() []*dialogue.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := make([]*entry, 0, len(m.sessions))
	for _, e := range m.sessions {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].started.Before(entries[j].started) })

	out := make([]*dialogue.Session, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.session)
	}
	return out
}

// Cancel 取消一个运行中的会话。已终止的会话返回 SESSION_CLOSED。
func (m *Manager) Cancel(id string) error {
	m.mu.RLock()
	e, ok := m.sessions[id]
	m.mu.RUnlock()

	if !ok {
		return types.NewError(types.ErrNotFound,
			fmt.Sprintf("session %q not found", id)).WithHTTPStatus(404)
	}
	if e.session.State().Terminal() {
		return types.NewError(types.ErrSessionClosed,
			fmt.Sprintf("session %q already ended", id)).WithHTTPStatus(409)
	}

	e.cancel()
	m.logger.Info("session cancelled", zap.String("session_id", id))
	return nil
}

// Active 返回运行中的会话数。
func (m *Manager) Active() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeLocked()
}

// activeLocked 须在持锁状态下调用。
func (m *Manager) activeLocked() int {
	n := 0
	for _, e := range m.sessions {
		select {
		case <-e.done:
		default:
			n++
		}
	}
	return n
}

// evictEndedLocked 把已结束的会话数压回 EndedRetention 以内，
// 最早启动的先出。运行中的会话永远不动。须在持锁状态下调用。
func (m *Manager) evictEndedLocked() {
	if m.cfg.EndedRetention <= 0 {
		return
	}

	type ended struct {
		id      string
		started time.Time
	}
	var done []ended
	for id, e := range m.sessions {
		select {
		case <-e.done:
			done = append(done, ended{id: id, started: e.started})
		default:
		}
	}
	excess := len(done) - m.cfg.EndedRetention
	if excess <= 0 {
		return
	}

	sort.Slice(done, func(i, j int) bool { return done[i].started.Before(done[j].started) })
	for _, d := range done[:excess] {
		delete(m.sessions, d.id)
		m.logger.Debug("ended session evicted from registry",
			zap.String("session_id", d.id))
	}
}

// Shutdown 取消所有会话并等待编排循环收尾。
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	entries := make([]*entry, 0, len(m.sessions))
	for _, e := range m.sessions {
		entries = append(entries, e)
	}
	m.mu.Unlock()

	m.logger.Info("shutting down session manager", zap.Int("sessions", len(entries)))

	waitCtx, cancel := context.WithTimeout(ctx, m.cfg.ShutdownTimeout)
	defer cancel()

	g, waitCtx := errgroup.WithContext(waitCtx)
	for _, e := range entries {
		e.cancel()
		g.Go(func() error {
			select {
			case <-e.done:
				return nil
			case <-waitCtx.Done():
				return waitCtx.Err()
			}
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("session manager shutdown: %w", err)
	}

	m.logger.Info("session manager stopped")
	return nil
}
