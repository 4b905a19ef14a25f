package handlers

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/paneltalk/persona"
)

// readyCheckTimeout 限制一次就绪检查的总耗时。
const readyCheckTimeout = 5 * time.Second

// HealthCheck 是一项就绪依赖的探测。
type HealthCheck interface {
	Name() string
	Check(ctx context.Context) error
}

// HealthStatus 是健康端点的响应体。
type HealthStatus struct {
	// Status 取 healthy 或 unhealthy
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Uptime    string                 `json:"uptime,omitempty"`
	Version   string                 `json:"version,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult 是单项检查的结果。
type CheckResult struct {
	// Status 取 pass 或 fail
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// HealthHandler 提供存活、就绪与版本端点。
// 存活端点无条件 200；就绪端点逐项跑注册的检查。
type HealthHandler struct {
	mu      sync.RWMutex
	logger  *zap.Logger
	checks  []HealthCheck
	started time.Time
}

// NewHealthHandler 创建健康检查处理器。
func NewHealthHandler(logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		logger:  logger,
		started: time.Now(),
	}
}

// RegisterCheck 注册一项就绪检查。
func (h *HealthHandler) RegisterCheck(check HealthCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, check)
}

// HandleHealth 处理 /health：进程存活即 200，附运行时长。
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Uptime:    time.Since(h.started).Round(time.Second).String(),
	})
}

// HandleHealthz 处理 /healthz，Kubernetes liveness 探针用。
func (h *HealthHandler) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
	})
}

// HandleReady 处理 /ready 与 /readyz：全部检查通过才 200，
// 任一失败则 503 并附逐项结果。
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyCheckTimeout)
	defer cancel()

	h.mu.RLock()
	checks := make([]HealthCheck, len(h.checks))
	copy(checks, h.checks)
	h.mu.RUnlock()

	status := HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Checks:    make(map[string]CheckResult, len(checks)),
	}

	code := http.StatusOK
	for _, check := range checks {
		start := time.Now()
		err := check.Check(ctx)
		latency := time.Since(start)

		result := CheckResult{Status: "pass", Latency: latency.String()}
		if err != nil {
			result.Status = "fail"
			result.Message = err.Error()
			status.Status = "unhealthy"
			code = http.StatusServiceUnavailable

			h.logger.Warn("readiness check failed",
				zap.String("check", check.Name()),
				zap.Error(err),
				zap.Duration("latency", latency),
			)
		}
		status.Checks[check.Name()] = result
	}

	WriteJSON(w, code, status)
}

// HandleVersion 返回 /version 的处理函数，编译期信息由 cmd 注入。
func (h *HealthHandler) HandleVersion(version, buildTime, gitCommit string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteSuccess(w, map[string]string{
			"version":    version,
			"build_time": buildTime,
			"git_commit": gitCommit,
		})
	}
}

// PersonaStoreHealthCheck 用一次 List 验证档案库后端可用。
type PersonaStoreHealthCheck struct {
	store persona.Store
}

// NewPersonaStoreHealthCheck 创建档案库健康检查。
func NewPersonaStoreHealthCheck(store persona.Store) *PersonaStoreHealthCheck {
	return &PersonaStoreHealthCheck{store: store}
}

func (c *PersonaStoreHealthCheck) Name() string {
	return "persona_store"
}

func (c *PersonaStoreHealthCheck) Check(ctx context.Context) error {
	_, err := c.store.List(ctx)
	return err
}

// activeCounter 报告当前活跃会话数，由会话管理器实现。
type activeCounter interface {
	Active() int
}

// SessionCapacityHealthCheck 在活跃会话打满并发上限时报不就绪，
// 让负载均衡把新会话引去别的实例。
type SessionCapacityHealthCheck struct {
	sessions activeCounter
	limit    int
}

// NewSessionCapacityHealthCheck 创建会话容量检查。limit <= 0 时恒通过。
func NewSessionCapacityHealthCheck(sessions activeCounter, limit int) *SessionCapacityHealthCheck {
	return &SessionCapacityHealthCheck{sessions: sessions, limit: limit}
}

func (c *SessionCapacityHealthCheck) Name() string {
	return "session_capacity"
}

func (c *SessionCapacityHealthCheck) Check(ctx context.Context) error {
	if c.limit <= 0 {
		return nil
	}
	if active := c.sessions.Active(); active >= c.limit {
		return fmt.Errorf("session capacity exhausted: %d/%d active", active, c.limit)
	}
	return nil
}
