package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/paneltalk/api/handlers"
	"github.com/BaSui01/paneltalk/config"
	"github.com/BaSui01/paneltalk/dialogue"
	"github.com/BaSui01/paneltalk/generator"
	"github.com/BaSui01/paneltalk/internal/metrics"
	"github.com/BaSui01/paneltalk/internal/server"
	"github.com/BaSui01/paneltalk/internal/telemetry"
	"github.com/BaSui01/paneltalk/persona"
	"github.com/BaSui01/paneltalk/session"
	"github.com/BaSui01/paneltalk/types"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 PanelTalk 的主服务器
type Server struct {
	cfg        *config.Config
	configPath string
	logger     *zap.Logger

	// 服务器管理器
	httpManager    *server.Manager
	metricsManager *server.Manager

	// 核心组件
	personaStore   persona.Store
	sessionManager *session.Manager

	// Handlers
	healthHandler     *handlers.HealthHandler
	discussionHandler *handlers.DiscussionHandler
	speakerHandler    *handlers.SpeakerHandler

	// 指标收集器
	metricsCollector *metrics.Collector

	// 热更新管理器
	hotReloadManager *config.HotReloadManager
	configAPIHandler *config.ConfigAPIHandler

	// OTel Provider 生命周期
	otelProviders *telemetry.Providers

	// 后台 goroutine 生命周期管理
	backgroundCtx    context.Context
	backgroundCancel context.CancelFunc

	wg sync.WaitGroup
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, configPath string, logger *zap.Logger, otelProviders *telemetry.Providers) *Server {
	return &Server{
		cfg:           cfg,
		configPath:    configPath,
		logger:        logger,
		otelProviders: otelProviders,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 启动所有服务
func (s *Server) Start() error {
	s.backgroundCtx, s.backgroundCancel = context.WithCancel(context.Background())

	// 1. 初始化指标收集器
	s.metricsCollector = metrics.NewCollector("paneltalk", s.logger)

	// 2. 初始化核心组件与 Handlers
	if err := s.initComponents(); err != nil {
		return fmt.Errorf("failed to init components: %w", err)
	}

	// 3. 初始化热更新管理器
	if err := s.initHotReloadManager(); err != nil {
		return fmt.Errorf("failed to init hot reload manager: %w", err)
	}

	// 4. 启动 HTTP 服务器
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	// 5. 启动 Metrics 服务器
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	// 6. 启动后台指标采样
	s.startSamplers()

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.Bool("hot_reload_enabled", s.configPath != ""),
		zap.Bool("offline_generator", s.cfg.LLM.Offline),
	)

	return nil
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

// initComponents 初始化档案库、会话管理器和所有 handlers
func (s *Server) initComponents() error {
	// 档案库
	store, err := openPersonaStore(s.cfg.Persona, s.logger)
	if err != nil {
		return fmt.Errorf("open persona store: %w", err)
	}
	s.personaStore = store

	if s.cfg.Persona.SeedDefaults {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := persona.Seed(ctx, store); err != nil {
			return fmt.Errorf("seed persona store: %w", err)
		}
	}

	// 会话管理器
	mgrCfg := session.DefaultConfig()
	mgrCfg.Dialogue.MaxTurns = s.cfg.Dialogue.MaxTurns
	mgrCfg.Dialogue.ModeratorCadence = s.cfg.Dialogue.ModeratorCadence
	mgrCfg.Dialogue.TerminationMarkers = s.cfg.Dialogue.TerminationMarkers
	if s.cfg.Dialogue.PerTurnTimeout > 0 {
		mgrCfg.Dialogue.PerTurnTimeout = s.cfg.Dialogue.PerTurnTimeout
	}
	mgrCfg.Dialogue.GenerationRetryCeiling = s.cfg.Dialogue.GenerationRetryCeiling
	mgrCfg.MaxConcurrent = s.cfg.Dialogue.MaxConcurrentSessions
	if s.cfg.Dialogue.SessionShutdownTimeout > 0 {
		mgrCfg.ShutdownTimeout = s.cfg.Dialogue.SessionShutdownTimeout
	}

	factory := buildGeneratorFactory(s.cfg.LLM, s.logger)
	s.sessionManager = session.NewManager(mgrCfg, factory, s.logger,
		session.WithObserver(s.metricsCollector))

	// 健康检查 handler
	s.healthHandler = handlers.NewHealthHandler(s.logger)
	s.healthHandler.RegisterCheck(handlers.NewPersonaStoreHealthCheck(store))
	s.healthHandler.RegisterCheck(handlers.NewSessionCapacityHealthCheck(
		s.sessionManager, s.cfg.Dialogue.MaxConcurrentSessions))

	// 业务 handlers
	s.discussionHandler = handlers.NewDiscussionHandler(s.sessionManager, store, s.logger)
	s.speakerHandler = handlers.NewSpeakerHandler(store, s.logger)

	s.logger.Info("Handlers initialized",
		zap.String("persona_backend", s.cfg.Persona.Backend))
	return nil
}

// openPersonaStore 按配置打开档案库后端
func openPersonaStore(cfg config.PersonaConfig, logger *zap.Logger) (persona.Store, error) {
	switch cfg.Backend {
	case "sqlite":
		return persona.OpenSQLite(cfg.Path, logger)
	case "file", "":
		return persona.NewFileStore(cfg.Path, logger)
	default:
		return nil, fmt.Errorf("unsupported persona backend: %s (supported: file, sqlite)", cfg.Backend)
	}
}

// buildGeneratorFactory 按 LLM 配置构造生成器工厂。
// 离线模式使用模板生成器，其余走 OpenAI 兼容接口。
func buildGeneratorFactory(cfg config.LLMConfig, logger *zap.Logger) session.GeneratorFactory {
	if cfg.Offline {
		return func(speakers []*types.Speaker) dialogue.Generator {
			return generator.NewStatic(0)
		}
	}

	genCfg := generator.Config{
		BaseURL:       cfg.BaseURL,
		APIKey:        cfg.APIKey,
		Model:         cfg.Model,
		Temperature:   cfg.Temperature,
		MaxTokens:     cfg.MaxTokens,
		Timeout:       cfg.Timeout,
		ContextBudget: cfg.ContextBudget,
	}
	return func(speakers []*types.Speaker) dialogue.Generator {
		return generator.NewClient(genCfg, speakers, logger)
	}
}

// initHotReloadManager 初始化热更新管理器
func (s *Server) initHotReloadManager() error {
	opts := []config.HotReloadOption{
		config.WithHotReloadLogger(s.logger),
	}

	if s.configPath != "" {
		opts = append(opts, config.WithConfigPath(s.configPath))
	}

	s.hotReloadManager = config.NewHotReloadManager(s.cfg, opts...)

	// 注册配置变更回调
	s.hotReloadManager.OnChange(func(change config.ConfigChange) {
		s.logger.Info("Configuration changed",
			zap.String("path", change.Path),
			zap.String("source", change.Source),
			zap.Bool("requires_restart", change.RequiresRestart),
		)
	})

	// 注册配置重载回调
	s.hotReloadManager.OnReload(func(oldConfig, newConfig *config.Config) {
		s.logger.Info("Configuration reloaded")
		s.cfg = newConfig
	})

	// 启动热更新管理器
	ctx := context.Background()
	if err := s.hotReloadManager.Start(ctx); err != nil {
		return fmt.Errorf("failed to start hot reload manager: %w", err)
	}

	// 创建配置 API 处理器
	s.configAPIHandler = config.NewConfigAPIHandler(s.hotReloadManager)

	return nil
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// startHTTPServer 启动 HTTP 服务器
func (s *Server) startHTTPServer() error {
	mux := http.NewServeMux()

	// ========================================
	// 健康检查端点
	// ========================================
	mux.HandleFunc("/health", s.healthHandler.HandleHealth)
	mux.HandleFunc("/healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("/ready", s.healthHandler.HandleReady)
	mux.HandleFunc("/readyz", s.healthHandler.HandleReady)

	// 版本信息端点
	mux.HandleFunc("/version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	// ========================================
	// 讨论 API
	// ========================================
	mux.HandleFunc("POST /v1/discussions", s.discussionHandler.HandleStart)
	mux.HandleFunc("POST /v1/discussions/stream", s.discussionHandler.HandleStream)
	mux.HandleFunc("GET /v1/discussions/ws", s.discussionHandler.HandleWebSocket)
	mux.HandleFunc("GET /v1/discussions", s.discussionHandler.HandleList)
	mux.HandleFunc("GET /v1/discussions/{id}", s.discussionHandler.HandleGet)
	mux.HandleFunc("GET /v1/discussions/{id}/transcript", s.discussionHandler.HandleTranscript)
	mux.HandleFunc("DELETE /v1/discussions/{id}", s.discussionHandler.HandleCancel)

	// ========================================
	// 发言人档案 API
	// ========================================
	mux.HandleFunc("GET /v1/speakers", s.speakerHandler.HandleList)
	mux.HandleFunc("GET /v1/speakers/{name}", s.speakerHandler.HandleGet)
	mux.HandleFunc("PUT /v1/speakers/{name}", s.speakerHandler.HandlePut)
	mux.HandleFunc("DELETE /v1/speakers/{name}", s.speakerHandler.HandleDelete)

	// ========================================
	// 配置管理 API（需要独立认证保护）
	// 配置 API 是敏感的管理端点，必须经过认证中间件保护，
	// 不依赖全局中间件链的顺序，而是显式包装认证检查。
	// ========================================
	if s.configAPIHandler != nil {
		configAuth := config.NewConfigAPIMiddleware(s.configAPIHandler, s.getFirstAPIKey())
		mux.HandleFunc("/v1/config", configAuth.RequireAuth(s.configAPIHandler.HandleConfig))
		mux.HandleFunc("/v1/config/reload", configAuth.RequireAuth(s.configAPIHandler.HandleReload))
		mux.HandleFunc("/v1/config/fields", configAuth.RequireAuth(s.configAPIHandler.HandleFields))
		mux.HandleFunc("/v1/config/changes", configAuth.RequireAuth(s.configAPIHandler.HandleChanges))
		s.logger.Info("Configuration API registered with authentication")
	}

	// ========================================
	// 构建中间件链
	// ========================================
	skipAuthPaths := []string{"/health", "/healthz", "/ready", "/readyz", "/version", "/metrics"}
	middlewares := []Middleware{
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.metricsCollector),
		CORS(s.cfg.Server.AllowedOrigins),
		RateLimiter(s.backgroundCtx, float64(s.cfg.Server.RateLimitRPS), s.cfg.Server.RateLimitBurst, s.logger),
		APIKeyAuth(s.cfg.Server.APIKeys, skipAuthPaths, s.logger),
	}
	if s.cfg.Telemetry.Enabled {
		middlewares = append(middlewares, OTelTracing())
	}
	handler := Chain(mux, middlewares...)

	// ========================================
	// 使用 internal/server.Manager
	// ========================================
	serverConfig := server.Config{
		Name:            "api",
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout, // SSE 长连接需要 0 或足够大
		IdleTimeout:     s.cfg.Server.IdleTimeout,
		MaxHeaderBytes:  1 << 20, // 1 MB
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.httpManager = server.NewManager(handler, serverConfig, s.logger)

	// 启动服务器（非阻塞）
	if err := s.httpManager.Start(); err != nil {
		return err
	}

	s.logger.Info("HTTP server started", zap.Int("port", s.cfg.Server.HTTPPort))
	return nil
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

// startMetricsServer 启动 Metrics 服务器
func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serverConfig := server.Config{
		Name:            "metrics",
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.metricsManager = server.NewManager(mux, serverConfig, s.logger)

	// 启动服务器（非阻塞）
	if err := s.metricsManager.Start(); err != nil {
		return err
	}

	s.logger.Info("Metrics server started", zap.Int("port", s.cfg.Server.MetricsPort))
	return nil
}

// startSamplers 启动活跃会话数与存储连接池的周期采样
func (s *Server) startSamplers() {
	gormStore, hasStats := s.personaStore.(*persona.GormStore)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-s.backgroundCtx.Done():
				return
			case <-ticker.C:
				s.metricsCollector.SetActiveSessions(s.sessionManager.Active())
				if hasStats {
					open, idle := gormStore.Stats()
					s.metricsCollector.RecordStoreConnections("sqlite", open, idle)
				}
			}
		}
	}()
}

// getFirstAPIKey 返回配置中的第一个 API Key，用于配置 API 的独立认证。
// 如果未配置任何 API Key，返回空字符串（ConfigAPIMiddleware 会跳过认证检查）。
func (s *Server) getFirstAPIKey() string {
	if len(s.cfg.Server.APIKeys) > 0 {
		return s.cfg.Server.APIKeys[0]
	}
	return ""
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 等待关闭信号并优雅关闭
func (s *Server) WaitForShutdown() {
	// 使用 httpManager 的 WaitForShutdown（它会监听信号）
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}

	// 执行清理
	s.Shutdown()
}

// Shutdown 优雅关闭所有服务
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	ctx := context.Background()

	// 0. 停止后台采样与 rate limiter 清理 goroutine
	if s.backgroundCancel != nil {
		s.backgroundCancel()
	}

	// 1. 停止热更新管理器
	if s.hotReloadManager != nil {
		if err := s.hotReloadManager.Stop(); err != nil {
			s.logger.Error("Hot reload manager shutdown error", zap.Error(err))
		}
	}

	// 2. 关闭 HTTP 服务器（先停新请求，再等会话收尾）
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}

	// 3. 取消运行中的讨论并等待编排循环退出
	if s.sessionManager != nil {
		if err := s.sessionManager.Shutdown(ctx); err != nil {
			s.logger.Error("Session manager shutdown error", zap.Error(err))
		}
	}

	// 4. 关闭 Metrics 服务器
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}

	// 5. 关闭档案库
	if closer, ok := s.personaStore.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			s.logger.Error("Persona store close error", zap.Error(err))
		}
	}

	// 6. 关闭 OTel Provider
	if s.otelProviders != nil {
		if err := s.otelProviders.Shutdown(ctx); err != nil {
			s.logger.Error("Telemetry shutdown error", zap.Error(err))
		}
	}

	// 7. 等待所有 goroutine 完成
	s.wg.Wait()

	s.logger.Info("Graceful shutdown completed")
}
