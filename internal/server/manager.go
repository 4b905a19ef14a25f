// Package server 管理进程内 HTTP 监听器的生命周期。
// 一个 Manager 对应一个监听端口；API 服务与 metrics 服务各持一个，
// 用 Config.Name 区分日志来源。
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/BaSui01/paneltalk/internal/tlsutil"
	"go.uber.org/zap"
)

// Config 单个监听器的配置。
type Config struct {
	// Name 标识这个监听器（api、metrics），进日志字段
	Name string `yaml:"name" json:"name"`

	Addr string `yaml:"addr" json:"addr"`

	ReadTimeout time.Duration `yaml:"read_timeout" json:"read_timeout"`

	// WriteTimeout 为 0 表示不限制，SSE 长连接需要
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`

	IdleTimeout time.Duration `yaml:"idle_timeout" json:"idle_timeout"`

	MaxHeaderBytes int `yaml:"max_header_bytes" json:"max_header_bytes"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// DefaultConfig 返回对话 API 服务的默认监听配置。
func DefaultConfig() Config {
	return Config{
		Name:            "api",
		Addr:            ":8080",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     120 * time.Second,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: 30 * time.Second,
	}
}

// Manager 持有一个 http.Server 及其监听器。
// Start / StartTLS 非阻塞；异步错误从 Errors() 流出。
type Manager struct {
	mu     sync.RWMutex
	cfg    Config
	srv    *http.Server
	ln     net.Listener
	errCh  chan error
	logger *zap.Logger
	closed bool
}

// NewManager 创建监听器管理器。Name 为空时按 api 处理。
func NewManager(handler http.Handler, cfg Config, logger *zap.Logger) *Manager {
	if cfg.Name == "" {
		cfg.Name = "api"
	}
	return &Manager{
		cfg: cfg,
		srv: &http.Server{
			Addr:           cfg.Addr,
			Handler:        handler,
			ReadTimeout:    cfg.ReadTimeout,
			WriteTimeout:   cfg.WriteTimeout,
			IdleTimeout:    cfg.IdleTimeout,
			MaxHeaderBytes: cfg.MaxHeaderBytes,
		},
		errCh:  make(chan error, 1),
		logger: logger.With(zap.String("server", cfg.Name)),
	}
}

// Start 启动明文 HTTP 监听。
func (m *Manager) Start() error {
	return m.start("http", func(ln net.Listener) error {
		return m.srv.Serve(ln)
	})
}

// StartTLS 启动 HTTPS 监听，TLS 参数走 tlsutil 基线。
func (m *Manager) StartTLS(certFile, keyFile string) error {
	m.srv.TLSConfig = tlsutil.ServerConfig()
	return m.start("https", func(ln net.Listener) error {
		return m.srv.ServeTLS(ln, certFile, keyFile)
	})
}

// start 绑定端口后把 serve 丢进后台 goroutine。
// 非 ErrServerClosed 的退出错误进 errCh，容量 1，满了丢弃。
func (m *Manager) start(scheme string, serve func(net.Listener) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("server %s is closed", m.cfg.Name)
	}
	if m.ln != nil {
		return fmt.Errorf("server %s already started", m.cfg.Name)
	}

	ln, err := net.Listen("tcp", m.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", m.cfg.Addr, err)
	}
	m.ln = ln

	m.logger.Info("server listening",
		zap.String("scheme", scheme),
		zap.String("addr", ln.Addr().String()))

	go func() {
		if err := serve(ln); err != nil && err != http.ErrServerClosed {
			m.logger.Error("server exited", zap.Error(err))
			select {
			case m.errCh <- err:
			default:
			}
		}
	}()
	return nil
}

// Shutdown 优雅关闭，等在途请求完成，上限 ShutdownTimeout。幂等。
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	m.logger.Info("server shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, m.cfg.ShutdownTimeout)
	defer cancel()

	if err := m.srv.Shutdown(shutdownCtx); err != nil {
		m.logger.Error("server shutdown failed", zap.Error(err))
		return err
	}
	m.ln = nil
	m.logger.Info("server stopped")
	return nil
}

// WaitForShutdown 阻塞到收到 SIGINT/SIGTERM 或服务异常退出，然后关闭。
func (m *Manager) WaitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		m.logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case err := <-m.errCh:
		if err != nil {
			m.logger.Error("server exited unexpectedly", zap.Error(err))
		}
	}

	if err := m.Shutdown(context.Background()); err != nil {
		m.logger.Error("shutdown error", zap.Error(err))
	}
}

// Errors 返回异步退出错误。
func (m *Manager) Errors() <-chan error {
	return m.errCh
}

// Addr 返回实际监听地址。已绑定时返回内核分配的地址
// （Addr 配 ":0" 时有用），未绑定时返回配置值。
func (m *Manager) Addr() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ln != nil {
		return m.ln.Addr().String()
	}
	return m.cfg.Addr
}

// IsRunning 报告监听器是否尚未关闭。
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return !m.closed
}
