// 配置热重载。
//
// HotReloadManager 持有进程当前生效的配置，支持三种变更来源：
// 配置文件变更（经 FileWatcher）、配置 API 的字段更新、显式 ApplyConfig。
// 变更先过验证钩子，应用后通知回调；回调拒绝（返回 panic）时
// 自动回退到上一份生效配置。只保留一份回退配置，不做多版本历史——
// 编排服务的配置面很小，需要追溯时看变更日志即可。
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// maxChangeLogEntries 限制内存中的变更日志长度。
const maxChangeLogEntries = 1000

// ChangeCallback 在单个字段变更后调用。
type ChangeCallback func(change ConfigChange)

// ReloadCallback 在整份配置替换后调用。
type ReloadCallback func(oldConfig, newConfig *Config)

// ValidateFunc 是应用前的验证钩子，返回 error 则整次变更被拒绝。
type ValidateFunc func(newConfig *Config) error

// ConfigChange 是变更日志里的一条记录。
type ConfigChange struct {
	Timestamp time.Time `json:"timestamp"`
	// Source 标记来源：file、api、rollback 或调用方自定义
	Source string `json:"source"`
	// Path 是字段路径，如 "Dialogue.MaxTurns"
	Path string `json:"path"`
	// 敏感字段的新旧值写入前已脱敏
	OldValue any `json:"old_value,omitempty"`
	NewValue any `json:"new_value,omitempty"`
	// RequiresRestart 表示该变更要到下次重启才生效
	RequiresRestart bool   `json:"requires_restart"`
	Applied         bool   `json:"applied"`
	Error           string `json:"error,omitempty"`
}

// HotReloadableField 描述一个允许在线修改的配置字段。
type HotReloadableField struct {
	Path        string
	Description string
	// RequiresRestart 为 true 的字段可以改，但只影响重启后的进程
	RequiresRestart bool
	// Sensitive 字段的值在日志与 API 响应中一律脱敏
	Sensitive bool
	// Validator 可选的单字段校验
	Validator func(value any) error
}

// hotReloadableFields 是配置 API 的白名单：不在表里的字段拒绝在线修改。
// 对话编排与 LLM 参数即改即用（只影响新会话）；监听端口、存储后端
// 这类进程级字段登记为需要重启。
var hotReloadableFields = map[string]HotReloadableField{
	"Log.Level": {
		Path:        "Log.Level",
		Description: "Log level (debug, info, warn, error)",
	},
	"Log.Format": {
		Path:        "Log.Format",
		Description: "Log format (json, console)",
	},

	"Dialogue.MaxTurns": {
		Path:        "Dialogue.MaxTurns",
		Description: "Turn budget for new sessions",
	},
	"Dialogue.ModeratorCadence": {
		Path:        "Dialogue.ModeratorCadence",
		Description: "Moderator cadence threshold",
	},
	"Dialogue.PerTurnTimeout": {
		Path:        "Dialogue.PerTurnTimeout",
		Description: "Per-turn generation timeout",
	},
	"Dialogue.GenerationRetryCeiling": {
		Path:        "Dialogue.GenerationRetryCeiling",
		Description: "Retry ceiling for failed generations",
	},
	"Dialogue.MaxConcurrentSessions": {
		Path:        "Dialogue.MaxConcurrentSessions",
		Description: "Concurrent session limit",
	},

	"LLM.Model": {
		Path:        "LLM.Model",
		Description: "Completion model name",
	},
	"LLM.Temperature": {
		Path:        "LLM.Temperature",
		Description: "LLM temperature parameter",
	},
	"LLM.MaxTokens": {
		Path:        "LLM.MaxTokens",
		Description: "Maximum tokens per reply",
	},
	"LLM.ContextBudget": {
		Path:        "LLM.ContextBudget",
		Description: "Transcript token budget",
	},
	"LLM.Timeout": {
		Path:        "LLM.Timeout",
		Description: "LLM request timeout",
	},

	"Telemetry.Enabled": {
		Path:        "Telemetry.Enabled",
		Description: "Enable telemetry",
	},
	"Telemetry.SampleRate": {
		Path:        "Telemetry.SampleRate",
		Description: "Telemetry sample rate",
	},

	"Server.HTTPPort": {
		Path:            "Server.HTTPPort",
		Description:     "HTTP server port",
		RequiresRestart: true,
	},
	"Server.MetricsPort": {
		Path:            "Server.MetricsPort",
		Description:     "Metrics server port",
		RequiresRestart: true,
	},
	"Server.ReadTimeout": {
		Path:            "Server.ReadTimeout",
		Description:     "HTTP read timeout",
		RequiresRestart: true,
	},
	"Server.WriteTimeout": {
		Path:            "Server.WriteTimeout",
		Description:     "HTTP write timeout",
		RequiresRestart: true,
	},

	"Persona.Backend": {
		Path:            "Persona.Backend",
		Description:     "Persona store backend (file, sqlite)",
		RequiresRestart: true,
	},
	"Persona.Path": {
		Path:            "Persona.Path",
		Description:     "Persona store path",
		RequiresRestart: true,
	},

	"LLM.APIKey": {
		Path:            "LLM.APIKey",
		Description:     "LLM API key",
		RequiresRestart: true,
		Sensitive:       true,
	},
	"LLM.BaseURL": {
		Path:            "LLM.BaseURL",
		Description:     "LLM base URL",
		RequiresRestart: true,
	},
}

// GetHotReloadableFields 返回白名单副本。
func GetHotReloadableFields() map[string]HotReloadableField {
	out := make(map[string]HotReloadableField, len(hotReloadableFields))
	for k, v := range hotReloadableFields {
		out[k] = v
	}
	return out
}

// IsHotReloadable 判断字段能否即改即用。
func IsHotReloadable(path string) bool {
	f, ok := hotReloadableFields[path]
	return ok && !f.RequiresRestart
}

// HotReloadManager 管理进程配置的在线变更。
type HotReloadManager struct {
	mu sync.RWMutex

	config     *Config
	configPath string

	// previousConfig 是上一份成功生效的配置，回调失败时回退到它
	previousConfig *Config
	validateFunc   ValidateFunc

	watcher *FileWatcher

	changeCallbacks []ChangeCallback
	reloadCallbacks []ReloadCallback
	changeLog       []ConfigChange

	logger  *zap.Logger
	running bool
	cancel  context.CancelFunc
}

// HotReloadOption 配置 HotReloadManager。
type HotReloadOption func(*HotReloadManager)

// WithHotReloadLogger 设置日志器。
func WithHotReloadLogger(logger *zap.Logger) HotReloadOption {
	return func(m *HotReloadManager) { m.logger = logger }
}

// WithConfigPath 设置要监听的配置文件路径；不设置则只响应 API 变更。
func WithConfigPath(path string) HotReloadOption {
	return func(m *HotReloadManager) { m.configPath = path }
}

// WithValidateFunc 设置应用前的验证钩子。
func WithValidateFunc(fn ValidateFunc) HotReloadOption {
	return func(m *HotReloadManager) { m.validateFunc = fn }
}

// NewHotReloadManager 创建热重载管理器，config 为当前生效配置。
func NewHotReloadManager(config *Config, opts ...HotReloadOption) *HotReloadManager {
	m := &HotReloadManager{
		config: config,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start 启动文件监听（如配置了路径）。重复启动报错。
func (m *HotReloadManager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("hot reload manager already running")
	}

	ctx, m.cancel = context.WithCancel(ctx)

	if m.configPath != "" {
		watcher, err := NewFileWatcher(
			[]string{m.configPath},
			WithWatcherLogger(m.logger),
			WithDebounceDelay(500*time.Millisecond),
		)
		if err != nil {
			return fmt.Errorf("create config watcher: %w", err)
		}
		watcher.OnChange(m.onFileEvent)
		if err := watcher.Start(ctx); err != nil {
			return fmt.Errorf("start config watcher: %w", err)
		}
		m.watcher = watcher
	}

	m.running = true
	m.logger.Info("hot reload manager started", zap.String("config_path", m.configPath))
	return nil
}

// Stop 停止文件监听。幂等。
func (m *HotReloadManager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}
	if m.cancel != nil {
		m.cancel()
	}
	if m.watcher != nil {
		if err := m.watcher.Stop(); err != nil {
			m.logger.Error("stop config watcher failed", zap.Error(err))
		}
	}
	m.running = false
	m.logger.Info("hot reload manager stopped")
	return nil
}

// onFileEvent 把文件写入/创建转成一次整份重载。
func (m *HotReloadManager) onFileEvent(event FileEvent) {
	if event.Op != FileOpWrite && event.Op != FileOpCreate {
		return
	}
	m.logger.Info("config file changed on disk",
		zap.String("path", event.Path),
		zap.String("op", event.Op.String()))
	if err := m.ReloadFromFile(); err != nil {
		m.logger.Error("config reload from file failed", zap.Error(err))
	}
}

// ReloadFromFile 重新走一遍加载链（默认值 → 文件 → 环境变量）并应用。
// 文件非法时当前配置原样保留。
func (m *HotReloadManager) ReloadFromFile() error {
	if m.configPath == "" {
		return fmt.Errorf("no config path configured")
	}

	newConfig, err := NewLoader().WithConfigPath(m.configPath).Load()
	if err != nil {
		m.logger.Error("config file unreadable, keeping current config",
			zap.Error(err), zap.String("path", m.configPath))
		return fmt.Errorf("load config: %w", err)
	}
	if err := newConfig.Validate(); err != nil {
		m.logger.Error("config file invalid, keeping current config",
			zap.Error(err), zap.String("path", m.configPath))
		return fmt.Errorf("validate config: %w", err)
	}
	return m.ApplyConfig(newConfig, "file")
}

// ApplyConfig 原子地替换整份配置。
// 验证、变更检测、替换与日志记录都在写锁内完成；回调在锁外执行，
// 回调失败（含 panic）则回退到替换前的配置。
func (m *HotReloadManager) ApplyConfig(newConfig *Config, source string) error {
	m.mu.Lock()

	oldConfig := m.config

	if m.validateFunc != nil {
		if err := m.validateFunc(newConfig); err != nil {
			m.appendChangeLocked(ConfigChange{
				Timestamp: time.Now(),
				Source:    source,
				Path:      "(validation_hook)",
				Error:     err.Error(),
			})
			m.mu.Unlock()
			m.logger.Warn("config rejected by validation hook",
				zap.Error(err), zap.String("source", source))
			return fmt.Errorf("config validation failed: %w", err)
		}
	}

	changes := diffConfigs(oldConfig, newConfig)
	var requiresRestart bool
	for i := range changes {
		c := &changes[i]
		c.Timestamp = time.Now()
		c.Source = source
		c.Applied = true
		field, known := hotReloadableFields[c.Path]
		if known {
			c.RequiresRestart = field.RequiresRestart
			if field.Sensitive {
				c.OldValue = "[REDACTED]"
				c.NewValue = "[REDACTED]"
			}
		} else {
			// 白名单外的字段仍可经文件变更流入，按保守处理
			c.RequiresRestart = true
		}
		if c.RequiresRestart {
			requiresRestart = true
		}
		m.logChangeLocked(*c)
	}

	m.previousConfig = deepCopyConfig(oldConfig)
	m.config = newConfig
	for _, c := range changes {
		m.appendChangeLocked(c)
	}

	changeCBs := append([]ChangeCallback(nil), m.changeCallbacks...)
	reloadCBs := append([]ReloadCallback(nil), m.reloadCallbacks...)
	m.mu.Unlock()

	if err := runCallbacks(changeCBs, reloadCBs, oldConfig, newConfig, changes); err != nil {
		m.mu.Lock()
		if m.config == newConfig {
			m.logger.Error("config callback failed, reverting", zap.Error(err))
			m.revertLocked(oldConfig, fmt.Sprintf("callback error: %v", err))
		} else {
			m.logger.Warn("config callback failed but config changed concurrently, not reverting",
				zap.Error(err))
		}
		m.mu.Unlock()
		return fmt.Errorf("config applied but callback failed: %w", err)
	}

	if requiresRestart {
		m.logger.Warn("some config changes take effect only after restart")
	}
	m.logger.Info("config reloaded",
		zap.String("source", source),
		zap.Int("changes", len(changes)),
		zap.Bool("requires_restart", requiresRestart))
	return nil
}

// Rollback 手动回退到上一份生效配置。
func (m *HotReloadManager) Rollback() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.previousConfig == nil {
		return fmt.Errorf("no previous config to roll back to")
	}
	m.revertLocked(m.previousConfig, "manual rollback")
	return nil
}

// revertLocked 替换回 target 并记日志。调用方必须持有写锁。
func (m *HotReloadManager) revertLocked(target *Config, reason string) {
	m.config = deepCopyConfig(target)
	m.appendChangeLocked(ConfigChange{
		Timestamp: time.Now(),
		Source:    "rollback",
		Path:      "(rollback)",
		Applied:   true,
		Error:     reason,
	})
	m.logger.Warn("config reverted", zap.String("reason", reason))
}

// runCallbacks 通知回调并把 panic 折算成 error。
func runCallbacks(changeCBs []ChangeCallback, reloadCBs []ReloadCallback, oldConfig, newConfig *Config, changes []ConfigChange) (retErr error) {
	defer func() {
		if r := recover(); r != nil {
			retErr = fmt.Errorf("config callback panicked: %v", r)
		}
	}()
	for _, cb := range changeCBs {
		for _, c := range changes {
			cb(c)
		}
	}
	for _, cb := range reloadCBs {
		cb(oldConfig, newConfig)
	}
	return nil
}

// OnChange 注册字段变更回调。
func (m *HotReloadManager) OnChange(cb ChangeCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.changeCallbacks = append(m.changeCallbacks, cb)
}

// OnReload 注册整份重载回调。
func (m *HotReloadManager) OnReload(cb ReloadCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reloadCallbacks = append(m.reloadCallbacks, cb)
}

// UpdateField 在线修改单个白名单字段。回调失败时回退。
func (m *HotReloadManager) UpdateField(path string, value any) error {
	m.mu.Lock()

	field, known := hotReloadableFields[path]
	if !known {
		m.mu.Unlock()
		return fmt.Errorf("unknown configuration field: %s", path)
	}
	if field.Validator != nil {
		if err := field.Validator(value); err != nil {
			m.mu.Unlock()
			return fmt.Errorf("validation failed for %s: %w", path, err)
		}
	}

	before := deepCopyConfig(m.config)

	oldValue, err := getNestedField(reflect.ValueOf(m.config).Elem(), path)
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := setNestedField(reflect.ValueOf(m.config).Elem(), path, value); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("set %s: %w", path, err)
	}

	change := ConfigChange{
		Timestamp:       time.Now(),
		Source:          "api",
		Path:            path,
		OldValue:        oldValue,
		NewValue:        value,
		RequiresRestart: field.RequiresRestart,
		Applied:         true,
	}
	if field.Sensitive {
		change.OldValue = "[REDACTED]"
		change.NewValue = "[REDACTED]"
	}

	m.logChangeLocked(change)
	m.appendChangeLocked(change)
	m.previousConfig = before
	changeCBs := append([]ChangeCallback(nil), m.changeCallbacks...)
	after := deepCopyConfig(m.config)
	m.mu.Unlock()

	if err := runCallbacks(changeCBs, nil, before, after, []ConfigChange{change}); err != nil {
		m.mu.Lock()
		m.revertLocked(before, fmt.Sprintf("callback error: %v", err))
		m.mu.Unlock()
		return fmt.Errorf("field updated but callback failed, reverted: %w", err)
	}
	return nil
}

// getFieldValue 读取当前配置的单个字段值，配置 API 展示用。
func (m *HotReloadManager) getFieldValue(path string) (any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return getNestedField(reflect.ValueOf(m.config).Elem(), path)
}

// GetConfig 返回当前配置的深拷贝，调用方可随意改动。
func (m *HotReloadManager) GetConfig() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return deepCopyConfig(m.config)
}

// GetChangeLog 返回最近的变更记录，limit <= 0 表示全部。
func (m *HotReloadManager) GetChangeLog(limit int) []ConfigChange {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 || limit > len(m.changeLog) {
		limit = len(m.changeLog)
	}
	out := make([]ConfigChange, limit)
	copy(out, m.changeLog[len(m.changeLog)-limit:])
	return out
}

// appendChangeLocked 追加变更日志并截断到上限。须持有写锁。
func (m *HotReloadManager) appendChangeLocked(c ConfigChange) {
	m.changeLog = append(m.changeLog, c)
	if len(m.changeLog) > maxChangeLogEntries {
		m.changeLog = m.changeLog[len(m.changeLog)-maxChangeLogEntries:]
	}
}

// logChangeLocked 记一条变更日志，敏感字段不落值。
func (m *HotReloadManager) logChangeLocked(c ConfigChange) {
	fields := []zap.Field{
		zap.String("path", c.Path),
		zap.String("source", c.Source),
		zap.Bool("requires_restart", c.RequiresRestart),
	}
	if f, known := hotReloadableFields[c.Path]; !known || !f.Sensitive {
		fields = append(fields,
			zap.Any("old_value", c.OldValue),
			zap.Any("new_value", c.NewValue))
	}
	m.logger.Info("config changed", fields...)
}

// SanitizedConfig 返回脱敏后的配置视图，供配置 API 暴露。
func (m *HotReloadManager) SanitizedConfig() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, err := json.Marshal(m.config)
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	redactSensitive(out)
	return out
}

// sensitiveKeyFragments 命中任一片段的键视为敏感。
var sensitiveKeyFragments = []string{"password", "api_key", "apikey", "secret", "token", "credential"}

// redactSensitive 递归脱敏 map 中的敏感字符串值。
func redactSensitive(data map[string]any) {
	for key, value := range data {
		lower := strings.ToLower(key)
		for _, frag := range sensitiveKeyFragments {
			if strings.Contains(lower, frag) {
				if s, ok := value.(string); ok && s != "" {
					data[key] = "[REDACTED]"
				}
				break
			}
		}
		if nested, ok := value.(map[string]any); ok {
			redactSensitive(nested)
		}
	}
}

// --- 配置比对与反射工具 ---

// deepCopyConfig 经 JSON 往返做深拷贝；Config 全部字段可序列化。
func deepCopyConfig(config *Config) *Config {
	data, err := json.Marshal(config)
	if err != nil {
		return config
	}
	var copied Config
	if err := json.Unmarshal(data, &copied); err != nil {
		return config
	}
	return &copied
}

// diffConfigs 逐字段比对两份配置，返回变更列表（Path/OldValue/NewValue）。
func diffConfigs(oldConfig, newConfig *Config) []ConfigChange {
	var changes []ConfigChange
	diffStructs("", reflect.ValueOf(oldConfig).Elem(), reflect.ValueOf(newConfig).Elem(), &changes)
	return changes
}

func diffStructs(prefix string, oldVal, newVal reflect.Value, changes *[]ConfigChange) {
	if oldVal.Kind() != reflect.Struct {
		return
	}
	t := oldVal.Type()
	for i := 0; i < oldVal.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		path := field.Name
		if prefix != "" {
			path = prefix + "." + field.Name
		}
		of, nf := oldVal.Field(i), newVal.Field(i)
		if of.Kind() == reflect.Struct {
			diffStructs(path, of, nf, changes)
			continue
		}
		if !reflect.DeepEqual(of.Interface(), nf.Interface()) {
			*changes = append(*changes, ConfigChange{
				Path:     path,
				OldValue: of.Interface(),
				NewValue: nf.Interface(),
			})
		}
	}
}

// getNestedField 按点分路径读取嵌套字段。
func getNestedField(v reflect.Value, path string) (any, error) {
	for _, part := range splitPath(path) {
		if v.Kind() == reflect.Ptr {
			v = v.Elem()
		}
		if v.Kind() != reflect.Struct {
			return nil, fmt.Errorf("not a struct at %s", part)
		}
		v = v.FieldByName(part)
		if !v.IsValid() {
			return nil, fmt.Errorf("field not found: %s", part)
		}
	}
	return v.Interface(), nil
}

// setNestedField 按点分路径设置嵌套字段，类型可转换即接受。
func setNestedField(v reflect.Value, path string, value any) error {
	parts := splitPath(path)
	for i, part := range parts {
		if v.Kind() == reflect.Ptr {
			v = v.Elem()
		}
		if v.Kind() != reflect.Struct {
			return fmt.Errorf("not a struct at %s", part)
		}
		v = v.FieldByName(part)
		if !v.IsValid() {
			return fmt.Errorf("field not found: %s", part)
		}
		if i == len(parts)-1 {
			if !v.CanSet() {
				return fmt.Errorf("cannot set field: %s", part)
			}
			nv := reflect.ValueOf(value)
			if !nv.Type().ConvertibleTo(v.Type()) {
				return fmt.Errorf("type mismatch for %s: expected %s, got %s", part, v.Type(), nv.Type())
			}
			v.Set(nv.Convert(v.Type()))
		}
	}
	return nil
}

func splitPath(path string) []string {
	return strings.FieldsFunc(path, func(c rune) bool { return c == '.' })
}
