package config

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- HotReloadManager 基础 ---

func TestNewHotReloadManager(t *testing.T) {
	cfg := DefaultConfig()
	m := NewHotReloadManager(cfg)
	require.NotNil(t, m)

	got := m.GetConfig()
	assert.Equal(t, cfg.Server.HTTPPort, got.Server.HTTPPort)
	assert.NotSame(t, cfg, got, "GetConfig 应返回深拷贝")
}

func TestHotReloadManager_StartStop(t *testing.T) {
	m := NewHotReloadManager(DefaultConfig())

	require.NoError(t, m.Start(context.Background()))
	assert.Error(t, m.Start(context.Background()), "重复启动应报错")
	require.NoError(t, m.Stop())
	require.NoError(t, m.Stop(), "重复停止应幂等")
}

func TestHotReloadManager_ApplyConfig_DetectsChanges(t *testing.T) {
	m := NewHotReloadManager(DefaultConfig())

	var mu sync.Mutex
	var changed []ConfigChange
	m.OnChange(func(change ConfigChange) {
		mu.Lock()
		defer mu.Unlock()
		changed = append(changed, change)
	})

	newCfg := DefaultConfig()
	newCfg.Dialogue.MaxTurns = 20
	newCfg.Log.Level = "debug"

	require.NoError(t, m.ApplyConfig(newCfg, "test"))

	mu.Lock()
	defer mu.Unlock()
	paths := make([]string, 0, len(changed))
	for _, c := range changed {
		paths = append(paths, c.Path)
	}
	assert.Contains(t, paths, "Dialogue.MaxTurns")
	assert.Contains(t, paths, "Log.Level")

	got := m.GetConfig()
	assert.Equal(t, 20, got.Dialogue.MaxTurns)
	assert.Equal(t, "debug", got.Log.Level)
}

func TestHotReloadManager_ApplyConfig_OnReloadCallback(t *testing.T) {
	m := NewHotReloadManager(DefaultConfig())

	var gotOld, gotNew *Config
	m.OnReload(func(oldConfig, newConfig *Config) {
		gotOld = oldConfig
		gotNew = newConfig
	})

	newCfg := DefaultConfig()
	newCfg.LLM.Model = "gpt-4o"
	require.NoError(t, m.ApplyConfig(newCfg, "test"))

	require.NotNil(t, gotOld)
	require.NotNil(t, gotNew)
	assert.Equal(t, "gpt-4o-mini", gotOld.LLM.Model)
	assert.Equal(t, "gpt-4o", gotNew.LLM.Model)
}

func TestHotReloadManager_ValidateHookRejects(t *testing.T) {
	m := NewHotReloadManager(DefaultConfig(),
		WithValidateFunc(func(newConfig *Config) error {
			if newConfig.Dialogue.MaxTurns > 100 {
				return fmt.Errorf("max_turns too large")
			}
			return nil
		}),
	)

	newCfg := DefaultConfig()
	newCfg.Dialogue.MaxTurns = 500
	err := m.ApplyConfig(newCfg, "test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")

	// 旧配置保持不变
	assert.Equal(t, 12, m.GetConfig().Dialogue.MaxTurns)
}

func TestHotReloadManager_CallbackFailureRollsBack(t *testing.T) {
	m := NewHotReloadManager(DefaultConfig())

	m.OnReload(func(oldConfig, newConfig *Config) {
		panic("downstream refused new config")
	})

	newCfg := DefaultConfig()
	newCfg.Dialogue.MaxTurns = 42
	err := m.ApplyConfig(newCfg, "test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "callback")

	assert.Equal(t, 12, m.GetConfig().Dialogue.MaxTurns, "回调失败后应恢复旧值")

	// 回退本身也进变更日志
	changes := m.GetChangeLog(0)
	require.NotEmpty(t, changes)
	assert.Equal(t, "rollback", changes[len(changes)-1].Source)
}

// --- UpdateField ---

func TestHotReloadManager_UpdateField(t *testing.T) {
	m := NewHotReloadManager(DefaultConfig())

	require.NoError(t, m.UpdateField("Dialogue.MaxTurns", 8))
	assert.Equal(t, 8, m.GetConfig().Dialogue.MaxTurns)

	require.NoError(t, m.UpdateField("LLM.Temperature", 0.3))
	assert.InDelta(t, 0.3, m.GetConfig().LLM.Temperature, 1e-9)
}

func TestHotReloadManager_UpdateField_UnknownField(t *testing.T) {
	m := NewHotReloadManager(DefaultConfig())

	err := m.UpdateField("Dialogue.NoSuchKnob", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown configuration field")
}

func TestHotReloadManager_UpdateField_TypeMismatch(t *testing.T) {
	m := NewHotReloadManager(DefaultConfig())

	err := m.UpdateField("Dialogue.MaxTurns", "not-a-number")
	require.Error(t, err)
	assert.Equal(t, 12, m.GetConfig().Dialogue.MaxTurns)
}

func TestHotReloadManager_UpdateField_SensitiveRedactedInLog(t *testing.T) {
	m := NewHotReloadManager(DefaultConfig())

	require.NoError(t, m.UpdateField("LLM.APIKey", "sk-very-secret"))

	changes := m.GetChangeLog(10)
	require.NotEmpty(t, changes)
	last := changes[len(changes)-1]
	assert.Equal(t, "LLM.APIKey", last.Path)
	assert.Equal(t, "[REDACTED]", last.NewValue)
	assert.Equal(t, "[REDACTED]", last.OldValue)

	// 实际配置已更新
	assert.Equal(t, "sk-very-secret", m.GetConfig().LLM.APIKey)
}

// --- 变更日志 ---

func TestHotReloadManager_GetChangeLog_Limit(t *testing.T) {
	m := NewHotReloadManager(DefaultConfig())

	for i := 1; i <= 5; i++ {
		require.NoError(t, m.UpdateField("Dialogue.MaxTurns", 10+i))
	}

	changes := m.GetChangeLog(3)
	assert.Len(t, changes, 3)
	assert.Equal(t, 15, changes[len(changes)-1].NewValue)

	all := m.GetChangeLog(0)
	assert.Len(t, all, 5)
}

// --- 回滚 ---

func TestHotReloadManager_Rollback(t *testing.T) {
	m := NewHotReloadManager(DefaultConfig())

	// 还没有过任何变更时回滚应报错
	require.Error(t, m.Rollback())

	newCfg := DefaultConfig()
	newCfg.Dialogue.MaxTurns = 30
	require.NoError(t, m.ApplyConfig(newCfg, "test"))
	assert.Equal(t, 30, m.GetConfig().Dialogue.MaxTurns)

	require.NoError(t, m.Rollback())
	assert.Equal(t, 12, m.GetConfig().Dialogue.MaxTurns)
}

func TestHotReloadManager_RollbackKeepsOneGeneration(t *testing.T) {
	m := NewHotReloadManager(DefaultConfig())

	cfg2 := DefaultConfig()
	cfg2.Dialogue.MaxTurns = 20
	require.NoError(t, m.ApplyConfig(cfg2, "test"))

	cfg3 := DefaultConfig()
	cfg3.Dialogue.MaxTurns = 30
	require.NoError(t, m.ApplyConfig(cfg3, "test"))

	// 只保留上一份配置：回滚回到 20，而不是初始的 12
	require.NoError(t, m.Rollback())
	assert.Equal(t, 20, m.GetConfig().Dialogue.MaxTurns)
}

// --- 文件热重载 ---

func TestHotReloadManager_ReloadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(strings.TrimSpace(`
dialogue:
  max_turns: 24
log:
  level: debug
`)), 0o644))

	m := NewHotReloadManager(DefaultConfig(), WithConfigPath(path))
	require.NoError(t, m.ReloadFromFile())

	got := m.GetConfig()
	assert.Equal(t, 24, got.Dialogue.MaxTurns)
	assert.Equal(t, "debug", got.Log.Level)
	// 文件未覆盖的字段保留默认值
	assert.Equal(t, 3, got.Dialogue.ModeratorCadence)
}

func TestHotReloadManager_ReloadFromFile_NoPath(t *testing.T) {
	m := NewHotReloadManager(DefaultConfig())
	err := m.ReloadFromFile()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no config path")
}

func TestHotReloadManager_ReloadFromFile_InvalidKeepsCurrent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("dialogue:\n  max_turns: -1\n"), 0o644))

	m := NewHotReloadManager(DefaultConfig(), WithConfigPath(path))
	err := m.ReloadFromFile()
	require.Error(t, err)
	assert.Equal(t, 12, m.GetConfig().Dialogue.MaxTurns, "非法配置不应被应用")
}

// --- 字段注册表 ---

func TestHotReloadableFields_Registry(t *testing.T) {
	fields := GetHotReloadableFields()

	hot := []string{
		"Log.Level",
		"Dialogue.MaxTurns",
		"Dialogue.ModeratorCadence",
		"LLM.Model",
		"LLM.Temperature",
	}
	for _, path := range hot {
		f, ok := fields[path]
		require.True(t, ok, "field %s should be registered", path)
		assert.False(t, f.RequiresRestart, "field %s should be hot reloadable", path)
		assert.True(t, IsHotReloadable(path))
	}

	restart := []string{"Server.HTTPPort", "Persona.Backend", "LLM.APIKey"}
	for _, path := range restart {
		f, ok := fields[path]
		require.True(t, ok, "field %s should be registered", path)
		assert.True(t, f.RequiresRestart)
		assert.False(t, IsHotReloadable(path))
	}

	assert.False(t, IsHotReloadable("No.Such.Field"))
	assert.True(t, fields["LLM.APIKey"].Sensitive)
}

// --- SanitizedConfig ---

func TestHotReloadManager_SanitizedConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LLM.APIKey = "sk-very-secret"
	m := NewHotReloadManager(cfg)

	sanitized := m.SanitizedConfig()
	require.NotNil(t, sanitized)

	llm, ok := sanitized["LLM"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "[REDACTED]", llm["APIKey"])
	assert.Equal(t, "gpt-4o-mini", llm["Model"])
}

// --- API 处理器（完整往返） ---

func apiTestManager(t *testing.T) *HotReloadManager {
	t.Helper()
	cfg := DefaultConfig()
	cfg.LLM.APIKey = "sk-test"
	return NewHotReloadManager(cfg)
}

func decodeAPIResponse(t *testing.T, w *httptest.ResponseRecorder) (bool, map[string]any, string) {
	t.Helper()
	var raw struct {
		Success bool           `json:"success"`
		Data    map[string]any `json:"data"`
		Error   *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&raw))
	msg := ""
	if raw.Error != nil {
		msg = raw.Error.Message
	}
	return raw.Success, raw.Data, msg
}

func TestConfigAPIHandler_GetConfig(t *testing.T) {
	h := NewConfigAPIHandler(apiTestManager(t))

	req := httptest.NewRequest(http.MethodGet, "/v1/config", nil)
	w := httptest.NewRecorder()
	h.HandleConfig(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	success, data, _ := decodeAPIResponse(t, w)
	assert.True(t, success)

	config, ok := data["config"].(map[string]any)
	require.True(t, ok)
	llm, ok := config["LLM"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "[REDACTED]", llm["APIKey"])
}

func TestConfigAPIHandler_UpdateConfig(t *testing.T) {
	m := apiTestManager(t)
	h := NewConfigAPIHandler(m)

	body := strings.NewReader(`{"updates":{"Dialogue.MaxTurns":16}}`)
	req := httptest.NewRequest(http.MethodPut, "/v1/config", body)
	w := httptest.NewRecorder()
	h.HandleConfig(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	success, _, _ := decodeAPIResponse(t, w)
	assert.True(t, success)
	assert.Equal(t, 16, m.GetConfig().Dialogue.MaxTurns)
}

func TestConfigAPIHandler_UpdateConfig_UnknownField(t *testing.T) {
	h := NewConfigAPIHandler(apiTestManager(t))

	body := strings.NewReader(`{"updates":{"Dialogue.Bogus":1}}`)
	req := httptest.NewRequest(http.MethodPut, "/v1/config", body)
	w := httptest.NewRecorder()
	h.HandleConfig(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	success, _, msg := decodeAPIResponse(t, w)
	assert.False(t, success)
	assert.Contains(t, msg, "Unknown field")
}

func TestConfigAPIHandler_UpdateConfig_EmptyBody(t *testing.T) {
	h := NewConfigAPIHandler(apiTestManager(t))

	body := strings.NewReader(`{"updates":{}}`)
	req := httptest.NewRequest(http.MethodPut, "/v1/config", body)
	w := httptest.NewRecorder()
	h.HandleConfig(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	success, _, msg := decodeAPIResponse(t, w)
	assert.False(t, success)
	assert.Contains(t, msg, "No updates provided")
}

func TestConfigAPIHandler_UpdateConfig_RestartRequired(t *testing.T) {
	h := NewConfigAPIHandler(apiTestManager(t))

	body := strings.NewReader(`{"updates":{"Server.HTTPPort":9090}}`)
	req := httptest.NewRequest(http.MethodPut, "/v1/config", body)
	w := httptest.NewRecorder()
	h.HandleConfig(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	success, data, _ := decodeAPIResponse(t, w)
	assert.True(t, success)
	assert.Equal(t, true, data["requires_restart"])
}

func TestConfigAPIHandler_Fields(t *testing.T) {
	h := NewConfigAPIHandler(apiTestManager(t))

	req := httptest.NewRequest(http.MethodGet, "/v1/config/fields", nil)
	w := httptest.NewRecorder()
	h.HandleFields(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	success, data, _ := decodeAPIResponse(t, w)
	assert.True(t, success)

	fields, ok := data["fields"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, fields, "Dialogue.MaxTurns")

	// 敏感字段不暴露当前值
	apiKey, ok := fields["LLM.APIKey"].(map[string]any)
	require.True(t, ok)
	assert.NotContains(t, apiKey, "current_value")
}

func TestConfigAPIHandler_Changes(t *testing.T) {
	m := apiTestManager(t)
	require.NoError(t, m.UpdateField("Dialogue.MaxTurns", 9))
	h := NewConfigAPIHandler(m)

	req := httptest.NewRequest(http.MethodGet, "/v1/config/changes?limit=5", nil)
	w := httptest.NewRecorder()
	h.HandleChanges(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	success, data, _ := decodeAPIResponse(t, w)
	assert.True(t, success)

	changes, ok := data["changes"].([]any)
	require.True(t, ok)
	require.NotEmpty(t, changes)
	last, ok := changes[len(changes)-1].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Dialogue.MaxTurns", last["path"])
}

// --- 辅助函数 ---

func TestDeepCopyConfig(t *testing.T) {
	cfg := DefaultConfig()
	copied := deepCopyConfig(cfg)
	require.NotSame(t, cfg, copied)

	copied.Dialogue.MaxTurns = 99
	assert.Equal(t, 12, cfg.Dialogue.MaxTurns, "深拷贝不应共享底层数据")
}

func TestDiffConfigs(t *testing.T) {
	a := DefaultConfig()
	b := DefaultConfig()
	assert.Empty(t, diffConfigs(a, b))

	b.Dialogue.MaxTurns = 99
	b.Log.Level = "debug"
	changes := diffConfigs(a, b)
	require.Len(t, changes, 2)
	paths := []string{changes[0].Path, changes[1].Path}
	assert.Contains(t, paths, "Dialogue.MaxTurns")
	assert.Contains(t, paths, "Log.Level")
}

func TestSetNestedField_Errors(t *testing.T) {
	v := reflect.ValueOf(DefaultConfig()).Elem()

	require.Error(t, setNestedField(v, "Dialogue.NoSuchField", 1))
	require.Error(t, setNestedField(v, "Dialogue.MaxTurns.Deeper", 1))
}

func TestGetNestedField(t *testing.T) {
	v := reflect.ValueOf(DefaultConfig()).Elem()

	got, err := getNestedField(v, "Dialogue.MaxTurns")
	require.NoError(t, err)
	assert.Equal(t, 12, got)

	_, err = getNestedField(v, "Nope.Nope")
	require.Error(t, err)
}

func TestHotReloadManager_ConcurrentAccess(t *testing.T) {
	m := NewHotReloadManager(DefaultConfig())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_ = m.UpdateField("Dialogue.MaxTurns", 10+n)
			_ = m.GetConfig()
			_ = m.GetChangeLog(5)
			_ = m.SanitizedConfig()
		}(i)
	}
	wg.Wait()

	got := m.GetConfig().Dialogue.MaxTurns
	assert.GreaterOrEqual(t, got, 10)
	assert.LessOrEqual(t, got, 17)
}
