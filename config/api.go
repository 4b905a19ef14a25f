// 配置管理 HTTP API。
//
// 挂在运维端点 /v1/config 下：查询脱敏配置、在线改白名单字段、
// 触发文件重载、查变更日志。认证由 ConfigAPIMiddleware 提供，
// 路由注册在 cmd 层完成。
package config

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/BaSui01/paneltalk/api"
)

// apiResponse 复用全局 API 响应信封。
type apiResponse = api.Response

// apiError 复用全局 API 错误结构。
type apiError = api.ErrorInfo

// configData 是配置 API 响应的 Data 载荷。
type configData struct {
	Message string               `json:"message,omitempty"`
	Config  map[string]any       `json:"config,omitempty"`
	Fields  map[string]FieldInfo `json:"fields,omitempty"`
	Changes []ConfigChange       `json:"changes,omitempty"`
	// RequiresRestart 提示本次更新含需重启才生效的字段
	RequiresRestart bool `json:"requires_restart,omitempty"`
}

// FieldInfo 是白名单字段在 API 响应中的描述。
type FieldInfo struct {
	Path            string `json:"path"`
	Description     string `json:"description"`
	RequiresRestart bool   `json:"requires_restart"`
	Sensitive       bool   `json:"sensitive"`
	// CurrentValue 仅对非敏感字段填充
	CurrentValue any `json:"current_value,omitempty"`
}

// ConfigUpdateRequest 是 PUT /v1/config 的请求体。
type ConfigUpdateRequest struct {
	// Updates 是字段路径到新值的映射
	Updates map[string]any `json:"updates"`
}

// ConfigAPIHandler 把 HotReloadManager 暴露为 HTTP 端点。
type ConfigAPIHandler struct {
	manager       *HotReloadManager
	allowedOrigin string
}

// NewConfigAPIHandler 创建配置 API 处理器。
// allowedOrigin 为空时响应不带 Access-Control-Allow-Origin。
func NewConfigAPIHandler(manager *HotReloadManager, allowedOrigin ...string) *ConfigAPIHandler {
	origin := ""
	if len(allowedOrigin) > 0 {
		origin = allowedOrigin[0]
	}
	return &ConfigAPIHandler{manager: manager, allowedOrigin: origin}
}

// HandleConfig 处理 /v1/config：GET 查询、PUT 更新。
func (h *ConfigAPIHandler) HandleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.getConfig(w)
	case http.MethodPut:
		h.updateConfig(w, r)
	case http.MethodOptions:
		h.preflight(w)
	default:
		h.methodNotAllowed(w, r)
	}
}

// HandleReload 处理 POST /v1/config/reload：从文件重载整份配置。
func (h *ConfigAPIHandler) HandleReload(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodOptions:
		h.preflight(w)
		return
	case http.MethodPost:
	default:
		h.methodNotAllowed(w, r)
		return
	}

	if err := h.manager.ReloadFromFile(); err != nil {
		writeAPIJSON(w, http.StatusInternalServerError, apiResponse{
			Success: false,
			Error: &apiError{
				Code:    "INTERNAL_ERROR",
				Message: fmt.Sprintf("Failed to reload configuration: %v", err),
			},
			Timestamp: time.Now(),
		})
		return
	}

	writeAPIJSON(w, http.StatusOK, apiResponse{
		Success: true,
		Data: configData{
			Message: "Configuration reloaded successfully",
			Config:  h.manager.SanitizedConfig(),
		},
		Timestamp: time.Now(),
	})
}

// HandleFields 处理 GET /v1/config/fields：列出在线可改的字段。
func (h *ConfigAPIHandler) HandleFields(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodOptions:
		h.preflight(w)
		return
	case http.MethodGet:
	default:
		h.methodNotAllowed(w, r)
		return
	}

	fields := make(map[string]FieldInfo, len(hotReloadableFields))
	for path, field := range hotReloadableFields {
		info := FieldInfo{
			Path:            path,
			Description:     field.Description,
			RequiresRestart: field.RequiresRestart,
			Sensitive:       field.Sensitive,
		}
		if !field.Sensitive {
			if value, err := h.manager.getFieldValue(path); err == nil {
				info.CurrentValue = value
			}
		}
		fields[path] = info
	}

	writeAPIJSON(w, http.StatusOK, apiResponse{
		Success: true,
		Data: configData{
			Message: "Hot reloadable fields retrieved",
			Fields:  fields,
		},
		Timestamp: time.Now(),
	})
}

// HandleChanges 处理 GET /v1/config/changes：查最近的变更日志。
func (h *ConfigAPIHandler) HandleChanges(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodOptions:
		h.preflight(w)
		return
	case http.MethodGet:
	default:
		h.methodNotAllowed(w, r)
		return
	}

	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}

	changes := h.manager.GetChangeLog(limit)
	writeAPIJSON(w, http.StatusOK, apiResponse{
		Success: true,
		Data: configData{
			Message: fmt.Sprintf("Retrieved %d configuration changes", len(changes)),
			Changes: changes,
		},
		Timestamp: time.Now(),
	})
}

// getConfig 返回脱敏后的当前配置。
func (h *ConfigAPIHandler) getConfig(w http.ResponseWriter) {
	writeAPIJSON(w, http.StatusOK, apiResponse{
		Success: true,
		Data: configData{
			Message: "Configuration retrieved successfully",
			Config:  h.manager.SanitizedConfig(),
		},
		Timestamp: time.Now(),
	})
}

// updateConfig 逐条应用字段更新，任一失败则整体报 400。
// 已成功的字段不回滚，响应里列出失败项。
func (h *ConfigAPIHandler) updateConfig(w http.ResponseWriter, r *http.Request) {
	var req ConfigUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIJSON(w, http.StatusBadRequest, apiResponse{
			Success: false,
			Error: &apiError{
				Code:    "INVALID_REQUEST",
				Message: fmt.Sprintf("Invalid request body: %v", err),
			},
			Timestamp: time.Now(),
		})
		return
	}
	if len(req.Updates) == 0 {
		writeAPIJSON(w, http.StatusBadRequest, apiResponse{
			Success: false,
			Error: &apiError{
				Code:    "INVALID_REQUEST",
				Message: "No updates provided",
			},
			Timestamp: time.Now(),
		})
		return
	}

	var failures []string
	var requiresRestart bool
	for path, value := range req.Updates {
		field, known := hotReloadableFields[path]
		if !known {
			failures = append(failures, fmt.Sprintf("Unknown field: %s", path))
			continue
		}
		if field.RequiresRestart {
			requiresRestart = true
		}
		if err := h.manager.UpdateField(path, value); err != nil {
			failures = append(failures, fmt.Sprintf("Failed to update %s: %v", path, err))
		}
	}

	if len(failures) > 0 {
		writeAPIJSON(w, http.StatusBadRequest, apiResponse{
			Success: false,
			Error: &apiError{
				Code:    "INVALID_REQUEST",
				Message: fmt.Sprintf("Some updates failed: %v", failures),
			},
			Data:      configData{RequiresRestart: requiresRestart},
			Timestamp: time.Now(),
		})
		return
	}

	writeAPIJSON(w, http.StatusOK, apiResponse{
		Success: true,
		Data: configData{
			Message:         "Configuration updated successfully",
			Config:          h.manager.SanitizedConfig(),
			RequiresRestart: requiresRestart,
		},
		Timestamp: time.Now(),
	})
}

// preflight 应答 CORS 预检。
func (h *ConfigAPIHandler) preflight(w http.ResponseWriter) {
	if h.allowedOrigin != "" {
		w.Header().Set("Access-Control-Allow-Origin", h.allowedOrigin)
	}
	w.Header().Set("Access-Control-Allow-Methods", "GET, PUT, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")
	w.Header().Set("Access-Control-Max-Age", "86400")
	w.WriteHeader(http.StatusNoContent)
}

func (h *ConfigAPIHandler) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeAPIJSON(w, http.StatusMethodNotAllowed, apiResponse{
		Success: false,
		Error: &apiError{
			Code:    "METHOD_NOT_ALLOWED",
			Message: fmt.Sprintf("Method %s not allowed", r.Method),
		},
		Timestamp: time.Now(),
	})
}

// writeAPIJSON 先序列化后写头，保证失败时还能换成 500。
func writeAPIJSON(w http.ResponseWriter, status int, data any) {
	buf, err := json.Marshal(data)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"success":false,"error":{"code":"INTERNAL_ERROR","message":"failed to encode response"}}`)) //nolint:errcheck // 客户端断开时的写失败无法补救
		return
	}
	w.WriteHeader(status)
	_, _ = w.Write(buf) //nolint:errcheck // 客户端断开时的写失败无法补救
}

// ConfigAPIMiddleware 为配置端点提供 API Key 认证。
type ConfigAPIMiddleware struct {
	handler *ConfigAPIHandler
	apiKey  string
}

// NewConfigAPIMiddleware 创建认证中间件。apiKey 为空时放行全部请求。
func NewConfigAPIMiddleware(handler *ConfigAPIHandler, apiKey string) *ConfigAPIMiddleware {
	return &ConfigAPIMiddleware{handler: handler, apiKey: apiKey}
}

// RequireAuth 校验 X-API-Key 请求头。
// 只认请求头，不认 query string（会落进访问日志与浏览器历史）。
// OPTIONS 预检不带自定义头，直接放行。
func (m *ConfigAPIMiddleware) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next(w, r)
			return
		}
		if m.apiKey != "" && r.Header.Get("X-API-Key") != m.apiKey {
			writeAPIJSON(w, http.StatusUnauthorized, apiResponse{
				Success: false,
				Error: &apiError{
					Code:    "UNAUTHORIZED",
					Message: "Invalid or missing API key",
				},
				Timestamp: time.Now(),
			})
			return
		}
		next(w, r)
	}
}
