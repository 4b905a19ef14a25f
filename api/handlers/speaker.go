package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/BaSui01/paneltalk/api"
	"github.com/BaSui01/paneltalk/persona"
	"github.com/BaSui01/paneltalk/types"
)

// =============================================================================
// 🎤 发言人档案 Handler
// =============================================================================

// SpeakerHandler 发言人档案管理处理器
type SpeakerHandler struct {
	store  persona.Store
	logger *zap.Logger
}

// NewSpeakerHandler 创建发言人档案处理器
func NewSpeakerHandler(store persona.Store, logger *zap.Logger) *SpeakerHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SpeakerHandler{
		store:  store,
		logger: logger.With(zap.String("component", "speaker_handler")),
	}
}

// HandleList 列出全部档案
// @Summary 档案列表
// @Description 返回全部发言人档案，按名称字典序
// @Tags 档案
// @Produce json
// @Success 200 {object} Response "档案列表"
// @Security ApiKeyAuth
// @Router /v1/speakers [get]
func (h *SpeakerHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	speakers, err := h.store.List(r.Context())
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}

	result := make([]api.Speaker, 0, len(speakers))
	for _, sp := range speakers {
		result = append(result, api.SpeakerFromDomain(sp))
	}
	WriteSuccess(w, api.SpeakerListResponse{Speakers: result})
}

// HandleGet 查询单个档案
// @Summary 查询档案
// @Description 按名称返回发言人档案
// @Tags 档案
// @Produce json
// @Param name path string true "档案名称"
// @Success 200 {object} Response "档案"
// @Failure 404 {object} Response "档案不存在"
// @Security ApiKeyAuth
// @Router /v1/speakers/{name} [get]
func (h *SpeakerHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if name == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "speaker name is required", h.logger)
		return
	}

	sp, err := h.store.Get(r.Context(), name)
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}
	WriteSuccess(w, api.SpeakerFromDomain(sp))
}

// HandlePut 新建或整体覆盖档案
// @Summary 写入档案
// @Description 新建或整体覆盖发言人档案；路径名称优先于请求体
// @Tags 档案
// @Accept json
// @Produce json
// @Param name path string true "档案名称"
// @Param request body api.Speaker true "档案内容"
// @Success 200 {object} Response "已写入"
// @Failure 400 {object} Response "无效请求"
// @Security ApiKeyAuth
// @Router /v1/speakers/{name} [put]
func (h *SpeakerHandler) HandlePut(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req api.Speaker
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	if name := r.PathValue("name"); name != "" {
		req.Name = name
	}

	sp := req.ToDomain()
	if err := h.store.Put(r.Context(), sp); err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}

	h.logger.Info("speaker profile saved",
		zap.String("name", sp.Name),
		zap.String("role", string(sp.Role)),
	)
	WriteSuccess(w, api.SpeakerFromDomain(sp))
}

// HandleDelete 删除档案
// @Summary 删除档案
// @Description 按名称删除发言人档案
// @Tags 档案
// @Produce json
// @Param name path string true "档案名称"
// @Success 200 {object} Response "已删除"
// @Failure 404 {object} Response "档案不存在"
// @Security ApiKeyAuth
// @Router /v1/speakers/{name} [delete]
func (h *SpeakerHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if name == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "speaker name is required", h.logger)
		return
	}

	if err := h.store.Delete(r.Context(), name); err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}

	h.logger.Info("speaker profile deleted", zap.String("name", name))
	WriteSuccess(w, map[string]string{"name": name, "status": "deleted"})
}
