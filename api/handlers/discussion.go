package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/BaSui01/paneltalk/api"
	"github.com/BaSui01/paneltalk/dialogue"
	"github.com/BaSui01/paneltalk/persona"
	"github.com/BaSui01/paneltalk/session"
	"github.com/BaSui01/paneltalk/types"
)

// =============================================================================
// 💬 讨论接口 Handler
// =============================================================================

// DiscussionHandler 讨论接口处理器
type DiscussionHandler struct {
	manager *session.Manager
	store   persona.Store
	logger  *zap.Logger
}

// NewDiscussionHandler 创建讨论处理器
func NewDiscussionHandler(manager *session.Manager, store persona.Store, logger *zap.Logger) *DiscussionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DiscussionHandler{
		manager: manager,
		store:   store,
		logger:  logger.With(zap.String("component", "discussion_handler")),
	}
}

// HandleStart 发起一场讨论并在后台运行
// @Summary 发起讨论
// @Description 发起一场讨论，事件在后台消费，结果通过会话记录查询
// @Tags 讨论
// @Accept json
// @Produce json
// @Param request body api.StartDiscussionRequest true "发起讨论请求"
// @Success 201 {object} Response "讨论已启动"
// @Failure 400 {object} Response "无效请求"
// @Failure 429 {object} Response "并发会话超限"
// @Security ApiKeyAuth
// @Router /v1/discussions [post]
func (h *DiscussionHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeStartRequest(w, r)
	if !ok {
		return
	}

	// 后台会话用独立上下文，不随 HTTP 请求结束而取消
	s, events, err := h.start(context.Background(), req)
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}

	// 后台排空事件流；记录与状态随时可查
	go func() {
		for range events {
		}
	}()

	WriteCreated(w, h.discussionInfo(s))
}

// HandleStream 发起讨论并以 SSE 流式下发事件
// @Summary 流式讨论
// @Description 发起一场讨论并实时推送轮次与终止事件
// @Tags 讨论
// @Accept json
// @Produce text/event-stream
// @Param request body api.StartDiscussionRequest true "发起讨论请求"
// @Success 200 {string} string "SSE 流"
// @Failure 400 {object} Response "无效请求"
// @Security ApiKeyAuth
// @Router /v1/discussions/stream [post]
func (h *DiscussionHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeStartRequest(w, r)
	if !ok {
		return
	}

	// 客户端断开即取消会话
	s, events, err := h.start(r.Context(), req)
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		err := types.NewError(types.ErrInternalError, "streaming not supported")
		WriteError(w, err, h.logger)
		// 流没法建立，排空后台事件
		go func() {
			for range events {
			}
		}()
		return
	}

	// 设置 SSE 响应头
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // 禁用 nginx 缓冲
	w.Header().Set("X-Session-ID", s.ID())
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for ev := range events {
		w.Write([]byte("data: "))
		if err := json.NewEncoder(w).Encode(toStreamEvent(ev)); err != nil {
			h.logger.Error("failed to write event", zap.Error(err))
			return
		}
		w.Write([]byte("\n"))
		flusher.Flush()
	}

	// 发送结束标记
	w.Write([]byte("data: [DONE]\n\n"))
	flusher.Flush()
}

// HandleWebSocket 发起讨论并经 WebSocket 下发事件。
// 第一条消息必须是 JSON 编码的 StartDiscussionRequest，
// 之后服务端推送 StreamEvent，终止事件后正常关闭连接。
// @Summary WebSocket 讨论
// @Description 经 WebSocket 发起讨论并实时推送事件
// @Tags 讨论
// @Success 101 {string} string "协议切换"
// @Security ApiKeyAuth
// @Router /v1/discussions/ws [get]
func (h *DiscussionHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	ctx := r.Context()

	readCtx, cancelRead := context.WithTimeout(ctx, 30*time.Second)
	_, data, err := conn.Read(readCtx)
	cancelRead()
	if err != nil {
		conn.Close(websocket.StatusPolicyViolation, "expected start request")
		return
	}

	var req api.StartDiscussionRequest
	if err := json.Unmarshal(data, &req); err != nil {
		h.writeWSError(ctx, conn, types.NewError(types.ErrInvalidRequest, "invalid JSON body").WithCause(err))
		conn.Close(websocket.StatusPolicyViolation, "invalid start request")
		return
	}

	_, events, err := h.start(ctx, req)
	if err != nil {
		h.writeWSError(ctx, conn, err)
		conn.Close(websocket.StatusNormalClosure, "start rejected")
		return
	}

	for ev := range events {
		payload, err := json.Marshal(toStreamEvent(ev))
		if err != nil {
			h.logger.Error("failed to marshal event", zap.Error(err))
			return
		}
		if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
			h.logger.Debug("websocket write failed, client gone", zap.Error(err))
			// 客户端断开；ctx 取消会让会话收尾，这里只需排空
			for range events {
			}
			return
		}
	}

	conn.Close(websocket.StatusNormalClosure, "discussion ended")
}

// HandleList 列出全部讨论
// @Summary 讨论列表
// @Description 返回全部讨论，按启动时间排序
// @Tags 讨论
// @Produce json
// @Success 200 {object} Response "讨论列表"
// @Security ApiKeyAuth
// @Router /v1/discussions [get]
func (h *DiscussionHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	sessions := h.manager.List()
	infos := make([]api.DiscussionInfo, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, h.discussionInfo(s))
	}
	WriteSuccess(w, api.DiscussionListResponse{Discussions: infos})
}

// HandleGet 查询单场讨论
// @Summary 查询讨论
// @Description 按 ID 返回讨论快照
// @Tags 讨论
// @Produce json
// @Param id path string true "会话 ID"
// @Success 200 {object} Response "讨论信息"
// @Failure 404 {object} Response "讨论不存在"
// @Security ApiKeyAuth
// @Router /v1/discussions/{id} [get]
func (h *DiscussionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	s, err := h.manager.Get(r.PathValue("id"))
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}
	WriteSuccess(w, h.discussionInfo(s))
}

// HandleTranscript 查询讨论的会话记录
// @Summary 查询会话记录
// @Description 返回一场讨论的完整有序记录，第 0 条是话题
// @Tags 讨论
// @Produce json
// @Param id path string true "会话 ID"
// @Success 200 {object} Response "会话记录"
// @Failure 404 {object} Response "讨论不存在"
// @Security ApiKeyAuth
// @Router /v1/discussions/{id}/transcript [get]
func (h *DiscussionHandler) HandleTranscript(w http.ResponseWriter, r *http.Request) {
	s, err := h.manager.Get(r.PathValue("id"))
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}

	snapshot := s.Transcript().Snapshot()
	utterances := make([]api.Utterance, 0, len(snapshot))
	for _, u := range snapshot {
		utterances = append(utterances, api.Utterance{
			Speaker:   u.Speaker,
			Content:   u.Content,
			Seq:       u.Seq,
			Timestamp: u.Timestamp,
		})
	}

	WriteSuccess(w, api.TranscriptResponse{
		ID:         s.ID(),
		Topic:      s.Topic(),
		State:      string(s.State()),
		Utterances: utterances,
	})
}

// HandleCancel 取消一场运行中的讨论
// @Summary 取消讨论
// @Description 取消运行中的讨论；已结束的讨论返回 409
// @Tags 讨论
// @Produce json
// @Param id path string true "会话 ID"
// @Success 200 {object} Response "已取消"
// @Failure 404 {object} Response "讨论不存在"
// @Failure 409 {object} Response "讨论已结束"
// @Security ApiKeyAuth
// @Router /v1/discussions/{id} [delete]
func (h *DiscussionHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.manager.Cancel(id); err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}
	WriteSuccess(w, map[string]string{"id": id, "status": "cancelling"})
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// decodeStartRequest 解码并校验发起请求。
func (h *DiscussionHandler) decodeStartRequest(w http.ResponseWriter, r *http.Request) (api.StartDiscussionRequest, bool) {
	var req api.StartDiscussionRequest
	if !ValidateContentType(w, r, h.logger) {
		return req, false
	}
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return req, false
	}
	if err := h.validateStartRequest(&req); err != nil {
		WriteError(w, err, h.logger)
		return req, false
	}
	return req, true
}

// validateStartRequest 验证发起请求
func (h *DiscussionHandler) validateStartRequest(req *api.StartDiscussionRequest) *types.Error {
	if req.Topic == "" {
		return types.NewError(types.ErrInvalidRequest, "topic is required")
	}
	if req.MaxTurns < 0 {
		return types.NewError(types.ErrInvalidRequest, "max_turns must not be negative")
	}
	if req.ModeratorCadence < 0 {
		return types.NewError(types.ErrInvalidRequest, "moderator_cadence must not be negative")
	}
	return nil
}

// start 解析名册并启动会话。请求未带名册时使用档案库的全部档案。
func (h *DiscussionHandler) start(ctx context.Context, req api.StartDiscussionRequest) (*dialogue.Session, <-chan dialogue.Event, error) {
	speakers, err := h.resolveSpeakers(ctx, req.Speakers)
	if err != nil {
		return nil, nil, err
	}

	s, events, err := h.manager.Start(ctx, session.StartRequest{
		Topic:              req.Topic,
		Speakers:           speakers,
		MaxTurns:           req.MaxTurns,
		ModeratorCadence:   req.ModeratorCadence,
		TerminationMarkers: req.TerminationMarkers,
	})
	if err != nil {
		return nil, nil, err
	}

	h.logger.Info("discussion started",
		zap.String("session_id", s.ID()),
		zap.String("topic", req.Topic),
		zap.Int("speakers", len(speakers)),
	)
	return s, events, nil
}

// resolveSpeakers 把请求名册转换为领域发言人，为空时回落到档案库。
func (h *DiscussionHandler) resolveSpeakers(ctx context.Context, reqSpeakers []api.Speaker) ([]*types.Speaker, error) {
	if len(reqSpeakers) > 0 {
		out := make([]*types.Speaker, 0, len(reqSpeakers))
		for _, sp := range reqSpeakers {
			domain := sp.ToDomain()
			if err := persona.Validate(domain); err != nil {
				return nil, err
			}
			out = append(out, domain)
		}
		return out, nil
	}

	if h.store == nil {
		return nil, types.NewError(types.ErrInvalidRequest, "speakers are required")
	}
	stored, err := h.store.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(stored) == 0 {
		return nil, types.NewError(types.ErrInvalidRequest,
			"no speakers given and the persona store is empty")
	}
	return stored, nil
}

// discussionInfo 构造讨论快照。
func (h *DiscussionHandler) discussionInfo(s *dialogue.Session) api.DiscussionInfo {
	roster := s.Roster().Speakers()
	names := make([]string, 0, len(roster))
	for _, sp := range roster {
		names = append(names, sp.Name)
	}
	return api.DiscussionInfo{
		ID:       s.ID(),
		Topic:    s.Topic(),
		State:    string(s.State()),
		Turns:    s.Turns(),
		Speakers: names,
	}
}

// toStreamEvent 把编排事件转换为 API 事件。
func toStreamEvent(ev dialogue.Event) api.StreamEvent {
	return api.StreamEvent{
		Type:        string(ev.Type),
		Turn:        ev.Turn,
		Termination: ev.Termination,
	}
}

// writeWSError 把错误作为一条 WebSocket 消息下发。
func (h *DiscussionHandler) writeWSError(ctx context.Context, conn *websocket.Conn, err error) {
	typed := types.AsError(err)
	if typed == nil {
		typed = types.NewError(types.ErrInternalError, "internal error").WithCause(err)
	}
	payload, merr := json.Marshal(Response{
		Success: false,
		Error: &ErrorInfo{
			Code:      string(typed.Code),
			Message:   typed.Message,
			Retryable: typed.Retryable,
		},
		Timestamp: time.Now(),
	})
	if merr != nil {
		return
	}
	if werr := conn.Write(ctx, websocket.MessageText, payload); werr != nil {
		h.logger.Debug("websocket error write failed", zap.Error(werr))
	}
}
