package api

import (
	"time"

	"github.com/BaSui01/paneltalk/types"
)

// =============================================================================
// 📦 统一响应信封
// =============================================================================

// Response 统一 API 响应结构
type Response struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *ErrorInfo  `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	RequestID string      `json:"request_id,omitempty"`
}

// ErrorInfo 错误信息结构
type ErrorInfo struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   string `json:"details,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
	// HTTPStatus 不序列化到 JSON
	HTTPStatus int `json:"-"`
}

// =============================================================================
// 🎤 发言人类型
// =============================================================================

// Speaker 表示讨论的一位发言人。
// @Description 发言人结构
type Speaker struct {
	// 唯一名称（名册内不可重复）
	Name string `json:"name" example:"Host" binding:"required"`
	// 展示名称，为空时使用 Name
	DisplayName string `json:"display_name,omitempty" example:"The Host"`
	// 角色（moderator 或 participant）
	Role string `json:"role" example:"moderator" binding:"required"`
	// 人设指令，注入生成器的系统提示
	Instructions string `json:"instructions,omitempty"`
	// 定向邀请关键词
	Keywords []string `json:"keywords,omitempty"`
}

// ToDomain 转换为领域发言人。
func (s Speaker) ToDomain() *types.Speaker {
	return &types.Speaker{
		Name:         s.Name,
		DisplayName:  s.DisplayName,
		Role:         types.Role(s.Role),
		Instructions: s.Instructions,
		Keywords:     s.Keywords,
	}
}

// SpeakerFromDomain 从领域发言人构造 API 表示。
func SpeakerFromDomain(sp *types.Speaker) Speaker {
	return Speaker{
		Name:         sp.Name,
		DisplayName:  sp.DisplayName,
		Role:         string(sp.Role),
		Instructions: sp.Instructions,
		Keywords:     sp.Keywords,
	}
}

// SpeakerListResponse 表示发言人档案列表。
// @Description 发言人档案列表响应
type SpeakerListResponse struct {
	Speakers []Speaker `json:"speakers"`
}

// =============================================================================
// 💬 讨论类型
// =============================================================================

// StartDiscussionRequest 表示发起一场讨论的请求。
// @Description 发起讨论请求结构
type StartDiscussionRequest struct {
	// 讨论主题
	Topic string `json:"topic" example:"The future of urban transport" binding:"required"`
	// 名册；为空时使用档案库的全部档案
	Speakers []Speaker `json:"speakers,omitempty"`
	// 成功轮次预算，0 表示使用服务端默认值
	MaxTurns int `json:"max_turns,omitempty" example:"12"`
	// 主持人节奏阈值，0 表示使用服务端默认值
	ModeratorCadence int `json:"moderator_cadence,omitempty" example:"3"`
	// 终止标记子串集合，为空时使用服务端默认值
	TerminationMarkers []string `json:"termination_markers,omitempty"`
}

// DiscussionInfo 表示一场讨论的快照。
// @Description 讨论信息结构
type DiscussionInfo struct {
	// 会话 ID
	ID string `json:"id" example:"6d3f0a2c-7b1e-4d0f-9c7a-2f8e5b1a9d42"`
	// 讨论主题
	Topic string `json:"topic"`
	// 会话状态（idle、running、completed、failed、budget_exhausted）
	State string `json:"state" example:"running"`
	// 已完成的成功轮次数
	Turns int `json:"turns" example:"4"`
	// 名册中的发言人名称
	Speakers []string `json:"speakers"`
}

// DiscussionListResponse 表示讨论列表。
// @Description 讨论列表响应
type DiscussionListResponse struct {
	Discussions []DiscussionInfo `json:"discussions"`
}

// Utterance 表示会话记录里的一条发言。
// @Description 发言结构
type Utterance struct {
	// 发言人名称（序号 0 固定为 user）
	Speaker string `json:"speaker" example:"Engineer"`
	// 发言内容
	Content string `json:"content"`
	// 间隙无缺的序号，0 是主题条目
	Seq int `json:"sequence_number" example:"3"`
	// 发言时间戳
	Timestamp time.Time `json:"timestamp"`
}

// TranscriptResponse 表示一场讨论的完整记录。
// @Description 会话记录响应
type TranscriptResponse struct {
	ID         string      `json:"id"`
	Topic      string      `json:"topic"`
	State      string      `json:"state"`
	Utterances []Utterance `json:"utterances"`
}

// =============================================================================
// 📡 事件类型
// =============================================================================

// StreamEvent 表示事件流的一个元素，经 SSE 或 WebSocket 下发。
// Type 决定哪个负载字段非空；termination 事件恰好出现一次且总在最后。
// @Description 流式事件结构
type StreamEvent struct {
	// 事件类型（turn 或 termination）
	Type string `json:"type" example:"turn"`
	// 轮次负载
	Turn *types.TurnEvent `json:"turn,omitempty"`
	// 终止负载
	Termination *types.TerminationEvent `json:"termination,omitempty"`
}
