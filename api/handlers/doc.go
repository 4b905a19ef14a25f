// Copyright (c) PanelTalk Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 PanelTalk HTTP API 的请求处理器实现。

# 概述

handlers 包实现了 PanelTalk 所有 HTTP 端点的请求处理逻辑，
包括讨论的发起与流式推送、发言人档案管理、健康检查以及统一的
响应/错误处理。所有 Handler 均遵循标准 net/http 接口，
通过 Swagger 注解生成 API 文档。

# 核心类型

  - DiscussionHandler — 讨论生命周期：发起、SSE/WebSocket 流式、
    列表、查询、会话记录、取消
  - SpeakerHandler    — 发言人档案 CRUD
  - HealthHandler     — 服务健康检查（/health, /healthz, /ready）
  - Response          — 统一 JSON 响应结构（success + data + error + timestamp）
  - ErrorInfo         — 结构化错误信息，含 code、message、retryable 标记
  - ResponseWriter    — 包装 http.ResponseWriter 以捕获状态码
  - HealthCheck       — 可插拔健康检查接口（数据库、档案库等）

# 主要能力

  - 统一响应格式：WriteSuccess / WriteError / WriteJSON 辅助函数
  - 请求验证：DecodeJSONBody（1 MB 限制 + 严格模式）、ValidateContentType
  - ErrorCode → HTTP 状态码自动映射（4xx/5xx）
  - SSE 流式输出：DiscussionHandler.HandleStream 支持 text/event-stream，
    终止事件后以 [DONE] 收尾
  - WebSocket 流式输出：DiscussionHandler.HandleWebSocket，
    首条消息为发起请求，随后逐条推送事件
  - 可扩展健康检查：RegisterCheck 注册自定义 HealthCheck 实现
*/
package handlers
