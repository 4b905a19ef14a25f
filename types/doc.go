// Copyright (c) PanelTalk Authors.
// Licensed under the MIT License.

/*
Package types 提供 PanelTalk 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 dialogue、persona、generator、
session、api 等上层模块提供统一的类型契约。所有跨包共享的结构体、枚举和
错误码均定义于此，以避免循环依赖。

# 核心类型

  - Speaker           — 对话参与者（名称、显示名、角色、人设指令、邀请关键词）
  - Utterance         — 单轮发言（发言者、内容、序号、时间戳）
  - TurnEvent         — 对外发布的轮次事件
  - TerminationEvent  — 会话终止事件（原因 + 最终轮数）
  - Error / ErrorCode — 结构化错误体系，含 HTTP 状态码与 Retryable 标记

# 主要能力

  - 错误工具链：AsError / IsErrorCode / IsRetryable
  - 常用错误构造：NewGenerationFailure / NewRosterTooSmallError 等
*/
package types
