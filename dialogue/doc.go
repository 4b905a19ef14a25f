/*
Package dialogue 实现多人轮流对话的编排引擎。

# 概述

dialogue 是 PanelTalk 的核心：给定一个话题和一组发言人（可含一名主持人），
按确定性规则逐轮选择发言人、调用发言生成器、维护追加式会话记录，并向外
发布有序、去重后的事件流。

# 组成

  - Roster      — 会话发言人名册，创建时校验（≥2 人、名称唯一）
  - Transcript  — 追加式会话记录，话题为第 0 轮（由合成 user 发言人撰写）
  - Termination — 纯函数终止判定（轮次预算 / 终止标记）
  - Selector    — 有序规则的发言人选择策略（bootstrap → user-handoff →
    targeted invitation → cadence → unconstrained）
  - Executor    — 单轮执行：调用生成器、失败分类、成功时追加记录
  - Orchestrator — 驱动循环与状态机（Idle → Running → 终态），事件发布
    时应用去重策略，流必定以唯一一条终止事件结尾

# 并发模型

每个会话的编排循环严格串行：第 n+1 轮在第 n 轮的发言完全追加之前不会开始。
多个会话之间无共享可变状态，可并发运行。事件发布是有序交接，慢消费者会
使循环阻塞而非乱序或丢弃。
*/
package dialogue
