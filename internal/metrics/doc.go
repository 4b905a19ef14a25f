// Copyright (c) PanelTalk Authors.
// Licensed under the MIT License.

/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖 HTTP、
讨论会话、发言轮次与档案存储四个维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
自动注册机制，避免手动管理 Registry。所有指标按 namespace 隔离，
支持多维度 label 分组，便于 Grafana 等工具进行可视化与告警。

# 核心类型

  - Collector：指标收集器，持有 Counter、Histogram、Gauge 等
    Prometheus 向量指标，按业务域分组管理。同时实现
    dialogue.Observer，可直接挂到 session.Manager 上接收
    轮次与终止回调。

# 主要能力

  - HTTP 指标：请求总数、请求耗时、请求/响应体大小，
    按 method/path/status 分组，状态码归类为 2xx/3xx/4xx/5xx。
  - 会话指标：活跃会话数 Gauge、终止总数（按终止原因分组）、
    每场讨论的最终轮次分布。
  - 轮次指标：完成轮次总数、生成耗时、生成失败计数，
    按 speaker 分组。
  - 档案存储指标：活跃/空闲连接数 Gauge，按 backend 分组。
*/
package metrics
