// Package config 提供 PanelTalk 的统一配置管理。
//
// 配置来源与优先级：默认值 → YAML 文件 → 环境变量（PANELTALK 前缀）。
//
// 基本用法：
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    Load()
//
// 包内还提供：
//   - HotReloadManager：配置热重载，支持字段级更新、变更审计、
//     验证钩子与自动回滚
//   - FileWatcher：基于轮询的配置文件监视
//   - ConfigAPIHandler：配置管理 HTTP API（查询、更新、热重载、变更历史）
//
// 可热重载字段见 hotReloadableFields 注册表；未注册的字段变更
// 一律视为需要重启。
package config
