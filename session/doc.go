// Package session 管理讨论会话的生命周期。
//
// Manager 是会话注册表：创建会话并启动编排、维护运行中与已结束
// 会话的索引、支持单会话取消与整体优雅关闭。每个会话由独立的
// 编排循环驱动，Manager 只做登记与生命周期控制，不触碰会话语义。
package session
