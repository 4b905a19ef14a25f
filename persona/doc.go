// Package persona 管理可复用的发言人档案（人设）。
//
// 档案是会话名册的原料：一次讨论从档案库挑选主持人与嘉宾，
// 组装成 dialogue.Roster。包提供两种持久化后端：
//   - FileStore：单个 JSON 文件，适合本地与单机部署
//   - GormStore：SQLite（纯 Go 驱动），适合需要并发读写的服务部署
//
// 两种后端共享 Store 接口，并内置一组默认电台圆桌档案。
package persona
