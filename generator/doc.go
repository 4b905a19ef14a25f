// Package generator 提供 dialogue.Generator 的具体实现。
//
// Client 对接 OpenAI 兼容的 chat completions 接口：把会话记录展平成
// 聊天消息（本人历史为 assistant，他人发言带署名作为 user），按 token
// 预算裁剪后发起一次非流式补全。Static 是离线实现，无需网络即可
// 演示完整的编排流程。
package generator
