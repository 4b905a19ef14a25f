// Package api defines the HTTP API surface of PanelTalk.
//
// This package contains the request/response DTOs shared by the HTTP
// handlers and the configuration management API.
//
// # API Overview
//
// PanelTalk provides a RESTful API for:
//   - Starting multi-party panel discussions and streaming their turns
//     over SSE or WebSocket
//   - Inspecting and cancelling running discussions
//   - Managing speaker persona profiles
//   - Configuration management and hot reload
//   - Health monitoring and metrics
//
// # Authentication
//
// When API keys are configured, endpoints require the X-API-Key header:
//
//	X-API-Key: your-api-key
//
// # Base URL
//
// The default base URL for the API is:
//
//	http://localhost:8080
//
// # Response Envelope
//
// All non-streaming endpoints reply with the unified Response envelope:
//
//	{"success": true, "data": {...}, "timestamp": "..."}
//	{"success": false, "error": {"code": "...", "message": "..."}, ...}
//
// Streaming endpoints emit StreamEvent payloads; the termination event is
// always the last element of a stream.
package api
