// =============================================================================
// 📦 PanelTalk 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Dialogue:  DefaultDialogueConfig(),
		LLM:       DefaultLLMConfig(),
		Persona:   DefaultPersonaConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    0, // SSE 长连接不设写超时
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    100,
		RateLimitBurst:  200,
	}
}

// DefaultDialogueConfig 返回默认讨论编排配置
func DefaultDialogueConfig() DialogueConfig {
	return DialogueConfig{
		MaxTurns:               12,
		ModeratorCadence:       3,
		TerminationMarkers:     []string{"TERMINATE"},
		PerTurnTimeout:         30 * time.Second,
		GenerationRetryCeiling: 2,
		MaxConcurrentSessions:  32,
		SessionShutdownTimeout: 30 * time.Second,
	}
}

// DefaultLLMConfig 返回默认 LLM 配置
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		BaseURL:       "https://api.openai.com",
		Model:         "gpt-4o-mini",
		Temperature:   0.7,
		MaxTokens:     512,
		Timeout:       60 * time.Second,
		ContextBudget: 8192,
	}
}

// DefaultPersonaConfig 返回默认档案库配置
func DefaultPersonaConfig() PersonaConfig {
	return PersonaConfig{
		Backend:      "file",
		Path:         "personas.json",
		SeedDefaults: true,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "paneltalk",
		SampleRate:   1.0,
	}
}
