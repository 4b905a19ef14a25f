package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/paneltalk/internal/tlsutil"
	"github.com/BaSui01/paneltalk/types"
)

// Config 是 OpenAI 兼容生成器的配置。
type Config struct {
	// BaseURL 形如 "https://api.openai.com"。
	BaseURL string `yaml:"base_url" json:"base_url"`
	// APIKey 是 Bearer 凭证。
	APIKey string `yaml:"api_key" json:"api_key"`
	// Model 是补全所用的模型名。
	Model string `yaml:"model" json:"model"`
	// Temperature 为 0 时不下发该字段，走服务端默认。
	Temperature float64 `yaml:"temperature" json:"temperature"`
	// MaxTokens 限制单条回复长度，0 表示不限。
	MaxTokens int `yaml:"max_tokens" json:"max_tokens"`
	// Timeout 是 HTTP 客户端超时，0 时取 60s。
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
	// ContextBudget 是送入模型的会话记录 token 预算，0 表示不裁剪。
	ContextBudget int `yaml:"context_budget" json:"context_budget"`
}

// Client 对接 OpenAI 兼容的 chat completions 接口，实现 dialogue.Generator。
// 一个 Client 服务一场讨论：panel 是本场全部发言人名单，用于系统提示。
type Client struct {
	cfg       Config
	panel     []string
	client    *http.Client
	truncator *Truncator
	logger    *zap.Logger
}

// NewClient 创建生成器客户端。speakers 是本场讨论的完整名册。
func NewClient(cfg Config, speakers []*types.Speaker, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	panel := make([]string, 0, len(speakers))
	for _, sp := range speakers {
		panel = append(panel, sp.Name)
	}

	return &Client{
		cfg:       cfg,
		panel:     panel,
		client:    tlsutil.SecureHTTPClient(timeout),
		truncator: NewTruncator(cfg.ContextBudget),
		logger:    logger.With(zap.String("component", "openai_generator")),
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Generate 为 speaker 发起一次非流式补全。
func (c *Client) Generate(ctx context.Context, speaker *types.Speaker, transcript []types.Utterance) (string, error) {
	msgs := buildMessages(speaker, c.panel, c.truncator.Truncate(transcript))

	body := chatRequest{
		Model:       c.cfg.Model,
		Messages:    msgs,
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/v1/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create chat request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", types.NewError(types.ErrUpstreamError, err.Error()).
			WithHTTPStatus(http.StatusBadGateway).
			WithRetryable(true).
			WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", mapHTTPError(resp.StatusCode, readErrorMessage(resp.Body))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", types.NewError(types.ErrUpstreamError, "decode chat response: "+err.Error()).
			WithRetryable(true).
			WithCause(err)
	}
	if out.Error != nil {
		return "", types.NewError(types.ErrUpstreamError, out.Error.Message).WithRetryable(true)
	}
	if len(out.Choices) == 0 {
		return "", types.NewError(types.ErrUpstreamError, "chat response has no choices").WithRetryable(true)
	}

	content := strings.TrimSpace(out.Choices[0].Message.Content)
	c.logger.Debug("completion finished",
		zap.String("speaker", speaker.Name),
		zap.String("model", c.cfg.Model),
		zap.Int("messages", len(msgs)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return content, nil
}

// readErrorMessage 尽力从错误响应体里取出可读信息。
func readErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(data) == 0 {
		return ""
	}
	var parsed struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(data, &parsed) == nil && parsed.Error.Message != "" {
		return parsed.Error.Message
	}
	return strings.TrimSpace(string(data))
}

// mapHTTPError 把上游状态码映射到统一错误码。
func mapHTTPError(status int, msg string) error {
	if msg == "" {
		msg = http.StatusText(status)
	}
	switch {
	case status == http.StatusTooManyRequests:
		return types.NewError(types.ErrRateLimited, msg).
			WithHTTPStatus(status).WithRetryable(true)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return types.NewError(types.ErrProviderUnavailable, msg).WithHTTPStatus(status)
	case status >= 500:
		return types.NewError(types.ErrUpstreamError, msg).
			WithHTTPStatus(status).WithRetryable(true)
	default:
		return types.NewError(types.ErrInvalidRequest, msg).WithHTTPStatus(status)
	}
}
