package openrouter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"nutrition-resolver/internal/infrastructure/config"
	"nutrition-resolver/internal/pkg/common"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const (
	defaultBaseURL  = "https://openrouter.ai/api/v1"
	maxLoggedBody   = 512
	jsonContentType = "application/json"
)

// ErrEmptyContent 回應沒有內容
var ErrEmptyContent = errors.New("empty content in OpenRouter response")

// Client OpenRouter API 客戶端
type Client struct {
	client    *resty.Client
	model     string
	maxTokens int
}

// Message 消息結構
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// JSONSchema 結構化輸出的 schema
type JSONSchema struct {
	Name   string                 `json:"name"`
	Strict bool                   `json:"strict"`
	Schema map[string]interface{} `json:"schema"`
}

// ResponseFormat 指定輸出格式
type ResponseFormat struct {
	Type       string      `json:"type"`
	JSONSchema *JSONSchema `json:"json_schema,omitempty"`
}

// Request 表示 API 請求
type Request struct {
	Messages       []Message       `json:"messages"`
	Model          string          `json:"model,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
}

// Response OpenRouter 響應結構
type Response struct {
	ID      string    `json:"id"`
	Model   string    `json:"model"`
	Choices []Choice  `json:"choices"`
	Usage   UsageInfo `json:"usage"`
}

// Choice 選擇結構
type Choice struct {
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// UsageInfo 使用量信息
type UsageInfo struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Error 表示 API 錯誤
type Error struct {
	Error struct {
		Message string      `json:"message"`
		Type    string      `json:"type"`
		Code    interface{} `json:"code"`
	} `json:"error"`
}

// NewClient 創建新的 OpenRouter 客戶端；逾時由呼叫端的 context 控制
func NewClient(cfg *config.OpenRouterConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Authorization", fmt.Sprintf("Bearer %s", cfg.APIKey)).
		SetHeader("Content-Type", jsonContentType).
		SetHeader("HTTP-Referer", "https://nutrition-resolver.local").
		SetHeader("X-Title", "Nutrition Resolver")

	return &Client{
		client:    client,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
	}
}

// CompleteJSON 以固定 JSON schema 請求結構化輸出，回傳 JSON 物件字串
func (c *Client) CompleteJSON(ctx context.Context, system, prompt string, schema *JSONSchema) (string, error) {
	req := &Request{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		Temperature: 0,
		Messages: []Message{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
		ResponseFormat: &ResponseFormat{Type: "json_schema", JSONSchema: schema},
	}

	resp, err := c.Generate(ctx, req)
	if err != nil {
		return "", err
	}

	content := common.ExtractJSONObject(resp.Choices[0].Message.Content)
	if !strings.HasPrefix(content, "{") {
		return "", fmt.Errorf("no JSON object in response: %w", ErrEmptyContent)
	}
	return content, nil
}

// Generate 發送 chat completion 請求
func (c *Client) Generate(ctx context.Context, req *Request) (*Response, error) {
	if req.Model == "" {
		req.Model = c.model
	}

	common.LogDebug("Sending request to OpenRouter",
		zap.String("model", req.Model),
		zap.Int("messages", len(req.Messages)),
	)

	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(req).
		Post("/chat/completions")
	if err != nil {
		return nil, fmt.Errorf("failed to send request to OpenRouter: %w", err)
	}

	body := resp.Body()
	if resp.StatusCode() != http.StatusOK {
		var apiErr Error
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
			return nil, fmt.Errorf("OpenRouter API error (status %d): %s", resp.StatusCode(), apiErr.Error.Message)
		}
		return nil, fmt.Errorf("OpenRouter API error (status %d): %s", resp.StatusCode(), truncateBody(body))
	}

	var response Response
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to parse OpenRouter response: %w", err)
	}

	if len(response.Choices) == 0 {
		return nil, fmt.Errorf("no choices in OpenRouter response: %w", ErrEmptyContent)
	}
	if strings.TrimSpace(response.Choices[0].Message.Content) == "" {
		return nil, ErrEmptyContent
	}

	common.LogDebug("OpenRouter response received",
		zap.String("model", req.Model),
		zap.Int("total_tokens", response.Usage.TotalTokens),
	)

	return &response, nil
}

// truncateBody 截斷回應內容以便記錄
func truncateBody(body []byte) string {
	s := string(body)
	if len(s) > maxLoggedBody {
		return s[:maxLoggedBody] + "...(truncated)"
	}
	return s
}
