package ollama

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"pixname-server-go/src/core/errs"
	"pixname-server-go/src/core/image"
	"pixname-server-go/src/core/providers/caption"
	"pixname-server-go/src/core/utils"
)

// Provider Ollama风格的视觉描述提供者，直接构造/api/chat报文
type Provider struct {
	config     *caption.Config
	logger     *utils.Logger
	httpClient *http.Client
}

// 注册提供者
func init() {
	caption.Register("ollama", NewProvider)
}

// NewProvider 创建Ollama提供者
func NewProvider(config *caption.Config, logger *utils.Logger) (caption.Provider, error) {
	return &Provider{
		config: config,
		logger: logger,
		// 墙钟超时由请求引擎通过context控制
		httpClient: &http.Client{},
	}, nil
}

// Initialize 初始化提供者
func (p *Provider) Initialize() error {
	if p.config.BaseURL == "" {
		p.config.BaseURL = "http://localhost:11434" // 默认Ollama地址
	}
	return nil
}

// ChatRequest Ollama API请求结构
type ChatRequest struct {
	Model    string                 `json:"model"`
	Messages []ChatMessage          `json:"messages"`
	Stream   bool                   `json:"stream"`
	Format   string                 `json:"format,omitempty"`
	Options  map[string]interface{} `json:"options,omitempty"`
}

// ChatMessage Ollama消息结构
type ChatMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"` // base64编码的图片
}

// ChatResponse Ollama API响应结构
type ChatResponse struct {
	Model   string `json:"model"`
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done bool `json:"done"`
}

// Generate 发起一次多模态请求，返回模型的原始JSON文本
func (p *Provider) Generate(ctx context.Context, payload image.EncodedPayload, prompt string) (string, error) {
	request := ChatRequest{
		Model: p.config.Model,
		Messages: []ChatMessage{
			{
				Role:    "user",
				Content: prompt,
				// Ollama需要纯base64，不带data URL前缀
				Images: []string{base64.StdEncoding.EncodeToString(payload.Data)},
			},
		},
		Stream: false,
		Format: "json",
		Options: map[string]interface{}{
			"temperature": 0.4,
		},
	}

	requestBody, err := json.Marshal(request)
	if err != nil {
		return "", errs.Wrap(errs.KindNetwork, "ollama", "请求序列化失败", err)
	}

	url := fmt.Sprintf("%s/api/chat", strings.TrimSuffix(p.config.BaseURL, "/"))
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(requestBody))
	if err != nil {
		return "", errs.Wrap(errs.KindNetwork, "ollama", "创建请求失败", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if p.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", errs.Wrap(errs.KindTimeout, "ollama", "请求超时", err)
		}
		if errors.Is(err, context.Canceled) {
			return "", err
		}
		return "", errs.Wrap(errs.KindNetwork, "ollama", "请求失败", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", classifyStatus(resp.StatusCode, string(body))
	}

	var response ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", errs.Wrap(errs.KindSchema, "ollama", "解析响应失败", err)
	}

	return response.Message.Content, nil
}

// classifyStatus 按HTTP状态码归类错误
func classifyStatus(status int, body string) error {
	msg := fmt.Sprintf("HTTP %d: %s", status, strings.TrimSpace(body))
	switch {
	case status == 401:
		return errs.New(errs.KindAuth, "ollama", msg)
	case status == 429:
		return errs.New(errs.KindRateLimit, "ollama", msg)
	case status == 404:
		// Ollama对未拉取的模型返回404
		return errs.New(errs.KindModel, "ollama", msg)
	case status >= 500:
		return errs.New(errs.KindNetwork, "ollama", msg)
	default:
		return errs.New(errs.KindNetwork, "ollama", msg)
	}
}
