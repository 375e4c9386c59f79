package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"pixname-server-go/src/core/errs"
	"pixname-server-go/src/core/image"
	"pixname-server-go/src/core/providers/caption"
	"pixname-server-go/src/core/utils"

	"github.com/sashabaranov/go-openai"
)

// Provider OpenAI风格的视觉描述提供者，兼容所有/chat/completions端点
type Provider struct {
	config *caption.Config
	logger *utils.Logger
	client *openai.Client
}

// 注册提供者
func init() {
	caption.Register("openai", NewProvider)
}

// NewProvider 创建OpenAI提供者
func NewProvider(config *caption.Config, logger *utils.Logger) (caption.Provider, error) {
	return &Provider{
		config: config,
		logger: logger,
	}, nil
}

// Initialize 初始化客户端
func (p *Provider) Initialize() error {
	apiKey := p.config.APIKey
	if apiKey == "" {
		// 本地的cloud-style服务（LM Studio、LocalAI）不校验密钥，但客户端需要一个值
		apiKey = "local"
	}

	clientConfig := openai.DefaultConfig(apiKey)
	if p.config.BaseURL != "" {
		clientConfig.BaseURL = p.config.BaseURL
	}
	p.client = openai.NewClientWithConfig(clientConfig)
	return nil
}

// captionSchema 结构化输出约定：1-5个短字符串
var captionSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"captions": {
			"type": "array",
			"minItems": 1,
			"maxItems": 5,
			"items": {"type": "string"}
		}
	},
	"required": ["captions"],
	"additionalProperties": false
}`)

// Generate 发起一次多模态请求，返回模型的原始JSON文本
func (p *Provider) Generate(ctx context.Context, payload image.EncodedPayload, prompt string) (string, error) {
	dataURL := fmt.Sprintf("data:%s;base64,%s", payload.MIME, base64.StdEncoding.EncodeToString(payload.Data))

	visionMessage := openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser,
		MultiContent: []openai.ChatMessagePart{
			{
				Type: openai.ChatMessagePartTypeText,
				Text: prompt,
			},
			{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL: dataURL,
				},
			},
		},
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     p.config.Model,
		Messages:  []openai.ChatCompletionMessage{visionMessage},
		MaxTokens: 256,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "caption_candidates",
				Schema: captionSchema,
				Strict: true,
			},
		},
	})
	if err != nil {
		return "", classify(err)
	}

	if len(resp.Choices) == 0 {
		return "", errs.New(errs.KindSchema, "openai", "响应中没有choices")
	}

	return resp.Choices[0].Message.Content, nil
}

// classify 按HTTP状态码归类错误
func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return errs.Wrap(errs.KindTimeout, "openai", "请求超时", err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	var status int
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	if errors.As(err, &apiErr) {
		status = apiErr.HTTPStatusCode
		if code, ok := apiErr.Code.(string); ok && code == "model_not_found" {
			return errs.Wrap(errs.KindModel, "openai", "模型标识无法识别", err)
		}
	} else if errors.As(err, &reqErr) {
		status = reqErr.HTTPStatusCode
	}

	switch {
	case status == 401:
		return errs.Wrap(errs.KindAuth, "openai", "认证失败", err)
	case status == 429:
		return errs.Wrap(errs.KindRateLimit, "openai", "触发限流", err)
	case status == 404:
		return errs.Wrap(errs.KindModel, "openai", "模型或端点不存在", err)
	case status >= 500:
		return errs.Wrap(errs.KindNetwork, "openai", fmt.Sprintf("服务端错误: %d", status), err)
	default:
		// 连接重置等无状态码的传输错误
		return errs.Wrap(errs.KindNetwork, "openai", "请求失败", err)
	}
}
