package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"pixname-server-go/src/configs"
	"pixname-server-go/src/core/backend"
	"pixname-server-go/src/core/errs"
	"pixname-server-go/src/core/image"
	"pixname-server-go/src/core/providers/caption"
	"pixname-server-go/src/core/utils"
)

// Prompt 固定的取名指令，要求结构化输出
const Prompt = `You are naming an image file inside a note-taking vault. ` +
	`Look at the image and produce 3 caption variants, each 2-5 words, ` +
	`suitable as a filename. Order them best first. ` +
	`Respond with JSON only: {"captions": ["...", "...", "..."]}`

const (
	// MinCandidates 每次请求最少候选数
	MinCandidates = 1
	// MaxCandidates 每次请求最多候选数
	MaxCandidates = 5
	// MaxCaptionLen 单个候选的最大长度
	MaxCaptionLen = 50
)

// Policy 一次请求的重试与超时策略
type Policy struct {
	MaxRetries  int
	Timeout     time.Duration
	BackoffBase time.Duration
	BackoffCap  time.Duration
}

// PolicyFromSettings 从持久化设置构造策略
func PolicyFromSettings(settings configs.RenameSettings) Policy {
	return Policy{
		MaxRetries:  settings.MaxRetries,
		Timeout:     time.Duration(settings.TimeoutMs) * time.Millisecond,
		BackoffBase: time.Second,
		BackoffCap:  10 * time.Second,
	}
}

// Backoff 第n次重试前的等待时长: min(base*2^n, cap)
func (p Policy) Backoff(attempt int) time.Duration {
	base := p.BackoffBase
	if base <= 0 {
		base = time.Second
	}
	ceiling := p.BackoffCap
	if ceiling <= 0 {
		ceiling = 10 * time.Second
	}

	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= ceiling {
			return ceiling
		}
	}
	if delay > ceiling {
		return ceiling
	}
	return delay
}

// Engine 图片描述请求引擎：超时、重试与响应校验
type Engine struct {
	logger *utils.Logger
	create caption.CreateFunc
}

// NewEngine 创建请求引擎
func NewEngine(logger *utils.Logger) *Engine {
	return &Engine{
		logger: logger,
		create: caption.Create,
	}
}

// NewEngineWithCreate 使用自定义提供者构造函数，测试用
func NewEngineWithCreate(logger *utils.Logger, create caption.CreateFunc) *Engine {
	return &Engine{
		logger: logger,
		create: create,
	}
}

// candidatePayload 结构化输出的载荷
type candidatePayload struct {
	Captions []string `json:"captions"`
}

// RequestCaptions 发起描述请求并返回有序候选列表。
// 可重试错误（超时、结构校验失败、5xx）在预算内自动重试，
// 认证、限流和模型错误立即上报，不消耗重试预算。
func (e *Engine) RequestCaptions(ctx context.Context, payload image.EncodedPayload, profile backend.Profile, policy Policy) ([]string, error) {
	if policy.MaxRetries < 1 {
		policy.MaxRetries = 1
	}

	provider, err := e.create(profile, e.logger)
	if err != nil {
		return nil, errs.Wrap(errs.KindConfig, "engine", "创建提供者失败", err)
	}

	var lastErr error
	for attempt := 0; attempt < policy.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := policy.Backoff(attempt - 1)
			e.logger.Info("等待后重试描述请求", map[string]interface{}{
				"attempt":  attempt + 1,
				"delay_ms": delay.Milliseconds(),
			})
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		captions, err := e.attempt(ctx, provider, payload, policy.Timeout)
		if err == nil {
			return captions, nil
		}
		if ctx.Err() != nil {
			// 调用方主动取消，立即停止
			return nil, ctx.Err()
		}
		if !errs.Retryable(err) {
			return nil, err
		}

		lastErr = err
		e.logger.Warn("描述请求失败，将重试", map[string]interface{}{
			"attempt": attempt + 1,
			"kind":    string(errs.KindOf(err)),
			"error":   err.Error(),
		})
	}

	return nil, lastErr
}

// attempt 单次请求：墙钟超时内完成网络调用与结构校验
func (e *Engine) attempt(ctx context.Context, provider caption.Provider, payload image.EncodedPayload, timeout time.Duration) ([]string, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	raw, err := provider.Generate(callCtx, payload, Prompt)
	if err != nil {
		return nil, err
	}

	return ValidateCandidates(raw)
}

// ValidateCandidates 按结构化输出约定校验原始响应。
// 任何违例都是schema类错误，对引擎而言立即可重试。
func ValidateCandidates(raw string) ([]string, error) {
	var parsed candidatePayload
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &parsed); err != nil {
		return nil, errs.Wrap(errs.KindSchema, "engine", "响应不是合法JSON", err)
	}

	if len(parsed.Captions) < MinCandidates || len(parsed.Captions) > MaxCandidates {
		return nil, errs.New(errs.KindSchema, "engine",
			fmt.Sprintf("候选数量越界: %d", len(parsed.Captions)))
	}

	candidates := make([]string, 0, len(parsed.Captions))
	for _, c := range parsed.Captions {
		cleaned := utils.CleanCaption(c)
		if cleaned == "" || len([]rune(cleaned)) > MaxCaptionLen {
			return nil, errs.New(errs.KindSchema, "engine",
				fmt.Sprintf("候选长度越界: %q", c))
		}
		candidates = append(candidates, cleaned)
	}

	return candidates, nil
}
