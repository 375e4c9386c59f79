package caption

import (
	"context"
	"fmt"

	"pixname-server-go/src/core/backend"
	"pixname-server-go/src/core/image"
	"pixname-server-go/src/core/utils"
)

// Config 提供者配置，由后端画像转换而来
type Config struct {
	BaseURL string
	Model   string
	APIKey  string
}

// Provider 视觉描述提供者接口。
// Generate 返回模型的原始JSON文本，结构校验由请求引擎负责。
type Provider interface {
	Initialize() error
	Generate(ctx context.Context, payload image.EncodedPayload, prompt string) (string, error)
}

// Factory 提供者工厂函数类型
type Factory func(config *Config, logger *utils.Logger) (Provider, error)

// CreateFunc 按后端画像创建提供者的函数签名，便于测试替换
type CreateFunc func(profile backend.Profile, logger *utils.Logger) (Provider, error)

var (
	factories = make(map[string]Factory)
)

// Register 注册提供者工厂
func Register(name string, factory Factory) {
	factories[name] = factory
}

// shapeToProvider 报文形态到提供者名称的映射
var shapeToProvider = map[backend.RequestShape]string{
	backend.ShapeCloud: "openai",
	backend.ShapeChat:  "ollama",
}

// Create 按后端画像创建提供者实例
func Create(profile backend.Profile, logger *utils.Logger) (Provider, error) {
	name, ok := shapeToProvider[profile.Shape]
	if !ok {
		return nil, fmt.Errorf("未知的请求形态: %s", profile.Shape)
	}

	factory, ok := factories[name]
	if !ok {
		return nil, fmt.Errorf("未注册的提供者: %s", name)
	}

	config := &Config{
		BaseURL: profile.TargetBaseURL(),
		Model:   profile.Model,
		APIKey:  profile.APIKey,
	}

	provider, err := factory(config, logger)
	if err != nil {
		return nil, fmt.Errorf("创建提供者失败: %v", err)
	}

	if err := provider.Initialize(); err != nil {
		return nil, fmt.Errorf("初始化提供者失败: %v", err)
	}

	return provider, nil
}

// GetRegisteredProviders 获取已注册的提供者列表
func GetRegisteredProviders() []string {
	var providers []string
	for name := range factories {
		providers = append(providers, name)
	}
	return providers
}
