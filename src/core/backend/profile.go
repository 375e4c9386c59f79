package backend

import (
	"fmt"
	"net/url"
	"strings"

	"pixname-server-go/src/configs"
	"pixname-server-go/src/core/errs"
)

// Kind 后端种类
type Kind string

const (
	KindCloud       Kind = "cloud"
	KindLocalPreset Kind = "local-preset"
	KindLocalCustom Kind = "local-custom"
)

// RequestShape 请求报文形态
type RequestShape string

const (
	// ShapeCloud OpenAI风格 /chat/completions 报文
	ShapeCloud RequestShape = "cloud-style"
	// ShapeChat Ollama风格 /api/chat 报文
	ShapeChat RequestShape = "chat-style"
)

// Capabilities 运行环境能力
type Capabilities struct {
	// LocalAllowed 受限环境（如移动端）下为false，强制走云端
	LocalAllowed bool
}

// Profile 一次请求使用的后端画像
type Profile struct {
	Kind    Kind
	Shape   RequestShape
	BaseURL string
	Model   string
	APIKey  string
}

// preset 预设本地推理服务
type preset struct {
	baseURL string
	shape   RequestShape
}

var presets = map[configs.LocalPreset]preset{
	configs.PresetOllama:   {baseURL: "http://localhost:11434", shape: ShapeChat},
	configs.PresetLMStudio: {baseURL: "http://localhost:1234", shape: ShapeCloud},
	configs.PresetLocalAI:  {baseURL: "http://localhost:8080", shape: ShapeCloud},
}

// ResolveProfile 根据持久化设置与环境能力选定后端。
// 本地模式在受限环境下被强制降级为云端，忽略已存的本地字段。
func ResolveProfile(settings configs.RenameSettings, caps Capabilities) (Profile, error) {
	useLocal := settings.UseLocalModel && caps.LocalAllowed

	if !useLocal {
		if settings.CloudAPIKey == "" {
			return Profile{}, errs.New(errs.KindConfig, "backend", "云端模式需要API密钥")
		}
		profile := Profile{
			Kind:    KindCloud,
			Shape:   ShapeCloud,
			BaseURL: NormalizeEndpoint(settings.CloudEndpoint),
			Model:   settings.CloudModel,
			APIKey:  settings.CloudAPIKey,
		}
		return profile, validate(profile)
	}

	if settings.LocalServerPreset != configs.PresetCustom {
		p, ok := presets[settings.LocalServerPreset]
		if !ok {
			return Profile{}, errs.New(errs.KindConfig, "backend",
				fmt.Sprintf("未知的本地预设: %s", settings.LocalServerPreset))
		}
		// 预设模式下忽略存储的自定义端点，模型仍取自设置
		profile := Profile{
			Kind:    KindLocalPreset,
			Shape:   p.shape,
			BaseURL: p.baseURL,
			Model:   settings.LocalModel,
			APIKey:  settings.LocalAPIKey,
		}
		return profile, validate(profile)
	}

	profile := Profile{
		Kind:    KindLocalCustom,
		Shape:   shapeForEndpoint(settings.LocalEndpoint),
		BaseURL: NormalizeEndpoint(settings.LocalEndpoint),
		Model:   settings.LocalModel,
		APIKey:  settings.LocalAPIKey,
	}
	return profile, validate(profile)
}

// validate 校验端点必须是可解析的http/https地址
func validate(p Profile) error {
	u, err := url.Parse(p.BaseURL)
	if err != nil {
		return errs.Wrap(errs.KindConfig, "backend", "端点地址无法解析", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errs.New(errs.KindConfig, "backend",
			fmt.Sprintf("端点协议必须为http或https: %s", p.BaseURL))
	}
	if u.Host == "" {
		return errs.New(errs.KindConfig, "backend",
			fmt.Sprintf("端点缺少主机名: %s", p.BaseURL))
	}
	if p.Model == "" {
		return errs.New(errs.KindConfig, "backend", "模型标识不能为空")
	}
	return nil
}

// NormalizeEndpoint 剥离已知的路径后缀得到基础地址。
// 幂等：对已规范化的地址再次调用结果不变。
func NormalizeEndpoint(endpoint string) string {
	base := strings.TrimSpace(endpoint)
	base = strings.TrimSuffix(base, "/")

	for {
		switch {
		case strings.HasSuffix(base, "/chat/completions"):
			base = strings.TrimSuffix(base, "/chat/completions")
		case strings.HasSuffix(base, "/v1"):
			base = strings.TrimSuffix(base, "/v1")
		case strings.HasSuffix(base, "/chat"):
			base = strings.TrimSuffix(base, "/chat")
		case strings.HasSuffix(base, "/"):
			base = strings.TrimSuffix(base, "/")
		default:
			return base
		}
	}
}

// shapeForEndpoint 自定义本地端点按路径特征推断报文形态
func shapeForEndpoint(endpoint string) RequestShape {
	if strings.Contains(endpoint, "/api/chat") || strings.Contains(endpoint, ":11434") {
		return ShapeChat
	}
	return ShapeCloud
}

// TargetBaseURL 按报文形态补全客户端所需的基础地址。
// cloud-style客户端自行追加/chat/completions，因此补/v1；
// chat-style提供者自行追加/api/chat，保持基础地址不变。
func (p Profile) TargetBaseURL() string {
	if p.Shape == ShapeCloud {
		return p.BaseURL + "/v1"
	}
	return p.BaseURL
}
