package configs

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LocalPreset 本地推理服务预设
type LocalPreset string

const (
	PresetOllama   LocalPreset = "ollama"
	PresetLMStudio LocalPreset = "lmstudio"
	PresetLocalAI  LocalPreset = "localai"
	PresetCustom   LocalPreset = "custom"
)

// CaseStyle 文件名大小写风格
type CaseStyle string

const (
	CaseLower    CaseStyle = "lower"
	CaseUpper    CaseStyle = "upper"
	CaseTitle    CaseStyle = "title"
	CaseSentence CaseStyle = "sentence"
	CasePreserve CaseStyle = "preserve"
)

// Config 主配置结构
type Config struct {
	Server struct {
		IP    string `yaml:"ip"`
		Port  int    `yaml:"port"`
		Token string `yaml:"token"`
		Auth  struct {
			Enabled bool `yaml:"enabled"`
		} `yaml:"auth"`
	} `yaml:"server"`

	Log struct {
		LogLevel string `yaml:"log_level"`
		LogDir   string `yaml:"log_dir"`
		LogFile  string `yaml:"log_file"`
	} `yaml:"log"`

	Vault struct {
		Root string `yaml:"root"`
	} `yaml:"vault"`

	MCP struct {
		Enabled bool `yaml:"enabled"`
		Port    int  `yaml:"port"`
	} `yaml:"MCP"`

	Rename RenameSettings `yaml:"rename"`
}

// RenameSettings 重命名流水线设置，每次操作开始时重新读取，不做缓存
type RenameSettings struct {
	CloudAPIKey   string `yaml:"cloud_api_key"`
	CloudEndpoint string `yaml:"cloud_endpoint"`
	CloudModel    string `yaml:"cloud_model"`

	LocalAPIKey   string `yaml:"local_api_key"`
	LocalEndpoint string `yaml:"local_endpoint"`
	LocalModel    string `yaml:"local_model"`

	UseLocalModel     bool        `yaml:"use_local_model"`
	LocalServerPreset LocalPreset `yaml:"local_server_preset"`

	DatePrefix  bool      `yaml:"date_prefix"`
	CaseStyle   CaseStyle `yaml:"case_style"`
	AllowSpaces bool      `yaml:"allow_spaces"`

	MaxRetries int `yaml:"max_retries"`
	TimeoutMs  int `yaml:"timeout_ms"`
}

// DefaultConfig 硬编码默认值，文件或数据库中缺失的字段以此为准
func DefaultConfig() *Config {
	config := &Config{}
	config.Server.IP = "0.0.0.0"
	config.Server.Port = 8090
	config.Log.LogLevel = "INFO"
	config.Log.LogDir = "logs"
	config.Log.LogFile = "server.log"
	config.Vault.Root = "."
	config.MCP.Port = 8091
	config.Rename = DefaultRenameSettings()
	return config
}

// DefaultRenameSettings 重命名设置默认值
func DefaultRenameSettings() RenameSettings {
	return RenameSettings{
		CloudEndpoint:     "https://api.openai.com/v1",
		CloudModel:        "gpt-4o-mini",
		LocalEndpoint:     "http://localhost:11434",
		LocalModel:        "llava",
		LocalServerPreset: PresetOllama,
		CaseStyle:         CasePreserve,
		AllowSpaces:       true,
		MaxRetries:        3,
		TimeoutMs:         30000,
	}
}

// Normalize 补齐缺失或非法的字段
func (s *RenameSettings) Normalize() {
	defaults := DefaultRenameSettings()
	if s.MaxRetries < 1 {
		s.MaxRetries = defaults.MaxRetries
	}
	if s.TimeoutMs <= 0 {
		s.TimeoutMs = defaults.TimeoutMs
	}
	if s.LocalServerPreset == "" {
		s.LocalServerPreset = defaults.LocalServerPreset
	}
	if s.CaseStyle == "" {
		s.CaseStyle = defaults.CaseStyle
	}
	if s.CloudEndpoint == "" {
		s.CloudEndpoint = defaults.CloudEndpoint
	}
	if s.CloudModel == "" {
		s.CloudModel = defaults.CloudModel
	}
	if s.LocalEndpoint == "" {
		s.LocalEndpoint = defaults.LocalEndpoint
	}
	if s.LocalModel == "" {
		s.LocalModel = defaults.LocalModel
	}
}

// LoadConfig 从文件加载配置,默认使用.config.yaml
func LoadConfig() (*Config, string, error) {
	path := ".config.yaml"
	if _, err := os.Stat(path); os.IsNotExist(err) {
		path = "config.yaml"
	}

	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// 没有配置文件时使用默认值，密钥从环境变量读取
			config.ApplyEnv()
			return config, "(defaults)", nil
		}
		return nil, path, err
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, path, fmt.Errorf("解析配置文件失败: %w", err)
	}

	config.ApplyEnv()
	config.Rename.Normalize()
	return config, path, nil
}

// ApplyEnv 环境变量覆盖敏感字段
func (c *Config) ApplyEnv() {
	if v := os.Getenv("CLOUD_API_KEY"); v != "" {
		c.Rename.CloudAPIKey = v
	}
	if v := os.Getenv("LOCAL_API_KEY"); v != "" {
		c.Rename.LocalAPIKey = v
	}
	if v := os.Getenv("SERVER_TOKEN"); v != "" {
		c.Server.Token = v
	}
}
