package configs

import (
	"testing"
)

func TestDefaultRenameSettings(t *testing.T) {
	s := DefaultRenameSettings()

	if s.MaxRetries != 3 {
		t.Errorf("默认重试次数应为3，实际为%d", s.MaxRetries)
	}
	if s.TimeoutMs != 30000 {
		t.Errorf("默认超时应为30000ms，实际为%d", s.TimeoutMs)
	}
	if s.LocalServerPreset != PresetOllama {
		t.Errorf("默认本地预设应为ollama，实际为%s", s.LocalServerPreset)
	}
	if s.CaseStyle != CasePreserve {
		t.Errorf("默认大小写风格应为preserve，实际为%s", s.CaseStyle)
	}
	if !s.AllowSpaces {
		t.Error("默认应允许空格")
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input RenameSettings
		check func(t *testing.T, s RenameSettings)
	}{
		{
			name:  "重试次数小于1时回退默认值",
			input: RenameSettings{MaxRetries: 0, TimeoutMs: 5000},
			check: func(t *testing.T, s RenameSettings) {
				if s.MaxRetries != 3 {
					t.Errorf("期望3，实际%d", s.MaxRetries)
				}
				if s.TimeoutMs != 5000 {
					t.Errorf("合法超时不应被覆盖，实际%d", s.TimeoutMs)
				}
			},
		},
		{
			name:  "超时非法时回退默认值",
			input: RenameSettings{MaxRetries: 2, TimeoutMs: -1},
			check: func(t *testing.T, s RenameSettings) {
				if s.TimeoutMs != 30000 {
					t.Errorf("期望30000，实际%d", s.TimeoutMs)
				}
			},
		},
		{
			name:  "空字段补齐默认端点和模型",
			input: RenameSettings{MaxRetries: 1, TimeoutMs: 1000},
			check: func(t *testing.T, s RenameSettings) {
				if s.CloudEndpoint == "" || s.CloudModel == "" {
					t.Error("云端端点和模型应被补齐")
				}
				if s.LocalEndpoint == "" || s.LocalModel == "" {
					t.Error("本地端点和模型应被补齐")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := tt.input
			s.Normalize()
			tt.check(t, s)
		})
	}
}
