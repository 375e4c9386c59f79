package errs

import (
	"errors"
	"fmt"
	"testing"
)

func TestWrapKeepsExistingKind(t *testing.T) {
	inner := New(KindAuth, "engine", "认证失败")
	wrapped := Wrap(KindNetwork, "orchestrator", "请求失败", inner)

	if wrapped.Kind != KindAuth {
		t.Errorf("已分类错误不应被重新分类，期望 %s，实际 %s", KindAuth, wrapped.Kind)
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(KindNetwork, "op", "msg", nil) != nil {
		t.Error("包装nil应返回nil")
	}
}

func TestKindOfThroughChain(t *testing.T) {
	base := New(KindTimeout, "engine", "请求超时")
	chained := fmt.Errorf("外层: %w", base)

	if KindOf(chained) != KindTimeout {
		t.Errorf("应透过错误链取到timeout，实际 %s", KindOf(chained))
	}
	if KindOf(errors.New("plain")) != KindUnknown {
		t.Error("未分类错误应返回unknown")
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name      string
		kind      Kind
		retryable bool
	}{
		{"超时可重试", KindTimeout, true},
		{"结构校验失败可重试", KindSchema, true},
		{"网络瞬时故障可重试", KindNetwork, true},
		{"认证失败不可重试", KindAuth, false},
		{"限流不可重试", KindRateLimit, false},
		{"模型未知不可重试", KindModel, false},
		{"解码失败不可重试", KindDecode, false},
		{"配置错误不可重试", KindConfig, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.kind, "test", "测试")
			if Retryable(err) != tt.retryable {
				t.Errorf("%s 的可重试性期望 %v", tt.kind, tt.retryable)
			}
		})
	}
}
