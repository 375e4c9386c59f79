package errs

import (
	"errors"
	"fmt"
)

// Kind 错误类别
type Kind string

const (
	KindDecode    Kind = "decode"    // 图片无法解码，不重试
	KindConfig    Kind = "config"    // 配置缺失或非法，在任何网络请求之前报告
	KindTimeout   Kind = "timeout"   // 请求超时，可重试
	KindSchema    Kind = "schema"    // 响应不符合结构化输出约定，可重试
	KindNetwork   Kind = "network"   // 5xx或连接异常，可重试
	KindAuth      Kind = "auth"      // 401类认证失败，不消耗重试预算
	KindRateLimit Kind = "ratelimit" // 429限流，本次操作内不重试
	KindModel     Kind = "model"     // 模型标识无法识别，不重试
	KindCollision Kind = "collision" // 一轮补充请求后仍无可用文件名
	KindConflict  Kind = "conflict"  // 最终重命名时目标已存在
	KindIO        Kind = "io"        // 读取文件失败
	KindUnknown   Kind = "unknown"
)

// Error 带类别的错误
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Kind, e.Op, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Kind, e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New 创建带类别的错误
func New(kind Kind, op, message string) *Error {
	return &Error{
		Kind:    kind,
		Op:      op,
		Message: message,
	}
}

// Wrap 包装底层错误，已分类的错误保持原类别
func Wrap(kind Kind, op, message string, err error) *Error {
	if err == nil {
		return nil
	}

	var typed *Error
	if errors.As(err, &typed) {
		return typed
	}

	return &Error{
		Kind:    kind,
		Op:      op,
		Message: message,
		Cause:   err,
	}
}

// KindOf 返回错误链中第一个带类别错误的类别
func KindOf(err error) Kind {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	return KindUnknown
}

// IsKind 检查错误链中是否存在指定类别
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Retryable 判断请求引擎是否可以重试该错误。
// 认证、限流和模型错误属于配置问题而非瞬时故障，立即上报。
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindTimeout, KindSchema, KindNetwork:
		return true
	default:
		return false
	}
}
