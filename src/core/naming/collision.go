package naming

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"pixname-server-go/src/core/vault"
)

// DatePolicy 日期前缀策略
type DatePolicy struct {
	Enabled bool
	// CreatedAt 源文件创建时间，宿主无法提供时HasCreatedAt为false，前缀省略
	CreatedAt    time.Time
	HasCreatedAt bool
}

// TargetName 组合日期前缀与净化后的名字
func TargetName(sanitized string, date DatePolicy) string {
	if date.Enabled && date.HasCreatedAt {
		return date.CreatedAt.Format("2006-01-02") + "-" + sanitized
	}
	return sanitized
}

// TargetPath 计算候选名对应的完整目标路径
func TargetPath(dir, sanitized, extension string, date DatePolicy) string {
	name := TargetName(sanitized, date)
	if extension != "" && !strings.HasPrefix(extension, ".") {
		extension = "." + extension
	}
	return filepath.Join(dir, name+extension)
}

// FilterAvailable 按原始顺序过滤出不与既有文件冲突的候选。
// 目标路径上正是待重命名文件本身时视为可用（允许原地不变的重命名）。
func FilterAvailable(ctx context.Context, v vault.Vault, candidates []string, dir, extension string, date DatePolicy, currentPath string) ([]string, error) {
	available := make([]string, 0, len(candidates))

	for _, candidate := range candidates {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		target := TargetPath(dir, candidate, extension, date)
		exists, err := v.Exists(target)
		if err != nil {
			return nil, err
		}
		if !exists || filepath.Clean(target) == filepath.Clean(currentPath) {
			available = append(available, candidate)
		}
	}

	return available, nil
}
