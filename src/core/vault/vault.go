package vault

import "time"

// FileInfo 文件元信息
type FileInfo struct {
	Size int64
	// CreatedAt 文件创建时间，宿主可能无法提供
	CreatedAt    time.Time
	HasCreatedAt bool
}

// Vault 笔记库文件系统协作方。
// 重命名保证原子性：要么完全成功并重指所有引用，要么不发生。
type Vault interface {
	// ReadBytes 读取文件内容
	ReadBytes(path string) ([]byte, error)

	// Stat 获取文件元信息
	Stat(path string) (FileInfo, error)

	// Exists 检查路径上是否已有文件，用于冲突检测
	Exists(path string) (bool, error)

	// RenameAndUpdateReferences 重命名并更新库内所有指向该文件的引用。
	// 目标已存在时必须拒绝而不是覆盖。
	RenameAndUpdateReferences(oldPath, newPath string) error
}
