package vault

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"pixname-server-go/src/core/errs"
	"pixname-server-go/src/core/utils"
)

// LocalVault 基于本地文件系统的笔记库实现。
// 引用更新覆盖库内全部Markdown文件，按文件名文本替换wiki链接与行内链接。
type LocalVault struct {
	root   string
	logger *utils.Logger
}

// NewLocalVault 创建本地笔记库
func NewLocalVault(root string, logger *utils.Logger) (*LocalVault, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, errs.Wrap(errs.KindIO, "vault", "笔记库根目录不可用", err)
	}
	if !info.IsDir() {
		return nil, errs.New(errs.KindIO, "vault", fmt.Sprintf("笔记库根目录不是目录: %s", root))
	}
	return &LocalVault{root: root, logger: logger}, nil
}

// resolve 相对路径解析到库根目录下
func (v *LocalVault) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(v.root, path)
}

// ReadBytes 读取文件内容
func (v *LocalVault) ReadBytes(path string) ([]byte, error) {
	data, err := os.ReadFile(v.resolve(path))
	if err != nil {
		return nil, errs.Wrap(errs.KindIO, "vault", "读取文件失败", err)
	}
	return data, nil
}

// Stat 获取文件元信息。创建时间取修改时间，笔记库中的图片极少被改写，
// 修改时间即导入时间。
func (v *LocalVault) Stat(path string) (FileInfo, error) {
	info, err := os.Stat(v.resolve(path))
	if err != nil {
		return FileInfo{}, errs.Wrap(errs.KindIO, "vault", "获取文件信息失败", err)
	}
	return FileInfo{
		Size:         info.Size(),
		CreatedAt:    info.ModTime(),
		HasCreatedAt: true,
	}, nil
}

// Exists 检查路径上是否已有文件
func (v *LocalVault) Exists(path string) (bool, error) {
	_, err := os.Stat(v.resolve(path))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, errs.Wrap(errs.KindIO, "vault", "检查文件失败", err)
}

// RenameAndUpdateReferences 重命名文件并重写库内引用。
// 最终时刻目标已存在时拒绝执行，保证不覆盖。
func (v *LocalVault) RenameAndUpdateReferences(oldPath, newPath string) error {
	oldAbs := v.resolve(oldPath)
	newAbs := v.resolve(newPath)

	if _, err := os.Stat(newAbs); err == nil {
		return errs.New(errs.KindConflict, "vault",
			fmt.Sprintf("目标已存在: %s", newPath))
	}

	if err := os.Rename(oldAbs, newAbs); err != nil {
		return errs.Wrap(errs.KindIO, "vault", "重命名失败", err)
	}

	oldBase := filepath.Base(oldAbs)
	newBase := filepath.Base(newAbs)
	if err := v.rewriteReferences(oldBase, newBase); err != nil {
		return err
	}

	return nil
}

// rewriteReferences 重写所有Markdown文件中指向旧文件名的引用
func (v *LocalVault) rewriteReferences(oldBase, newBase string) error {
	return filepath.WalkDir(v.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return errs.Wrap(errs.KindIO, "vault", "读取笔记失败", err)
		}

		content := string(data)
		updated := rewriteLinks(content, oldBase, newBase)
		if updated == content {
			return nil
		}

		if err := os.WriteFile(path, []byte(updated), 0644); err != nil {
			return errs.Wrap(errs.KindIO, "vault", "更新笔记引用失败", err)
		}

		v.logger.Debug("更新笔记引用", map[string]interface{}{
			"note": path,
			"old":  oldBase,
			"new":  newBase,
		})
		return nil
	})
}

// rewriteLinks 替换wiki链接与行内链接中的文件名
func rewriteLinks(content, oldBase, newBase string) string {
	// ![[image.png]] 与 [[image.png|alias]]
	content = strings.ReplaceAll(content, "[["+oldBase+"]]", "[["+newBase+"]]")
	content = strings.ReplaceAll(content, "[["+oldBase+"|", "[["+newBase+"|")
	// ![alt](image.png) 与 ![alt](dir/image.png)
	content = strings.ReplaceAll(content, "("+oldBase+")", "("+newBase+")")
	content = strings.ReplaceAll(content, "/"+oldBase+")", "/"+newBase+")")
	return content
}
