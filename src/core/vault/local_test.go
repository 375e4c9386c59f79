package vault

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pixname-server-go/src/core/errs"
	"pixname-server-go/src/core/utils"
)

func testLogger(t *testing.T) *utils.Logger {
	t.Helper()
	logger, err := utils.NewLogger(&utils.LogCfg{
		LogLevel: "error",
		LogDir:   t.TempDir(),
		LogFile:  "test.log",
	})
	if err != nil {
		t.Fatalf("创建测试日志失败: %v", err)
	}
	t.Cleanup(func() { logger.Close() })
	return logger
}

func setupVault(t *testing.T) (*LocalVault, string) {
	t.Helper()
	root := t.TempDir()
	v, err := NewLocalVault(root, testLogger(t))
	if err != nil {
		t.Fatalf("创建笔记库失败: %v", err)
	}
	return v, root
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("写入测试文件失败: %v", err)
	}
}

func TestExists(t *testing.T) {
	v, root := setupVault(t)
	writeFile(t, filepath.Join(root, "img.png"), "fake")

	exists, err := v.Exists("img.png")
	if err != nil || !exists {
		t.Errorf("已有文件应返回true: %v %v", exists, err)
	}

	exists, err = v.Exists("missing.png")
	if err != nil || exists {
		t.Errorf("不存在的文件应返回false: %v %v", exists, err)
	}
}

func TestRenameRefusesExistingTarget(t *testing.T) {
	v, root := setupVault(t)
	writeFile(t, filepath.Join(root, "a.png"), "a")
	writeFile(t, filepath.Join(root, "b.png"), "b")

	err := v.RenameAndUpdateReferences("a.png", "b.png")
	if err == nil {
		t.Fatal("目标已存在时应拒绝重命名")
	}
	if !errs.IsKind(err, errs.KindConflict) {
		t.Errorf("应为conflict类别，实际 %s", errs.KindOf(err))
	}

	// 原文件必须原封不动
	data, _ := os.ReadFile(filepath.Join(root, "a.png"))
	if string(data) != "a" {
		t.Error("拒绝后原文件不应被改动")
	}
	data, _ = os.ReadFile(filepath.Join(root, "b.png"))
	if string(data) != "b" {
		t.Error("拒绝后目标文件不应被改动")
	}
}

func TestRenameUpdatesReferences(t *testing.T) {
	v, root := setupVault(t)
	writeFile(t, filepath.Join(root, "IMG_1234.png"), "image-bytes")
	writeFile(t, filepath.Join(root, "note.md"),
		"前文 ![[IMG_1234.png]] 后文\n别名 [[IMG_1234.png|截图]]\n行内 ![alt](IMG_1234.png)\n子目录 ![alt](assets/IMG_1234.png)\n")
	writeFile(t, filepath.Join(root, "other.md"), "没有引用的笔记\n")

	if err := v.RenameAndUpdateReferences("IMG_1234.png", "Sunset Beach.png"); err != nil {
		t.Fatalf("重命名失败: %v", err)
	}

	if exists, _ := v.Exists("IMG_1234.png"); exists {
		t.Error("旧路径不应再存在")
	}
	if exists, _ := v.Exists("Sunset Beach.png"); !exists {
		t.Error("新路径应存在")
	}

	data, _ := os.ReadFile(filepath.Join(root, "note.md"))
	content := string(data)
	expected := []string{
		"![[Sunset Beach.png]]",
		"[[Sunset Beach.png|截图]]",
		"](Sunset Beach.png)",
		"](assets/Sunset Beach.png)",
	}
	for _, want := range expected {
		if !strings.Contains(content, want) {
			t.Errorf("引用未更新，缺少 %q，内容:\n%s", want, content)
		}
	}
	if strings.Contains(content, "IMG_1234") {
		t.Errorf("旧文件名不应残留:\n%s", content)
	}

	other, _ := os.ReadFile(filepath.Join(root, "other.md"))
	if string(other) != "没有引用的笔记\n" {
		t.Error("无引用的笔记不应被改动")
	}
}

func TestStatProvidesCreationTime(t *testing.T) {
	v, root := setupVault(t)
	writeFile(t, filepath.Join(root, "img.png"), "fake")

	info, err := v.Stat("img.png")
	if err != nil {
		t.Fatalf("Stat失败: %v", err)
	}
	if !info.HasCreatedAt || info.CreatedAt.IsZero() {
		t.Error("本地实现应提供创建时间")
	}
	if info.Size != 4 {
		t.Errorf("大小期望4，实际%d", info.Size)
	}
}
