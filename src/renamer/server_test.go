package renamer

import (
	"bytes"
	"context"
	"encoding/json"
	stdimage "image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pixname-server-go/src/configs"
	"pixname-server-go/src/core/backend"
	"pixname-server-go/src/core/engine"
	"pixname-server-go/src/core/image"
	"pixname-server-go/src/core/providers/caption"
	"pixname-server-go/src/core/rename"
	"pixname-server-go/src/core/utils"
	"pixname-server-go/src/core/vault"

	"github.com/gin-gonic/gin"
)

type stubProvider struct {
	response string
}

func (p *stubProvider) Initialize() error { return nil }

func (p *stubProvider) Generate(ctx context.Context, payload image.EncodedPayload, prompt string) (string, error) {
	return p.response, nil
}

// newTestService 搭建带真实流水线的HTTP服务，笔记库在临时目录里
func newTestService(t *testing.T, authEnabled bool) (*gin.Engine, string) {
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

	root := t.TempDir()
	writeTestImage(t, filepath.Join(root, "IMG_1234.jpg"))
	if err := os.WriteFile(filepath.Join(root, "Taken.jpg"), []byte("x"), 0644); err != nil {
		t.Fatalf("准备冲突文件失败: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "note.md"),
		[]byte("图片在这里 ![[IMG_1234.jpg]]"), 0644); err != nil {
		t.Fatalf("准备笔记失败: %v", err)
	}

	v, err := vault.NewLocalVault(root, logger)
	if err != nil {
		t.Fatalf("初始化笔记库失败: %v", err)
	}

	provider := &stubProvider{response: `{"captions": ["Sunset Beach", "Ocean View"]}`}
	eng := engine.NewEngineWithCreate(logger, func(profile backend.Profile, l *utils.Logger) (caption.Provider, error) {
		return provider, nil
	})

	config := configs.DefaultConfig()
	config.Server.Token = "shared-secret"
	config.Server.Auth.Enabled = authEnabled
	config.Rename.CloudAPIKey = "sk-test"
	config.Rename.CaseStyle = configs.CaseTitle

	settingsSource := func() configs.RenameSettings { return config.Rename }
	orchestrator := rename.NewOrchestrator(logger, v, eng,
		backend.Capabilities{LocalAllowed: true}, settingsSource)

	service := NewDefaultRenamerService(config, logger, orchestrator)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	apiGroup := router.Group("/api")
	if err := service.Start(context.Background(), router, apiGroup); err != nil {
		t.Fatalf("注册路由失败: %v", err)
	}

	return router, root
}

func writeTestImage(t *testing.T, path string) {
	t.Helper()
	img := stdimage.NewRGBA(stdimage.Rect(0, 0, 8, 8))
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("生成测试图片失败: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatalf("写入测试图片失败: %v", err)
	}
}

func postJSON(t *testing.T, router *gin.Engine, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("序列化请求体失败: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestStatusEndpoint(t *testing.T) {
	router, _ := newTestService(t, false)

	req := httptest.NewRequest(http.MethodGet, "/api/rename", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("状态检查应返回200，实际 %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "运行正常") {
		t.Errorf("状态信息异常: %s", w.Body.String())
	}
}

func TestAutoRenameEndpoint(t *testing.T) {
	router, root := newTestService(t, false)

	w := postJSON(t, router, "/api/rename/auto", AutoRenameRequest{Path: "IMG_1234.jpg"}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("自动重命名应返回200，实际 %d: %s", w.Code, w.Body.String())
	}

	var resp RenameResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if !resp.Success || resp.FinalName != "Sunset Beach.jpg" {
		t.Errorf("期望 Sunset Beach.jpg，实际 %+v", resp)
	}

	// 文件与笔记引用都应更新
	if _, err := os.Stat(filepath.Join(root, "Sunset Beach.jpg")); err != nil {
		t.Error("新文件应存在")
	}
	note, err := os.ReadFile(filepath.Join(root, "note.md"))
	if err != nil {
		t.Fatalf("读取笔记失败: %v", err)
	}
	if !strings.Contains(string(note), "Sunset Beach.jpg") {
		t.Errorf("笔记引用应更新: %s", note)
	}
}

func TestSuggestEndpoint(t *testing.T) {
	router, _ := newTestService(t, false)

	w := postJSON(t, router, "/api/rename/suggest", SuggestRequest{Path: "IMG_1234.jpg"}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("候选名请求应返回200，实际 %d: %s", w.Code, w.Body.String())
	}

	var resp SuggestResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if len(resp.Candidates) != 2 {
		t.Errorf("期望2个候选，实际 %v", resp.Candidates)
	}
	if resp.OperationID == "" {
		t.Error("应返回操作ID")
	}
}

func TestApplyEndpointConflict(t *testing.T) {
	router, _ := newTestService(t, false)

	w := postJSON(t, router, "/api/rename/apply", ApplyRequest{Path: "IMG_1234.jpg", Name: "Taken"}, nil)
	if w.Code != http.StatusConflict {
		t.Errorf("占用的名字应返回409，实际 %d: %s", w.Code, w.Body.String())
	}

	var resp RenameResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if resp.Kind != "conflict" {
		t.Errorf("错误类别应为conflict，实际 %q", resp.Kind)
	}
}

func TestCaptionUploadEndpoint(t *testing.T) {
	router, _ := newTestService(t, false)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "photo.png")
	if err != nil {
		t.Fatalf("构造multipart表单失败: %v", err)
	}
	img := stdimage.NewRGBA(stdimage.Rect(0, 0, 8, 8))
	if err := png.Encode(part, img); err != nil {
		t.Fatalf("写入图片数据失败: %v", err)
	}
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/rename/caption", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("上传候选名请求应返回200，实际 %d: %s", w.Code, w.Body.String())
	}

	var resp SuggestResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	// 上传图片不做冲突过滤，两个候选都应返回
	if len(resp.Candidates) != 2 || resp.Candidates[0] != "Sunset Beach" {
		t.Errorf("候选异常: %v", resp.Candidates)
	}
}

func TestCaptionUploadMissingFile(t *testing.T) {
	router, _ := newTestService(t, false)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	writer.WriteField("other", "value")
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/rename/caption", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("缺少文件应返回400，实际 %d", w.Code)
	}
}

func TestMissingPathRejected(t *testing.T) {
	router, _ := newTestService(t, false)

	w := postJSON(t, router, "/api/rename/auto", AutoRenameRequest{}, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("缺少path应返回400，实际 %d", w.Code)
	}
}

func TestAuthFlow(t *testing.T) {
	router, _ := newTestService(t, true)

	// 未带token时拒绝
	w := postJSON(t, router, "/api/rename/auto", AutoRenameRequest{Path: "IMG_1234.jpg"}, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("未认证应返回401，实际 %d", w.Code)
	}

	// 错误的共享密钥换不到token
	w = postJSON(t, router, "/api/auth", AuthRequest{ClientID: "c1", Token: "wrong"}, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("错误密钥应返回401，实际 %d", w.Code)
	}

	// 正确的共享密钥换取token
	w = postJSON(t, router, "/api/auth", AuthRequest{ClientID: "c1", Token: "shared-secret"}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("换取token应返回200，实际 %d: %s", w.Code, w.Body.String())
	}
	var authResp AuthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &authResp); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if authResp.AccessToken == "" {
		t.Fatal("应返回访问token")
	}

	// 带上token后放行
	w = postJSON(t, router, "/api/rename/auto", AutoRenameRequest{Path: "IMG_1234.jpg"},
		map[string]string{"Authorization": "Bearer " + authResp.AccessToken})
	if w.Code != http.StatusOK {
		t.Errorf("带token应返回200，实际 %d: %s", w.Code, w.Body.String())
	}
}
