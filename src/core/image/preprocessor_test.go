package image

import (
	"bytes"
	stdimage "image"
	"image/color"
	"image/jpeg"
	"image/png"
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

func makePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := stdimage.NewRGBA(stdimage.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("生成测试PNG失败: %v", err)
	}
	return buf.Bytes()
}

func TestPreprocessScalesDownLongEdge(t *testing.T) {
	p := NewPreprocessor(testLogger(t))

	payload, err := p.Preprocess(ImageAsset{Path: "big.png", Data: makePNG(t, 1024, 512), Extension: "png"})
	if err != nil {
		t.Fatalf("预处理失败: %v", err)
	}
	if payload.MIME != "image/jpeg" {
		t.Errorf("输出MIME应为image/jpeg，实际 %s", payload.MIME)
	}

	cfg, format, err := stdimage.DecodeConfig(bytes.NewReader(payload.Data))
	if err != nil {
		t.Fatalf("解码输出失败: %v", err)
	}
	if format != "jpeg" {
		t.Errorf("输出应为jpeg，实际 %s", format)
	}
	if cfg.Width != 512 || cfg.Height != 256 {
		t.Errorf("期望512x256，实际 %dx%d", cfg.Width, cfg.Height)
	}

	if p.GetMetrics().ScaledDown != 1 {
		t.Error("缩小计数应为1")
	}
}

func TestPreprocessKeepsSmallImageSize(t *testing.T) {
	p := NewPreprocessor(testLogger(t))

	payload, err := p.Preprocess(ImageAsset{Path: "small.png", Data: makePNG(t, 100, 80), Extension: "png"})
	if err != nil {
		t.Fatalf("预处理失败: %v", err)
	}

	cfg, _, err := stdimage.DecodeConfig(bytes.NewReader(payload.Data))
	if err != nil {
		t.Fatalf("解码输出失败: %v", err)
	}
	if cfg.Width != 100 || cfg.Height != 80 {
		t.Errorf("两边都在上限内时应保持原尺寸，实际 %dx%d", cfg.Width, cfg.Height)
	}
	if p.GetMetrics().ScaledDown != 0 {
		t.Error("未缩小的图片不应计入缩小统计")
	}
}

func TestPreprocessJPEGInput(t *testing.T) {
	p := NewPreprocessor(testLogger(t))

	img := stdimage.NewRGBA(stdimage.Rect(0, 0, 600, 300))
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("生成测试JPEG失败: %v", err)
	}

	payload, err := p.Preprocess(ImageAsset{Path: "photo.jpg", Data: buf.Bytes(), Extension: "jpg"})
	if err != nil {
		t.Fatalf("预处理失败: %v", err)
	}

	cfg, _, err := stdimage.DecodeConfig(bytes.NewReader(payload.Data))
	if err != nil {
		t.Fatalf("解码输出失败: %v", err)
	}
	if cfg.Width != 512 || cfg.Height != 256 {
		t.Errorf("期望512x256，实际 %dx%d", cfg.Width, cfg.Height)
	}
}

func TestPreprocessRejectsGarbage(t *testing.T) {
	p := NewPreprocessor(testLogger(t))

	tests := []struct {
		name string
		data []byte
	}{
		{"空数据", nil},
		{"纯文本", []byte("this is not an image at all")},
		{"截断的PNG头", []byte{0x89, 0x50, 0x4E}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Preprocess(ImageAsset{Path: "bad.bin", Data: tt.data})
			if err == nil {
				t.Fatal("损坏的输入应返回错误")
			}
			if !errs.IsKind(err, errs.KindDecode) {
				t.Errorf("应为decode类别，实际 %s", errs.KindOf(err))
			}
		})
	}
}

func TestSignatureMatches(t *testing.T) {
	p := NewPreprocessor(testLogger(t))

	pngData := makePNG(t, 4, 4)
	if !p.signatureMatches(pngData, "png") {
		t.Error("PNG数据应匹配png扩展名")
	}
	if p.signatureMatches(pngData, "jpg") {
		t.Error("PNG数据不应匹配jpg扩展名")
	}
	if !p.signatureMatches(pngData, ".png") {
		t.Error("带点的扩展名也应匹配")
	}
}
