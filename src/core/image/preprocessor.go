package image

import (
	"bytes"
	"fmt"
	stdimage "image"
	"image/jpeg"
	"strings"
	"sync/atomic"

	"pixname-server-go/src/core/errs"
	"pixname-server-go/src/core/utils"

	_ "image/gif" // 注册GIF解码器
	_ "image/png" // 注册PNG解码器

	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // 注册WEBP解码器
)

const (
	// MaxEdge 最长边上限，超过则等比缩小
	MaxEdge = 512
	// JPEGQuality 统一转为JPEG的压缩质量
	JPEGQuality = 80
	// MaxFileSize 解码前的文件大小上限
	MaxFileSize = 20 * 1024 * 1024
	// MaxPixels 像素总数上限，防止解码占用过多内存
	MaxPixels = 64 * 1024 * 1024
)

// 图片格式魔数签名
var imageSignatures = map[string][]byte{
	"jpeg": {0xFF, 0xD8},
	"jpg":  {0xFF, 0xD8},
	"png":  {0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A},
	"gif":  {0x47, 0x49, 0x46, 0x38},
	"webp": {0x52, 0x49, 0x46, 0x46}, // RIFF，第8-12字节需为WEBP
}

// Preprocessor 图片预处理器：解码、等比缩小、统一转为JPEG
type Preprocessor struct {
	logger  *utils.Logger
	metrics *Metrics
}

// NewPreprocessor 创建图片预处理器
func NewPreprocessor(logger *utils.Logger) *Preprocessor {
	return &Preprocessor{
		logger:  logger,
		metrics: &Metrics{},
	}
}

// Preprocess 将原始图片字节转为传输载荷。
// 纯内存操作，不落盘；任何中间缓冲仅在本次调用内存活。
func (p *Preprocessor) Preprocess(asset ImageAsset) (EncodedPayload, error) {
	atomic.AddInt64(&p.metrics.TotalProcessed, 1)

	if len(asset.Data) == 0 {
		atomic.AddInt64(&p.metrics.Rejected, 1)
		return EncodedPayload{}, errs.New(errs.KindDecode, "preprocess", "图片数据为空")
	}

	if int64(len(asset.Data)) > MaxFileSize {
		atomic.AddInt64(&p.metrics.Rejected, 1)
		return EncodedPayload{}, errs.New(errs.KindDecode, "preprocess",
			fmt.Sprintf("文件大小超限: %d bytes，最大允许: %d bytes", len(asset.Data), MaxFileSize))
	}

	// 解码前先检查像素总数，避免恶意图片耗尽内存
	cfg, _, err := stdimage.DecodeConfig(bytes.NewReader(asset.Data))
	if err != nil {
		atomic.AddInt64(&p.metrics.Rejected, 1)
		return EncodedPayload{}, errs.Wrap(errs.KindDecode, "preprocess", "图片格式不支持或已损坏", err)
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		atomic.AddInt64(&p.metrics.Rejected, 1)
		return EncodedPayload{}, errs.New(errs.KindDecode, "preprocess",
			fmt.Sprintf("像素总数超限: %dx%d", cfg.Width, cfg.Height))
	}

	src, format, err := stdimage.Decode(bytes.NewReader(asset.Data))
	if err != nil {
		atomic.AddInt64(&p.metrics.Rejected, 1)
		return EncodedPayload{}, errs.Wrap(errs.KindDecode, "preprocess", "图片解码失败", err)
	}

	if asset.Extension != "" && !p.signatureMatches(asset.Data, asset.Extension) {
		// 扩展名与文件头不符时仅告警，以实际解码结果为准
		p.logger.Warn("图片扩展名与文件头不符", map[string]interface{}{
			"path":      asset.Path,
			"extension": asset.Extension,
			"decoded":   format,
		})
	}

	out := p.scaleDown(src)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		atomic.AddInt64(&p.metrics.Rejected, 1)
		return EncodedPayload{}, errs.Wrap(errs.KindDecode, "preprocess", "JPEG编码失败", err)
	}

	p.logger.Debug("图片预处理完成", map[string]interface{}{
		"path":     asset.Path,
		"format":   format,
		"src_size": len(asset.Data),
		"out_size": buf.Len(),
		"bounds":   out.Bounds().String(),
	})

	return EncodedPayload{Data: buf.Bytes(), MIME: "image/jpeg"}, nil
}

// scaleDown 最长边超过MaxEdge时等比缩小，否则保持原尺寸
func (p *Preprocessor) scaleDown(src stdimage.Image) stdimage.Image {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	if w <= MaxEdge && h <= MaxEdge {
		return src
	}

	atomic.AddInt64(&p.metrics.ScaledDown, 1)

	var nw, nh int
	if w >= h {
		nw = MaxEdge
		nh = h * MaxEdge / w
	} else {
		nh = MaxEdge
		nw = w * MaxEdge / h
	}
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}

	dst := stdimage.NewRGBA(stdimage.Rect(0, 0, nw, nh))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, xdraw.Over, nil)
	return dst
}

// signatureMatches 校验文件头魔数与声明的扩展名是否一致
func (p *Preprocessor) signatureMatches(data []byte, extension string) bool {
	signature, exists := imageSignatures[strings.ToLower(strings.TrimPrefix(extension, "."))]
	if !exists {
		return false
	}
	if len(data) < len(signature) {
		return false
	}
	if !bytes.HasPrefix(data, signature) {
		return false
	}

	// WEBP需要额外验证RIFF块标识
	if strings.EqualFold(strings.TrimPrefix(extension, "."), "webp") {
		return len(data) >= 12 && bytes.Equal(data[8:12], []byte("WEBP"))
	}

	return true
}

// GetMetrics 获取处理统计信息
func (p *Preprocessor) GetMetrics() Metrics {
	return Metrics{
		TotalProcessed: atomic.LoadInt64(&p.metrics.TotalProcessed),
		Rejected:       atomic.LoadInt64(&p.metrics.Rejected),
		ScaledDown:     atomic.LoadInt64(&p.metrics.ScaledDown),
	}
}
