package image

import "time"

// ImageAsset 待重命名的图片文件，读取后不再变化
type ImageAsset struct {
	Path      string
	Data      []byte
	Extension string
	CreatedAt time.Time
	// HasCreatedAt 宿主无法提供创建时间时为false，此时不加日期前缀
	HasCreatedAt bool
}

// EncodedPayload 预处理后的传输载荷，网络请求结束后即丢弃
type EncodedPayload struct {
	Data []byte
	MIME string
}

// Metrics 预处理统计信息
type Metrics struct {
	TotalProcessed int64
	Rejected       int64
	ScaledDown     int64
}
