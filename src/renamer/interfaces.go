package renamer

import (
	"context"

	"github.com/gin-gonic/gin"
)

// RenamerService 定义重命名 HTTP 服务接口
type RenamerService interface {
	// 将重命名相关的路由注册到 engine 与 apiGroup
	Start(ctx context.Context, engine *gin.Engine, apiGroup *gin.RouterGroup) error
}
