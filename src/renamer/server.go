package renamer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"sync"

	"pixname-server-go/src/configs"
	"pixname-server-go/src/core/auth"
	"pixname-server-go/src/core/errs"
	coreimage "pixname-server-go/src/core/image"
	"pixname-server-go/src/core/rename"
	"pixname-server-go/src/core/utils"

	"github.com/gin-gonic/gin"
)

type DefaultRenamerService struct {
	logger       *utils.Logger
	config       *configs.Config
	orchestrator *rename.Orchestrator
	authToken    *auth.AuthToken // 认证工具

	sessionsMu sync.Mutex
	sessions   map[*wsSession]struct{} // 在线的交互式会话
}

// NewDefaultRenamerService 构造函数
func NewDefaultRenamerService(config *configs.Config, logger *utils.Logger, orchestrator *rename.Orchestrator) *DefaultRenamerService {
	service := &DefaultRenamerService{
		logger:       logger,
		config:       config,
		orchestrator: orchestrator,
		sessions:     make(map[*wsSession]struct{}),
	}

	service.authToken = auth.NewAuthToken(config.Server.Token)
	orchestrator.SetStateListener(service.BroadcastState)

	return service
}

// Start 实现 RenamerService 接口，注册所有重命名相关路由
func (s *DefaultRenamerService) Start(ctx context.Context, engine *gin.Engine, apiGroup *gin.RouterGroup) error {
	apiGroup.POST("/auth", s.handleAuth)

	// 重命名主接口（GET用于状态检查，POST子路由分别承载三种操作）
	apiGroup.GET("/rename", s.handleGet)
	apiGroup.POST("/rename/auto", s.authRequired, s.handleAuto)
	apiGroup.POST("/rename/suggest", s.authRequired, s.handleSuggest)
	apiGroup.POST("/rename/apply", s.authRequired, s.handleApply)
	apiGroup.POST("/rename/caption", s.authRequired, s.handleCaption)
	apiGroup.OPTIONS("/rename", s.handleOptions)
	apiGroup.OPTIONS("/rename/caption", s.handleOptions)
	apiGroup.OPTIONS("/rename/auto", s.handleOptions)
	apiGroup.OPTIONS("/rename/suggest", s.handleOptions)
	apiGroup.OPTIONS("/rename/apply", s.handleOptions)

	// 交互式重命名会话走WebSocket
	apiGroup.GET("/rename/ws", s.handleWebSocket)

	s.logger.Info("重命名HTTP服务路由注册完成")
	return nil
}

// handleOptions 处理OPTIONS请求（CORS）
func (s *DefaultRenamerService) handleOptions(c *gin.Context) {
	s.addCORSHeaders(c)
	c.Status(http.StatusOK)
}

// handleGet 处理GET请求（状态检查）
func (s *DefaultRenamerService) handleGet(c *gin.Context) {
	s.addCORSHeaders(c)

	settings := s.config.Rename
	var backendDesc string
	if settings.UseLocalModel {
		backendDesc = fmt.Sprintf("本地模型 %s (%s)", settings.LocalModel, settings.LocalServerPreset)
	} else {
		backendDesc = fmt.Sprintf("云端模型 %s", settings.CloudModel)
	}
	c.String(http.StatusOK, fmt.Sprintf("图片重命名接口运行正常，当前后端: %s", backendDesc))
}

// handleAuth 用共享密钥换取访问token
func (s *DefaultRenamerService) handleAuth(c *gin.Context) {
	s.addCORSHeaders(c)

	var req AuthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, AuthResponse{Success: false, Message: "无效的请求体"})
		return
	}

	if req.Token == "" || req.Token != s.config.Server.Token {
		s.logger.Warn(fmt.Sprintf("认证失败，共享密钥不匹配: client_id=%s", req.ClientID))
		c.JSON(http.StatusUnauthorized, AuthResponse{Success: false, Message: "共享密钥不正确"})
		return
	}

	accessToken, err := s.authToken.GenerateToken(req.ClientID)
	if err != nil {
		s.logger.Error(fmt.Sprintf("生成访问token失败: %v", err))
		c.JSON(http.StatusInternalServerError, AuthResponse{Success: false, Message: "生成访问token失败"})
		return
	}

	c.JSON(http.StatusOK, AuthResponse{Success: true, AccessToken: accessToken})
}

// authRequired Bearer token校验中间件，认证未启用时放行
func (s *DefaultRenamerService) authRequired(c *gin.Context) {
	s.addCORSHeaders(c)

	if !s.config.Server.Auth.Enabled {
		c.Next()
		return
	}

	result, err := s.verifyAuth(c)
	if err != nil || !result.IsValid {
		s.logger.Warn(fmt.Sprintf("重命名接口认证失败: %v", err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, RenameResponse{
			Success: false,
			Message: "无效的认证token或token已过期",
		})
		return
	}

	c.Set("client_id", result.ClientID)
	c.Next()
}

// verifyAuth 验证认证token
func (s *DefaultRenamerService) verifyAuth(c *gin.Context) (*AuthVerifyResult, error) {
	authHeader := c.GetHeader("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return nil, fmt.Errorf("缺少Bearer认证头")
	}

	token := authHeader[7:] // 移除"Bearer "前缀

	isValid, clientID, err := s.authToken.VerifyToken(token)
	if err != nil || !isValid {
		return nil, fmt.Errorf("无效的认证token或token已过期")
	}

	return &AuthVerifyResult{
		IsValid:  true,
		ClientID: clientID,
	}, nil
}

// handleAuto 处理自动重命名请求
func (s *DefaultRenamerService) handleAuto(c *gin.Context) {
	var req AutoRenameRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Path == "" {
		s.respondError(c, http.StatusBadRequest, errs.KindConfig, "缺少path字段")
		return
	}

	s.logger.Info(fmt.Sprintf("收到自动重命名请求: %s", req.Path))

	result, err := s.orchestrator.RenameWithBestSuggestion(c.Request.Context(), req.Path)
	if err != nil {
		s.respondError(c, s.statusForKind(errs.KindOf(err)), errs.KindOf(err), err.Error())
		return
	}

	c.JSON(http.StatusOK, RenameResponse{
		Success:     true,
		OperationID: result.OperationID,
		OldPath:     result.OldPath,
		NewPath:     result.NewPath,
		FinalName:   result.FinalName,
	})
}

// handleSuggest 处理候选名请求（交互模式第一步）
func (s *DefaultRenamerService) handleSuggest(c *gin.Context) {
	var req SuggestRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Path == "" {
		s.respondError(c, http.StatusBadRequest, errs.KindConfig, "缺少path字段")
		return
	}

	s.logger.Info(fmt.Sprintf("收到候选名请求: %s", req.Path))

	suggestions, err := s.orchestrator.SuggestNames(c.Request.Context(), req.Path)
	if err != nil {
		c.JSON(s.statusForKind(errs.KindOf(err)), SuggestResponse{
			Success: false,
			Message: err.Error(),
			Kind:    string(errs.KindOf(err)),
		})
		return
	}

	// 候选集可能为空，此时由前端引导用户自行输入
	c.JSON(http.StatusOK, SuggestResponse{
		Success:     true,
		OperationID: suggestions.OperationID,
		Candidates:  suggestions.Candidates,
	})
}

// handleApply 处理确认命名请求（交互模式第二步）
func (s *DefaultRenamerService) handleApply(c *gin.Context) {
	var req ApplyRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Path == "" || req.Name == "" {
		s.respondError(c, http.StatusBadRequest, errs.KindConfig, "缺少path或name字段")
		return
	}

	s.logger.Info(fmt.Sprintf("收到确认命名请求: %s -> %s", req.Path, req.Name))

	result, err := s.orchestrator.ApplyName(c.Request.Context(), req.Path, req.Name)
	if err != nil {
		s.respondError(c, s.statusForKind(errs.KindOf(err)), errs.KindOf(err), err.Error())
		return
	}

	c.JSON(http.StatusOK, RenameResponse{
		Success:     true,
		OperationID: result.OperationID,
		OldPath:     result.OldPath,
		NewPath:     result.NewPath,
		FinalName:   result.FinalName,
	})
}

// handleCaption 处理上传图片的候选名请求。
// 图片不在笔记库里，不做冲突过滤，multipart表单字段为file。
func (s *DefaultRenamerService) handleCaption(c *gin.Context) {
	if err := c.Request.ParseMultipartForm(coreimage.MaxFileSize); err != nil {
		s.respondError(c, http.StatusBadRequest, errs.KindConfig,
			fmt.Sprintf("解析multipart表单失败: %v", err))
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		s.respondError(c, http.StatusBadRequest, errs.KindConfig,
			fmt.Sprintf("缺少图片文件: %v", err))
		return
	}
	defer file.Close()

	if header.Size > coreimage.MaxFileSize {
		s.respondError(c, http.StatusBadRequest, errs.KindConfig,
			fmt.Sprintf("图片大小超过限制，最大允许%dMB", coreimage.MaxFileSize/1024/1024))
		return
	}

	data, err := io.ReadAll(file)
	if err != nil || len(data) == 0 {
		s.respondError(c, http.StatusBadRequest, errs.KindConfig, "读取图片数据失败")
		return
	}

	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(header.Filename)), ".")
	s.logger.Info(fmt.Sprintf("收到上传图片候选名请求: %s (%d bytes)", header.Filename, len(data)))

	suggestions, err := s.orchestrator.SuggestForUpload(c.Request.Context(), data, ext)
	if err != nil {
		c.JSON(s.statusForKind(errs.KindOf(err)), SuggestResponse{
			Success: false,
			Message: err.Error(),
			Kind:    string(errs.KindOf(err)),
		})
		return
	}

	c.JSON(http.StatusOK, SuggestResponse{
		Success:     true,
		OperationID: suggestions.OperationID,
		Candidates:  suggestions.Candidates,
	})
}

// statusForKind 错误类别到HTTP状态码的映射
func (s *DefaultRenamerService) statusForKind(kind errs.Kind) int {
	switch kind {
	case errs.KindConfig:
		return http.StatusBadRequest
	case errs.KindCollision, errs.KindConflict:
		return http.StatusConflict
	case errs.KindTimeout:
		return http.StatusGatewayTimeout
	case errs.KindIO:
		return http.StatusNotFound
	case errs.KindAuth, errs.KindRateLimit, errs.KindModel, errs.KindNetwork, errs.KindSchema:
		// 上游模型服务的问题统一视为网关错误
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// addCORSHeaders 添加CORS头
func (s *DefaultRenamerService) addCORSHeaders(c *gin.Context) {
	c.Header("Access-Control-Allow-Headers", "client-id, content-type, authorization")
	c.Header("Access-Control-Allow-Credentials", "true")
	c.Header("Access-Control-Allow-Origin", "*")
	c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
}

// respondError 返回错误响应
func (s *DefaultRenamerService) respondError(c *gin.Context, statusCode int, kind errs.Kind, message string) {
	response := RenameResponse{
		Success: false,
		Message: message,
		Kind:    string(kind),
	}
	c.JSON(statusCode, response)
}
