package mcpsvr

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"pixname-server-go/src/configs"
	"pixname-server-go/src/core/errs"
	"pixname-server-go/src/core/rename"
	"pixname-server-go/src/core/utils"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Server 把重命名流水线以MCP工具的形式暴露给AI助手，
// 笔记软件里的助手通过SSE端点调用rename_image和suggest_names。
type Server struct {
	logger       *utils.Logger
	config       *configs.Config
	orchestrator *rename.Orchestrator
	mcpServer    *server.MCPServer
	sseServer    *server.SSEServer
}

func NewServer(config *configs.Config, logger *utils.Logger, orchestrator *rename.Orchestrator) *Server {
	s := &Server{
		logger:       logger,
		config:       config,
		orchestrator: orchestrator,
	}

	s.mcpServer = server.NewMCPServer(
		"pixname",
		"1.0.0",
		server.WithToolCapabilities(false),
	)
	s.registerTools()
	s.sseServer = server.NewSSEServer(s.mcpServer)

	return s
}

// registerTools 注册所有MCP工具
func (s *Server) registerTools() {
	renameTool := mcp.NewTool("rename_image",
		mcp.WithDescription("根据图片内容自动重命名笔记库中的图片，并同步更新笔记里的引用链接"),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("笔记库内的图片路径"),
		),
	)
	s.mcpServer.AddTool(renameTool, s.handleRenameImage)

	suggestTool := mcp.NewTool("suggest_names",
		mcp.WithDescription("根据图片内容生成若干可用的文件名候选，不执行重命名"),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("笔记库内的图片路径"),
		),
	)
	s.mcpServer.AddTool(suggestTool, s.handleSuggestNames)

	applyTool := mcp.NewTool("apply_name",
		mcp.WithDescription("用指定的名字重命名笔记库中的图片，名字会先按当前设置净化并检查冲突"),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("笔记库内的图片路径"),
		),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("期望的新文件名，不含扩展名"),
		),
	)
	s.mcpServer.AddTool(applyTool, s.handleApplyName)
}

// handleRenameImage rename_image工具：自动模式
func (s *Server) handleRenameImage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	s.logger.Info(fmt.Sprintf("MCP rename_image: %s", path))

	result, err := s.orchestrator.RenameWithBestSuggestion(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(s.describeError(err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("图片已重命名: %s -> %s", result.OldPath, result.NewPath)), nil
}

// handleSuggestNames suggest_names工具：只取候选
func (s *Server) handleSuggestNames(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	s.logger.Info(fmt.Sprintf("MCP suggest_names: %s", path))

	suggestions, err := s.orchestrator.SuggestNames(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(s.describeError(err)), nil
	}

	if len(suggestions.Candidates) == 0 {
		return mcp.NewToolResultText("没有不冲突的候选名，请改用apply_name自行指定名字"), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("候选名: %s", strings.Join(suggestions.Candidates, ", "))), nil
}

// handleApplyName apply_name工具：指定名字重命名
func (s *Server) handleApplyName(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	s.logger.Info(fmt.Sprintf("MCP apply_name: %s -> %s", path, name))

	result, err := s.orchestrator.ApplyName(ctx, path, name)
	if err != nil {
		return mcp.NewToolResultError(s.describeError(err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("图片已重命名: %s -> %s", result.OldPath, result.NewPath)), nil
}

// describeError 给AI助手的错误文本带上错误类别，便于它向用户解释
func (s *Server) describeError(err error) string {
	return fmt.Sprintf("[%s] %s", errs.KindOf(err), err.Error())
}

// Start 启动SSE服务，阻塞直到出错或Shutdown
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.IP, s.config.MCP.Port)
	s.logger.Info(fmt.Sprintf("MCP SSE服务已启动，访问地址: http://%s/sse", addr))

	if err := s.sseServer.Start(addr); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("MCP SSE服务运行失败: %v", err)
	}
	return nil
}

// Stop 优雅关闭SSE服务
func (s *Server) Stop(ctx context.Context) error {
	return s.sseServer.Shutdown(ctx)
}
