package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"pixname-server-go/src/configs"
	"pixname-server-go/src/configs/database"
	"pixname-server-go/src/core/backend"
	"pixname-server-go/src/core/engine"
	"pixname-server-go/src/core/rename"
	"pixname-server-go/src/core/utils"
	"pixname-server-go/src/core/vault"
	"pixname-server-go/src/mcpsvr"
	"pixname-server-go/src/renamer"

	// 导入所有providers以确保init函数被调用
	_ "pixname-server-go/src/core/providers/caption/ollama"
	_ "pixname-server-go/src/core/providers/caption/openai"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func LoadConfigAndLogger() (*configs.Config, *utils.Logger, error) {
	// 加载配置,默认使用.config.yaml
	config, configPath, err := configs.LoadConfig()
	if err != nil {
		return nil, nil, err
	}

	// 初始化日志系统
	logger, err := utils.NewLogger(&utils.LogCfg{
		LogLevel: config.Log.LogLevel,
		LogDir:   config.Log.LogDir,
		LogFile:  config.Log.LogFile,
	})
	if err != nil {
		return nil, nil, err
	}
	logger.Info(fmt.Sprintf("日志系统初始化成功, 配置文件路径: %s", configPath))

	return config, logger, nil
}

// BuildOrchestrator 组装重命名流水线
func BuildOrchestrator(config *configs.Config, logger *utils.Logger, repo *database.SettingsRepository) (*rename.Orchestrator, error) {
	v, err := vault.NewLocalVault(config.Vault.Root, logger)
	if err != nil {
		return nil, fmt.Errorf("初始化笔记库失败: %w", err)
	}

	eng := engine.NewEngine(logger)

	// 设置来源：每次操作重新读取文件配置并套上数据库覆盖
	settingsSource := func() configs.RenameSettings {
		settings := config.Rename
		return repo.Overlay(settings)
	}

	// 服务端环境不限制本地推理，受限宿主（如移动端）传false
	caps := backend.Capabilities{LocalAllowed: true}

	orchestrator := rename.NewOrchestrator(logger, v, eng, caps, settingsSource)

	// 成功的重命名写入历史，数据库缺席时静默跳过
	orchestrator.SetHistorySink(func(oldPath, newPath string, profile backend.Profile, took time.Duration) {
		record := &database.RenameRecord{
			OldPath:    oldPath,
			NewPath:    newPath,
			Model:      profile.Model,
			Backend:    string(profile.Kind),
			DurationMs: took.Milliseconds(),
		}
		if err := repo.RecordRename(record); err != nil {
			logger.Warn(fmt.Sprintf("写入重命名历史失败: %v", err))
		}
	})

	return orchestrator, nil
}

func StartHttpServer(config *configs.Config, logger *utils.Logger, orchestrator *rename.Orchestrator, g *errgroup.Group, groupCtx context.Context) (*http.Server, error) {
	// 初始化Gin引擎
	if config.Log.LogLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	router.SetTrustedProxies([]string{"0.0.0.0"})

	// API路由全部挂载到/api前缀下
	apiGroup := router.Group("/api")

	// 启动重命名服务
	renamerService := renamer.NewDefaultRenamerService(config, logger, orchestrator)
	if err := renamerService.Start(groupCtx, router, apiGroup); err != nil {
		logger.Error("重命名服务启动失败", err)
		return nil, err
	}

	// HTTP Server（支持优雅关机）
	httpServer := &http.Server{
		Addr:    config.Server.IP + ":" + strconv.Itoa(config.Server.Port),
		Handler: router,
	}

	g.Go(func() error {
		logger.Info(fmt.Sprintf("Gin 服务已启动，访问地址: http://%s:%d", config.Server.IP, config.Server.Port))

		// 在单独的 goroutine 中监听关闭信号
		go func() {
			<-groupCtx.Done()
			logger.Info("收到关闭信号，开始关闭HTTP服务...")

			// 创建关闭超时上下文
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("HTTP服务关闭失败", err)
			} else {
				logger.Info("HTTP服务已优雅关闭")
			}
		}()

		// ListenAndServe 返回 ErrServerClosed 时表示正常关闭
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP 服务启动失败", err)
			return err
		}
		return nil
	})

	return httpServer, nil
}

func StartMCPServer(config *configs.Config, logger *utils.Logger, orchestrator *rename.Orchestrator, g *errgroup.Group, groupCtx context.Context) (*mcpsvr.Server, error) {
	mcpServer := mcpsvr.NewServer(config, logger, orchestrator)

	g.Go(func() error {
		// 监听关闭信号
		go func() {
			<-groupCtx.Done()
			logger.Info("收到关闭信号，开始关闭MCP服务...")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := mcpServer.Stop(shutdownCtx); err != nil {
				logger.Error("MCP服务关闭失败", err)
			} else {
				logger.Info("MCP服务已优雅关闭")
			}
		}()

		if err := mcpServer.Start(groupCtx); err != nil {
			if groupCtx.Err() != nil {
				return nil // 正常关闭
			}
			logger.Error("MCP 服务运行失败", err)
			return err
		}
		return nil
	})

	logger.Info("MCP 服务已成功启动")
	return mcpServer, nil
}

func GracefulShutdown(cancel context.CancelFunc, logger *utils.Logger, g *errgroup.Group) {
	// 监听系统信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	// 等待信号
	sig := <-sigChan
	logger.Info(fmt.Sprintf("接收到系统信号: %v，开始优雅关闭服务", sig))

	// 取消上下文，通知所有服务开始关闭
	cancel()

	// 等待所有服务关闭，设置超时保护
	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.Error("服务关闭过程中出现错误", err)
			os.Exit(1)
		}
		logger.Info("所有服务已优雅关闭")
	case <-time.After(15 * time.Second):
		logger.Error("服务关闭超时，强制退出")
		os.Exit(1)
	}
}

func startServices(config *configs.Config, logger *utils.Logger, orchestrator *rename.Orchestrator, g *errgroup.Group, groupCtx context.Context) error {
	// 启动 Http 服务
	if _, err := StartHttpServer(config, logger, orchestrator, g, groupCtx); err != nil {
		return fmt.Errorf("启动 Http 服务失败: %w", err)
	}

	// 启动 MCP 服务
	if config.MCP.Enabled {
		if _, err := StartMCPServer(config, logger, orchestrator, g, groupCtx); err != nil {
			return fmt.Errorf("启动 MCP 服务失败: %w", err)
		}
	}

	return nil
}

func main() {
	// 加载配置和初始化日志系统
	config, logger, err := LoadConfigAndLogger()
	if err != nil {
		fmt.Println("加载配置或初始化日志系统失败:", err)
		os.Exit(1)
	}

	// 加载 .env 文件
	err = godotenv.Load()
	if err != nil {
		logger.Warn("未找到 .env 文件，使用系统环境变量")
	}
	config.ApplyEnv()

	// 初始化数据库连接，数据库是可选的：未配置时设置覆盖与历史记录不可用
	var settingsRepo *database.SettingsRepository
	db, dbType, err := database.InitDB()
	if err != nil {
		logger.Warn(fmt.Sprintf("数据库不可用，设置覆盖与历史记录已禁用: %v", err))
	} else {
		logger.Info(fmt.Sprintf("数据库连接成功: %s", dbType))
		settingsRepo = database.NewSettingsRepository(db)
	}

	// 组装重命名流水线
	orchestrator, err := BuildOrchestrator(config, logger, settingsRepo)
	if err != nil {
		logger.Error(fmt.Sprintf("组装重命名流水线失败: %v", err))
		os.Exit(1)
	}

	// 创建可取消的上下文
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 用 errgroup 管理两个服务
	g, groupCtx := errgroup.WithContext(ctx)

	// 启动所有服务
	if err := startServices(config, logger, orchestrator, g, groupCtx); err != nil {
		logger.Error("启动服务失败:", err)
		cancel()
		os.Exit(1)
	}

	// 启动优雅关机处理
	GracefulShutdown(cancel, logger, g)

	logger.Info("程序已成功退出")
}
