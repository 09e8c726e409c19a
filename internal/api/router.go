// internal/api/router.go
package api

import (
	"fmt"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/Corphon/ScriptStudioMCP/internal/config"
	"github.com/Corphon/ScriptStudioMCP/internal/di"
	"github.com/Corphon/ScriptStudioMCP/internal/services"
)

// SetupRouter 配置HTTP路由
func SetupRouter() (*gin.Engine, error) {
	cfg := config.GetCurrentConfig()

	// 获取依赖注入容器
	container := di.GetContainer()

	// 只从容器获取服务，不再创建新实例
	sessionService, ok := container.Get("session").(*services.SessionService)
	if !ok {
		return nil, fmt.Errorf("会话服务未正确初始化")
	}

	scriptService, ok := container.Get("script").(*services.ScriptService)
	if !ok {
		return nil, fmt.Errorf("大本服务未正确初始化")
	}

	analyzerService, ok := container.Get("analyzer").(*services.AnalyzerService)
	if !ok {
		return nil, fmt.Errorf("分析服务未正确初始化")
	}

	imageService, ok := container.Get("image").(*services.ImageService)
	if !ok {
		return nil, fmt.Errorf("图像服务未正确初始化")
	}

	exportService, ok := container.Get("export").(*services.ExportService)
	if !ok {
		return nil, fmt.Errorf("导出服务未正确初始化")
	}

	handler := NewHandler(
		sessionService,
		scriptService,
		analyzerService,
		imageService,
		exportService,
	)

	if !cfg.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(corsMiddleware())
	r.Use(requestIDMiddleware())
	r.Use(requestLogMiddleware())

	// 静态文件服务（前端构建产物，存在时才挂载）
	if _, err := os.Stat(cfg.StaticDir); err == nil {
		r.Static("/static", cfg.StaticDir)
	}

	registerRoutes(r, handler)

	return r, nil
}

// registerRoutes 挂载全部路由
func registerRoutes(r *gin.Engine, handler *Handler) {
	// WebSocket 支持
	r.GET("/ws/sessions/:id", handler.SessionWebSocket)

	// ===============================
	// API路由组
	// ===============================
	api := r.Group("/api")
	{
		api.GET("/health", handler.Health)

		sessionGroup := api.Group("/sessions")
		{
			sessionGroup.POST("", handler.CreateSession)
			sessionGroup.GET("/:id/state", handler.GetSessionState)
			sessionGroup.DELETE("/:id", handler.ResetSession)
			sessionGroup.PUT("/:id/input", handler.UpdateInput)

			// 大本生成与编辑
			sessionGroup.POST("/:id/script", handler.GenerateScript)
			sessionGroup.POST("/:id/script/demo", handler.LoadDemoScript)
			sessionGroup.PUT("/:id/script/cuts/prompt", handler.UpdateCutPrompt)

			// 风格/人物参考
			sessionGroup.POST("/:id/style", handler.AnalyzeStyle)
			sessionGroup.DELETE("/:id/style", handler.ClearStyle)
			sessionGroup.POST("/:id/characters", handler.AnalyzeCharacter)
			sessionGroup.DELETE("/:id/characters/:charID", handler.RemoveCharacter)
			sessionGroup.POST("/:id/autocast", handler.AutoCast)

			// 镜头图像
			sessionGroup.POST("/:id/cuts/:scene/:cut/image", handler.GenerateCutImage)
			sessionGroup.POST("/:id/cuts/:scene/:cut/image/regenerate", handler.RegenerateCutImage)
			sessionGroup.DELETE("/:id/cuts/:scene/:cut/image", handler.RemoveCutImage)

			// 导出
			sessionGroup.GET("/:id/export/word", handler.ExportWord)
			sessionGroup.GET("/:id/export/print", handler.ExportPrint)
			sessionGroup.GET("/:id/export/files", handler.ListExportArtifacts)
			sessionGroup.GET("/:id/export/files/:name", handler.DownloadExportArtifact)
		}
	}
}
