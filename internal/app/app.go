// internal/app/app.go
package app

import (
	"fmt"
	"time"

	"github.com/Corphon/ScriptStudioMCP/internal/config"
	"github.com/Corphon/ScriptStudioMCP/internal/di"
	"github.com/Corphon/ScriptStudioMCP/internal/services"
	"github.com/Corphon/ScriptStudioMCP/internal/storage"
	"github.com/Corphon/ScriptStudioMCP/internal/utils"

	// 注册google提供商
	_ "github.com/Corphon/ScriptStudioMCP/internal/llm/providers/google"
)

// InitServices 按依赖顺序初始化所有服务并注册到容器
func InitServices() error {
	cfg := config.GetCurrentConfig()
	container := di.GetContainer()

	// 1. 导出产物存储
	fileStorage, err := storage.NewFileStorage(cfg.ExportDir)
	if err != nil {
		return fmt.Errorf("初始化文件存储失败: %w", err)
	}
	container.Register("storage", fileStorage)

	// 2. 会话服务（会话移除时连带清理其导出产物）
	ttl := time.Duration(cfg.SessionTTLMinutes) * time.Minute
	sessionService := services.NewSessionService(ttl, fileStorage)
	container.Register("session", sessionService)

	// 3. 提供商解析器（会话凭证优先于服务器配置的API密钥）
	resolver := services.ProviderResolver(services.DefaultProviderResolver)

	// 4. 业务服务
	container.Register("script", services.NewScriptService(resolver))
	container.Register("analyzer", services.NewAnalyzerService(resolver))
	container.Register("image", services.NewImageService(resolver))
	container.Register("export", services.NewExportService(fileStorage))

	utils.GetLogger().WithField("services", len(container.GetNames())).Info("服务初始化完成")
	return nil
}

// ShutdownServices 停止需要清理的后台服务
func ShutdownServices() {
	container := di.GetContainer()

	if sessionService, ok := container.Get("session").(*services.SessionService); ok {
		sessionService.Stop()
	}
}
