// internal/app/app.go
package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/Corphon/EpubTranslator/internal/api"
	"github.com/Corphon/EpubTranslator/internal/config"
	"github.com/Corphon/EpubTranslator/internal/di"
	"github.com/Corphon/EpubTranslator/internal/services"
	"github.com/Corphon/EpubTranslator/internal/storage"
	"github.com/Corphon/EpubTranslator/internal/utils"

	// 注册翻译服务
	_ "github.com/Corphon/EpubTranslator/internal/translate/providers/lambda"
	_ "github.com/Corphon/EpubTranslator/internal/translate/providers/yandex"
)

// Server HTTP 服务器需要实现的方法
type Server interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// App 应用程序实例
type App struct {
	config   *config.AppConfig
	router   http.Handler
	server   Server
	stopChan chan os.Signal
}

var (
	instance *App
	mu       sync.Mutex
)

// GetApp 获取应用实例（单例模式）
func GetApp() *App {
	mu.Lock()
	defer mu.Unlock()
	if instance == nil {
		instance = &App{
			stopChan: make(chan os.Signal, 1),
		}
	}
	return instance
}

// Initialize 初始化配置、日志、服务和路由
func Initialize(baseConfig *config.Config) error {
	if err := baseConfig.EnsureDirectories(); err != nil {
		return err
	}
	if err := config.InitConfigWith(baseConfig); err != nil {
		return fmt.Errorf("初始化配置失败: %w", err)
	}

	app := GetApp()
	app.config = config.GetCurrentConfig()

	if err := initLogger(app.config.LogDir); err != nil {
		return fmt.Errorf("初始化日志系统失败: %w", err)
	}
	if app.config.DebugMode {
		utils.GetLogger().SetLogLevel(utils.DEBUG)
	}

	if err := InitServices(); err != nil {
		return fmt.Errorf("初始化服务失败: %w", err)
	}

	router, err := api.SetupRouter()
	if err != nil {
		return fmt.Errorf("设置路由失败: %w", err)
	}
	app.router = router
	app.server = &http.Server{
		Addr:              ":" + app.config.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return nil
}

// InitServices 按依赖顺序创建服务并注册到容器
func InitServices() error {
	cfg := config.GetCurrentConfig()
	container := di.GetContainer()

	// 1. 存储
	store, err := storage.Open(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("打开数据库失败: %w", err)
	}
	container.Register("store", store)

	files, err := storage.NewFileStorage(cfg.DataDir)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("创建文件存储失败: %w", err)
	}
	container.Register("files", files)

	// 2. 基础服务
	locks := services.NewLockManager()
	container.Register("locks", locks)
	progress := services.NewProgressService()
	container.Register("progress", progress)
	configService := services.NewConfigService()
	container.Register("config", configService)

	// 3. 业务服务
	container.Register("book", services.NewBookService(store, files))
	container.Register("chapter", services.NewChapterService(store))
	container.Register("glossary", services.NewGlossaryService(store))
	container.Register("export", services.NewExportService(store, files))

	translation := services.NewTranslationService(store, configService, locks, progress)
	container.Register("translation", translation)

	// 4. 进度推送
	wsManager := api.NewWebSocketManager()
	translation.SetBroadcaster(wsManager)
	container.Register("websocket", wsManager)

	utils.GetLogger().Info("服务初始化完成", map[string]interface{}{
		"services": len(container.GetNames()),
		"database": cfg.DatabasePath,
		"provider": cfg.TranslatorProvider,
		"ready":    configService.IsReady(),
	})
	return nil
}

// initLogger 初始化按天命名的日志文件
func initLogger(logDir string) error {
	if logDir == "" {
		logDir = "logs"
	}
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return fmt.Errorf("创建日志目录失败: %w", err)
	}
	return utils.InitLogger(utils.DailyLogPath(logDir, time.Now()))
}

// Run 启动服务器并等待退出信号
func Run() error {
	app := GetApp()
	if app.server == nil {
		return fmt.Errorf("应用尚未初始化")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	app.startBackgroundTasks(ctx)

	errChan := make(chan error, 1)
	go func() {
		if err := app.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	signal.Notify(app.stopChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(app.stopChan)

	select {
	case err := <-errChan:
		app.cleanup()
		return fmt.Errorf("启动服务器失败: %w", err)
	case <-app.stopChan:
	}

	log.Println("🛑 正在关闭服务器...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := app.server.Shutdown(shutdownCtx); err != nil {
		app.cleanup()
		return fmt.Errorf("服务器强制关闭: %w", err)
	}

	app.cleanup()
	log.Println("✅ 服务器优雅关闭完成")
	return nil
}

// startBackgroundTasks 定期清理已结束的任务并输出指标
func (app *App) startBackgroundTasks(ctx context.Context) {
	utils.NewAppMetrics().StartMetricsReporting(ctx, 10*time.Minute)

	progress, ok := di.GetContainer().Get("progress").(*services.ProgressService)
	if !ok {
		return
	}
	go func() {
		ticker := time.NewTicker(30 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed := progress.CleanupCompletedTasks(time.Hour); removed > 0 {
					utils.GetLogger().Info("清理已结束的翻译任务", map[string]interface{}{"removed": removed})
				}
			}
		}
	}()
}

// cleanup 停止后台任务并释放资源
func (app *App) cleanup() {
	container := di.GetContainer()

	if translation, ok := container.Get("translation").(*services.TranslationService); ok {
		translation.Shutdown()
	}
	if wsManager, ok := container.Get("websocket").(*api.WebSocketManager); ok {
		wsManager.Shutdown()
	}
	if locks, ok := container.Get("locks").(*services.LockManager); ok {
		locks.Stop()
	}
	if store, ok := container.Get("store").(*storage.Store); ok {
		if err := store.Close(); err != nil {
			log.Printf("关闭数据库失败: %v", err)
		}
	}
	if err := utils.CloseLogger(); err != nil {
		log.Printf("关闭日志文件失败: %v", err)
	}
}

// GetConfig 获取应用配置
func (app *App) GetConfig() *config.AppConfig {
	return app.config
}

// GetDIContainer 获取依赖注入容器
func GetDIContainer() *di.Container {
	return di.GetContainer()
}

// IsDebugMode 是否处于调试模式
func IsDebugMode() bool {
	app := GetApp()
	return app.config != nil && app.config.DebugMode
}

// DatabasePath 返回数据库文件的绝对路径，用于启动日志
func DatabasePath() string {
	cfg := config.GetCurrentConfig()
	if abs, err := filepath.Abs(cfg.DatabasePath); err == nil {
		return abs
	}
	return cfg.DatabasePath
}
