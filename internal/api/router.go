// internal/api/router.go
package api

import (
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/Corphon/EpubTranslator/internal/config"
	"github.com/Corphon/EpubTranslator/internal/di"
	"github.com/Corphon/EpubTranslator/internal/models"
	"github.com/Corphon/EpubTranslator/internal/services"
	"github.com/Corphon/EpubTranslator/internal/storage"
	"github.com/Corphon/EpubTranslator/internal/translate"
	"github.com/Corphon/EpubTranslator/internal/utils"
	"github.com/Corphon/EpubTranslator/web"
	"github.com/gin-gonic/gin"
)

// SetupRouter 从依赖注入容器获取服务并配置HTTP路由
func SetupRouter() (*gin.Engine, error) {
	cfg := config.GetCurrentConfig()
	container := di.GetContainer()

	store, err := di.Resolve[*storage.Store](container, "store")
	if err != nil {
		return nil, fmt.Errorf("数据库未正确初始化: %w", err)
	}
	handler := &Handler{
		Health:   store,
		Metrics:  utils.NewAppMetrics(),
		Response: NewResponseHelper(),
	}

	if handler.BookService, err = di.Resolve[*services.BookService](container, "book"); err != nil {
		return nil, fmt.Errorf("书籍服务未正确初始化: %w", err)
	}
	if handler.ChapterService, err = di.Resolve[*services.ChapterService](container, "chapter"); err != nil {
		return nil, fmt.Errorf("章节服务未正确初始化: %w", err)
	}
	if handler.GlossaryService, err = di.Resolve[*services.GlossaryService](container, "glossary"); err != nil {
		return nil, fmt.Errorf("术语表服务未正确初始化: %w", err)
	}
	if handler.TranslationService, err = di.Resolve[*services.TranslationService](container, "translation"); err != nil {
		return nil, fmt.Errorf("翻译服务未正确初始化: %w", err)
	}
	if handler.ExportService, err = di.Resolve[*services.ExportService](container, "export"); err != nil {
		return nil, fmt.Errorf("导出服务未正确初始化: %w", err)
	}
	if handler.ConfigService, err = di.Resolve[*services.ConfigService](container, "config"); err != nil {
		return nil, fmt.Errorf("配置服务未正确初始化: %w", err)
	}
	if handler.ProgressService, err = di.Resolve[*services.ProgressService](container, "progress"); err != nil {
		return nil, fmt.Errorf("进度服务未正确初始化: %w", err)
	}

	// WebSocket 管理器未注册时在这里创建并接入翻译服务
	if handler.WebSocket, err = di.Resolve[*WebSocketManager](container, "websocket"); err != nil {
		handler.WebSocket = NewWebSocketManager()
		container.Register("websocket", handler.WebSocket)
		handler.TranslationService.SetBroadcaster(handler.WebSocket)
	}

	return NewRouter(handler, cfg)
}

// templateFuncs 页面模板使用的函数
func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"languageName": translate.LanguageName,
		"languages":    func() []string { return translate.CommonLanguages },
		"chunkField": func(chunk *models.Chunk, field string) string {
			return fmt.Sprintf("chunk_%d-%s", chunk.ID, field)
		},
		"percent": func(done, total int) int {
			if total <= 0 {
				return 0
			}
			return done * 100 / total
		},
		"add": func(a, b int) int { return a + b },
		"lower": strings.ToLower,
	}
}

// loadTemplates 优先使用磁盘上的模板目录，否则使用内嵌模板
func loadTemplates(templatesDir string) (*template.Template, error) {
	if templatesDir != "" {
		if matches, _ := filepath.Glob(filepath.Join(templatesDir, "*.html")); len(matches) > 0 {
			return template.New("").Funcs(templateFuncs()).ParseFiles(matches...)
		}
	}
	return template.New("").Funcs(templateFuncs()).ParseFS(web.FS, "templates/*.html")
}

// staticFS 优先使用磁盘上的静态文件目录，否则使用内嵌文件
func staticFS(staticDir string) (http.FileSystem, error) {
	if staticDir != "" {
		if info, err := os.Stat(staticDir); err == nil && info.IsDir() {
			return http.Dir(staticDir), nil
		}
	}
	sub, err := fs.Sub(web.FS, "static")
	if err != nil {
		return nil, err
	}
	return http.FS(sub), nil
}

// NewRouter 创建路由
func NewRouter(handler *Handler, cfg *config.AppConfig) (*gin.Engine, error) {
	if cfg == nil {
		cfg = &config.AppConfig{}
	}
	if handler.Metrics == nil {
		handler.Metrics = utils.NewAppMetrics()
	}
	if handler.Response == nil {
		handler.Response = NewResponseHelper()
	}

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(corsMiddleware())
	r.Use(MetricsMiddleware(handler.Metrics))
	r.Use(UploadLimitMiddleware(cfg.MaxUploadMB))

	// HTML模板
	tmpl, err := loadTemplates(cfg.TemplatesDir)
	if err != nil {
		return nil, fmt.Errorf("加载模板失败: %w", err)
	}
	r.SetHTMLTemplate(tmpl)

	// 静态文件服务
	static, err := staticFS(cfg.StaticDir)
	if err != nil {
		return nil, fmt.Errorf("加载静态文件失败: %w", err)
	}
	r.StaticFS("/static", static)

	limiter := NewRateLimiter()
	translateLimit := TranslationRateLimit(limiter)

	// ===============================
	// 页面路由
	// ===============================
	r.GET("/", handler.IndexPage)
	r.GET("/settings", handler.SettingsPage)
	r.POST("/settings", handler.SaveSettingsPage)

	books := r.Group("/books")
	{
		books.GET("", handler.BookListPage)
		books.GET("/load", handler.LoadBookPage)
		books.POST("/load", handler.LoadBook)

		books.GET("/book/:id", handler.ViewBookPage)
		books.GET("/book/:id/edit", handler.EditBookPage)
		books.POST("/book/:id/edit", handler.EditBook)
		books.POST("/book/:id/delete", handler.DeleteBookPage)
		books.GET("/book/:id/save", handler.SaveBookPage)
		books.POST("/book/:id/translate", translateLimit, handler.TranslateBookPage)
		books.GET("/book/:id/glossary", handler.ManageGlossaryPage)
		books.POST("/book/:id/glossary", handler.AddGlossaryPage)

		books.GET("/chapter/:id/edit", handler.EditChapterPage)
		books.POST("/chapter/:id/edit", handler.EditChapter)
		books.POST("/chapter/:id/translate", translateLimit, handler.TranslateChapterPage)

		books.GET("/glossary/:id/update", handler.UpdateGlossaryPage)
		books.POST("/glossary/:id/update", handler.UpdateGlossaryEntry)
		books.POST("/glossary/:id/delete", handler.DeleteGlossaryPage)
	}

	// WebSocket 进度推送
	r.GET("/ws/books/:id", handler.BookWebSocket)

	// ===============================
	// API路由组
	// ===============================
	api := r.Group("/api")
	{
		booksGroup := api.Group("/books")
		{
			booksGroup.GET("", handler.ListBooks)
			booksGroup.POST("", handler.UploadBook)
			booksGroup.GET("/:id", handler.GetBook)
			booksGroup.PUT("/:id", handler.UpdateBook)
			booksGroup.DELETE("/:id", handler.DeleteBook)
			booksGroup.GET("/:id/export", handler.ExportBook)
			booksGroup.GET("/:id/glossary", handler.ListGlossary)
			booksGroup.POST("/:id/glossary", handler.AddGlossary)
			booksGroup.POST("/:id/translate", translateLimit, handler.TranslateBook)
			booksGroup.GET("/:id/translation", handler.GetTranslationStatus)
		}

		chaptersGroup := api.Group("/chapters")
		{
			chaptersGroup.GET("/:id", handler.GetChapter)
			chaptersGroup.PUT("/:id/chunks/:chunkID", handler.UpdateChunk)
			chaptersGroup.POST("/:id/translate", translateLimit, handler.TranslateChapter)
		}

		glossaryGroup := api.Group("/glossary")
		{
			glossaryGroup.PUT("/:id", handler.UpdateGlossary)
			glossaryGroup.DELETE("/:id", handler.DeleteGlossary)
		}

		// ===============================
		// 进度和任务
		// ===============================
		api.GET("/progress/:taskID", handler.SubscribeProgress)
		api.POST("/cancel/:taskID", handler.CancelTask)

		// ===============================
		// 设置、指标和健康检查
		// ===============================
		api.GET("/settings", handler.GetSettings)
		api.PUT("/settings", handler.SaveSettings)
		api.GET("/metrics", handler.GetMetrics)
		api.GET("/health", handler.HealthCheck)
		api.GET("/ws/status", handler.GetWebSocketStatus)
	}

	return r, nil
}
