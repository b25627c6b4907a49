// cmd/epubctl/context.go
package main

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Corphon/EpubTranslator/internal/config"
	"github.com/Corphon/EpubTranslator/internal/services"
	"github.com/Corphon/EpubTranslator/internal/storage"
	"github.com/Corphon/EpubTranslator/internal/utils"
)

// commandContext 延迟打开数据库和创建服务，所有子命令共用
type commandContext struct {
	dataDir string
	verbose bool

	once       sync.Once
	err        error
	store      *storage.Store
	locks      *services.LockManager
	books      *services.BookService
	chapters   *services.ChapterService
	glossary   *services.GlossaryService
	exporter   *services.ExportService
	settings   *services.ConfigService
	translator *services.TranslationService
}

func newCommandContext() *commandContext {
	return &commandContext{}
}

func (c *commandContext) ensureServices() error {
	c.once.Do(func() {
		logger := utils.GetLogger()
		if c.verbose {
			logger.SetOutput(os.Stderr)
		} else {
			logger.SetOutput(io.Discard)
		}

		cfg, err := config.Load()
		if err != nil {
			c.err = err
			return
		}
		if dir := strings.TrimSpace(c.dataDir); dir != "" {
			cfg.DataDir = dir
			cfg.DatabasePath = filepath.Join(dir, "books.db")
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.err = err
			return
		}
		if err := config.InitConfigWith(cfg); err != nil {
			c.err = err
			return
		}

		store, err := storage.Open(cfg.DatabasePath)
		if err != nil {
			c.err = err
			return
		}
		files, err := storage.NewFileStorage(cfg.DataDir)
		if err != nil {
			_ = store.Close()
			c.err = err
			return
		}

		c.store = store
		c.locks = services.NewLockManager()
		c.settings = services.NewConfigService()
		c.books = services.NewBookService(store, files)
		c.chapters = services.NewChapterService(store)
		c.glossary = services.NewGlossaryService(store)
		c.exporter = services.NewExportService(store, files)
		c.translator = services.NewTranslationService(store, c.settings, c.locks, services.NewProgressService())
	})
	return c.err
}

func (c *commandContext) close() {
	if c.locks != nil {
		c.locks.Stop()
	}
	if c.store != nil {
		_ = c.store.Close()
	}
}
