// internal/services/export_service.go
package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Corphon/EpubTranslator/internal/epub"
	apperrors "github.com/Corphon/EpubTranslator/internal/errors"
	"github.com/Corphon/EpubTranslator/internal/models"
	"github.com/Corphon/EpubTranslator/internal/storage"
	"github.com/Corphon/EpubTranslator/internal/utils"
)

// EPUBContentType 导出文件的 MIME 类型
const EPUBContentType = "application/epub+zip"

// ExportService 把书籍重新打包为 EPUB
type ExportService struct {
	store   *storage.Store
	files   *storage.FileStorage
	metrics *utils.AppMetrics
	logger  *utils.Logger
}

// NewExportService 创建导出服务
func NewExportService(store *storage.Store, files *storage.FileStorage) *ExportService {
	return &ExportService{
		store:   store,
		files:   files,
		metrics: utils.NewAppMetrics(),
		logger:  utils.GetLogger(),
	}
}

// ExportFilename 导出文件名
func ExportFilename(bookID int64) string {
	return fmt.Sprintf("book_%d.epub", bookID)
}

// ExportEPUB 生成包含当前译文的 EPUB
func (s *ExportService) ExportEPUB(ctx context.Context, bookID int64) (*models.ExportResult, error) {
	// 1. 读取完整书籍内容
	book, err := s.store.GetBookContent(ctx, bookID)
	if err != nil {
		return nil, err
	}

	// 2. 按分部和章节顺序组装导出内容
	exportBook := buildExportBook(book)

	// 3. 在临时目录中生成文件
	var dir string
	if s.files != nil {
		dir, err = s.files.TempDir("export-*")
	} else {
		dir, err = os.MkdirTemp("", "epubtr-export-*")
	}
	if err != nil {
		return nil, apperrors.NewProcessingError("创建临时目录失败", err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			s.logger.Warn("删除临时目录失败", map[string]interface{}{"dir": dir, "error": err.Error()})
		}
	}()

	filename := ExportFilename(bookID)
	path := filepath.Join(dir, filename)
	if err := epub.Write(exportBook, path); err != nil {
		return nil, apperrors.NewProcessingError("生成 EPUB 失败", err)
	}

	// 4. 读回内存
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.NewProcessingError("读取导出文件失败", err)
	}

	result := &models.ExportResult{
		BookID:      bookID,
		Title:       book.Title,
		Filename:    filename,
		ContentType: EPUBContentType,
		Data:        data,
		FileSize:    int64(len(data)),
		Chapters:    len(exportBook.Chapters),
		GeneratedAt: time.Now(),
	}
	s.metrics.RecordExport(bookID, result.FileSize)
	return result, nil
}

func buildExportBook(book *models.Book) epub.ExportBook {
	out := epub.ExportBook{
		ID:       book.ID,
		Title:    book.Title,
		Author:   book.Author,
		Language: book.Language,
	}
	for _, part := range book.Parts {
		for _, chapter := range part.Chapters {
			paragraphs := make([]string, 0, len(chapter.Chunks))
			for _, chunk := range chapter.Chunks {
				paragraphs = append(paragraphs, chunk.Text())
			}
			out.Chapters = append(out.Chapters, epub.ExportChapter{
				ID:         chapter.ID,
				Title:      chapter.DisplayTitle(),
				Paragraphs: paragraphs,
			})
		}
	}
	return out
}
