// internal/services/book_service.go
package services

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/Corphon/EpubTranslator/internal/epub"
	apperrors "github.com/Corphon/EpubTranslator/internal/errors"
	"github.com/Corphon/EpubTranslator/internal/models"
	"github.com/Corphon/EpubTranslator/internal/storage"
	"github.com/Corphon/EpubTranslator/internal/translate"
	"github.com/Corphon/EpubTranslator/internal/utils"
)

// BookInput 编辑书籍时提交的字段
type BookInput struct {
	Title    string `json:"title" form:"title"`
	Author   string `json:"author" form:"author"`
	Language string `json:"language" form:"language"`
}

// BookService 负责书籍的导入、查询、编辑和删除
type BookService struct {
	store   *storage.Store
	files   *storage.FileStorage
	metrics *utils.AppMetrics
	logger  *utils.Logger
}

// NewBookService 创建书籍服务
func NewBookService(store *storage.Store, files *storage.FileStorage) *BookService {
	return &BookService{
		store:   store,
		files:   files,
		metrics: utils.NewAppMetrics(),
		logger:  utils.GetLogger(),
	}
}

// ImportEPUB 解析上传的 EPUB 并保存为书籍
func (s *BookService) ImportEPUB(ctx context.Context, filename string, data []byte) (*models.Book, error) {
	if !strings.EqualFold(filepath.Ext(filename), ".epub") {
		return nil, apperrors.NewValidationError("只支持 .epub 文件", nil)
	}
	if len(data) == 0 {
		return nil, apperrors.NewValidationError("上传的文件为空", nil)
	}

	source, err := epub.Read(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}

	book := buildBook(source)
	book.SourceFile = storage.SanitizeFilename(filename)

	if err := s.store.CreateBook(ctx, book); err != nil {
		return nil, apperrors.NewProcessingError("保存书籍失败", err)
	}

	if s.files != nil {
		if _, err := s.files.SaveUpload(book.ID, filename, data); err != nil {
			s.logger.Warn("保存原始文件失败", map[string]interface{}{
				"book_id": book.ID,
				"error":   err.Error(),
			})
		}
	}

	chapters, chunks := countContent(book)
	s.metrics.RecordImport(book.ID, chapters, chunks)
	return book, nil
}

// ImportFile 从磁盘导入 EPUB 文件
func (s *BookService) ImportFile(ctx context.Context, path string) (*models.Book, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.NewValidationError("读取文件失败: "+path, err)
	}
	return s.ImportEPUB(ctx, filepath.Base(path), data)
}

// buildBook 按书脊顺序把每个内容文档转换为一个章节，全部放在第一个分部中
func buildBook(source *epub.Book) *models.Book {
	language, err := translate.NormalizeLanguage(source.Language)
	if err != nil {
		language = epub.DefaultLanguage
	}

	part := &models.Part{Order: 1}
	for _, doc := range source.Documents() {
		title := epub.ExtractTitle(doc.Content)
		if title == "" {
			title = doc.Name()
		}
		chapter := &models.Chapter{
			Title: truncateRunes(title, models.MaxTitleLength),
			Href:  doc.Href,
		}
		for _, text := range epub.ExtractParagraphs(doc.Content) {
			chapter.Chunks = append(chapter.Chunks, &models.Chunk{OriginalText: text})
		}
		part.Chapters = append(part.Chapters, chapter)
	}

	return &models.Book{
		Title:    truncateRunes(source.Title, models.MaxTitleLength),
		Author:   truncateRunes(source.Creator, models.MaxAuthorLength),
		Language: language,
		Metadata: source.Metadata,
		Parts:    []*models.Part{part},
	}
}

func countContent(book *models.Book) (int, int) {
	chapters, chunks := 0, 0
	for _, part := range book.Parts {
		chapters += len(part.Chapters)
		for _, chapter := range part.Chapters {
			chunks += len(chapter.Chunks)
		}
	}
	return chapters, chunks
}

func truncateRunes(s string, max int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}

// ListBooks 返回全部书籍及翻译进度
func (s *BookService) ListBooks(ctx context.Context) ([]*models.BookSummary, error) {
	return s.store.ListBooks(ctx)
}

// GetBook 读取书籍基本信息
func (s *BookService) GetBook(ctx context.Context, id int64) (*models.Book, error) {
	return s.store.GetBook(ctx, id)
}

// GetBookTree 读取书籍及其分部和章节
func (s *BookService) GetBookTree(ctx context.Context, id int64) (*models.Book, error) {
	return s.store.GetBookTree(ctx, id)
}

// UpdateBook 校验并保存书籍的标题、作者和语言
func (s *BookService) UpdateBook(ctx context.Context, id int64, input BookInput) (*models.Book, error) {
	book, err := s.store.GetBook(ctx, id)
	if err != nil {
		return nil, err
	}

	title := strings.TrimSpace(input.Title)
	author := strings.TrimSpace(input.Author)
	if title == "" {
		return nil, apperrors.NewValidationError("标题不能为空", nil)
	}
	if utf8.RuneCountInString(title) > models.MaxTitleLength {
		return nil, apperrors.NewValidationError(fmt.Sprintf("标题不能超过 %d 个字符", models.MaxTitleLength), nil)
	}
	if utf8.RuneCountInString(author) > models.MaxAuthorLength {
		return nil, apperrors.NewValidationError(fmt.Sprintf("作者不能超过 %d 个字符", models.MaxAuthorLength), nil)
	}
	language, err := translate.NormalizeLanguage(input.Language)
	if err != nil {
		return nil, err
	}

	book.Title = title
	book.Author = author
	book.Language = language
	if err := s.store.UpdateBook(ctx, book); err != nil {
		return nil, err
	}
	return book, nil
}

// DeleteBook 删除书籍及其上传文件
func (s *BookService) DeleteBook(ctx context.Context, id int64) error {
	if err := s.store.DeleteBook(ctx, id); err != nil {
		return err
	}
	if s.files != nil {
		if err := s.files.DeleteBookFiles(id); err != nil {
			s.logger.Warn("删除书籍文件失败", map[string]interface{}{
				"book_id": id,
				"error":   err.Error(),
			})
		}
	}
	s.logger.Info("书籍已删除", map[string]interface{}{"book_id": id})
	return nil
}
