// internal/services/chapter_service.go
package services

import (
	"context"
	"fmt"
	"strings"

	apperrors "github.com/Corphon/EpubTranslator/internal/errors"
	"github.com/Corphon/EpubTranslator/internal/models"
	"github.com/Corphon/EpubTranslator/internal/storage"
)

// ChunkInput 编辑段落时提交的字段
type ChunkInput struct {
	OriginalText   string `json:"original_text"`
	TranslatedText string `json:"translated_text"`
	Translated     bool   `json:"translated"`
}

// ChapterDetail 章节编辑页所需的数据
type ChapterDetail struct {
	Book    *models.Book    `json:"book"`
	Chapter *models.Chapter `json:"chapter"`
	PrevID  int64           `json:"prev_id,omitempty"`
	NextID  int64           `json:"next_id,omitempty"`
}

// ChapterService 负责章节和段落的读取与编辑
type ChapterService struct {
	store *storage.Store
}

// NewChapterService 创建章节服务
func NewChapterService(store *storage.Store) *ChapterService {
	return &ChapterService{store: store}
}

// GetChapter 读取章节、段落及所属书籍
func (s *ChapterService) GetChapter(ctx context.Context, id int64) (*ChapterDetail, error) {
	chapter, err := s.store.GetChapter(ctx, id)
	if err != nil {
		return nil, err
	}
	book, err := s.store.GetBook(ctx, chapter.BookID)
	if err != nil {
		return nil, err
	}
	if chapter.Chunks, err = s.store.ListChunks(ctx, id); err != nil {
		return nil, err
	}

	detail := &ChapterDetail{Book: book, Chapter: chapter}
	chapters, err := s.store.ListBookChapters(ctx, book.ID)
	if err != nil {
		return nil, err
	}
	for i, c := range chapters {
		if c.ID != id {
			continue
		}
		if i > 0 {
			detail.PrevID = chapters[i-1].ID
		}
		if i+1 < len(chapters) {
			detail.NextID = chapters[i+1].ID
		}
		break
	}
	return detail, nil
}

// UpdateChunk 更新章节中的一个段落，空译文保存为 NULL
func (s *ChapterService) UpdateChunk(ctx context.Context, chapterID, chunkID int64, input ChunkInput) (*models.Chunk, error) {
	chunk, err := s.store.GetChunk(ctx, chunkID)
	if err != nil {
		return nil, err
	}
	if chunk.ChapterID != chapterID {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("段落 %d 不属于章节 %d", chunkID, chapterID), nil)
	}

	original := strings.TrimSpace(input.OriginalText)
	if original == "" {
		return nil, apperrors.NewValidationError("原文不能为空", nil)
	}

	chunk.OriginalText = original
	chunk.TranslatedText = models.StringPtr(strings.TrimSpace(input.TranslatedText))
	chunk.Translated = input.Translated
	if err := s.store.UpdateChunk(ctx, chunk); err != nil {
		return nil, err
	}
	return chunk, nil
}
