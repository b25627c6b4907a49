// internal/services/glossary_service.go
package services

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	apperrors "github.com/Corphon/EpubTranslator/internal/errors"
	"github.com/Corphon/EpubTranslator/internal/models"
	"github.com/Corphon/EpubTranslator/internal/storage"
	"github.com/Corphon/EpubTranslator/internal/translate"
)

// GlossaryService 管理书籍术语表
type GlossaryService struct {
	store *storage.Store
}

// NewGlossaryService 创建术语表服务
func NewGlossaryService(store *storage.Store) *GlossaryService {
	return &GlossaryService{store: store}
}

func validateGlossaryInput(word, translation string) (string, string, error) {
	word = strings.TrimSpace(word)
	translation = strings.TrimSpace(translation)
	if word == "" || translation == "" {
		return "", "", apperrors.NewValidationError("术语和译文都不能为空", nil)
	}
	if utf8.RuneCountInString(word) > models.MaxGlossaryFieldLength ||
		utf8.RuneCountInString(translation) > models.MaxGlossaryFieldLength {
		return "", "", apperrors.NewValidationError(
			fmt.Sprintf("术语和译文不能超过 %d 个字符", models.MaxGlossaryFieldLength), nil)
	}
	return word, translation, nil
}

// List 返回书籍的术语表
func (s *GlossaryService) List(ctx context.Context, bookID int64) ([]*models.GlossaryEntry, error) {
	if _, err := s.store.GetBook(ctx, bookID); err != nil {
		return nil, err
	}
	return s.store.ListGlossary(ctx, bookID)
}

// Get 读取一条术语
func (s *GlossaryService) Get(ctx context.Context, id int64) (*models.GlossaryEntry, error) {
	return s.store.GetGlossaryEntry(ctx, id)
}

// Add 向书籍术语表添加一条术语
func (s *GlossaryService) Add(ctx context.Context, bookID int64, word, translation string) (*models.GlossaryEntry, error) {
	word, translation, err := validateGlossaryInput(word, translation)
	if err != nil {
		return nil, err
	}
	entry := &models.GlossaryEntry{BookID: bookID, Word: word, Translation: translation}
	if err := s.store.CreateGlossaryEntry(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// Update 修改术语及其译文
func (s *GlossaryService) Update(ctx context.Context, id int64, word, translation string) (*models.GlossaryEntry, error) {
	entry, err := s.store.GetGlossaryEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	if entry.Word, entry.Translation, err = validateGlossaryInput(word, translation); err != nil {
		return nil, err
	}
	if err := s.store.UpdateGlossaryEntry(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// Delete 删除术语，返回所属书籍 ID
func (s *GlossaryService) Delete(ctx context.Context, id int64) (int64, error) {
	entry, err := s.store.GetGlossaryEntry(ctx, id)
	if err != nil {
		return 0, err
	}
	if err := s.store.DeleteGlossaryEntry(ctx, id); err != nil {
		return 0, err
	}
	return entry.BookID, nil
}

// Pairs 把术语表转换为翻译服务使用的术语对
func (s *GlossaryService) Pairs(ctx context.Context, bookID int64) ([]translate.GlossaryPair, error) {
	entries, err := s.store.ListGlossary(ctx, bookID)
	if err != nil {
		return nil, err
	}
	pairs := make([]translate.GlossaryPair, 0, len(entries))
	for _, entry := range entries {
		pairs = append(pairs, translate.GlossaryPair{Source: entry.Word, Translation: entry.Translation})
	}
	return pairs, nil
}
