// internal/storage/chapters.go
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	apperrors "github.com/Corphon/EpubTranslator/internal/errors"
	"github.com/Corphon/EpubTranslator/internal/models"
)

const chapterSelect = `SELECT c.id, c.part_id, p.book_id, c.title, c.href, c.position,
        (SELECT COUNT(1) FROM chunks k WHERE k.chapter_id = c.id),
        (SELECT COUNT(1) FROM chunks k WHERE k.chapter_id = c.id AND k.translated = 1)
    FROM chapters c
    JOIN parts p ON p.id = c.part_id`

func scanChapter(row rowScanner) (*models.Chapter, error) {
	var chapter models.Chapter
	err := row.Scan(&chapter.ID, &chapter.PartID, &chapter.BookID, &chapter.Title, &chapter.Href,
		&chapter.Order, &chapter.ChunkCount, &chapter.TranslatedCount)
	if err != nil {
		return nil, err
	}
	return &chapter, nil
}

// GetChapter 按 ID 读取章节（不含段落）
func (s *Store) GetChapter(ctx context.Context, id int64) (*models.Chapter, error) {
	row := s.db.QueryRowContext(ctx, chapterSelect+` WHERE c.id = ?`, id)
	chapter, err := scanChapter(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("章节不存在: %d", id), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("读取章节失败: %w", err)
	}
	return chapter, nil
}

// ListBookChapters 按分部和章节顺序返回书籍的全部章节
func (s *Store) ListBookChapters(ctx context.Context, bookID int64) ([]*models.Chapter, error) {
	if _, err := s.GetBook(ctx, bookID); err != nil {
		return nil, err
	}
	return s.listBookChapters(ctx, bookID)
}

func (s *Store) listBookChapters(ctx context.Context, bookID int64) ([]*models.Chapter, error) {
	rows, err := s.db.QueryContext(ctx, chapterSelect+` WHERE p.book_id = ? ORDER BY p.position, c.position`, bookID)
	if err != nil {
		return nil, fmt.Errorf("查询章节失败: %w", err)
	}
	defer rows.Close()

	var chapters []*models.Chapter
	for rows.Next() {
		chapter, err := scanChapter(rows)
		if err != nil {
			return nil, fmt.Errorf("读取章节失败: %w", err)
		}
		chapters = append(chapters, chapter)
	}
	return chapters, rows.Err()
}
