// internal/storage/glossary.go
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	apperrors "github.com/Corphon/EpubTranslator/internal/errors"
	"github.com/Corphon/EpubTranslator/internal/models"
)

func glossaryNotFound(id int64) error {
	return apperrors.NewNotFoundError(fmt.Sprintf("术语不存在: %d", id), nil)
}

// ListGlossary 返回书籍的术语表，按添加顺序排列
func (s *Store) ListGlossary(ctx context.Context, bookID int64) ([]*models.GlossaryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, book_id, word, translation FROM glossary WHERE book_id = ? ORDER BY id`, bookID)
	if err != nil {
		return nil, fmt.Errorf("查询术语表失败: %w", err)
	}
	defer rows.Close()

	var entries []*models.GlossaryEntry
	for rows.Next() {
		var entry models.GlossaryEntry
		if err := rows.Scan(&entry.ID, &entry.BookID, &entry.Word, &entry.Translation); err != nil {
			return nil, fmt.Errorf("读取术语失败: %w", err)
		}
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}

// GetGlossaryEntry 按 ID 读取术语
func (s *Store) GetGlossaryEntry(ctx context.Context, id int64) (*models.GlossaryEntry, error) {
	var entry models.GlossaryEntry
	err := s.db.QueryRowContext(ctx,
		`SELECT id, book_id, word, translation FROM glossary WHERE id = ?`, id,
	).Scan(&entry.ID, &entry.BookID, &entry.Word, &entry.Translation)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, glossaryNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("读取术语失败: %w", err)
	}
	return &entry, nil
}

// CreateGlossaryEntry 添加术语
func (s *Store) CreateGlossaryEntry(ctx context.Context, entry *models.GlossaryEntry) error {
	if _, err := s.GetBook(ctx, entry.BookID); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO glossary (book_id, word, translation) VALUES (?, ?, ?)`,
		entry.BookID, entry.Word, entry.Translation)
	if err != nil {
		return fmt.Errorf("添加术语失败: %w", err)
	}
	if entry.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("读取术语 ID 失败: %w", err)
	}
	return nil
}

// UpdateGlossaryEntry 更新术语及其译文
func (s *Store) UpdateGlossaryEntry(ctx context.Context, entry *models.GlossaryEntry) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE glossary SET word = ?, translation = ? WHERE id = ?`,
		entry.Word, entry.Translation, entry.ID)
	if err != nil {
		return fmt.Errorf("更新术语失败: %w", err)
	}
	return expectAffected(res, glossaryNotFound(entry.ID))
}

// DeleteGlossaryEntry 删除术语
func (s *Store) DeleteGlossaryEntry(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM glossary WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("删除术语失败: %w", err)
	}
	return expectAffected(res, glossaryNotFound(id))
}
