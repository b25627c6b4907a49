// internal/storage/chunks.go
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	apperrors "github.com/Corphon/EpubTranslator/internal/errors"
	"github.com/Corphon/EpubTranslator/internal/models"
)

const chunkColumns = `k.id, k.chapter_id, k.original_text, k.translated_text, k.translated, k.position`

func scanChunk(row rowScanner) (*models.Chunk, error) {
	var (
		chunk      models.Chunk
		translated sql.NullString
		flag       int
	)
	if err := row.Scan(&chunk.ID, &chunk.ChapterID, &chunk.OriginalText, &translated, &flag, &chunk.Order); err != nil {
		return nil, err
	}
	chunk.TranslatedText = stringPtr(translated)
	chunk.Translated = flag != 0
	return &chunk, nil
}

func collectChunks(rows *sql.Rows) ([]*models.Chunk, error) {
	defer rows.Close()

	var chunks []*models.Chunk
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, fmt.Errorf("读取段落失败: %w", err)
		}
		chunks = append(chunks, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历段落失败: %w", err)
	}
	return chunks, nil
}

func chunkNotFound(id int64) error {
	return apperrors.NewNotFoundError(fmt.Sprintf("段落不存在: %d", id), nil)
}

// ListChunks 按顺序返回章节的全部段落
func (s *Store) ListChunks(ctx context.Context, chapterID int64) ([]*models.Chunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+chunkColumns+` FROM chunks k WHERE k.chapter_id = ? ORDER BY k.position`, chapterID)
	if err != nil {
		return nil, fmt.Errorf("查询段落失败: %w", err)
	}
	return collectChunks(rows)
}

// ListUntranslatedChunks 按顺序返回章节中尚未翻译的段落
func (s *Store) ListUntranslatedChunks(ctx context.Context, chapterID int64) ([]*models.Chunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+chunkColumns+` FROM chunks k WHERE k.chapter_id = ? AND k.translated = 0 ORDER BY k.position`, chapterID)
	if err != nil {
		return nil, fmt.Errorf("查询未翻译段落失败: %w", err)
	}
	return collectChunks(rows)
}

// GetChunk 按 ID 读取段落
func (s *Store) GetChunk(ctx context.Context, id int64) (*models.Chunk, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+chunkColumns+` FROM chunks k WHERE k.id = ?`, id)
	chunk, err := scanChunk(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, chunkNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("读取段落失败: %w", err)
	}
	return chunk, nil
}

// UpdateChunk 保存段落的原文、译文和翻译标记
func (s *Store) UpdateChunk(ctx context.Context, chunk *models.Chunk) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE chunks SET original_text = ?, translated_text = ?, translated = ? WHERE id = ?`,
		chunk.OriginalText, nullableString(chunk.TranslatedText), boolToInt(chunk.Translated), chunk.ID,
	)
	if err != nil {
		return fmt.Errorf("更新段落失败: %w", err)
	}
	return expectAffected(res, chunkNotFound(chunk.ID))
}

// SaveTranslation 写入译文并把段落标记为已翻译
func (s *Store) SaveTranslation(ctx context.Context, chunkID int64, text string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE chunks SET translated_text = ?, translated = 1 WHERE id = ?`, text, chunkID)
	if err != nil {
		return fmt.Errorf("保存译文失败: %w", err)
	}
	return expectAffected(res, chunkNotFound(chunkID))
}

// SaveTranslations 在一个事务中批量写入译文，键为段落 ID
func (s *Store) SaveTranslations(ctx context.Context, translations map[int64]string) error {
	if len(translations) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `UPDATE chunks SET translated_text = ?, translated = 1 WHERE id = ?`)
		if err != nil {
			return fmt.Errorf("准备译文语句失败: %w", err)
		}
		defer stmt.Close()

		for id, text := range translations {
			res, err := stmt.ExecContext(ctx, text, id)
			if err != nil {
				return fmt.Errorf("保存译文失败: %w", err)
			}
			if err := expectAffected(res, chunkNotFound(id)); err != nil {
				return err
			}
		}
		return nil
	})
}
