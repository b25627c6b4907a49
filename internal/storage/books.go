// internal/storage/books.go
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/Corphon/EpubTranslator/internal/errors"
	"github.com/Corphon/EpubTranslator/internal/models"
)

const bookColumns = `b.id, b.title, b.author, b.language, b.metadata_json, b.source_file, b.created_at, b.updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBook(row rowScanner, extra ...any) (*models.Book, error) {
	var (
		book                 models.Book
		metadataJSON         string
		createdAt, updatedAt string
	)
	dest := []any{&book.ID, &book.Title, &book.Author, &book.Language, &metadataJSON, &book.SourceFile, &createdAt, &updatedAt}
	dest = append(dest, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	book.CreatedAt = parseTime(createdAt)
	book.UpdatedAt = parseTime(updatedAt)
	book.Metadata = map[string][]string{}
	if strings.TrimSpace(metadataJSON) != "" {
		if err := json.Unmarshal([]byte(metadataJSON), &book.Metadata); err != nil {
			return nil, fmt.Errorf("解析书籍元数据失败: %w", err)
		}
	}
	return &book, nil
}

func bookNotFound(id int64) error {
	return apperrors.NewNotFoundError(fmt.Sprintf("书籍不存在: %d", id), nil)
}

// CreateBook 在一个事务中写入书籍及其分部、章节和段落，并回填 ID 与序号
func (s *Store) CreateBook(ctx context.Context, book *models.Book) error {
	if book == nil {
		return apperrors.NewValidationError("书籍不能为空", nil)
	}
	if book.Metadata == nil {
		book.Metadata = map[string][]string{}
	}
	metadataJSON, err := json.Marshal(book.Metadata)
	if err != nil {
		return fmt.Errorf("序列化书籍元数据失败: %w", err)
	}

	now := time.Now().UTC()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO books (title, author, language, metadata_json, source_file, created_at, updated_at)
             VALUES (?, ?, ?, ?, ?, ?, ?)`,
			book.Title, book.Author, book.Language, string(metadataJSON), book.SourceFile,
			formatTime(now), formatTime(now),
		)
		if err != nil {
			return fmt.Errorf("写入书籍失败: %w", err)
		}
		if book.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("读取书籍 ID 失败: %w", err)
		}
		book.CreatedAt, book.UpdatedAt = now, now

		for i, part := range book.Parts {
			part.BookID = book.ID
			part.Order = i + 1
			if err := insertPart(ctx, tx, part); err != nil {
				return err
			}
		}
		return nil
	})
}

func insertPart(ctx context.Context, tx *sql.Tx, part *models.Part) error {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO parts (book_id, title, position) VALUES (?, ?, ?)`,
		part.BookID, nullableString(part.Title), part.Order,
	)
	if err != nil {
		return fmt.Errorf("写入分部失败: %w", err)
	}
	if part.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("读取分部 ID 失败: %w", err)
	}

	chapterStmt, err := tx.PrepareContext(ctx, `INSERT INTO chapters (part_id, title, href, position) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("准备章节语句失败: %w", err)
	}
	defer chapterStmt.Close()

	chunkStmt, err := tx.PrepareContext(ctx, `INSERT INTO chunks (chapter_id, original_text, translated_text, translated, position) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("准备段落语句失败: %w", err)
	}
	defer chunkStmt.Close()

	for i, chapter := range part.Chapters {
		chapter.PartID = part.ID
		chapter.BookID = part.BookID
		chapter.Order = i + 1
		res, err := chapterStmt.ExecContext(ctx, chapter.PartID, chapter.Title, chapter.Href, chapter.Order)
		if err != nil {
			return fmt.Errorf("写入章节失败: %w", err)
		}
		if chapter.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("读取章节 ID 失败: %w", err)
		}

		chapter.ChunkCount = len(chapter.Chunks)
		chapter.TranslatedCount = 0
		for j, chunk := range chapter.Chunks {
			chunk.ChapterID = chapter.ID
			chunk.Order = j + 1
			res, err := chunkStmt.ExecContext(ctx, chunk.ChapterID, chunk.OriginalText,
				nullableString(chunk.TranslatedText), boolToInt(chunk.Translated), chunk.Order)
			if err != nil {
				return fmt.Errorf("写入段落失败: %w", err)
			}
			if chunk.ID, err = res.LastInsertId(); err != nil {
				return fmt.Errorf("读取段落 ID 失败: %w", err)
			}
			if chunk.Translated {
				chapter.TranslatedCount++
			}
		}
	}
	return nil
}

// ListBooks 返回书籍列表及翻译统计，最新导入的在前
func (s *Store) ListBooks(ctx context.Context) ([]*models.BookSummary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+bookColumns+`,
            (SELECT COUNT(1) FROM parts p WHERE p.book_id = b.id),
            (SELECT COUNT(1) FROM chapters c JOIN parts p ON p.id = c.part_id WHERE p.book_id = b.id),
            (SELECT COUNT(1) FROM chunks k JOIN chapters c ON c.id = k.chapter_id JOIN parts p ON p.id = c.part_id WHERE p.book_id = b.id),
            (SELECT COUNT(1) FROM chunks k JOIN chapters c ON c.id = k.chapter_id JOIN parts p ON p.id = c.part_id WHERE p.book_id = b.id AND k.translated = 1)
        FROM books b
        ORDER BY b.created_at DESC, b.id DESC`)
	if err != nil {
		return nil, fmt.Errorf("查询书籍列表失败: %w", err)
	}
	defer rows.Close()

	var summaries []*models.BookSummary
	for rows.Next() {
		var summary models.BookSummary
		book, err := scanBook(rows, &summary.PartCount, &summary.ChapterCount, &summary.ChunkCount, &summary.TranslatedCount)
		if err != nil {
			return nil, fmt.Errorf("读取书籍失败: %w", err)
		}
		summary.Book = *book
		summaries = append(summaries, &summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历书籍失败: %w", err)
	}
	return summaries, nil
}

// GetBook 按 ID 读取书籍（不含章节）
func (s *Store) GetBook(ctx context.Context, id int64) (*models.Book, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+bookColumns+` FROM books b WHERE b.id = ?`, id)
	book, err := scanBook(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, bookNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("读取书籍失败: %w", err)
	}
	return book, nil
}

// GetBookTree 读取书籍及其分部和章节（含段落统计，不含段落内容）
func (s *Store) GetBookTree(ctx context.Context, id int64) (*models.Book, error) {
	book, err := s.GetBook(ctx, id)
	if err != nil {
		return nil, err
	}

	parts, err := s.listParts(ctx, id)
	if err != nil {
		return nil, err
	}
	chapters, err := s.listBookChapters(ctx, id)
	if err != nil {
		return nil, err
	}

	byPart := make(map[int64]*models.Part, len(parts))
	for _, part := range parts {
		byPart[part.ID] = part
	}
	for _, chapter := range chapters {
		if part, ok := byPart[chapter.PartID]; ok {
			part.Chapters = append(part.Chapters, chapter)
		}
	}
	book.Parts = parts
	return book, nil
}

// GetBookContent 读取完整的书籍内容，包括所有段落
func (s *Store) GetBookContent(ctx context.Context, id int64) (*models.Book, error) {
	book, err := s.GetBookTree(ctx, id)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+chunkColumns+`
        FROM chunks k
        JOIN chapters c ON c.id = k.chapter_id
        JOIN parts p ON p.id = c.part_id
        WHERE p.book_id = ?
        ORDER BY k.chapter_id, k.position`, id)
	if err != nil {
		return nil, fmt.Errorf("查询书籍段落失败: %w", err)
	}
	chunks, err := collectChunks(rows)
	if err != nil {
		return nil, err
	}

	byChapter := make(map[int64]*models.Chapter)
	for _, part := range book.Parts {
		for _, chapter := range part.Chapters {
			byChapter[chapter.ID] = chapter
		}
	}
	for _, chunk := range chunks {
		if chapter, ok := byChapter[chunk.ChapterID]; ok {
			chapter.Chunks = append(chapter.Chunks, chunk)
		}
	}
	return book, nil
}

// UpdateBook 更新书籍的标题、作者和语言
func (s *Store) UpdateBook(ctx context.Context, book *models.Book) error {
	book.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE books SET title = ?, author = ?, language = ?, updated_at = ? WHERE id = ?`,
		book.Title, book.Author, book.Language, formatTime(book.UpdatedAt), book.ID,
	)
	if err != nil {
		return fmt.Errorf("更新书籍失败: %w", err)
	}
	return expectAffected(res, bookNotFound(book.ID))
}

// DeleteBook 删除书籍，分部、章节、段落和术语级联删除
func (s *Store) DeleteBook(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM books WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("删除书籍失败: %w", err)
	}
	return expectAffected(res, bookNotFound(id))
}

func (s *Store) listParts(ctx context.Context, bookID int64) ([]*models.Part, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, book_id, title, position FROM parts WHERE book_id = ? ORDER BY position`, bookID)
	if err != nil {
		return nil, fmt.Errorf("查询分部失败: %w", err)
	}
	defer rows.Close()

	var parts []*models.Part
	for rows.Next() {
		var (
			part  models.Part
			title sql.NullString
		)
		if err := rows.Scan(&part.ID, &part.BookID, &title, &part.Order); err != nil {
			return nil, fmt.Errorf("读取分部失败: %w", err)
		}
		part.Title = stringPtr(title)
		parts = append(parts, &part)
	}
	return parts, rows.Err()
}

func expectAffected(res sql.Result, notFound error) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("读取受影响行数失败: %w", err)
	}
	if affected == 0 {
		return notFound
	}
	return nil
}
