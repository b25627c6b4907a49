// internal/models/book.go
package models

import (
	"fmt"
	"time"
)

// 字段长度限制
const (
	MaxTitleLength    = 255
	MaxAuthorLength   = 255
	MaxLanguageLength = 32
)

// Book 表示一本已导入的电子书
type Book struct {
	ID         int64               `json:"id"`
	Title      string              `json:"title"`
	Author     string              `json:"author,omitempty"`
	Language   string              `json:"language"`
	Metadata   map[string][]string `json:"metadata"`    // EPUB 中的全部元数据
	SourceFile string              `json:"source_file"` // 上传的原始文件名
	CreatedAt  time.Time           `json:"created_at"`
	UpdatedAt  time.Time           `json:"updated_at"`

	Parts []*Part `json:"parts,omitempty"`
}

// Part 书中的有序分部
type Part struct {
	ID     int64   `json:"id"`
	BookID int64   `json:"book_id"`
	Title  *string `json:"title,omitempty"`
	Order  int     `json:"order"`

	Chapters []*Chapter `json:"chapters,omitempty"`
}

// DisplayTitle 返回分部标题，没有标题时使用序号
func (p *Part) DisplayTitle() string {
	if p.Title != nil && *p.Title != "" {
		return *p.Title
	}
	return fmt.Sprintf("Part %d", p.Order)
}

// Chapter 分部中的有序章节
type Chapter struct {
	ID     int64  `json:"id"`
	PartID int64  `json:"part_id"`
	BookID int64  `json:"book_id"`
	Title  string `json:"title,omitempty"`
	Href   string `json:"href,omitempty"` // 章节在原始 EPUB 中的文件路径
	Order  int    `json:"order"`

	ChunkCount      int `json:"chunk_count"`
	TranslatedCount int `json:"translated_count"`

	Chunks []*Chunk `json:"chunks,omitempty"`
}

// DisplayTitle 返回章节标题，没有标题时使用序号
func (c *Chapter) DisplayTitle() string {
	if c.Title != "" {
		return c.Title
	}
	return fmt.Sprintf("Chapter %d", c.Order)
}

// IsTranslated 章节中所有段落都已翻译
func (c *Chapter) IsTranslated() bool {
	return c.ChunkCount > 0 && c.TranslatedCount >= c.ChunkCount
}

// Chunk 章节中的段落级翻译单元
type Chunk struct {
	ID             int64   `json:"id"`
	ChapterID      int64   `json:"chapter_id"`
	OriginalText   string  `json:"original_text"`
	TranslatedText *string `json:"translated_text,omitempty"`
	Translated     bool    `json:"translated"`
	Order          int     `json:"order"`
}

// Text 返回导出时使用的文本：已翻译时使用译文，否则使用原文
func (c *Chunk) Text() string {
	if c.Translated && c.TranslatedText != nil && *c.TranslatedText != "" {
		return *c.TranslatedText
	}
	return c.OriginalText
}

// TranslationOrEmpty 返回译文，没有译文时返回空字符串
func (c *Chunk) TranslationOrEmpty() string {
	if c.TranslatedText == nil {
		return ""
	}
	return *c.TranslatedText
}

// BookSummary 书籍列表项，附带翻译进度统计
type BookSummary struct {
	Book
	PartCount       int `json:"part_count"`
	ChapterCount    int `json:"chapter_count"`
	ChunkCount      int `json:"chunk_count"`
	TranslatedCount int `json:"translated_count"`
}

// Percent 返回翻译完成百分比
func (s *BookSummary) Percent() int {
	if s.ChunkCount == 0 {
		return 0
	}
	return s.TranslatedCount * 100 / s.ChunkCount
}

// StringPtr 返回字符串指针，空字符串返回 nil
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
