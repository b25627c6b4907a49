// internal/models/export.go
package models

import (
	"time"
)

// ExportResult 导出结果
type ExportResult struct {
	BookID      int64     `json:"book_id"`
	Title       string    `json:"title"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	Data        []byte    `json:"-"`
	FileSize    int64     `json:"file_size"`
	Chapters    int       `json:"chapters"`
	GeneratedAt time.Time `json:"generated_at"`
}

// TranslationResult 一次翻译操作的统计
type TranslationResult struct {
	ChunksTranslated   int `json:"chunks_translated"`
	ChaptersTranslated int `json:"chapters_translated"`
	CharactersSent     int `json:"characters_sent"`
}

// Add 合并另一次翻译的统计
func (r *TranslationResult) Add(other TranslationResult) {
	r.ChunksTranslated += other.ChunksTranslated
	r.ChaptersTranslated += other.ChaptersTranslated
	r.CharactersSent += other.CharactersSent
}
