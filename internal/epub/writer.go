// internal/epub/writer.go
package epub

import (
	"fmt"
	"html"
	"strings"

	goepub "github.com/go-shiori/go-epub"
)

// ExportChapter 导出时的一个章节
type ExportChapter struct {
	ID         int64
	Title      string
	Paragraphs []string
}

// ExportBook 导出时的书籍内容
type ExportBook struct {
	ID       int64
	Title    string
	Author   string
	Language string
	Chapters []ExportChapter
}

// Identifier 返回导出文件使用的书籍标识
func (b ExportBook) Identifier() string {
	return fmt.Sprintf("book_%d", b.ID)
}

// SectionFilename 返回章节在 EPUB 中的文件名
func SectionFilename(chapterID int64) string {
	return fmt.Sprintf("chapter_%d.xhtml", chapterID)
}

// RenderSection 生成章节正文
func RenderSection(title string, paragraphs []string) string {
	escapedTitle := html.EscapeString(title)

	var sb strings.Builder
	fmt.Fprintf(&sb, `<section class="" data-pdf-bookmark="%s" data-type="chapter" epub:type="chapter">`, escapedTitle)
	fmt.Fprintf(&sb, `<h1 class="Body-TextTx">%s</h1>`, escapedTitle)
	for _, p := range paragraphs {
		fmt.Fprintf(&sb, `<p class="Body-TextTx">%s</p>`, html.EscapeString(p))
	}
	sb.WriteString(`</section>`)
	return sb.String()
}

// Write 生成 EPUB3 文件并写入 dst
func Write(book ExportBook, dst string) error {
	title := book.Title
	if title == "" {
		title = DefaultTitle
	}

	e, err := goepub.NewEpub(title)
	if err != nil {
		return fmt.Errorf("创建 EPUB 失败: %w", err)
	}
	e.SetIdentifier(book.Identifier())
	if book.Language != "" {
		e.SetLang(book.Language)
	} else {
		e.SetLang(DefaultLanguage)
	}
	if book.Author != "" {
		e.SetAuthor(book.Author)
	}

	for _, chapter := range book.Chapters {
		body := RenderSection(chapter.Title, chapter.Paragraphs)
		if _, err := e.AddSection(body, chapter.Title, SectionFilename(chapter.ID), ""); err != nil {
			return fmt.Errorf("添加章节 %d 失败: %w", chapter.ID, err)
		}
	}

	if err := e.Write(dst); err != nil {
		return fmt.Errorf("写入 EPUB 失败: %w", err)
	}
	return nil
}
