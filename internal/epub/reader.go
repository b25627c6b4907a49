// internal/epub/reader.go
package epub

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	apperrors "github.com/Corphon/EpubTranslator/internal/errors"
	goreader "github.com/taylorskalyo/goreader/epub"
)

// 默认元数据
const (
	DefaultTitle    = "Untitled"
	DefaultLanguage = "en"
)

// Document 书脊中的一个内容文档
type Document struct {
	ID        string
	Href      string // 相对于压缩包根目录的路径
	MediaType string
	Content   []byte
}

// Name 返回不带目录和扩展名的文件名
func (d Document) Name() string {
	base := path.Base(d.Href)
	return strings.TrimSuffix(base, path.Ext(base))
}

// Book 解析后的 EPUB 内容
type Book struct {
	Title    string
	Creator  string
	Language string
	// 键为 dc:<元素名>
	Metadata map[string][]string

	documents []Document
}

// Documents 按书脊顺序返回 XHTML 内容文档，不含导航文档
func (b *Book) Documents() []Document {
	return b.documents
}

// Open 读取磁盘上的 EPUB 文件
func Open(filePath string) (*Book, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, apperrors.NewValidationError("无法打开 EPUB 文件: "+filePath, err)
	}
	return Read(bytes.NewReader(data), int64(len(data)))
}

// Read 解析 EPUB 压缩包
func Read(r io.ReaderAt, size int64) (*Book, error) {
	reader, err := newReader(r, size)
	if err != nil {
		return nil, apperrors.NewValidationError("文件不是有效的 EPUB", err)
	}
	return readPackage(reader)
}

// newReader 缺少 container.xml 时 goreader 可能 panic，这里转为错误
func newReader(r io.ReaderAt, size int64) (reader *goreader.Reader, err error) {
	defer func() {
		if p := recover(); p != nil {
			reader, err = nil, fmt.Errorf("解析 EPUB 失败: %v", p)
		}
	}()
	return goreader.NewReader(r, size)
}

func readPackage(reader *goreader.Reader) (*Book, error) {
	if len(reader.Rootfiles) == 0 {
		return nil, apperrors.NewValidationError("container.xml 中没有 rootfile", nil)
	}
	rootfile := reader.Rootfiles[0]

	book := &Book{Metadata: collectMetadata(rootfile.Metadata)}
	book.Title = firstValue(book.Metadata, "dc:title", DefaultTitle)
	book.Creator = firstValue(book.Metadata, "dc:creator", "")
	book.Language = firstValue(book.Metadata, "dc:language", DefaultLanguage)

	baseDir := path.Dir(rootfile.FullPath)
	seen := make(map[string]bool)
	for _, ref := range rootfile.Spine.Itemrefs {
		item := ref.Item
		if item == nil || !isDocument(item.MediaType) || seen[item.ID] {
			continue
		}
		seen[item.ID] = true

		href := resolveHref(baseDir, item.HREF)
		content, err := readItem(item)
		if err != nil {
			return nil, apperrors.NewValidationError("缺少内容文档 "+href, err)
		}
		if IsNavDocument(content) {
			continue
		}
		book.documents = append(book.documents, Document{
			ID:        item.ID,
			Href:      href,
			MediaType: item.MediaType,
			Content:   content,
		})
	}

	return book, nil
}

func isDocument(mediaType string) bool {
	switch mediaType {
	case "application/xhtml+xml", "text/html":
		return true
	}
	return false
}

func readItem(item *goreader.Item) ([]byte, error) {
	rc, err := item.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("读取 %s 失败: %w", item.HREF, err)
	}
	return data, nil
}

func collectMetadata(meta goreader.Metadata) map[string][]string {
	result := make(map[string][]string)
	add := func(key, value string) {
		if value = strings.TrimSpace(value); value != "" {
			result["dc:"+key] = append(result["dc:"+key], value)
		}
	}

	add("title", meta.Title)
	add("creator", meta.Creator)
	add("language", meta.Language)
	add("identifier", meta.Identifier)
	add("contributor", meta.Contributor)
	add("publisher", meta.Publisher)
	add("subject", meta.Subject)
	add("description", meta.Description)
	for _, event := range meta.Event {
		add("date", event.Date)
	}
	add("type", meta.Type)
	add("format", meta.Format)
	add("source", meta.Source)
	add("relation", meta.Relation)
	add("coverage", meta.Coverage)
	add("rights", meta.Rights)
	return result
}

func firstValue(metadata map[string][]string, key, fallback string) string {
	if values := metadata[key]; len(values) > 0 && values[0] != "" {
		return values[0]
	}
	return fallback
}

func resolveHref(baseDir, href string) string {
	if i := strings.IndexByte(href, '#'); i >= 0 {
		href = href[:i]
	}
	if baseDir == "." || baseDir == "" {
		return path.Clean(href)
	}
	return path.Join(baseDir, href)
}
