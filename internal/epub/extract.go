// internal/epub/extract.go
package epub

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/text/unicode/norm"
)

// scanTokens 按 XHTML 规则逐个读取标记，visit 返回 false 时停止
func scanTokens(content []byte, visit func(tok html.Token) bool) {
	z := html.NewTokenizer(bytes.NewReader(content))
	z.AllowCDATA(true)
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			return
		}
		// <title/> 和 <script/> 在 XHTML 中是空元素
		if tt == html.SelfClosingTagToken {
			z.NextIsNotRawText()
		}
		if !visit(z.Token()) {
			return
		}
	}
}

func isSkipped(a atom.Atom) bool {
	return a == atom.Script || a == atom.Style
}

func isHeading(a atom.Atom) bool {
	return a == atom.H1 || a == atom.H2 || a == atom.H3
}

// ExtractParagraphs 返回文档中每个 <p> 元素的文本，按文档顺序，跳过空段落
func ExtractParagraphs(content []byte) []string {
	var (
		paragraphs []string
		sb         strings.Builder
		depth      int
		skip       int
	)
	flush := func() {
		if text := cleanText(sb.String()); text != "" {
			paragraphs = append(paragraphs, text)
		}
		sb.Reset()
	}

	scanTokens(content, func(tok html.Token) bool {
		switch tok.Type {
		case html.StartTagToken:
			switch {
			case tok.DataAtom == atom.P:
				depth++
			case tok.DataAtom == atom.Br && depth > 0:
				sb.WriteByte(' ')
			case isSkipped(tok.DataAtom):
				skip++
			}
		case html.SelfClosingTagToken:
			if tok.DataAtom == atom.Br && depth > 0 {
				sb.WriteByte(' ')
			}
		case html.EndTagToken:
			switch {
			case tok.DataAtom == atom.P && depth > 0:
				depth--
				if depth == 0 {
					flush()
				}
			case isSkipped(tok.DataAtom) && skip > 0:
				skip--
			}
		case html.TextToken:
			if depth > 0 && skip == 0 {
				sb.WriteString(tok.Data)
			}
		}
		return true
	})
	if depth > 0 {
		flush()
	}
	return paragraphs
}

// ExtractTitle 返回第一个 h1/h2/h3 的文本，没有时使用 <title>，都没有时返回空字符串
func ExtractTitle(content []byte) string {
	var (
		heading, title strings.Builder
		inHeading      bool
		inTitle        bool
		found          string
		titleText      string
	)

	scanTokens(content, func(tok html.Token) bool {
		switch tok.Type {
		case html.StartTagToken:
			switch {
			case isHeading(tok.DataAtom):
				inHeading = true
				heading.Reset()
			case tok.DataAtom == atom.Title && titleText == "":
				inTitle = true
				title.Reset()
			}
		case html.EndTagToken:
			switch {
			case isHeading(tok.DataAtom) && inHeading:
				inHeading = false
				if text := cleanText(heading.String()); text != "" {
					found = text
					return false
				}
			case tok.DataAtom == atom.Title && inTitle:
				inTitle = false
				titleText = cleanText(title.String())
			}
		case html.TextToken:
			if inHeading {
				heading.WriteString(tok.Data)
			}
			if inTitle {
				title.WriteString(tok.Data)
			}
		}
		return true
	})

	if found != "" {
		return found
	}
	return titleText
}

// IsNavDocument 文档是否为 EPUB3 导航文档（含 epub:type="toc" 的 <nav>）
func IsNavDocument(content []byte) bool {
	nav := false
	scanTokens(content, func(tok html.Token) bool {
		if tok.DataAtom != atom.Nav || (tok.Type != html.StartTagToken && tok.Type != html.SelfClosingTagToken) {
			return true
		}
		for _, attr := range tok.Attr {
			if attr.Key == "epub:type" {
				for _, value := range strings.Fields(attr.Val) {
					if value == "toc" {
						nav = true
						return false
					}
				}
			}
		}
		return true
	})
	return nav
}

// cleanText 折叠空白并做 NFC 规范化
func cleanText(s string) string {
	return norm.NFC.String(strings.Join(strings.Fields(s), " "))
}
