// web/embed.go
package web

import "embed"

// FS 内嵌的页面模板和静态文件
//
//go:embed templates static
var FS embed.FS
