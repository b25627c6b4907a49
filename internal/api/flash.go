// internal/api/flash.go
package api

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// FlashCookieName 一次性提示使用的 cookie
const FlashCookieName = "epubtr_flash"

// FlashKind 提示类型
type FlashKind string

const (
	FlashSuccess FlashKind = "success"
	FlashInfo    FlashKind = "info"
	FlashWarning FlashKind = "warning"
	FlashError   FlashKind = "error"
)

// Flash 跨重定向保存的一次性提示
type Flash struct {
	Kind    FlashKind `json:"kind"`
	Message string    `json:"message"`
}

func normalizeFlash(f Flash) (Flash, bool) {
	f.Message = strings.TrimSpace(f.Message)
	if f.Message == "" {
		return Flash{}, false
	}
	f.Kind = FlashKind(strings.ToLower(strings.TrimSpace(string(f.Kind))))
	switch f.Kind {
	case FlashSuccess, FlashInfo, FlashWarning, FlashError:
		return f, true
	default:
		return Flash{}, false
	}
}

// SetFlash 写入提示，下一次页面渲染时显示
func SetFlash(c *gin.Context, kind FlashKind, message string) {
	f, ok := normalizeFlash(Flash{Kind: kind, Message: message})
	if !ok {
		return
	}
	payload, err := json.Marshal(f)
	if err != nil {
		return
	}
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     FlashCookieName,
		Value:    base64.RawURLEncoding.EncodeToString(payload),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// PopFlash 读取并清除提示
func PopFlash(c *gin.Context) (Flash, bool) {
	cookie, err := c.Request.Cookie(FlashCookieName)
	if err != nil {
		return Flash{}, false
	}
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     FlashCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})

	decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(cookie.Value))
	if err != nil {
		return Flash{}, false
	}
	var f Flash
	if err := json.Unmarshal(decoded, &f); err != nil {
		return Flash{}, false
	}
	return normalizeFlash(f)
}
