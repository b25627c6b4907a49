// internal/translate/language.go
package translate

import (
	"strings"

	apperrors "github.com/Corphon/EpubTranslator/internal/errors"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// NormalizeLanguage 解析 BCP-47 语言标签并返回基础语言代码（en-US → en）
func NormalizeLanguage(code string) (string, error) {
	code = strings.TrimSpace(strings.ReplaceAll(code, "_", "-"))
	if code == "" {
		return "", apperrors.NewValidationError("语言代码不能为空", nil)
	}

	tag, err := language.Parse(code)
	if err != nil {
		return "", apperrors.NewValidationError("无效的语言代码: "+code, err)
	}
	base, confidence := tag.Base()
	if confidence == language.No {
		return "", apperrors.NewValidationError("无法识别的语言代码: "+code, nil)
	}
	return base.String(), nil
}

// LanguageName 返回语言的自称，用于界面展示；无法识别时原样返回
func LanguageName(code string) string {
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	if name := display.Self.Name(tag); name != "" {
		return name
	}
	return code
}

// CommonLanguages 设置页面中列出的常用目标语言
var CommonLanguages = []string{"ru", "en", "de", "fr", "es", "it", "pt", "uk", "pl", "tr", "zh", "ja", "ko"}
