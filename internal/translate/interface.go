// internal/translate/interface.go
package translate

import (
	"context"
	"sort"
	"sync"

	apperrors "github.com/Corphon/EpubTranslator/internal/errors"
)

// GlossaryPair 传给翻译服务的术语对
type GlossaryPair struct {
	Source      string `json:"sourceText"`
	Translation string `json:"translatedText"`
}

// Request 一次批量翻译请求
type Request struct {
	Texts          []string       `json:"texts"`
	SourceLanguage string         `json:"source_language"`
	TargetLanguage string         `json:"target_language"`
	Glossary       []GlossaryPair `json:"glossary,omitempty"`
}

// Characters 返回请求中文本的总字符数
func (r Request) Characters() int {
	total := 0
	for _, text := range r.Texts {
		total += len([]rune(text))
	}
	return total
}

// Provider 定义所有翻译服务必须实现的接口
type Provider interface {
	// 初始化翻译服务，传入配置
	Initialize(config map[string]string) error

	// 获取翻译服务名称
	GetName() string

	// 单次请求允许的最大字符数
	MaxBatchChars() int

	// 翻译一批文本，返回与输入顺序一致的译文
	Translate(ctx context.Context, req Request) ([]string, error)
}

// ProviderFactory 翻译服务工厂函数
type ProviderFactory func() Provider

var (
	providers   = make(map[string]ProviderFactory)
	providersMu sync.RWMutex
)

// Register 注册翻译服务工厂
func Register(name string, factory ProviderFactory) {
	providersMu.Lock()
	defer providersMu.Unlock()
	providers[name] = factory
}

// IsRegistered 检查翻译服务是否已注册
func IsRegistered(name string) bool {
	providersMu.RLock()
	defer providersMu.RUnlock()
	_, exists := providers[name]
	return exists
}

// GetProvider 创建并初始化指定名称的翻译服务
func GetProvider(name string, config map[string]string) (Provider, error) {
	providersMu.RLock()
	factory, exists := providers[name]
	providersMu.RUnlock()
	if !exists {
		return nil, apperrors.NewConfigurationError("未知的翻译服务: "+name, nil)
	}

	provider := factory()
	if err := provider.Initialize(config); err != nil {
		return nil, apperrors.WrapError(err, "初始化翻译服务 "+name+" 失败", apperrors.ErrorTypeConfiguration)
	}
	return provider, nil
}

// ListProviders 返回所有已注册的翻译服务名称（已排序）
func ListProviders() []string {
	providersMu.RLock()
	defer providersMu.RUnlock()

	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
