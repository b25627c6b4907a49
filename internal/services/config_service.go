// internal/services/config_service.go
package services

import (
	"strings"
	"sync"
	"time"

	"github.com/Corphon/EpubTranslator/internal/config"
	apperrors "github.com/Corphon/EpubTranslator/internal/errors"
	"github.com/Corphon/EpubTranslator/internal/translate"
	"github.com/Corphon/EpubTranslator/internal/utils"
)

// TranslatorSettings 翻译服务设置
type TranslatorSettings struct {
	Provider       string            `json:"provider"`
	TargetLanguage string            `json:"target_language"`
	ApplyGlossary  bool              `json:"apply_glossary"`
	Config         map[string]string `json:"config,omitempty"`
}

// ConfigChangeRecord 配置变更记录
type ConfigChangeRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Section   string    `json:"section"`
	OldValue  string    `json:"old_value"`
	NewValue  string    `json:"new_value"`
}

// ConfigService 管理翻译服务设置并缓存已初始化的翻译服务
type ConfigService struct {
	mu            sync.RWMutex
	provider      translate.Provider
	providerName  string
	changeHistory []ConfigChangeRecord
	logger        *utils.Logger
}

// NewConfigService 创建配置服务实例
func NewConfigService() *ConfigService {
	return &ConfigService{
		changeHistory: make([]ConfigChangeRecord, 0, 16),
		logger:        utils.GetLogger(),
	}
}

// GetCurrentConfig 获取当前配置
func (s *ConfigService) GetCurrentConfig() *config.AppConfig {
	return config.GetCurrentConfig()
}

// Settings 返回当前翻译设置，密钥已隐藏
func (s *ConfigService) Settings() TranslatorSettings {
	cfg := config.GetCurrentConfig()
	return TranslatorSettings{
		Provider:       cfg.TranslatorProvider,
		TargetLanguage: cfg.TargetLanguage,
		ApplyGlossary:  cfg.ApplyGlossary,
		Config:         maskProviderConfig(cfg.ProviderConfig(cfg.TranslatorProvider)),
	}
}

// ProviderSettings 返回所有已注册翻译服务的配置，密钥已隐藏
func (s *ConfigService) ProviderSettings() map[string]map[string]string {
	cfg := config.GetCurrentConfig()
	result := make(map[string]map[string]string)
	for _, name := range translate.ListProviders() {
		result[name] = maskProviderConfig(cfg.ProviderConfig(name))
	}
	return result
}

func maskProviderConfig(providerConfig map[string]string) map[string]string {
	masked := make(map[string]string, len(providerConfig))
	for key, value := range providerConfig {
		if key == "api_key" {
			value = utils.MaskSecret(value)
		}
		masked[key] = value
	}
	return masked
}

// TargetLanguage 返回配置的目标语言
func (s *ConfigService) TargetLanguage() string {
	return config.GetCurrentConfig().TargetLanguage
}

// ApplyGlossary 翻译时是否附带术语表
func (s *ConfigService) ApplyGlossary() bool {
	return config.GetCurrentConfig().ApplyGlossary
}

// AvailableProviders 返回已注册的翻译服务
func (s *ConfigService) AvailableProviders() []string {
	return translate.ListProviders()
}

// UpdateTranslatorConfig 校验并保存翻译设置，同时丢弃缓存的翻译服务
func (s *ConfigService) UpdateTranslatorConfig(settings TranslatorSettings) error {
	provider := strings.TrimSpace(settings.Provider)
	if provider == "" {
		return apperrors.NewValidationError("翻译服务不能为空", nil)
	}
	if !translate.IsRegistered(provider) {
		return apperrors.NewValidationError("未知的翻译服务: "+provider, nil)
	}

	target, err := translate.NormalizeLanguage(settings.TargetLanguage)
	if err != nil {
		return err
	}

	// 回传的隐藏密钥视为未修改
	if key, ok := settings.Config["api_key"]; ok && strings.Contains(key, "****") {
		settings.Config["api_key"] = ""
	}

	old := config.GetCurrentConfig()
	if err := config.UpdateTranslatorConfig(provider, target, settings.ApplyGlossary, settings.Config); err != nil {
		return apperrors.NewProcessingError("保存翻译设置失败", err)
	}

	s.mu.Lock()
	s.provider = nil
	s.providerName = ""
	s.recordChangeLocked("translator_provider", old.TranslatorProvider, provider)
	s.recordChangeLocked("target_language", old.TargetLanguage, target)
	s.mu.Unlock()

	s.logger.Info("翻译设置已更新", map[string]interface{}{
		"provider":       provider,
		"target":         target,
		"apply_glossary": settings.ApplyGlossary,
	})
	return nil
}

// Provider 返回当前翻译服务，首次调用时初始化并缓存
func (s *ConfigService) Provider() (translate.Provider, error) {
	cfg := config.GetCurrentConfig()

	s.mu.RLock()
	if s.provider != nil && s.providerName == cfg.TranslatorProvider {
		provider := s.provider
		s.mu.RUnlock()
		return provider, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.provider != nil && s.providerName == cfg.TranslatorProvider {
		return s.provider, nil
	}

	provider, err := translate.GetProvider(cfg.TranslatorProvider, cfg.ProviderConfig(cfg.TranslatorProvider))
	if err != nil {
		return nil, err
	}
	s.provider = provider
	s.providerName = cfg.TranslatorProvider
	return provider, nil
}

// IsReady 翻译服务是否已正确配置
func (s *ConfigService) IsReady() bool {
	_, err := s.Provider()
	return err == nil
}

func (s *ConfigService) recordChangeLocked(section, oldValue, newValue string) {
	if oldValue == newValue {
		return
	}
	if len(s.changeHistory) >= 100 {
		s.changeHistory = s.changeHistory[1:]
	}
	s.changeHistory = append(s.changeHistory, ConfigChangeRecord{
		Timestamp: time.Now(),
		Section:   section,
		OldValue:  oldValue,
		NewValue:  newValue,
	})
}

// GetChangeHistory 返回最近的配置变更
func (s *ConfigService) GetChangeHistory(limit int) []ConfigChangeRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.changeHistory) {
		limit = len(s.changeHistory)
	}
	history := make([]ConfigChangeRecord, limit)
	copy(history, s.changeHistory[len(s.changeHistory)-limit:])
	return history
}
