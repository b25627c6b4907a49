// internal/config/config.go
package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Corphon/EpubTranslator/internal/utils"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// 当前配置的单例实例
var (
	currentConfig *AppConfig
	configMutex   sync.RWMutex
	configFile    string
	secretKey     string
)

// 加密字段在配置文件中的前缀
const encryptedPrefix = "enc:"

// 需要加密保存的翻译服务配置项
var secretFields = []string{"api_key"}

// AppConfig 包含应用程序的所有配置
type AppConfig struct {
	// 基础配置
	Port         string `json:"port"`
	DataDir      string `json:"data_dir"`
	DatabasePath string `json:"database_path"`
	StaticDir    string `json:"static_dir"`
	TemplatesDir string `json:"templates_dir"`
	LogDir       string `json:"log_dir"`
	DebugMode    bool   `json:"debug_mode"`
	MaxUploadMB  int    `json:"max_upload_mb"`

	// 翻译相关配置
	TranslatorProvider string                       `json:"translator_provider"`
	TargetLanguage     string                       `json:"target_language"`
	ApplyGlossary      bool                         `json:"apply_glossary"`
	TranslatorConfig   map[string]map[string]string `json:"translator_config"`
}

// Config 存储从环境变量读取的应用配置
type Config struct {
	Port         string `env:"PORT" envDefault:"8080"`
	DataDir      string `env:"DATA_DIR" envDefault:"data"`
	DatabasePath string `env:"DATABASE_PATH"`
	StaticDir    string `env:"STATIC_DIR" envDefault:"web/static"`
	TemplatesDir string `env:"TEMPLATES_DIR" envDefault:"web/templates"`
	LogDir       string `env:"LOG_DIR" envDefault:"logs"`
	DebugMode    bool   `env:"DEBUG_MODE" envDefault:"true"`
	MaxUploadMB  int    `env:"MAX_UPLOAD_MB" envDefault:"50"`
	SecretKey    string `env:"SECRET_KEY"`

	TranslatorProvider string `env:"TRANSLATOR_PROVIDER" envDefault:"yandex"`
	YandexFolderID     string `env:"YANDEX_TRANSLATE_FOLDER_ID"`
	YandexAPIKey       string `env:"YANDEX_TRANSLATE_API_KEY"`
	TargetLanguage     string `env:"YANDEX_TRANSLATE_TARGET_LANGUAGE" envDefault:"ru"`
	LambdaFunction     string `env:"TRANSLATOR_LAMBDA_FUNCTION"`
	AWSRegion          string `env:"AWS_REGION"`
	ApplyGlossary      bool   `env:"APPLY_GLOSSARY" envDefault:"false"`
}

// Load 从 .env 文件和环境变量加载配置
func Load() (*Config, error) {
	// 尝试加载.env文件（可选）
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("解析环境变量失败: %w", err)
	}

	if cfg.DatabasePath == "" {
		cfg.DatabasePath = filepath.Join(cfg.DataDir, "books.db")
	}
	if cfg.MaxUploadMB <= 0 {
		cfg.MaxUploadMB = 50
	}

	// 只记录警告，不返回错误
	if cfg.TranslatorProvider == "yandex" && (cfg.YandexFolderID == "" || cfg.YandexAPIKey == "") {
		log.Println("警告: 未设置 YANDEX_TRANSLATE_FOLDER_ID 或 YANDEX_TRANSLATE_API_KEY，需要在设置页面中配置才能使用翻译功能")
	}

	return cfg, nil
}

// EnsureDirectories 创建应用所需的目录
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.DataDir,
		filepath.Join(c.DataDir, "uploads"),
		filepath.Join(c.DataDir, "exports"),
		filepath.Dir(c.DatabasePath),
		c.LogDir,
	}
	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("创建目录失败 %s: %w", dir, err)
		}
	}
	return nil
}

// defaultTranslatorConfig 根据环境变量生成各翻译服务的初始配置
func (c *Config) defaultTranslatorConfig() map[string]map[string]string {
	return map[string]map[string]string{
		"yandex": {
			"folder_id": c.YandexFolderID,
			"api_key":   c.YandexAPIKey,
		},
		"lambda": {
			"function_name": c.LambdaFunction,
			"region":        c.AWSRegion,
		},
	}
}

func (c *Config) toAppConfig() *AppConfig {
	return &AppConfig{
		Port:               c.Port,
		DataDir:            c.DataDir,
		DatabasePath:       c.DatabasePath,
		StaticDir:          c.StaticDir,
		TemplatesDir:       c.TemplatesDir,
		LogDir:             c.LogDir,
		DebugMode:          c.DebugMode,
		MaxUploadMB:        c.MaxUploadMB,
		TranslatorProvider: c.TranslatorProvider,
		TargetLanguage:     c.TargetLanguage,
		ApplyGlossary:      c.ApplyGlossary,
		TranslatorConfig:   c.defaultTranslatorConfig(),
	}
}

// InitConfig 初始化配置管理器
func InitConfig(dataDir string) error {
	baseConfig, err := Load()
	if err != nil {
		return err
	}
	if dataDir != "" && dataDir != baseConfig.DataDir {
		baseConfig.DataDir = dataDir
		if os.Getenv("DATABASE_PATH") == "" {
			baseConfig.DatabasePath = filepath.Join(dataDir, "books.db")
		}
	}
	return InitConfigWith(baseConfig)
}

// InitConfigWith 使用给定的基础配置初始化配置管理器
func InitConfigWith(baseConfig *Config) error {
	configMutex.Lock()
	defer configMutex.Unlock()

	configFile = filepath.Join(baseConfig.DataDir, "config.json")
	secretKey = baseConfig.SecretKey
	currentConfig = baseConfig.toAppConfig()

	// 尝试从文件加载已保存的配置
	if data, err := os.ReadFile(configFile); err == nil {
		var savedConfig AppConfig
		if json.Unmarshal(data, &savedConfig) == nil {
			mergeSavedConfig(currentConfig, &savedConfig)
		} else {
			log.Printf("警告: 配置文件格式错误，忽略: %s", configFile)
		}
	}

	// 保存初始配置到文件
	return saveConfigLocked()
}

// mergeSavedConfig 保留文件中的翻译设置，基础配置始终以环境变量为准
func mergeSavedConfig(base, saved *AppConfig) {
	if saved.TranslatorProvider != "" {
		base.TranslatorProvider = saved.TranslatorProvider
	}
	if saved.TargetLanguage != "" {
		base.TargetLanguage = saved.TargetLanguage
	}
	base.ApplyGlossary = saved.ApplyGlossary

	for provider, savedValues := range saved.TranslatorConfig {
		current := base.TranslatorConfig[provider]
		if current == nil {
			current = make(map[string]string)
			base.TranslatorConfig[provider] = current
		}
		for key, value := range savedValues {
			value = revealSecret(value)
			// 如果文件中没有该值，使用环境变量的值
			if value == "" {
				continue
			}
			current[key] = value
		}
	}
}

// GetCurrentConfig 返回当前配置的副本
func GetCurrentConfig() *AppConfig {
	configMutex.RLock()
	defer configMutex.RUnlock()

	if currentConfig == nil {
		// 紧急情况，返回一个基本配置
		baseConfig, err := Load()
		if err != nil {
			baseConfig = &Config{Port: "8080", DataDir: "data", TranslatorProvider: "yandex", TargetLanguage: "ru"}
		}
		return baseConfig.toAppConfig()
	}

	return currentConfig.clone()
}

func (c *AppConfig) clone() *AppConfig {
	configCopy := *c
	configCopy.TranslatorConfig = make(map[string]map[string]string, len(c.TranslatorConfig))
	for provider, values := range c.TranslatorConfig {
		inner := make(map[string]string, len(values))
		for k, v := range values {
			inner[k] = v
		}
		configCopy.TranslatorConfig[provider] = inner
	}
	return &configCopy
}

// ProviderConfig 返回指定翻译服务的配置副本
func (c *AppConfig) ProviderConfig(provider string) map[string]string {
	result := make(map[string]string)
	for k, v := range c.TranslatorConfig[provider] {
		result[k] = v
	}
	return result
}

// UpdateTranslatorConfig 更新翻译服务配置
func UpdateTranslatorConfig(provider, targetLanguage string, applyGlossary bool, providerConfig map[string]string) error {
	configMutex.Lock()
	defer configMutex.Unlock()

	if currentConfig == nil {
		return fmt.Errorf("配置系统未初始化")
	}

	currentConfig.TranslatorProvider = provider
	currentConfig.TargetLanguage = targetLanguage
	currentConfig.ApplyGlossary = applyGlossary

	if providerConfig != nil {
		existing := currentConfig.TranslatorConfig[provider]
		if existing == nil {
			existing = make(map[string]string)
		}
		for key, value := range providerConfig {
			// 空密钥表示保持原值，避免表单回显密钥
			if isSecretField(key) && strings.TrimSpace(value) == "" {
				continue
			}
			existing[key] = strings.TrimSpace(value)
		}
		currentConfig.TranslatorConfig[provider] = existing
	}

	return saveConfigLocked()
}

// SaveConfig 保存当前配置到文件
func SaveConfig() error {
	configMutex.Lock()
	defer configMutex.Unlock()
	return saveConfigLocked()
}

func saveConfigLocked() error {
	if currentConfig == nil {
		return fmt.Errorf("没有配置可保存")
	}

	// 确保目录存在
	dir := filepath.Dir(configFile)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("创建配置目录失败: %w", err)
	}

	toSave := currentConfig.clone()
	for _, values := range toSave.TranslatorConfig {
		for key, value := range values {
			if isSecretField(key) && value != "" {
				values[key] = concealSecret(value)
			}
		}
	}

	data, err := json.MarshalIndent(toSave, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化配置失败: %w", err)
	}

	tempPath := configFile + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("写入配置文件失败: %w", err)
	}
	return os.Rename(tempPath, configFile)
}

func isSecretField(key string) bool {
	for _, field := range secretFields {
		if field == key {
			return true
		}
	}
	return false
}

// concealSecret 在设置了 SECRET_KEY 时加密敏感配置
func concealSecret(value string) string {
	if secretKey == "" {
		return value
	}
	encrypted, err := utils.Encrypt(value, secretKey)
	if err != nil {
		log.Printf("警告: 加密配置项失败: %v", err)
		return value
	}
	return encryptedPrefix + encrypted
}

func revealSecret(value string) string {
	if !strings.HasPrefix(value, encryptedPrefix) {
		return value
	}
	if secretKey == "" {
		log.Println("警告: 配置文件包含加密字段，但未设置 SECRET_KEY")
		return ""
	}
	plain, err := utils.Decrypt(strings.TrimPrefix(value, encryptedPrefix), secretKey)
	if err != nil {
		log.Printf("警告: 解密配置项失败: %v", err)
		return ""
	}
	return plain
}
