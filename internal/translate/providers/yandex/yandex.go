// internal/translate/providers/yandex/yandex.go
package yandex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/Corphon/EpubTranslator/internal/errors"
	"github.com/Corphon/EpubTranslator/internal/translate"
)

const (
	// DefaultBaseURL Yandex Cloud Translate API 地址
	DefaultBaseURL = "https://translate.api.cloud.yandex.net/translate/v2"
	// MaxBatchChars 单次请求的字符上限
	MaxBatchChars = 10000
	// MaxGlossaryPairs 单次请求允许携带的术语数
	MaxGlossaryPairs = 50
)

func init() {
	translate.Register("yandex", func() translate.Provider {
		return &Provider{baseURL: DefaultBaseURL}
	})
}

// Provider Yandex Cloud Translate 翻译服务
type Provider struct {
	folderID string
	apiKey   string
	baseURL  string
	client   *http.Client
}

type glossaryConfig struct {
	GlossaryData struct {
		GlossaryPairs []translate.GlossaryPair `json:"glossaryPairs"`
	} `json:"glossaryData"`
}

type translateRequest struct {
	FolderID           string          `json:"folderId"`
	Texts              []string        `json:"texts"`
	TargetLanguageCode string          `json:"targetLanguageCode"`
	SourceLanguageCode string          `json:"sourceLanguageCode,omitempty"`
	GlossaryConfig     *glossaryConfig `json:"glossaryConfig,omitempty"`
}

type translateResponse struct {
	Translations []struct {
		Text                 string `json:"text"`
		DetectedLanguageCode string `json:"detectedLanguageCode,omitempty"`
	} `json:"translations"`
}

func (p *Provider) Initialize(config map[string]string) error {
	folderID := strings.TrimSpace(config["folder_id"])
	apiKey := strings.TrimSpace(config["api_key"])
	if folderID == "" || apiKey == "" {
		return apperrors.NewConfigurationError("Yandex 翻译服务需要 folder_id 和 api_key", nil)
	}

	p.folderID = folderID
	p.apiKey = apiKey
	p.client = &http.Client{Timeout: 60 * time.Second}

	if baseURL, exists := config["base_url"]; exists && baseURL != "" {
		p.baseURL = strings.TrimRight(baseURL, "/")
	}
	return nil
}

func (p *Provider) GetName() string {
	return "Yandex"
}

func (p *Provider) MaxBatchChars() int {
	return MaxBatchChars
}

func (p *Provider) Translate(ctx context.Context, req translate.Request) ([]string, error) {
	if len(req.Texts) == 0 {
		return []string{}, nil
	}

	body := translateRequest{
		FolderID:           p.folderID,
		Texts:              req.Texts,
		TargetLanguageCode: req.TargetLanguage,
		SourceLanguageCode: req.SourceLanguage,
	}
	if len(req.Glossary) > 0 {
		pairs := req.Glossary
		if len(pairs) > MaxGlossaryPairs {
			pairs = pairs[:MaxGlossaryPairs]
		}
		body.GlossaryConfig = &glossaryConfig{}
		body.GlossaryConfig.GlossaryData.GlossaryPairs = pairs
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/translate", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Api-Key "+p.apiKey)

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, apperrors.NewUpstreamError("请求 Yandex 翻译服务失败", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, apperrors.NewUpstreamError("读取 Yandex 响应失败", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, apperrors.NewUpstreamError(
			fmt.Sprintf("Yandex API错误(%d): %s", httpResp.StatusCode, strings.TrimSpace(string(respBody))), nil)
	}

	var result translateResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, apperrors.NewUpstreamError("解析 Yandex 响应失败", err)
	}
	if len(result.Translations) != len(req.Texts) {
		return nil, apperrors.NewUpstreamError(
			fmt.Sprintf("Yandex 返回 %d 条译文，期望 %d 条", len(result.Translations), len(req.Texts)), nil)
	}

	translations := make([]string, len(result.Translations))
	for i, t := range result.Translations {
		translations[i] = t.Text
	}
	return translations, nil
}
