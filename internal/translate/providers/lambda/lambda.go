// internal/translate/providers/lambda/lambda.go
package lambda

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awslambda "github.com/aws/aws-sdk-go-v2/service/lambda"

	apperrors "github.com/Corphon/EpubTranslator/internal/errors"
	"github.com/Corphon/EpubTranslator/internal/translate"
)

// MaxBatchChars 单次调用的字符上限
const MaxBatchChars = 12000

func init() {
	translate.Register("lambda", func() translate.Provider {
		return &Provider{}
	})
}

// Invoker 调用 Lambda 函数的最小接口，*lambda.Client 满足该接口
type Invoker interface {
	Invoke(ctx context.Context, params *awslambda.InvokeInput, optFns ...func(*awslambda.Options)) (*awslambda.InvokeOutput, error)
}

// Provider 通过 AWS Lambda 上的翻译管理函数进行翻译
type Provider struct {
	functionName string
	region       string
	client       Invoker
}

// NewWithInvoker 使用给定的调用方创建翻译服务
func NewWithInvoker(functionName string, client Invoker) *Provider {
	return &Provider{functionName: functionName, client: client}
}

type invokeRequest struct {
	Texts      []string `json:"texts"`
	SourceLang string   `json:"sourceLang"`
	TargetLang string   `json:"targetLang"`
}

type invokeResponse struct {
	Translations    []string `json:"translations,omitempty"`
	ChunksProcessed int      `json:"chunksProcessed,omitempty"`
	Error           string   `json:"error,omitempty"`
}

func (p *Provider) Initialize(config map[string]string) error {
	functionName := strings.TrimSpace(config["function_name"])
	if functionName == "" {
		return apperrors.NewConfigurationError("Lambda 翻译服务需要 function_name", nil)
	}
	p.functionName = functionName
	p.region = strings.TrimSpace(config["region"])
	return nil
}

func (p *Provider) GetName() string {
	return "AWS Lambda"
}

func (p *Provider) MaxBatchChars() int {
	return MaxBatchChars
}

// ensureClient 首次调用时加载 AWS 默认配置
func (p *Provider) ensureClient(ctx context.Context) error {
	if p.client != nil {
		return nil
	}

	var opts []func(*awsconfig.LoadOptions) error
	if p.region != "" {
		opts = append(opts, awsconfig.WithRegion(p.region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return apperrors.NewConfigurationError("加载 AWS 配置失败", err)
	}
	p.client = awslambda.NewFromConfig(cfg)
	return nil
}

func (p *Provider) Translate(ctx context.Context, req translate.Request) ([]string, error) {
	if len(req.Texts) == 0 {
		return []string{}, nil
	}
	if err := p.ensureClient(ctx); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(invokeRequest{
		Texts:      req.Texts,
		SourceLang: req.SourceLanguage,
		TargetLang: req.TargetLanguage,
	})
	if err != nil {
		return nil, fmt.Errorf("序列化 Lambda 请求失败: %w", err)
	}

	result, err := p.client.Invoke(ctx, &awslambda.InvokeInput{
		FunctionName: aws.String(p.functionName),
		Payload:      payload,
	})
	if err != nil {
		return nil, apperrors.NewUpstreamError("调用 Lambda "+p.functionName+" 失败", err)
	}
	if result.FunctionError != nil {
		return nil, apperrors.NewUpstreamError(
			fmt.Sprintf("Lambda 函数错误: %s: %s", *result.FunctionError, strings.TrimSpace(string(result.Payload))), nil)
	}

	var resp invokeResponse
	if err := json.Unmarshal(result.Payload, &resp); err != nil {
		return nil, apperrors.NewUpstreamError("解析 Lambda 响应失败", err)
	}
	if resp.Error != "" {
		return nil, apperrors.NewUpstreamError("翻译管理函数返回错误: "+resp.Error, nil)
	}
	if len(resp.Translations) != len(req.Texts) {
		return nil, apperrors.NewUpstreamError(
			fmt.Sprintf("Lambda 返回 %d 条译文，期望 %d 条", len(resp.Translations), len(req.Texts)), nil)
	}
	return resp.Translations, nil
}
