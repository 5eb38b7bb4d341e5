package lang

import (
	"context"
	"errors"
	"fmt"

	"github.com/abadojack/whatlanggo"
	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common"
	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common/profile"
	tmt "github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/tmt/v20180321"

	"github.com/iabetor/tagvoice/internal/logger"
)

// ErrDetectionUnavailable 表示没有可用的语言检测后端。
var ErrDetectionUnavailable = errors.New("[lang] 语言检测不可用")

// Detector 识别文本语言，返回开放格式的语言标签（如 "en"、"zh"、"pt-BR"）。
type Detector interface {
	Name() string
	Detect(ctx context.Context, text string) (string, error)
}

type unavailableDetector struct{}

// Unavailable 返回始终报告 ErrDetectionUnavailable 的检测器。
func Unavailable() Detector { return unavailableDetector{} }

func (unavailableDetector) Name() string { return "none" }

func (unavailableDetector) Detect(context.Context, string) (string, error) {
	return "", ErrDetectionUnavailable
}

// WhatlangDetector 使用 whatlanggo 在本地识别语言，结果只依赖输入文本。
type WhatlangDetector struct{}

// NewWhatlangDetector 创建本地语言检测器。
func NewWhatlangDetector() *WhatlangDetector { return &WhatlangDetector{} }

func (d *WhatlangDetector) Name() string { return "whatlang" }

func (d *WhatlangDetector) Detect(_ context.Context, text string) (string, error) {
	info := whatlanggo.Detect(text)
	code := info.Lang.Iso6391()
	if code == "" {
		return "", fmt.Errorf("[lang] whatlang 无法识别语言 (confidence=%.2f)", info.Confidence)
	}
	return code, nil
}

// TencentDetector 调用腾讯云机器翻译的语种识别接口。
type TencentDetector struct {
	client *tmt.Client
}

// NewTencentDetector 创建腾讯云语种识别检测器。
func NewTencentDetector(secretID, secretKey, region string) (*TencentDetector, error) {
	if secretID == "" || secretKey == "" {
		return nil, fmt.Errorf("[lang] 腾讯云语种识别需要 SecretID 和 SecretKey")
	}

	credential := common.NewCredential(secretID, secretKey)
	cpf := profile.NewClientProfile()
	cpf.HttpProfile.Endpoint = "tmt.tencentcloudapi.com"

	client, err := tmt.NewClient(credential, region, cpf)
	if err != nil {
		return nil, fmt.Errorf("[lang] 创建腾讯云 TMT 客户端失败: %w", err)
	}

	logger.Infof("[lang] 腾讯云语种识别已初始化 (region=%s)", region)
	return &TencentDetector{client: client}, nil
}

func (d *TencentDetector) Name() string { return "tencent" }

func (d *TencentDetector) Detect(ctx context.Context, text string) (string, error) {
	request := tmt.NewLanguageDetectRequest()
	request.Text = common.StringPtr(text)
	request.ProjectId = common.Int64Ptr(0)

	response, err := d.client.LanguageDetectWithContext(ctx, request)
	if err != nil {
		return "", fmt.Errorf("[lang] 腾讯云语种识别失败: %w", err)
	}
	if response.Response == nil || response.Response.Lang == nil {
		return "", fmt.Errorf("[lang] 腾讯云语种识别响应为空")
	}
	return *response.Response.Lang, nil
}
