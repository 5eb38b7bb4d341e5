package tts

import (
	"context"
	"encoding/base64"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common"
	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common/profile"
	ttsapi "github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/tts/v20190823"

	"github.com/iabetor/tagvoice/internal/lang"
	"github.com/iabetor/tagvoice/internal/logger"
)

// TencentConfig 腾讯云 TTS 配置。
type TencentConfig struct {
	SecretID  string
	SecretKey string
	VoiceType int64
	Region    string
}

// TencentEngine 使用腾讯云 TTS 实现语音合成，返回的 MP3 解码后写成 WAV。
type TencentEngine struct {
	client    *ttsapi.Client
	voiceType int64
}

// NewTencentEngine 创建腾讯云 TTS 后端。
func NewTencentEngine(cfg TencentConfig) (*TencentEngine, error) {
	if cfg.SecretID == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("[tts] 腾讯云 TTS 需要 SecretID 和 SecretKey")
	}
	if cfg.VoiceType == 0 {
		cfg.VoiceType = 1001 // 智瑜（女声）
	}
	if cfg.Region == "" {
		cfg.Region = "ap-guangzhou"
	}

	credential := common.NewCredential(cfg.SecretID, cfg.SecretKey)
	cpf := profile.NewClientProfile()
	cpf.HttpProfile.Endpoint = "tts.tencentcloudapi.com"

	client, err := ttsapi.NewClient(credential, cfg.Region, cpf)
	if err != nil {
		return nil, fmt.Errorf("[tts] 创建腾讯云 TTS 客户端失败: %w", err)
	}

	logger.Infof("[tts] 腾讯云 TTS 已初始化 (voice=%d, region=%s)", cfg.VoiceType, cfg.Region)
	return &TencentEngine{client: client, voiceType: cfg.VoiceType}, nil
}

func (e *TencentEngine) Name() string { return "tencent" }

func (e *TencentEngine) SupportsCloning() bool { return false }

// tencentSpeed 把倍速映射到腾讯云的 [-2, 6] 语速档位，0 为正常语速，每档约 0.2 倍。
func tencentSpeed(speed float64) float64 {
	if speed <= 0 {
		return 0
	}
	return math.Max(-2, math.Min(6, math.Round((speed-1)/0.2)))
}

// primaryLanguage 返回腾讯云的主语言参数：1 中文，2 英文。
func primaryLanguage(code string) int64 {
	if code == lang.Chinese {
		return 1
	}
	return 2
}

func (e *TencentEngine) Synthesize(ctx context.Context, req Request) error {
	logger.Debugf("[tts] 腾讯云 TTS: 正在合成 %d 个字符，音色=%d", len([]rune(req.Text)), e.voiceType)

	request := ttsapi.NewTextToVoiceRequest()
	request.Text = common.StringPtr(req.Text)
	request.SessionId = common.StringPtr(uuid.NewString())
	request.VoiceType = common.Int64Ptr(e.voiceType)
	request.PrimaryLanguage = common.Int64Ptr(primaryLanguage(req.Language))
	request.Codec = common.StringPtr("mp3")
	request.Speed = common.Float64Ptr(tencentSpeed(req.Speed))
	request.Volume = common.Float64Ptr(5.0)

	response, err := e.client.TextToVoiceWithContext(ctx, request)
	if err != nil {
		return fmt.Errorf("[tts] 腾讯云 TTS 合成失败: %w", err)
	}
	if response.Response == nil || response.Response.Audio == nil {
		return fmt.Errorf("[tts] 腾讯云 TTS: 未返回音频数据")
	}

	mp3Data, err := base64.StdEncoding.DecodeString(*response.Response.Audio)
	if err != nil {
		return fmt.Errorf("[tts] Base64 解码失败: %w", err)
	}
	logger.Debugf("[tts] 腾讯云 TTS: 收到 %d 字节 MP3 数据", len(mp3Data))

	return writeMP3AsWAV(ctx, mp3Data, req.OutputPath)
}

func (e *TencentEngine) Close() error { return nil }
