package tts

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/carlmjohnson/requests"

	"github.com/iabetor/tagvoice/internal/logger"
)

// XTTSConfig 是 XTTS HTTP 服务的连接参数。
type XTTSConfig struct {
	URL            string
	SynthPath      string
	HealthPath     string
	Timeout        time.Duration
	SplitSentences bool
}

// XTTSEngine 通过 HTTP 调用 XTTS 服务，支持参考音频克隆音色。
type XTTSEngine struct {
	cfg    XTTSConfig
	device string
	client *http.Client
}

// NewXTTSEngine 创建 XTTS 后端并探测服务健康状态。
func NewXTTSEngine(ctx context.Context, cfg XTTSConfig, device string) (*XTTSEngine, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("[tts] XTTS 需要配置服务地址")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	e := &XTTSEngine{
		cfg:    cfg,
		device: device,
		client: &http.Client{Timeout: cfg.Timeout},
	}

	if cfg.HealthPath != "" {
		err := requests.URL(cfg.URL).
			Path(cfg.HealthPath).
			Client(e.client).
			Fetch(ctx)
		if err != nil {
			return nil, fmt.Errorf("[tts] XTTS 服务健康检查失败 (%s): %w", cfg.URL, err)
		}
	}

	logger.Infof("[tts] XTTS 后端已连接 (url=%s, device=%s)", cfg.URL, device)
	return e, nil
}

func (e *XTTSEngine) Name() string { return "xtts" }

func (e *XTTSEngine) SupportsCloning() bool { return true }

// Synthesize 以 multipart 表单提交文本，参考音频作为 speaker_wav 文件上传。
func (e *XTTSEngine) Synthesize(ctx context.Context, req Request) error {
	body, contentType, err := e.buildForm(req)
	if err != nil {
		return err
	}

	var out bytes.Buffer
	err = requests.URL(e.cfg.URL).
		Path(e.cfg.SynthPath).
		Client(e.client).
		Post().
		BodyBytes(body).
		ContentType(contentType).
		CheckStatus(http.StatusOK).
		ToBytesBuffer(&out).
		Fetch(ctx)
	if err != nil {
		return fmt.Errorf("[tts] XTTS 请求失败: %w", err)
	}

	data := out.Bytes()
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return fmt.Errorf("[tts] XTTS 返回的不是 WAV 数据 (%d 字节)", len(data))
	}
	logger.Debugf("[tts] XTTS: 收到 %d 字节 WAV", len(data))

	if err := os.WriteFile(req.OutputPath, data, 0600); err != nil {
		return fmt.Errorf("[tts] 写入 %s 失败: %w", req.OutputPath, err)
	}
	return nil
}

func (e *XTTSEngine) buildForm(req Request) ([]byte, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fields := [][2]string{
		{"text", req.Text},
		{"language", req.Language},
		{"speed", strconv.FormatFloat(req.Speed, 'f', -1, 64)},
		{"device", e.device},
		{"split_sentences", strconv.FormatBool(e.cfg.SplitSentences)},
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return nil, "", fmt.Errorf("[tts] 构造 XTTS 表单失败: %w", err)
		}
	}

	if req.SpeakerWAV != "" {
		f, err := os.Open(req.SpeakerWAV)
		if err != nil {
			return nil, "", fmt.Errorf("[tts] 打开参考音频失败: %w", err)
		}
		defer f.Close()

		part, err := mw.CreateFormFile("speaker_wav", filepath.Base(req.SpeakerWAV))
		if err != nil {
			return nil, "", fmt.Errorf("[tts] 构造 XTTS 表单失败: %w", err)
		}
		if _, err := io.Copy(part, f); err != nil {
			return nil, "", fmt.Errorf("[tts] 读取参考音频失败: %w", err)
		}
	}

	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("[tts] 构造 XTTS 表单失败: %w", err)
	}
	return buf.Bytes(), mw.FormDataContentType(), nil
}

func (e *XTTSEngine) Close() error {
	e.client.CloseIdleConnections()
	return nil
}
