package tts

import (
	"context"
	"fmt"
	"time"

	"github.com/iabetor/tagvoice/internal/config"
)

// NewFactory 根据配置返回后端构造函数。
func NewFactory(cfg config.EngineConfig) Factory {
	return func(device string) (Backend, error) {
		switch cfg.Backend {
		case "xtts":
			timeout := time.Duration(cfg.XTTS.Timeout) * time.Second
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			return NewXTTSEngine(ctx, XTTSConfig{
				URL:            cfg.XTTS.URL,
				SynthPath:      cfg.XTTS.SynthPath,
				HealthPath:     cfg.XTTS.HealthPath,
				Timeout:        timeout,
				SplitSentences: cfg.XTTS.SplitSentences,
			}, device)
		case "sherpa":
			return NewSherpaEngine(SherpaConfig{
				ModelDir:   cfg.Sherpa.ModelDir,
				NumThreads: cfg.Sherpa.NumThreads,
				SpeakerID:  cfg.Sherpa.SpeakerID,
			}, device)
		case "piper":
			return NewPiperEngine(cfg.Piper.ModelPath)
		case "edge":
			return NewEdgeEngine(cfg.Edge.Voices), nil
		case "tencent":
			return NewTencentEngine(TencentConfig{
				SecretID:  cfg.Tencent.SecretID,
				SecretKey: cfg.Tencent.SecretKey,
				VoiceType: cfg.Tencent.VoiceType,
				Region:    cfg.Tencent.Region,
			})
		case "none":
			return nil, fmt.Errorf("[tts] 合成引擎已在配置中禁用")
		default:
			return nil, fmt.Errorf("[tts] 未知的后端: %s", cfg.Backend)
		}
	}
}

// NewServiceFromConfig 创建按配置懒加载后端的合成服务。
func NewServiceFromConfig(cfg config.EngineConfig) *Service {
	return NewService(cfg.Backend, NewFactory(cfg), Options{
		Device:  cfg.Device,
		TempDir: cfg.TempDir,
	})
}
