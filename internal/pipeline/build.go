package pipeline

import (
	"fmt"

	"github.com/iabetor/tagvoice/internal/config"
	"github.com/iabetor/tagvoice/internal/enhance"
	"github.com/iabetor/tagvoice/internal/lang"
	"github.com/iabetor/tagvoice/internal/logger"
	"github.com/iabetor/tagvoice/internal/metrics"
	"github.com/iabetor/tagvoice/internal/phonetic"
	"github.com/iabetor/tagvoice/internal/tts"
)

// NewFromConfig 按配置选择各组件的实现。合成后端在首个请求时才构造。
// 返回的 Service 由调用方负责关闭。
func NewFromConfig(cfg *config.Config, m *metrics.Metrics) (*Pipeline, *tts.Service, error) {
	detector, err := newDetector(cfg.Language)
	if err != nil {
		return nil, nil, err
	}

	var converter phonetic.Converter
	if cfg.Phonetic.Converter == "pinyin" {
		converter = phonetic.NewPinyinConverter(cfg.Phonetic.NeutralToneWithFive)
	}

	var enhancer enhance.Processor = enhance.Nop{}
	if cfg.Enhance.Mode == "filter" {
		enhancer = enhance.NewFilter(enhance.DefaultParams())
	}

	engine := tts.NewServiceFromConfig(cfg.Engine)

	logger.Infof("[pipeline] 组件: backend=%s device=%s detector=%s phonetic=%s enhance=%s",
		cfg.Engine.Backend, cfg.Engine.Device, detector.Name(), cfg.Phonetic.Converter, cfg.Enhance.Mode)

	p := New(Deps{
		Engine:   engine,
		Resolver: lang.NewResolver(detector, cfg.Language.ValidateOverride),
		Phonetic: phonetic.NewPreprocessor(converter),
		Enhancer: enhancer,
		Metrics:  m,
	})
	return p, engine, nil
}

func newDetector(cfg config.LanguageConfig) (lang.Detector, error) {
	switch cfg.Detector {
	case "whatlang":
		return lang.NewWhatlangDetector(), nil
	case "tencent":
		d, err := lang.NewTencentDetector(cfg.Tencent.SecretID, cfg.Tencent.SecretKey, cfg.Tencent.Region)
		if err != nil {
			return nil, fmt.Errorf("初始化语种识别失败: %w", err)
		}
		return d, nil
	case "none", "":
		return lang.Unavailable(), nil
	default:
		return nil, fmt.Errorf("未知的语言检测后端: %s", cfg.Detector)
	}
}
