package tts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"

	"github.com/iabetor/tagvoice/internal/audio"
	"github.com/iabetor/tagvoice/internal/logger"
)

// SherpaConfig 是离线 VITS 模型的参数。
type SherpaConfig struct {
	// ModelDir 需包含 model.onnx、tokens.txt，可选 lexicon.txt 和 espeak-ng-data/。
	ModelDir   string
	NumThreads int
	SpeakerID  int
}

// SherpaEngine 封装 sherpa-onnx 离线 TTS。
type SherpaEngine struct {
	tts       *sherpa.OfflineTts
	speakerID int
}

// NewSherpaEngine 加载离线 VITS 模型，provider 使用已确定的执行设备。
func NewSherpaEngine(cfg SherpaConfig, device string) (*SherpaEngine, error) {
	model := filepath.Join(cfg.ModelDir, "model.onnx")
	if _, err := os.Stat(model); err != nil {
		return nil, fmt.Errorf("[tts] 找不到 sherpa 模型 %s: %w", model, err)
	}

	config := sherpa.OfflineTtsConfig{}
	config.Model.Vits.Model = model
	config.Model.Vits.Tokens = filepath.Join(cfg.ModelDir, "tokens.txt")
	if p := filepath.Join(cfg.ModelDir, "lexicon.txt"); fileExists(p) {
		config.Model.Vits.Lexicon = p
	}
	if p := filepath.Join(cfg.ModelDir, "espeak-ng-data"); fileExists(p) {
		config.Model.Vits.DataDir = p
	}
	config.Model.Vits.NoiseScale = 0.667
	config.Model.Vits.NoiseScaleW = 0.8
	config.Model.Vits.LengthScale = 1.0
	config.Model.NumThreads = cfg.NumThreads
	config.Model.Provider = device
	config.MaxNumSentences = 1

	tts := sherpa.NewOfflineTts(&config)
	if tts == nil {
		return nil, fmt.Errorf("[tts] 创建 sherpa 离线 TTS 失败，模型目录: %s", cfg.ModelDir)
	}

	logger.Infof("[tts] Sherpa TTS 已初始化 (model=%s, threads=%d, provider=%s)", cfg.ModelDir, cfg.NumThreads, device)
	return &SherpaEngine{tts: tts, speakerID: cfg.SpeakerID}, nil
}

func (e *SherpaEngine) Name() string { return "sherpa" }

func (e *SherpaEngine) SupportsCloning() bool { return false }

func (e *SherpaEngine) Synthesize(ctx context.Context, req Request) error {
	generated := e.tts.Generate(req.Text, e.speakerID, float32(req.Speed))
	if err := ctx.Err(); err != nil {
		return err
	}
	if generated == nil || len(generated.Samples) == 0 {
		return fmt.Errorf("[tts] sherpa 未生成音频")
	}
	logger.Debugf("[tts] sherpa: 生成 %d 个样本，采样率 %d Hz", len(generated.Samples), generated.SampleRate)
	return audio.WriteFloat32(req.OutputPath, generated.Samples, generated.SampleRate)
}

func (e *SherpaEngine) Close() error {
	if e.tts != nil {
		sherpa.DeleteOfflineTts(e.tts)
		e.tts = nil
	}
	logger.Info("[tts] Sherpa TTS 已关闭")
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
