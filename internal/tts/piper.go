package tts

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"

	"github.com/iabetor/tagvoice/internal/audio"
	"github.com/iabetor/tagvoice/internal/logger"
)

// piperSampleRate 是 piper 输出的固定采样率。
const piperSampleRate = 22050

// piperCommand 是 piper 可执行文件名，测试中可替换。
var piperCommand = "piper"

// PiperEngine 使用 piper CLI 子进程实现离线语音合成。
type PiperEngine struct {
	modelPath string
}

// NewPiperEngine 创建 Piper 后端，要求 piper 在 PATH 中。
func NewPiperEngine(modelPath string) (*PiperEngine, error) {
	if modelPath == "" {
		return nil, fmt.Errorf("[tts] piper 需要配置模型路径")
	}
	if _, err := exec.LookPath(piperCommand); err != nil {
		return nil, fmt.Errorf("[tts] 找不到 piper 可执行文件: %w", err)
	}
	return &PiperEngine{modelPath: modelPath}, nil
}

func (p *PiperEngine) Name() string { return "piper" }

func (p *PiperEngine) SupportsCloning() bool { return false }

// Synthesize 调用 piper 输出 signed 16-bit LE 单声道 PCM，再写成 WAV。
func (p *PiperEngine) Synthesize(ctx context.Context, req Request) error {
	args := []string{"--model", p.modelPath, "--output-raw"}
	if req.Speed > 0 && req.Speed != 1.0 {
		// length_scale 越大语速越慢
		args = append(args, "--length_scale", strconv.FormatFloat(1/req.Speed, 'f', 3, 64))
	}

	cmd := exec.CommandContext(ctx, piperCommand, args...)
	cmd.Stdin = bytes.NewReader([]byte(req.Text))

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if s := stderr.String(); s != "" {
			logger.Warnf("[tts] piper stderr: %s", s)
		}
		return fmt.Errorf("[tts] piper 执行失败: %w", err)
	}

	pcm := stdout.Bytes()
	if len(pcm) == 0 {
		return fmt.Errorf("[tts] piper: 未收到音频数据")
	}
	logger.Debugf("[tts] piper: 收到 %d 字节原始 PCM", len(pcm))

	samples := audio.Int16ToInt(audio.BytesToInt16(pcm))
	return audio.WritePCM(req.OutputPath, samples, piperSampleRate)
}

func (p *PiperEngine) Close() error { return nil }
