// Package enhance 对合成后的音频做可选的平滑与响度归一化。
package enhance

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/iabetor/tagvoice/internal/audio"
	"github.com/iabetor/tagvoice/internal/logger"
)

// Processor 处理一个临时音频文件。
// 返回的文件与输入不同时由调用方负责释放两者；enhanced 为 false 表示输出就是输入。
type Processor interface {
	Process(in *audio.Artifact) (out *audio.Artifact, enhanced bool)
	Available() bool
}

// Nop 是关闭后处理时使用的处理器。
type Nop struct{}

func (Nop) Process(in *audio.Artifact) (*audio.Artifact, bool) { return in, false }

func (Nop) Available() bool { return false }

// Params 是滤波链参数。
type Params struct {
	SampleRate int
	Cutoff     float64
	// Mix 是滤波信号所占比例，其余为原始信号。
	Mix      float64
	TargetDB float64
	Ceiling  float64
}

// DefaultParams 返回默认参数：24kHz、8kHz 低通、0.7 混合、-20 dBFS、限幅 0.95。
func DefaultParams() Params {
	return Params{
		SampleRate: 24000,
		Cutoff:     8000,
		Mix:        0.7,
		TargetDB:   -20,
		Ceiling:    0.95,
	}
}

// Filter 是确定性的平滑滤波链。
type Filter struct {
	params Params
}

// NewFilter 创建滤波处理器。
func NewFilter(p Params) *Filter {
	return &Filter{params: p}
}

func (f *Filter) Available() bool { return true }

// Apply 对归一化样本执行完整的滤波链，返回新样本（采样率为 Params.SampleRate）。
func (f *Filter) Apply(samples []float64, rate int) []float64 {
	p := f.params
	x := Resample(samples, rate, p.SampleRate)

	smoothed := filtFilt(lowpassSections(p.Cutoff, p.SampleRate), x)

	out := make([]float64, len(x))
	floats.ScaleTo(out, p.Mix, smoothed)
	floats.AddScaled(out, 1-p.Mix, x)

	if rms := RMS(out); rms > 0 {
		target := math.Pow(10, p.TargetDB/20)
		floats.Scale(target/rms, out)
	}

	Clamp(out, p.Ceiling)
	return out
}

// Process 读取输入 WAV，滤波后写入 <input>_optimized.wav。
// 任何失败（包括 panic）都记录警告并返回原输入。
func (f *Filter) Process(in *audio.Artifact) (out *audio.Artifact, enhanced bool) {
	var derived *audio.Artifact
	defer func() {
		if r := recover(); r != nil {
			logger.Warnf("[enhance] 音频处理 panic，使用原始音频: %v", r)
			derived.Release()
			out, enhanced = in, false
		}
	}()

	derived, err := f.process(in)
	if err != nil {
		logger.Warnf("[enhance] 音频处理失败，使用原始音频: %v", err)
		return in, false
	}
	return derived, true
}

func (f *Filter) process(in *audio.Artifact) (*audio.Artifact, error) {
	w, err := audio.ReadWAV(in.Path())
	if err != nil {
		return nil, err
	}
	if len(w.Samples) == 0 {
		return nil, fmt.Errorf("[enhance] 输入音频为空")
	}

	processed := f.Apply(w.Samples, w.SampleRate)

	out := in.Derive("optimized")
	if err := audio.WriteWAV(out.Path(), &audio.Waveform{Samples: processed, SampleRate: f.params.SampleRate}); err != nil {
		out.Release()
		return nil, err
	}
	logger.Debugf("[enhance] %d Hz -> %d Hz, %d 样本, RMS %.4f", w.SampleRate, f.params.SampleRate, len(processed), RMS(processed))
	return out, nil
}
