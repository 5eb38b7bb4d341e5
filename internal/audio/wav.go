package audio

import (
	"errors"
	"fmt"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// BitDepth 是 tagvoice 写出的 WAV 文件位深。
const BitDepth = 16

// ErrInvalidWAV 表示文件不是可解析的 PCM WAV。
var ErrInvalidWAV = errors.New("[audio] 无效的 WAV 文件")

// Waveform 是单声道、归一化到 [-1.0, 1.0] 的音频数据。
type Waveform struct {
	Samples    []float64
	SampleRate int
}

// Duration 返回音频时长（秒）。
func (w *Waveform) Duration() float64 {
	if w.SampleRate <= 0 {
		return 0
	}
	return float64(len(w.Samples)) / float64(w.SampleRate)
}

// ReadWAV 读取 WAV 文件，多声道会被平均下混为单声道。
func ReadWAV(path string) (*Waveform, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("[audio] 打开 %s 失败: %w", path, err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidWAV, path)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("[audio] 解码 %s 失败: %w", path, err)
	}

	channels := 1
	if buf.Format != nil && buf.Format.NumChannels > 0 {
		channels = buf.Format.NumChannels
	}
	bitDepth := int(dec.BitDepth)
	if buf.SourceBitDepth > 0 {
		bitDepth = buf.SourceBitDepth
	}

	mono := buf.Data
	if channels > 1 {
		frames := len(buf.Data) / channels
		mono = make([]int, frames)
		for i := 0; i < frames; i++ {
			sum := 0
			for c := 0; c < channels; c++ {
				sum += buf.Data[i*channels+c]
			}
			mono[i] = sum / channels
		}
	}

	return &Waveform{
		Samples:    IntToFloat64(mono, bitDepth),
		SampleRate: int(dec.SampleRate),
	}, nil
}

// WriteWAV 以 16-bit 单声道 PCM 写出波形。
func WriteWAV(path string, w *Waveform) error {
	return WritePCM(path, Float64ToInt(w.Samples, BitDepth), w.SampleRate)
}

// WritePCM 将 16-bit 单声道整型样本写为 WAV 文件。
func WritePCM(path string, samples []int, sampleRate int) error {
	if sampleRate <= 0 {
		return fmt.Errorf("[audio] 非法采样率: %d", sampleRate)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("[audio] 创建 %s 失败: %w", path, err)
	}

	enc := wav.NewEncoder(f, sampleRate, BitDepth, 1, 1)
	buf := &goaudio.IntBuffer{
		Data:           samples,
		Format:         &goaudio.Format{SampleRate: sampleRate, NumChannels: 1},
		SourceBitDepth: BitDepth,
	}
	if err := enc.Write(buf); err != nil {
		f.Close()
		return fmt.Errorf("[audio] 写入 %s 失败: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return fmt.Errorf("[audio] 关闭编码器失败: %w", err)
	}
	return f.Close()
}

// WriteFloat32 将 float32 样本写为 16-bit 单声道 WAV。
func WriteFloat32(path string, samples []float32, sampleRate int) error {
	return WritePCM(path, Float64ToInt(Float32ToFloat64(samples), BitDepth), sampleRate)
}
