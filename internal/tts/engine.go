package tts

import "context"

// Request 是一次合成调用的参数。
type Request struct {
	Text     string
	Language string
	Speed    float64
	// SpeakerWAV 非空时进行声音克隆，仅会传给支持克隆的后端。
	SpeakerWAV string
	// OutputPath 是后端需要写入的 16-bit PCM WAV 文件路径。
	OutputPath string
}

// Backend 定义语音合成后端接口。
type Backend interface {
	Name() string
	// SupportsCloning 报告后端能否使用参考音频克隆音色。
	SupportsCloning() bool
	// Synthesize 将文本合成为 WAV 并写入 req.OutputPath。
	Synthesize(ctx context.Context, req Request) error
	Close() error
}

// Factory 在首次使用时构造后端，device 为已确定的执行设备（cuda 或 cpu）。
type Factory func(device string) (Backend, error)
