package audio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/iabetor/tagvoice/internal/logger"
)

// Recorder 使用 malgo (miniaudio) 从默认麦克风录制参考音频，用于声音克隆。
type Recorder struct {
	ctx        *malgo.AllocatedContext
	sampleRate uint32

	mu      sync.Mutex
	samples []int16
}

// NewRecorder 创建单声道录音实例。
func NewRecorder(sampleRate int) (*Recorder, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("[audio] 初始化录音上下文失败: %w", err)
	}
	return &Recorder{ctx: ctx, sampleRate: uint32(sampleRate)}, nil
}

// Record 录制 d 时长的音频，ctx 提前取消时返回已录到的部分。
func (r *Recorder) Record(ctx context.Context, d time.Duration) (*Waveform, error) {
	r.mu.Lock()
	r.samples = r.samples[:0]
	r.mu.Unlock()

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = r.sampleRate

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			if len(input) == 0 {
				return
			}
			frame := BytesToInt16(input)
			r.mu.Lock()
			r.samples = append(r.samples, frame...)
			r.mu.Unlock()
		},
	}

	device, err := malgo.InitDevice(r.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return nil, fmt.Errorf("[audio] 初始化录音设备失败: %w", err)
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		return nil, fmt.Errorf("[audio] 启动录音设备失败: %w", err)
	}
	logger.Infof("[audio] 开始录音 %v", d)

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
	device.Stop()

	r.mu.Lock()
	recorded := Int16ToInt(r.samples)
	r.mu.Unlock()

	if len(recorded) == 0 {
		return nil, fmt.Errorf("[audio] 没有录到任何声音")
	}
	w := &Waveform{Samples: IntToFloat64(recorded, BitDepth), SampleRate: int(r.sampleRate)}
	logger.Infof("[audio] 录音结束: %.1f 秒", w.Duration())
	return w, nil
}

// Close 释放录音上下文。
func (r *Recorder) Close() {
	if r.ctx != nil {
		_ = r.ctx.Uninit()
		r.ctx.Free()
		r.ctx = nil
	}
}
