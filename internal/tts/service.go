package tts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/iabetor/tagvoice/internal/audio"
	"github.com/iabetor/tagvoice/internal/logger"
)

// ErrEngineUnavailable 表示合成引擎构造失败或被禁用。
var ErrEngineUnavailable = errors.New("[tts] 语音合成引擎不可用")

// Options 配置 Service。
type Options struct {
	// Device 可选: auto, cuda, cpu。
	Device  string
	TempDir string
}

// Service 持有进程内唯一的合成后端。
// 后端在第一次使用时构造且只构造一次，构造失败后不再重试。
// 对后端的调用通过权重为 1 的信号量串行化。
type Service struct {
	name    string
	factory Factory
	opts    Options

	once    sync.Once
	ready   atomic.Bool
	backend Backend
	device  string
	initErr error

	sem *semaphore.Weighted
}

// NewService 创建合成服务，此时不会构造后端。
func NewService(name string, factory Factory, opts Options) *Service {
	return &Service{
		name:    name,
		factory: factory,
		opts:    opts,
		sem:     semaphore.NewWeighted(1),
	}
}

func (s *Service) init() {
	s.once.Do(func() {
		s.device = ResolveDevice(s.opts.Device)
		start := time.Now()
		logger.Infof("[tts] 正在初始化 %s 后端 (device=%s)", s.name, s.device)

		b, err := s.factory(s.device)
		if err == nil && b == nil {
			err = fmt.Errorf("后端为空")
		}
		if err != nil {
			s.initErr = err
			logger.Errorf("[tts] %s 后端初始化失败，引擎不可用: %v", s.name, err)
		} else {
			s.backend = b
			logger.Infof("[tts] %s 后端已就绪，耗时 %v", s.name, time.Since(start))
		}
		s.ready.Store(true)
	})
}

// Ready 在首次调用时构造后端，返回引擎是否可用。
func (s *Service) Ready() error {
	s.init()
	if s.initErr != nil {
		return fmt.Errorf("%w: %v", ErrEngineUnavailable, s.initErr)
	}
	return nil
}

// Initialized 报告后端是否已尝试构造，不会触发构造。
func (s *Service) Initialized() bool { return s.ready.Load() }

// Available 报告后端是否已构造成功，不会触发构造。
func (s *Service) Available() bool { return s.ready.Load() && s.initErr == nil }

// Device 返回执行设备；后端尚未构造时返回 "not_initialized"。
func (s *Service) Device() string {
	if !s.ready.Load() {
		return "not_initialized"
	}
	return s.device
}

// Name 返回后端名称。
func (s *Service) Name() string { return s.name }

// Synthesize 合成语音并返回调用方独占的临时 WAV 文件。
// voice 指向一个存在的普通文件且后端支持克隆时使用克隆音色，否则静默回退到默认音色。
// 合成失败时临时文件会在返回前删除。
func (s *Service) Synthesize(ctx context.Context, text, language string, speed float64, voice string) (*audio.Artifact, error) {
	if err := s.Ready(); err != nil {
		return nil, err
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	art, err := audio.NewArtifact(s.opts.TempDir, ".wav")
	if err != nil {
		s.sem.Release(1)
		return nil, err
	}

	req := Request{
		Text:       text,
		Language:   language,
		Speed:      speed,
		OutputPath: art.Path(),
	}
	if voice != "" {
		switch {
		case !isFile(voice):
			logger.Debugf("[tts] 参考音频 %s 不存在，使用默认音色", voice)
		case !s.backend.SupportsCloning():
			logger.Debugf("[tts] %s 后端不支持声音克隆，使用默认音色", s.name)
		default:
			req.SpeakerWAV = voice
		}
	}

	logger.Debugf("[tts] %s: 合成 %d 个字符 (lang=%s, speed=%.2f, clone=%v)",
		s.name, len([]rune(text)), language, speed, req.SpeakerWAV != "")

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("[tts] %s 后端 panic: %v", s.name, r)
				done <- fmt.Errorf("[tts] %s 后端 panic: %v", s.name, r)
			}
		}()
		done <- s.backend.Synthesize(ctx, req)
	}()

	select {
	case err := <-done:
		s.sem.Release(1)
		if err == nil {
			err = checkOutput(art.Path())
		}
		if err != nil {
			art.Release()
			return nil, err
		}
		return art, nil
	case <-ctx.Done():
		// 后端返回后才释放信号量和临时文件，保证同一时刻只有一个合成在运行
		go func() {
			<-done
			s.sem.Release(1)
			art.Release()
		}()
		return nil, ctx.Err()
	}
}

// Close 释放后端资源。
func (s *Service) Close() error {
	if !s.Available() {
		return nil
	}
	return s.backend.Close()
}

func checkOutput(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("[tts] 输出文件不可读: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("[tts] 后端未写入音频数据")
	}
	return nil
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
