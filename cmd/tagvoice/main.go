package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/iabetor/tagvoice/internal/audio"
	"github.com/iabetor/tagvoice/internal/config"
	"github.com/iabetor/tagvoice/internal/httpapi"
	"github.com/iabetor/tagvoice/internal/logger"
	"github.com/iabetor/tagvoice/internal/metrics"
	"github.com/iabetor/tagvoice/internal/pipeline"
)

const version = "1.0.0"

func usage() {
	fmt.Fprintf(os.Stderr, `用法:
  tagvoice [-config path] [serve]          启动 HTTP 服务
  tagvoice [-config path] say [选项] 文本   合成一段文本并通过扬声器播放
  tagvoice record [-seconds n] 输出.wav     录制用于声音克隆的参考音频

say 选项:
  -lang   语言代码（留空则自动检测）
  -voice  参考音频路径
  -speed  语速，默认 1.0
  -out    保存到 WAV 文件而不播放
`)
}

func main() {
	configPath := flag.String("config", "configs/tagvoice.yaml", "配置文件路径")
	flag.Usage = usage
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 监听系统信号，优雅关闭
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Infof("[main] 收到信号 %v，正在关闭...", sig)
		cancel()
	}()

	args := flag.Args()
	cmd := "serve"
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "serve":
		err = serve(ctx, cfg)
	case "say":
		err = say(ctx, cfg, args)
	case "record":
		err = record(ctx, args)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil && err != context.Canceled {
		logger.Errorf("[main] %v", err)
		logger.Sync()
		os.Exit(1)
	}
}

// loadConfig 在默认配置文件不存在时使用内置默认值。
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) && !isFlagSet("config") {
		return config.Default(), nil
	}
	return config.Load(path)
}

func isFlagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger.Infof("[main] TagVoice %s 启动中 (backend=%s, log_level=%s)", version, cfg.Engine.Backend, cfg.Log.Level)

	m := metrics.New()
	p, engine, err := pipeline.NewFromConfig(cfg, m)
	if err != nil {
		return fmt.Errorf("创建流水线失败: %w", err)
	}
	defer engine.Close()

	if err := httpapi.New(cfg.Server, p, m, version).ListenAndServe(ctx); err != nil {
		return err
	}
	logger.Info("[main] TagVoice 已停止")
	return nil
}

func say(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("say", flag.ExitOnError)
	language := fs.String("lang", "", "语言代码")
	voice := fs.String("voice", "", "参考音频路径")
	speed := fs.Float64("speed", 1.0, "语速")
	out := fs.String("out", "", "输出 WAV 路径")
	fs.Parse(args)

	text := strings.Join(fs.Args(), " ")
	if text == "" {
		return fmt.Errorf("请提供要合成的文本")
	}

	p, engine, err := pipeline.NewFromConfig(cfg, nil)
	if err != nil {
		return fmt.Errorf("创建流水线失败: %w", err)
	}
	defer engine.Close()

	res, err := p.Process(ctx, pipeline.Request{
		Text:     text,
		Voice:    *voice,
		Speed:    *speed,
		Language: *language,
	})
	if err != nil {
		return err
	}
	logger.Infof("[main] 情绪=%s(%.1f) 语言=%s 增强=%v", res.Emotion.Label, res.Emotion.Intensity, res.Language, res.Enhanced)

	if *out != "" {
		if err := os.WriteFile(*out, res.Audio, 0644); err != nil {
			return fmt.Errorf("保存 %s 失败: %w", *out, err)
		}
		logger.Infof("[main] 已保存到 %s", *out)
		return nil
	}

	art, err := audio.NewArtifact(cfg.Engine.TempDir, ".wav")
	if err != nil {
		return err
	}
	defer art.Release()
	if err := os.WriteFile(art.Path(), res.Audio, 0600); err != nil {
		return fmt.Errorf("写入临时文件失败: %w", err)
	}

	player, err := audio.NewPlayer()
	if err != nil {
		return err
	}
	defer player.Close()
	return player.PlayFile(ctx, art.Path())
}

// referenceSampleRate 是录制参考音频使用的采样率。
const referenceSampleRate = 24000

func record(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("record", flag.ExitOnError)
	seconds := fs.Int("seconds", 8, "录音时长（秒）")
	fs.Parse(args)

	if fs.NArg() != 1 {
		return fmt.Errorf("请提供输出文件路径")
	}
	out := fs.Arg(0)

	rec, err := audio.NewRecorder(referenceSampleRate)
	if err != nil {
		return err
	}
	defer rec.Close()

	w, err := rec.Record(ctx, time.Duration(*seconds)*time.Second)
	if err != nil {
		return err
	}
	if err := audio.WriteWAV(out, w); err != nil {
		return err
	}
	logger.Infof("[main] 参考音频已保存到 %s，可通过 -voice 或请求中的 voice 字段使用", out)
	return nil
}
