package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/iabetor/tagvoice/internal/lang"
)

// Config 是 tagvoice 的顶层配置结构。
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Engine   EngineConfig   `yaml:"engine"`
	Language LanguageConfig `yaml:"language"`
	Phonetic PhoneticConfig `yaml:"phonetic"`
	Enhance  EnhanceConfig  `yaml:"enhance"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig HTTP 服务配置。
type ServerConfig struct {
	Addr string `yaml:"addr"`
	// RequestTimeout 单个合成请求的超时时间（秒）。
	RequestTimeout int `yaml:"request_timeout"`
	// MaxBodyBytes 请求体大小上限。
	MaxBodyBytes   int64    `yaml:"max_body_bytes"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// EngineConfig 语音合成引擎配置。
type EngineConfig struct {
	// Backend 可选: xtts, sherpa, piper, edge, tencent, none
	Backend string `yaml:"backend"`
	// Device 可选: auto, cuda, cpu。只在引擎构建时判定一次。
	Device  string        `yaml:"device"`
	TempDir string        `yaml:"temp_dir"`
	XTTS    XTTSConfig    `yaml:"xtts"`
	Sherpa  SherpaConfig  `yaml:"sherpa"`
	Piper   PiperConfig   `yaml:"piper"`
	Edge    EdgeConfig    `yaml:"edge"`
	Tencent TencentConfig `yaml:"tencent"`
}

// XTTSConfig XTTS HTTP 服务配置。
type XTTSConfig struct {
	URL        string `yaml:"url"`
	SynthPath  string `yaml:"synth_path"`
	HealthPath string `yaml:"health_path"`
	// Timeout 单次 HTTP 调用超时（秒）。
	Timeout        int  `yaml:"timeout"`
	SplitSentences bool `yaml:"split_sentences"`
}

// SherpaConfig sherpa-onnx 离线 VITS 模型配置。
type SherpaConfig struct {
	ModelDir   string `yaml:"model_dir"`
	NumThreads int    `yaml:"num_threads"`
	SpeakerID  int    `yaml:"speaker_id"`
}

// PiperConfig Piper TTS 配置。
type PiperConfig struct {
	ModelPath string `yaml:"model_path"`
}

// EdgeConfig Edge TTS 配置。
type EdgeConfig struct {
	// Voices 按规范语言代码覆盖默认音色，如 zh-cn: zh-CN-YunxiNeural
	Voices map[string]string `yaml:"voices"`
}

// TencentConfig 腾讯云 TTS 配置。
type TencentConfig struct {
	SecretID  string `yaml:"secret_id"`
	SecretKey string `yaml:"secret_key"`
	VoiceType int64  `yaml:"voice_type"`
	Region    string `yaml:"region"`
}

// LanguageConfig 语言解析配置。
type LanguageConfig struct {
	// Detector 可选: whatlang, tencent, none
	Detector string `yaml:"detector"`
	// ValidateOverride 为 true 时，调用方指定的语言不在支持列表内会回退到默认语言。
	ValidateOverride bool                 `yaml:"validate_override"`
	Tencent          TencentDetectConfig `yaml:"tencent"`
}

// TencentDetectConfig 腾讯云机器翻译语种识别配置。
type TencentDetectConfig struct {
	SecretID  string `yaml:"secret_id"`
	SecretKey string `yaml:"secret_key"`
	Region    string `yaml:"region"`
}

// PhoneticConfig 中文拼音预处理配置。
type PhoneticConfig struct {
	// Converter 可选: pinyin, none
	Converter string `yaml:"converter"`
	// NeutralToneWithFive 轻声音节是否追加数字 5。
	NeutralToneWithFive bool `yaml:"neutral_tone_with_five"`
}

// EnhanceConfig 音频后处理配置。
type EnhanceConfig struct {
	// Mode 可选: filter, none
	Mode string `yaml:"mode"`
}

// LogConfig 日志配置。
type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
}

// Load 读取 YAML 配置文件并返回 Config。
// 配置文件同目录下的 .env 会先被加载（不覆盖已有环境变量），
// 之后支持 ${VAR_NAME} 形式的环境变量展开。
func Load(path string) (*Config, error) {
	envPath := filepath.Join(filepath.Dir(path), ".env")
	if err := godotenv.Load(envPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("加载 %s 失败: %w", envPath, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件 %s 失败: %w", path, err)
	}

	expanded := os.Expand(string(data), func(key string) string {
		return os.Getenv(key)
	})

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件 %s 失败: %w", path, err)
	}

	setDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default 返回只包含默认值的配置，用于未提供配置文件的场景。
func Default() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	return cfg
}

// Validate 检查枚举类配置项是否合法。
func (c *Config) Validate() error {
	checks := []struct {
		name  string
		value string
		allow []string
	}{
		{"engine.backend", c.Engine.Backend, []string{"xtts", "sherpa", "piper", "edge", "tencent", "none"}},
		{"engine.device", c.Engine.Device, []string{"auto", "cuda", "cpu"}},
		{"language.detector", c.Language.Detector, []string{"whatlang", "tencent", "none"}},
		{"phonetic.converter", c.Phonetic.Converter, []string{"pinyin", "none"}},
		{"enhance.mode", c.Enhance.Mode, []string{"filter", "none"}},
	}
	for _, chk := range checks {
		if !contains(chk.allow, chk.value) {
			return fmt.Errorf("配置项 %s 的值 %q 不合法，可选: %s", chk.name, chk.value, strings.Join(chk.allow, ", "))
		}
	}
	if c.Engine.Backend == "xtts" && c.Engine.XTTS.URL == "" {
		return fmt.Errorf("engine.backend=xtts 需要配置 engine.xtts.url")
	}
	for code := range c.Engine.Edge.Voices {
		if !lang.IsSupported(code) {
			return fmt.Errorf("engine.edge.voices 中的语言代码 %q 不受支持", code)
		}
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// setDefaults 为未设置的配置项填充默认值。
func setDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":5000"
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 120
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = 1 << 20
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		cfg.Server.AllowedOrigins = []string{"*"}
	}

	cfg.Engine.Backend = strings.ToLower(strings.TrimSpace(cfg.Engine.Backend))
	if cfg.Engine.Backend == "" {
		cfg.Engine.Backend = "xtts"
	}
	cfg.Engine.Device = strings.ToLower(strings.TrimSpace(cfg.Engine.Device))
	if cfg.Engine.Device == "" {
		cfg.Engine.Device = "auto"
	}
	if cfg.Engine.TempDir == "" {
		cfg.Engine.TempDir = os.TempDir()
	}
	cfg.Engine.TempDir = expandHome(cfg.Engine.TempDir)
	cfg.Engine.Sherpa.ModelDir = expandHome(cfg.Engine.Sherpa.ModelDir)
	cfg.Engine.Piper.ModelPath = expandHome(cfg.Engine.Piper.ModelPath)
	if cfg.Engine.XTTS.SynthPath == "" {
		cfg.Engine.XTTS.SynthPath = "/tts_to_audio"
	}
	if cfg.Engine.XTTS.HealthPath == "" {
		cfg.Engine.XTTS.HealthPath = "/health"
	}
	if cfg.Engine.XTTS.Timeout == 0 {
		cfg.Engine.XTTS.Timeout = 120
	}
	if cfg.Engine.Sherpa.NumThreads == 0 {
		cfg.Engine.Sherpa.NumThreads = 2
	}
	if cfg.Engine.Tencent.Region == "" {
		cfg.Engine.Tencent.Region = "ap-guangzhou"
	}

	cfg.Language.Detector = strings.ToLower(strings.TrimSpace(cfg.Language.Detector))
	if cfg.Language.Detector == "" {
		cfg.Language.Detector = "whatlang"
	}
	if cfg.Language.Tencent.Region == "" {
		cfg.Language.Tencent.Region = "ap-guangzhou"
	}

	cfg.Phonetic.Converter = strings.ToLower(strings.TrimSpace(cfg.Phonetic.Converter))
	if cfg.Phonetic.Converter == "" {
		cfg.Phonetic.Converter = "pinyin"
	}
	cfg.Enhance.Mode = strings.ToLower(strings.TrimSpace(cfg.Enhance.Mode))
	if cfg.Enhance.Mode == "" {
		cfg.Enhance.Mode = "filter"
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	// 去除密钥两端可能的空白（环境变量展开后常见）
	cfg.Engine.Tencent.SecretID = strings.TrimSpace(cfg.Engine.Tencent.SecretID)
	cfg.Engine.Tencent.SecretKey = strings.TrimSpace(cfg.Engine.Tencent.SecretKey)
	cfg.Language.Tencent.SecretID = strings.TrimSpace(cfg.Language.Tencent.SecretID)
	cfg.Language.Tencent.SecretKey = strings.TrimSpace(cfg.Language.Tencent.SecretKey)
}

// expandHome 展开路径开头的 ~/，Go 不会自动处理。
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, _ := os.UserHomeDir()
	if home == "" {
		return path
	}
	return filepath.Join(home, path[2:])
}
