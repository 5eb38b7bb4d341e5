package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/iabetor/tagvoice/internal/audio"
	"github.com/iabetor/tagvoice/internal/enhance"
	"github.com/iabetor/tagvoice/internal/lang"
	"github.com/iabetor/tagvoice/internal/logger"
	"github.com/iabetor/tagvoice/internal/metrics"
	"github.com/iabetor/tagvoice/internal/phonetic"
	"github.com/iabetor/tagvoice/internal/tags"
	"github.com/iabetor/tagvoice/internal/tts"
)

// Request 是一次合成请求。
type Request struct {
	Text string `json:"text"`
	// Voice 是参考音频路径，文件不存在时使用默认音色。
	Voice string `json:"voice,omitempty"`
	// Speed 为 0 时使用 1.0。
	Speed float64 `json:"speed,omitempty"`
	// Language 非空时跳过语言检测。
	Language string `json:"language,omitempty"`
}

// Result 是成功合成的结果。
type Result struct {
	Audio    []byte
	Emotion  tags.Emotion
	Language string
	Enhanced bool
}

// Synthesizer 是流水线使用的合成引擎。
type Synthesizer interface {
	Name() string
	Device() string
	Ready() error
	Initialized() bool
	Available() bool
	Synthesize(ctx context.Context, text, language string, speed float64, voice string) (*audio.Artifact, error)
}

var _ Synthesizer = (*tts.Service)(nil)

// Capabilities 描述各可选能力在启动时的可用性。
type Capabilities struct {
	TTS             bool   `json:"tts_available"`
	LangDetect      bool   `json:"langdetect_available"`
	Phonetic        bool   `json:"phonetic_available"`
	AudioProcessing bool   `json:"audio_processing_available"`
	Backend         string `json:"backend"`
	Device          string `json:"device"`
}

// Deps 是 Pipeline 的组件。nil 的可选组件会被替换为空实现。
type Deps struct {
	Engine   Synthesizer
	Resolver *lang.Resolver
	Phonetic *phonetic.Preprocessor
	Enhancer enhance.Processor
	Metrics  *metrics.Metrics
}

// Pipeline 把标签提取、清洗、语言解析、拼音预处理、合成和后处理串成一次请求。
// Pipeline 本身无状态，可被多个请求并发使用。
type Pipeline struct {
	engine   Synthesizer
	resolver *lang.Resolver
	phonetic *phonetic.Preprocessor
	enhancer enhance.Processor
	metrics  *metrics.Metrics
}

// New 创建流水线。
func New(d Deps) *Pipeline {
	p := &Pipeline{
		engine:   d.Engine,
		resolver: d.Resolver,
		phonetic: d.Phonetic,
		enhancer: d.Enhancer,
		metrics:  d.Metrics,
	}
	if p.resolver == nil {
		p.resolver = lang.NewResolver(nil, false)
	}
	if p.phonetic == nil {
		p.phonetic = phonetic.NewPreprocessor(nil)
	}
	if p.enhancer == nil {
		p.enhancer = enhance.Nop{}
	}
	return p
}

// Process 执行一次完整的合成请求。
// 无论成功与否，过程中产生的临时文件都会在返回前删除；失败时返回 *Error。
func (p *Pipeline) Process(ctx context.Context, req Request) (*Result, error) {
	log := logger.With("req", uuid.NewString()[:8])

	sm := NewStateMachine()
	sm.SetOnChange(func(from, to State) {
		log.Debugf("[pipeline] %s → %s", from, to)
		if to == StateFailed {
			p.metrics.ObserveFailure(from.String())
		}
	})

	var artifacts []*audio.Artifact
	defer func() {
		if !sm.Terminal() {
			sm.Fail()
		}
		for _, a := range artifacts {
			a.Release()
		}
	}()

	fail := func(kind Kind, detail string, err error) error {
		sm.Fail()
		p.metrics.ObserveRequest(kind.String())
		log.Warnf("[pipeline] 请求失败 (%s): %s: %v", kind, detail, err)
		return &Error{Kind: kind, Detail: detail, Err: err}
	}
	advance := func(to State) error {
		from := sm.Current()
		if sm.Transition(to) {
			return nil
		}
		return fail(KindSynthesisFailure, "internal pipeline error",
			fmt.Errorf("[pipeline] 非法状态转换 %s → %s", from, to))
	}

	if req.Text == "" {
		return nil, fail(KindInvalidRequest, "text is required", nil)
	}
	if !utf8.ValidString(req.Text) {
		return nil, fail(KindInvalidRequest, "text is not valid UTF-8", nil)
	}
	speed := req.Speed
	if speed == 0 {
		speed = 1.0
	}
	if speed < 0 || math.IsNaN(speed) || math.IsInf(speed, 0) {
		return nil, fail(KindInvalidRequest, "speed must be a positive number", nil)
	}
	if p.engine == nil {
		return nil, fail(KindEngineUnavailable, "TTS engine not available", tts.ErrEngineUnavailable)
	}
	if err := p.engine.Ready(); err != nil {
		return nil, fail(KindEngineUnavailable, "TTS engine not available", err)
	}

	emotion := tags.Extract(req.Text)
	if err := advance(StateEmotionExtracted); err != nil {
		return nil, err
	}
	p.metrics.ObserveEmotion(string(emotion.Label))

	clean, err := tags.Clean(req.Text)
	if err != nil {
		return nil, fail(KindEmptyAfterSanitization, "no text remaining after removing tags", err)
	}
	if err := advance(StateSanitized); err != nil {
		return nil, err
	}

	language := p.resolver.Resolve(ctx, req.Language, clean)
	if err := advance(StateLanguageResolved); err != nil {
		return nil, err
	}

	text := p.phonetic.Process(language, clean)
	if err := advance(StateScriptPreprocessed); err != nil {
		return nil, err
	}

	start := time.Now()
	raw, err := p.engine.Synthesize(ctx, text, language, speed, req.Voice)
	if err != nil {
		if errors.Is(err, tts.ErrEngineUnavailable) {
			return nil, fail(KindEngineUnavailable, "TTS engine not available", err)
		}
		return nil, fail(KindSynthesisFailure, "speech synthesis failed", err)
	}
	artifacts = append(artifacts, raw)
	p.metrics.ObserveSynthesis(p.engine.Name(), time.Since(start))
	if err := advance(StateSynthesized); err != nil {
		return nil, err
	}

	final, enhanced := p.enhancer.Process(raw)
	if final != raw {
		artifacts = append(artifacts, final)
	}
	if enhanced {
		if err := advance(StatePostProcessed); err != nil {
			return nil, err
		}
	} else {
		if p.enhancer.Available() {
			p.metrics.ObserveDegradation()
		}
		if err := advance(StateSkipped); err != nil {
			return nil, err
		}
	}

	data, err := final.ReadAll()
	if err != nil {
		return nil, fail(KindSynthesisFailure, "failed to read synthesized audio", err)
	}
	if err := advance(StateComplete); err != nil {
		return nil, err
	}
	p.metrics.ObserveRequest("ok")

	log.Infof("[pipeline] 合成完成: emotion=%s(%.1f) lang=%s enhanced=%v bytes=%d 耗时 %v",
		emotion.Label, emotion.Intensity, language, enhanced, len(data), time.Since(start))

	return &Result{
		Audio:    data,
		Emotion:  emotion,
		Language: language,
		Enhanced: enhanced,
	}, nil
}

// DetectLanguage 清洗文本后检测语言，返回规范代码。
func (p *Pipeline) DetectLanguage(ctx context.Context, text string) (string, error) {
	if text == "" {
		return "", &Error{Kind: KindInvalidRequest, Detail: "text is required"}
	}
	clean, err := tags.Clean(text)
	if err != nil {
		return "", &Error{Kind: KindEmptyAfterSanitization, Detail: "no text remaining after removing tags", Err: err}
	}

	code, err := p.resolver.Detect(ctx, clean)
	switch {
	case errors.Is(err, lang.ErrDetectionUnavailable):
		return "", &Error{Kind: KindDetectionUnavailable, Detail: "language detection not available", Err: err}
	case err != nil:
		logger.Warnf("[pipeline] 语言检测失败，回退到 %s: %v", lang.Default, err)
		return lang.Default, nil
	}
	return code, nil
}

// Capabilities 返回能力概况，不会触发引擎构造。
func (p *Pipeline) Capabilities() Capabilities {
	c := Capabilities{
		LangDetect:      p.resolver.Available(),
		Phonetic:        p.phonetic.Available(),
		AudioProcessing: p.enhancer.Available(),
		Device:          "not_initialized",
	}
	if p.engine != nil {
		c.Backend = p.engine.Name()
		c.Device = p.engine.Device()
		c.TTS = c.Backend != "none" && (!p.engine.Initialized() || p.engine.Available())
	}
	return c
}

// EngineEnabled 报告是否配置了合成后端。
func (p *Pipeline) EngineEnabled() bool {
	return p.engine != nil && p.engine.Name() != "none"
}
