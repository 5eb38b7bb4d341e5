package lang

import (
	"context"
	"errors"
	"strings"

	"github.com/iabetor/tagvoice/internal/logger"
)

// Resolver 决定一次请求使用的语言代码。
type Resolver struct {
	detector         Detector
	validateOverride bool
}

// NewResolver 创建语言解析器。detector 为 nil 时视为检测不可用。
// validateOverride 为 false 时，调用方指定的语言原样透传给引擎。
func NewResolver(detector Detector, validateOverride bool) *Resolver {
	if detector == nil {
		detector = Unavailable()
	}
	return &Resolver{detector: detector, validateOverride: validateOverride}
}

// Available 报告是否配置了真实的检测后端。
func (r *Resolver) Available() bool {
	_, none := r.detector.(unavailableDetector)
	return !none
}

// DetectorName 返回检测后端名称。
func (r *Resolver) DetectorName() string { return r.detector.Name() }

// Resolve 返回语言代码。override 非空时直接采用（不做检测）；
// 否则对已清洗的文本做检测并映射到规范代码，任何失败都回退到 Default。
func (r *Resolver) Resolve(ctx context.Context, override, text string) string {
	if strings.TrimSpace(override) != "" {
		if !r.validateOverride {
			return override
		}
		if code, ok := Canonicalize(override); ok {
			return code
		}
		logger.Warnf("[lang] 不支持的语言 %q，回退到 %s", override, Default)
		return Default
	}

	code, err := r.Detect(ctx, text)
	if err != nil {
		if !errors.Is(err, ErrDetectionUnavailable) {
			logger.Warnf("[lang] 语言检测失败，回退到 %s: %v", Default, err)
		}
		return Default
	}
	return code
}

// Detect 检测文本语言并映射到规范代码；未能映射的结果返回 Default。
// 检测后端不可用时返回 ErrDetectionUnavailable。
func (r *Resolver) Detect(ctx context.Context, text string) (string, error) {
	raw, err := r.detector.Detect(ctx, text)
	if err != nil {
		return "", err
	}
	code, ok := Canonicalize(raw)
	if !ok {
		logger.Debugf("[lang] 检测结果 %q 不在支持列表中，回退到 %s", raw, Default)
		return Default, nil
	}
	logger.Debugf("[lang] %s 检测结果: %s -> %s", r.detector.Name(), raw, code)
	return code, nil
}
