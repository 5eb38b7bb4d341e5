// Package phonetic 在合成前把中文文本转换为带数字声调的拼音。
package phonetic

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/mozillazg/go-pinyin"

	"github.com/iabetor/tagvoice/internal/lang"
	"github.com/iabetor/tagvoice/internal/logger"
)

// Converter 把文本转换为音标形式。
type Converter interface {
	Convert(text string) (string, error)
}

// PinyinConverter 使用 go-pinyin 的 Tone3 风格（声调数字在音节末尾）。
type PinyinConverter struct {
	args        pinyin.Args
	neutralFive bool
	lookup      func(rune, pinyin.Args) []string
}

// NewPinyinConverter 创建拼音转换器。neutralFive 为 true 时轻声音节追加 5。
func NewPinyinConverter(neutralFive bool) *PinyinConverter {
	args := pinyin.NewArgs()
	args.Style = pinyin.Tone3
	return &PinyinConverter{args: args, neutralFive: neutralFive, lookup: pinyin.SinglePinyin}
}

// Convert 将汉字逐字转为拼音，非汉字片段作为单个词元保留，结果以空格连接。
func (c *PinyinConverter) Convert(text string) (string, error) {
	var tokens []string
	var run []rune
	hanRun := false

	flush := func() {
		if len(run) == 0 {
			return
		}
		seg := string(run)
		run = run[:0]
		if !hanRun {
			if s := strings.TrimSpace(seg); s != "" {
				tokens = append(tokens, s)
			}
			return
		}
		for _, r := range seg {
			py := c.lookup(r, c.args)
			if len(py) == 0 || py[0] == "" {
				// 没有读音的汉字原样保留
				tokens = append(tokens, string(r))
				continue
			}
			tokens = append(tokens, c.syllable(py[0]))
		}
	}

	for _, r := range text {
		isHan := unicode.Is(unicode.Han, r)
		if isHan != hanRun {
			flush()
			hanRun = isHan
		}
		run = append(run, r)
	}
	flush()

	if len(tokens) == 0 {
		return "", fmt.Errorf("[phonetic] 转换结果为空")
	}
	return strings.Join(tokens, " "), nil
}

func (c *PinyinConverter) syllable(s string) string {
	if !c.neutralFive || s == "" {
		return s
	}
	last := s[len(s)-1]
	if last < '1' || last > '4' {
		return s + "5"
	}
	return s
}

// Preprocessor 只对中文请求执行转换，其余语言原样返回。
type Preprocessor struct {
	converter Converter
}

// NewPreprocessor 创建预处理器。converter 为 nil 时能力关闭，所有文本原样返回。
func NewPreprocessor(converter Converter) *Preprocessor {
	return &Preprocessor{converter: converter}
}

// Available 报告转换能力是否启用。
func (p *Preprocessor) Available() bool {
	return p != nil && p.converter != nil
}

// Process 在 language 为中文时转换文本。转换失败（包括 panic）时记录警告并返回原文。
func (p *Preprocessor) Process(language, text string) (out string) {
	if !p.Available() || language != lang.Chinese {
		return text
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Warnf("[phonetic] 拼音转换 panic，使用原文: %v", r)
			out = text
		}
	}()

	converted, err := p.converter.Convert(text)
	if err != nil {
		logger.Warnf("[phonetic] 拼音转换失败，使用原文: %v", err)
		return text
	}
	logger.Debugf("[phonetic] %s -> %s", text, converted)
	return converted
}
