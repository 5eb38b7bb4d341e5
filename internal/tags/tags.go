// Package tags 处理文本中的方括号动画标记：先从原文提取情绪信号，再清除全部标记得到可朗读文本。
package tags

import (
	"regexp"
	"strings"
)

// Label 是情绪类别。
type Label string

const (
	Happy     Label = "happy"
	Sad       Label = "sad"
	Angry     Label = "angry"
	Surprised Label = "surprised"
	Neutral   Label = "neutral"
)

// Emotion 是从原文标记中提取出的情绪及强度，强度范围 [0, 1]。
type Emotion struct {
	Label     Label   `json:"emotion"`
	Intensity float64 `json:"intensity"`
}

// NoEmotion 是没有任何已知标记时的结果。
var NoEmotion = Emotion{Label: Neutral, Intensity: 0}

// Tag 是一个已知动画标记，如 [CELEBRATE]。
type Tag struct {
	Name    string
	Emotion Emotion
	pattern *regexp.Regexp
}

// Token 返回带方括号的标记文本。
func (t Tag) Token() string { return "[" + t.Name + "]" }

func newTag(name string, label Label, intensity float64) Tag {
	return Tag{
		Name:    name,
		Emotion: Emotion{Label: label, Intensity: intensity},
		pattern: regexp.MustCompile(`(?i)\[` + regexp.QuoteMeta(name) + `\]`),
	}
}

// known 按优先级排列：文本中同时出现多个标记时，排在前面的决定情绪。
var known = []Tag{
	newTag("CELEBRATE", Happy, 1.0),
	newTag("WAVE", Happy, 0.7),
	newTag("HEART", Happy, 0.9),
	newTag("THUMBSUP", Happy, 0.8),
	newTag("DANCE", Happy, 1.0),
	newTag("SAD", Sad, 0.9),
	newTag("ANGRY", Angry, 0.9),
	newTag("SURPRISED", Surprised, 1.0),
	newTag("THINK", Neutral, 0.5),
	newTag("BOW", Neutral, 0.3),
}

// Extract 在原始文本中按优先级查找已知标记（不区分大小写），返回第一个命中的情绪。
// 必须在 Sanitize 之前调用，清洗会抹掉情绪信号。
func Extract(text string) Emotion {
	upper := strings.ToUpper(text)
	for _, t := range known {
		if strings.Contains(upper, t.Token()) {
			return t.Emotion
		}
	}
	return NoEmotion
}
