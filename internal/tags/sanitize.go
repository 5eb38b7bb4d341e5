package tags

import (
	"errors"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ErrEmptyAfterSanitization 表示去掉标记后没有可朗读的文本。
var ErrEmptyAfterSanitization = errors.New("[tags] 清除标记后没有可朗读的文本")

// bracketSpan 匹配同一行内的任意方括号片段，覆盖未知或将来新增的标记。
var bracketSpan = regexp.MustCompile(`\[.*?\]`)

// strayBrackets 替换跨行或未闭合片段残留的方括号。
var strayBrackets = strings.NewReplacer("[", " ", "]", " ")

// Sanitize 去掉所有方括号标记并折叠空白。结果不含方括号，且函数幂等。
func Sanitize(text string) string {
	cleaned := norm.NFC.String(text)
	for _, t := range known {
		cleaned = t.pattern.ReplaceAllString(cleaned, "")
	}
	cleaned = bracketSpan.ReplaceAllString(cleaned, "")
	cleaned = strayBrackets.Replace(cleaned)
	return strings.Join(strings.Fields(cleaned), " ")
}

// Clean 同 Sanitize，结果为空时返回 ErrEmptyAfterSanitization。
func Clean(text string) (string, error) {
	cleaned := Sanitize(text)
	if cleaned == "" {
		return "", ErrEmptyAfterSanitization
	}
	return cleaned, nil
}
