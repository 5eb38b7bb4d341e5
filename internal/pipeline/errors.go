package pipeline

import (
	"fmt"
	"net/http"
)

// Kind 是请求失败的类别。
type Kind int

const (
	KindInvalidRequest Kind = iota
	KindEmptyAfterSanitization
	KindEngineUnavailable
	KindSynthesisFailure
	KindDetectionUnavailable
)

var kindNames = [...]string{
	"invalid_request",
	"empty_after_sanitization",
	"engine_unavailable",
	"synthesis_failure",
	"detection_unavailable",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// HTTPStatus 返回该类别对应的 HTTP 状态码。
func (k Kind) HTTPStatus() int {
	switch k {
	case KindInvalidRequest, KindEmptyAfterSanitization:
		return http.StatusBadRequest
	case KindEngineUnavailable, KindDetectionUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error 是流水线返回的结构化错误。
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.Err }
