package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/iabetor/tagvoice/internal/logger"
	"github.com/iabetor/tagvoice/internal/pipeline"
)

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warnf("[http] 写出响应失败: %v", err)
	}
}

// writeError 把流水线错误映射为状态码和 {"error", "kind"}。
func writeError(w http.ResponseWriter, err error) {
	var perr *pipeline.Error
	if !errors.As(err, &perr) {
		perr = &pipeline.Error{Kind: pipeline.KindSynthesisFailure, Detail: "internal error", Err: err}
	}

	msg := perr.Detail
	if perr.Kind == pipeline.KindSynthesisFailure && perr.Err != nil {
		msg = perr.Detail + ": " + perr.Err.Error()
	}
	writeJSON(w, perr.Kind.HTTPStatus(), errorResponse{Error: msg, Kind: perr.Kind.String()})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Debugf("[http] %s %s %d %v", r.Method, r.URL.Path, rec.status, time.Since(start))
	})
}
