// Package httpapi 提供合成流水线的 HTTP 接口。
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/iabetor/tagvoice/internal/config"
	"github.com/iabetor/tagvoice/internal/lang"
	"github.com/iabetor/tagvoice/internal/logger"
	"github.com/iabetor/tagvoice/internal/metrics"
	"github.com/iabetor/tagvoice/internal/pipeline"
)

// Server 把 HTTP 请求转交给流水线。
type Server struct {
	cfg      config.ServerConfig
	pipeline *pipeline.Pipeline
	metrics  *metrics.Metrics
	version  string
}

// New 创建 HTTP 服务。metrics 为 nil 时不暴露 /metrics。
func New(cfg config.ServerConfig, p *pipeline.Pipeline, m *metrics.Metrics, version string) *Server {
	return &Server{cfg: cfg, pipeline: p, metrics: m, version: version}
}

// Handler 返回带 CORS 的路由。所有接口同时挂在根路径和 /api 下。
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	router.Use(logRequests)

	s.register(router)
	s.register(router.PathPrefix("/api").Subrouter())

	if s.metrics != nil {
		router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:       s.cfg.AllowedOrigins,
		AllowedMethods:       []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:       []string{"Content-Type", "ngrok-skip-browser-warning", "Authorization"},
		ExposedHeaders:       []string{"X-Emotion"},
		MaxAge:               3600,
		OptionsSuccessStatus: http.StatusNoContent,
	})
	return corsHandler.Handler(router)
}

func (s *Server) register(r *mux.Router) {
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/tts", s.handleTTS).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/detect-language", s.handleDetectLanguage).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/voices", s.handleVoices).Methods(http.MethodGet, http.MethodOptions)
}

// ListenAndServe 监听 cfg.Addr，ctx 取消后优雅关闭。
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("[http] 服务已启动: %s", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("[http] 监听 %s 失败: %w", s.cfg.Addr, err)
	case <-ctx.Done():
	}

	logger.Info("[http] 正在关闭服务...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("[http] 关闭服务失败: %w", err)
	}
	return nil
}

type healthResponse struct {
	Status string `json:"status"`
	pipeline.Capabilities
	Version string `json:"version"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if preflight(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status:       "healthy",
		Capabilities: s.pipeline.Capabilities(),
		Version:      s.version,
	})
}

type ttsRequest struct {
	Text     string   `json:"text"`
	Voice    string   `json:"voice"`
	Speed    *float64 `json:"speed"`
	Language string   `json:"language"`
}

func (s *Server) handleTTS(w http.ResponseWriter, r *http.Request) {
	if preflight(w, r) {
		return
	}

	var body ttsRequest
	if err := s.decode(w, r, &body); err != nil {
		writeError(w, err)
		return
	}

	req := pipeline.Request{
		Text:     body.Text,
		Voice:    body.Voice,
		Language: body.Language,
	}
	if body.Speed != nil {
		if *body.Speed <= 0 {
			writeError(w, &pipeline.Error{Kind: pipeline.KindInvalidRequest, Detail: "speed must be a positive number"})
			return
		}
		req.Speed = *body.Speed
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	res, err := s.pipeline.Process(ctx, req)
	if err != nil {
		writeError(w, err)
		return
	}

	emotion, _ := json.Marshal(res.Emotion)
	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Disposition", "attachment; filename=speech.wav")
	w.Header().Set("X-Emotion", string(emotion))
	w.Header().Set("Content-Length", fmt.Sprint(len(res.Audio)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(res.Audio); err != nil {
		logger.Warnf("[http] 写出音频失败: %v", err)
	}
}

type detectRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleDetectLanguage(w http.ResponseWriter, r *http.Request) {
	if preflight(w, r) {
		return
	}

	var body detectRequest
	if err := s.decode(w, r, &body); err != nil {
		writeError(w, err)
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	code, err := s.pipeline.DetectLanguage(ctx, body.Text)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"language": code})
}

func (s *Server) handleVoices(w http.ResponseWriter, r *http.Request) {
	if preflight(w, r) {
		return
	}
	if !s.pipeline.EngineEnabled() {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{
			Error: "TTS not available",
			Kind:  pipeline.KindEngineUnavailable.String(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"voices":    []string{"default", "clone"},
		"languages": lang.Supported(),
	})
}

func (s *Server) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	if s.cfg.RequestTimeout <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), time.Duration(s.cfg.RequestTimeout)*time.Second)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) error {
	if s.cfg.MaxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &pipeline.Error{Kind: pipeline.KindInvalidRequest, Detail: "invalid JSON body", Err: err}
	}
	return nil
}

// preflight 应答不带 CORS 预检头的 OPTIONS 请求。
func preflight(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodOptions {
		return false
	}
	w.WriteHeader(http.StatusNoContent)
	return true
}
