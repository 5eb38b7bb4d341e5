// Package metrics 暴露合成服务的 Prometheus 指标。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 持有独立的注册表，避免测试之间共享全局状态。
type Metrics struct {
	registry *prometheus.Registry

	requests     *prometheus.CounterVec
	synthesis    *prometheus.HistogramVec
	degradations prometheus.Counter
	emotions     *prometheus.CounterVec
	failures     *prometheus.CounterVec
}

// New 创建并注册所有指标。
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tagvoice",
			Name:      "requests_total",
			Help:      "Pipeline requests by outcome.",
		}, []string{"outcome"}),
		synthesis: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tagvoice",
			Name:      "synthesis_seconds",
			Help:      "Time spent in the synthesis backend.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"backend"}),
		degradations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tagvoice",
			Name:      "enhance_degraded_total",
			Help:      "Post-processing failures that fell back to the raw waveform.",
		}),
		emotions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tagvoice",
			Name:      "emotions_total",
			Help:      "Extracted emotion labels.",
		}, []string{"emotion"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tagvoice",
			Name:      "pipeline_failures_total",
			Help:      "Failed requests by the last pipeline stage reached.",
		}, []string{"stage"}),
	}
	m.registry.MustRegister(
		m.requests,
		m.synthesis,
		m.degradations,
		m.emotions,
		m.failures,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveRequest 记录一次请求结果，outcome 为 "ok" 或错误类别。nil 接收者不做任何事。
func (m *Metrics) ObserveRequest(outcome string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(outcome).Inc()
}

// ObserveSynthesis 记录一次后端合成耗时。
func (m *Metrics) ObserveSynthesis(backend string, d time.Duration) {
	if m == nil {
		return
	}
	m.synthesis.WithLabelValues(backend).Observe(d.Seconds())
}

// ObserveDegradation 记录一次后处理降级。
func (m *Metrics) ObserveDegradation() {
	if m == nil {
		return
	}
	m.degradations.Inc()
}

// ObserveEmotion 记录提取到的情绪标签。
func (m *Metrics) ObserveEmotion(label string) {
	if m == nil {
		return
	}
	m.emotions.WithLabelValues(label).Inc()
}

// ObserveFailure 记录请求失败前到达的最后一个阶段。
func (m *Metrics) ObserveFailure(stage string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(stage).Inc()
}

// Handler 返回 /metrics 的 HTTP 处理器。
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
