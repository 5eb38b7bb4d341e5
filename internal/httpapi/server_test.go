package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/iabetor/tagvoice/internal/audio"
	"github.com/iabetor/tagvoice/internal/config"
	"github.com/iabetor/tagvoice/internal/lang"
	"github.com/iabetor/tagvoice/internal/metrics"
	"github.com/iabetor/tagvoice/internal/phonetic"
	"github.com/iabetor/tagvoice/internal/pipeline"
	"github.com/iabetor/tagvoice/internal/tags"
	"github.com/iabetor/tagvoice/internal/tts"
)

type stubBackend struct{}

func (stubBackend) Name() string          { return "stub" }
func (stubBackend) SupportsCloning() bool { return false }
func (stubBackend) Close() error          { return nil }

func (stubBackend) Synthesize(_ context.Context, req tts.Request) error {
	return audio.WritePCM(req.OutputPath, []int{0, 100, -100, 0}, 24000)
}

type stubDetector struct{ code string }

func (d stubDetector) Name() string { return "stub" }

func (d stubDetector) Detect(context.Context, string) (string, error) { return d.code, nil }

func newTestServer(t *testing.T, backendName string, factoryErr error, detector lang.Detector) *httptest.Server {
	t.Helper()
	engine := tts.NewService(backendName, func(string) (tts.Backend, error) {
		if factoryErr != nil {
			return nil, factoryErr
		}
		return stubBackend{}, nil
	}, tts.Options{Device: tts.DeviceCPU, TempDir: t.TempDir()})

	m := metrics.New()
	p := pipeline.New(pipeline.Deps{
		Engine:   engine,
		Resolver: lang.NewResolver(detector, false),
		Phonetic: phonetic.NewPreprocessor(phonetic.NewPinyinConverter(false)),
		Metrics:  m,
	})

	cfg := config.Default().Server
	srv := httptest.NewServer(New(cfg, p, m, "test").Handler())
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeError(t *testing.T, resp *http.Response) errorResponse {
	t.Helper()
	var e errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&e); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return e
}

func TestTTS_Success(t *testing.T) {
	srv := newTestServer(t, "stub", nil, stubDetector{"en"})

	for _, path := range []string{"/tts", "/api/tts"} {
		resp := post(t, srv.URL+path, `{"text":"[CELEBRATE] Hooray we did it!"}`)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s: status %d", path, resp.StatusCode)
		}
		if ct := resp.Header.Get("Content-Type"); ct != "audio/wav" {
			t.Errorf("%s: Content-Type = %q", path, ct)
		}
		if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "speech.wav") {
			t.Errorf("%s: Content-Disposition = %q", path, cd)
		}
		var emotion tags.Emotion
		if err := json.Unmarshal([]byte(resp.Header.Get("X-Emotion")), &emotion); err != nil {
			t.Fatalf("%s: X-Emotion not JSON: %v", path, err)
		}
		if emotion != (tags.Emotion{Label: tags.Happy, Intensity: 1.0}) {
			t.Errorf("%s: X-Emotion = %+v", path, emotion)
		}
	}
}

func TestTTS_ErrorMapping(t *testing.T) {
	srv := newTestServer(t, "stub", nil, stubDetector{"en"})

	tests := []struct {
		body   string
		status int
		kind   string
	}{
		{`{"text":""}`, 400, "invalid_request"},
		{`{}`, 400, "invalid_request"},
		{`not json`, 400, "invalid_request"},
		{`{"text":"hi","speed":0}`, 400, "invalid_request"},
		{`{"text":"   "}`, 400, "empty_after_sanitization"},
		{`{"text":"[WAVE]"}`, 400, "empty_after_sanitization"},
	}
	for _, tt := range tests {
		resp := post(t, srv.URL+"/tts", tt.body)
		if resp.StatusCode != tt.status {
			t.Errorf("%s: status %d, want %d", tt.body, resp.StatusCode, tt.status)
			continue
		}
		if e := decodeError(t, resp); e.Kind != tt.kind || e.Error == "" {
			t.Errorf("%s: error body %+v, want kind %s", tt.body, e, tt.kind)
		}
	}
}

func TestTTS_EngineUnavailable(t *testing.T) {
	srv := newTestServer(t, "stub", errors.New("no model"), stubDetector{"en"})

	resp := post(t, srv.URL+"/tts", `{"text":"hello"}`)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if e := decodeError(t, resp); e.Kind != "engine_unavailable" {
		t.Errorf("kind = %s", e.Kind)
	}
}

func TestDetectLanguage(t *testing.T) {
	srv := newTestServer(t, "stub", nil, stubDetector{"zh-TW"})

	resp := post(t, srv.URL+"/api/detect-language", `{"text":"[THINK] 你好"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var body map[string]string
	json.NewDecoder(resp.Body).Decode(&body)
	if body["language"] != lang.Chinese {
		t.Errorf("language = %q", body["language"])
	}

	unavailable := newTestServer(t, "stub", nil, nil)
	resp = post(t, unavailable.URL+"/detect-language", `{"text":"hello"}`)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if e := decodeError(t, resp); e.Kind != "detection_unavailable" {
		t.Errorf("kind = %s", e.Kind)
	}
}

func TestVoices(t *testing.T) {
	srv := newTestServer(t, "stub", nil, stubDetector{"en"})
	resp, err := http.Get(srv.URL + "/voices")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var body struct {
		Voices    []string        `json:"voices"`
		Languages []lang.Language `json:"languages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if len(body.Voices) != 2 || len(body.Languages) != 17 {
		t.Errorf("voices=%v languages=%d", body.Voices, len(body.Languages))
	}

	disabled := newTestServer(t, "none", errors.New("disabled"), stubDetector{"en"})
	resp2, err := http.Get(disabled.URL + "/api/voices")
	if err != nil {
		t.Fatal(err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("disabled backend status %d", resp2.StatusCode)
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, "stub", nil, stubDetector{"en"})
	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "healthy" || body["tts_available"] != true || body["phonetic_available"] != true {
		t.Errorf("health = %v", body)
	}
	if body["audio_processing_available"] != false {
		t.Errorf("audio_processing_available = %v", body["audio_processing_available"])
	}
	if body["device"] != "not_initialized" || body["version"] != "test" {
		t.Errorf("health = %v", body)
	}
}

func TestCORS(t *testing.T) {
	srv := newTestServer(t, "stub", nil, stubDetector{"en"})

	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/tts", nil)
	req.Header.Set("Origin", "https://example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "content-type,ngrok-skip-browser-warning")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("preflight status %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Allow-Origin = %q", got)
	}
	if got := resp.Header.Get("Access-Control-Max-Age"); got != "3600" {
		t.Errorf("Max-Age = %q", got)
	}

	plain, _ := http.NewRequest(http.MethodOptions, srv.URL+"/api/tts", nil)
	resp, err = http.DefaultClient.Do(plain)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("plain OPTIONS status %d", resp.StatusCode)
	}

	actual, _ := http.NewRequest(http.MethodPost, srv.URL+"/tts", strings.NewReader(`{"text":"hi"}`))
	actual.Header.Set("Origin", "https://example.com")
	resp, err = http.DefaultClient.Do(actual)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("Access-Control-Expose-Headers"); !strings.Contains(got, "X-Emotion") {
		t.Errorf("Expose-Headers = %q", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, "stub", nil, stubDetector{"en"})
	post(t, srv.URL+"/tts", `{"text":"hello"}`)

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `tagvoice_requests_total{outcome="ok"} 1`) {
		t.Errorf("metrics output missing request counter:\n%s", data)
	}
}
