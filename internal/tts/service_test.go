package tts

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/iabetor/tagvoice/internal/audio"
	"github.com/iabetor/tagvoice/internal/config"
)

type fakeBackend struct {
	cloning bool
	err     error
	block   chan struct{}

	mu       sync.Mutex
	requests []Request
	active   int32
	maxSeen  int32
}

func (f *fakeBackend) Name() string          { return "fake" }
func (f *fakeBackend) SupportsCloning() bool { return f.cloning }
func (f *fakeBackend) Close() error          { return nil }

func (f *fakeBackend) Synthesize(ctx context.Context, req Request) error {
	n := atomic.AddInt32(&f.active, 1)
	defer atomic.AddInt32(&f.active, -1)
	for {
		old := atomic.LoadInt32(&f.maxSeen)
		if n <= old || atomic.CompareAndSwapInt32(&f.maxSeen, old, n) {
			break
		}
	}

	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return f.err
	}
	return audio.WritePCM(req.OutputPath, []int{0, 1000, -1000, 0}, 24000)
}

func (f *fakeBackend) lastRequest(t *testing.T) Request {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		t.Fatal("backend was never called")
	}
	return f.requests[len(f.requests)-1]
}

func newTestService(t *testing.T, b Backend, factoryErr error) (*Service, string, *int32) {
	t.Helper()
	dir := t.TempDir()
	var calls int32
	factory := func(device string) (Backend, error) {
		atomic.AddInt32(&calls, 1)
		if factoryErr != nil {
			return nil, factoryErr
		}
		return b, nil
	}
	return NewService("fake", factory, Options{Device: DeviceCPU, TempDir: dir}), dir, &calls
}

func countFiles(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	return len(entries)
}

func TestService_LazySingleConstruction(t *testing.T) {
	b := &fakeBackend{}
	s, _, calls := newTestService(t, b, nil)

	if s.Initialized() {
		t.Fatal("backend should not be constructed before first use")
	}
	if got := s.Device(); got != "not_initialized" {
		t.Fatalf("Device before init = %q", got)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Ready()
		}()
	}
	wg.Wait()

	if n := atomic.LoadInt32(calls); n != 1 {
		t.Fatalf("factory called %d times, want 1", n)
	}
	if !s.Available() || s.Device() != DeviceCPU {
		t.Fatalf("Available=%v Device=%q", s.Available(), s.Device())
	}
}

func TestService_ConstructionFailureIsPermanent(t *testing.T) {
	s, dir, calls := newTestService(t, nil, errors.New("model missing"))

	for i := 0; i < 3; i++ {
		_, err := s.Synthesize(context.Background(), "hi", "en", 1.0, "")
		if !errors.Is(err, ErrEngineUnavailable) {
			t.Fatalf("expected ErrEngineUnavailable, got %v", err)
		}
	}
	if n := atomic.LoadInt32(calls); n != 1 {
		t.Fatalf("factory retried: %d calls", n)
	}
	if n := countFiles(t, dir); n != 0 {
		t.Fatalf("unavailable engine created %d artifacts", n)
	}
	if s.Available() {
		t.Fatal("failed engine reported available")
	}
}

func TestService_SynthesizeWritesArtifact(t *testing.T) {
	b := &fakeBackend{}
	s, dir, _ := newTestService(t, b, nil)

	art, err := s.Synthesize(context.Background(), "hello", "en", 1.25, "")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if filepath.Dir(art.Path()) != dir {
		t.Fatalf("artifact %s not under temp dir %s", art.Path(), dir)
	}
	w, err := audio.ReadWAV(art.Path())
	if err != nil {
		t.Fatalf("ReadWAV: %v", err)
	}
	if w.SampleRate != 24000 || len(w.Samples) != 4 {
		t.Fatalf("unexpected waveform: rate=%d n=%d", w.SampleRate, len(w.Samples))
	}
	req := b.lastRequest(t)
	if req.Text != "hello" || req.Language != "en" || req.Speed != 1.25 {
		t.Fatalf("unexpected request: %+v", req)
	}

	art.Release()
	if n := countFiles(t, dir); n != 0 {
		t.Fatalf("artifact not removed: %d files left", n)
	}
}

func TestService_VoiceCloningDispatch(t *testing.T) {
	voice := filepath.Join(t.TempDir(), "ref.wav")
	if err := audio.WritePCM(voice, []int{1, 2, 3}, 16000); err != nil {
		t.Fatalf("WritePCM: %v", err)
	}

	tests := []struct {
		name    string
		cloning bool
		voice   string
		want    string
	}{
		{"clone", true, voice, voice},
		{"missing file falls back", true, "/definitely/missing.wav", ""},
		{"directory falls back", true, filepath.Dir(voice), ""},
		{"backend without cloning", false, voice, ""},
		{"no voice", true, "", ""},
	}
	for _, tt := range tests {
		b := &fakeBackend{cloning: tt.cloning}
		s, _, _ := newTestService(t, b, nil)
		art, err := s.Synthesize(context.Background(), "hi", "en", 1.0, tt.voice)
		if err != nil {
			t.Fatalf("%s: unexpected error %v", tt.name, err)
		}
		art.Release()
		if got := b.lastRequest(t).SpeakerWAV; got != tt.want {
			t.Errorf("%s: SpeakerWAV = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestService_BackendFailureRemovesArtifact(t *testing.T) {
	b := &fakeBackend{err: errors.New("cuda oom")}
	s, dir, _ := newTestService(t, b, nil)

	if _, err := s.Synthesize(context.Background(), "hi", "en", 1.0, ""); err == nil {
		t.Fatal("expected error")
	}
	if n := countFiles(t, dir); n != 0 {
		t.Fatalf("failed synthesis left %d files", n)
	}
}

func TestService_SerializesBackendCalls(t *testing.T) {
	b := &fakeBackend{}
	s, _, _ := newTestService(t, b, nil)

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			art, err := s.Synthesize(context.Background(), "hi", "en", 1.0, "")
			if err == nil {
				art.Release()
			}
		}()
	}
	wg.Wait()

	if m := atomic.LoadInt32(&b.maxSeen); m != 1 {
		t.Fatalf("backend saw %d concurrent calls, want 1", m)
	}
}

func TestService_ContextCancelWhileWaiting(t *testing.T) {
	b := &fakeBackend{block: make(chan struct{})}
	s, dir, _ := newTestService(t, b, nil)

	first := make(chan error, 1)
	go func() {
		art, err := s.Synthesize(context.Background(), "first", "en", 1.0, "")
		if err == nil {
			art.Release()
		}
		first <- err
	}()

	// 等待第一个调用进入后端
	deadline := time.Now().Add(2 * time.Second)
	for atomic.LoadInt32(&b.active) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("first call never reached backend")
		}
		time.Sleep(5 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := s.Synthesize(ctx, "second", "en", 1.0, ""); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	close(b.block)
	if err := <-first; err != nil {
		t.Fatalf("first call failed: %v", err)
	}
	if n := len(b.requests); n != 1 {
		t.Fatalf("cancelled caller reached backend: %d requests", n)
	}
	if n := countFiles(t, dir); n != 0 {
		t.Fatalf("%d files left behind", n)
	}
}

func TestService_ContextCancelWhileBackendRuns(t *testing.T) {
	b := &fakeBackend{block: make(chan struct{})}
	s, dir, _ := newTestService(t, b, nil)

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() {
		_, err := s.Synthesize(ctx, "slow", "en", 1.0, "")
		result <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for atomic.LoadInt32(&b.active) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("call never reached backend")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	if err := <-result; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	// 后端返回后才清理
	close(b.block)
	deadline = time.Now().Add(2 * time.Second)
	for countFiles(t, dir) != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("cancelled call left %d files", countFiles(t, dir))
		}
		time.Sleep(5 * time.Millisecond)
	}

	followUp, cancelFollowUp := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancelFollowUp()
	art, err := s.Synthesize(followUp, "next", "en", 1.0, "")
	if err != nil {
		t.Fatalf("engine not usable after cancellation: %v", err)
	}
	art.Release()
	if n := countFiles(t, dir); n != 0 {
		t.Fatalf("%d files left behind", n)
	}
}

type panicBackend struct{ calls int32 }

func (p *panicBackend) Name() string          { return "panic" }
func (p *panicBackend) SupportsCloning() bool { return false }
func (p *panicBackend) Close() error          { return nil }

func (p *panicBackend) Synthesize(context.Context, Request) error {
	if atomic.AddInt32(&p.calls, 1) == 1 {
		panic("model exploded")
	}
	return nil
}

func TestService_BackendPanicBecomesError(t *testing.T) {
	b := &panicBackend{}
	s, dir, _ := newTestService(t, b, nil)

	_, err := s.Synthesize(context.Background(), "hi", "en", 1.0, "")
	if err == nil || !strings.Contains(err.Error(), "model exploded") {
		t.Fatalf("expected panic converted to error, got %v", err)
	}
	if errors.Is(err, ErrEngineUnavailable) {
		t.Fatalf("panic must not mark the engine unavailable: %v", err)
	}
	if n := countFiles(t, dir); n != 0 {
		t.Fatalf("panicking backend left %d files", n)
	}

	// 信号量已释放：第二次调用能进入后端（返回空输出）
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := s.Synthesize(ctx, "hi", "en", 1.0, ""); errors.Is(err, context.DeadlineExceeded) {
		t.Fatal("semaphore not released after panic")
	}
	if n := atomic.LoadInt32(&b.calls); n != 2 {
		t.Fatalf("backend calls = %d, want 2", n)
	}
}

func TestResolveDevice(t *testing.T) {
	orig := cudaProbe
	defer func() { cudaProbe = orig }()

	cudaProbe = func() bool { return true }
	if got := ResolveDevice("auto"); got != DeviceCUDA {
		t.Errorf("auto with GPU = %q", got)
	}
	if got := ResolveDevice(DeviceCPU); got != DeviceCPU {
		t.Errorf("explicit cpu = %q", got)
	}
	cudaProbe = func() bool { return false }
	if got := ResolveDevice("auto"); got != DeviceCPU {
		t.Errorf("auto without GPU = %q", got)
	}
}

func TestFactory_Disabled(t *testing.T) {
	s := NewServiceFromConfig(config.EngineConfig{Backend: "none", Device: "cpu", TempDir: t.TempDir()})
	if err := s.Ready(); !errors.Is(err, ErrEngineUnavailable) {
		t.Fatalf("expected ErrEngineUnavailable, got %v", err)
	}
	if s.Name() != "none" {
		t.Fatalf("Name = %q", s.Name())
	}
}

func TestTencentSpeed(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{1.0, 0},
		{0, 0},
		{1.2, 1},
		{0.6, -2},
		{0.1, -2},
		{5.0, 6},
	}
	for _, tt := range tests {
		if got := tencentSpeed(tt.in); got != tt.want {
			t.Errorf("tencentSpeed(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestEdgeVoiceFor(t *testing.T) {
	e := NewEdgeEngine(map[string]string{"fr": "fr-FR-HenriNeural"})
	if got := e.voiceFor("fr"); got != "fr-FR-HenriNeural" {
		t.Errorf("override voice = %q", got)
	}
	if got := e.voiceFor("zh-cn"); got != "zh-CN-XiaoxiaoNeural" {
		t.Errorf("zh-cn voice = %q", got)
	}
	if got := e.voiceFor("xx"); got != defaultEdgeVoices["en"] {
		t.Errorf("unknown language voice = %q", got)
	}
	for code := range defaultEdgeVoices {
		if e.voiceFor(code) == "" {
			t.Errorf("no voice for %s", code)
		}
	}
}

func TestEdgeRate(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{1.0, "+0%"},
		{0, "+0%"},
		{1.25, "+25%"},
		{0.8, "-20%"},
		{0.5, "-50%"},
		{0.2, "-50%"},
		{2.0, "+100%"},
		{3.0, "+100%"},
	}
	for _, tt := range tests {
		if got := edgeRate(tt.in); got != tt.want {
			t.Errorf("edgeRate(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
