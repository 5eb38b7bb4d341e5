package lang

import (
	"context"
	"errors"
	"testing"
)

type fakeDetector struct {
	result string
	err    error
	calls  int
}

func (f *fakeDetector) Name() string { return "fake" }

func (f *fakeDetector) Detect(context.Context, string) (string, error) {
	f.calls++
	return f.result, f.err
}

func TestSupported_HasSeventeenCodes(t *testing.T) {
	langs := Supported()
	if len(langs) != 17 {
		t.Fatalf("expected 17 languages, got %d", len(langs))
	}
	for _, l := range langs {
		if !IsSupported(l.Code) {
			t.Errorf("IsSupported(%q) = false", l.Code)
		}
		if code, ok := Canonicalize(l.Code); !ok || code != l.Code {
			t.Errorf("Canonicalize(%q) = %q, %v", l.Code, code, ok)
		}
	}
}

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"zh", Chinese, true},
		{"zh-TW", Chinese, true},
		{"ZH_cn", Chinese, true},
		{"en_US", "en", true},
		{"pt-BR", "pt", true},
		{" fr ", "fr", true},
		{"sv", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := Canonicalize(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("Canonicalize(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestResolve_OverrideSkipsDetection(t *testing.T) {
	det := &fakeDetector{result: "zh"}
	r := NewResolver(det, false)

	got := r.Resolve(context.Background(), "fr", "你好世界")
	if got != "fr" {
		t.Fatalf("expected override fr, got %q", got)
	}
	if det.calls != 0 {
		t.Fatalf("detector should not run when override is given, ran %d times", det.calls)
	}
}

func TestResolve_OverridePassThroughUnvalidated(t *testing.T) {
	r := NewResolver(&fakeDetector{result: "en"}, false)
	if got := r.Resolve(context.Background(), "xx-YY", "hello"); got != "xx-YY" {
		t.Fatalf("expected verbatim override, got %q", got)
	}
}

func TestResolve_OverrideValidated(t *testing.T) {
	r := NewResolver(&fakeDetector{result: "en"}, true)
	ctx := context.Background()
	if got := r.Resolve(ctx, "xx", "hello"); got != Default {
		t.Errorf("unsupported override should fall back to %s, got %q", Default, got)
	}
	if got := r.Resolve(ctx, "zh", "hello"); got != Chinese {
		t.Errorf("override zh should canonicalize to %s, got %q", Chinese, got)
	}
}

func TestResolve_DetectionMapping(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		det  Detector
		want string
	}{
		{"mapped", &fakeDetector{result: "zh"}, Chinese},
		{"regional", &fakeDetector{result: "de-AT"}, "de"},
		{"unmapped", &fakeDetector{result: "sv"}, Default},
		{"error", &fakeDetector{err: errors.New("boom")}, Default},
		{"unavailable", Unavailable(), Default},
		{"nil", nil, Default},
	}
	for _, tt := range tests {
		r := NewResolver(tt.det, false)
		if got := r.Resolve(ctx, "", "some text"); got != tt.want {
			t.Errorf("%s: Resolve = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestDetect_Unavailable(t *testing.T) {
	r := NewResolver(nil, false)
	if r.Available() {
		t.Fatal("resolver without detector should not be available")
	}
	if _, err := r.Detect(context.Background(), "hello"); !errors.Is(err, ErrDetectionUnavailable) {
		t.Fatalf("expected ErrDetectionUnavailable, got %v", err)
	}
	if !NewResolver(NewWhatlangDetector(), false).Available() {
		t.Fatal("whatlang resolver should be available")
	}
}

func TestWhatlangDetector_Deterministic(t *testing.T) {
	d := NewWhatlangDetector()
	r := NewResolver(d, false)
	ctx := context.Background()

	text := "这是一个用于测试语言检测的中文句子，我们希望它被识别为中文。"
	first := r.Resolve(ctx, "", text)
	if first != Chinese {
		t.Fatalf("expected %s for Chinese text, got %q", Chinese, first)
	}
	for i := 0; i < 5; i++ {
		if got := r.Resolve(ctx, "", text); got != first {
			t.Fatalf("detection not deterministic: %q vs %q", got, first)
		}
	}
}

func TestNewTencentDetector_RequiresCredentials(t *testing.T) {
	if _, err := NewTencentDetector("", "", "ap-guangzhou"); err == nil {
		t.Fatal("expected error without credentials")
	}
}
