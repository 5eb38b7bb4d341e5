package tts

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/pp-group/edge-tts-go/biz/service/tts/edge"

	"github.com/iabetor/tagvoice/internal/logger"
)

// defaultEdgeVoices 为每种支持的语言指定一个 Edge 音色。
var defaultEdgeVoices = map[string]string{
	"en":    "en-US-AriaNeural",
	"es":    "es-ES-ElviraNeural",
	"fr":    "fr-FR-DeniseNeural",
	"de":    "de-DE-KatjaNeural",
	"it":    "it-IT-ElsaNeural",
	"pt":    "pt-BR-FranciscaNeural",
	"pl":    "pl-PL-ZofiaNeural",
	"tr":    "tr-TR-EmelNeural",
	"ru":    "ru-RU-SvetlanaNeural",
	"nl":    "nl-NL-ColetteNeural",
	"cs":    "cs-CZ-VlastaNeural",
	"ar":    "ar-SA-ZariyahNeural",
	"zh-cn": "zh-CN-XiaoxiaoNeural",
	"ja":    "ja-JP-NanamiNeural",
	"ko":    "ko-KR-SunHiNeural",
	"hu":    "hu-HU-NoemiNeural",
	"hi":    "hi-IN-SwaraNeural",
}

// EdgeEngine 使用微软 Edge TTS，通过 edge-tts-go 获取 MP3 后解码为 WAV。
type EdgeEngine struct {
	voices map[string]string
}

// NewEdgeEngine 创建 Edge 后端，overrides 按语言代码覆盖默认音色。
func NewEdgeEngine(overrides map[string]string) *EdgeEngine {
	voices := make(map[string]string, len(defaultEdgeVoices))
	for k, v := range defaultEdgeVoices {
		voices[k] = v
	}
	for k, v := range overrides {
		voices[k] = v
	}
	return &EdgeEngine{voices: voices}
}

func (e *EdgeEngine) Name() string { return "edge" }

func (e *EdgeEngine) SupportsCloning() bool { return false }

// voiceFor 返回语言对应的音色，未知语言使用英文音色。
func (e *EdgeEngine) voiceFor(language string) string {
	if v, ok := e.voices[language]; ok {
		return v
	}
	return e.voices["en"]
}

// edgeRate 把倍速换算为 Edge 的相对语速，如 1.25 → "+25%"。
// Edge 只接受 0.5 到 2 倍之间的语速。
func edgeRate(speed float64) string {
	if speed <= 0 {
		speed = 1
	}
	pct := math.Round((speed - 1) * 100)
	pct = math.Max(-50, math.Min(100, pct))
	return fmt.Sprintf("%+d%%", int(pct))
}

func (e *EdgeEngine) Synthesize(ctx context.Context, req Request) error {
	voice := e.voiceFor(req.Language)
	rate := edgeRate(req.Speed)
	logger.Debugf("[tts] edge-tts: 正在合成 %d 个字符，语音=%s 语速=%s", len([]rune(req.Text)), voice, rate)

	comm, err := edge.NewCommunicate(req.Text, edge.WithVoice(voice), edge.WithRate(rate))
	if err != nil {
		return fmt.Errorf("[tts] edge-tts 创建实例失败: %w", err)
	}

	ch, err := comm.Stream()
	if err != nil {
		return fmt.Errorf("[tts] edge-tts 开始流式合成失败: %w", err)
	}

	mp3Data, err := collectEdgeAudio(ctx, ch, comm.AudioDataIndex)
	if err != nil {
		return err
	}
	logger.Debugf("[tts] edge-tts: 收到 %d 字节 MP3 数据", len(mp3Data))

	return writeMP3AsWAV(ctx, mp3Data, req.OutputPath)
}

// edgeDrainIdle 提前退出后继续读取通道的最长空闲时间。
const edgeDrainIdle = 30 * time.Second

// collectEdgeAudio 读取 Stream 的输出直到收到 chunks 个结束标记。
// 每个文本分片由独立的 goroutine 推送，音频按分片序号拼接。
// 通道不会被关闭，提前返回时在后台继续读取，让推送方能退出。
func collectEdgeAudio(ctx context.Context, ch <-chan map[string]interface{}, chunks int) ([]byte, error) {
	parts := make(map[int]*bytes.Buffer)
	ended := 0

	fail := func(err error) ([]byte, error) {
		go drainEdge(ch)
		return nil, err
	}

	for ended < chunks {
		var msg map[string]interface{}
		select {
		case <-ctx.Done():
			return fail(ctx.Err())
		case msg = <-ch:
		}

		if e, ok := msg["error"]; ok {
			return fail(fmt.Errorf("[tts] edge-tts 合成失败: %+v", e))
		}
		if _, ok := msg["end"]; ok {
			ended++
			continue
		}
		if t, _ := msg["type"].(string); t != "audio" {
			continue
		}
		if data, ok := msg["data"].(edge.AudioData); ok {
			buf := parts[data.Index]
			if buf == nil {
				buf = &bytes.Buffer{}
				parts[data.Index] = buf
			}
			buf.Write(data.Data)
		}
	}

	// 没有音频的分片会在结束标记之后再推送一条错误
	go drainEdge(ch)

	idx := make([]int, 0, len(parts))
	for i := range parts {
		idx = append(idx, i)
	}
	sort.Ints(idx)

	var out bytes.Buffer
	for _, i := range idx {
		out.Write(parts[i].Bytes())
	}
	if out.Len() == 0 {
		return nil, fmt.Errorf("[tts] edge-tts: 未收到音频数据")
	}
	return out.Bytes(), nil
}

func drainEdge(ch <-chan map[string]interface{}) {
	timer := time.NewTimer(edgeDrainIdle)
	defer timer.Stop()
	for {
		select {
		case <-ch:
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(edgeDrainIdle)
		case <-timer.C:
			return
		}
	}
}

func (e *EdgeEngine) Close() error { return nil }
