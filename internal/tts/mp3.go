package tts

import (
	"bytes"
	"context"
	"fmt"

	"github.com/hajimehoshi/go-mp3"

	"github.com/iabetor/tagvoice/internal/audio"
	"github.com/iabetor/tagvoice/internal/logger"
)

// writeMP3AsWAV 把 MP3 数据解码为单声道 16-bit PCM 并写成 WAV。
// go-mp3 的输出固定为立体声 signed 16-bit LE。
func writeMP3AsWAV(ctx context.Context, mp3Data []byte, path string) error {
	decoder, err := mp3.NewDecoder(bytes.NewReader(mp3Data))
	if err != nil {
		return fmt.Errorf("[tts] MP3 解码失败: %w", err)
	}

	sampleRate := decoder.SampleRate()

	pcmBuf := new(bytes.Buffer)
	buf := make([]byte, 4096)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := decoder.Read(buf)
		pcmBuf.Write(buf[:n])
		if err != nil {
			break
		}
	}

	samples := audio.StereoBytesToMono(pcmBuf.Bytes())
	if len(samples) == 0 {
		return fmt.Errorf("[tts] MP3 解码结果为空")
	}
	logger.Debugf("[tts] MP3 解码得到 %d 个单声道样本，采样率 %d Hz", len(samples), sampleRate)

	return audio.WritePCM(path, samples, sampleRate)
}
