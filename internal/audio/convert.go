package audio

import (
	"encoding/binary"
	"math"
)

// BytesToInt16 将小端字节切片转换为 int16 样本。
func BytesToInt16(b []byte) []int16 {
	n := len(b) / 2
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		out[i] = int16(b[2*i]) | int16(b[2*i+1])<<8
	}
	return out
}

// Int16ToBytes 将 int16 样本转换为小端字节切片。
func Int16ToBytes(in []int16) []byte {
	out := make([]byte, len(in)*2)
	for i, s := range in {
		out[2*i] = byte(s)
		out[2*i+1] = byte(s >> 8)
	}
	return out
}

// Int16ToInt 将 int16 样本扩展为 go-audio 使用的 int 切片。
func Int16ToInt(in []int16) []int {
	out := make([]int, len(in))
	for i, s := range in {
		out[i] = int(s)
	}
	return out
}

// StereoBytesToMono 将立体声 signed 16-bit LE PCM 下混为单声道样本。
// 每个立体声帧 4 字节：左声道 2 字节 + 右声道 2 字节，不完整的尾部帧会被丢弃。
func StereoBytesToMono(pcm []byte) []int {
	const bytesPerFrame = 4
	numFrames := len(pcm) / bytesPerFrame
	out := make([]int, numFrames)
	for i := 0; i < numFrames; i++ {
		offset := i * bytesPerFrame
		left := int16(binary.LittleEndian.Uint16(pcm[offset : offset+2]))
		right := int16(binary.LittleEndian.Uint16(pcm[offset+2 : offset+4]))
		out[i] = (int(left) + int(right)) / 2
	}
	return out
}

// fullScale 返回指定位深下的满幅值。
func fullScale(bitDepth int) float64 {
	if bitDepth <= 0 {
		bitDepth = 16
	}
	return float64(int64(1)<<(bitDepth-1)) - 1
}

// IntToFloat64 将整型 PCM 样本归一化到 [-1.0, 1.0]。
func IntToFloat64(in []int, bitDepth int) []float64 {
	scale := fullScale(bitDepth)
	out := make([]float64, len(in))
	for i, s := range in {
		out[i] = float64(s) / scale
	}
	return out
}

// Float64ToInt 将 [-1.0, 1.0] 范围的样本量化为指定位深的整型 PCM。
// 超出范围的样本先钳位；NaN 视为静音。
func Float64ToInt(in []float64, bitDepth int) []int {
	scale := fullScale(bitDepth)
	out := make([]int, len(in))
	for i, s := range in {
		switch {
		case math.IsNaN(s):
			s = 0
		case s > 1.0:
			s = 1.0
		case s < -1.0:
			s = -1.0
		}
		out[i] = int(math.Round(s * scale))
	}
	return out
}

// Float32ToFloat64 便捷函数：扩展 float32 样本精度。
func Float32ToFloat64(in []float32) []float64 {
	out := make([]float64, len(in))
	for i, s := range in {
		out[i] = float64(s)
	}
	return out
}

// Float64ToInt16 将 [-1.0, 1.0] 样本转换为 int16，供播放设备使用。
func Float64ToInt16(in []float64) []int16 {
	ints := Float64ToInt(in, 16)
	out := make([]int16, len(ints))
	for i, s := range ints {
		out[i] = int16(s)
	}
	return out
}
