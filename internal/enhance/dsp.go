package enhance

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Resample 使用线性插值把 in 从 from Hz 重采样到 to Hz。
func Resample(in []float64, from, to int) []float64 {
	if from == to || from <= 0 || to <= 0 || len(in) == 0 {
		out := make([]float64, len(in))
		copy(out, in)
		return out
	}

	n := int(math.Round(float64(len(in)) * float64(to) / float64(from)))
	if n < 1 {
		n = 1
	}
	out := make([]float64, n)
	step := float64(from) / float64(to)
	last := len(in) - 1
	for i := range out {
		pos := float64(i) * step
		idx := int(pos)
		if idx >= last {
			out[i] = in[last]
			continue
		}
		frac := pos - float64(idx)
		out[i] = in[idx]*(1-frac) + in[idx+1]*frac
	}
	return out
}

// biquad 是一个归一化（a0 = 1）的二阶节。
type biquad struct {
	b0, b1, b2 float64
	a1, a2     float64
}

// butterworthQ 是 4 阶 Butterworth 拆成两个二阶节时各节的品质因数。
var butterworthQ = []float64{0.54119610014619698, 1.3065629648763766}

// lowpassSections 设计截止频率为 cutoff 的 4 阶 Butterworth 低通（双线性变换，含频率预畸变）。
func lowpassSections(cutoff float64, rate int) []biquad {
	w0 := 2 * math.Pi * cutoff / float64(rate)
	cosw, sinw := math.Cos(w0), math.Sin(w0)

	sections := make([]biquad, 0, len(butterworthQ))
	for _, q := range butterworthQ {
		alpha := sinw / (2 * q)
		a0 := 1 + alpha
		sections = append(sections, biquad{
			b0: (1 - cosw) / 2 / a0,
			b1: (1 - cosw) / a0,
			b2: (1 - cosw) / 2 / a0,
			a1: -2 * cosw / a0,
			a2: (1 - alpha) / a0,
		})
	}
	return sections
}

// dcGain 返回该节在 z = 1 处的增益。
func (s biquad) dcGain() float64 {
	return (s.b0 + s.b1 + s.b2) / (1 + s.a1 + s.a2)
}

// run 以直接 II 型转置结构就地滤波，初始状态为输入恒等于 x[0] 时的稳态。
func (s biquad) run(x []float64) {
	if len(x) == 0 {
		return
	}
	g := s.dcGain()
	z1 := (g - s.b0) * x[0]
	z2 := (s.b2 - s.a2*g) * x[0]
	for i, v := range x {
		y := s.b0*v + z1
		z1 = s.b1*v - s.a1*y + z2
		z2 = s.b2*v - s.a2*y
		x[i] = y
	}
}

func cascade(sections []biquad, x []float64) {
	for _, s := range sections {
		s.run(x)
	}
}

// padLen 与 4 阶滤波器系数长度对应：3 * (order + 1)。
const padLen = 15

// filtFilt 对 x 做前向加反向的零相位滤波，两端使用奇对称延拓。
// 少于 2 个样本时原样返回副本。
func filtFilt(sections []biquad, x []float64) []float64 {
	n := len(x)
	if n < 2 {
		out := make([]float64, n)
		copy(out, x)
		return out
	}

	pad := padLen
	if pad > n-1 {
		pad = n - 1
	}

	ext := make([]float64, 0, n+2*pad)
	for i := pad; i >= 1; i-- {
		ext = append(ext, 2*x[0]-x[i])
	}
	ext = append(ext, x...)
	for i := n - 2; i >= n-1-pad; i-- {
		ext = append(ext, 2*x[n-1]-x[i])
	}

	cascade(sections, ext)
	floats.Reverse(ext)
	cascade(sections, ext)
	floats.Reverse(ext)

	out := make([]float64, n)
	copy(out, ext[pad:pad+n])
	return out
}

// RMS 返回均方根电平。
func RMS(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	return math.Sqrt(floats.Dot(x, x) / float64(len(x)))
}

// Clamp 把样本就地限制在 [-limit, limit]。
func Clamp(x []float64, limit float64) {
	for i, v := range x {
		switch {
		case v > limit:
			x[i] = limit
		case v < -limit:
			x[i] = -limit
		}
	}
}
