// Package render 为外部绘图面板生成坐标序列, 不包含任何绘图原语.
package render

import (
	"errors"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/yellow-pitaya/frontend-sub000/internal/mathx"
	"github.com/yellow-pitaya/frontend-sub000/internal/scale"
	"github.com/yellow-pitaya/frontend-sub000/internal/synth"
	"github.com/yellow-pitaya/frontend-sub000/pkg/protocol"
)

// ErrNoWindow 像素尺寸尚未设置
var ErrNoWindow = errors.New("render: window size not set")

// Point 坐标点. 域坐标为 (µs, V), 像素坐标为 (px, px).
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Markers 通道名到电平标记像素纵坐标的映射, 由叠加面板维护
type Markers map[string]float64

// Offset 通道电平标记换算成电压; 没有标记时为 0
func Offset(s scale.Scales, m Markers, channel string) float64 {
	y, ok := m[channel]
	if !ok {
		return 0
	}
	return s.YToOffset(y)
}

// Acquisition 采集缓冲区折线: 采样乘以探头衰减再加通道偏移.
// 缓冲区短于 NSamples 时只输出已有的点.
func Acquisition(s scale.Scales, samples []float64, att protocol.Attenuation, offset float64) []Point {
	n := len(samples)
	if s.NSamples > 0 && n > s.NSamples {
		n = s.NSamples
	}
	points := make([]Point, n)
	factor := att.Factor()
	for i := 0; i < n; i++ {
		points[i] = Point{
			X: s.SampleToTime(i),
			Y: clampVolt(s, samples[i]*factor+offset),
		}
	}
	return points
}

// Generator 发生器预览折线, 每个像素列求值一次
func Generator(s scale.Scales, p protocol.GeneratorParams, offset float64) ([]Point, error) {
	if s.Window.Width <= 0 {
		return nil, ErrNoWindow
	}
	f, err := synth.Lookup(p.Form)
	if err != nil {
		return nil, err
	}

	points := make([]Point, 0, s.Window.Width)
	for px := 0; px < s.Window.Width; px++ {
		t := s.XToOffset(float64(px))
		// 横轴单位为 µs
		v := synth.Clamp(f(t*1e-6, p.Amplitude, p.Frequency, p.DutyCycle) + p.Offset)
		points = append(points, Point{X: t, Y: clampVolt(s, v+offset)})
	}
	return points, nil
}

// ToPixels 域坐标换算为像素坐标
func ToPixels(s scale.Scales, points []Point) []Point {
	out := make([]Point, len(points))
	for i, p := range points {
		out[i] = Point{X: s.TimeToX(p.X), Y: s.VoltToY(p.Y)}
	}
	return out
}

// Spectrum 单边幅度谱, X 为频率 (Hz), Y 为幅度 (V)
func Spectrum(samples []float64, d protocol.Decimation) []Point {
	n := len(samples)
	if n == 0 {
		return nil
	}

	fft := fourier.NewFFT(n)
	coeffs := fft.Coefficients(nil, samples)

	rate := d.SampleRate()
	points := make([]Point, len(coeffs))
	for k, c := range coeffs {
		mag := cmplx.Abs(c) / float64(n)
		if k != 0 && !(n%2 == 0 && k == n/2) {
			mag *= 2
		}
		points[k] = Point{X: float64(k) * rate / float64(n), Y: mag}
	}
	return points
}

func clampVolt(s scale.Scales, v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return mathx.Clamp(v, s.V[0], s.V[1])
}
