// Package scale 在采样序号, 物理量 (µs, V) 和像素之间换算.
package scale

import (
	"github.com/yellow-pitaya/frontend-sub000/pkg/protocol"
)

// Divisions 示波器刻度格数
const Divisions = 10

// DefaultVoltRange 固定的垂直量程 ±5V
const DefaultVoltRange = 5.0

// Window 绘图区域像素尺寸, 每次重绘前由调用方更新
type Window struct {
	Width  int
	Height int
}

// Scales 横轴为时间 (µs, 以 0 对称), 纵轴为电压 (V)
type Scales struct {
	H        [2]float64
	V        [2]float64
	NSamples int
	Window   Window
}

// New 按抽取系数建立默认刻度
func New(d protocol.Decimation) Scales {
	s := Scales{
		V:        [2]float64{-DefaultVoltRange, DefaultVoltRange},
		NSamples: protocol.BufferSize,
	}
	s.FromSamplingRate(d)
	return s
}

func (s Scales) Width() float64 {
	return s.H[1] - s.H[0]
}

func (s Scales) Height() float64 {
	return s.V[1] - s.V[0]
}

// FromSamplingRate 抽取系数改变时重算横轴: (-duration/2, +duration/2)
func (s *Scales) FromSamplingRate(d protocol.Decimation) {
	half := d.BufferDurationMicros() / 2
	s.H = [2]float64{-half, half}
}

// SetWindow 更新像素尺寸
func (s *Scales) SetWindow(width, height int) {
	s.Window = Window{Width: width, Height: height}
}

// SampleToTime 采样序号到时间, 0 对应 H[0], NSamples 对应 H[1]
func (s Scales) SampleToTime(i int) float64 {
	if s.NSamples <= 0 {
		return s.H[0]
	}
	return float64(i)/float64(s.NSamples)*s.Width() + s.H[0]
}

// XToOffset 像素横坐标到时间
func (s Scales) XToOffset(x float64) float64 {
	if s.Window.Width <= 0 {
		return s.H[0]
	}
	return x/float64(s.Window.Width)*s.Width() + s.H[0]
}

// YToOffset 像素纵坐标到电压, 屏幕 y 向下增长
func (s Scales) YToOffset(y float64) float64 {
	if s.Window.Height <= 0 {
		return s.V[1]
	}
	return s.V[1] - y/float64(s.Window.Height)*s.Height()
}

// TimeToX XToOffset 的逆变换
func (s Scales) TimeToX(t float64) float64 {
	w := s.Width()
	if w == 0 {
		return 0
	}
	return (t - s.H[0]) / w * float64(s.Window.Width)
}

// VoltToY YToOffset 的逆变换
func (s Scales) VoltToY(v float64) float64 {
	h := s.Height()
	if h == 0 {
		return 0
	}
	return (s.V[1] - v) / h * float64(s.Window.Height)
}

// HDiv 每格时间
func (s Scales) HDiv() float64 {
	return s.Width() / Divisions
}

// VDiv 每格电压
func (s Scales) VDiv() float64 {
	return s.Height() / Divisions
}
