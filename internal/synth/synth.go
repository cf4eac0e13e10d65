// Package synth 计算发生器输出的预览波形.
// x 为时间 (s), amplitude 为幅度 (V), frequency 为频率 (Hz).
package synth

import (
	"fmt"
	"math"

	"github.com/yellow-pitaya/frontend-sub000/internal/mathx"
	"github.com/yellow-pitaya/frontend-sub000/pkg/protocol"
)

// 输出电压范围
const (
	MinVolt = -1.0
	MaxVolt = 1.0
)

// Func 闭式波形函数, duty 只对 PWM 有意义
type Func func(x, amplitude, frequency, duty float64) float64

func Sine(x, amplitude, frequency float64) float64 {
	return amplitude * math.Sin(2*math.Pi*frequency*x)
}

func Square(x, amplitude, frequency float64) float64 {
	return amplitude * sign(Sine(x, amplitude, frequency))
}

func Triangle(x, amplitude, frequency float64) float64 {
	return amplitude * (2 / math.Pi) * math.Asin(math.Sin(2*math.Pi*frequency*x))
}

func SawUp(x, amplitude, frequency float64) float64 {
	return amplitude * mathx.Fract(frequency*x)
}

func SawDown(x, amplitude, frequency float64) float64 {
	return amplitude * (1 - mathx.Fract(frequency*x))
}

func DC(_, amplitude, _ float64) float64 {
	return amplitude
}

// PWM 锯齿低于占空比阈值时为 +A, 高于时为 -A
func PWM(x, amplitude, frequency, duty float64) float64 {
	switch d := SawUp(x, amplitude, frequency) - amplitude*duty; {
	case d > 0:
		return -amplitude
	case d < 0:
		return amplitude
	}
	return 0
}

func ignoreDuty(f func(x, amplitude, frequency float64) float64) Func {
	return func(x, amplitude, frequency, _ float64) float64 {
		return f(x, amplitude, frequency)
	}
}

var funcs = map[protocol.Form]Func{
	protocol.FormSine:     ignoreDuty(Sine),
	protocol.FormSquare:   ignoreDuty(Square),
	protocol.FormTriangle: ignoreDuty(Triangle),
	protocol.FormSawUp:    ignoreDuty(SawUp),
	protocol.FormSawDown:  ignoreDuty(SawDown),
	protocol.FormDC:       ignoreDuty(DC),
	protocol.FormPWM:      PWM,
}

// Lookup 返回波形函数. ARBITRARY 返回 ErrUnsupportedForm, 不做任何替代.
func Lookup(form protocol.Form) (Func, error) {
	if form == protocol.FormArbitrary {
		return nil, protocol.ErrUnsupportedForm
	}
	f, ok := funcs[form]
	if !ok {
		return nil, fmt.Errorf("form %q: %w", form, protocol.ErrUnknownValue)
	}
	return f, nil
}

// Eval 计算 x 时刻的输出: 波形 + 偏置, 限制在 [-1, 1]
func Eval(p protocol.GeneratorParams, x float64) (float64, error) {
	f, err := Lookup(p.Form)
	if err != nil {
		return 0, err
	}
	return Clamp(f(x, p.Amplitude, p.Frequency, p.DutyCycle) + p.Offset), nil
}

// Sample 在给定时间点上逐点求值
func Sample(p protocol.GeneratorParams, xs []float64) ([]float64, error) {
	f, err := Lookup(p.Form)
	if err != nil {
		return nil, err
	}
	ys := make([]float64, len(xs))
	for i, x := range xs {
		ys[i] = Clamp(f(x, p.Amplitude, p.Frequency, p.DutyCycle) + p.Offset)
	}
	return ys, nil
}

// Clamp 限制到输出电压范围, NaN 记为 0
func Clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return mathx.Clamp(v, MinVolt, MaxVolt)
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}
