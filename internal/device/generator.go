package device

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/yellow-pitaya/frontend-sub000/pkg/protocol"
)

// Generator 信号发生器子接口.
// 记录每个输出最近一次确认的参数, 查询失败时保留旧值.
type Generator struct {
	*link

	mu    sync.Mutex
	known map[protocol.Output]protocol.GeneratorParams
}

func newGenerator(l *link) *Generator {
	return &Generator{
		link:  l,
		known: make(map[protocol.Output]protocol.GeneratorParams),
	}
}

func (g *Generator) Start(o protocol.Output) error {
	return g.setState(o, true)
}

func (g *Generator) Stop(o protocol.Output) error {
	return g.setState(o, false)
}

func (g *Generator) setState(o protocol.Output, on bool) error {
	if err := checkOutput(o); err != nil {
		return err
	}
	if err := g.send("%s:STATE %s", o.Command(), protocol.FormatSwitch(on)); err != nil {
		return err
	}
	g.update(o, func(p *protocol.GeneratorParams) { p.Started = on })
	return nil
}

func (g *Generator) IsStarted(o protocol.Output) (bool, error) {
	if err := checkOutput(o); err != nil {
		return false, err
	}
	on, err := query(g.link, o.Command()+":STATE?", protocol.ParseSwitch)
	if err == nil {
		g.update(o, func(p *protocol.GeneratorParams) { p.Started = on })
	}
	return on, err
}

// SetForm 设置波形, ARBITRARY 直接拒绝
func (g *Generator) SetForm(o protocol.Output, f protocol.Form) error {
	if err := checkOutput(o); err != nil {
		return err
	}
	if f == protocol.FormArbitrary {
		return protocol.ErrUnsupportedForm
	}
	if _, err := protocol.ParseForm(string(f)); err != nil {
		return err
	}
	if err := g.send("%s:FUNC %s", o.Command(), f); err != nil {
		return err
	}
	g.update(o, func(p *protocol.GeneratorParams) { p.Form = f })
	return nil
}

func (g *Generator) GetForm(o protocol.Output) (protocol.Form, error) {
	if err := checkOutput(o); err != nil {
		return "", err
	}
	f, err := query(g.link, o.Command()+":FUNC?", protocol.ParseForm)
	if err == nil {
		g.update(o, func(p *protocol.GeneratorParams) { p.Form = f })
	}
	return f, err
}

// SetAmplitude 幅度 (V), 范围 [-1, 1]
func (g *Generator) SetAmplitude(o protocol.Output, v float64) error {
	if err := checkRange("amplitude", v, -1, 1); err != nil {
		return err
	}
	return g.setFloat(o, "VOLT", v, func(p *protocol.GeneratorParams) { p.Amplitude = v })
}

func (g *Generator) GetAmplitude(o protocol.Output) (float64, error) {
	return g.getFloat(o, "VOLT", func(p *protocol.GeneratorParams, v float64) { p.Amplitude = v })
}

// SetOffset 直流偏置 (V), 范围 [-1, 1]
func (g *Generator) SetOffset(o protocol.Output, v float64) error {
	if err := checkRange("offset", v, -1, 1); err != nil {
		return err
	}
	return g.setFloat(o, "VOLT:OFFS", v, func(p *protocol.GeneratorParams) { p.Offset = v })
}

func (g *Generator) GetOffset(o protocol.Output) (float64, error) {
	return g.getFloat(o, "VOLT:OFFS", func(p *protocol.GeneratorParams, v float64) { p.Offset = v })
}

// SetFrequency 频率 (Hz), 范围 [0, 62.5M]
func (g *Generator) SetFrequency(o protocol.Output, hz float64) error {
	if err := checkRange("frequency", hz, 0, protocol.MaxFrequency); err != nil {
		return err
	}
	return g.setFloat(o, "FREQ:FIX", hz, func(p *protocol.GeneratorParams) { p.Frequency = hz })
}

func (g *Generator) GetFrequency(o protocol.Output) (float64, error) {
	return g.getFloat(o, "FREQ:FIX", func(p *protocol.GeneratorParams, v float64) { p.Frequency = v })
}

// SetDutyCycle 占空比, 范围 [0, 1], 只对 PWM 有意义
func (g *Generator) SetDutyCycle(o protocol.Output, duty float64) error {
	if err := checkRange("duty cycle", duty, 0, 1); err != nil {
		return err
	}
	return g.setFloat(o, "DCYC", duty, func(p *protocol.GeneratorParams) { p.DutyCycle = duty })
}

func (g *Generator) GetDutyCycle(o protocol.Output) (float64, error) {
	return g.getFloat(o, "DCYC", func(p *protocol.GeneratorParams, v float64) { p.DutyCycle = v })
}

// Known 返回最近一次确认的参数
func (g *Generator) Known(o protocol.Output) protocol.GeneratorParams {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.known[o]
}

// Refresh 逐项查询输出参数. 单项失败时该项保留旧值, 错误合并返回.
func (g *Generator) Refresh(o protocol.Output) (protocol.GeneratorParams, error) {
	if err := checkOutput(o); err != nil {
		return protocol.GeneratorParams{}, err
	}

	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	_, err := g.IsStarted(o)
	collect(err)
	_, err = g.GetForm(o)
	collect(err)
	_, err = g.GetAmplitude(o)
	collect(err)
	_, err = g.GetOffset(o)
	collect(err)
	_, err = g.GetFrequency(o)
	collect(err)
	_, err = g.GetDutyCycle(o)
	collect(err)

	return g.Known(o), errors.Join(errs...)
}

func (g *Generator) setFloat(o protocol.Output, name string, v float64, apply func(*protocol.GeneratorParams)) error {
	if err := checkOutput(o); err != nil {
		return err
	}
	if err := g.send("%s:%s %s", o.Command(), name, protocol.FormatFloat(v)); err != nil {
		return err
	}
	g.update(o, apply)
	return nil
}

func (g *Generator) getFloat(o protocol.Output, name string, apply func(*protocol.GeneratorParams, float64)) (float64, error) {
	if err := checkOutput(o); err != nil {
		return 0, err
	}
	v, err := query(g.link, fmt.Sprintf("%s:%s?", o.Command(), name), parseFloat)
	if err == nil {
		g.update(o, func(p *protocol.GeneratorParams) { apply(p, v) })
	}
	return v, err
}

func (g *Generator) update(o protocol.Output, apply func(*protocol.GeneratorParams)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p := g.known[o]
	apply(&p)
	g.known[o] = p
}

func checkOutput(o protocol.Output) error {
	if !o.Valid() {
		return fmt.Errorf("output %d: %w", o, ErrOutOfRange)
	}
	return nil
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}
