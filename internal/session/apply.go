package session

import (
	"errors"
	"fmt"
	"sort"

	"github.com/yellow-pitaya/frontend-sub000/internal/config"
	"github.com/yellow-pitaya/frontend-sub000/internal/transport"
	"github.com/yellow-pitaya/frontend-sub000/pkg/protocol"
)

// Apply 启动时把配置下发给仪器, 顺序为 采集 -> 输入 -> 触发 -> 发生器 -> 开始采集.
// 参数错误会被收集后一起返回, 致命的传输错误立即返回.
func (s *Session) Apply(cfg config.SessionConfig) error {
	var errs []error
	keep := func(err error) bool {
		if err == nil {
			return true
		}
		errs = append(errs, err)
		return !transport.IsFatal(err)
	}

	if err := s.dev.Acquire.Reset(); err != nil {
		return err
	}
	if err := s.dev.Acquire.SetUnits(protocol.UnitsVolts); err != nil {
		return err
	}
	if !keep(s.SetDecimation(protocol.Decimation(cfg.Decimation))) {
		return errors.Join(errs...)
	}
	average := s.dev.Acquire.DisableAverage
	if cfg.Average {
		average = s.dev.Acquire.EnableAverage
	}
	if err := average(); err != nil {
		return err
	}

	for _, name := range sortedKeys(cfg.Inputs) {
		in, err := protocol.ParseInput(name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		ic := cfg.Inputs[name]
		if !keep(s.applyInput(in, ic)) {
			return errors.Join(errs...)
		}
	}

	if mode, err := protocol.ParseTriggerMode(cfg.TriggerMode); err != nil {
		errs = append(errs, err)
	} else {
		keep(s.dev.Trigger.SetMode(mode))
	}
	if !keep(s.dev.Trigger.SetLevel(cfg.Level)) {
		return errors.Join(errs...)
	}
	if !keep(s.dev.Trigger.SetDelay(cfg.Delay)) {
		return errors.Join(errs...)
	}

	for _, name := range sortedKeys(cfg.Outputs) {
		o, err := protocol.ParseOutput(name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !keep(s.applyOutput(o, cfg.Outputs[name])) {
			return errors.Join(errs...)
		}
	}

	if cfg.Window.Width > 0 && cfg.Window.Height > 0 {
		s.SetWindow(cfg.Window.Width, cfg.Window.Height)
	}
	for ch, y := range cfg.Markers {
		s.SetMarker(ch, y)
	}

	if err := s.dev.Acquire.Start(); err != nil {
		return err
	}
	// 触发源必须在 ACQ:START 之后设置
	keep(s.dev.Trigger.Enable(protocol.TriggerSource(cfg.Trigger)))

	return errors.Join(errs...)
}

func (s *Session) applyInput(in protocol.Input, ic config.InputConfig) error {
	if !ic.Enabled {
		s.DisableInput(in)
		return nil
	}
	att, err := protocol.ParseAttenuation(ic.Attenuation)
	if err != nil {
		return fmt.Errorf("%s: %w", in, err)
	}
	gain, err := protocol.ParseGain(ic.Gain)
	if err != nil {
		return fmt.Errorf("%s: %w", in, err)
	}
	if err := s.dev.Acquire.SetGain(in, gain); err != nil {
		return err
	}
	s.EnableInput(in, att)
	return nil
}

func (s *Session) applyOutput(o protocol.Output, oc config.OutputConfig) error {
	if !oc.Enabled {
		return s.dev.Generator.Stop(o)
	}
	form, err := protocol.ParseForm(oc.Form)
	if err != nil {
		return fmt.Errorf("%s: %w", o, err)
	}

	steps := []func() error{
		func() error { return s.dev.Generator.SetForm(o, form) },
		func() error { return s.dev.Generator.SetAmplitude(o, oc.Amplitude) },
		func() error { return s.dev.Generator.SetOffset(o, oc.Offset) },
		func() error { return s.dev.Generator.SetFrequency(o, oc.Frequency) },
	}
	if form == protocol.FormPWM {
		steps = append(steps, func() error { return s.dev.Generator.SetDutyCycle(o, oc.DutyCycle) })
	}
	steps = append(steps, func() error { return s.dev.Generator.Start(o) })

	for _, step := range steps {
		if err := step(); err != nil {
			return fmt.Errorf("%s: %w", o, err)
		}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
