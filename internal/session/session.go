// Package session 执行一次同步刷新: 读取缓冲区, 解析, 生成折线, 发布.
// 刷新节奏由外部注入的 Ticker 决定, 本包不启动后台轮询.
package session

import (
	"context"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yellow-pitaya/frontend-sub000/internal/device"
	"github.com/yellow-pitaya/frontend-sub000/internal/parser"
	"github.com/yellow-pitaya/frontend-sub000/internal/render"
	"github.com/yellow-pitaya/frontend-sub000/internal/scale"
	"github.com/yellow-pitaya/frontend-sub000/internal/storage"
	"github.com/yellow-pitaya/frontend-sub000/internal/transport"
	"github.com/yellow-pitaya/frontend-sub000/pkg/protocol"
)

// Recorder 记录缓冲区和刷新耗时
type Recorder interface {
	ObserveBuffer(source string)
	ObserveRefresh(d time.Duration)
}

// batchPublisher 支持一次发布多帧的发布者
type batchPublisher interface {
	PublishBatch(ctx context.Context, frames []*protocol.Frame) error
}

// Frame 一次刷新的结果, 坐标为域坐标 (µs, V)
type Frame struct {
	Time     time.Time
	Acquired map[string][]render.Point
	Previews map[string][]render.Point
	Buffers  []*protocol.Frame
	Faults   int
}

type Session struct {
	dev    *device.Device
	parser *parser.Parser
	pub    storage.Publisher
	log    *logrus.Logger
	rec    Recorder

	scales     scale.Scales
	decimation protocol.Decimation
	markers    render.Markers
	inputs     map[protocol.Input]protocol.Attenuation
}

func New(dev *device.Device, p *parser.Parser, pub storage.Publisher, log *logrus.Logger) *Session {
	if pub == nil {
		pub = storage.Discard{}
	}
	return &Session{
		dev:        dev,
		parser:     p,
		pub:        pub,
		log:        log,
		scales:     scale.New(protocol.Dec1),
		decimation: protocol.Dec1,
		markers:    make(render.Markers),
		inputs:     make(map[protocol.Input]protocol.Attenuation),
	}
}

func (s *Session) SetRecorder(rec Recorder) {
	s.rec = rec
}

// Scales 当前刻度的副本
func (s *Session) Scales() scale.Scales {
	return s.scales
}

// SetWindow 绘图区域尺寸变化时调用
func (s *Session) SetWindow(width, height int) {
	s.scales.SetWindow(width, height)
}

// SetMarker 设置通道电平标记 (像素纵坐标)
func (s *Session) SetMarker(channel string, y float64) {
	s.markers[channel] = y
}

// Offset 通道电平标记对应的电压
func (s *Session) Offset(channel string) float64 {
	return render.Offset(s.scales, s.markers, channel)
}

// EnableInput 在刷新中读取该输入
func (s *Session) EnableInput(in protocol.Input, att protocol.Attenuation) {
	s.inputs[in] = att
}

func (s *Session) DisableInput(in protocol.Input) {
	delete(s.inputs, in)
}

// SetDecimation 下发抽取系数并重算横轴
func (s *Session) SetDecimation(d protocol.Decimation) error {
	if err := s.dev.Acquire.SetDecimation(d); err != nil {
		return err
	}
	s.decimation = d
	s.scales.FromSamplingRate(d)
	return nil
}

// SyncDecimation 从设备读取抽取系数; 回复无效时保留当前值
func (s *Session) SyncDecimation() (protocol.Decimation, error) {
	d, err := s.dev.Acquire.GetDecimation()
	if err != nil {
		if transport.IsFatal(err) {
			return s.decimation, err
		}
		s.log.Warnf("读取抽取系数失败, 保留 %s: %v", s.decimation, err)
		return s.decimation, nil
	}
	s.decimation = d
	s.scales.FromSamplingRate(d)
	return d, nil
}

// Tick 执行一次刷新. 只有传输层致命错误会返回 error.
func (s *Session) Tick(ctx context.Context) (*Frame, error) {
	start := time.Now()
	frame := &Frame{
		Time:     start,
		Acquired: make(map[string][]render.Point),
		Previews: make(map[string][]render.Point),
	}

	if s.dev.Acquire.IsStarted() {
		if err := s.acquire(frame); err != nil {
			return nil, err
		}
	}
	s.preview(frame)
	s.publish(ctx, frame.Buffers)

	if s.rec != nil {
		s.rec.ObserveRefresh(time.Since(start))
	}
	return frame, nil
}

func (s *Session) acquire(frame *Frame) error {
	mode := s.dev.Trigger.Mode()

	if mode != protocol.TriggerAuto {
		st, err := s.dev.Trigger.State()
		if err != nil {
			if transport.IsFatal(err) {
				return err
			}
			s.log.Warnf("读取触发状态失败: %v", err)
			return nil
		}
		if st != protocol.TriggerTriggered {
			return nil
		}
	}

	for _, in := range s.sortedInputs() {
		raw, err := s.dev.Acquire.ReadAll(in)
		if err != nil {
			if transport.IsFatal(err) {
				return err
			}
			s.log.Warnf("读取缓冲区失败 [%s]: %v", in, err)
			continue
		}

		result := s.parser.Parse(raw)
		frame.Faults += result.Faults
		frame.Acquired[in.String()] = render.Acquisition(s.scales, result.Samples, s.inputs[in], s.Offset(in.String()))
		frame.Buffers = append(frame.Buffers, &protocol.Frame{
			Source:     in.String(),
			Timestamp:  frame.Time,
			Decimation: uint32(s.decimation),
			Samples:    result.Samples,
			Faults:     result.Faults,
		})
		if s.rec != nil {
			s.rec.ObserveBuffer(in.String())
		}

		s.log.Debugf("缓冲区 [%s]: %d 个采样, %d 个坏值", in, len(result.Samples), result.Faults)
	}

	return s.rearm(mode)
}

// rearm 按触发模式决定读取后的动作
func (s *Session) rearm(mode protocol.TriggerMode) error {
	switch mode {
	case protocol.TriggerNormal:
		if err := s.dev.Acquire.Start(); err != nil {
			return err
		}
		return s.dev.Trigger.Enable(s.dev.Trigger.Source())
	case protocol.TriggerSingle:
		return s.dev.Acquire.Stop()
	}
	return nil
}

func (s *Session) preview(frame *Frame) {
	if s.scales.Window.Width <= 0 {
		return
	}
	for _, o := range protocol.Outputs {
		p := s.dev.Generator.Known(o)
		if !p.Started {
			continue
		}
		points, err := render.Generator(s.scales, p, s.Offset(o.String()))
		if err != nil {
			s.log.Warnf("无法预览 [%s] %s: %v", o, p.Form, err)
			continue
		}
		frame.Previews[o.String()] = points
	}
}

func (s *Session) publish(ctx context.Context, buffers []*protocol.Frame) {
	if len(buffers) == 0 {
		return
	}

	if bp, ok := s.pub.(batchPublisher); ok && len(buffers) > 1 {
		if err := bp.PublishBatch(ctx, buffers); err != nil {
			s.log.Errorf("发布消息失败: %v", err)
		}
		return
	}

	for _, b := range buffers {
		if err := s.pub.Publish(ctx, b); err != nil {
			s.log.Errorf("发布消息失败 [%s]: %v", b.Source, err)
		}
	}
}

func (s *Session) sortedInputs() []protocol.Input {
	ins := make([]protocol.Input, 0, len(s.inputs))
	for in := range s.inputs {
		ins = append(ins, in)
	}
	sort.Slice(ins, func(i, j int) bool { return ins[i] < ins[j] })
	return ins
}
