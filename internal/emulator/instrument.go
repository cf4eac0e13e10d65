// Package emulator 在 TCP 上模拟仪器的命令集, 供端到端测试和离线调试使用.
package emulator

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/yellow-pitaya/frontend-sub000/internal/parser"
	"github.com/yellow-pitaya/frontend-sub000/internal/synth"
	"github.com/yellow-pitaya/frontend-sub000/pkg/protocol"
)

// ErrUnknownCommand 命令不在模拟的命令集中
var ErrUnknownCommand = errors.New("emulator: unknown command")

// ErrorReply 未知查询的回复
const ErrorReply = "ERR!"

// rawFullScale RAW 单位下满量程对应的计数 (14 位 ADC)
const rawFullScale = 8192

// Instrument 所有连接共享的仪器状态.
// 输入 n 回环输出 n 的信号, 输出未启动时读数为 0.
type Instrument struct {
	mu  sync.Mutex
	log *logrus.Logger

	decimation protocol.Decimation
	units      protocol.Units
	average    bool
	gains      map[protocol.Input]protocol.Gain

	started bool
	source  protocol.TriggerSource
	state   protocol.TriggerState
	level   float64
	delay   int

	outputs map[protocol.Output]protocol.GeneratorParams
}

func NewInstrument(log *logrus.Logger) *Instrument {
	inst := &Instrument{log: log}
	inst.reset()
	inst.outputs = make(map[protocol.Output]protocol.GeneratorParams)
	for _, o := range protocol.Outputs {
		inst.outputs[o] = protocol.GeneratorParams{Form: protocol.FormSine, Amplitude: 1, Frequency: 1000}
	}
	return inst
}

// reset ACQ:RST 恢复的采集参数
func (inst *Instrument) reset() {
	inst.decimation = protocol.Dec1
	inst.units = protocol.UnitsVolts
	inst.average = false
	inst.gains = map[protocol.Input]protocol.Gain{
		protocol.IN1: protocol.GainLV,
		protocol.IN2: protocol.GainLV,
	}
	inst.started = false
	inst.source = protocol.TriggerDisabled
	inst.state = protocol.TriggerWaiting
	inst.level = 0
	inst.delay = 0
}

// Execute 执行一行命令. 查询返回 (回复, true), 设置命令返回 ("", false).
// 未知查询回复 ErrorReply, 同时返回 ErrUnknownCommand.
func (inst *Instrument) Execute(line string) (string, bool, error) {
	head, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	head = strings.ToUpper(head)
	arg = strings.TrimSpace(arg)
	query := strings.HasSuffix(head, "?")

	inst.mu.Lock()
	defer inst.mu.Unlock()

	var (
		reply string
		err   error
	)
	switch {
	case strings.HasPrefix(head, "ACQ:SOUR"):
		reply, err = inst.channel(head, arg)
	case strings.HasPrefix(head, "ACQ:TRIG"):
		reply, err = inst.trigger(head, arg)
	case strings.HasPrefix(head, "ACQ:"):
		reply, err = inst.acquire(head, arg)
	case strings.HasPrefix(head, "OUTPUT"):
		reply, err = inst.generator(head, arg)
	default:
		err = ErrUnknownCommand
	}

	if err != nil {
		inst.log.Warnf("命令执行失败 %q: %v", line, err)
		if query {
			return ErrorReply, true, err
		}
		return "", false, err
	}
	return reply, query, nil
}

func (inst *Instrument) acquire(head, arg string) (string, error) {
	switch head {
	case "ACQ:START":
		inst.started = true
		inst.state = protocol.TriggerWaiting
	case "ACQ:STOP":
		inst.started = false
	case "ACQ:RST":
		inst.reset()
	case "ACQ:DATA:UNITS":
		u, err := protocol.ParseUnits(arg)
		if err != nil {
			return "", err
		}
		inst.units = u
	case "ACQ:DEC":
		d, err := protocol.ParseDecimation(arg)
		if err != nil {
			return "", err
		}
		inst.decimation = d
	case "ACQ:DEC?":
		return inst.decimation.String(), nil
	case "ACQ:SRAT?":
		return inst.decimation.RateLabel(), nil
	case "ACQ:AVG":
		on, err := protocol.ParseSwitch(arg)
		if err != nil {
			return "", err
		}
		inst.average = on
	case "ACQ:AVG?":
		return protocol.FormatSwitch(inst.average), nil
	default:
		return "", ErrUnknownCommand
	}
	return "", nil
}

// channel ACQ:SOURn:GAIN 和缓冲区读取
func (inst *Instrument) channel(head, arg string) (string, error) {
	rest := strings.TrimPrefix(head, "ACQ:SOUR")
	num, cmd, ok := strings.Cut(rest, ":")
	if !ok {
		return "", ErrUnknownCommand
	}
	in, err := protocol.ParseInput("IN" + num)
	if err != nil {
		return "", err
	}

	switch cmd {
	case "GAIN":
		g, err := protocol.ParseGain(arg)
		if err != nil {
			return "", err
		}
		inst.gains[in] = g
		return "", nil
	case "GAIN?":
		return string(inst.gains[in]), nil
	case "DATA?":
		return parser.Format(inst.buffer(in, 0, protocol.BufferSize)), nil
	case "DATA:OLD:N?", "DATA:LAT:N?":
		n, err := strconv.Atoi(arg)
		if err != nil || n < 1 || n > protocol.BufferSize {
			return "", fmt.Errorf("sample count %q: %w", arg, protocol.ErrUnknownValue)
		}
		start := 0
		if cmd == "DATA:LAT:N?" {
			start = protocol.BufferSize - n
		}
		return parser.Format(inst.buffer(in, start, n)), nil
	}
	return "", ErrUnknownCommand
}

func (inst *Instrument) trigger(head, arg string) (string, error) {
	switch head {
	case "ACQ:TRIG":
		src := protocol.TriggerSource(strings.ToUpper(arg))
		if !src.Valid() {
			return "", fmt.Errorf("trigger source %q: %w", arg, protocol.ErrUnknownValue)
		}
		inst.source = src
		switch {
		case src == protocol.TriggerDisabled:
			inst.state = protocol.TriggerWaiting
		case inst.started:
			// 回环信号总会越过触发电平, 启用后立即视为已触发
			inst.state = protocol.TriggerTriggered
		}
	case "ACQ:TRIG:STAT?":
		return string(inst.state), nil
	case "ACQ:TRIG:LEV":
		v, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return "", err
		}
		inst.level = v
	case "ACQ:TRIG:LEV?":
		return protocol.FormatFloat(inst.level), nil
	case "ACQ:TRIG:DLY":
		d, err := strconv.Atoi(arg)
		if err != nil {
			return "", err
		}
		inst.delay = d
	case "ACQ:TRIG:DLY:NS":
		ns, err := strconv.Atoi(arg)
		if err != nil {
			return "", err
		}
		// 8ns 对应 125MHz 下的一个 tick
		inst.delay = ns / 8
	case "ACQ:TRIG:DLY?":
		return strconv.Itoa(inst.delay), nil
	default:
		return "", ErrUnknownCommand
	}
	return "", nil
}

func (inst *Instrument) generator(head, arg string) (string, error) {
	rest := strings.TrimPrefix(head, "OUTPUT")
	num, cmd, ok := strings.Cut(rest, ":")
	if !ok {
		return "", ErrUnknownCommand
	}
	o, err := protocol.ParseOutput("OUT" + num)
	if err != nil {
		return "", err
	}
	p := inst.outputs[o]
	defer func() { inst.outputs[o] = p }()

	query := strings.HasSuffix(cmd, "?")
	name := strings.TrimSuffix(cmd, "?")

	if name == "STATE" {
		if query {
			return protocol.FormatSwitch(p.Started), nil
		}
		on, err := protocol.ParseSwitch(arg)
		if err != nil {
			return "", err
		}
		p.Started = on
		return "", nil
	}
	if name == "FUNC" {
		if query {
			return string(p.Form), nil
		}
		f, err := protocol.ParseForm(arg)
		if err != nil {
			return "", err
		}
		p.Form = f
		return "", nil
	}

	fields := map[string]*float64{
		"VOLT":      &p.Amplitude,
		"VOLT:OFFS": &p.Offset,
		"FREQ:FIX":  &p.Frequency,
		"DCYC":      &p.DutyCycle,
	}
	field, ok := fields[name]
	if !ok {
		return "", ErrUnknownCommand
	}
	if query {
		return protocol.FormatFloat(*field), nil
	}
	v, err := strconv.ParseFloat(arg, 64)
	if err != nil {
		return "", err
	}
	*field = v
	return "", nil
}

// buffer 生成 [start, start+n) 的采样, 缓冲区中点对应 t=0
func (inst *Instrument) buffer(in protocol.Input, start, n int) []float64 {
	samples := make([]float64, n)
	p := inst.outputs[protocol.Output(in)]
	if !p.Started {
		return samples
	}

	rate := inst.decimation.SampleRate()
	for i := range samples {
		t := float64(start+i-protocol.BufferSize/2) / rate
		v, err := synth.Eval(p, t)
		if err != nil {
			return make([]float64, n)
		}
		if inst.units == protocol.UnitsRaw {
			v = math.Round(v / inst.fullScale(in) * rawFullScale)
		} else {
			v = math.Round(v*1e4) / 1e4
		}
		samples[i] = v
	}
	return samples
}

func (inst *Instrument) fullScale(in protocol.Input) float64 {
	if inst.gains[in] == protocol.GainHV {
		return 20
	}
	return 1
}

// Snapshot 当前发生器参数, 供测试断言
func (inst *Instrument) Snapshot(o protocol.Output) protocol.GeneratorParams {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return inst.outputs[o]
}

// Started 采集是否已启动
func (inst *Instrument) Started() bool {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return inst.started
}
