package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrUnknownValue 表示设备回复或配置中的取值不属于已知枚举
	ErrUnknownValue = errors.New("protocol: unknown value")

	// ErrUnsupportedForm ARBITRARY 波形尚未实现
	ErrUnsupportedForm = errors.New("protocol: arbitrary waveform is not supported")
)

// 设备常量
const (
	// BufferSize 采集缓冲区固定采样点数
	BufferSize = 16384

	// BaseSampleRate ADC 原始采样率 (Hz)
	BaseSampleRate = 125_000_000

	// MaxTriggerDelay 触发延时上限 (设备 tick)
	MaxTriggerDelay = 131072

	// MaxFrequency 信号发生器频率上限 (Hz)
	MaxFrequency = 62_500_000
)

// Input 采集输入通道
type Input int

const (
	IN1 Input = iota + 1
	IN2
)

// Inputs 全部采集输入
var Inputs = []Input{IN1, IN2}

func (i Input) String() string {
	return fmt.Sprintf("IN%d", int(i))
}

// Command 命令中的输入名, 例如 ACQ:SOUR1:GAIN
func (i Input) Command() string {
	return fmt.Sprintf("SOUR%d", int(i))
}

func (i Input) Valid() bool {
	return i == IN1 || i == IN2
}

// ParseInput 解析 IN1/IN2
func ParseInput(s string) (Input, error) {
	for _, in := range Inputs {
		if strings.EqualFold(strings.TrimSpace(s), in.String()) {
			return in, nil
		}
	}
	return 0, fmt.Errorf("input %q: %w", s, ErrUnknownValue)
}

// Output 信号发生器输出通道
type Output int

const (
	OUT1 Output = iota + 1
	OUT2
)

// Outputs 全部发生器输出
var Outputs = []Output{OUT1, OUT2}

func (o Output) String() string {
	return fmt.Sprintf("OUT%d", int(o))
}

// Command 命令中的输出名, 例如 OUTPUT1:FUNC
func (o Output) Command() string {
	return fmt.Sprintf("OUTPUT%d", int(o))
}

func (o Output) Valid() bool {
	return o == OUT1 || o == OUT2
}

// ParseOutput 解析 OUT1/OUT2
func ParseOutput(s string) (Output, error) {
	for _, o := range Outputs {
		if strings.EqualFold(strings.TrimSpace(s), o.String()) {
			return o, nil
		}
	}
	return 0, fmt.Errorf("output %q: %w", s, ErrUnknownValue)
}

// Gain 输入增益 (跳线设置)
type Gain string

const (
	GainLV Gain = "LV"
	GainHV Gain = "HV"
)

// ParseGain 解析 ACQ:SOURn:GAIN? 的回复
func ParseGain(s string) (Gain, error) {
	switch g := Gain(strings.ToUpper(strings.TrimSpace(s))); g {
	case GainLV, GainHV:
		return g, nil
	}
	return "", fmt.Errorf("gain %q: %w", s, ErrUnknownValue)
}

// Attenuation 探头衰减, 仅在客户端生效, 不发送到设备
type Attenuation int

const (
	Attenuation1   Attenuation = 1
	Attenuation10  Attenuation = 10
	Attenuation100 Attenuation = 100
)

// ParseAttenuation 解析配置中的衰减倍数
func ParseAttenuation(n int) (Attenuation, error) {
	switch a := Attenuation(n); a {
	case Attenuation1, Attenuation10, Attenuation100:
		return a, nil
	}
	return 0, fmt.Errorf("attenuation %d: %w", n, ErrUnknownValue)
}

// Factor 衰减对应的乘数, 零值按 1 处理
func (a Attenuation) Factor() float64 {
	if a == 0 {
		return 1
	}
	return float64(a)
}

// Units 采集数据单位
type Units string

const (
	UnitsVolts Units = "VOLTS"
	UnitsRaw   Units = "RAW"
)

// ParseUnits 解析单位名称
func ParseUnits(s string) (Units, error) {
	switch u := Units(strings.ToUpper(strings.TrimSpace(s))); u {
	case UnitsVolts, UnitsRaw:
		return u, nil
	}
	return "", fmt.Errorf("units %q: %w", s, ErrUnknownValue)
}

// Decimation 抽取系数, 决定采样率和缓冲区时长
type Decimation uint32

const (
	Dec1     Decimation = 1
	Dec8     Decimation = 8
	Dec64    Decimation = 64
	Dec1024  Decimation = 1024
	Dec8192  Decimation = 8192
	Dec65536 Decimation = 65536
)

// Decimations 设备支持的全部抽取系数, 按采样率从高到低
var Decimations = []Decimation{Dec1, Dec8, Dec64, Dec1024, Dec8192, Dec65536}

type rateInfo struct {
	label    string
	duration time.Duration
}

// 缓冲区时长 = BufferSize * dec / BaseSampleRate
var rateTable = map[Decimation]rateInfo{
	Dec1:     {"125MHz", 131_072 * time.Nanosecond},
	Dec8:     {"15.6MHz", 1_048_576 * time.Nanosecond},
	Dec64:    {"1.9MHz", 8_388_608 * time.Nanosecond},
	Dec1024:  {"103.8kHz", 134_217_728 * time.Nanosecond},
	Dec8192:  {"15.2kHz", 1_073_741_824 * time.Nanosecond},
	Dec65536: {"1.9kHz", 8_589_934_592 * time.Nanosecond},
}

func (d Decimation) String() string {
	return strconv.FormatUint(uint64(d), 10)
}

func (d Decimation) Valid() bool {
	_, ok := rateTable[d]
	return ok
}

// RateLabel ACQ:SRAT? 使用的采样率名称
func (d Decimation) RateLabel() string {
	return rateTable[d].label
}

// BufferDuration 一个完整缓冲区覆盖的时长
func (d Decimation) BufferDuration() time.Duration {
	return rateTable[d].duration
}

// BufferDurationMicros 以微秒表示的缓冲区时长
func (d Decimation) BufferDurationMicros() float64 {
	return float64(d.BufferDuration().Nanoseconds()) / 1000
}

// SampleRate 采样率 (Hz)
func (d Decimation) SampleRate() float64 {
	if d == 0 {
		return 0
	}
	return BaseSampleRate / float64(d)
}

// ParseDecimation 解析 ACQ:DEC? 的回复
func ParseDecimation(s string) (Decimation, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("decimation %q: %w", s, err)
	}
	d := Decimation(n)
	if !d.Valid() {
		return 0, fmt.Errorf("decimation %q: %w", s, ErrUnknownValue)
	}
	return d, nil
}

// ParseRateLabel 解析 ACQ:SRAT? 的回复
func ParseRateLabel(s string) (Decimation, error) {
	s = strings.TrimSpace(s)
	for _, d := range Decimations {
		if strings.EqualFold(rateTable[d].label, s) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("sampling rate %q: %w", s, ErrUnknownValue)
}

// Form 发生器波形
type Form string

const (
	FormSine      Form = "SINE"
	FormSquare    Form = "SQUARE"
	FormTriangle  Form = "TRIANGLE"
	FormSawUp     Form = "SAWU"
	FormSawDown   Form = "SAWD"
	FormDC        Form = "DC"
	FormPWM       Form = "PWM"
	FormArbitrary Form = "ARBITRARY"
)

// Forms 全部波形, ARBITRARY 仅保留, 未实现
var Forms = []Form{FormSine, FormSquare, FormTriangle, FormSawUp, FormSawDown, FormDC, FormPWM, FormArbitrary}

// ParseForm 解析 OUTPUTn:FUNC? 的回复
func ParseForm(s string) (Form, error) {
	f := Form(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Forms {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("form %q: %w", s, ErrUnknownValue)
}

// GeneratorParams 单个输出的发生器参数
type GeneratorParams struct {
	Form      Form    `json:"form" yaml:"form"`
	Amplitude float64 `json:"amplitude" yaml:"amplitude"`
	Offset    float64 `json:"offset" yaml:"offset"`
	Frequency float64 `json:"frequency" yaml:"frequency"`
	DutyCycle float64 `json:"duty_cycle" yaml:"duty_cycle"`
	Started   bool    `json:"started" yaml:"started"`
}

// TriggerChannel 触发通道
type TriggerChannel string

const (
	TriggerCH1 TriggerChannel = "CH1"
	TriggerCH2 TriggerChannel = "CH2"
	TriggerEXT TriggerChannel = "EXT"
)

// Edge 触发沿
type Edge string

const (
	EdgePositive Edge = "PE"
	EdgeNegative Edge = "NE"
)

// TriggerSource 设备级触发源, 通道 × 沿
type TriggerSource string

const (
	TriggerDisabled TriggerSource = "DISABLED"
	TriggerNow      TriggerSource = "NOW"
)

// NewTriggerSource 组合通道和沿
func NewTriggerSource(ch TriggerChannel, edge Edge) TriggerSource {
	return TriggerSource(string(ch) + "_" + string(edge))
}

// TriggerSources 六个通道 × 沿组合
var TriggerSources = []TriggerSource{
	NewTriggerSource(TriggerCH1, EdgePositive),
	NewTriggerSource(TriggerCH1, EdgeNegative),
	NewTriggerSource(TriggerCH2, EdgePositive),
	NewTriggerSource(TriggerCH2, EdgeNegative),
	NewTriggerSource(TriggerEXT, EdgePositive),
	NewTriggerSource(TriggerEXT, EdgeNegative),
}

// Valid 只接受六个通道 × 沿组合以及 DISABLED/NOW
func (s TriggerSource) Valid() bool {
	if s == TriggerDisabled || s == TriggerNow {
		return true
	}
	for _, known := range TriggerSources {
		if s == known {
			return true
		}
	}
	return false
}

// Channel 返回触发源的通道部分
func (s TriggerSource) Channel() TriggerChannel {
	ch, _, _ := strings.Cut(string(s), "_")
	return TriggerChannel(ch)
}

// Edge 返回触发源的沿部分
func (s TriggerSource) Edge() Edge {
	_, edge, _ := strings.Cut(string(s), "_")
	return Edge(edge)
}

// TriggerMode 触发模式, 由客户端刷新循环解释
type TriggerMode string

const (
	TriggerAuto   TriggerMode = "auto"
	TriggerNormal TriggerMode = "normal"
	TriggerSingle TriggerMode = "single"
)

// ParseTriggerMode 解析配置中的触发模式
func ParseTriggerMode(s string) (TriggerMode, error) {
	switch m := TriggerMode(strings.ToLower(strings.TrimSpace(s))); m {
	case TriggerAuto, TriggerNormal, TriggerSingle:
		return m, nil
	}
	return "", fmt.Errorf("trigger mode %q: %w", s, ErrUnknownValue)
}

// TriggerState ACQ:TRIG:STAT? 的回复
type TriggerState string

const (
	TriggerTriggered TriggerState = "TD"
	TriggerWaiting   TriggerState = "WAIT"
)

// ParseTriggerState 解析触发状态
func ParseTriggerState(s string) (TriggerState, error) {
	switch st := TriggerState(strings.ToUpper(strings.TrimSpace(s))); st {
	case TriggerTriggered, TriggerWaiting:
		return st, nil
	}
	return "", fmt.Errorf("trigger state %q: %w", s, ErrUnknownValue)
}

// ParseSwitch 解析 ON/OFF/1/0 类回复
func ParseSwitch(s string) (bool, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ON", "1":
		return true, nil
	case "OFF", "0":
		return false, nil
	}
	return false, fmt.Errorf("switch %q: %w", s, ErrUnknownValue)
}

// FormatSwitch 布尔值的命令形式
func FormatSwitch(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}

// FormatFloat 命令中浮点数的最短精确十进制形式
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Frame 一次采集得到的缓冲区, 用于对外发布
type Frame struct {
	Source     string    `json:"source"`
	Timestamp  time.Time `json:"timestamp"`
	Decimation uint32    `json:"decimation"`
	Samples    []float64 `json:"samples"`
	Faults     int       `json:"faults,omitempty"`
}
