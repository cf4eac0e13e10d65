package device

import (
	"fmt"
	"sync/atomic"

	"github.com/yellow-pitaya/frontend-sub000/pkg/protocol"
)

// Acquire 采集子接口
type Acquire struct {
	*link
	started atomic.Bool
}

// Start ACQ:START
func (a *Acquire) Start() error {
	if err := a.send("ACQ:START"); err != nil {
		return err
	}
	a.started.Store(true)
	return nil
}

// Stop ACQ:STOP
func (a *Acquire) Stop() error {
	if err := a.send("ACQ:STOP"); err != nil {
		return err
	}
	a.started.Store(false)
	return nil
}

// IsStarted 客户端记录的采集状态, 设备没有对应查询
func (a *Acquire) IsStarted() bool {
	return a.started.Load()
}

// Reset 恢复设备默认采集参数并停止采集
func (a *Acquire) Reset() error {
	if err := a.send("ACQ:RST"); err != nil {
		return err
	}
	a.started.Store(false)
	return nil
}

func (a *Acquire) SetUnits(u protocol.Units) error {
	if _, err := protocol.ParseUnits(string(u)); err != nil {
		return err
	}
	return a.send("ACQ:DATA:UNITS %s", u)
}

func (a *Acquire) SetDecimation(d protocol.Decimation) error {
	if !d.Valid() {
		return fmt.Errorf("decimation %d: %w", d, ErrOutOfRange)
	}
	return a.send("ACQ:DEC %s", d)
}

func (a *Acquire) GetDecimation() (protocol.Decimation, error) {
	return query(a.link, "ACQ:DEC?", protocol.ParseDecimation)
}

// GetSamplingRate 通过 ACQ:SRAT? 查询采样率, 返回对应的抽取系数
func (a *Acquire) GetSamplingRate() (protocol.Decimation, error) {
	return query(a.link, "ACQ:SRAT?", protocol.ParseRateLabel)
}

func (a *Acquire) EnableAverage() error {
	return a.send("ACQ:AVG ON")
}

func (a *Acquire) DisableAverage() error {
	return a.send("ACQ:AVG OFF")
}

func (a *Acquire) IsAverageEnabled() (bool, error) {
	return query(a.link, "ACQ:AVG?", protocol.ParseSwitch)
}

func (a *Acquire) GetGain(in protocol.Input) (protocol.Gain, error) {
	if !in.Valid() {
		return "", fmt.Errorf("input %d: %w", in, ErrOutOfRange)
	}
	return query(a.link, fmt.Sprintf("ACQ:%s:GAIN?", in.Command()), protocol.ParseGain)
}

func (a *Acquire) SetGain(in protocol.Input, g protocol.Gain) error {
	if !in.Valid() {
		return fmt.Errorf("input %d: %w", in, ErrOutOfRange)
	}
	if _, err := protocol.ParseGain(string(g)); err != nil {
		return err
	}
	return a.send("ACQ:%s:GAIN %s", in.Command(), g)
}

// ReadAll 读取整个缓冲区的原始回复 {v,v,...}
func (a *Acquire) ReadAll(in protocol.Input) (string, error) {
	if !in.Valid() {
		return "", fmt.Errorf("input %d: %w", in, ErrOutOfRange)
	}
	return a.cmd.SendAndReceive(fmt.Sprintf("ACQ:%s:DATA?", in.Command()))
}

// ReadOldest 读取触发后最早的 n 个采样
func (a *Acquire) ReadOldest(in protocol.Input, n int) (string, error) {
	if err := checkRead(in, n); err != nil {
		return "", err
	}
	return a.cmd.SendAndReceive(fmt.Sprintf("ACQ:%s:DATA:OLD:N? %d", in.Command(), n))
}

// ReadLatest 读取最新的 n 个采样
func (a *Acquire) ReadLatest(in protocol.Input, n int) (string, error) {
	if err := checkRead(in, n); err != nil {
		return "", err
	}
	return a.cmd.SendAndReceive(fmt.Sprintf("ACQ:%s:DATA:LAT:N? %d", in.Command(), n))
}

func checkRead(in protocol.Input, n int) error {
	if !in.Valid() {
		return fmt.Errorf("input %d: %w", in, ErrOutOfRange)
	}
	if n < 1 || n > protocol.BufferSize {
		return fmt.Errorf("sample count %d: %w", n, ErrOutOfRange)
	}
	return nil
}
