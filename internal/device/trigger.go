package device

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/yellow-pitaya/frontend-sub000/pkg/protocol"
)

// Trigger 触发子接口. 触发模式只在客户端生效.
type Trigger struct {
	*link

	mu     sync.Mutex
	mode   protocol.TriggerMode
	source protocol.TriggerSource
}

func newTrigger(l *link) *Trigger {
	return &Trigger{
		link:   l,
		mode:   protocol.TriggerAuto,
		source: protocol.TriggerDisabled,
	}
}

// Enable 选择六个通道 × 沿组合之一 (也接受 DISABLED/NOW)
func (t *Trigger) Enable(src protocol.TriggerSource) error {
	if !src.Valid() {
		return fmt.Errorf("trigger source %q: %w", src, ErrOutOfRange)
	}
	if err := t.send("ACQ:TRIG %s", src); err != nil {
		return err
	}
	t.mu.Lock()
	t.source = src
	t.mu.Unlock()
	return nil
}

// Source 最近一次启用的触发源
func (t *Trigger) Source() protocol.TriggerSource {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.source
}

func (t *Trigger) SetMode(m protocol.TriggerMode) error {
	if _, err := protocol.ParseTriggerMode(string(m)); err != nil {
		return err
	}
	t.mu.Lock()
	t.mode = m
	t.mu.Unlock()
	return nil
}

func (t *Trigger) Mode() protocol.TriggerMode {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.mode
}

// SetLevel 触发电平 (V)
func (t *Trigger) SetLevel(volts float64) error {
	if volts != volts {
		return fmt.Errorf("trigger level NaN: %w", ErrOutOfRange)
	}
	return t.send("ACQ:TRIG:LEV %s", protocol.FormatFloat(volts))
}

func (t *Trigger) GetLevel() (float64, error) {
	return query(t.link, "ACQ:TRIG:LEV?", parseFloat)
}

// SetDelay 触发延时, 单位为设备 tick
func (t *Trigger) SetDelay(ticks int) error {
	if err := checkDelay(ticks); err != nil {
		return err
	}
	return t.send("ACQ:TRIG:DLY %d", ticks)
}

// SetDelayInNs 触发延时, 使用 ACQ:TRIG:DLY:NS
func (t *Trigger) SetDelayInNs(delay int) error {
	if err := checkDelay(delay); err != nil {
		return err
	}
	return t.send("ACQ:TRIG:DLY:NS %d", delay)
}

func (t *Trigger) GetDelay() (int, error) {
	return query(t.link, "ACQ:TRIG:DLY?", func(s string) (int, error) {
		return strconv.Atoi(strings.TrimSpace(s))
	})
}

// State 查询 ACQ:TRIG:STAT?, TD 表示已触发
func (t *Trigger) State() (protocol.TriggerState, error) {
	return query(t.link, "ACQ:TRIG:STAT?", protocol.ParseTriggerState)
}

func checkDelay(d int) error {
	return checkRange("trigger delay", d, 0, protocol.MaxTriggerDelay)
}
