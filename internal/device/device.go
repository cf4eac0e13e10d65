// Package device 把类型化操作转换为仪器命令, 并把回复解析为类型化结果.
package device

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/exp/constraints"

	"github.com/yellow-pitaya/frontend-sub000/internal/mathx"
)

var (
	ErrInvalidReply = errors.New("device: invalid reply")
	ErrOutOfRange   = errors.New("device: argument out of range")
)

// Commander 同步命令通道, 由 transport.Transport 实现
type Commander interface {
	Send(command string) error
	SendAndReceive(command string) (string, error)
}

// FailureRecorder 记录查询解析失败
type FailureRecorder interface {
	ObserveQueryFailure(command string)
}

// QueryError 回复无法解析为期望的类型
type QueryError struct {
	Command string
	Reply   string
	Err     error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query %s: reply %q: %v", e.Command, e.Reply, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

func (e *QueryError) Is(target error) bool { return target == ErrInvalidReply }

// Device 三个子接口共享同一个连接
type Device struct {
	Acquire   *Acquire
	Generator *Generator
	Trigger   *Trigger

	link *link
}

// New 在同一个 Commander 上创建采集/发生器/触发子接口
func New(c Commander, log *logrus.Logger) *Device {
	l := &link{cmd: c, log: log}
	return &Device{
		Acquire:   &Acquire{link: l},
		Generator: newGenerator(l),
		Trigger:   newTrigger(l),
		link:      l,
	}
}

// SetRecorder 设置查询失败记录者
func (d *Device) SetRecorder(rec FailureRecorder) {
	d.link.rec = rec
}

type link struct {
	cmd Commander
	log *logrus.Logger
	rec FailureRecorder
}

func (l *link) send(format string, args ...any) error {
	return l.cmd.Send(fmt.Sprintf(format, args...))
}

func query[T any](l *link, command string, parse func(string) (T, error)) (T, error) {
	var zero T

	reply, err := l.cmd.SendAndReceive(command)
	if err != nil {
		return zero, err
	}

	v, err := parse(reply)
	if err != nil {
		l.log.WithFields(logrus.Fields{
			"command": command,
			"reply":   reply,
		}).Warnf("回复解析失败: %v", err)
		if l.rec != nil {
			l.rec.ObserveQueryFailure(command)
		}
		return zero, &QueryError{Command: command, Reply: reply, Err: err}
	}
	return v, nil
}

// checkRange NaN 也视为越界
func checkRange[T constraints.Ordered](name string, v, lo, hi T) error {
	if !mathx.Between(v, lo, hi) {
		return fmt.Errorf("%s %v not in [%v, %v]: %w", name, v, lo, hi, ErrOutOfRange)
	}
	return nil
}
