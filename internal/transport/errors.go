package transport

import (
	"errors"
	"fmt"
)

var (
	ErrClosed         = errors.New("transport: connection closed")
	ErrTimeout        = errors.New("transport: reply timeout")
	ErrInvalidCommand = errors.New("transport: command contains line terminator")
)

// FatalError 连接或写入失败, 会话无法继续
type FatalError struct {
	Op   string
	Addr string
	Err  error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("transport %s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// IsFatal 检查 err 是否为 FatalError
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}
