package session

import (
	"context"
	"time"
)

// Ticker 刷新节奏的来源, 由外部注入
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	t *time.Ticker
}

// NewTicker 基于 time.Ticker 的默认实现
func NewTicker(interval time.Duration) Ticker {
	return &timeTicker{t: time.NewTicker(interval)}
}

func (t *timeTicker) C() <-chan time.Time { return t.t.C }

func (t *timeTicker) Stop() { t.t.Stop() }

// Run 每个 tick 调用一次 Tick, 结果交给 sink.
// ctx 取消时返回 nil, 传输层致命错误时返回该错误.
func (s *Session) Run(ctx context.Context, ticker Ticker, sink func(*Frame)) error {
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("刷新循环退出")
			return nil
		case <-ticker.C():
			frame, err := s.Tick(ctx)
			if err != nil {
				return err
			}
			if sink != nil {
				sink(frame)
			}
		}
	}
}
