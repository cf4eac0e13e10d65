package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const terminator = "\r\n"

// Options 连接参数
type Options struct {
	DialTimeout time.Duration
	// ReplyTimeout 为 0 时读取回复不设超时
	ReplyTimeout time.Duration
	// 命令日志和回复日志分别开关
	TraceCommands bool
	TraceReplies  bool
}

// Recorder 接收收发事件, 由监控模块实现
type Recorder interface {
	ObserveCommand(query bool)
	ObserveReply(rtt time.Duration)
}

// Transport 与仪器之间唯一的行协议连接.
// 协议严格同步, 同一时刻只允许一个请求在途.
type Transport struct {
	conn   net.Conn
	reader *bufio.Reader
	addr   string
	opts   Options
	log    *logrus.Logger
	rec    Recorder

	mu      sync.Mutex
	closed  bool
	pending int // 超时后仍可能到达的旧回复数
}

// Dial 连接到 host:port
func Dial(ctx context.Context, addr string, opts Options, log *logrus.Logger) (*Transport, error) {
	d := net.Dialer{Timeout: opts.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &FatalError{Op: "dial", Addr: addr, Err: err}
	}
	log.Infof("已连接仪器: %s", addr)
	return New(conn, opts, log), nil
}

// New 封装已建立的连接
func New(conn net.Conn, opts Options, log *logrus.Logger) *Transport {
	addr := ""
	if ra := conn.RemoteAddr(); ra != nil {
		addr = ra.String()
	}
	return &Transport{
		conn:   conn,
		reader: bufio.NewReader(conn),
		addr:   addr,
		opts:   opts,
		log:    log,
	}
}

// SetRecorder 设置收发事件接收者
func (t *Transport) SetRecorder(rec Recorder) {
	t.mu.Lock()
	t.rec = rec
	t.mu.Unlock()
}

// Addr 返回仪器地址
func (t *Transport) Addr() string {
	return t.addr
}

// Send 发送命令, 不等待回复
func (t *Transport) Send(command string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.write(command, false); err != nil {
		return err
	}
	return nil
}

// SendAndReceive 发送查询并读取一行回复, 去掉行尾 CRLF
func (t *Transport) SendAndReceive(command string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.drain(); err != nil {
		return "", err
	}

	start := time.Now()
	if err := t.write(command, true); err != nil {
		return "", err
	}

	reply, err := t.readLine()
	if err != nil {
		if errors.Is(err, ErrTimeout) {
			t.pending++
			t.log.Warnf("等待回复超时 [%s]: %s", t.addr, command)
		}
		return "", err
	}

	rtt := time.Since(start)
	if t.rec != nil {
		t.rec.ObserveReply(rtt)
	}
	if t.opts.TraceReplies {
		t.log.WithFields(logrus.Fields{
			"addr":  t.addr,
			"bytes": len(reply),
			"rtt":   rtt,
		}).Debugf("< %s", truncate(reply, 120))
	}
	return reply, nil
}

// Close 关闭连接
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	t.log.Infof("断开仪器连接: %s", t.addr)
	return t.conn.Close()
}

func (t *Transport) write(command string, query bool) error {
	if t.closed {
		return ErrClosed
	}
	if strings.ContainsAny(command, "\r\n") {
		return fmt.Errorf("%q: %w", command, ErrInvalidCommand)
	}

	if t.opts.TraceCommands {
		t.log.WithField("addr", t.addr).Debugf("> %s", command)
	}

	if _, err := io.WriteString(t.conn, command+terminator); err != nil {
		return &FatalError{Op: "write", Addr: t.addr, Err: err}
	}
	if t.rec != nil {
		t.rec.ObserveCommand(query)
	}
	return nil
}

func (t *Transport) readLine() (string, error) {
	if t.opts.ReplyTimeout > 0 {
		if err := t.conn.SetReadDeadline(time.Now().Add(t.opts.ReplyTimeout)); err != nil {
			return "", &FatalError{Op: "read", Addr: t.addr, Err: err}
		}
		defer t.conn.SetReadDeadline(time.Time{})
	}

	line, err := t.reader.ReadString('\n')
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return "", ErrTimeout
		}
		return "", &FatalError{Op: "read", Addr: t.addr, Err: err}
	}
	return strings.TrimRight(line, terminator), nil
}

// drain 丢弃超时查询迟到的回复, 保持请求与回复对齐.
// 在一个回复超时内仍未等到的旧回复视为已丢失.
func (t *Transport) drain() error {
	for t.pending > 0 {
		line, err := t.readLine()
		if err != nil {
			if errors.Is(err, ErrTimeout) {
				t.log.Warnf("放弃 %d 个未到达的旧回复 [%s]", t.pending, t.addr)
				t.pending = 0
				return nil
			}
			return err
		}
		t.pending--
		t.log.Debugf("丢弃迟到回复 [%s]: %s", t.addr, truncate(line, 40))
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
