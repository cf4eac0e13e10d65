package emulator

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type Options struct {
	Listen          string
	MaxConnections  int
	ReadTimeout     time.Duration
	KeepAlive       time.Duration
	ShutdownTimeout time.Duration
}

// Server 接受客户端连接, 所有连接操作同一台模拟仪器
type Server struct {
	opts     Options
	inst     *Instrument
	listener net.Listener
	log      *logrus.Logger
	limiter  chan struct{}
	wg       sync.WaitGroup
	shutdown chan struct{}
	once     sync.Once
}

func NewServer(inst *Instrument, opts Options, log *logrus.Logger) *Server {
	if opts.MaxConnections <= 0 {
		opts.MaxConnections = 1
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = time.Second
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 30 * time.Second
	}
	return &Server{
		opts:     opts,
		inst:     inst,
		log:      log,
		limiter:  make(chan struct{}, opts.MaxConnections),
		shutdown: make(chan struct{}),
	}
}

// Listen 绑定监听地址, 端口为 0 时由系统分配
func (s *Server) Listen(ctx context.Context) error {
	lc := net.ListenConfig{
		KeepAlive: s.opts.KeepAlive,
	}

	listener, err := lc.Listen(ctx, "tcp", s.opts.Listen)
	if err != nil {
		return fmt.Errorf("监听失败: %w", err)
	}

	s.listener = listener
	s.log.Infof("模拟器启动成功: %s (最大连接: %d)", listener.Addr(), s.opts.MaxConnections)
	return nil
}

// Addr 实际监听地址
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve 接受连接直到 Shutdown
func (s *Server) Serve() error {
	if s.listener == nil {
		return errors.New("emulator: Serve called before Listen")
	}

	for {
		select {
		case <-s.shutdown:
			s.log.Info("停止接受新连接")
			return nil
		default:
		}

		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return nil
			default:
				s.log.Errorf("接受连接错误: %v", err)
				continue
			}
		}

		// 连接数限制
		select {
		case s.limiter <- struct{}{}:
			s.wg.Add(1)
			go s.handleConnection(conn)
		default:
			s.log.Warn("达到最大连接数，拒绝连接")
			conn.Close()
		}
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer func() {
		<-s.limiter
		s.wg.Done()
	}()

	c := newConnection(conn, s.inst, s.log, s.opts.ReadTimeout, s.shutdown)
	c.handle()
}

// Shutdown 停止监听并等待现有连接退出, 最多等待 ShutdownTimeout
func (s *Server) Shutdown() {
	s.once.Do(func() {
		s.log.Info("开始优雅关闭...")
		close(s.shutdown)

		if s.listener != nil {
			s.listener.Close()
		}

		done := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			s.log.Info("所有连接已关闭")
		case <-time.After(s.opts.ShutdownTimeout):
			s.log.Warn("关闭超时，强制退出")
		}
	})
}
