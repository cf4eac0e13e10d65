package emulator

import (
	"bufio"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const writeTimeout = 5 * time.Second

// connection 一个客户端连接, 按行读取命令, 查询按行回复
type connection struct {
	conn        net.Conn
	clientID    string
	inst        *Instrument
	log         *logrus.Logger
	readTimeout time.Duration
	shutdown    <-chan struct{}
}

func newConnection(conn net.Conn, inst *Instrument, log *logrus.Logger, readTimeout time.Duration, shutdown <-chan struct{}) *connection {
	return &connection{
		conn:        conn,
		clientID:    conn.RemoteAddr().String(),
		inst:        inst,
		log:         log,
		readTimeout: readTimeout,
		shutdown:    shutdown,
	}
}

// handle 处理连接直到对端断开或服务器关闭
func (c *connection) handle() {
	defer func() {
		c.conn.Close()
		c.log.Infof("连接关闭: %s", c.clientID)
	}()

	c.log.Infof("新连接: %s", c.clientID)

	reader := bufio.NewReader(c.conn)
	var pending strings.Builder

	for {
		// 设置读取超时, 超时后检查是否需要关闭
		c.conn.SetReadDeadline(time.Now().Add(c.readTimeout))

		chunk, err := reader.ReadString('\n')
		pending.WriteString(chunk)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				select {
				case <-c.shutdown:
					return
				default:
					continue
				}
			}
			c.log.Debugf("连接断开: %s, 错误: %v", c.clientID, err)
			return
		}

		line := strings.TrimRight(pending.String(), "\r\n")
		pending.Reset()
		if line == "" {
			continue
		}

		if err := c.execute(line); err != nil {
			c.log.Debugf("发送回复失败 [%s]: %v", c.clientID, err)
			return
		}
	}
}

func (c *connection) execute(line string) error {
	reply, ok, _ := c.inst.Execute(line)
	if !ok {
		c.log.Debugf("命令 [%s]: %s", c.clientID, line)
		return nil
	}

	c.log.Debugf("查询 [%s]: %s (%d 字节)", c.clientID, line, len(reply))
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_, err := c.conn.Write([]byte(reply + "\r\n"))
	return err
}
