package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yellow-pitaya/frontend-sub000/internal/transport"
)

// 从标准输入逐行读取命令发送给仪器, 以 ? 结尾的命令打印回复
func main() {
	host := flag.String("host", "localhost:5000", "仪器地址")
	timeout := flag.Duration("timeout", 5*time.Second, "回复超时")
	trace := flag.Bool("trace", false, "打印收发日志")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	if *trace {
		log.SetLevel(logrus.DebugLevel)
	}

	tr, err := transport.Dial(context.Background(), *host, transport.Options{
		DialTimeout:   5 * time.Second,
		ReplyTimeout:  *timeout,
		TraceCommands: *trace,
		TraceReplies:  *trace,
	}, log)
	if err != nil {
		log.Fatalf("连接失败: %v", err)
	}
	defer tr.Close()

	fmt.Printf("已连接到: %s\n", *host)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if !strings.HasSuffix(line, "?") && !strings.Contains(line, "? ") {
			if err := tr.Send(line); err != nil {
				log.Fatalf("发送失败: %v", err)
			}
			continue
		}

		reply, err := tr.SendAndReceive(line)
		switch {
		case transport.IsFatal(err):
			log.Fatalf("连接中断: %v", err)
		case err != nil:
			log.Warnf("查询失败: %v", err)
		default:
			fmt.Println(reply)
		}
	}
}
