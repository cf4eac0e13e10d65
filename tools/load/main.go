package main

import (
	"context"
	"flag"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yellow-pitaya/frontend-sub000/internal/device"
	"github.com/yellow-pitaya/frontend-sub000/internal/monitor"
	"github.com/yellow-pitaya/frontend-sub000/internal/parser"
	"github.com/yellow-pitaya/frontend-sub000/internal/transport"
	"github.com/yellow-pitaya/frontend-sub000/pkg/protocol"
)

// 统计指标
type Stats struct {
	Connected     int64
	ConnectFailed int64
	Reads         int64
	ReadFailed    int64
	Samples       int64
}

// client 一个模拟的前端, 按固定间隔读取缓冲区
type client struct {
	id       int
	addr     string
	interval time.Duration
	stats    *Stats
	metrics  *monitor.Metrics
	log      *logrus.Logger
}

func (c *client) run(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	tr, err := transport.Dial(ctx, c.addr, transport.Options{
		DialTimeout:  5 * time.Second,
		ReplyTimeout: 5 * time.Second,
	}, c.log)
	if err != nil {
		c.log.Errorf("客户端 %d 连接失败: %v", c.id, err)
		atomic.AddInt64(&c.stats.ConnectFailed, 1)
		return
	}
	defer tr.Close()
	tr.SetRecorder(c.metrics)
	atomic.AddInt64(&c.stats.Connected, 1)

	dev := device.New(tr, c.log)
	dev.SetRecorder(c.metrics)
	p := parser.NewParser(c.log)
	p.SetRecorder(c.metrics)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			start := time.Now()
			raw, err := dev.Acquire.ReadAll(protocol.IN1)
			if err != nil {
				atomic.AddInt64(&c.stats.ReadFailed, 1)
				if transport.IsFatal(err) {
					c.log.Errorf("客户端 %d 连接中断: %v", c.id, err)
					return
				}
				continue
			}
			res := p.Parse(raw)
			atomic.AddInt64(&c.stats.Reads, 1)
			atomic.AddInt64(&c.stats.Samples, int64(len(res.Samples)))
			c.metrics.ObserveBuffer(protocol.IN1.String())
			c.metrics.ObserveRefresh(time.Since(start))
		}
	}
}

func main() {
	addr := flag.String("addr", "localhost:5000", "模拟器地址")
	clients := flag.Int("clients", 4, "并发客户端数")
	interval := flag.Duration("interval", 100*time.Millisecond, "读取间隔")
	duration := flag.Duration("duration", 30*time.Second, "测试时长")
	metricsPort := flag.Int("metrics-port", 9091, "指标端口, 0 表示不启动")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *duration)
	defer cancel()

	metrics := monitor.NewMetrics()
	if *metricsPort > 0 {
		mon, err := monitor.NewMonitor(metrics, log)
		if err != nil {
			log.Fatalf("注册监控指标失败: %v", err)
		}
		srv := mon.StartMetricsServer(*metricsPort)
		defer srv.Close()
	}

	log.Infof("负载测试开始: %s, %d 个客户端, 间隔 %v, 时长 %v", *addr, *clients, *interval, *duration)

	stats := &Stats{}
	var wg sync.WaitGroup
	startTime := time.Now()
	for i := 0; i < *clients; i++ {
		wg.Add(1)
		c := &client{id: i + 1, addr: *addr, interval: *interval, stats: stats, metrics: metrics, log: log}
		go c.run(ctx, &wg)
	}

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				log.Infof("已读取: %d, 失败: %d", atomic.LoadInt64(&stats.Reads), atomic.LoadInt64(&stats.ReadFailed))
			}
		}
	}()

	wg.Wait()

	elapsed := time.Since(startTime).Seconds()
	reads := atomic.LoadInt64(&stats.Reads)
	log.Infof("连接成功: %d, 连接失败: %d", stats.Connected, stats.ConnectFailed)
	log.Infof("读取: %d, 失败: %d, 采样: %d", reads, stats.ReadFailed, stats.Samples)
	if elapsed > 0 {
		log.Infof("吞吐: %.1f 缓冲区/秒", float64(reads)/elapsed)
	}
}
