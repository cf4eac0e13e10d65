package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yellow-pitaya/frontend-sub000/internal/config"
	"github.com/yellow-pitaya/frontend-sub000/internal/device"
	"github.com/yellow-pitaya/frontend-sub000/internal/logging"
	"github.com/yellow-pitaya/frontend-sub000/internal/monitor"
	"github.com/yellow-pitaya/frontend-sub000/internal/parser"
	"github.com/yellow-pitaya/frontend-sub000/internal/session"
	"github.com/yellow-pitaya/frontend-sub000/internal/storage"
	"github.com/yellow-pitaya/frontend-sub000/internal/transport"
)

var (
	Version   = "1.0.0"
	BuildTime = "unknown"
)

func main() {
	// 命令行参数
	configFile := flag.String("config", "configs/config.yaml", "配置文件路径")
	addr := flag.String("addr", "", "仪器地址 host:port, 覆盖配置文件")
	showVersion := flag.Bool("version", false, "显示版本信息")
	flag.Parse()

	// 显示版本
	if *showVersion {
		fmt.Printf("Oscillo v%s (Build: %s)\n", Version, BuildTime)
		os.Exit(0)
	}

	// 加载配置
	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		cfg = config.GetDefaultConfig()
		fmt.Println("使用默认配置")
	}
	if *addr != "" {
		cfg.Instrument.Address = *addr
	}

	// 初始化日志
	log, logFile := logging.Setup(cfg.Log)
	log.Infof("Oscillo v%s 启动中...", Version)

	err = run(cfg, log)
	if logFile != nil {
		logFile.Close()
	}
	if err != nil {
		os.Exit(1)
	}
}

// run 返回时所有资源都已释放
func run(cfg *config.Config, log *logrus.Logger) error {
	if err := cfg.Validate(); err != nil {
		log.Errorf("配置无效: %v", err)
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := monitor.NewMetrics()
	if cfg.Monitor.Enabled {
		mon, err := monitor.NewMonitor(metrics, log)
		if err != nil {
			log.Errorf("注册监控指标失败: %v", err)
			return err
		}
		metricsServer := mon.StartMetricsServer(cfg.Monitor.MetricsPort)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			metricsServer.Shutdown(shutdownCtx)
		}()
		mon.StartRuntimeMonitor(ctx, 10*time.Second)
	}

	// 连接失败不可恢复
	tr, err := transport.Dial(ctx, cfg.Instrument.Address, transport.Options{
		DialTimeout:   cfg.Instrument.DialTimeout,
		ReplyTimeout:  cfg.Instrument.ReplyTimeout,
		TraceCommands: cfg.Log.TraceCommands,
		TraceReplies:  cfg.Log.TraceReplies,
	}, log)
	if err != nil {
		log.Errorf("连接仪器失败: %v", err)
		return err
	}
	defer tr.Close()
	tr.SetRecorder(metrics)

	dev := device.New(tr, log)
	dev.SetRecorder(metrics)

	p := parser.NewParser(log)
	p.SetRecorder(metrics)

	pub, err := newPublisher(ctx, cfg.Redis, log)
	if err != nil {
		log.Errorf("创建发布者失败: %v", err)
		return err
	}
	defer func() {
		if err := pub.Close(); err != nil {
			log.Errorf("关闭存储连接失败: %v", err)
		}
	}()

	sess := session.New(dev, p, pub, log)
	sess.SetRecorder(metrics)

	if err := sess.Apply(cfg.Session); err != nil {
		if transport.IsFatal(err) {
			log.Errorf("下发配置失败: %v", err)
			return err
		}
		log.Warnf("部分配置未生效: %v", err)
	}

	err = sess.Run(ctx, session.NewTicker(cfg.Session.Interval), func(f *session.Frame) {
		for ch, points := range f.Acquired {
			log.Debugf("刷新 [%s]: %d 个点", ch, len(points))
		}
	})
	if err != nil {
		log.Errorf("与仪器的连接中断: %v", err)
		return err
	}

	// 退出前停止采集, 失败不影响退出
	if err := dev.Acquire.Stop(); err != nil {
		log.Warnf("停止采集失败: %v", err)
	}
	log.Info("已退出")
	return nil
}

func newPublisher(ctx context.Context, cfg config.RedisConfig, log *logrus.Logger) (storage.Publisher, error) {
	if !cfg.Enabled {
		return storage.Discard{}, nil
	}
	return storage.NewFramePublisher(ctx, cfg.Addr, cfg.Password, cfg.Channel, cfg.DB, cfg.PoolSize, log)
}
