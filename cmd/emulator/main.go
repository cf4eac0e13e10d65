package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/yellow-pitaya/frontend-sub000/internal/config"
	"github.com/yellow-pitaya/frontend-sub000/internal/emulator"
	"github.com/yellow-pitaya/frontend-sub000/internal/logging"
)

var (
	Version   = "1.0.0"
	BuildTime = "unknown"
)

func main() {
	configFile := flag.String("config", "configs/config.yaml", "配置文件路径")
	listen := flag.String("listen", "", "监听地址, 覆盖配置文件")
	showVersion := flag.Bool("version", false, "显示版本信息")
	flag.Parse()

	if *showVersion {
		fmt.Printf("Instrument Emulator v%s (Build: %s)\n", Version, BuildTime)
		os.Exit(0)
	}

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		cfg = config.GetDefaultConfig()
		fmt.Println("使用默认配置")
	}
	if *listen != "" {
		cfg.Emulator.Listen = *listen
	}

	log, logFile := logging.Setup(cfg.Log)
	if logFile != nil {
		defer logFile.Close()
	}
	log.Infof("Instrument Emulator v%s 启动中...", Version)

	srv := emulator.NewServer(emulator.NewInstrument(log), emulator.Options{
		Listen:          cfg.Emulator.Listen,
		MaxConnections:  cfg.Emulator.MaxConnections,
		ReadTimeout:     cfg.Emulator.ReadTimeout,
		KeepAlive:       cfg.Emulator.KeepAlive,
		ShutdownTimeout: cfg.Emulator.ShutdownTimeout,
	}, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Listen(ctx); err != nil {
		log.Fatalf("启动模拟器失败: %v", err)
	}

	// 优雅退出处理
	go func() {
		<-ctx.Done()
		log.Info("收到退出信号")
		srv.Shutdown()
	}()

	if err := srv.Serve(); err != nil {
		log.Fatalf("模拟器异常退出: %v", err)
	}
	// 等待现有连接退出
	srv.Shutdown()
	log.Info("模拟器已关闭")
}
