package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/yellow-pitaya/frontend-sub000/internal/config"
)

// Setup 按配置创建日志器. 返回的 io.Closer 用于关闭日志文件, 输出到标准输出时为 nil.
func Setup(cfg config.LogConfig) (*logrus.Logger, io.Closer) {
	log := logrus.New()

	// 设置日志级别
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	// 设置日志格式
	if cfg.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
		})
	} else {
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	// 设置输出
	if cfg.Output == "file" && cfg.FilePath != "" {
		file, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err == nil {
			log.SetOutput(file)
			return log, file
		}
		log.Warnf("打开日志文件失败: %v, 使用标准输出", err)
	}

	return log, nil
}
