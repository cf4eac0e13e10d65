package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/yellow-pitaya/frontend-sub000/internal/config"
)

func TestSetup(t *testing.T) {
	tests := []struct {
		name      string
		cfg       config.LogConfig
		wantLevel logrus.Level
		wantJSON  bool
	}{
		{"defaults", config.LogConfig{Level: "info", Format: "text"}, logrus.InfoLevel, false},
		{"debug json", config.LogConfig{Level: "debug", Format: "json"}, logrus.DebugLevel, true},
		{"bad level falls back", config.LogConfig{Level: "loud"}, logrus.InfoLevel, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, closer := Setup(tt.cfg)
			if closer != nil {
				t.Error("stdout logger must not return a closer")
			}
			if log.GetLevel() != tt.wantLevel {
				t.Errorf("level = %v, want %v", log.GetLevel(), tt.wantLevel)
			}
			_, isJSON := log.Formatter.(*logrus.JSONFormatter)
			if isJSON != tt.wantJSON {
				t.Errorf("json formatter = %v, want %v", isJSON, tt.wantJSON)
			}
		})
	}
}

func TestSetup_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "oscillo.log")
	log, closer := Setup(config.LogConfig{Level: "info", Output: "file", FilePath: path})
	if closer == nil {
		t.Fatal("file logger must return a closer")
	}

	log.Info("已连接仪器")
	closer.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "已连接仪器") {
		t.Errorf("log file = %q", data)
	}
}
