package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yellow-pitaya/frontend-sub000/pkg/protocol"
)

type Config struct {
	Instrument InstrumentConfig `yaml:"instrument"`
	Log        LogConfig        `yaml:"log"`
	Redis      RedisConfig      `yaml:"redis"`
	Monitor    MonitorConfig    `yaml:"monitor"`
	Session    SessionConfig    `yaml:"session"`
	Emulator   EmulatorConfig   `yaml:"emulator"`
}

type InstrumentConfig struct {
	// Address host:port, 唯一必填项
	Address      string        `yaml:"address"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReplyTimeout time.Duration `yaml:"reply_timeout"`
}

type LogConfig struct {
	Level         string `yaml:"level"`
	Format        string `yaml:"format"`
	Output        string `yaml:"output"`
	FilePath      string `yaml:"file_path"`
	TraceCommands bool   `yaml:"trace_commands"`
	TraceReplies  bool   `yaml:"trace_replies"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
	Channel  string `yaml:"channel"`
}

type MonitorConfig struct {
	Enabled     bool `yaml:"enabled"`
	MetricsPort int  `yaml:"metrics_port"`
}

// EmulatorConfig 仪器模拟器监听参数
type EmulatorConfig struct {
	Listen          string        `yaml:"listen"`
	MaxConnections  int           `yaml:"max_connections"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	KeepAlive       time.Duration `yaml:"keep_alive"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// SessionConfig 启动时下发给仪器的参数
type SessionConfig struct {
	Interval    time.Duration           `yaml:"interval"`
	Decimation  uint32                  `yaml:"decimation"`
	Average     bool                    `yaml:"average"`
	TriggerMode string                  `yaml:"trigger_mode"`
	Trigger     string                  `yaml:"trigger"`
	Level       float64                 `yaml:"level"`
	Delay       int                     `yaml:"delay"`
	Inputs      map[string]InputConfig  `yaml:"inputs"`
	Outputs     map[string]OutputConfig `yaml:"outputs"`
	Window      WindowConfig            `yaml:"window"`
	Markers     map[string]float64      `yaml:"markers"`
}

type InputConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Gain        string `yaml:"gain"`
	Attenuation int    `yaml:"attenuation"`
}

type OutputConfig struct {
	Enabled   bool    `yaml:"enabled"`
	Form      string  `yaml:"form"`
	Amplitude float64 `yaml:"amplitude"`
	Offset    float64 `yaml:"offset"`
	Frequency float64 `yaml:"frequency"`
	DutyCycle float64 `yaml:"duty_cycle"`
}

type WindowConfig struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// LoadConfig 加载配置文件, 未出现的字段保留默认值
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	config := GetDefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	return config, nil
}

// GetDefaultConfig 返回默认配置
func GetDefaultConfig() *Config {
	return &Config{
		Instrument: InstrumentConfig{
			Address:      "",
			DialTimeout:  10 * time.Second,
			ReplyTimeout: 5 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
		Redis: RedisConfig{
			Enabled:  false,
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			PoolSize: 10,
			Channel:  "oscillo_frames",
		},
		Monitor: MonitorConfig{
			Enabled:     false,
			MetricsPort: 9090,
		},
		Session: SessionConfig{
			Interval:    100 * time.Millisecond,
			Decimation:  uint32(protocol.Dec64),
			TriggerMode: string(protocol.TriggerAuto),
			Trigger:     string(protocol.NewTriggerSource(protocol.TriggerCH1, protocol.EdgePositive)),
			Inputs: map[string]InputConfig{
				"IN1": {Enabled: true, Gain: string(protocol.GainLV), Attenuation: 1},
				"IN2": {Enabled: false, Gain: string(protocol.GainLV), Attenuation: 1},
			},
			Window: WindowConfig{Width: 1024, Height: 512},
		},
		Emulator: EmulatorConfig{
			Listen:          "127.0.0.1:5000",
			MaxConnections:  4,
			ReadTimeout:     time.Second,
			KeepAlive:       30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
	}
}

// Validate 检查必填项和取值范围
func (c *Config) Validate() error {
	var errs []error

	if c.Instrument.Address == "" {
		errs = append(errs, errors.New("instrument.address 不能为空"))
	}
	if c.Instrument.DialTimeout < 0 || c.Instrument.ReplyTimeout < 0 {
		errs = append(errs, errors.New("instrument 超时不能为负"))
	}
	if c.Session.Interval <= 0 {
		errs = append(errs, errors.New("session.interval 必须大于 0"))
	}
	if !protocol.Decimation(c.Session.Decimation).Valid() {
		errs = append(errs, fmt.Errorf("session.decimation %d 不受支持", c.Session.Decimation))
	}
	if _, err := protocol.ParseTriggerMode(c.Session.TriggerMode); err != nil {
		errs = append(errs, err)
	}
	if src := protocol.TriggerSource(c.Session.Trigger); !src.Valid() {
		errs = append(errs, fmt.Errorf("session.trigger %q 不受支持", c.Session.Trigger))
	}
	for name, in := range c.Session.Inputs {
		if _, err := protocol.ParseInput(name); err != nil {
			errs = append(errs, err)
		}
		if _, err := protocol.ParseGain(in.Gain); err != nil {
			errs = append(errs, fmt.Errorf("inputs.%s: %w", name, err))
		}
		if _, err := protocol.ParseAttenuation(in.Attenuation); err != nil {
			errs = append(errs, fmt.Errorf("inputs.%s: %w", name, err))
		}
	}
	for name, out := range c.Session.Outputs {
		if _, err := protocol.ParseOutput(name); err != nil {
			errs = append(errs, err)
		}
		if _, err := protocol.ParseForm(out.Form); err != nil {
			errs = append(errs, fmt.Errorf("outputs.%s: %w", name, err))
		}
	}

	return errors.Join(errs...)
}
