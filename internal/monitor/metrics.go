package monitor

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Metrics 客户端指标, 同时实现 transport/device/parser 的记录接口
type Metrics struct {
	CommandsSent     *prometheus.CounterVec
	RepliesReceived  prometheus.Counter
	QueryFailures    *prometheus.CounterVec
	SampleFaults     prometheus.Counter
	BuffersAcquired  *prometheus.CounterVec
	RoundTripSeconds prometheus.Histogram
	RefreshSeconds   prometheus.Histogram

	// 运行时指标
	GoroutineCount prometheus.Gauge
	MemoryUsage    prometheus.Gauge
}

func NewMetrics() *Metrics {
	return &Metrics{
		CommandsSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oscillo_commands_sent_total",
				Help: "发送的命令数",
			},
			[]string{"kind"},
		),
		RepliesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "oscillo_replies_received_total",
			Help: "收到的回复数",
		}),
		QueryFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oscillo_query_failures_total",
				Help: "回复无法解析的查询数",
			},
			[]string{"command"},
		),
		SampleFaults: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "oscillo_sample_faults_total",
			Help: "以 0 代替的坏采样数",
		}),
		BuffersAcquired: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oscillo_buffers_acquired_total",
				Help: "读取并解析的缓冲区数",
			},
			[]string{"source"},
		),
		RoundTripSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "oscillo_round_trip_seconds",
			Help:    "查询往返耗时",
			Buckets: prometheus.DefBuckets,
		}),
		RefreshSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "oscillo_refresh_seconds",
			Help:    "一次刷新周期耗时",
			Buckets: prometheus.DefBuckets,
		}),
		GoroutineCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "oscillo_goroutines",
			Help: "当前Goroutine数量",
		}),
		MemoryUsage: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "oscillo_memory_usage_bytes",
			Help: "内存使用量",
		}),
	}
}

// Register 注册全部指标
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		m.CommandsSent,
		m.RepliesReceived,
		m.QueryFailures,
		m.SampleFaults,
		m.BuffersAcquired,
		m.RoundTripSeconds,
		m.RefreshSeconds,
		m.GoroutineCount,
		m.MemoryUsage,
	} {
		if err := reg.Register(c); err != nil {
			return fmt.Errorf("注册指标失败: %w", err)
		}
	}
	return nil
}

func (m *Metrics) ObserveCommand(query bool) {
	kind := "command"
	if query {
		kind = "query"
	}
	m.CommandsSent.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveReply(rtt time.Duration) {
	m.RepliesReceived.Inc()
	m.RoundTripSeconds.Observe(rtt.Seconds())
}

func (m *Metrics) ObserveQueryFailure(command string) {
	m.QueryFailures.WithLabelValues(command).Inc()
}

func (m *Metrics) ObserveSampleFaults(n int) {
	m.SampleFaults.Add(float64(n))
}

func (m *Metrics) ObserveBuffer(source string) {
	m.BuffersAcquired.WithLabelValues(source).Inc()
}

func (m *Metrics) ObserveRefresh(d time.Duration) {
	m.RefreshSeconds.Observe(d.Seconds())
}

type Monitor struct {
	metrics  *Metrics
	gatherer prometheus.Gatherer
	log      *logrus.Logger
}

// NewMonitor 在独立 registry 上注册指标
func NewMonitor(metrics *Metrics, log *logrus.Logger) (*Monitor, error) {
	reg := prometheus.NewRegistry()
	if err := metrics.Register(reg); err != nil {
		return nil, err
	}
	return &Monitor{metrics: metrics, gatherer: reg, log: log}, nil
}

// Handler /metrics 与 /health
func (m *Monitor) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{}))

	// 健康检查端点
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	return mux
}

// StartMetricsServer 启动Metrics HTTP服务器
func (m *Monitor) StartMetricsServer(port int) *http.Server {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           m.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	m.log.Infof("Metrics服务器启动: %s", srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			m.log.Errorf("Metrics服务器错误: %v", err)
		}
	}()
	return srv
}

// StartRuntimeMonitor 启动运行时监控, ctx 取消时退出
func (m *Monitor) StartRuntimeMonitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.sample()
			}
		}
	}()
}

func (m *Monitor) sample() {
	m.metrics.GoroutineCount.Set(float64(runtime.NumGoroutine()))

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	m.metrics.MemoryUsage.Set(float64(memStats.Alloc))

	m.log.Debugf("Goroutines: %d, 内存: %.2f MB",
		runtime.NumGoroutine(),
		float64(memStats.Alloc)/1024/1024,
	)
}
